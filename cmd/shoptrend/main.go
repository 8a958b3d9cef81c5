package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shoptrend/internal/config"
	"shoptrend/internal/database"
	"shoptrend/internal/logger"
	"shoptrend/internal/scheduler"
	"shoptrend/internal/server"
	"shoptrend/internal/task"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load(os.Getenv("SHOPTREND_CONFIG_PATH"))
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	zapLogger, err := logger.NewLogger(logger.LoggerConfig{
		App:        cfg.App.Name,
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		OutputPath: cfg.Logger.OutputPath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	zapLogger.Info("application starting",
		zap.String("name", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("env", cfg.App.Env),
	)

	// 初始化数据库连接
	dbs, err := database.New(database.ConfigFromAppConfig(cfg, zapLogger))
	if err != nil {
		zapLogger.Fatal("failed to initialize databases", zap.Error(err))
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), time.Minute)
	comps, err := buildComponents(startCtx, cfg, dbs, zapLogger)
	cancelStart()
	if err != nil {
		zapLogger.Fatal("failed to build components", zap.Error(err))
	}

	// 注册任务
	registry := task.NewTaskRegistry()
	if err := registerTasks(registry, cfg, comps, zapLogger); err != nil {
		zapLogger.Fatal("failed to register tasks", zap.Error(err))
	}

	location, err := cfg.GetLocation()
	if err != nil {
		zapLogger.Warn("failed to load location, using local time", zap.Error(err))
		location = time.Local
	}

	defaultTimeout, err := cfg.GetDefaultTimeout()
	if err != nil {
		zapLogger.Warn("failed to parse default timeout, using 30m", zap.Error(err))
		defaultTimeout = 30 * time.Minute
	}

	sched := scheduler.NewScheduler(scheduler.Config{
		Logger:         zapLogger,
		Registry:       registry,
		DefaultTimeout: defaultTimeout,
		Location:       location,
	})
	if err := sched.Start(); err != nil {
		zapLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	zapLogger.Info("scheduler started successfully",
		zap.Int("task_count", sched.GetTaskCount()),
	)

	// 启动管理接口
	httpServer := server.NewServer(&cfg.Server, zapLogger, handlerDeps(cfg, comps, sched))
	if err := httpServer.Start(); err != nil {
		zapLogger.Fatal("failed to start HTTP server", zap.Error(err))
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zapLogger.Info("received signal, shutting down...",
		zap.String("signal", sig.String()),
	)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		zapLogger.Error("error stopping HTTP server", zap.Error(err))
	}

	if err := sched.Stop(shutdownCtx); err != nil {
		zapLogger.Error("error stopping scheduler", zap.Error(err))
	}

	if err := dbs.Close(); err != nil {
		zapLogger.Error("error closing databases", zap.Error(err))
	}

	zapLogger.Info("application stopped")
}
