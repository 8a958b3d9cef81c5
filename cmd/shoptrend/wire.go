package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"shoptrend/internal/aggregation"
	"shoptrend/internal/cache"
	"shoptrend/internal/calltracker"
	"shoptrend/internal/config"
	"shoptrend/internal/database"
	"shoptrend/internal/model"
	"shoptrend/internal/monitoring"
	"shoptrend/internal/pricing"
	"shoptrend/internal/repository"
	"shoptrend/internal/server/handlers"
	"shoptrend/internal/task"
	"shoptrend/internal/tasks"
	"shoptrend/internal/trendsource"
)

// relationalStore 价格历史与调用记录共用的存储
type relationalStore interface {
	pricing.Store
	calltracker.Store
}

// components 进程内组件
type components struct {
	counters *monitoring.Counters
	trends   aggregation.Store
	layer    *cache.Layer
	engine   *aggregation.Engine
	query    *aggregation.QueryService
	tracker  *calltracker.Tracker
	prices   *pricing.Service
}

// buildComponents 按配置选择存储与缓存后端并组装服务
func buildComponents(ctx context.Context, cfg *config.Config, dbs *database.Databases, logger *zap.Logger) (*components, error) {
	var memory *repository.MemoryStore
	memoryStore := func() *repository.MemoryStore {
		if memory == nil {
			memory = repository.NewMemoryStore()
		}
		return memory
	}

	var trendStore aggregation.Store
	switch cfg.Storage.Trend {
	case "mongodb":
		if dbs.MongoDB == nil {
			return nil, fmt.Errorf("storage.trend is mongodb but mongodb is not connected")
		}
		repo := repository.NewMongoTrendRepository(database.NewStorage(dbs.MongoDB, logger), logger)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		trendStore = repo
	default:
		trendStore = memoryStore()
	}

	var relStore relationalStore
	switch cfg.Storage.Relational {
	case "postgresql", "mysql":
		db, dialect := dbs.PostgreSQL, repository.DialectPostgres
		if cfg.Storage.Relational == "mysql" {
			db, dialect = dbs.MySQL, repository.DialectMySQL
		}
		if db == nil {
			return nil, fmt.Errorf("storage.relational is %s but it is not connected", cfg.Storage.Relational)
		}
		sqlStore := repository.NewSQLStore(db, dialect, logger)
		if err := sqlStore.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure sql schema: %w", err)
		}
		relStore = sqlStore
	default:
		relStore = memoryStore()
	}

	var cacheStore cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		if dbs.Redis == nil {
			return nil, fmt.Errorf("cache.backend is redis but redis is not connected")
		}
		cacheStore = cache.NewRedisStore(dbs.Redis)
	default:
		cacheStore = cache.NewMemoryStore()
	}

	c := &components{counters: monitoring.NewCounters(), trends: trendStore}
	c.layer = cache.NewLayer(cacheStore, cache.Options{
		Prefix:     cfg.Cache.Prefix,
		DefaultTTL: cfg.Cache.DefaultTTL,
	}, c.counters, logger)
	c.tracker = calltracker.New(relStore, logger)
	c.prices = pricing.NewService(relStore, pricing.Options{SerializePerProduct: cfg.Pricing.SerializePerProduct}, logger)

	c.engine = aggregation.NewEngine(trendStore, c.counters, aggregation.Options{
		Workers:       cfg.Aggregation.Workers,
		Epsilon:       decimal.NewFromFloat(cfg.Aggregation.Epsilon),
		SourceTimeout: cfg.Aggregation.SourceTimeout,
		SourceRetries: cfg.Aggregation.SourceRetries,
	}, logger).WithCache(c.layer)

	if cfg.TrendSource.Enabled {
		c.engine.WithFetcher(trendsource.NewClient(trendsource.Config{
			BaseURL:           cfg.TrendSource.BaseURL,
			ClientID:          cfg.TrendSource.ClientID,
			ClientSecret:      cfg.TrendSource.ClientSecret,
			Category:          cfg.TrendSource.Category,
			Timeout:           cfg.TrendSource.Timeout,
			Breakdowns:        cfg.TrendSource.Breakdowns,
			PrintResponseBody: cfg.TrendSource.PrintResponseBody,
			Logger:            logger,
		}), c.tracker)
	}

	c.query = aggregation.NewQueryService(trendStore, c.layer, cfg.Cache.DefaultTTL, logger)

	logger.Info("components ready",
		zap.String("trend_store", cfg.Storage.Trend),
		zap.String("relational_store", cfg.Storage.Relational),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Bool("trend_source", cfg.TrendSource.Enabled),
	)
	return c, nil
}

// thresholds 健康判定阈值
func thresholds(cfg *config.Config) monitoring.Thresholds {
	return monitoring.Thresholds{
		MinCacheHitRate:        cfg.Monitoring.MinCacheHitRate,
		MinCacheSamples:        cfg.Monitoring.MinCacheSamples,
		MaxConsecutiveFailures: cfg.Monitoring.MaxConsecutiveFailures,
		MaxResponseTimeMs:      cfg.Monitoring.MaxResponseTimeMs,
	}
}

// registerTasks 注册日/周/月聚合任务与监控报告任务，cron 表达式为空的任务不启用
func registerTasks(registry *task.TaskRegistry, cfg *config.Config, c *components, logger *zap.Logger) error {
	schedules := []struct {
		typ  model.AggregationType
		cron string
	}{
		{model.AggregationDaily, cfg.Scheduler.DailyCron},
		{model.AggregationWeekly, cfg.Scheduler.WeeklyCron},
		{model.AggregationMonthly, cfg.Scheduler.MonthlyCron},
	}

	for _, s := range schedules {
		t := tasks.NewAggregationTask(tasks.AggregationTaskConfig{
			Type:     s.typ,
			Schedule: s.cron,
			Timeout:  cfg.Aggregation.BatchTimeout,
			Enabled:  s.cron != "",
			Keywords: cfg.Aggregation.Keywords,
		}, c.engine, c.trends, logger)
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("failed to register %s: %w", t.Name(), err)
		}
	}

	report := tasks.NewMonitoringReportTask(cfg.Monitoring.ReportCron, c.counters, thresholds(cfg), logger)
	if err := registry.Register(report); err != nil {
		return fmt.Errorf("failed to register %s: %w", report.Name(), err)
	}
	return nil
}

// handlerDeps 管理接口依赖
func handlerDeps(cfg *config.Config, c *components, runner handlers.TaskRunner) handlers.Dependencies {
	return handlers.Dependencies{
		Counters:     c.counters,
		Thresholds:   thresholds(cfg),
		Engine:       c.engine,
		BatchTimeout: cfg.Aggregation.BatchTimeout,
		Trends:       c.query,
		Cache:        c.layer,
		Prices:       c.prices,
		Calls:        c.tracker,
		Tasks:        runner,
		Clicks:       c.trends,
	}
}

// shutdownTimeout 优雅关闭的最长等待时间
const shutdownTimeout = 30 * time.Second
