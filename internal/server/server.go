package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"shoptrend/internal/config"
	"shoptrend/internal/monitoring"
	"shoptrend/internal/server/handlers"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server HTTP 管理服务器
type Server struct {
	config     *config.ServerConfig
	router     *gin.Engine
	logger     *zap.Logger
	httpServer *http.Server
	deps       handlers.Dependencies
}

// NewServer 创建 HTTP 服务器
func NewServer(cfg *config.ServerConfig, logger *zap.Logger, deps handlers.Dependencies) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	router := gin.New()
	router.Use(ginLogger(logger, deps.Counters))
	router.Use(gin.Recovery())

	server := &Server{
		config: cfg,
		router: router,
		logger: logger,
		deps:   deps,
	}

	NewRouter(router, logger, deps).SetupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // 手动聚合可能持续较长时间
		IdleTimeout:  60 * time.Second,
	}

	return server
}

// Handler 返回 HTTP 处理器，便于测试
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 启动服务器
func (s *Server) Start() error {
	if !s.config.Enabled {
		s.logger.Info("HTTP server is disabled, skipping startup")
		return nil
	}

	s.logger.Info("starting HTTP server",
		zap.String("host", s.config.Host),
		zap.Int("port", s.config.Port),
		zap.String("mode", s.config.Mode),
	)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	if !s.config.Enabled {
		return nil
	}

	s.logger.Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("error shutting down HTTP server", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// ginLogger 请求日志中间件，同时记录请求数与响应时间
func ginLogger(logger *zap.Logger, counters *monitoring.Counters) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		if counters != nil {
			counters.RecordRequest()
			counters.RecordResponseTime(latency.Milliseconds())
		}

		if raw != "" {
			path = path + "?" + raw
		}

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", latency),
			zap.String("error", c.Errors.ByType(gin.ErrorTypePrivate).String()),
		)
	}
}
