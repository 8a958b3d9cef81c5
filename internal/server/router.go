package server

import (
	"shoptrend/internal/server/handlers"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Router 路由管理器
type Router struct {
	router  *gin.Engine
	handler *handlers.Handler
}

// NewRouter 创建路由管理器
func NewRouter(router *gin.Engine, logger *zap.Logger, deps handlers.Dependencies) *Router {
	return &Router{
		router:  router,
		handler: handlers.New(deps, logger),
	}
}

// SetupRoutes 设置所有路由，缺少依赖的路由组不注册
func (r *Router) SetupRoutes() {
	h := r.handler
	deps := h.Deps()

	api := r.router.Group("/api/v1")
	{
		if deps.Counters != nil {
			mon := api.Group("/monitoring")
			mon.GET("/snapshot", h.Snapshot)
			mon.GET("/health", h.Health)
			mon.POST("/reset", h.Reset)
		}

		if deps.Engine != nil {
			api.POST("/aggregations/:type/run", h.RunAggregation)
		}
		if deps.Trends != nil {
			api.GET("/trends", h.Trends)
		}
		if deps.Cache != nil {
			api.DELETE("/cache", h.InvalidateCache)
		}

		if deps.Prices != nil {
			api.POST("/prices", h.TrackPrice)
			api.GET("/prices/:product_id", h.PriceHistory)
		}
		if deps.Clicks != nil {
			api.POST("/clicks", h.RecordClick)
		}
		if deps.Calls != nil {
			api.GET("/calls/:id", h.GetCall)
		}

		if deps.Tasks != nil {
			api.GET("/tasks", h.ListTasks)
			api.POST("/tasks/:name/run", h.RunTask)
		}
	}
}
