package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Snapshot GET /monitoring/snapshot
func (h *Handler) Snapshot(c *gin.Context) {
	JSONSuccess(c, http.StatusOK, h.deps.Counters.Snapshot())
}

// Health GET /monitoring/health，不健康时返回 503
func (h *Handler) Health(c *gin.Context) {
	health := h.deps.Thresholds.Evaluate(h.deps.Counters.Snapshot())
	if !health.Healthy {
		c.JSON(http.StatusServiceUnavailable, SuccessResponse{
			Code:    http.StatusServiceUnavailable,
			Message: "unhealthy",
			Data:    health,
		})
		return
	}
	JSONSuccess(c, http.StatusOK, health)
}

// Reset POST /monitoring/reset
func (h *Handler) Reset(c *gin.Context) {
	h.deps.Counters.Reset()
	h.logger.Info("monitoring counters reset", zap.String("ip", c.ClientIP()))
	JSONSuccess(c, http.StatusOK, h.deps.Counters.Snapshot())
}
