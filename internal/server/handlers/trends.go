package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shoptrend/internal/aggregation"
	"shoptrend/internal/cache"
	"shoptrend/internal/model"
)

// RunAggregationRequest 手动聚合请求
type RunAggregationRequest struct {
	Keywords []string `json:"keywords"`
	AsOf     string   `json:"as_of,omitempty"` // RFC3339 或 YYYY-MM-DD，默认当前时间
}

// RunAggregation POST /aggregations/:type/run
func (h *Handler) RunAggregation(c *gin.Context) {
	t, err := model.ParseAggregationType(c.Param("type"))
	if err != nil {
		JSONError(c, h.logger, "invalid aggregation type", err)
		return
	}

	var req RunAggregationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, h.logger, "invalid request body", fmt.Errorf("%w: %v", model.ErrValidation, err))
		return
	}
	if len(req.Keywords) == 0 {
		JSONError(c, h.logger, "keywords are required", fmt.Errorf("%w: keywords is empty", model.ErrValidation))
		return
	}
	asOf, err := parseTime("as_of", req.AsOf)
	if err != nil {
		JSONError(c, h.logger, "invalid as_of", err)
		return
	}

	// 批处理不随客户端断开而取消
	ctx := context.WithoutCancel(c.Request.Context())
	if h.deps.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.deps.BatchTimeout)
		defer cancel()
	}

	result, err := h.deps.Engine.RunBatchJob(ctx, req.Keywords, t, asOf)
	if err != nil {
		JSONError(c, h.logger, "aggregation failed", err)
		return
	}
	h.logger.Info("manual aggregation finished",
		zap.String("type", string(t)),
		zap.Int("keywords", len(req.Keywords)),
		zap.Int("failed", len(result.Failures)))
	JSONSuccess(c, http.StatusOK, result)
}

// Trends GET /trends?keyword=&type=&from=&to=&limit=
func (h *Handler) Trends(c *gin.Context) {
	q := aggregation.TrendQuery{Keyword: c.Query("keyword")}

	if raw := c.Query("type"); raw != "" {
		t, err := model.ParseAggregationType(raw)
		if err != nil {
			JSONError(c, h.logger, "invalid aggregation type", err)
			return
		}
		q.Type = t
	}
	var err error
	if q.From, err = parseTime("from", c.Query("from")); err != nil {
		JSONError(c, h.logger, "invalid from", err)
		return
	}
	if q.To, err = parseTime("to", c.Query("to")); err != nil {
		JSONError(c, h.logger, "invalid to", err)
		return
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			JSONError(c, h.logger, "invalid limit", fmt.Errorf("%w: limit %q", model.ErrValidation, raw))
			return
		}
		q.Limit = limit
	}

	aggs, err := h.deps.Trends.Trends(c.Request.Context(), q)
	if err != nil {
		JSONError(c, h.logger, "query trends failed", err)
		return
	}
	JSONSuccess(c, http.StatusOK, aggs)
}

// InvalidateCache DELETE /cache?scope=all|keyword|type&value=
func (h *Handler) InvalidateCache(c *gin.Context) {
	scope, err := cache.ParseScope(c.Query("scope"), c.Query("value"))
	if err != nil {
		JSONError(c, h.logger, "invalid cache scope", err)
		return
	}

	deleted, err := h.deps.Cache.Invalidate(c.Request.Context(), scope)
	if err != nil {
		JSONError(c, h.logger, "cache invalidation failed", err)
		return
	}
	h.logger.Info("cache invalidated", zap.String("scope", scope.String()), zap.Int64("deleted", deleted))
	JSONSuccess(c, http.StatusOK, gin.H{"scope": scope.String(), "deleted": deleted})
}
