package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"shoptrend/internal/model"
)

// TrackPriceRequest 价格观测请求
type TrackPriceRequest struct {
	ProductID  int64            `json:"product_id"`
	Price      *decimal.Decimal `json:"price"`
	ObservedAt string           `json:"observed_at,omitempty"`
}

// TrackPrice POST /prices
func (h *Handler) TrackPrice(c *gin.Context) {
	var req TrackPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, h.logger, "invalid request body", fmt.Errorf("%w: %v", model.ErrValidation, err))
		return
	}
	if req.Price == nil {
		JSONError(c, h.logger, "price is required", fmt.Errorf("%w: price is missing", model.ErrValidation))
		return
	}
	observedAt, err := parseTime("observed_at", req.ObservedAt)
	if err != nil {
		JSONError(c, h.logger, "invalid observed_at", err)
		return
	}

	obs, err := h.deps.Prices.Track(c.Request.Context(), req.ProductID, *req.Price, observedAt)
	if err != nil {
		JSONError(c, h.logger, "track price failed", err)
		return
	}
	JSONSuccess(c, http.StatusCreated, obs)
}

// PriceHistory GET /prices/:product_id?limit=
func (h *Handler) PriceHistory(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil {
		JSONError(c, h.logger, "invalid product id", fmt.Errorf("%w: product id %q", model.ErrValidation, c.Param("product_id")))
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			JSONError(c, h.logger, "invalid limit", fmt.Errorf("%w: limit %q", model.ErrValidation, raw))
			return
		}
	}

	history, err := h.deps.Prices.History(c.Request.Context(), productID, limit)
	if err != nil {
		JSONError(c, h.logger, "load price history failed", err)
		return
	}
	JSONSuccess(c, http.StatusOK, history)
}

// RecordClickRequest 点击记录请求，商品与价格可选
type RecordClickRequest struct {
	Keyword   string           `json:"keyword"`
	Date      string           `json:"date,omitempty"`
	Count     int64            `json:"count,omitempty"`
	ProductID int64            `json:"product_id,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

// RecordClickResponse 点击记录结果
type RecordClickResponse struct {
	Keyword string                  `json:"keyword"`
	Date    time.Time               `json:"date"`
	Count   int64                   `json:"count"`
	Price   *model.PriceObservation `json:"price,omitempty"`
}

// RecordClick POST /clicks
//
// 价格观测失败不影响点击计数。
func (h *Handler) RecordClick(c *gin.Context) {
	var req RecordClickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, h.logger, "invalid request body", fmt.Errorf("%w: %v", model.ErrValidation, err))
		return
	}
	keyword := model.NormalizeKeyword(req.Keyword)
	if keyword == "" {
		JSONError(c, h.logger, "keyword is required", fmt.Errorf("%w: keyword is empty", model.ErrValidation))
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}
	if req.Count < 0 {
		JSONError(c, h.logger, "invalid count", fmt.Errorf("%w: count must be positive", model.ErrValidation))
		return
	}
	day, err := parseTime("date", req.Date)
	if err != nil {
		JSONError(c, h.logger, "invalid date", err)
		return
	}
	if day.IsZero() {
		day = time.Now()
	}
	day = model.DayOf(day)

	ctx := c.Request.Context()
	if err := h.deps.Clicks.IncrementClicks(ctx, keyword, day, req.Count); err != nil {
		JSONError(c, h.logger, "record click failed", err)
		return
	}

	resp := RecordClickResponse{Keyword: keyword, Date: day, Count: req.Count}
	if req.ProductID > 0 && req.Price != nil && h.deps.Prices != nil {
		resp.Price = h.deps.Prices.Observe(ctx, req.ProductID, *req.Price, time.Now())
	}
	JSONSuccess(c, http.StatusOK, resp)
}

// GetCall GET /calls/:id
func (h *Handler) GetCall(c *gin.Context) {
	call, err := h.deps.Calls.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		JSONError(c, h.logger, "load call failed", err)
		return
	}
	JSONSuccess(c, http.StatusOK, call)
}
