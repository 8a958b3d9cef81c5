package handlers

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"shoptrend/internal/model"
)

// Handler 管理接口处理器
type Handler struct {
	deps   Dependencies
	logger *zap.Logger
}

// New 创建处理器
func New(deps Dependencies, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{deps: deps, logger: logger}
}

// Deps 返回处理器依赖
func (h *Handler) Deps() Dependencies {
	return h.deps
}

// parseTime 支持 RFC3339 与 YYYY-MM-DD，空字符串返回零值
func parseTime(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid %s %q", model.ErrValidation, field, s)
	}
	return t, nil
}
