package handlers

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"shoptrend/internal/aggregation"
	"shoptrend/internal/cache"
	"shoptrend/internal/model"
	"shoptrend/internal/monitoring"
	"shoptrend/internal/scheduler"
	"shoptrend/internal/task"
)

// BatchRunner 手动触发聚合
type BatchRunner interface {
	RunBatchJob(ctx context.Context, keywords []string, t model.AggregationType, asOf time.Time) (*aggregation.BatchResult, error)
}

// TrendReader 旁路缓存的聚合结果查询
type TrendReader interface {
	Trends(ctx context.Context, q aggregation.TrendQuery) ([]model.TrendAggregation, error)
}

// CacheInvalidator 缓存失效
type CacheInvalidator interface {
	Invalidate(ctx context.Context, scope cache.Scope) (int64, error)
}

// PriceTracker 价格跟踪
type PriceTracker interface {
	Track(ctx context.Context, productID int64, price decimal.Decimal, observedAt time.Time) (*model.PriceObservation, error)
	Observe(ctx context.Context, productID int64, price decimal.Decimal, observedAt time.Time) *model.PriceObservation
	History(ctx context.Context, productID int64, limit int) ([]model.PriceObservation, error)
}

// CallReader 外部调用记录查询
type CallReader interface {
	Get(ctx context.Context, id string) (model.RetryableCall, error)
}

// TaskRunner 定时任务状态与手动触发
type TaskRunner interface {
	Status() []scheduler.TaskStatus
	RunNow(ctx context.Context, name string) (task.TaskResult, error)
}

// ClickRecorder 关键词点击计数
type ClickRecorder interface {
	IncrementClicks(ctx context.Context, keyword string, day time.Time, delta int64) error
}

// Dependencies 处理器依赖，nil 字段对应的路由不注册
type Dependencies struct {
	Counters     *monitoring.Counters
	Thresholds   monitoring.Thresholds
	Engine       BatchRunner
	BatchTimeout time.Duration
	Trends       TrendReader
	Cache        CacheInvalidator
	Prices       PriceTracker
	Calls        CallReader
	Tasks        TaskRunner
	Clicks       ClickRecorder
}
