package aggregation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shoptrend/internal/cache"
	"shoptrend/internal/model"
)

// FetchCallName 趋势源调用在调用记录中的名称
const FetchCallName = "trend_source.fetch"

// Store 趋势样本与聚合结果存储
type Store interface {
	UpsertSamples(ctx context.Context, samples []model.TrendSample) error
	SamplesBetween(ctx context.Context, keyword string, from, to time.Time) ([]model.TrendSample, error)
	UpsertAggregation(ctx context.Context, agg model.TrendAggregation) error
	Aggregations(ctx context.Context, f model.AggregationFilter) ([]model.TrendAggregation, error)
	Keywords(ctx context.Context) ([]string, error)
	IncrementClicks(ctx context.Context, keyword string, day time.Time, delta int64) error
}

// SampleFetcher 外部趋势数据源
type SampleFetcher interface {
	FetchSamples(ctx context.Context, keyword string, from, to time.Time) ([]model.TrendSample, error)
}

// CallTracker 外部调用跟踪与重试
type CallTracker interface {
	Execute(ctx context.Context, name string, params map[string]string, retries int, fn func(context.Context) (string, error)) (string, error)
}

// Invalidator 缓存失效
type Invalidator interface {
	Invalidate(ctx context.Context, scope cache.Scope) (int64, error)
}

// Metrics 聚合相关计数
type Metrics interface {
	RecordAggregationSuccess()
	RecordAggregationFailure()
	RecordBatchJobSuccess()
	RecordBatchJobFailure()
	IncrementActiveBatchJobs()
	DecrementActiveBatchJobs()
}

// Options 聚合引擎配置
type Options struct {
	Workers       int
	Epsilon       decimal.Decimal
	SourceTimeout time.Duration
	SourceRetries int
}

// KeywordFailure 单个关键词的失败原因
type KeywordFailure struct {
	Keyword string `json:"keyword"`
	Error   string `json:"error"`
}

// BatchResult 一批关键词的聚合结果
type BatchResult struct {
	Type         model.AggregationType    `json:"type"`
	AsOf         time.Time                `json:"as_of"`
	Window       Window                   `json:"window"`
	Aggregations []model.TrendAggregation `json:"aggregations"`
	Failures     []KeywordFailure         `json:"failures"`
	StartedAt    time.Time                `json:"started_at"`
	FinishedAt   time.Time                `json:"finished_at"`
}

// Failed 是否存在失败的关键词
func (r *BatchResult) Failed() bool {
	return len(r.Failures) > 0
}

// Engine 趋势聚合引擎
//
// 同一批次内的关键词并行处理，单个关键词失败只记录在 BatchResult.Failures 中，不影响其他关键词。
type Engine struct {
	store   Store
	fetcher SampleFetcher
	tracker CallTracker
	cache   Invalidator
	metrics Metrics
	opts    Options
	logger  *zap.Logger
	now     func() time.Time
}

// NewEngine 创建聚合引擎
func NewEngine(store Store, metrics Metrics, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.SourceRetries > model.MaxRetryCount {
		opts.SourceRetries = model.MaxRetryCount
	}
	return &Engine{
		store:   store,
		metrics: metrics,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// WithFetcher 配置外部趋势源，tracker 可为 nil
func (e *Engine) WithFetcher(fetcher SampleFetcher, tracker CallTracker) *Engine {
	e.fetcher = fetcher
	e.tracker = tracker
	return e
}

// WithCache 配置聚合完成后的缓存失效
func (e *Engine) WithCache(inv Invalidator) *Engine {
	e.cache = inv
	return e
}

// Aggregate 聚合一批关键词，整批成功或失败各计一次
func (e *Engine) Aggregate(ctx context.Context, keywords []string, t model.AggregationType, asOf time.Time) (*BatchResult, error) {
	result, err := e.run(ctx, keywords, t, asOf)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordAggregationFailure()
		}
		return nil, err
	}
	if e.metrics != nil {
		if result.Failed() {
			e.metrics.RecordAggregationFailure()
		} else {
			e.metrics.RecordAggregationSuccess()
		}
	}
	return result, nil
}

// RunBatchJob 以批处理任务的形式执行聚合，维护活跃任务数与批处理计数
func (e *Engine) RunBatchJob(ctx context.Context, keywords []string, t model.AggregationType, asOf time.Time) (*BatchResult, error) {
	if e.metrics != nil {
		e.metrics.IncrementActiveBatchJobs()
		defer e.metrics.DecrementActiveBatchJobs()
	}

	result, err := e.run(ctx, keywords, t, asOf)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordBatchJobFailure()
		}
		return nil, err
	}

	if e.metrics != nil {
		if result.Failed() {
			e.metrics.RecordBatchJobFailure()
		} else {
			e.metrics.RecordBatchJobSuccess()
		}
	}

	e.logger.Info("聚合批处理完成",
		zap.String("type", string(t)),
		zap.Time("as_of", result.AsOf),
		zap.Int("succeeded", len(result.Aggregations)),
		zap.Int("failed", len(result.Failures)),
		zap.Duration("duration", result.FinishedAt.Sub(result.StartedAt)),
	)
	return result, nil
}

func (e *Engine) run(ctx context.Context, keywords []string, t model.AggregationType, asOf time.Time) (*BatchResult, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown aggregation type %q", model.ErrValidation, t)
	}
	if asOf.IsZero() {
		asOf = e.now()
	}
	current, previous, err := Windows(t, asOf)
	if err != nil {
		return nil, err
	}

	keywords = dedupe(keywords)
	result := &BatchResult{
		Type:      t,
		AsOf:      current.End,
		Window:    current,
		StartedAt: e.now(),
	}

	aggs := make([]*model.TrendAggregation, len(keywords))
	errs := make([]error, len(keywords))

	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for i, kw := range keywords {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			agg, err := e.aggregateKeyword(ctx, kw, t, current, previous)
			if err != nil {
				errs[i] = err
				return nil
			}
			aggs[i] = &agg
			return nil
		})
	}
	_ = g.Wait()

	for i, kw := range keywords {
		if errs[i] != nil {
			e.logger.Warn("关键词聚合失败",
				zap.String("keyword", kw),
				zap.String("type", string(t)),
				zap.Error(errs[i]))
			result.Failures = append(result.Failures, KeywordFailure{Keyword: kw, Error: errs[i].Error()})
			continue
		}
		result.Aggregations = append(result.Aggregations, *aggs[i])
	}
	result.FinishedAt = e.now()
	return result, nil
}

func (e *Engine) aggregateKeyword(ctx context.Context, keyword string, t model.AggregationType, current, previous Window) (model.TrendAggregation, error) {
	if e.fetcher != nil {
		fetched, err := e.fetch(ctx, keyword, t, previous.Start, current.End)
		if err != nil {
			return model.TrendAggregation{}, err
		}
		if err := e.store.UpsertSamples(ctx, fetched); err != nil {
			return model.TrendAggregation{}, fmt.Errorf("save samples: %w", err)
		}
	}

	samples, err := e.store.SamplesBetween(ctx, keyword, previous.Start, current.End)
	if err != nil {
		return model.TrendAggregation{}, fmt.Errorf("load samples: %w", err)
	}

	var cur, prev []model.TrendSample
	for _, s := range samples {
		switch {
		case current.Contains(s.Date):
			cur = append(cur, s)
		case previous.Contains(s.Date):
			prev = append(prev, s)
		}
	}

	agg := Build(keyword, t, current, Rollup(cur), Rollup(prev), e.opts.Epsilon)
	if err := e.store.UpsertAggregation(ctx, agg); err != nil {
		return model.TrendAggregation{}, fmt.Errorf("save aggregation: %w", err)
	}
	agg.UpdatedAt = e.now().UTC()

	if e.cache != nil {
		if _, err := e.cache.Invalidate(ctx, cache.ScopeKeyword(keyword)); err != nil {
			e.logger.Warn("聚合后缓存失效失败", zap.String("keyword", keyword), zap.Error(err))
		}
	}
	return agg, nil
}

func (e *Engine) fetch(ctx context.Context, keyword string, t model.AggregationType, from, to time.Time) ([]model.TrendSample, error) {
	var fetched []model.TrendSample
	call := func(ctx context.Context) (string, error) {
		if e.opts.SourceTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.opts.SourceTimeout)
			defer cancel()
		}
		samples, err := e.fetcher.FetchSamples(ctx, keyword, from, to)
		if err != nil {
			return "", err
		}
		fetched = samples
		return strconv.Itoa(len(samples)) + " samples", nil
	}

	var err error
	if e.tracker != nil {
		params := map[string]string{
			"keyword": keyword,
			"type":    string(t),
			"from":    from.Format(time.DateOnly),
			"to":      to.Format(time.DateOnly),
		}
		_, err = e.tracker.Execute(ctx, FetchCallName, params, e.opts.SourceRetries, call)
	} else {
		_, err = call(ctx)
	}
	if err != nil {
		if errors.Is(err, model.ErrExternalSource) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: fetch %q: %w", model.ErrExternalSource, keyword, err)
	}
	return fetched, nil
}

func dedupe(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = model.NormalizeKeyword(kw)
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
