package aggregation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"shoptrend/internal/cache"
	"shoptrend/internal/model"
)

// DefaultQueryLimit 默认返回的聚合条数
const DefaultQueryLimit = 30

// AggregationReader 聚合结果读取
type AggregationReader interface {
	Aggregations(ctx context.Context, f model.AggregationFilter) ([]model.TrendAggregation, error)
}

// TrendQuery 趋势查询参数
type TrendQuery struct {
	Keyword string
	Type    model.AggregationType
	From    time.Time
	To      time.Time
	Limit   int
}

// QueryService 聚合结果查询，旁路缓存
type QueryService struct {
	reader AggregationReader
	cache  *cache.Layer
	ttl    time.Duration
	logger *zap.Logger
}

// NewQueryService 创建查询服务，layer 为 nil 时不使用缓存
func NewQueryService(reader AggregationReader, layer *cache.Layer, ttl time.Duration, logger *zap.Logger) *QueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryService{reader: reader, cache: layer, ttl: ttl, logger: logger}
}

// Trends 查询关键词的聚合结果，类型为空时按 DAILY 查询
func (s *QueryService) Trends(ctx context.Context, q TrendQuery) ([]model.TrendAggregation, error) {
	q.Keyword = model.NormalizeKeyword(q.Keyword)
	if q.Keyword == "" {
		return nil, fmt.Errorf("%w: keyword is required", model.ErrValidation)
	}
	if q.Type == "" {
		q.Type = model.AggregationDaily
	}
	if !q.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown aggregation type %q", model.ErrValidation, q.Type)
	}
	if q.Limit <= 0 {
		q.Limit = DefaultQueryLimit
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		return nil, fmt.Errorf("%w: from is after to", model.ErrValidation)
	}

	key := cacheQuery(q)
	if s.cache != nil {
		var cached []model.TrendAggregation
		if s.cache.GetJSON(ctx, key, &cached) {
			return cached, nil
		}
	}

	aggs, err := s.reader.Aggregations(ctx, model.AggregationFilter{
		Keyword: q.Keyword,
		Type:    q.Type,
		From:    q.From,
		To:      q.To,
		Limit:   q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("load aggregations: %w", err)
	}
	if aggs == nil {
		aggs = []model.TrendAggregation{}
	}

	if s.cache != nil {
		s.cache.PutJSON(ctx, key, aggs, s.ttl)
	}
	return aggs, nil
}

func cacheQuery(q TrendQuery) cache.Query {
	cq := cache.NewQuery(q.Keyword, q.Type).Paged(0, q.Limit)
	if !q.From.IsZero() {
		cq = cq.With("from", model.DayOf(q.From).Format(time.DateOnly))
	}
	if !q.To.IsZero() {
		cq = cq.With("to", model.DayOf(q.To).Format(time.DateOnly))
	}
	return cq
}
