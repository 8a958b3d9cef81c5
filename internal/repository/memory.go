package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"shoptrend/internal/model"
)

type sampleKey struct {
	keyword string
	day     time.Time
}

type aggregationKey struct {
	keyword string
	day     time.Time
	typ     model.AggregationType
}

// MemoryStore 进程内存储，实现趋势、价格与调用记录的全部存储接口
//
// 用于本地运行与测试，语义与 Mongo/SQL 实现一致。
type MemoryStore struct {
	mu           sync.RWMutex
	samples      map[sampleKey]model.TrendSample
	aggregations map[aggregationKey]model.TrendAggregation
	prices       []model.PriceObservation
	nextPriceID  int64
	calls        map[string]model.RetryableCall
	now          func() time.Time
}

// NewMemoryStore 创建进程内存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		samples:      make(map[sampleKey]model.TrendSample),
		aggregations: make(map[aggregationKey]model.TrendAggregation),
		calls:        make(map[string]model.RetryableCall),
		now:          time.Now,
	}
}

// UpsertSamples 按 (keyword, date) 覆盖样本，点击数取较大值
func (s *MemoryStore) UpsertSamples(_ context.Context, samples []model.TrendSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sample := range samples {
		sample = sample.Normalize()
		if err := sample.Validate(); err != nil {
			return err
		}
		key := sampleKey{sample.Keyword, sample.Date}
		if existing, ok := s.samples[key]; ok && existing.ClickCount > sample.ClickCount {
			sample.ClickCount = existing.ClickCount
		}
		s.samples[key] = sample
	}
	return nil
}

// SamplesBetween 返回 [from, to] 日期范围内（含两端）的样本，按日期升序
func (s *MemoryStore) SamplesBetween(_ context.Context, keyword string, from, to time.Time) ([]model.TrendSample, error) {
	keyword = model.NormalizeKeyword(keyword)
	from, to = model.DayOf(from), model.DayOf(to)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.TrendSample
	for key, sample := range s.samples {
		if key.keyword != keyword || key.day.Before(from) || key.day.After(to) {
			continue
		}
		out = append(out, sample)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// IncrementClicks 累加某天的点击数，样本不存在时以 0 比率创建
func (s *MemoryStore) IncrementClicks(_ context.Context, keyword string, day time.Time, delta int64) error {
	keyword = model.NormalizeKeyword(keyword)
	if keyword == "" {
		return fmt.Errorf("%w: keyword is empty", model.ErrValidation)
	}
	if delta < 0 {
		return fmt.Errorf("%w: click delta must not be negative", model.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := sampleKey{keyword, model.DayOf(day)}
	sample, ok := s.samples[key]
	if !ok {
		sample = model.TrendSample{Keyword: keyword, Date: key.day}
	}
	sample.ClickCount += delta
	s.samples[key] = sample
	return nil
}

// Keywords 所有出现过样本的关键词，按字典序
func (s *MemoryStore) Keywords(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for key := range s.samples {
		seen[key.keyword] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// UpsertAggregation 按 (keyword, aggregationDate, type) 覆盖
func (s *MemoryStore) UpsertAggregation(_ context.Context, agg model.TrendAggregation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg.Keyword = model.NormalizeKeyword(agg.Keyword)
	agg.AggregationDate = model.DayOf(agg.AggregationDate)
	agg.UpdatedAt = s.now().UTC()
	s.aggregations[aggregationKey{agg.Keyword, agg.AggregationDate, agg.Type}] = agg
	return nil
}

// Aggregations 按条件查询，按聚合日期倒序
func (s *MemoryStore) Aggregations(_ context.Context, f model.AggregationFilter) ([]model.TrendAggregation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.TrendAggregation
	for _, agg := range s.aggregations {
		if f.Matches(agg) {
			out = append(out, agg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AggregationDate.Equal(out[j].AggregationDate) {
			return out[i].AggregationDate.After(out[j].AggregationDate)
		}
		if out[i].Keyword != out[j].Keyword {
			return out[i].Keyword < out[j].Keyword
		}
		return out[i].Type < out[j].Type
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// LatestPrice 商品 RecordedAt 最新的价格观测，时间相同时取 ID 较大者
func (s *MemoryStore) LatestPrice(_ context.Context, productID int64) (model.PriceObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest model.PriceObservation
		found  bool
	)
	for _, obs := range s.prices {
		if obs.ProductID != productID {
			continue
		}
		if !found || newerPrice(obs, latest) {
			latest, found = obs, true
		}
	}
	if !found {
		return model.PriceObservation{}, fmt.Errorf("price of product %d: %w", productID, model.ErrNotFound)
	}
	return latest, nil
}

// AppendPrice 追加价格观测
func (s *MemoryStore) AppendPrice(_ context.Context, obs model.PriceObservation) (model.PriceObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextPriceID++
	obs.ID = s.nextPriceID
	s.prices = append(s.prices, obs)
	return obs, nil
}

// PriceHistory 商品价格历史，按 RecordedAt 倒序
func (s *MemoryStore) PriceHistory(_ context.Context, productID int64, limit int) ([]model.PriceObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.PriceObservation
	for _, obs := range s.prices {
		if obs.ProductID == productID {
			out = append(out, obs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return newerPrice(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newerPrice(a, b model.PriceObservation) bool {
	if !a.RecordedAt.Equal(b.RecordedAt) {
		return a.RecordedAt.After(b.RecordedAt)
	}
	return a.ID > b.ID
}

// CreateCall 保存新调用记录
func (s *MemoryStore) CreateCall(_ context.Context, call model.RetryableCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calls[call.ID]; ok {
		return fmt.Errorf("%w: call %s already exists", model.ErrValidation, call.ID)
	}
	s.calls[call.ID] = cloneCall(call)
	return nil
}

// GetCall 读取调用记录
func (s *MemoryStore) GetCall(_ context.Context, id string) (model.RetryableCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	call, ok := s.calls[id]
	if !ok {
		return model.RetryableCall{}, fmt.Errorf("call %s: %w", id, model.ErrNotFound)
	}
	return cloneCall(call), nil
}

// UpdateCall 更新调用记录
func (s *MemoryStore) UpdateCall(_ context.Context, call model.RetryableCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calls[call.ID]; !ok {
		return fmt.Errorf("call %s: %w", call.ID, model.ErrNotFound)
	}
	s.calls[call.ID] = cloneCall(call)
	return nil
}

func cloneCall(c model.RetryableCall) model.RetryableCall {
	if c.Params != nil {
		params := make(map[string]string, len(c.Params))
		for k, v := range c.Params {
			params[k] = v
		}
		c.Params = params
	}
	return c
}
