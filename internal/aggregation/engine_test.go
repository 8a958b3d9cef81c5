package aggregation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoptrend/internal/cache"
	"shoptrend/internal/calltracker"
	"shoptrend/internal/model"
	"shoptrend/internal/monitoring"
	"shoptrend/internal/repository"
)

var asOf = time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *repository.MemoryStore, keyword string, from time.Time, days int, ratio string) {
	t.Helper()
	var samples []model.TrendSample
	for i := 0; i < days; i++ {
		samples = append(samples, model.TrendSample{Keyword: keyword, Date: from.AddDate(0, 0, i), Ratio: d(ratio), ClickCount: 2})
	}
	require.NoError(t, store.UpsertSamples(context.Background(), samples))
}

func newTestEngine(store Store, counters *monitoring.Counters) *Engine {
	var metrics Metrics
	if counters != nil {
		metrics = counters
	}
	return NewEngine(store, metrics, Options{Workers: 3, Epsilon: d("0.5")}, nil)
}

func TestEngine_WeeklyRising(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store, "shoes", date(5, 1), 7, "10")
	seed(t, store, "shoes", date(5, 8), 7, "12")
	counters := monitoring.NewCounters()

	res, err := newTestEngine(store, counters).Aggregate(context.Background(), []string{"shoes"}, model.AggregationWeekly, asOf)
	require.NoError(t, err)
	require.False(t, res.Failed())
	require.Len(t, res.Aggregations, 1)

	agg := res.Aggregations[0]
	assert.Equal(t, 7, agg.SampleCount)
	assert.True(t, agg.AvgRatio.Equal(d("12")))
	assert.True(t, agg.TotalRatio.Equal(d("84")))
	assert.Equal(t, int64(14), agg.TotalClickCount)
	assert.Equal(t, model.DirectionRising, agg.Direction)
	assert.True(t, agg.Strength.Equal(d("20")))

	stored, err := store.Aggregations(context.Background(), model.AggregationFilter{Keyword: "shoes", Type: model.AggregationWeekly})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, date(5, 14), stored[0].AggregationDate)

	s := counters.Snapshot()
	assert.Equal(t, int64(1), s.AggregationSuccessCount)
	assert.Zero(t, s.BatchJobSuccessCount)
}

func TestEngine_DailyWithinEpsilonIsStable(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store, "shoes", date(5, 13), 1, "50")
	seed(t, store, "shoes", date(5, 14), 1, "50.3")

	res, err := newTestEngine(store, nil).Aggregate(context.Background(), []string{"shoes"}, model.AggregationDaily, asOf)
	require.NoError(t, err)
	require.Len(t, res.Aggregations, 1)
	assert.Equal(t, model.DirectionStable, res.Aggregations[0].Direction)
	assert.True(t, res.Aggregations[0].Strength.Equal(d("0.6")))
}

func TestEngine_EmptyCurrentWindowFalls(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store, "shoes", date(5, 1), 7, "30")

	res, err := newTestEngine(store, nil).Aggregate(context.Background(), []string{"shoes"}, model.AggregationWeekly, asOf)
	require.NoError(t, err)
	agg := res.Aggregations[0]
	assert.Equal(t, 0, agg.SampleCount)
	assert.True(t, agg.AvgRatio.IsZero())
	assert.Equal(t, model.DirectionFalling, agg.Direction)
}

func TestEngine_NoHistoryIsStable(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store, "shoes", date(5, 14), 1, "80")

	res, err := newTestEngine(store, nil).Aggregate(context.Background(), []string{"shoes"}, model.AggregationDaily, asOf)
	require.NoError(t, err)
	assert.Equal(t, model.DirectionStable, res.Aggregations[0].Direction)
	assert.True(t, res.Aggregations[0].Strength.IsZero())
}

func TestEngine_InvalidType(t *testing.T) {
	counters := monitoring.NewCounters()
	_, err := newTestEngine(repository.NewMemoryStore(), counters).RunBatchJob(context.Background(), []string{"k"}, "YEARLY", asOf)
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Zero(t, counters.Snapshot().ActiveBatchJobs)
	assert.Equal(t, int64(1), counters.Snapshot().BatchJobFailureCount)

	counters.Reset()
	_, err = newTestEngine(repository.NewMemoryStore(), counters).Aggregate(context.Background(), []string{"k"}, "HOURLY", asOf)
	assert.ErrorIs(t, err, model.ErrValidation)
	s := counters.Snapshot()
	assert.Equal(t, int64(1), s.AggregationFailureCount)
	assert.Zero(t, s.AggregationSuccessCount)
	assert.Equal(t, int64(1), s.ConsecutiveFailures)
}

func TestEngine_DedupesKeywords(t *testing.T) {
	res, err := newTestEngine(repository.NewMemoryStore(), nil).Aggregate(context.Background(),
		[]string{"shoes", " shoes", "", "  ", "bags"}, model.AggregationDaily, asOf)
	require.NoError(t, err)
	require.Len(t, res.Aggregations, 2)
	assert.Equal(t, "shoes", res.Aggregations[0].Keyword)
	assert.Equal(t, "bags", res.Aggregations[1].Keyword)
}

type stubFetcher struct {
	slow  string
	calls atomic.Int32
}

func (f *stubFetcher) FetchSamples(ctx context.Context, keyword string, from, to time.Time) ([]model.TrendSample, error) {
	f.calls.Add(1)
	if keyword == f.slow {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []model.TrendSample{{Keyword: keyword, Date: to, Ratio: d("10")}}, nil
}

func TestEngine_BatchIsolatesTimedOutKeyword(t *testing.T) {
	store := repository.NewMemoryStore()
	counters := monitoring.NewCounters()
	fetcher := &stubFetcher{slow: "k3"}
	engine := NewEngine(store, counters, Options{
		Workers:       5,
		Epsilon:       d("0.5"),
		SourceTimeout: 50 * time.Millisecond,
	}, nil).WithFetcher(fetcher, calltracker.New(store, nil))

	res, err := engine.RunBatchJob(context.Background(), []string{"k1", "k2", "k3", "k4", "k5"}, model.AggregationDaily, asOf)
	require.NoError(t, err)

	assert.Len(t, res.Aggregations, 4)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "k3", res.Failures[0].Keyword)
	assert.True(t, res.Failed())
	for _, agg := range res.Aggregations {
		assert.Equal(t, 1, agg.SampleCount)
	}

	s := counters.Snapshot()
	assert.Equal(t, int64(1), s.BatchJobFailureCount)
	assert.Equal(t, int64(1), s.AggregationFailureCount)
	assert.Equal(t, int64(1), s.ConsecutiveFailures)
	assert.Zero(t, s.ActiveBatchJobs)
}

type flakyFetcher struct {
	failures int
	calls    int
}

func (f *flakyFetcher) FetchSamples(_ context.Context, keyword string, _, to time.Time) ([]model.TrendSample, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("503 service unavailable")
	}
	return []model.TrendSample{{Keyword: keyword, Date: to, Ratio: d("5")}}, nil
}

func TestEngine_FetchRetriesThroughTracker(t *testing.T) {
	store := repository.NewMemoryStore()
	fetcher := &flakyFetcher{failures: 2}
	engine := NewEngine(store, nil, Options{Workers: 1, SourceRetries: 2}, nil).
		WithFetcher(fetcher, calltracker.New(store, nil))

	res, err := engine.Aggregate(context.Background(), []string{"shoes"}, model.AggregationDaily, asOf)
	require.NoError(t, err)
	assert.False(t, res.Failed())
	assert.Equal(t, 3, fetcher.calls)

	fetcher = &flakyFetcher{failures: 5}
	engine = NewEngine(store, nil, Options{Workers: 1, SourceRetries: 1}, nil).WithFetcher(fetcher, nil)
	res, err = engine.Aggregate(context.Background(), []string{"shoes"}, model.AggregationDaily, asOf)
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0].Error, model.ErrExternalSource.Error())
	assert.Equal(t, 1, fetcher.calls)
}

func TestEngine_CancelledBatchRecordsFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	counters := monitoring.NewCounters()
	res, err := newTestEngine(repository.NewMemoryStore(), counters).RunBatchJob(ctx, []string{"a", "b", "c"}, model.AggregationDaily, asOf)
	require.NoError(t, err)
	assert.Empty(t, res.Aggregations)
	assert.Len(t, res.Failures, 3)
	assert.Equal(t, int64(1), counters.Snapshot().BatchJobFailureCount)
}

func TestEngine_InvalidatesCacheForKeyword(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	layer := cache.NewLayer(cache.NewMemoryStore(), cache.Options{DefaultTTL: time.Hour}, nil, nil)
	shoes := cache.NewQuery("shoes", model.AggregationWeekly)
	bags := cache.NewQuery("bags", model.AggregationWeekly)
	layer.Put(ctx, shoes, []byte("stale"), 0)
	layer.Put(ctx, bags, []byte("fresh"), 0)

	_, err := newTestEngine(store, nil).WithCache(layer).Aggregate(ctx, []string{"shoes"}, model.AggregationDaily, asOf)
	require.NoError(t, err)

	_, ok := layer.Get(ctx, shoes)
	assert.False(t, ok)
	_, ok = layer.Get(ctx, bags)
	assert.True(t, ok)
}

func TestEngine_ManyKeywordsBoundedWorkers(t *testing.T) {
	store := repository.NewMemoryStore()
	var keywords []string
	for i := 0; i < 40; i++ {
		kw := fmt.Sprintf("kw-%02d", i)
		keywords = append(keywords, kw)
		seed(t, store, kw, date(5, 14), 1, "1")
	}

	res, err := newTestEngine(store, nil).Aggregate(context.Background(), keywords, model.AggregationDaily, asOf)
	require.NoError(t, err)
	require.Len(t, res.Aggregations, 40)
	for i, agg := range res.Aggregations {
		assert.Equal(t, keywords[i], agg.Keyword)
	}
}
