package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoptrend/internal/aggregation"
	"shoptrend/internal/cache"
	"shoptrend/internal/calltracker"
	"shoptrend/internal/config"
	"shoptrend/internal/model"
	"shoptrend/internal/monitoring"
	"shoptrend/internal/pricing"
	"shoptrend/internal/repository"
	"shoptrend/internal/scheduler"
	"shoptrend/internal/server/handlers"
	"shoptrend/internal/task"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type testTask struct {
	name string
	err  error
}

func (t testTask) Name() string              { return t.name }
func (t testTask) Schedule() string          { return "@every 1h" }
func (t testTask) Run(context.Context) error { return t.err }
func (t testTask) Timeout() time.Duration    { return time.Second }
func (t testTask) Enabled() bool             { return true }

type fixture struct {
	store    *repository.MemoryStore
	counters *monitoring.Counters
	layer    *cache.Layer
	tracker  *calltracker.Tracker
	handler  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	counters := monitoring.NewCounters()
	layer := cache.NewLayer(cache.NewMemoryStore(), cache.Options{DefaultTTL: time.Minute}, counters, nil)
	tracker := calltracker.New(store, nil)

	engine := aggregation.NewEngine(store, counters, aggregation.Options{
		Workers: 2,
		Epsilon: decimal.RequireFromString("0.5"),
	}, nil).WithCache(layer)

	registry := task.NewTaskRegistry()
	require.NoError(t, registry.Register(testTask{name: "ok"}))
	require.NoError(t, registry.Register(testTask{name: "broken", err: errors.New("source down")}))
	sched := scheduler.NewScheduler(scheduler.Config{Registry: registry, Location: time.UTC})

	srv := NewServer(&config.ServerConfig{Enabled: false, Mode: gin.TestMode}, nil, handlers.Dependencies{
		Counters:     counters,
		Thresholds:   monitoring.Thresholds{MaxConsecutiveFailures: 1},
		Engine:       engine,
		BatchTimeout: time.Minute,
		Trends:       aggregation.NewQueryService(store, layer, time.Minute, nil),
		Cache:        layer,
		Prices:       pricing.NewService(store, pricing.Options{}, nil),
		Calls:        tracker,
		Tasks:        sched,
		Clicks:       store,
	})

	return &fixture{store: store, counters: counters, layer: layer, tracker: tracker, handler: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestMonitoringEndpoints(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(t, http.MethodGet, "/api/v1/monitoring/snapshot", nil)
	require.Equal(t, http.StatusOK, code)
	var snap monitoring.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Zero(t, snap.RequestCount) // 中间件在处理完成后计数

	code, _ = f.do(t, http.MethodGet, "/api/v1/monitoring/health", nil)
	assert.Equal(t, http.StatusOK, code)

	f.counters.RecordBatchJobFailure()
	f.counters.RecordBatchJobFailure()
	code, env = f.do(t, http.MethodGet, "/api/v1/monitoring/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	var health monitoring.Health
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.False(t, health.Healthy)
	assert.Len(t, health.Problems, 1)

	code, env = f.do(t, http.MethodPost, "/api/v1/monitoring/reset", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Zero(t, snap.ConsecutiveFailures)
	assert.Zero(t, snap.RequestCount)

	assert.Equal(t, int64(1), f.counters.Snapshot().RequestCount)
}

func TestAggregationAndTrends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asOf := time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.UpsertSamples(ctx, []model.TrendSample{
		{Keyword: "shoes", Date: asOf.AddDate(0, 0, -1), Ratio: decimal.NewFromInt(40)},
		{Keyword: "shoes", Date: asOf, Ratio: decimal.NewFromInt(20)},
	}))

	code, env := f.do(t, http.MethodPost, "/api/v1/aggregations/daily/run",
		handlers.RunAggregationRequest{Keywords: []string{"shoes"}, AsOf: "2024-05-14"})
	require.Equal(t, http.StatusOK, code, env.Error)
	var result aggregation.BatchResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Len(t, result.Aggregations, 1)
	assert.Equal(t, model.DirectionFalling, result.Aggregations[0].Direction)

	path := "/api/v1/trends?keyword=shoes&type=DAILY"
	code, env = f.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, code)
	var aggs []model.TrendAggregation
	require.NoError(t, json.Unmarshal(env.Data, &aggs))
	require.Len(t, aggs, 1)

	_, _ = f.do(t, http.MethodGet, path, nil)
	s := f.counters.Snapshot()
	assert.Equal(t, int64(1), s.CacheMissCount)
	assert.Equal(t, int64(1), s.CacheHitCount)
	assert.Equal(t, int64(1), s.BatchJobSuccessCount)

	code, env = f.do(t, http.MethodDelete, "/api/v1/cache?scope=keyword&value=shoes", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"deleted":1`)
}

func TestAggregationValidation(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(t, http.MethodPost, "/api/v1/aggregations/yearly/run",
		handlers.RunAggregationRequest{Keywords: []string{"shoes"}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, http.StatusBadRequest, env.Code)

	code, _ = f.do(t, http.MethodPost, "/api/v1/aggregations/daily/run", handlers.RunAggregationRequest{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodGet, "/api/v1/trends", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodGet, "/api/v1/trends?keyword=shoes&from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodDelete, "/api/v1/cache?scope=galaxy", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPriceEndpoints(t *testing.T) {
	f := newFixture(t)

	code, _ := f.do(t, http.MethodPost, "/api/v1/prices", map[string]interface{}{"product_id": 7, "price": "19.90"})
	require.Equal(t, http.StatusCreated, code)

	code, env := f.do(t, http.MethodPost, "/api/v1/prices", map[string]interface{}{"product_id": 7, "price": "17.50"})
	require.Equal(t, http.StatusCreated, code)
	var obs model.PriceObservation
	require.NoError(t, json.Unmarshal(env.Data, &obs))
	assert.Equal(t, model.PriceDown, obs.PriceChange)

	code, _ = f.do(t, http.MethodPost, "/api/v1/prices", map[string]interface{}{"product_id": 7, "price": "-1"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/api/v1/prices", map[string]interface{}{"product_id": 7})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = f.do(t, http.MethodGet, "/api/v1/prices/7", nil)
	require.Equal(t, http.StatusOK, code)
	var history []model.PriceObservation
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Len(t, history, 2)

	code, _ = f.do(t, http.MethodGet, "/api/v1/prices/abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRecordClick(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(t, http.MethodPost, "/api/v1/clicks", map[string]interface{}{
		"keyword": " shoes ", "date": "2024-05-14", "count": 3, "product_id": 9, "price": 12,
	})
	require.Equal(t, http.StatusOK, code, env.Error)
	var resp handlers.RecordClickResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "shoes", resp.Keyword)
	require.NotNil(t, resp.Price)
	assert.Equal(t, int64(9), resp.Price.ProductID)

	day := time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC)
	samples, err := f.store.SamplesBetween(context.Background(), "shoes", day, day)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, int64(3), samples[0].ClickCount)

	code, _ = f.do(t, http.MethodPost, "/api/v1/clicks", map[string]interface{}{"keyword": " "})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGetCall(t *testing.T) {
	f := newFixture(t)
	id, err := f.tracker.Start(context.Background(), "trend_source.fetch", map[string]string{"keyword": "shoes"})
	require.NoError(t, err)

	code, env := f.do(t, http.MethodGet, "/api/v1/calls/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	var call model.RetryableCall
	require.NoError(t, json.Unmarshal(env.Data, &call))
	assert.Equal(t, model.CallPending, call.Status)

	code, env = f.do(t, http.MethodGet, "/api/v1/calls/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, http.StatusNotFound, env.Code)
}

func TestTaskEndpoints(t *testing.T) {
	f := newFixture(t)

	code, env := f.do(t, http.MethodGet, "/api/v1/tasks", nil)
	require.Equal(t, http.StatusOK, code)
	var status []scheduler.TaskStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	require.Len(t, status, 2)
	assert.Equal(t, "broken", status[0].Name)

	code, env = f.do(t, http.MethodPost, "/api/v1/tasks/ok/run", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", env.Message)

	code, env = f.do(t, http.MethodPost, "/api/v1/tasks/broken/run", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "task failed", env.Message)
	assert.Contains(t, string(env.Data), "source down")

	code, _ = f.do(t, http.MethodPost, "/api/v1/tasks/nope/run", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusConflict, handlers.StatusOf(model.ErrExhaustedRetries))
	assert.Equal(t, http.StatusConflict, handlers.StatusOf(task.ErrTaskRunning))
	assert.Equal(t, http.StatusInternalServerError, handlers.StatusOf(model.ErrExternalSource))
	assert.Equal(t, http.StatusOK, handlers.StatusOf(nil))
}
