package monitoring

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot 某一时刻计数器的一致性读取结果
type Snapshot struct {
	RequestCount            int64     `json:"request_count"`
	CacheHitCount           int64     `json:"cache_hit_count"`
	CacheMissCount          int64     `json:"cache_miss_count"`
	CacheHitRate            float64   `json:"cache_hit_rate"`
	AggregationSuccessCount int64     `json:"aggregation_success_count"`
	AggregationFailureCount int64     `json:"aggregation_failure_count"`
	ConsecutiveFailures     int64     `json:"consecutive_failures"`
	BatchJobSuccessCount    int64     `json:"batch_job_success_count"`
	BatchJobFailureCount    int64     `json:"batch_job_failure_count"`
	ActiveBatchJobs         int64     `json:"active_batch_jobs"`
	MaxResponseTimeMs       int64     `json:"max_response_time_ms"`
	Since                   time.Time `json:"since"`
	Timestamp               time.Time `json:"timestamp"`
}

// CacheLookups 缓存命中与未命中总数
func (s Snapshot) CacheLookups() int64 {
	return s.CacheHitCount + s.CacheMissCount
}

// Counters 进程级监控计数器
//
// 所有写操作持有读锁并使用原子操作，Snapshot 和 Reset 持有写锁，
// 因此读取方不会观察到更新到一半或重置到一半的状态。
//
// MaxResponseTimeMs 只记录运行期最大值，不是平均值或分位数，是一个粗粒度信号。
type Counters struct {
	mu sync.RWMutex

	requestCount        atomic.Int64
	cacheHitCount       atomic.Int64
	cacheMissCount      atomic.Int64
	aggregationSuccess  atomic.Int64
	aggregationFailure  atomic.Int64
	consecutiveFailures atomic.Int64
	batchJobSuccess     atomic.Int64
	batchJobFailure     atomic.Int64
	activeBatchJobs     atomic.Int64
	maxResponseTimeMs   atomic.Int64

	since time.Time
	now   func() time.Time
}

// NewCounters 创建计数器
func NewCounters() *Counters {
	c := &Counters{now: time.Now}
	c.since = c.now()
	return c
}

// RecordRequest 请求计数加一
func (c *Counters) RecordRequest() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.requestCount.Add(1)
}

// RecordCacheHit 缓存命中计数加一
func (c *Counters) RecordCacheHit() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.cacheHitCount.Add(1)
}

// RecordCacheMiss 缓存未命中计数加一
func (c *Counters) RecordCacheMiss() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.cacheMissCount.Add(1)
}

// RecordAggregationSuccess 成功计数加一，连续失败清零
func (c *Counters) RecordAggregationSuccess() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.recordAggregationSuccess()
}

// RecordAggregationFailure 失败计数与连续失败计数各加一
func (c *Counters) RecordAggregationFailure() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.recordAggregationFailure()
}

// RecordBatchJobSuccess 批处理成功，同时计入聚合成功
func (c *Counters) RecordBatchJobSuccess() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.batchJobSuccess.Add(1)
	c.recordAggregationSuccess()
}

// RecordBatchJobFailure 批处理失败，同时计入聚合失败
func (c *Counters) RecordBatchJobFailure() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.batchJobFailure.Add(1)
	c.recordAggregationFailure()
}

func (c *Counters) recordAggregationSuccess() {
	c.aggregationSuccess.Add(1)
	c.consecutiveFailures.Store(0)
}

func (c *Counters) recordAggregationFailure() {
	c.aggregationFailure.Add(1)
	c.consecutiveFailures.Add(1)
}

// RecordResponseTime 记录响应时间，只保留最大值
func (c *Counters) RecordResponseTime(ms int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for {
		cur := c.maxResponseTimeMs.Load()
		if ms <= cur {
			return
		}
		if c.maxResponseTimeMs.CompareAndSwap(cur, ms) {
			return
		}
	}
}

// IncrementActiveBatchJobs 活跃批处理数加一
func (c *Counters) IncrementActiveBatchJobs() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.activeBatchJobs.Add(1)
}

// DecrementActiveBatchJobs 活跃批处理数减一，不会低于 0
func (c *Counters) DecrementActiveBatchJobs() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for {
		cur := c.activeBatchJobs.Load()
		if cur <= 0 {
			return
		}
		if c.activeBatchJobs.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// Snapshot 返回一致性快照
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		RequestCount:            c.requestCount.Load(),
		CacheHitCount:           c.cacheHitCount.Load(),
		CacheMissCount:          c.cacheMissCount.Load(),
		AggregationSuccessCount: c.aggregationSuccess.Load(),
		AggregationFailureCount: c.aggregationFailure.Load(),
		ConsecutiveFailures:     c.consecutiveFailures.Load(),
		BatchJobSuccessCount:    c.batchJobSuccess.Load(),
		BatchJobFailureCount:    c.batchJobFailure.Load(),
		ActiveBatchJobs:         c.activeBatchJobs.Load(),
		MaxResponseTimeMs:       c.maxResponseTimeMs.Load(),
		Since:                   c.since,
		Timestamp:               c.now(),
	}
	if lookups := s.CacheLookups(); lookups > 0 {
		s.CacheHitRate = float64(s.CacheHitCount) / float64(lookups)
	}
	return s
}

// Reset 将所有计数器清零
func (c *Counters) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestCount.Store(0)
	c.cacheHitCount.Store(0)
	c.cacheMissCount.Store(0)
	c.aggregationSuccess.Store(0)
	c.aggregationFailure.Store(0)
	c.consecutiveFailures.Store(0)
	c.batchJobSuccess.Store(0)
	c.batchJobFailure.Store(0)
	c.activeBatchJobs.Store(0)
	c.maxResponseTimeMs.Store(0)
	c.since = c.now()
}
