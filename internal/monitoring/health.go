package monitoring

import "fmt"

// Thresholds 健康判定阈值，零值字段不参与判定
type Thresholds struct {
	MinCacheHitRate        float64
	MinCacheSamples        int64 // 缓存查询数达到该值后才检查命中率
	MaxConsecutiveFailures int64
	MaxResponseTimeMs      int64
}

// Health 健康判定结果
type Health struct {
	Healthy  bool     `json:"healthy"`
	Problems []string `json:"problems,omitempty"`
	Snapshot Snapshot `json:"snapshot"`
}

// Evaluate 根据阈值判定快照是否健康
func (t Thresholds) Evaluate(s Snapshot) Health {
	h := Health{Snapshot: s}

	if t.MinCacheHitRate > 0 && s.CacheLookups() > 0 && s.CacheLookups() >= t.MinCacheSamples &&
		s.CacheHitRate < t.MinCacheHitRate {
		h.Problems = append(h.Problems,
			fmt.Sprintf("cache hit rate %.4f below %.4f", s.CacheHitRate, t.MinCacheHitRate))
	}
	if t.MaxConsecutiveFailures > 0 && s.ConsecutiveFailures > t.MaxConsecutiveFailures {
		h.Problems = append(h.Problems,
			fmt.Sprintf("%d consecutive aggregation failures exceeds %d", s.ConsecutiveFailures, t.MaxConsecutiveFailures))
	}
	if t.MaxResponseTimeMs > 0 && s.MaxResponseTimeMs > t.MaxResponseTimeMs {
		h.Problems = append(h.Problems,
			fmt.Sprintf("max response time %dms exceeds %dms", s.MaxResponseTimeMs, t.MaxResponseTimeMs))
	}

	h.Healthy = len(h.Problems) == 0
	return h
}
