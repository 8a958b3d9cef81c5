package monitoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThresholds_Evaluate(t *testing.T) {
	th := Thresholds{
		MinCacheHitRate:        0.5,
		MinCacheSamples:        10,
		MaxConsecutiveFailures: 3,
		MaxResponseTimeMs:      1000,
	}

	tests := []struct {
		name     string
		snap     Snapshot
		healthy  bool
		problems int
	}{
		{name: "fresh process", snap: Snapshot{}, healthy: true},
		{name: "low hit rate but too few samples",
			snap: Snapshot{CacheHitCount: 1, CacheMissCount: 8, CacheHitRate: 1.0 / 9}, healthy: true},
		{name: "low hit rate",
			snap: Snapshot{CacheHitCount: 2, CacheMissCount: 8, CacheHitRate: 0.2}, problems: 1},
		{name: "failures at limit", snap: Snapshot{ConsecutiveFailures: 3}, healthy: true},
		{name: "failures over limit", snap: Snapshot{ConsecutiveFailures: 4}, problems: 1},
		{name: "everything wrong",
			snap:     Snapshot{CacheHitCount: 0, CacheMissCount: 20, ConsecutiveFailures: 9, MaxResponseTimeMs: 5000},
			problems: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := th.Evaluate(tt.snap)
			assert.Equal(t, tt.healthy, h.Healthy)
			assert.Len(t, h.Problems, tt.problems)
		})
	}
}

func TestThresholds_ZeroValueAlwaysHealthy(t *testing.T) {
	h := Thresholds{}.Evaluate(Snapshot{CacheMissCount: 100, ConsecutiveFailures: 100, MaxResponseTimeMs: 1 << 20})
	assert.True(t, h.Healthy)
}
