package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "shoptrend", cfg.App.Name)
	assert.Equal(t, "memory", cfg.Storage.Trend)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, 4, cfg.Aggregation.Workers)
	assert.Equal(t, 0.5, cfg.Aggregation.Epsilon)
	assert.Equal(t, 10*time.Second, cfg.Aggregation.SourceTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Database.MySQL.ConnMaxLifetime)
	assert.Equal(t, int64(100), cfg.Monitoring.MinCacheSamples)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
cache:
  backend: redis
  default_ttl: 90s
redis:
  enabled: true
  addr: cache:6379
aggregation:
  workers: 8
  keywords: ["running shoes", "rain boots"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("SHOPTREND_AGGREGATION_EPSILON", "1.25")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 90*time.Second, cfg.Cache.DefaultTTL)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 8, cfg.Aggregation.Workers)
	assert.Equal(t, []string{"running shoes", "rain boots"}, cfg.Aggregation.Keywords)
	assert.Equal(t, 1.25, cfg.Aggregation.Epsilon)
}

func TestLoad_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("cache:\n  default_ttl: soon\n"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.default_ttl")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Storage:     StorageConfig{Trend: "memory", Relational: "memory"},
			Cache:       CacheConfig{Backend: "memory"},
			Aggregation: AggregationConfig{Workers: 1, SourceRetries: 3},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"mongo not enabled", func(c *Config) { c.Storage.Trend = "mongodb" }},
		{"unknown trend store", func(c *Config) { c.Storage.Trend = "cassandra" }},
		{"postgres not enabled", func(c *Config) { c.Storage.Relational = "postgresql" }},
		{"mysql not enabled", func(c *Config) { c.Storage.Relational = "mysql" }},
		{"redis not enabled", func(c *Config) { c.Cache.Backend = "redis" }},
		{"no workers", func(c *Config) { c.Aggregation.Workers = 0 }},
		{"too many retries", func(c *Config) { c.Aggregation.SourceRetries = 4 }},
		{"negative epsilon", func(c *Config) { c.Aggregation.Epsilon = -1 }},
		{"hit rate out of range", func(c *Config) { c.Monitoring.MinCacheHitRate = 1.5 }},
		{"source without url", func(c *Config) { c.TrendSource.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
