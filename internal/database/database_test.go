package database

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoptrend/internal/config"
)

func TestDSN(t *testing.T) {
	my := MySQLDSN(MySQLConfig{Host: "db", Port: 3306, Username: "u", Password: "p", Database: "trend", Charset: "utf8mb4"})
	assert.Equal(t, "u:p@tcp(db:3306)/trend?charset=utf8mb4&parseTime=True&loc=UTC", my)

	pg := PostgreSQLDSN(PostgreSQLConfig{Host: "db", Port: 5432, Username: "u", Password: "p", Database: "trend", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=trend sslmode=disable", pg)
}

func TestNew_NothingEnabled(t *testing.T) {
	dbs, err := New(Config{})
	require.NoError(t, err)
	assert.Nil(t, dbs.MySQL)
	assert.Nil(t, dbs.Redis)
	assert.NoError(t, dbs.Ping(context.Background()))
	assert.NoError(t, dbs.Close())
}

func TestNew_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	dbs, err := New(Config{Redis: RedisConfig{Enabled: true, Addr: mr.Addr()}})
	require.NoError(t, err)
	require.NotNil(t, dbs.Redis)
	assert.NoError(t, dbs.Ping(context.Background()))
	assert.NoError(t, dbs.Close())
}

func TestNew_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(Config{Redis: RedisConfig{Enabled: true, Addr: addr}})
	assert.Error(t, err)
}

func TestConfigFromAppConfig_EnablesOnlySelectedBackends(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.MySQL.Enabled = true
	cfg.Database.PostgreSQL.Enabled = true
	cfg.Database.MongoDB.Enabled = true
	cfg.Redis.Enabled = true
	cfg.Storage = config.StorageConfig{Trend: "memory", Relational: "postgresql"}
	cfg.Cache.Backend = "redis"
	cfg.Database.PostgreSQL.MaxOpenConns = 25
	cfg.Database.PostgreSQL.ConnMaxLifetime = 5 * time.Minute

	dc := ConfigFromAppConfig(cfg, nil)
	assert.False(t, dc.MySQL.Enabled)
	assert.True(t, dc.PostgreSQL.Enabled)
	assert.False(t, dc.MongoDB.Enabled)
	assert.True(t, dc.Redis.Enabled)
	assert.Equal(t, Pool{MaxOpenConns: 25, ConnMaxLifetime: 5 * time.Minute}, dc.PostgreSQL.Pool)
}
