package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"shoptrend/internal/database"
	"shoptrend/internal/model"
)

// setupTestMongoDB 创建测试用的 MongoDB 连接，不可用时跳过
func setupTestMongoDB(t *testing.T) *mongo.Database {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://localhost:27017"))
	if err != nil {
		t.Skipf("跳过测试：无法连接到 MongoDB: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		t.Skipf("跳过测试：MongoDB ping 失败: %v", err)
	}

	db := client.Database("shoptrend_test")
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return db
}

func TestMongoTrendRepository_Integration(t *testing.T) {
	db := setupTestMongoDB(t)
	ctx := context.Background()
	repo := NewMongoTrendRepository(database.NewStorage(db, zap.NewNop()), zap.NewNop())
	require.NoError(t, repo.EnsureIndexes(ctx))

	require.NoError(t, repo.IncrementClicks(ctx, "shoes", day(3), 5))
	require.NoError(t, repo.UpsertSamples(ctx, []model.TrendSample{{
		Keyword:            "shoes",
		Date:               day(3),
		Ratio:              decimal.RequireFromString("42.1234"),
		DeviceDistribution: model.Distribution{"pc": decimal.NewFromInt(40), "mo": decimal.NewFromInt(60)},
	}}))

	samples, err := repo.SamplesBetween(ctx, "shoes", day(1), day(5))
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.True(t, samples[0].Ratio.Equal(decimal.RequireFromString("42.1234")))
	assert.Equal(t, int64(5), samples[0].ClickCount)
	assert.True(t, samples[0].DeviceDistribution["mo"].Equal(decimal.NewFromInt(60)))

	agg := model.TrendAggregation{
		Keyword:         "shoes",
		AggregationDate: day(3),
		Type:            model.AggregationDaily,
		SampleCount:     1,
		TotalRatio:      decimal.RequireFromString("42.1234"),
		AvgRatio:        decimal.RequireFromString("42.1234"),
		MaxRatio:        decimal.RequireFromString("42.1234"),
		MinRatio:        decimal.RequireFromString("42.1234"),
		Direction:       model.DirectionStable,
	}
	require.NoError(t, repo.UpsertAggregation(ctx, agg))
	agg.Direction = model.DirectionRising
	require.NoError(t, repo.UpsertAggregation(ctx, agg))

	got, err := repo.Aggregations(ctx, model.AggregationFilter{Keyword: "shoes"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.DirectionRising, got[0].Direction)
	assert.True(t, got[0].AvgRatio.Equal(agg.AvgRatio))

	keywords, err := repo.Keywords(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"shoes"}, keywords)
}

func TestDecimal128RoundTrip(t *testing.T) {
	for _, s := range []string{"0", "42.1234", "100", "0.0001"} {
		d := decimal.RequireFromString(s)
		v, err := toDecimal128(d)
		require.NoError(t, err)
		back, err := fromDecimal128(v)
		require.NoError(t, err)
		assert.True(t, d.Equal(back), s)
	}
}
