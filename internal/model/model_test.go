package model

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParseAggregationType(t *testing.T) {
	tests := []struct {
		in      string
		want    AggregationType
		wantErr bool
	}{
		{in: "daily", want: AggregationDaily},
		{in: " WEEKLY ", want: AggregationWeekly},
		{in: "Monthly", want: AggregationMonthly},
		{in: "yearly", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAggregationType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDistribution_Validate(t *testing.T) {
	tests := []struct {
		name    string
		dist    Distribution
		wantErr bool
	}{
		{name: "empty is unknown", dist: nil},
		{name: "exact 100", dist: Distribution{"pc": dec("40"), "mo": dec("60")}},
		{name: "rounding drift", dist: Distribution{"f": dec("33.33"), "m": dec("66.66")}},
		{name: "too small", dist: Distribution{"pc": dec("40"), "mo": dec("50")}, wantErr: true},
		{name: "negative bucket", dist: Distribution{"pc": dec("-10"), "mo": dec("110")}, wantErr: true},
		{name: "blank bucket", dist: Distribution{" ": dec("100")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dist.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTrendSample_Normalize(t *testing.T) {
	at := time.Date(2024, 3, 5, 17, 45, 0, 0, time.FixedZone("KST", 9*3600))
	s := TrendSample{Keyword: "  Running Shoes ", Date: at, Ratio: dec("12.345678")}.Normalize()

	assert.Equal(t, "running shoes", s.Keyword)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), s.Date)
	assert.True(t, s.Ratio.Equal(dec("12.3457")))
}

func TestTrendSample_Validate(t *testing.T) {
	base := TrendSample{Keyword: "k", Date: time.Now(), Ratio: dec("1")}
	require.NoError(t, base.Validate())

	bad := base
	bad.ClickCount = -1
	assert.ErrorIs(t, bad.Validate(), ErrValidation)

	bad = base
	bad.Keyword = "  "
	assert.ErrorIs(t, bad.Validate(), ErrValidation)

	bad = base
	bad.AgeDistribution = Distribution{"20": dec("10")}
	assert.ErrorIs(t, bad.Validate(), ErrValidation)
}

func TestRetryableCall_Lifecycle(t *testing.T) {
	now := time.Now()
	c := NewRetryableCall("id-1", "trend_source", nil, now)
	assert.Equal(t, CallPending, c.Status)
	assert.False(t, c.CanRetry())

	failed, err := c.Failed("timeout", now)
	require.NoError(t, err)
	assert.True(t, failed.CanRetry())

	// 重复 fail 属于非法迁移
	_, err = failed.Failed("again", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, err, ErrValidation)

	cur := failed
	for i := 1; i <= MaxRetryCount; i++ {
		cur, err = cur.Retried(now)
		require.NoError(t, err)
		assert.Equal(t, i, cur.RetryCount)
		assert.Equal(t, CallPending, cur.Status)
		cur, err = cur.Failed("timeout", now)
		require.NoError(t, err)
	}

	assert.False(t, cur.CanRetry())
	assert.True(t, cur.Terminal())

	after, err := cur.Retried(now)
	assert.ErrorIs(t, err, ErrExhaustedRetries)
	assert.Equal(t, MaxRetryCount, after.RetryCount)
}

func TestRetryableCall_SucceedIsTerminal(t *testing.T) {
	now := time.Now()
	c := NewRetryableCall("id-2", "trend_source", map[string]string{"keyword": "k"}, now)

	ok, err := c.Succeeded("{}", 42, now)
	require.NoError(t, err)
	assert.Equal(t, CallSuccess, ok.Status)
	assert.Equal(t, int64(42), ok.ExecutionTimeMs)
	assert.True(t, ok.Terminal())

	_, err = ok.Succeeded("{}", 1, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = ok.Retried(now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
