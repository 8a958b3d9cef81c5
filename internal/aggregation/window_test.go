package aggregation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoptrend/internal/model"
)

func date(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWindows(t *testing.T) {
	asOf := time.Date(2024, 5, 14, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		typ                 model.AggregationType
		curStart, prevStart time.Time
		prevEnd             time.Time
		days                int
	}{
		{model.AggregationDaily, date(5, 14), date(5, 13), date(5, 13), 1},
		{model.AggregationWeekly, date(5, 8), date(5, 1), date(5, 7), 7},
		{model.AggregationMonthly, date(4, 15), date(3, 16), date(4, 14), 30},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			cur, prev, err := Windows(tt.typ, asOf)
			require.NoError(t, err)
			assert.Equal(t, tt.curStart, cur.Start)
			assert.Equal(t, date(5, 14), cur.End)
			assert.Equal(t, tt.prevStart, prev.Start)
			assert.Equal(t, tt.prevEnd, prev.End)
			assert.Equal(t, tt.days, cur.Days())
			assert.Equal(t, tt.days, prev.Days())
		})
	}
}

func TestWindows_UsesUTCDay(t *testing.T) {
	kst := time.FixedZone("KST", 9*3600)
	cur, _, err := Windows(model.AggregationDaily, time.Date(2024, 5, 15, 2, 0, 0, 0, kst))
	require.NoError(t, err)
	assert.Equal(t, date(5, 14), cur.End)
}

func TestWindows_InvalidType(t *testing.T) {
	_, _, err := Windows("HOURLY", time.Now())
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestWindow_Contains(t *testing.T) {
	w := Window{Start: date(5, 8), End: date(5, 14)}
	assert.True(t, w.Contains(date(5, 8)))
	assert.True(t, w.Contains(date(5, 14).Add(23*time.Hour)))
	assert.False(t, w.Contains(date(5, 7)))
	assert.False(t, w.Contains(date(5, 15)))
}
