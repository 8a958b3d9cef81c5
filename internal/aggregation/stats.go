package aggregation

import (
	"github.com/shopspring/decimal"

	"shoptrend/internal/model"
)

// strengthPlaces 趋势强度保留的小数位数
const strengthPlaces = 2

var hundred = decimal.NewFromInt(100)

// Stats 一个窗口内样本的汇总
type Stats struct {
	Count  int
	Total  decimal.Decimal
	Avg    decimal.Decimal
	Max    decimal.Decimal
	Min    decimal.Decimal
	Clicks int64
}

// Rollup 计算样本汇总，无样本时各项为 0
func Rollup(samples []model.TrendSample) Stats {
	st := Stats{Total: decimal.Zero, Avg: decimal.Zero, Max: decimal.Zero, Min: decimal.Zero}
	for i, s := range samples {
		r := s.Ratio.Round(model.RatioPlaces)
		st.Total = st.Total.Add(r)
		st.Clicks += s.ClickCount
		if i == 0 || r.GreaterThan(st.Max) {
			st.Max = r
		}
		if i == 0 || r.LessThan(st.Min) {
			st.Min = r
		}
	}
	st.Count = len(samples)
	if st.Count > 0 {
		st.Avg = st.Total.DivRound(decimal.NewFromInt(int64(st.Count)), model.RatioPlaces)
	}
	return st
}

// Trend 比较当前与上一窗口的平均比率
//
// 上一窗口无样本时为 STABLE，强度为 0。强度为变化量占上一窗口平均值的百分比。
func Trend(current, previous Stats, epsilon decimal.Decimal) (model.Direction, decimal.Decimal) {
	if previous.Count == 0 {
		return model.DirectionStable, decimal.Zero
	}

	diff := current.Avg.Sub(previous.Avg)
	direction := model.DirectionStable
	switch {
	case diff.GreaterThan(epsilon):
		direction = model.DirectionRising
	case diff.LessThan(epsilon.Neg()):
		direction = model.DirectionFalling
	}

	strength := decimal.Zero
	if !previous.Avg.IsZero() {
		strength = diff.Abs().Div(previous.Avg).Mul(hundred).Round(strengthPlaces)
	}
	return direction, strength
}

// Build 组装聚合结果
func Build(keyword string, t model.AggregationType, current Window, cur, prev Stats, epsilon decimal.Decimal) model.TrendAggregation {
	direction, strength := Trend(cur, prev, epsilon)
	return model.TrendAggregation{
		Keyword:          model.NormalizeKeyword(keyword),
		AggregationDate:  current.End,
		Type:             t,
		WindowStart:      current.Start,
		WindowEnd:        current.End,
		SampleCount:      cur.Count,
		TotalRatio:       cur.Total,
		TotalClickCount:  cur.Clicks,
		AvgRatio:         cur.Avg,
		MaxRatio:         cur.Max,
		MinRatio:         cur.Min,
		PreviousAvgRatio: prev.Avg,
		Direction:        direction,
		Strength:         strength,
	}
}
