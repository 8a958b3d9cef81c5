package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RatioPlaces 比率保留的小数位数
const RatioPlaces = 4

// distributionTolerance 分布百分比之和允许偏离 100 的范围
var distributionTolerance = decimal.NewFromInt(1)

var hundred = decimal.NewFromInt(100)

// AggregationType 聚合周期类型
type AggregationType string

const (
	AggregationDaily   AggregationType = "DAILY"
	AggregationWeekly  AggregationType = "WEEKLY"
	AggregationMonthly AggregationType = "MONTHLY"
)

// AggregationTypes 所有支持的聚合类型
var AggregationTypes = []AggregationType{AggregationDaily, AggregationWeekly, AggregationMonthly}

// ParseAggregationType 解析聚合类型（不区分大小写）
func ParseAggregationType(s string) (AggregationType, error) {
	t := AggregationType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown aggregation type %q", ErrValidation, s)
	}
	return t, nil
}

// Valid 是否为合法的聚合类型
func (t AggregationType) Valid() bool {
	switch t {
	case AggregationDaily, AggregationWeekly, AggregationMonthly:
		return true
	}
	return false
}

// Direction 趋势方向
type Direction string

const (
	DirectionRising  Direction = "RISING"
	DirectionFalling Direction = "FALLING"
	DirectionStable  Direction = "STABLE"
)

// Distribution 分类占比（桶名 -> 百分比），例如 device: {pc: 40, mo: 60}
type Distribution map[string]decimal.Decimal

// Sum 所有桶的百分比之和
func (d Distribution) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range d {
		sum = sum.Add(v)
	}
	return sum
}

// Validate 校验分布：各桶非负，总和约等于 100。空分布表示未知，视为合法。
func (d Distribution) Validate() error {
	if len(d) == 0 {
		return nil
	}
	for name, v := range d {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: distribution bucket name is empty", ErrValidation)
		}
		if v.IsNegative() {
			return fmt.Errorf("%w: distribution bucket %q is negative", ErrValidation, name)
		}
	}
	if d.Sum().Sub(hundred).Abs().GreaterThan(distributionTolerance) {
		return fmt.Errorf("%w: distribution sums to %s, expected ~100", ErrValidation, d.Sum().String())
	}
	return nil
}

// Float64Map 转为 float64 映射，用于序列化边界
func (d Distribution) Float64Map() map[string]float64 {
	if len(d) == 0 {
		return nil
	}
	out := make(map[string]float64, len(d))
	for k, v := range d {
		out[k], _ = v.Float64()
	}
	return out
}

// DistributionFromFloat64 从 float64 映射构造分布
func DistributionFromFloat64(m map[string]float64) Distribution {
	if len(m) == 0 {
		return nil
	}
	d := make(Distribution, len(m))
	for k, v := range m {
		d[k] = decimal.NewFromFloat(v).Round(2)
	}
	return d
}

// TrendSample 关键词某一天的搜索趋势样本
type TrendSample struct {
	Keyword            string          `json:"keyword"`
	Date               time.Time       `json:"date"`
	Ratio              decimal.Decimal `json:"ratio"`
	ClickCount         int64           `json:"click_count"`
	DeviceDistribution Distribution    `json:"device_distribution,omitempty"`
	GenderDistribution Distribution    `json:"gender_distribution,omitempty"`
	AgeDistribution    Distribution    `json:"age_distribution,omitempty"`
}

// Normalize 规范化样本：关键词去空格、日期截断到 UTC 零点、比率保留 4 位小数
func (s TrendSample) Normalize() TrendSample {
	s.Keyword = NormalizeKeyword(s.Keyword)
	s.Date = DayOf(s.Date)
	s.Ratio = s.Ratio.Round(RatioPlaces)
	return s
}

// Validate 校验样本
func (s TrendSample) Validate() error {
	if NormalizeKeyword(s.Keyword) == "" {
		return fmt.Errorf("%w: sample keyword is empty", ErrValidation)
	}
	if s.Date.IsZero() {
		return fmt.Errorf("%w: sample date is zero", ErrValidation)
	}
	if s.Ratio.IsNegative() {
		return fmt.Errorf("%w: sample ratio is negative", ErrValidation)
	}
	if s.ClickCount < 0 {
		return fmt.Errorf("%w: sample click count is negative", ErrValidation)
	}
	for name, dist := range map[string]Distribution{
		"device": s.DeviceDistribution,
		"gender": s.GenderDistribution,
		"age":    s.AgeDistribution,
	} {
		if err := dist.Validate(); err != nil {
			return fmt.Errorf("%s distribution: %w", name, err)
		}
	}
	return nil
}

// TrendAggregation 关键词在一个窗口内的汇总结果
type TrendAggregation struct {
	Keyword          string          `json:"keyword"`
	AggregationDate  time.Time       `json:"aggregation_date"`
	Type             AggregationType `json:"type"`
	WindowStart      time.Time       `json:"window_start"`
	WindowEnd        time.Time       `json:"window_end"`
	SampleCount      int             `json:"sample_count"`
	TotalRatio       decimal.Decimal `json:"total_ratio"`
	TotalClickCount  int64           `json:"total_click_count"`
	AvgRatio         decimal.Decimal `json:"avg_ratio"`
	MaxRatio         decimal.Decimal `json:"max_ratio"`
	MinRatio         decimal.Decimal `json:"min_ratio"`
	PreviousAvgRatio decimal.Decimal `json:"previous_avg_ratio"`
	Direction        Direction       `json:"direction"`
	Strength         decimal.Decimal `json:"strength"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NormalizeKeyword 关键词规范化：去除首尾空格并转小写，关键词不区分大小写
func NormalizeKeyword(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// DayOf 截断到 UTC 当天零点
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AggregationFilter 聚合结果查询条件，零值字段不参与过滤
type AggregationFilter struct {
	Keyword string
	Type    AggregationType
	From    time.Time // AggregationDate 下界（含）
	To      time.Time // AggregationDate 上界（含）
	Limit   int
}

// Matches 判断聚合结果是否满足条件
func (f AggregationFilter) Matches(a TrendAggregation) bool {
	if f.Keyword != "" && NormalizeKeyword(f.Keyword) != a.Keyword {
		return false
	}
	if f.Type != "" && f.Type != a.Type {
		return false
	}
	if !f.From.IsZero() && a.AggregationDate.Before(DayOf(f.From)) {
		return false
	}
	if !f.To.IsZero() && a.AggregationDate.After(DayOf(f.To)) {
		return false
	}
	return true
}
