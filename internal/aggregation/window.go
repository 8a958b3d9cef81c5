package aggregation

import (
	"fmt"
	"time"

	"shoptrend/internal/model"
)

// Window 以 UTC 自然日为单位的闭区间 [Start, End]
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days 窗口包含的天数
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// Contains 日期是否落在窗口内
func (w Window) Contains(t time.Time) bool {
	d := model.DayOf(t)
	return !d.Before(w.Start) && !d.After(w.End)
}

// WindowDays 各聚合类型的窗口长度
func WindowDays(t model.AggregationType) (int, error) {
	switch t {
	case model.AggregationDaily:
		return 1, nil
	case model.AggregationWeekly:
		return 7, nil
	case model.AggregationMonthly:
		return 30, nil
	}
	return 0, fmt.Errorf("%w: unknown aggregation type %q", model.ErrValidation, t)
}

// Windows 计算截止 asOf（含当天）的当前窗口，以及紧邻其前、长度相同的上一窗口
func Windows(t model.AggregationType, asOf time.Time) (current, previous Window, err error) {
	days, err := WindowDays(t)
	if err != nil {
		return Window{}, Window{}, err
	}
	end := model.DayOf(asOf)
	current = Window{Start: end.AddDate(0, 0, -(days - 1)), End: end}
	prevEnd := current.Start.AddDate(0, 0, -1)
	previous = Window{Start: prevEnd.AddDate(0, 0, -(days - 1)), End: prevEnd}
	return current, previous, nil
}
