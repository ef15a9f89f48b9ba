package repository

import (
	"fmt"
	"math"
	"time"
)

const dayLayout = "2006-01-02"

// ParseDay 将 YYYY-MM-DD 解析为本地时区的日起点。
func ParseDay(date string) (time.Time, error) {
	t, err := time.ParseInLocation(dayLayout, date, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("解析日期失败: %w", err)
	}
	return t, nil
}

// Today 当前本地日期（YYYY-MM-DD）。
func Today() string {
	return time.Now().Format(dayLayout)
}

// AddDays 日期偏移 n 天（n 可为负）。date 非法时原样返回。
func AddDays(date string, n int) string {
	t, err := ParseDay(date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, n).Format(dayLayout)
}

// DaysBetween start 到 end 的日历日数差（end-start，可为负）。任一日期非法返回 0。
func DaysBetween(start, end string) int {
	s, err := ParseDay(start)
	if err != nil {
		return 0
	}
	e, err := ParseDay(end)
	if err != nil {
		return 0
	}
	// 四舍五入吸收夏令时造成的 23/25 小时日
	return int(math.Round(e.Sub(s).Hours() / 24))
}

// LastNDates 返回以 end 结尾、长度为 n 的连续日期序列（升序）。
func LastNDates(end string, n int) []string {
	if n <= 0 {
		return nil
	}
	out := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, AddDays(end, -i))
	}
	return out
}

// IsWeekend 日期是否落在周六/周日。非法日期视为工作日。
func IsWeekend(date string) bool {
	t, err := ParseDay(date)
	if err != nil {
		return false
	}
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// DayRange 将 YYYY-MM-DD 解析为本地日区间的毫秒时间戳 [start, end]（闭区间）。
func DayRange(date string) (startMs int64, endMs int64, err error) {
	t, err := ParseDay(date)
	if err != nil {
		return 0, 0, err
	}
	start := t.UnixMilli()
	end := t.Add(24*time.Hour).UnixMilli() - 1
	return start, end, nil
}
