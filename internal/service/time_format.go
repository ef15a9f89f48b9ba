package service

import "time"

// FormatDateRange 周报等场景的日期区间标签，如 "Mar 3 – Mar 9, 2025"
func FormatDateRange(startDate, endDate string) string {
	s, err1 := time.Parse("2006-01-02", startDate)
	e, err2 := time.Parse("2006-01-02", endDate)
	if err1 != nil || err2 != nil || endDate < startDate {
		return ""
	}
	if s.Year() != e.Year() {
		return s.Format("Jan 2, 2006") + " – " + e.Format("Jan 2, 2006")
	}
	return s.Format("Jan 2") + " – " + e.Format("Jan 2, 2006")
}

// FormatDayLabel 完整日期标签，如 "Sunday, March 9, 2025"
func FormatDayLabel(date string) string {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return d.Format("Monday, January 2, 2006")
}
