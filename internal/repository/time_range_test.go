package repository

import "testing"

func TestAddDaysAndDaysBetween(t *testing.T) {
	if got := AddDays("2025-03-01", 2); got != "2025-03-03" {
		t.Fatalf("AddDays=%s, want 2025-03-03", got)
	}
	if got := AddDays("2025-03-01", -1); got != "2025-02-28" {
		t.Fatalf("AddDays=%s, want 2025-02-28", got)
	}
	if got := DaysBetween("2025-03-01", "2025-03-08"); got != 7 {
		t.Fatalf("DaysBetween=%d, want 7", got)
	}
	if got := DaysBetween("2025-03-08", "2025-03-01"); got != -7 {
		t.Fatalf("DaysBetween=%d, want -7", got)
	}
}

func TestLastNDates(t *testing.T) {
	dates := LastNDates("2025-03-09", 7)
	if len(dates) != 7 {
		t.Fatalf("len=%d, want 7", len(dates))
	}
	if dates[0] != "2025-03-03" || dates[6] != "2025-03-09" {
		t.Fatalf("dates=%v, want 2025-03-03..2025-03-09", dates)
	}
}

func TestIsWeekend(t *testing.T) {
	// 2025-03-01 是周六，2025-03-03 是周一
	if !IsWeekend("2025-03-01") {
		t.Fatalf("2025-03-01 should be weekend")
	}
	if IsWeekend("2025-03-03") {
		t.Fatalf("2025-03-03 should be weekday")
	}
}
