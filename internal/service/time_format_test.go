package service

import "testing"

func TestFormatDateRange(t *testing.T) {
	cases := []struct {
		start, end string
		want       string
	}{
		{"2025-03-03", "2025-03-09", "Mar 3 – Mar 9, 2025"},
		{"2024-12-30", "2025-01-05", "Dec 30, 2024 – Jan 5, 2025"},
		{"2025-03-09", "2025-03-03", ""},
		{"bad", "2025-03-09", ""},
	}
	for _, c := range cases {
		if got := FormatDateRange(c.start, c.end); got != c.want {
			t.Errorf("FormatDateRange(%s, %s)=%q, want %q", c.start, c.end, got, c.want)
		}
	}
}

func TestFormatDayLabel(t *testing.T) {
	if got := FormatDayLabel("2025-03-09"); got != "Sunday, March 9, 2025" {
		t.Errorf("FormatDayLabel=%q", got)
	}
	if got := FormatDayLabel("not-a-date"); got != "not-a-date" {
		t.Errorf("invalid input should pass through, got %q", got)
	}
}
