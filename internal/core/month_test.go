package core

import (
	"errors"
	"testing"
	"time"
)

func TestFormatMonthLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-03", "maart 2024"},
		{"2023-12", "december 2023"},
		{"2024-13", "2024-13"},
		{"", ""},
		{"maart", "maart"},
	}
	for _, tt := range tests {
		if got := FormatMonthLabel(tt.in); got != tt.want {
			t.Errorf("FormatMonthLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMonthKey_Bounds(t *testing.T) {
	m := MonthKey("2024-02")
	if got := m.LastDay().ISO(); got != "2024-02-29" {
		t.Errorf("LastDay() = %s, want 2024-02-29", got)
	}
	if !m.Contains(NewDate(2024, 2, 1)) || m.Contains(NewDate(2024, 3, 1)) {
		t.Error("Contains() returned wrong result")
	}
	if !MonthKey("2024-00").FirstDay().IsZero() {
		t.Error("FirstDay() of invalid key should be zero")
	}

	for _, key := range []string{"2024-+3", "+024-03", "-024-03", "2024-3", "24-03", "2024-13", "0000-01", "2024-03-01", "2024 03", "２０２４-03"} {
		if _, _, _, err := ParseMonthKey(key); !errors.Is(err, ErrInvalidMonth) {
			t.Errorf("ParseMonthKey(%q) error = %v, want ErrInvalidMonth", key, err)
		}
		if MonthKey(key).Valid() {
			t.Errorf("MonthKey(%q).Valid() = true", key)
		}
	}
	if key, y, m, err := ParseMonthKey(" 2024-03 "); err != nil || key != "2024-03" || y != 2024 || m != 3 {
		t.Errorf("ParseMonthKey(padded) = %q, %d, %d, %v", key, y, m, err)
	}
}

func TestDateLabels(t *testing.T) {
	d := NewDate(2024, 3, 5)
	if got := FormatDisplayDate(d); got != "05-03-2024" {
		t.Errorf("FormatDisplayDate() = %q", got)
	}
	if got := FormatDayLabel(d); got != "05 mrt." {
		t.Errorf("FormatDayLabel() = %q", got)
	}
	if got := FormatWeekday(d); got != "din" {
		t.Errorf("FormatWeekday() = %q", got)
	}
}

func TestDateLabels_AllMonths(t *testing.T) {
	tests := []struct {
		date    Date
		label   string
		weekday string
	}{
		{NewDate(2024, 5, 6), "06 mei", "maa"},
		{NewDate(2024, 6, 1), "01 jun.", "zat"},
		{NewDate(2024, 12, 29), "29 dec.", "zon"},
		{NewDate(2024, 1, 4), "04 jan.", "don"},
	}
	for _, tt := range tests {
		if got := FormatDayLabel(tt.date); got != tt.label {
			t.Errorf("FormatDayLabel(%s) = %q, want %q", tt.date.ISO(), got, tt.label)
		}
		if got := FormatWeekday(tt.date); got != tt.weekday {
			t.Errorf("FormatWeekday(%s) = %q, want %q", tt.date.ISO(), got, tt.weekday)
		}
	}
}

func TestAvailableMonths(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	got := AvailableMonths([]MonthKey{"2020-01", "2024-03", "bad"}, now, "2025-06")

	if len(got) != RecentMonthsWindow+2 {
		t.Fatalf("len = %d, want %d", len(got), RecentMonthsWindow+2)
	}
	if got[0] != "2025-06" {
		t.Errorf("first = %s, want selected month 2025-06", got[0])
	}
	if got[1] != "2024-03" {
		t.Errorf("second = %s, want current month", got[1])
	}
	if got[len(got)-1] != "2020-01" {
		t.Errorf("last = %s, want 2020-01", got[len(got)-1])
	}
	if got[len(got)-2] != "2022-10" {
		t.Errorf("oldest recent = %s, want 2022-10", got[len(got)-2])
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] <= got[i] {
			t.Fatalf("not strictly descending at %d: %s, %s", i, got[i-1], got[i])
		}
	}
}
