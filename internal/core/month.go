package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// MonthKey identifies a calendar month as "YYYY-MM".
type MonthKey string

// RecentMonthsWindow is how many months, counting back from now, are always offered.
const RecentMonthsWindow = 18

var dutchMonths = [...]string{
	"januari", "februari", "maart", "april", "mei", "juni",
	"juli", "augustus", "september", "oktober", "november", "december",
}

var dutchMonthsShort = [...]string{
	"jan.", "feb.", "mrt.", "apr.", "mei", "jun.",
	"jul.", "aug.", "sep.", "okt.", "nov.", "dec.",
}

var dutchWeekdaysShort = [...]string{"zon", "maa", "din", "woe", "don", "vri", "zat"}

// MakeMonthKey derives the month key of a date.
func MakeMonthKey(d Date) MonthKey {
	return MonthKey(d.Format("2006-01"))
}

// MonthKeyOf derives the month key of a point in time.
func MonthKeyOf(t time.Time) MonthKey {
	return MonthKey(t.Format("2006-01"))
}

// ParseMonthKey validates s and returns the month key with its year and month.
func ParseMonthKey(s string) (MonthKey, int, int, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse("2006-01", s)
	if err != nil || t.Year() < 1 || MonthKeyOf(t) != MonthKey(s) {
		return "", 0, 0, ErrInvalidMonth
	}
	return MonthKey(s), t.Year(), int(t.Month()), nil
}

// Valid reports whether the key is a well-formed month.
func (m MonthKey) Valid() bool {
	_, _, _, err := ParseMonthKey(string(m))
	return err == nil
}

// FirstDay returns the first day of the month. The zero Date is returned for invalid keys.
func (m MonthKey) FirstDay() Date {
	_, year, month, err := ParseMonthKey(string(m))
	if err != nil {
		return Date{}
	}
	return NewDate(year, month, 1)
}

// LastDay returns the last day of the month.
func (m MonthKey) LastDay() Date {
	first := m.FirstDay()
	if first.IsZero() {
		return Date{}
	}
	return Date{Time: first.AddDate(0, 1, -1)}
}

// Contains reports whether d falls inside the month.
func (m MonthKey) Contains(d Date) bool {
	return !d.IsZero() && MakeMonthKey(d) == m
}

// Label returns the Dutch long label, e.g. "maart 2024".
func (m MonthKey) Label() string {
	return FormatMonthLabel(string(m))
}

// FormatMonthLabel renders "YYYY-MM" as a Dutch month label, returning the input
// unchanged when it is not a month key.
func FormatMonthLabel(key string) string {
	_, year, month, err := ParseMonthKey(key)
	if err != nil {
		return key
	}
	return fmt.Sprintf("%s %d", dutchMonths[month-1], year)
}

// FormatDisplayDate renders a date as dd-MM-yyyy.
func FormatDisplayDate(d Date) string {
	if d.IsZero() {
		return ""
	}
	return d.Format("02-01-2006")
}

// FormatDayLabel renders "05 mrt.".
func FormatDayLabel(d Date) string {
	return fmt.Sprintf("%02d %s", d.Day(), dutchMonthsShort[d.Month()-1])
}

// FormatWeekday renders the short Dutch weekday, e.g. "maa".
func FormatWeekday(d Date) string {
	return dutchWeekdaysShort[d.Weekday()]
}

// AvailableMonths returns the union of months holding entries, the recent window
// ending at now and the selected month, newest first.
func AvailableMonths(withEntries []MonthKey, now time.Time, selected MonthKey) []MonthKey {
	seen := make(map[MonthKey]struct{})
	add := func(m MonthKey) {
		if m.Valid() {
			seen[m] = struct{}{}
		}
	}
	for _, m := range withEntries {
		add(m)
	}
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for offset := 0; offset < RecentMonthsWindow; offset++ {
		add(MonthKeyOf(first.AddDate(0, -offset, 0)))
	}
	add(selected)

	out := make([]MonthKey, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}
