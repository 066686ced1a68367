package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultBulkTitle is prefilled in the planner form.
const DefaultBulkTitle = "Kantoor"

var (
	ErrNoDaysSelected  = errors.New("no days selected")
	ErrDayOutsideMonth = errors.New("day outside selected month")
)

// DayOption is one cell of the planner grid.
type DayOption struct {
	Date    Date
	ISO     string
	Label   string
	Weekday string
	InMonth bool
}

// IsWorkday reports whether the day falls Monday to Friday.
func (d DayOption) IsWorkday() bool {
	wd := d.Date.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// Week is seven consecutive days starting on Monday.
type Week []DayOption

// CalendarGrid returns the Monday-first weeks covering the month. Leading and trailing
// days of neighbouring months are included with InMonth false.
func CalendarGrid(month MonthKey) ([]Week, error) {
	if !month.Valid() {
		return nil, ErrInvalidMonth
	}
	first := month.FirstDay()
	last := month.LastDay()

	// Monday = 0
	offset := (int(first.Weekday()) + 6) % 7
	start := first.AddDate(0, 0, -offset)
	trail := 6 - (int(last.Weekday())+6)%7
	end := last.AddDate(0, 0, trail)

	var weeks []Week
	var week Week
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		d := Date{Time: day}
		week = append(week, DayOption{
			Date:    d,
			ISO:     d.ISO(),
			Label:   FormatDayLabel(d),
			Weekday: FormatWeekday(d),
			InMonth: month.Contains(d),
		})
		if len(week) == 7 {
			weeks = append(weeks, week)
			week = nil
		}
	}
	return weeks, nil
}

// MonthDays returns only the in-month days of the grid, in order.
func MonthDays(weeks []Week) []DayOption {
	var days []DayOption
	for _, w := range weeks {
		for _, d := range w {
			if d.InMonth {
				days = append(days, d)
			}
		}
	}
	return days
}

// BulkRequest describes entries to create for several days of one month.
type BulkRequest struct {
	Month    MonthKey
	Title    string
	Distance decimal.Decimal
	Notes    string
	Days     []string // yyyy-MM-dd
}

// BuildBulkEntries returns one entry per selected day, ordered by date. IDs are left
// empty for the caller to assign.
func BuildBulkEntries(req BulkRequest) ([]Entry, error) {
	if !req.Month.Valid() {
		return nil, ErrInvalidMonth
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if !req.Distance.IsPositive() {
		return nil, ErrInvalidDistance
	}
	if len(req.Days) == 0 {
		return nil, ErrNoDaysSelected
	}

	seen := make(map[string]struct{}, len(req.Days))
	dates := make([]Date, 0, len(req.Days))
	for _, raw := range req.Days {
		d, err := ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("day %q: %w", raw, err)
		}
		if !req.Month.Contains(d) {
			return nil, fmt.Errorf("day %s: %w", d.ISO(), ErrDayOutsideMonth)
		}
		if _, dup := seen[d.ISO()]; dup {
			continue
		}
		seen[d.ISO()] = struct{}{}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j].Time) })

	entries := make([]Entry, 0, len(dates))
	for _, d := range dates {
		e := Entry{Date: d, Title: title, Distance: req.Distance, Notes: req.Notes}
		e.Normalize()
		if err := e.Validate(); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
