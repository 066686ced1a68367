// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for planner day selection.
// Each preset (workdays, every other day, all, clear) has its own strategy
// that decides which days of the month are pre-selected in the planner grid.

package services

import (
	"errors"
	"fmt"

	"kilometers/internal/core"
)

// SelectionName identifies a planner preset.
type SelectionName string

const (
	SelectWorkdays   SelectionName = "workdays"
	SelectEveryOther SelectionName = "every-other-day"
	SelectAll        SelectionName = "all"
	SelectClear      SelectionName = "clear"
)

// ErrUnknownSelection is returned for presets that are not registered.
var ErrUnknownSelection = errors.New("unknown day selection")

// DaySelector is the strategy interface for pre-selecting planner days.
type DaySelector interface {
	// Select returns the ISO dates to select, given the in-month days in order.
	Select(days []core.DayOption) []string
}

// WorkdaySelector selects Monday through Friday.
type WorkdaySelector struct{}

func (WorkdaySelector) Select(days []core.DayOption) []string {
	var out []string
	for _, d := range days {
		if d.IsWorkday() {
			out = append(out, d.ISO)
		}
	}
	return out
}

// EveryOtherDaySelector selects the 1st, 3rd, 5th... day of the month.
type EveryOtherDaySelector struct{}

func (EveryOtherDaySelector) Select(days []core.DayOption) []string {
	var out []string
	for i, d := range days {
		if i%2 == 0 {
			out = append(out, d.ISO)
		}
	}
	return out
}

// AllDaysSelector selects every day of the month.
type AllDaysSelector struct{}

func (AllDaysSelector) Select(days []core.DayOption) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, d.ISO)
	}
	return out
}

// ClearSelector selects nothing.
type ClearSelector struct{}

func (ClearSelector) Select([]core.DayOption) []string { return nil }

var daySelectors = map[SelectionName]DaySelector{
	SelectWorkdays:   WorkdaySelector{},
	SelectEveryOther: EveryOtherDaySelector{},
	SelectAll:        AllDaysSelector{},
	SelectClear:      ClearSelector{},
}

// GetDaySelector returns the selector registered under name.
func GetDaySelector(name SelectionName) (DaySelector, error) {
	s, ok := daySelectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSelection, name)
	}
	return s, nil
}

// RegisterDaySelector adds or replaces a preset.
func RegisterDaySelector(name SelectionName, s DaySelector) {
	daySelectors[name] = s
}
