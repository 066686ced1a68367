package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	// DateLayout is the ISO calendar date layout used for storage and forms.
	DateLayout = "2006-01-02"

	MaxTitleLength = 200
	MaxNotesLength = 500
)

type (
	Date struct {
		time.Time
	}

	// Entry is a single recorded trip.
	Entry struct {
		ID       string
		Date     Date
		Title    string
		Distance decimal.Decimal
		Notes    string // optional
	}
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidDistance = errors.New("distance must be a positive number")
	ErrEmptyTitle      = errors.New("empty title")
	ErrTitleTooLong    = errors.New("title too long (max 200 characters)")
	ErrNotesTooLong    = errors.New("notes too long (max 500 characters)")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a yyyy-MM-dd string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// Today returns the current local calendar date.
func Today() Date {
	now := time.Now()
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// ISO returns the date as yyyy-MM-dd.
func (d Date) ISO() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MonthKey returns the month the date belongs to.
func (d Date) MonthKey() MonthKey {
	return MakeMonthKey(d)
}

func (e Entry) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	title := strings.TrimSpace(e.Title)
	if title == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if !e.Distance.IsPositive() {
		return ErrInvalidDistance
	}
	if utf8.RuneCountInString(e.Notes) > MaxNotesLength {
		return ErrNotesTooLong
	}
	return nil
}

// Normalize trims free-text fields in place.
func (e *Entry) Normalize() {
	e.Title = strings.TrimSpace(e.Title)
	e.Notes = strings.TrimSpace(e.Notes)
}

// Month returns the month key of the entry's date.
func (e Entry) Month() MonthKey {
	return e.Date.MonthKey()
}
