package core

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// SortOrder controls the date ordering of a month report.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortOrder defaults to descending for anything but "asc".
func ParseSortOrder(s string) SortOrder {
	if strings.EqualFold(strings.TrimSpace(s), string(SortAsc)) {
		return SortAsc
	}
	return SortDesc
}

// MonthReport is everything needed to show or print a month.
type MonthReport struct {
	Month         MonthKey
	Label         string
	Entries       []Entry
	Totals        InvoiceTotals
	InvoiceNumber string
	Settings      InvoiceSettings
	Order         SortOrder
}

// NewMonthReport filters entries to the month, sorts them and computes totals.
func NewMonthReport(month MonthKey, entries []Entry, settings InvoiceSettings, order SortOrder) MonthReport {
	inMonth := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Month() == month {
			inMonth = append(inMonth, e)
		}
	}
	SortEntries(inMonth, order)
	return MonthReport{
		Month:         month,
		Label:         month.Label(),
		Entries:       inMonth,
		Totals:        ComputeTotals(inMonth, settings),
		InvoiceNumber: ResolveInvoiceNumber(settings, month),
		Settings:      settings,
		Order:         order,
	}
}

// IsEmpty reports whether the month has no entries.
func (r MonthReport) IsEmpty() bool {
	return len(r.Entries) == 0
}

// SortEntries orders by date; ties are broken by ID descending so the order is stable
// across reloads.
func SortEntries(entries []Entry, order SortOrder) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Date.Equal(b.Date.Time) {
			return a.ID > b.ID
		}
		if order == SortAsc {
			return a.Date.Before(b.Date.Time)
		}
		return a.Date.After(b.Date.Time)
	})
}

// SuggestedDistance returns the distance of the most recent entry, or zero.
func SuggestedDistance(entries []Entry) decimal.Decimal {
	if len(entries) == 0 {
		return decimal.Zero
	}
	sorted := append([]Entry(nil), entries...)
	SortEntries(sorted, SortDesc)
	return sorted[0].Distance
}
