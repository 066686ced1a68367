package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// InvoiceSettings holds the metadata printed on the monthly document.
type InvoiceSettings struct {
	InvoiceDate    string // yyyy-MM-dd, may be empty
	InvoiceNumber  string // optional, derived from the invoice date when empty
	CompanyName    string
	LicensePlate   string
	RatePerKm      decimal.Decimal
	CurrencySymbol string
	VATPercentage  decimal.Decimal
}

// InvoiceTotals is the arithmetic summary of a set of entries.
type InvoiceTotals struct {
	TotalDistance decimal.Decimal
	Subtotal      decimal.Decimal
	VAT           decimal.Decimal
	Total         decimal.Decimal
}

var (
	ErrNegativeRate       = errors.New("rate per km cannot be negative")
	ErrNegativeVAT        = errors.New("VAT percentage cannot be negative")
	ErrInvalidCurrency    = errors.New("currency symbol must be 1 to 3 characters")
	ErrInvalidInvoiceDate = errors.New("invoice date must be formatted as yyyy-MM-dd")
)

// DefaultRatePerKm is the rate used until the user configures one.
var DefaultRatePerKm = decimal.RequireFromString("0.23")

// DefaultInvoiceSettings returns the settings used before anything is saved.
func DefaultInvoiceSettings(now time.Time) InvoiceSettings {
	return InvoiceSettings{
		InvoiceDate:    now.Format(DateLayout),
		RatePerKm:      DefaultRatePerKm,
		CurrencySymbol: "€",
		VATPercentage:  decimal.Zero,
	}
}

// Normalize trims text fields and upper-cases the license plate.
func (s *InvoiceSettings) Normalize() {
	s.InvoiceDate = strings.TrimSpace(s.InvoiceDate)
	s.InvoiceNumber = strings.TrimSpace(s.InvoiceNumber)
	s.CompanyName = strings.TrimSpace(s.CompanyName)
	s.LicensePlate = strings.ToUpper(strings.TrimSpace(s.LicensePlate))
	s.CurrencySymbol = strings.TrimSpace(s.CurrencySymbol)
}

func (s InvoiceSettings) Validate() error {
	if s.RatePerKm.IsNegative() {
		return ErrNegativeRate
	}
	if s.VATPercentage.IsNegative() {
		return ErrNegativeVAT
	}
	if n := utf8.RuneCountInString(s.CurrencySymbol); n < 1 || n > 3 {
		return ErrInvalidCurrency
	}
	if s.InvoiceDate != "" {
		if _, err := time.Parse(DateLayout, s.InvoiceDate); err != nil {
			return ErrInvalidInvoiceDate
		}
	}
	return nil
}

// ComputeTotals sums the distances and applies rate and VAT.
func ComputeTotals(entries []Entry, s InvoiceSettings) InvoiceTotals {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Distance)
	}
	subtotal := total.Mul(s.RatePerKm)
	vat := subtotal.Mul(s.VATPercentage).Div(hundred)
	return InvoiceTotals{
		TotalDistance: total,
		Subtotal:      subtotal,
		VAT:           vat,
		Total:         subtotal.Add(vat),
	}
}

// LineAmount is the amount excluding VAT for a single entry.
func LineAmount(e Entry, s InvoiceSettings) decimal.Decimal {
	return e.Distance.Mul(s.RatePerKm)
}

// ResolveInvoiceNumber picks the custom number when set, otherwise derives one
// from the invoice date (or the first of the month) as yyyyMMdd.
func ResolveInvoiceNumber(s InvoiceSettings, month MonthKey) string {
	if custom := strings.TrimSpace(s.InvoiceNumber); custom != "" {
		return custom
	}
	source := s.InvoiceDate
	if source == "" {
		source = string(month) + "-01"
	}
	if t, err := time.Parse(DateLayout, source); err == nil {
		return t.Format("20060102")
	}
	return FormatMonthLabel(string(month))
}

// FormatInvoiceDate renders the invoice date as dd-MM-yyyy, or returns the raw value
// when it cannot be parsed.
func FormatInvoiceDate(value string) string {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return value
	}
	return t.Format("02-01-2006")
}
