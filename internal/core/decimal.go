// Package core provides number parsing and formatting utilities.
//
// Distances, rates and percentages are decimals; the parsers accept both dot
// (12.34) and comma (12,34) separators because the user interface is Dutch.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidNumber = errors.New("invalid number")

var hundred = decimal.NewFromInt(100)

// ParseDecimal parses a non-negative decimal string.
//
// Examples:
//
//	ParseDecimal("12.34") -> 12.34, nil
//	ParseDecimal("12,34") -> 12.34, nil
//	ParseDecimal("-1")    -> 0, error
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidNumber
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidNumber
	}
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrInvalidNumber
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidNumber
	}
	return d, nil
}

// ParseDistance parses a strictly positive distance.
func ParseDistance(s string) (decimal.Decimal, error) {
	d, err := ParseDecimal(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, ErrInvalidDistance
	}
	return d, nil
}

// commaFixed renders d with the given number of decimals and a comma separator.
func commaFixed(d decimal.Decimal, places int32) string {
	return strings.Replace(d.StringFixed(places), ".", ",", 1)
}

// FormatQuantity renders a distance as "12,30".
func FormatQuantity(d decimal.Decimal) string {
	return commaFixed(d, 2)
}

// FormatCurrency renders an amount as "€ 12,30" with a non-breaking space.
func FormatCurrency(symbol string, d decimal.Decimal) string {
	return symbol + "\u00a0" + commaFixed(d, 2)
}

// FormatVAT renders a percentage as "21,0%".
func FormatVAT(p decimal.Decimal) string {
	return commaFixed(p, 1) + "%"
}
