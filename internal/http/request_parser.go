// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Form values are sanitized once here so handlers work with domain types only.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kilometers/internal/core"
)

// maxBodyBytes bounds form and JSON bodies.
const maxBodyBytes = 1 << 20

var (
	// errMalformedRequest marks bodies that could not be decoded at all.
	errMalformedRequest = errors.New("malformed request")
	// errBadMonthParam marks an unparseable month in the URL.
	errBadMonthParam = errors.New("malformed month parameter")
)

// ParseMonthParam reads a "YYYY-MM" value, falling back to the month of now when it
// is missing. An unparseable value yields errBadMonthParam.
func ParseMonthParam(values url.Values, key string, now time.Time) (core.MonthKey, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return core.MonthKeyOf(now), nil
	}
	return parseMonth(raw)
}

func parseMonth(raw string) (core.MonthKey, error) {
	month, _, _, err := core.ParseMonthKey(strings.TrimSpace(raw))
	if err != nil {
		return "", errBadMonthParam
	}
	return month, nil
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}

	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		p.err = errors.Join(errMalformedRequest, p.err)
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.IsJSONContent() || p.body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = errors.Join(errMalformedRequest, err)
			return p.err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	if p.err != nil {
		p.err = errors.Join(errMalformedRequest, p.err)
	}
	return p.err
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// GetAll returns every value for key. JSON arrays of strings are supported.
func (p *RequestBodyParser) GetAll(key string) []string {
	var raw []string
	switch {
	case p.jsonData != nil:
		switch v := p.jsonData[key].(type) {
		case []interface{}:
			for _, item := range v {
				raw = append(raw, stringValue(item))
			}
		case nil:
		default:
			raw = append(raw, stringValue(v))
		}
	case p.formData != nil:
		raw = p.formData[key]
	}

	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if v = sanitizeInput(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ContentType returns the Content-Type header value.
func (p *RequestBodyParser) ContentType() string {
	return p.contentType
}

// IsJSONContent reports whether the request declared a JSON body.
func (p *RequestBodyParser) IsJSONContent() bool {
	return strings.HasPrefix(strings.ToLower(p.contentType), "application/json")
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts an interface{} to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseEntry builds an entry from date, title, distance and notes fields.
func ParseEntry(p *RequestBodyParser) (core.Entry, error) {
	date, err := core.ParseDate(p.Get("date"))
	if err != nil {
		return core.Entry{}, err
	}
	distance, err := core.ParseDistance(p.Get("distance"))
	if err != nil {
		return core.Entry{}, err
	}
	return core.Entry{
		Date:     date,
		Title:    p.Get("title"),
		Distance: distance,
		Notes:    p.Get("notes"),
	}, nil
}

// ParseBulkRequest builds a planner request from month, title, distance, notes and day fields.
func ParseBulkRequest(p *RequestBodyParser) (core.BulkRequest, error) {
	month, _, _, err := core.ParseMonthKey(p.Get("month"))
	if err != nil {
		return core.BulkRequest{}, core.ErrInvalidMonth
	}
	distance, err := core.ParseDistance(p.Get("distance"))
	if err != nil {
		return core.BulkRequest{}, err
	}
	return core.BulkRequest{
		Month:    month,
		Title:    p.Get("title"),
		Distance: distance,
		Notes:    p.Get("notes"),
		Days:     p.GetAll("day"),
	}, nil
}

// ParseSettings overlays submitted invoice settings on current. Missing numeric fields
// keep their current value.
func ParseSettings(p *RequestBodyParser, current core.InvoiceSettings) (core.InvoiceSettings, error) {
	next := current
	next.InvoiceDate = p.Get("invoiceDate")
	next.InvoiceNumber = p.Get("invoiceNumber")
	next.CompanyName = p.Get("companyName")
	next.LicensePlate = p.Get("licensePlate")
	if v := p.Get("currencySymbol"); v != "" {
		next.CurrencySymbol = v
	}

	var err error
	if next.RatePerKm, err = parseOptionalDecimal(p.Get("ratePerKm"), current.RatePerKm, core.ErrNegativeRate); err != nil {
		return current, err
	}
	if next.VATPercentage, err = parseOptionalDecimal(p.Get("vatPercentage"), current.VATPercentage, core.ErrNegativeVAT); err != nil {
		return current, err
	}
	return next, nil
}

func parseOptionalDecimal(raw string, fallback decimal.Decimal, negative error) (decimal.Decimal, error) {
	if raw == "" {
		return fallback, nil
	}
	if strings.HasPrefix(raw, "-") {
		return fallback, negative
	}
	return core.ParseDecimal(raw)
}
