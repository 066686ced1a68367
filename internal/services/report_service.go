package services

import (
	"context"
	"fmt"
	"io"

	"kilometers/internal/core"
	"kilometers/internal/invoicepdf"
	"kilometers/internal/ledger"
)

// ReportService assembles month reports and renders them.
type ReportService struct {
	entries  ledger.EntryLister
	settings ledger.SettingsStore
}

func NewReportService(entries ledger.EntryLister, settings ledger.SettingsStore) *ReportService {
	return &ReportService{entries: entries, settings: settings}
}

// MonthReport loads the month's entries and settings and computes totals.
func (s *ReportService) MonthReport(ctx context.Context, month core.MonthKey, order core.SortOrder) (core.MonthReport, error) {
	if !month.Valid() {
		return core.MonthReport{}, core.ErrInvalidMonth
	}
	entries, err := s.entries.ListEntries(ctx, month)
	if err != nil {
		return core.MonthReport{}, fmt.Errorf("list entries: %w", err)
	}
	settings, err := s.settings.LoadSettings(ctx)
	if err != nil {
		return core.MonthReport{}, fmt.Errorf("load settings: %w", err)
	}
	return core.NewMonthReport(month, entries, settings, order), nil
}

// RenderPDF writes the month's document to w. Empty months yield invoicepdf.ErrNoEntries.
func (s *ReportService) RenderPDF(ctx context.Context, w io.Writer, month core.MonthKey, order core.SortOrder) error {
	report, err := s.MonthReport(ctx, month, order)
	if err != nil {
		return err
	}
	return invoicepdf.Render(w, report)
}

// Settings returns the current invoice settings.
func (s *ReportService) Settings(ctx context.Context) (core.InvoiceSettings, error) {
	return s.settings.LoadSettings(ctx)
}

// SaveSettings normalises, validates and stores the settings.
func (s *ReportService) SaveSettings(ctx context.Context, st core.InvoiceSettings) (core.InvoiceSettings, error) {
	st.Normalize()
	if err := st.Validate(); err != nil {
		return st, err
	}
	if err := s.settings.SaveSettings(ctx, st); err != nil {
		return st, fmt.Errorf("save settings: %w", err)
	}
	return st, nil
}
