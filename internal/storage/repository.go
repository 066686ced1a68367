package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kilometers/internal/core"
	"kilometers/internal/ledger"

	_ "modernc.org/sqlite"
)

// SettingsKey is the invoice_settings row holding the saved settings document.
const SettingsKey = "invoice-settings"

type SQLiteRepository struct {
	db       *sql.DB
	queries  *Queries
	defaults ledger.Defaults
}

func NewSQLiteRepository(dbPath string, defaults ledger.Defaults) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:       db,
		queries:  New(db),
		defaults: defaults,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func createParams(e core.Entry, now time.Time) CreateEntryParams {
	return CreateEntryParams{
		ID:        e.ID,
		EntryDate: e.Date.ISO(),
		MonthKey:  string(e.Month()),
		Title:     e.Title,
		Distance:  e.Distance.String(),
		Notes:     sql.NullString{String: e.Notes, Valid: e.Notes != ""},
		CreatedAt: now.UTC().Format(time.RFC3339Nano),
	}
}

func prepare(e core.Entry) (core.Entry, error) {
	e.Normalize()
	if err := e.Validate(); err != nil {
		return e, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return e, nil
}

// Append implements ledger.EntryWriter
func (r *SQLiteRepository) Append(ctx context.Context, e core.Entry) (string, error) {
	e, err := prepare(e)
	if err != nil {
		return "", err
	}
	if err := r.queries.CreateEntry(ctx, createParams(e, time.Now())); err != nil {
		return "", fmt.Errorf("create entry: %w", err)
	}

	slog.InfoContext(ctx, "Entry saved to SQLite",
		"id", e.ID,
		"date", e.Date.ISO(),
		"title", e.Title,
		"distance", e.Distance.String())

	return e.ID, nil
}

// AppendBatch implements ledger.EntryWriter; all entries are written in one transaction.
func (r *SQLiteRepository) AppendBatch(ctx context.Context, entries []core.Entry) ([]string, error) {
	prepared := make([]core.Entry, len(entries))
	for i, e := range entries {
		p, err := prepare(e)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		prepared[i] = p
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	now := time.Now()
	ids := make([]string, len(prepared))
	for i, e := range prepared {
		if err := q.CreateEntry(ctx, createParams(e, now)); err != nil {
			return nil, fmt.Errorf("create entry %s: %w", e.Date.ISO(), err)
		}
		ids[i] = e.ID
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}

	slog.InfoContext(ctx, "Entry batch saved to SQLite", "count", len(ids))
	return ids, nil
}

func toCore(row Entry) (core.Entry, error) {
	d, err := core.ParseDate(row.EntryDate)
	if err != nil {
		return core.Entry{}, fmt.Errorf("entry %s: %w", row.ID, err)
	}
	dist, err := decimal.NewFromString(row.Distance)
	if err != nil {
		return core.Entry{}, fmt.Errorf("entry %s distance: %w", row.ID, err)
	}
	return core.Entry{
		ID:       row.ID,
		Date:     d,
		Title:    row.Title,
		Distance: dist,
		Notes:    row.Notes.String,
	}, nil
}

// ListEntries implements ledger.EntryLister
func (r *SQLiteRepository) ListEntries(ctx context.Context, month core.MonthKey) ([]core.Entry, error) {
	var (
		rows []Entry
		err  error
	)
	if month == "" {
		rows, err = r.queries.ListAllEntries(ctx)
	} else {
		rows, err = r.queries.ListEntriesByMonth(ctx, string(month))
	}
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	entries := make([]core.Entry, 0, len(rows))
	for _, row := range rows {
		e, err := toCore(row)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable entry row", "id", row.ID, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ListMonths implements ledger.EntryLister
func (r *SQLiteRepository) ListMonths(ctx context.Context) ([]core.MonthKey, error) {
	rows, err := r.queries.ListMonths(ctx)
	if err != nil {
		return nil, fmt.Errorf("list months: %w", err)
	}
	months := make([]core.MonthKey, len(rows))
	for i, m := range rows {
		months[i] = core.MonthKey(m)
	}
	return months, nil
}

// GetEntry implements ledger.EntryLister
func (r *SQLiteRepository) GetEntry(ctx context.Context, id string) (core.Entry, error) {
	row, err := r.queries.GetEntry(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Entry{}, ledger.ErrNotFound
	}
	if err != nil {
		return core.Entry{}, fmt.Errorf("get entry by id: %w", err)
	}
	return toCore(row)
}

// DeleteEntries implements ledger.EntryDeleter
func (r *SQLiteRepository) DeleteEntries(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	var deleted int64
	for _, id := range ids {
		n, err := q.DeleteEntry(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("delete entry %s: %w", id, err)
		}
		deleted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}

	slog.InfoContext(ctx, "Entries deleted", "requested", len(ids), "deleted", deleted)
	return int(deleted), nil
}

type settingsDocument struct {
	InvoiceDate    string          `json:"invoiceDate"`
	InvoiceNumber  string          `json:"invoiceNumber"`
	CompanyName    string          `json:"companyName"`
	LicensePlate   string          `json:"licensePlate"`
	RatePerKm      decimal.Decimal `json:"ratePerKm"`
	CurrencySymbol string          `json:"currencySymbol"`
	VATPercentage  decimal.Decimal `json:"vatPercentage"`
}

// LoadSettings implements ledger.SettingsStore
func (r *SQLiteRepository) LoadSettings(ctx context.Context) (core.InvoiceSettings, error) {
	defaults := r.defaults.Settings(time.Now())
	raw, err := r.queries.GetSetting(ctx, SettingsKey)
	if errors.Is(err, sql.ErrNoRows) {
		return defaults, nil
	}
	if err != nil {
		return defaults, fmt.Errorf("get settings: %w", err)
	}

	doc := settingsDocument{
		InvoiceDate:    defaults.InvoiceDate,
		RatePerKm:      defaults.RatePerKm,
		CurrencySymbol: defaults.CurrencySymbol,
		VATPercentage:  defaults.VATPercentage,
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		slog.WarnContext(ctx, "Stored settings unreadable, using defaults", "error", err)
		return defaults, nil
	}
	return core.InvoiceSettings(doc), nil
}

// SaveSettings implements ledger.SettingsStore
func (r *SQLiteRepository) SaveSettings(ctx context.Context, s core.InvoiceSettings) error {
	s.Normalize()
	if err := s.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(settingsDocument(s))
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := r.queries.UpsertSetting(ctx, UpsertSettingParams{Key: SettingsKey, Value: string(raw)}); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	slog.InfoContext(ctx, "Invoice settings saved")
	return nil
}

// RecordArchive implements ledger.ArchiveStore
func (r *SQLiteRepository) RecordArchive(ctx context.Context, rec ledger.ArchiveRecord) error {
	err := r.queries.UpsertArchive(ctx, UpsertArchiveParams{
		MonthKey:   string(rec.Month),
		FilePath:   rec.FilePath,
		ArchivedAt: rec.ArchivedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("record archive: %w", err)
	}
	return nil
}

// DeleteArchive implements ledger.ArchiveStore
func (r *SQLiteRepository) DeleteArchive(ctx context.Context, month core.MonthKey) error {
	if err := r.queries.DeleteArchive(ctx, string(month)); err != nil {
		return fmt.Errorf("delete archive: %w", err)
	}
	return nil
}

// ListArchives implements ledger.ArchiveStore
func (r *SQLiteRepository) ListArchives(ctx context.Context) ([]ledger.ArchiveRecord, error) {
	rows, err := r.queries.ListArchives(ctx)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	out := make([]ledger.ArchiveRecord, len(rows))
	for i, a := range rows {
		at, _ := time.Parse(time.RFC3339, a.ArchivedAt)
		out[i] = ledger.ArchiveRecord{Month: core.MonthKey(a.MonthKey), FilePath: a.FilePath, ArchivedAt: at}
	}
	return out, nil
}
