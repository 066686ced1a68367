package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"kilometers/internal/core"
)

var ErrNotFound = errors.New("not found")

// Ports for outbound adapters.
type (
	EntryWriter interface {
		// Append stores a single entry and returns its ID.
		Append(ctx context.Context, e core.Entry) (id string, err error)
		// AppendBatch stores all entries or none of them.
		AppendBatch(ctx context.Context, entries []core.Entry) (ids []string, err error)
	}

	EntryLister interface {
		// ListEntries returns the entries of a month, newest first. An empty month
		// returns every entry.
		ListEntries(ctx context.Context, month core.MonthKey) ([]core.Entry, error)
		// ListMonths returns the distinct months holding entries, newest first.
		ListMonths(ctx context.Context) ([]core.MonthKey, error)
		GetEntry(ctx context.Context, id string) (core.Entry, error)
	}

	// EntryDeleter removes entries. Unknown IDs are ignored.
	EntryDeleter interface {
		DeleteEntries(ctx context.Context, ids ...string) (deleted int, err error)
	}

	SettingsStore interface {
		// LoadSettings returns the saved settings, or the defaults when nothing is saved.
		LoadSettings(ctx context.Context) (core.InvoiceSettings, error)
		SaveSettings(ctx context.Context, s core.InvoiceSettings) error
	}

	// ArchiveStore records which months have been written to disk.
	ArchiveStore interface {
		RecordArchive(ctx context.Context, rec ArchiveRecord) error
		ListArchives(ctx context.Context) ([]ArchiveRecord, error)
		// DeleteArchive forgets the month's record. Unknown months are ignored.
		DeleteArchive(ctx context.Context, month core.MonthKey) error
	}
)

// ArchiveRecord is one exported monthly document.
type ArchiveRecord struct {
	Month      core.MonthKey
	FilePath   string
	ArchivedAt time.Time
}

// Defaults configures the settings returned before the user saves any.
// A zero Defaults falls back to the built-in values.
type Defaults struct {
	RatePerKm      decimal.Decimal
	CurrencySymbol string
	VATPercentage  decimal.Decimal
}

// Settings returns the default settings with the invoice date set to now.
func (d Defaults) Settings(now time.Time) core.InvoiceSettings {
	s := core.DefaultInvoiceSettings(now)
	if d.CurrencySymbol == "" {
		return s
	}
	s.RatePerKm = d.RatePerKm
	s.CurrencySymbol = d.CurrencySymbol
	s.VATPercentage = d.VATPercentage
	return s
}
