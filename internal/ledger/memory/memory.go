package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"kilometers/internal/core"
	"kilometers/internal/ledger"
)

// SeedFile is looked up in the data directory by NewFromFiles.
const SeedFile = "seed.yaml"

type Store struct {
	mu       sync.Mutex
	defaults ledger.Defaults
	settings *core.InvoiceSettings
	items    []core.Entry
	archives map[core.MonthKey]ledger.ArchiveRecord
}

func New(defaults ledger.Defaults) *Store {
	return &Store{defaults: defaults, archives: map[core.MonthKey]ledger.ArchiveRecord{}}
}

type seedEntry struct {
	ID       string `yaml:"id"`
	Date     string `yaml:"date"`
	Title    string `yaml:"title"`
	Distance string `yaml:"distance"`
	Notes    string `yaml:"notes"`
}

type seedSettings struct {
	InvoiceDate    string `yaml:"invoice_date"`
	InvoiceNumber  string `yaml:"invoice_number"`
	CompanyName    string `yaml:"company_name"`
	LicensePlate   string `yaml:"license_plate"`
	RatePerKm      string `yaml:"rate_per_km"`
	CurrencySymbol string `yaml:"currency_symbol"`
	VATPercentage  string `yaml:"vat_percentage"`
}

type seed struct {
	Settings *seedSettings `yaml:"settings"`
	Entries  []seedEntry   `yaml:"entries"`
}

// NewFromFiles builds a store seeded from <base>/seed.yaml. A missing file yields an
// empty store; rows that fail validation are skipped.
func NewFromFiles(base string, defaults ledger.Defaults) *Store {
	s := New(defaults)
	path := filepath.Join(base, SeedFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var sd seed
	if err := yaml.Unmarshal(raw, &sd); err != nil {
		slog.Warn("Ignoring unreadable seed file", "path", path, "error", err)
		return s
	}
	if sd.Settings != nil {
		if st, ok := sd.Settings.toCore(defaults); ok {
			s.settings = &st
		} else {
			slog.Warn("Ignoring invalid seed settings", "path", path)
		}
	}
	for i, row := range sd.Entries {
		e, err := row.toCore()
		if err != nil {
			slog.Warn("Skipping invalid seed entry", "path", path, "index", i, "error", err)
			continue
		}
		s.items = append(s.items, e)
	}
	return s
}

func (r seedEntry) toCore() (core.Entry, error) {
	d, err := core.ParseDate(r.Date)
	if err != nil {
		return core.Entry{}, err
	}
	dist, err := core.ParseDistance(r.Distance)
	if err != nil {
		return core.Entry{}, err
	}
	e := core.Entry{ID: r.ID, Date: d, Title: r.Title, Distance: dist, Notes: r.Notes}
	e.Normalize()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return e, e.Validate()
}

func (r seedSettings) toCore(defaults ledger.Defaults) (core.InvoiceSettings, bool) {
	s := defaults.Settings(time.Now())
	s.InvoiceDate = r.InvoiceDate
	s.InvoiceNumber = r.InvoiceNumber
	s.CompanyName = r.CompanyName
	s.LicensePlate = r.LicensePlate
	if r.CurrencySymbol != "" {
		s.CurrencySymbol = r.CurrencySymbol
	}
	if r.RatePerKm != "" {
		v, err := core.ParseDecimal(r.RatePerKm)
		if err != nil {
			return s, false
		}
		s.RatePerKm = v
	}
	if r.VATPercentage != "" {
		v, err := core.ParseDecimal(r.VATPercentage)
		if err != nil {
			return s, false
		}
		s.VATPercentage = v
	}
	s.Normalize()
	return s, s.Validate() == nil
}

// Append stores the entry, assigning an ID when it has none.
func (s *Store) Append(_ context.Context, e core.Entry) (string, error) {
	e.Normalize()
	if err := e.Validate(); err != nil {
		return "", err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, e)
	return e.ID, nil
}

func (s *Store) AppendBatch(_ context.Context, entries []core.Entry) ([]string, error) {
	batch := make([]core.Entry, 0, len(entries))
	for i, e := range entries {
		e.Normalize()
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		batch = append(batch, e)
	}
	ids := make([]string, len(batch))
	for i, e := range batch {
		ids[i] = e.ID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, batch...)
	return ids, nil
}

func (s *Store) ListEntries(_ context.Context, month core.MonthKey) ([]core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Entry, 0, len(s.items))
	for _, e := range s.items {
		if month == "" || e.Month() == month {
			out = append(out, e)
		}
	}
	core.SortEntries(out, core.SortDesc)
	return out, nil
}

func (s *Store) ListMonths(_ context.Context) ([]core.MonthKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[core.MonthKey]struct{}{}
	out := []core.MonthKey{}
	for _, e := range s.items {
		m := e.Month()
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out, nil
}

func (s *Store) GetEntry(_ context.Context, id string) (core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.items {
		if e.ID == id {
			return e, nil
		}
	}
	return core.Entry{}, ledger.ErrNotFound
}

func (s *Store) DeleteEntries(_ context.Context, ids ...string) (int, error) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0]
	deleted := 0
	for _, e := range s.items {
		if _, ok := drop[e.ID]; ok {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.items = kept
	return deleted, nil
}

func (s *Store) LoadSettings(_ context.Context) (core.InvoiceSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return s.defaults.Settings(time.Now()), nil
	}
	return *s.settings, nil
}

func (s *Store) SaveSettings(_ context.Context, st core.InvoiceSettings) error {
	st.Normalize()
	if err := st.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &st
	return nil
}

func (s *Store) RecordArchive(_ context.Context, rec ledger.ArchiveRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archives[rec.Month] = rec
	return nil
}

func (s *Store) DeleteArchive(_ context.Context, month core.MonthKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.archives, month)
	return nil
}

func (s *Store) ListArchives(_ context.Context) ([]ledger.ArchiveRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.ArchiveRecord, 0, len(s.archives))
	for _, r := range s.archives {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month > out[j].Month })
	return out, nil
}
