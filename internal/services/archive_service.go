package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"kilometers/internal/core"
	"kilometers/internal/invoicepdf"
	"kilometers/internal/ledger"
)

// ArchivePublisher queues archive requests. *amqp.Client implements it.
type ArchivePublisher interface {
	PublishArchiveRequest(ctx context.Context, month, reason string) error
}

// ArchiveResult describes what RequestArchive did.
type ArchiveResult struct {
	Month  core.MonthKey
	Queued bool   // handed to the archiver over AMQP
	Path   string // set when written synchronously
}

// ArchiveService writes month documents into the archive directory.
type ArchiveService struct {
	reports   *ReportService
	entries   ledger.EntryLister
	archives  ledger.ArchiveStore
	dir       string
	publisher ArchivePublisher
	now       func() time.Time
}

// NewArchiveService creates the service; publisher may be nil, in which case requests
// are rendered synchronously.
func NewArchiveService(reports *ReportService, entries ledger.EntryLister, archives ledger.ArchiveStore, dir string, publisher ArchivePublisher) *ArchiveService {
	return &ArchiveService{
		reports:   reports,
		entries:   entries,
		archives:  archives,
		dir:       dir,
		publisher: publisher,
		now:       time.Now,
	}
}

// ArchivePath is where the document for month is stored.
func (s *ArchiveService) ArchivePath(month core.MonthKey) string {
	return filepath.Join(s.dir, fmt.Sprintf("kilometers-%s.pdf", month))
}

// RequestArchive queues the month when a publisher is configured, otherwise archives it
// immediately.
func (s *ArchiveService) RequestArchive(ctx context.Context, month core.MonthKey, reason string) (ArchiveResult, error) {
	if !month.Valid() {
		return ArchiveResult{}, core.ErrInvalidMonth
	}
	if s.publisher != nil {
		err := s.publisher.PublishArchiveRequest(ctx, string(month), reason)
		if err == nil {
			return ArchiveResult{Month: month, Queued: true}, nil
		}
		slog.WarnContext(ctx, "Archive request not queued, archiving synchronously",
			"month", month, "error", err)
	}
	path, err := s.ArchiveMonth(ctx, month)
	if err != nil {
		return ArchiveResult{}, err
	}
	return ArchiveResult{Month: month, Path: path}, nil
}

// ArchiveMonth renders the month into the archive directory, replacing any previous
// document atomically, and records it.
func (s *ArchiveService) ArchiveMonth(ctx context.Context, month core.MonthKey) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".kilometers-*.pdf.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := s.reports.RenderPDF(ctx, tmp, month, core.SortAsc); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}

	path := s.ArchivePath(month)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("move archive into place: %w", err)
	}

	rec := ledger.ArchiveRecord{Month: month, FilePath: path, ArchivedAt: s.now()}
	if err := s.archives.RecordArchive(ctx, rec); err != nil {
		return path, err
	}

	slog.InfoContext(ctx, "Month archived", "month", month, "path", path)
	return path, nil
}

// RemoveArchive deletes the month's document and record. Months without an
// archive are left alone.
func (s *ArchiveService) RemoveArchive(ctx context.Context, month core.MonthKey) error {
	if err := os.Remove(s.ArchivePath(month)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove archive: %w", err)
	}
	if err := s.archives.DeleteArchive(ctx, month); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Month archive removed", "month", month)
	return nil
}

// RefreshArchive re-renders a month that was archived before, so the document
// follows later edits. A month left without entries loses its document and
// record. It reports whether the month had an archive.
func (s *ArchiveService) RefreshArchive(ctx context.Context, month core.MonthKey) (bool, error) {
	archived, err := s.IsArchived(ctx, month)
	if err != nil {
		return false, fmt.Errorf("check archive state: %w", err)
	}
	if !archived {
		return false, nil
	}
	if _, err := s.ArchiveMonth(ctx, month); err != nil {
		if IsSkippable(err) {
			return true, s.RemoveArchive(ctx, month)
		}
		return true, err
	}
	return true, nil
}

// PublishEntryEvent refreshes the affected month in-process. The server passes
// the archive service as its event publisher when no broker is configured.
func (s *ArchiveService) PublishEntryEvent(ctx context.Context, event, month string, _ []string) error {
	key, _, _, err := core.ParseMonthKey(month)
	if err != nil {
		return err
	}
	if _, err := s.RefreshArchive(ctx, key); err != nil {
		return fmt.Errorf("refresh archive after %s: %w", event, err)
	}
	return nil
}

// IsArchived reports whether the month has an archive record.
func (s *ArchiveService) IsArchived(ctx context.Context, month core.MonthKey) (bool, error) {
	recs, err := s.archives.ListArchives(ctx)
	if err != nil {
		return false, err
	}
	for _, r := range recs {
		if r.Month == month {
			return true, nil
		}
	}
	return false, nil
}

// PendingMonths returns completed months (before the current one) that hold entries
// but have not been archived, oldest first.
func (s *ArchiveService) PendingMonths(ctx context.Context) ([]core.MonthKey, error) {
	months, err := s.entries.ListMonths(ctx)
	if err != nil {
		return nil, fmt.Errorf("list months: %w", err)
	}
	recs, err := s.archives.ListArchives(ctx)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	done := make(map[core.MonthKey]struct{}, len(recs))
	for _, r := range recs {
		done[r.Month] = struct{}{}
	}

	current := core.MonthKeyOf(s.now())
	var pending []core.MonthKey
	for i := len(months) - 1; i >= 0; i-- {
		m := months[i]
		if m >= current {
			continue
		}
		if _, ok := done[m]; ok {
			continue
		}
		pending = append(pending, m)
	}
	return pending, nil
}

// IsSkippable reports whether err means there is nothing to archive.
func IsSkippable(err error) bool {
	return errors.Is(err, invoicepdf.ErrNoEntries)
}

// ArchivePending archives every pending month with at most concurrency renders in
// flight. Months that fail are logged and skipped; the first error is returned after
// all months have been attempted.
func (s *ArchiveService) ArchivePending(ctx context.Context, concurrency int) (int, error) {
	pending, err := s.PendingMonths(ctx)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	slog.InfoContext(ctx, "Archiving pending months", "count", len(pending), "concurrency", concurrency)

	var (
		archived int64
		firstErr error
		errOnce  atomic.Bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, month := range pending {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if _, err := s.ArchiveMonth(gctx, month); err != nil {
				if IsSkippable(err) {
					return nil
				}
				slog.ErrorContext(gctx, "Failed to archive month", "month", month, "error", err)
				if errOnce.CompareAndSwap(false, true) {
					firstErr = fmt.Errorf("archive %s: %w", month, err)
				}
				return nil
			}
			atomic.AddInt64(&archived, 1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(archived), err
	}
	return int(archived), firstErr
}
