package worker

import (
	"context"
	"fmt"
	"log/slog"

	"kilometers/internal/amqp"
	"kilometers/internal/core"
	"kilometers/internal/services"
)

// ArchiveWorker writes month documents on request and catches up on startup.
type ArchiveWorker struct {
	archives    *services.ArchiveService
	concurrency int
}

func NewArchiveWorker(archives *services.ArchiveService, concurrency int) *ArchiveWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ArchiveWorker{archives: archives, concurrency: concurrency}
}

// HandleArchiveRequest processes a single archive request from AMQP. Requests derived
// from entry events only refresh months that were archived before.
func (w *ArchiveWorker) HandleArchiveRequest(ctx context.Context, msg *amqp.ArchiveRequestMessage) error {
	month, _, _, err := core.ParseMonthKey(msg.Month)
	if err != nil {
		slog.WarnContext(ctx, "Dropping archive request with invalid month", "month", msg.Month)
		return nil
	}

	if msg.Reason == amqp.EventEntryCreated || msg.Reason == amqp.EventEntryDeleted {
		archived, err := w.archives.RefreshArchive(ctx, month)
		if err != nil {
			return fmt.Errorf("refresh archive %s: %w", month, err)
		}
		if !archived {
			slog.DebugContext(ctx, "Month not archived yet, ignoring entry event", "month", month)
		}
		return nil
	}

	if _, err := w.archives.ArchiveMonth(ctx, month); err != nil {
		if services.IsSkippable(err) {
			slog.InfoContext(ctx, "Nothing to archive", "month", month, "reason", msg.Reason)
			return w.archives.RemoveArchive(ctx, month)
		}
		return fmt.Errorf("archive month %s: %w", month, err)
	}
	return nil
}

// StartupBacklog archives every completed month that has no archive yet. This recovers
// from missed messages or worker downtime.
func (w *ArchiveWorker) StartupBacklog(ctx context.Context) error {
	n, err := w.archives.ArchivePending(ctx, w.concurrency)
	if err != nil {
		return fmt.Errorf("startup backlog: %w", err)
	}
	if n == 0 {
		slog.InfoContext(ctx, "No pending months found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup backlog completed", "archived", n)
	return nil
}
