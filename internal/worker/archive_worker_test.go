package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"kilometers/internal/amqp"
	"kilometers/internal/core"
	"kilometers/internal/ledger"
	"kilometers/internal/ledger/memory"
	"kilometers/internal/services"
)

func setup(t *testing.T) (*ArchiveWorker, *services.ArchiveService, string) {
	t.Helper()
	w, archives, dir, _ := setupWithStore(t)
	return w, archives, dir
}

func setupWithStore(t *testing.T) (*ArchiveWorker, *services.ArchiveService, string, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	store := memory.New(ledger.Defaults{})
	for _, day := range []string{"2020-01-10", "2020-02-10", "2020-02-11"} {
		d, _ := core.ParseDate(day)
		if _, err := store.Append(ctx, core.Entry{Date: d, Title: "Kantoor", Distance: decimal.NewFromInt(20)}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	dir := t.TempDir()
	archives := services.NewArchiveService(services.NewReportService(store, store), store, store, dir, nil)
	return NewArchiveWorker(archives, 2), archives, dir, store
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestArchiveWorker_HandleExplicitRequest(t *testing.T) {
	w, archives, dir := setup(t)
	ctx := context.Background()

	if err := w.HandleArchiveRequest(ctx, amqp.NewArchiveRequestMessage("2020-02", "manual")); err != nil {
		t.Fatalf("HandleArchiveRequest() error = %v", err)
	}
	if !exists(filepath.Join(dir, "kilometers-2020-02.pdf")) {
		t.Error("archive file not written")
	}
	if ok, _ := archives.IsArchived(ctx, "2020-02"); !ok {
		t.Error("archive not recorded")
	}
}

func TestArchiveWorker_EntryEventsRefreshOnlyArchivedMonths(t *testing.T) {
	w, _, dir := setup(t)
	ctx := context.Background()
	event := &amqp.ArchiveRequestMessage{Month: "2020-01", Reason: amqp.EventEntryCreated}

	if err := w.HandleArchiveRequest(ctx, event); err != nil {
		t.Fatalf("HandleArchiveRequest() error = %v", err)
	}
	if exists(filepath.Join(dir, "kilometers-2020-01.pdf")) {
		t.Fatal("entry event archived a month that was never archived")
	}

	w.HandleArchiveRequest(ctx, amqp.NewArchiveRequestMessage("2020-01", "manual"))
	path := filepath.Join(dir, "kilometers-2020-01.pdf")
	os.Remove(path)
	if err := w.HandleArchiveRequest(ctx, event); err != nil {
		t.Fatalf("HandleArchiveRequest() error = %v", err)
	}
	if !exists(path) {
		t.Error("entry event did not refresh archived month")
	}
}

func TestArchiveWorker_EmptiedMonthLosesArchive(t *testing.T) {
	w, archives, dir, store := setupWithStore(t)
	ctx := context.Background()
	path := filepath.Join(dir, "kilometers-2020-01.pdf")

	if err := w.HandleArchiveRequest(ctx, amqp.NewArchiveRequestMessage("2020-01", "manual")); err != nil {
		t.Fatalf("HandleArchiveRequest() error = %v", err)
	}
	entries, _ := store.ListEntries(ctx, "2020-01")
	for _, e := range entries {
		if _, err := store.DeleteEntries(ctx, e.ID); err != nil {
			t.Fatalf("DeleteEntries() error = %v", err)
		}
	}

	event := &amqp.ArchiveRequestMessage{Month: "2020-01", Reason: amqp.EventEntryDeleted}
	if err := w.HandleArchiveRequest(ctx, event); err != nil {
		t.Fatalf("HandleArchiveRequest() error = %v", err)
	}
	if exists(path) {
		t.Error("stale archive left on disk")
	}
	if ok, _ := archives.IsArchived(ctx, "2020-01"); ok {
		t.Error("stale archive record left behind")
	}
}

func TestArchiveWorker_IgnoresBadAndEmptyMonths(t *testing.T) {
	w, _, _ := setup(t)
	ctx := context.Background()
	for _, month := range []string{"garbage", "2019-05"} {
		if err := w.HandleArchiveRequest(ctx, amqp.NewArchiveRequestMessage(month, "manual")); err != nil {
			t.Errorf("HandleArchiveRequest(%s) error = %v, want nil", month, err)
		}
	}
}

func TestArchiveWorker_StartupBacklog(t *testing.T) {
	w, archives, dir := setup(t)
	ctx := context.Background()

	if err := w.StartupBacklog(ctx); err != nil {
		t.Fatalf("StartupBacklog() error = %v", err)
	}
	for _, m := range []string{"2020-01", "2020-02"} {
		if !exists(filepath.Join(dir, "kilometers-"+m+".pdf")) {
			t.Errorf("backlog did not archive %s", m)
		}
	}
	if pending, _ := archives.PendingMonths(ctx); len(pending) != 0 {
		t.Errorf("pending after backlog: %v", pending)
	}
}
