package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"kilometers/internal/amqp"
	"kilometers/internal/core"
	"kilometers/internal/ledger"
)

func TestEntryService_CreateEntry(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc := NewEntryService(newStore(), pub)

	e, err := svc.CreateEntry(ctx, mustEntry("2024-03-05", " Kantoor ", "42"))
	if err != nil {
		t.Fatalf("CreateEntry() error = %v", err)
	}
	if e.ID == "" || e.Title != "Kantoor" {
		t.Errorf("CreateEntry() = %+v", e)
	}
	if len(pub.events) != 1 || pub.events[0].event != amqp.EventEntryCreated || pub.events[0].month != "2024-03" {
		t.Errorf("events = %+v", pub.events)
	}

	if _, err := svc.CreateEntry(ctx, mustEntry("2024-03-05", "", "42")); !errors.Is(err, core.ErrEmptyTitle) {
		t.Errorf("CreateEntry(empty title) error = %v", err)
	}
	if len(pub.events) != 1 {
		t.Errorf("invalid entry published an event")
	}
}

func TestEntryService_PublishFailureDoesNotFailRequest(t *testing.T) {
	svc := NewEntryService(newStore(), &fakePublisher{err: errBroker})
	if _, err := svc.CreateEntry(context.Background(), mustEntry("2024-03-05", "Kantoor", "1")); err != nil {
		t.Fatalf("CreateEntry() error = %v, want nil when broker is down", err)
	}
}

func TestEntryService_NilPublisher(t *testing.T) {
	svc := NewEntryService(newStore(), nil)
	if _, err := svc.CreateEntry(context.Background(), mustEntry("2024-03-05", "Kantoor", "1")); err != nil {
		t.Fatalf("CreateEntry() error = %v", err)
	}
}

func TestEntryService_CreateBulk(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	pub := &fakePublisher{}
	svc := NewEntryService(store, pub)

	got, err := svc.CreateBulk(ctx, core.BulkRequest{
		Month:    "2024-03",
		Title:    core.DefaultBulkTitle,
		Distance: decimal.NewFromInt(30),
		Days:     []string{"2024-03-04", "2024-03-01", "2024-03-05"},
	})
	if err != nil {
		t.Fatalf("CreateBulk() error = %v", err)
	}
	if len(got) != 3 || got[0].Date.ISO() != "2024-03-01" {
		t.Fatalf("CreateBulk() = %+v", got)
	}
	stored, _ := store.ListEntries(ctx, "2024-03")
	if len(stored) != 3 {
		t.Errorf("stored = %d, want 3", len(stored))
	}
	if len(pub.events) != 1 || len(pub.events[0].ids) != 3 {
		t.Errorf("events = %+v", pub.events)
	}

	_, err = svc.CreateBulk(ctx, core.BulkRequest{Month: "2024-03", Title: "x", Distance: decimal.NewFromInt(1)})
	if !errors.Is(err, core.ErrNoDaysSelected) {
		t.Errorf("CreateBulk(no days) error = %v", err)
	}
}

func TestEntryService_Delete(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc := NewEntryService(newStore(), pub)

	a, _ := svc.CreateEntry(ctx, mustEntry("2024-02-10", "a", "1"))
	b, _ := svc.CreateEntry(ctx, mustEntry("2024-03-10", "b", "1"))
	pub.events = nil

	n, err := svc.DeleteEntries(ctx, a.ID, b.ID, "unknown")
	if err != nil || n != 2 {
		t.Fatalf("DeleteEntries() = %d, %v", n, err)
	}
	if len(pub.events) != 2 {
		t.Errorf("expected one delete event per month, got %+v", pub.events)
	}

	if err := svc.DeleteEntry(ctx, a.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("DeleteEntry(deleted) error = %v, want ErrNotFound", err)
	}
}

func TestEntryService_SuggestedDistanceAndMonths(t *testing.T) {
	ctx := context.Background()
	svc := NewEntryService(newStore(), nil)

	if got, _ := svc.SuggestedDistance(ctx); got != "" {
		t.Errorf("SuggestedDistance() on empty store = %q", got)
	}
	svc.CreateEntry(ctx, mustEntry("2019-01-10", "a", "12.5"))
	svc.CreateEntry(ctx, mustEntry("2018-12-01", "b", "3"))

	if got, _ := svc.SuggestedDistance(ctx); got != "12,50" {
		t.Errorf("SuggestedDistance() = %q, want 12,50", got)
	}
	months, err := svc.AvailableMonths(ctx, "")
	if err != nil {
		t.Fatalf("AvailableMonths() error = %v", err)
	}
	if months[len(months)-1] != "2018-12" {
		t.Errorf("oldest month = %s, want 2018-12", months[len(months)-1])
	}
	if len(months) != core.RecentMonthsWindow+2 {
		t.Errorf("len = %d, want %d", len(months), core.RecentMonthsWindow+2)
	}
}
