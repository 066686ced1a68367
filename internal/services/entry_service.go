package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"kilometers/internal/amqp"
	"kilometers/internal/core"
	"kilometers/internal/ledger"
)

// EntryStore is the storage surface the entry service needs.
type EntryStore interface {
	ledger.EntryWriter
	ledger.EntryLister
	ledger.EntryDeleter
}

// EventPublisher announces entry changes. *amqp.Client implements it.
type EventPublisher interface {
	PublishEntryEvent(ctx context.Context, event, month string, ids []string) error
}

// EntryService orchestrates entry operations across storage and AMQP
type EntryService struct {
	store  EntryStore
	events EventPublisher
}

// NewEntryService wires the store and an optional publisher; events may be nil.
func NewEntryService(store EntryStore, events EventPublisher) *EntryService {
	return &EntryService{store: store, events: events}
}

// CreateEntry assigns an ID, validates and stores a single entry.
func (s *EntryService) CreateEntry(ctx context.Context, e core.Entry) (core.Entry, error) {
	e.Normalize()
	if err := e.Validate(); err != nil {
		return core.Entry{}, err
	}
	e.ID = uuid.NewString()

	if _, err := s.store.Append(ctx, e); err != nil {
		return core.Entry{}, fmt.Errorf("save entry: %w", err)
	}

	s.publish(ctx, amqp.EventEntryCreated, e.Month(), []string{e.ID})
	return e, nil
}

// CreateBulk stores one entry per selected planner day in a single batch.
func (s *EntryService) CreateBulk(ctx context.Context, req core.BulkRequest) ([]core.Entry, error) {
	entries, err := core.BuildBulkEntries(req)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].ID = uuid.NewString()
	}

	ids, err := s.store.AppendBatch(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("save bulk entries: %w", err)
	}

	slog.InfoContext(ctx, "Bulk entries created", "month", req.Month, "count", len(ids))
	s.publish(ctx, amqp.EventEntryCreated, req.Month, ids)
	return entries, nil
}

// DeleteEntries removes the given entries. Unknown IDs are ignored.
func (s *EntryService) DeleteEntries(ctx context.Context, ids ...string) (int, error) {
	byMonth := map[core.MonthKey][]string{}
	for _, id := range ids {
		e, err := s.store.GetEntry(ctx, id)
		if errors.Is(err, ledger.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("load entry %s: %w", id, err)
		}
		byMonth[e.Month()] = append(byMonth[e.Month()], id)
	}

	n, err := s.store.DeleteEntries(ctx, ids...)
	if err != nil {
		return 0, fmt.Errorf("delete entries: %w", err)
	}
	for month, monthIDs := range byMonth {
		s.publish(ctx, amqp.EventEntryDeleted, month, monthIDs)
	}
	return n, nil
}

// DeleteEntry removes one entry and reports ledger.ErrNotFound for unknown IDs.
func (s *EntryService) DeleteEntry(ctx context.Context, id string) error {
	n, err := s.DeleteEntries(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// SuggestedDistance returns the distance of the most recent entry.
func (s *EntryService) SuggestedDistance(ctx context.Context) (string, error) {
	all, err := s.store.ListEntries(ctx, "")
	if err != nil {
		return "", err
	}
	d := core.SuggestedDistance(all)
	if d.IsZero() {
		return "", nil
	}
	return core.FormatQuantity(d), nil
}

// AvailableMonths lists months for the month selector.
func (s *EntryService) AvailableMonths(ctx context.Context, selected core.MonthKey) ([]core.MonthKey, error) {
	months, err := s.store.ListMonths(ctx)
	if err != nil {
		return nil, fmt.Errorf("list months: %w", err)
	}
	return core.AvailableMonths(months, core.Today().Time, selected), nil
}

func (s *EntryService) publish(ctx context.Context, event string, month core.MonthKey, ids []string) {
	if s.events == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping entry event", "event", event)
		return
	}
	if err := s.events.PublishEntryEvent(ctx, event, string(month), ids); err != nil {
		// entries are stored; the event is best effort
		slog.ErrorContext(ctx, "Failed to publish entry event",
			"event", event, "month", month, "error", err)
	}
}
