package services

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"kilometers/internal/core"
	"kilometers/internal/ledger"
	"kilometers/internal/ledger/memory"
)

type publishedEvent struct {
	event string
	month string
	ids   []string
}

type fakePublisher struct {
	mu       sync.Mutex
	events   []publishedEvent
	archives []string
	err      error
}

func (f *fakePublisher) PublishEntryEvent(_ context.Context, event, month string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, publishedEvent{event, month, ids})
	return nil
}

func (f *fakePublisher) PublishArchiveRequest(_ context.Context, month, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.archives = append(f.archives, month)
	return nil
}

var errBroker = errors.New("broker down")

func newStore() *memory.Store {
	return memory.New(ledger.Defaults{})
}

func mustEntry(date, title, km string) core.Entry {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return core.Entry{Date: d, Title: title, Distance: decimal.RequireFromString(km)}
}
