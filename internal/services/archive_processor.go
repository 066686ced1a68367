package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ArchiveProcessorConfig holds configuration for the archive processor
type ArchiveProcessorConfig struct {
	// PollInterval is how often to look for unarchived months (default: 1h)
	PollInterval time.Duration

	// Concurrency bounds parallel renders per cycle (default: 2)
	Concurrency int
}

// DefaultArchiveProcessorConfig returns sensible defaults
func DefaultArchiveProcessorConfig() ArchiveProcessorConfig {
	return ArchiveProcessorConfig{
		PollInterval: time.Hour,
		Concurrency:  2,
	}
}

// ArchiveProcessor periodically archives completed months. It is the fallback used
// when no message broker is configured.
type ArchiveProcessor struct {
	archives *ArchiveService
	config   ArchiveProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewArchiveProcessor(archives *ArchiveService, config ArchiveProcessorConfig) *ArchiveProcessor {
	return &ArchiveProcessor{
		archives: archives,
		config:   config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *ArchiveProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("archive processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Archive processor started",
		"poll_interval", p.config.PollInterval,
		"concurrency", p.config.Concurrency)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *ArchiveProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Archive processor stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Archive processor stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the processor is currently running
func (p *ArchiveProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ArchiveProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on startup
	p.processOnce(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.processOnce(ctx)
		}
	}
}

func (p *ArchiveProcessor) processOnce(ctx context.Context) {
	if p.archives == nil {
		return
	}
	n, err := p.archives.ArchivePending(ctx, p.config.Concurrency)
	if err != nil {
		slog.ErrorContext(ctx, "Archive cycle finished with errors", "archived", n, "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Archive cycle finished", "archived", n)
	}
}
