package filestore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner removes expired uploads on a cron schedule.
//
// Common schedules:
//   - "*/10 * * * *" - every 10 minutes
//   - "0 * * * *"    - hourly
type Pruner struct {
	store    *Store
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

func NewPruner(store *Store, schedule string) *Pruner {
	return &Pruner{
		store:    store,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "filestore.pruner"),
	}
}

// Start schedules pruning. It does nothing when no schedule is configured or
// the store keeps files for the life of the process.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.schedule == "" || p.store.Retention() <= 0 {
		p.logger.Info("file pruning disabled", "schedule", p.schedule, "retention", p.store.Retention())
		return nil
	}

	if _, err := cron.ParseStandard(p.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", p.schedule, err)
	}

	if _, err := p.cron.AddFunc(p.schedule, func() {
		p.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	p.cron.Start()
	p.running = true

	p.logger.Info("file pruner started",
		"schedule", p.schedule,
		"retention", p.store.Retention().String(),
	)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()

	return nil
}

// RunOnce prunes every file older than the store's retention.
func (p *Pruner) RunOnce(ctx context.Context) (int, error) {
	cutoff := p.store.now().Add(-p.store.Retention())

	removed, err := p.store.Prune(ctx, cutoff)
	if err != nil {
		p.logger.Error("file pruning failed", "error", err)
		return removed, err
	}

	if removed > 0 {
		p.logger.Info("file pruning completed", "removed", removed)
	} else {
		p.logger.Debug("file pruning completed, nothing expired")
	}
	return removed, nil
}

// Stop halts the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		<-p.cron.Stop().Done()
		p.running = false
		p.logger.Info("file pruner stopped")
	}
}

func (p *Pruner) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.running
}

// NextRun returns the next scheduled prune, or nil when not scheduled.
func (p *Pruner) NextRun() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
