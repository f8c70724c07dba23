package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/mateit-cloudware/mate-sentinel/internal/security"
)

// EventPruner removes persisted events older than a cutoff. Satisfied by
// the audit database sink; nil when persistence is disabled.
type EventPruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SweepManager periodically evicts expired rate windows, stale login
// attempt records, and old security events.
type SweepManager struct {
	engine    *security.Engine
	pruner    EventPruner
	retention time.Duration
	logger    *slog.Logger
	interval  time.Duration
	stopCh    chan struct{}
}

// NewSweepManager creates a new sweep manager.
func NewSweepManager(
	engine *security.Engine,
	pruner EventPruner,
	retention time.Duration,
	logger *slog.Logger,
	interval time.Duration,
) *SweepManager {
	return &SweepManager{
		engine:    engine,
		pruner:    pruner,
		retention: retention,
		logger:    logger,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic sweep task. Blocks until Stop is called or the
// context is cancelled; run it on its own goroutine.
func (sm *SweepManager) Start(ctx context.Context) {
	ticker := time.NewTicker(sm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	sm.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			sm.runSweep(ctx)
		case <-sm.stopCh:
			sm.logger.Info("sweep manager stopped")
			return
		case <-ctx.Done():
			sm.logger.Info("sweep manager context cancelled")
			return
		}
	}
}

func (sm *SweepManager) runSweep(ctx context.Context) {
	now := time.Now()
	report := sm.engine.Sweep(now)

	if report.WindowsEvicted > 0 || report.AttemptsEvicted > 0 || report.EventsPruned > 0 {
		sm.logger.Info("security sweep completed",
			slog.Int("windows_evicted", report.WindowsEvicted),
			slog.Int("attempts_evicted", report.AttemptsEvicted),
			slog.Int("events_pruned", report.EventsPruned),
		)
	}

	if sm.pruner == nil {
		return
	}

	pruneCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rowsDeleted, err := sm.pruner.PruneOlderThan(pruneCtx, now.Add(-sm.retention))
	if err != nil {
		sm.logger.Error("failed to prune persisted events", slog.Any("error", err))
		return
	}
	if rowsDeleted > 0 {
		sm.logger.Info("persisted event prune completed", slog.Int64("rows_deleted", rowsDeleted))
	}
}

// Stop signals the sweep manager to stop
func (sm *SweepManager) Stop() {
	close(sm.stopCh)
}
