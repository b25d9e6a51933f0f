package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
)

// AutoCloseWorker periodically closes aged Resolved tickets. The sweep is
// idempotent; its predicate self-excludes rows already Closed, so
// overlapping runs converge on the same final set.
type AutoCloseWorker struct {
	tickets  repository.TicketRepository
	settings *service.SettingsService
	logger   *zap.Logger
	metrics  *observability.Metrics
	interval time.Duration
	now      func() time.Time
}

// AutoCloseDependencies bundles collaborators for the worker.
type AutoCloseDependencies struct {
	TicketRepo repository.TicketRepository
	Settings   *service.SettingsService
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Interval   time.Duration
	Now        func() time.Time
}

// NewAutoCloseWorker constructs the worker.
func NewAutoCloseWorker(deps AutoCloseDependencies) *AutoCloseWorker {
	interval := deps.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &AutoCloseWorker{
		tickets:  deps.TicketRepo,
		settings: deps.Settings,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		interval: interval,
		now:      now,
	}
}

// Run fires one sweep immediately, then on the configured interval until
// the context is cancelled. The threshold is read live from settings on
// every fire, so central updates apply without a restart.
func (w *AutoCloseWorker) Run(ctx context.Context) {
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("auto-close worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns the tickets it closed.
func (w *AutoCloseWorker) Sweep(ctx context.Context) (int, error) {
	threshold := w.settings.AutoCloseThreshold()
	cutoff := w.now().Add(-threshold)
	closed, err := w.tickets.CloseAgedResolved(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	return len(closed), nil
}

func (w *AutoCloseWorker) sweep(ctx context.Context) {
	start := w.now()
	closed, err := w.Sweep(ctx)
	if err != nil {
		w.logger.Error("auto-close sweep failed", zap.Error(err))
		return
	}
	w.metrics.RecordAutoCloseSweep(closed)
	if closed > 0 {
		w.logger.Info("auto-close sweep finished",
			zap.Int("closed", closed),
			zap.Duration("elapsed", w.now().Sub(start)))
	}
}
