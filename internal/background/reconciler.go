package background

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultReconcileSchedule is used when no schedule is configured
const DefaultReconcileSchedule = "@every 1m"

// PendingCounter reports the durable pending count
type PendingCounter interface {
	Count(ctx context.Context) (int, error)
}

// Reconciler re-derives the badge from durable storage. A restarted
// background context starts with an empty badge until the first run.
type Reconciler struct {
	cron     *cron.Cron
	schedule string
	pending  PendingCounter
	badge    *Badge
	logger   *slog.Logger
}

func NewReconciler(schedule string, pending PendingCounter, badge *Badge, logger *slog.Logger) *Reconciler {
	if schedule == "" {
		schedule = DefaultReconcileSchedule
	}

	return &Reconciler{
		cron:     cron.New(),
		schedule: schedule,
		pending:  pending,
		badge:    badge,
		logger:   logger.With(slog.String("component", "reconciler")),
	}
}

// Start schedules the job and runs it once immediately
func (r *Reconciler) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.schedule, func() {
		if err := r.Reconcile(ctx); err != nil {
			r.logger.Error("Failed to reconcile badge", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule reconciler: %w", err)
	}

	r.cron.Start()
	r.logger.Info("Reconciler started", slog.String("schedule", r.schedule))

	if err := r.Reconcile(ctx); err != nil {
		r.logger.Error("Failed to reconcile badge", slog.Any("error", err))
	}
	return nil
}

// Stop waits for a running job to finish
func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("Reconciler stopped")
}

func (r *Reconciler) Reconcile(ctx context.Context) error {
	n, err := r.pending.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count pending jobs: %w", err)
	}

	r.badge.Set(n)
	return nil
}
