// Package capture is the page side of the pipeline. A Session follows one
// page visit; the Controller hands emitted records to the pending store or
// across the bus, and answers the user's confirm/decline choices.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/applytrack/internal/bus"
	"github.com/cuongbtq/applytrack/internal/domain"
	"github.com/cuongbtq/applytrack/internal/pending"
)

// Controller implements applyflow.Sink
type Controller struct {
	sender  bus.Sender
	pending *pending.Store
	logger  *slog.Logger
}

func NewController(sender bus.Sender, store *pending.Store, logger *slog.Logger) *Controller {
	return &Controller{
		sender:  sender,
		pending: store,
		logger:  logger,
	}
}

// Deliver sends rec to the background for delivery
func (c *Controller) Deliver(ctx context.Context, rec domain.JobRecord) error {
	_, err := c.send(ctx, rec)
	return err
}

func (c *Controller) send(ctx context.Context, rec domain.JobRecord) (*domain.CaptureResult, error) {
	var res domain.CaptureResult
	if err := c.sender.Send(ctx, domain.MsgJobApplication, rec, &res); err != nil {
		c.surface(err)
		return nil, err
	}

	c.logger.Info("Job handed to background",
		slog.String("job_url", rec.JobURL),
		slog.Bool("accepted", res.Accepted),
		slog.Int("failed_count", res.FailedCount),
	)
	return &res, nil
}

// CachePending stores rec until the user confirms it. The badge update is
// best effort; the record is already durable.
func (c *Controller) CachePending(ctx context.Context, rec domain.JobRecord) error {
	job, err := c.pending.Add(ctx, rec)
	if err != nil {
		return err
	}

	count, err := c.pending.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count pending jobs: %w", err)
	}

	c.logger.Info("Job saved for confirmation",
		slog.String("id", job.ID),
		slog.String("job_title", job.JobTitle),
		slog.Int("pending", count),
	)

	if err := c.sender.Send(ctx, domain.MsgExternalApplyCached, domain.CountPayload{Count: count}, nil); err != nil {
		c.surface(err)
	}
	return nil
}

// Prompt returns the pending job to ask about on page load, or nil
func (c *Controller) Prompt(ctx context.Context) (*domain.PendingJob, error) {
	jobs, err := c.pending.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

// Pending lists every job awaiting confirmation
func (c *Controller) Pending(ctx context.Context) ([]domain.PendingJob, error) {
	return c.pending.List(ctx)
}

// Confirm delivers the pending job and removes it once the background has
// accepted it. On any error the job stays pending.
func (c *Controller) Confirm(ctx context.Context, id string) (*domain.CaptureResult, error) {
	job, err := c.pending.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := c.send(ctx, job.JobRecord)
	if err != nil {
		return nil, err
	}
	if !res.Accepted {
		c.logger.Warn("Background did not accept job, keeping it pending", slog.String("id", id))
		return res, nil
	}

	remaining, err := c.pending.Remove(ctx, id)
	if err != nil {
		return res, fmt.Errorf("failed to remove confirmed job: %w", err)
	}

	c.syncBadge(ctx, remaining)
	return res, nil
}

// Decline drops the pending job without delivering it
func (c *Controller) Decline(ctx context.Context, id string) error {
	remaining, err := c.pending.Remove(ctx, id)
	if err != nil {
		return err
	}

	c.logger.Info("Pending job declined", slog.String("id", id))
	c.syncBadge(ctx, remaining)
	return nil
}

// RetryFailed asks the background to re-deliver failed jobs
func (c *Controller) RetryFailed(ctx context.Context) (*domain.RetryResult, error) {
	var res domain.RetryResult
	if err := c.sender.Send(ctx, domain.MsgRetryFailed, nil, &res); err != nil {
		c.surface(err)
		return nil, err
	}
	return &res, nil
}

// FailedCount asks the background how many deliveries await retry
func (c *Controller) FailedCount(ctx context.Context) (int, error) {
	var res domain.CountPayload
	if err := c.sender.Send(ctx, domain.MsgGetFailedCount, nil, &res); err != nil {
		c.surface(err)
		return 0, err
	}
	return res.Count, nil
}

func (c *Controller) syncBadge(ctx context.Context, remaining int) {
	var err error
	if remaining == 0 {
		err = c.sender.Send(ctx, domain.MsgClearBadge, nil, nil)
	} else {
		err = c.sender.Send(ctx, domain.MsgUpdateBadge, domain.CountPayload{Count: remaining}, nil)
	}
	if err != nil {
		c.surface(err)
	}
}

// surface logs the user-visible errors with the action the user should take
func (c *Controller) surface(err error) {
	switch {
	case errors.Is(err, domain.ErrNotAuthenticated):
		c.logger.Warn("Not authenticated, please log in again", slog.Any("error", err))
	case errors.Is(err, domain.ErrBackgroundUnavailable):
		c.logger.Warn("Background unavailable, please reload the page", slog.Any("error", err))
	default:
		c.logger.Error("Request to background failed", slog.Any("error", err))
	}
}
