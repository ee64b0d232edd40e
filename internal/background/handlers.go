// Package background hosts the delivery side of the pipeline: it answers
// bus requests from page sessions and owns the sync queue.
package background

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/applytrack/internal/bus"
	"github.com/cuongbtq/applytrack/internal/domain"
)

// Queue is the delivery queue the handlers feed. Enqueue and RetryFailed
// return once the work is queued; delivery outcomes reach the Notifier
// through the queue's observer.
type Queue interface {
	Enqueue(ctx context.Context, rec domain.JobRecord)
	RetryFailed(ctx context.Context) (int, error)
	FailedCount(ctx context.Context) (int, error)
}

// Authenticator decides whether delivery may be attempted
type Authenticator interface {
	Authenticated(ctx context.Context) error
}

// Handlers serves the message catalogue
type Handlers struct {
	queue    Queue
	auth     Authenticator
	badge    *Badge
	notifier *Notifier
	logger   *slog.Logger
}

func NewHandlers(queue Queue, auth Authenticator, badge *Badge, notifier *Notifier, logger *slog.Logger) *Handlers {
	return &Handlers{
		queue:    queue,
		auth:     auth,
		badge:    badge,
		notifier: notifier,
		logger:   logger,
	}
}

// Register installs every handler on r
func (h *Handlers) Register(r *bus.Router) {
	r.RegisterHandlers(map[domain.MessageType]bus.HandlerFunc{
		domain.MsgJobApplication:      h.jobApplication,
		domain.MsgExternalApplyCached: h.externalApplyCached,
		domain.MsgUpdateBadge:         h.updateBadge,
		domain.MsgClearBadge:          h.clearBadge,
		domain.MsgRetryFailed:         h.retryFailed,
		domain.MsgGetFailedCount:      h.failedCount,
	})
}

// jobApplication answers as soon as the record is queued. The reply
// carries the failed count seen at that moment, not this record's outcome.
func (h *Handlers) jobApplication(ctx context.Context, data json.RawMessage) (any, error) {
	var rec domain.JobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode job record: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	if err := h.auth.Authenticated(ctx); err != nil {
		h.notifier.Failed(err)
		return nil, err
	}

	h.queue.Enqueue(ctx, rec)

	failed, err := h.queue.FailedCount(ctx)
	if err != nil {
		return nil, err
	}
	return domain.CaptureResult{Accepted: true, FailedCount: failed}, nil
}

func (h *Handlers) externalApplyCached(_ context.Context, data json.RawMessage) (any, error) {
	p, err := decodeCount(data)
	if err != nil {
		return nil, err
	}

	h.notifier.PendingSaved(p.Count)
	h.badge.Set(p.Count)
	return nil, nil
}

func (h *Handlers) updateBadge(_ context.Context, data json.RawMessage) (any, error) {
	p, err := decodeCount(data)
	if err != nil {
		return nil, err
	}

	h.badge.Set(p.Count)
	return nil, nil
}

func (h *Handlers) clearBadge(context.Context, json.RawMessage) (any, error) {
	h.badge.Clear()
	return nil, nil
}

func (h *Handlers) retryFailed(ctx context.Context, _ json.RawMessage) (any, error) {
	if err := h.auth.Authenticated(ctx); err != nil {
		return nil, err
	}

	retried, err := h.queue.RetryFailed(ctx)
	if err != nil {
		return nil, err
	}

	failed, err := h.queue.FailedCount(ctx)
	if err != nil {
		return nil, err
	}

	h.logger.Info("Retry pass started",
		slog.Int("retried", retried),
		slog.Int("failed", failed),
	)
	return domain.RetryResult{Retried: retried, FailedCount: failed}, nil
}

func (h *Handlers) failedCount(ctx context.Context, _ json.RawMessage) (any, error) {
	n, err := h.queue.FailedCount(ctx)
	if err != nil {
		return nil, err
	}
	return domain.CountPayload{Count: n}, nil
}

// decodeCount treats a missing body as zero
func decodeCount(data json.RawMessage) (domain.CountPayload, error) {
	var p domain.CountPayload
	if len(data) == 0 || string(data) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to decode count: %w", err)
	}
	return p, nil
}
