// Package syncqueue ships confirmed job records to the backend one at a
// time and keeps every failed delivery in a durable list for retry.
package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/applytrack/internal/domain"
	"golang.org/x/time/rate"
)

// DefaultInterval separates two deliveries
const DefaultInterval = 100 * time.Millisecond

// Deliverer sends one record to the backend
type Deliverer interface {
	SaveJob(ctx context.Context, rec domain.JobRecord) error
}

// Observer is told the outcome of every delivery
type Observer interface {
	Delivered(rec domain.JobRecord)
	DeliveryFailed(rec domain.JobRecord, cause error)
}

type nopObserver struct{}

func (nopObserver) Delivered(domain.JobRecord)             {}
func (nopObserver) DeliveryFailed(domain.JobRecord, error) {}

// Config holds queue configuration
type Config struct {
	Deliverer Deliverer
	Failed    *FailedStore
	Metrics   *Metrics
	Logger    *slog.Logger
	Observer  Observer
	Interval  time.Duration
}

// Queue is an in-memory FIFO drained by at most one goroutine at a time.
// Entries are lost if the process exits; durability lives upstream in the
// pending store and downstream in the failed store.
type Queue struct {
	deliverer Deliverer
	failed    *FailedStore
	metrics   *Metrics
	logger    *slog.Logger
	observer  Observer
	limiter   *rate.Limiter
	now       func() time.Time
	drains    sync.WaitGroup

	mu         sync.Mutex
	entries    []domain.QueueEntry
	processing bool
}

func New(cfg *Config) *Queue {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	return &Queue{
		deliverer: cfg.Deliverer,
		failed:    cfg.Failed,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		observer:  observer,
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
		now:       time.Now,
	}
}

// Enqueue appends rec and drains the queue on a background goroutine that
// outlives ctx. If a drain is already running the new goroutine returns at
// once and the running drain picks the entry up.
func (q *Queue) Enqueue(ctx context.Context, rec domain.JobRecord) {
	q.push(rec)
	q.drainAsync(ctx)
}

func (q *Queue) drainAsync(ctx context.Context) {
	q.drains.Add(1)
	go func() {
		defer q.drains.Done()
		q.Process(context.WithoutCancel(ctx))
	}()
}

// Wait blocks until every background drain has returned
func (q *Queue) Wait() {
	q.drains.Wait()
}

func (q *Queue) push(rec domain.JobRecord) {
	q.mu.Lock()
	q.entries = append(q.entries, domain.QueueEntry{Data: rec, Platform: rec.Platform})
	depth := len(q.entries)
	q.mu.Unlock()

	q.metrics.Depth.Set(float64(depth))
	q.logger.Info("Job queued",
		slog.String("job_url", rec.JobURL),
		slog.Int("queue_length", depth),
	)
}

// Process delivers queued entries strictly in order and returns when the
// queue is empty. A concurrent call returns immediately.
func (q *Queue) Process(ctx context.Context) {
	q.mu.Lock()
	if q.processing {
		q.mu.Unlock()
		return
	}
	q.processing = true
	q.mu.Unlock()

	for {
		entry, ok := q.pop()
		if !ok {
			return
		}

		if err := q.limiter.Wait(ctx); err != nil {
			q.fail(context.WithoutCancel(ctx), entry, err)
			continue
		}

		q.deliver(ctx, entry)
	}
}

// pop clears the processing flag under the same lock that observes the
// queue empty, so an entry pushed afterwards always starts a new drain.
func (q *Queue) pop() (domain.QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		q.processing = false
		q.metrics.Depth.Set(0)
		return domain.QueueEntry{}, false
	}

	entry := q.entries[0]
	q.entries = q.entries[1:]
	q.metrics.Depth.Set(float64(len(q.entries)))
	return entry, true
}

func (q *Queue) deliver(ctx context.Context, entry domain.QueueEntry) {
	rec := entry.Data.WithPlatform(entry.Platform)

	start := time.Now()
	err := q.deliverer.SaveJob(ctx, rec)
	q.metrics.DeliverySeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		q.fail(context.WithoutCancel(ctx), entry, err)
		return
	}

	q.metrics.Delivered.Inc()
	q.logger.Info("Job delivered",
		slog.String("job_title", rec.JobTitle),
		slog.String("company_name", rec.CompanyName),
		slog.String("platform", string(rec.Platform)),
	)
	q.observer.Delivered(rec)
}

func (q *Queue) fail(ctx context.Context, entry domain.QueueEntry, cause error) {
	data := entry.Data.WithPlatform(entry.Platform)
	data.RetryCount++

	failed := domain.FailedJobEntry{
		Data:      data,
		Error:     cause.Error(),
		Timestamp: q.now().UnixMilli(),
	}

	q.metrics.Failed.Inc()
	q.logger.Warn("Failed to deliver job",
		slog.String("job_url", data.JobURL),
		slog.Int("retry_count", data.RetryCount),
		slog.Any("error", cause),
	)

	if err := q.failed.Append(ctx, failed); err != nil {
		q.logger.Error("Failed to persist failed job",
			slog.String("job_url", data.JobURL),
			slog.Any("error", err),
		)
	}
	q.observer.DeliveryFailed(data, cause)
}

// RetryFailed moves every failed entry back into the queue and drains it
// on a background goroutine. It returns the number of entries moved. A
// retry that fails again becomes a new failed entry.
func (q *Queue) RetryFailed(ctx context.Context) (int, error) {
	entries, err := q.failed.Drain(ctx)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	q.logger.Info("Retrying failed jobs",
		slog.Int("count", len(entries)),
	)

	for _, e := range entries {
		q.push(e.Data)
	}
	q.metrics.Retried.Add(float64(len(entries)))

	q.drainAsync(ctx)
	return len(entries), nil
}

func (q *Queue) FailedCount(ctx context.Context) (int, error) {
	return q.failed.Count(ctx)
}

// Len returns the number of entries waiting in memory
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func decodeEntries(raw []byte, dest *[]domain.FailedJobEntry) error {
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to decode failed jobs: %w", err)
	}
	return nil
}
