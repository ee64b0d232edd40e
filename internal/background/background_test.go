package background

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/applytrack/internal/bus"
	"github.com/cuongbtq/applytrack/internal/domain"
	"github.com/cuongbtq/applytrack/internal/kvstore"
	"github.com/cuongbtq/applytrack/internal/syncqueue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu    sync.Mutex
	fail  bool
	token bool
	delay time.Duration
	saved []domain.JobRecord
}

func (b *fakeBackend) SaveJob(_ context.Context, rec domain.JobRecord) error {
	b.mu.Lock()
	delay := b.delay
	b.mu.Unlock()
	time.Sleep(delay)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("backend unavailable")
	}
	b.saved = append(b.saved, rec)
	return nil
}

func (b *fakeBackend) Authenticated(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.token {
		return domain.ErrNotAuthenticated
	}
	return nil
}

func (b *fakeBackend) setFail(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = v
}

func (b *fakeBackend) savedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.saved)
}

type harness struct {
	client  *bus.Client
	local   *bus.Local
	queue   *syncqueue.Queue
	backend *fakeBackend
	badge   *Badge
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	kv, err := kvstore.OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	backend := &fakeBackend{token: true}
	queue := syncqueue.New(&syncqueue.Config{
		Deliverer: backend,
		Failed:    syncqueue.NewFailedStore(kv),
		Metrics:   syncqueue.NewMetrics(prometheus.NewRegistry()),
		Logger:    logger,
		Interval:  time.Millisecond,
	})

	badge := NewBadge(logger)
	router := bus.NewRouter(logger)
	NewHandlers(queue, backend, badge, NewNotifier(logger), logger).Register(router)

	local := bus.NewLocal(router)
	return &harness{
		client:  bus.NewClient(local, time.Second),
		local:   local,
		queue:   queue,
		backend: backend,
		badge:   badge,
	}
}

func job(url string) domain.JobRecord {
	return domain.JobRecord{
		JobTitle:    "Backend Engineer",
		CompanyName: "Acme",
		JobURL:      url,
		Platform:    domain.PlatformLinkedIn,
		AppliedAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestHandlers_JobApplication(t *testing.T) {
	ctx := context.Background()

	t.Run("delivered", func(t *testing.T) {
		h := newHarness(t)
		var res domain.CaptureResult
		require.NoError(t, h.client.Send(ctx, domain.MsgJobApplication, job("https://jobs.example/1"), &res))
		assert.True(t, res.Accepted)
		assert.Zero(t, res.FailedCount)

		h.queue.Wait()
		assert.Equal(t, 1, h.backend.savedCount())
	})

	t.Run("delivery failure is recorded", func(t *testing.T) {
		h := newHarness(t)
		h.backend.setFail(true)
		var res domain.CaptureResult
		require.NoError(t, h.client.Send(ctx, domain.MsgJobApplication, job("https://jobs.example/1"), &res))
		assert.True(t, res.Accepted)

		h.queue.Wait()
		var count domain.CountPayload
		require.NoError(t, h.client.Send(ctx, domain.MsgGetFailedCount, nil, &count))
		assert.Equal(t, 1, count.Count)
	})

	t.Run("backend slower than the bus timeout", func(t *testing.T) {
		h := newHarness(t)
		h.backend.delay = 200 * time.Millisecond
		client := bus.NewClient(h.local, 50*time.Millisecond)

		var res domain.CaptureResult
		require.NoError(t, client.Send(ctx, domain.MsgJobApplication, job("https://jobs.example/1"), &res))
		assert.True(t, res.Accepted)
		assert.Zero(t, h.backend.savedCount(), "reply does not wait for the backend")

		h.queue.Wait()
		assert.Equal(t, 1, h.backend.savedCount())
	})

	t.Run("not authenticated", func(t *testing.T) {
		h := newHarness(t)
		h.backend.token = false
		err := h.client.Send(ctx, domain.MsgJobApplication, job("https://jobs.example/1"), nil)
		assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
		assert.Zero(t, h.backend.savedCount())
	})

	t.Run("incomplete record", func(t *testing.T) {
		h := newHarness(t)
		rec := job("https://jobs.example/1")
		rec.CompanyName = ""
		err := h.client.Send(ctx, domain.MsgJobApplication, rec, nil)
		var remote *bus.RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Contains(t, remote.Message, "missing company name")
	})
}

func TestHandlers_RetryFailed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.backend.setFail(true)
	for _, u := range []string{"https://jobs.example/1", "https://jobs.example/2"} {
		require.NoError(t, h.client.Send(ctx, domain.MsgJobApplication, job(u), nil))
	}
	h.queue.Wait()

	var count domain.CountPayload
	require.NoError(t, h.client.Send(ctx, domain.MsgGetFailedCount, nil, &count))
	assert.Equal(t, 2, count.Count)

	h.backend.setFail(false)
	var res domain.RetryResult
	require.NoError(t, h.client.Send(ctx, domain.MsgRetryFailed, nil, &res))
	assert.Equal(t, 2, res.Retried)
	assert.Zero(t, res.FailedCount)

	h.queue.Wait()
	assert.Equal(t, 2, h.backend.savedCount())
	require.NoError(t, h.client.Send(ctx, domain.MsgGetFailedCount, nil, &count))
	assert.Zero(t, count.Count)
}

func TestHandlers_Badge(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	tests := []struct {
		name string
		msg  domain.MessageType
		data any
		text string
	}{
		{"external apply cached", domain.MsgExternalApplyCached, domain.CountPayload{Count: 2}, "2"},
		{"update", domain.MsgUpdateBadge, domain.CountPayload{Count: 3}, "3"},
		{"update to zero", domain.MsgUpdateBadge, domain.CountPayload{Count: 0}, ""},
		{"update without body", domain.MsgUpdateBadge, nil, ""},
		{"set again", domain.MsgUpdateBadge, domain.CountPayload{Count: 1}, "1"},
		{"clear", domain.MsgClearBadge, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, h.client.Send(ctx, tt.msg, tt.data, nil))
			assert.Equal(t, tt.text, h.badge.Text())
		})
	}
	assert.Equal(t, BadgeColor, h.badge.Color())
}

type staticCounter struct {
	n   int
	err error
}

func (c staticCounter) Count(context.Context) (int, error) { return c.n, c.err }

func TestReconciler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("start reconciles immediately", func(t *testing.T) {
		badge := NewBadge(logger)
		r := NewReconciler("@every 1h", staticCounter{n: 4}, badge, logger)
		require.NoError(t, r.Start(context.Background()))
		defer r.Stop()
		assert.Equal(t, "4", badge.Text())
	})

	t.Run("count error leaves badge", func(t *testing.T) {
		badge := NewBadge(logger)
		badge.Set(2)
		r := NewReconciler("", staticCounter{err: errors.New("storage down")}, badge, logger)
		assert.Error(t, r.Reconcile(context.Background()))
		assert.Equal(t, "2", badge.Text())
	})

	t.Run("invalid schedule", func(t *testing.T) {
		r := NewReconciler("every now and then", staticCounter{}, NewBadge(logger), logger)
		assert.Error(t, r.Start(context.Background()))
	})
}
