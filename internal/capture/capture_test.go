package capture

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/applytrack/internal/applyflow"
	bgpkg "github.com/cuongbtq/applytrack/internal/background"
	"github.com/cuongbtq/applytrack/internal/bus"
	"github.com/cuongbtq/applytrack/internal/domain"
	"github.com/cuongbtq/applytrack/internal/kvstore"
	"github.com/cuongbtq/applytrack/internal/pending"
	"github.com/cuongbtq/applytrack/internal/platform"
	"github.com/cuongbtq/applytrack/internal/syncqueue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const naukriURL = "https://www.naukri.com/job-listings-senior-go-developer-acme-120325"

const naukriPage = `<html><body>
<h1 class="styles_jd-header-title__rZwM1">Senior Go Developer</h1>
<div class="styles_jd-header-comp-name__MvqAI"><a href="/acme">Acme Technologies</a> 4.329 Reviews</div>
<button id="company-site-button" class="styles_company-site-button__C_2YK">Apply on company site</button>
</body></html>`

const linkedInURL = "https://www.linkedin.com/jobs/view/4012345678/"

const linkedInPage = `<html><body>
<h1 class="t-24 t-bold">Backend Engineer</h1>
<div class="job-details-jobs-unified-top-card__company-name"><a href="/company/acme/">Acme</a></div>
<button class="jobs-apply-button artdeco-button"><span>Easy Apply</span></button>
</body></html>`

const linkedInDialog = `<html><body>
<div role="dialog"><h2>Apply to Acme</h2>
<button aria-label="Submit application"><span>Submit application</span></button></div>
</body></html>`

const linkedInSent = `<html><body><div role="dialog"><h2>Application sent</h2></div></body></html>`

// background records what reached the other side of the bus
type background struct {
	mu        sync.Mutex
	delivered []domain.JobRecord
	badges    []string
	accept    bool
}

func (b *background) router() *bus.Router {
	r := bus.NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.RegisterHandlers(map[domain.MessageType]bus.HandlerFunc{
		domain.MsgJobApplication: func(_ context.Context, data json.RawMessage) (any, error) {
			var rec domain.JobRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return nil, err
			}
			b.mu.Lock()
			defer b.mu.Unlock()
			b.delivered = append(b.delivered, rec)
			return domain.CaptureResult{Accepted: b.accept}, nil
		},
		domain.MsgExternalApplyCached: b.badge("cached"),
		domain.MsgUpdateBadge:         b.badge("update"),
		domain.MsgClearBadge:          b.badge("clear"),
		domain.MsgRetryFailed: func(context.Context, json.RawMessage) (any, error) {
			return domain.RetryResult{Retried: 1}, nil
		},
		domain.MsgGetFailedCount: func(context.Context, json.RawMessage) (any, error) {
			return domain.CountPayload{Count: 3}, nil
		},
	})
	return r
}

func (b *background) badge(kind string) bus.HandlerFunc {
	return func(_ context.Context, _ json.RawMessage) (any, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.badges = append(b.badges, kind)
		return nil, nil
	}
}

func (b *background) deliveredURLs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.delivered))
	for _, r := range b.delivered {
		out = append(out, r.JobURL)
	}
	return out
}

func (b *background) badgeLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.badges...)
}

type fixture struct {
	bg         *background
	local      *bus.Local
	store      *pending.Store
	controller *Controller
	registry   *platform.Registry
	logger     *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	kv, err := kvstore.OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	bg := &background{accept: true}
	local := bus.NewLocal(bg.router())
	store := pending.NewStore(kv, logger)

	return &fixture{
		bg:         bg,
		local:      local,
		store:      store,
		controller: NewController(bus.NewClient(local, time.Second), store, logger),
		registry:   platform.NewRegistry(logger),
		logger:     logger,
	}
}

func (f *fixture) session(t *testing.T, url, html string) *Session {
	t.Helper()
	s, err := NewSession(f.registry, url, html, f.controller, time.Second, f.logger)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func (f *fixture) pendingCount(t *testing.T) int {
	t.Helper()
	n, err := f.store.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestExternalApply_ConfirmDeliversOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.session(t, naukriURL, naukriPage)

	state, err := s.Click(ctx, "#company-site-button")
	require.NoError(t, err)
	assert.Equal(t, applyflow.StateExternalApplyCached, state)
	assert.Equal(t, 1, f.pendingCount(t))
	assert.Empty(t, f.bg.deliveredURLs(), "nothing delivered before confirmation")
	assert.Equal(t, []string{"cached"}, f.bg.badgeLog())

	job, err := f.controller.Prompt(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "Acme Technologies", job.CompanyName)

	res, err := f.controller.Confirm(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	assert.Equal(t, []string{naukriURL}, f.bg.deliveredURLs())
	assert.Zero(t, f.pendingCount(t))
	assert.Equal(t, []string{"cached", "clear"}, f.bg.badgeLog())

	_, err = f.controller.Confirm(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrPendingNotFound)
	assert.Len(t, f.bg.deliveredURLs(), 1)
}

func TestExternalApply_DeclineDeliversNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.session(t, naukriURL, naukriPage)

	_, err := s.Click(ctx, "#company-site-button")
	require.NoError(t, err)

	job, err := f.controller.Prompt(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, f.controller.Decline(ctx, job.ID))
	assert.Zero(t, f.pendingCount(t))
	assert.Empty(t, f.bg.deliveredURLs())

	job, err = f.controller.Prompt(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestExternalApply_DuplicateLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.session(t, naukriURL, naukriPage)

	_, err := s.Click(ctx, "#company-site-button")
	require.NoError(t, err)
	before, err := f.store.List(ctx)
	require.NoError(t, err)

	_, err = s.Click(ctx, "#company-site-button")
	assert.ErrorIs(t, err, domain.ErrDuplicatePending)

	after, err := f.store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestConfirm_KeepsJobWhenBackgroundUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	job, err := f.store.Add(ctx, domain.JobRecord{
		JobTitle: "Go Developer", CompanyName: "Acme", JobURL: naukriURL,
		Platform: domain.PlatformNaukri, AppliedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	f.local.Stop()
	_, err = f.controller.Confirm(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrBackgroundUnavailable)
	assert.Equal(t, 1, f.pendingCount(t))

	f.local.Start()
	f.bg.accept = false
	res, err := f.controller.Confirm(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, 1, f.pendingCount(t), "kept when not accepted")
}

// slowBackend takes longer to save a job than the bus waits for a reply
type slowBackend struct {
	mu    sync.Mutex
	delay time.Duration
	saved []string
}

func (b *slowBackend) SaveJob(_ context.Context, rec domain.JobRecord) error {
	time.Sleep(b.delay)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saved = append(b.saved, rec.JobURL)
	return nil
}

func (b *slowBackend) Authenticated(context.Context) error { return nil }

func (b *slowBackend) savedURLs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.saved...)
}

func TestConfirm_SlowBackendDeliversOnce(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	kv, err := kvstore.OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	backend := &slowBackend{delay: 150 * time.Millisecond}
	notifier := bgpkg.NewNotifier(logger)
	queue := syncqueue.New(&syncqueue.Config{
		Deliverer: backend,
		Failed:    syncqueue.NewFailedStore(kv),
		Metrics:   syncqueue.NewMetrics(prometheus.NewRegistry()),
		Logger:    logger,
		Observer:  notifier,
		Interval:  time.Millisecond,
	})
	router := bus.NewRouter(logger)
	bgpkg.NewHandlers(queue, backend, bgpkg.NewBadge(logger), notifier, logger).Register(router)

	store := pending.NewStore(kv, logger)
	controller := NewController(bus.NewClient(bus.NewLocal(router), 50*time.Millisecond), store, logger)

	job, err := store.Add(ctx, domain.JobRecord{
		JobTitle: "Go Developer", CompanyName: "Acme", JobURL: naukriURL,
		Platform: domain.PlatformNaukri, AppliedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	res, err := controller.Confirm(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = controller.Confirm(ctx, job.ID)
	assert.ErrorIs(t, err, domain.ErrPendingNotFound)

	queue.Wait()
	assert.Equal(t, []string{naukriURL}, backend.savedURLs())
}

func TestConfirm_UpdatesBadgeWithRemaining(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var ids []string
	for _, u := range []string{"https://www.naukri.com/a", "https://www.naukri.com/b"} {
		job, err := f.store.Add(ctx, domain.JobRecord{JobTitle: "Dev", CompanyName: "Acme", JobURL: u})
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	_, err := f.controller.Confirm(ctx, ids[0])
	require.NoError(t, err)
	require.NoError(t, f.controller.Decline(ctx, ids[1]))
	assert.Equal(t, []string{"update", "clear"}, f.bg.badgeLog())
}

func TestController_RetryAndFailedCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.controller.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried)

	n, err := f.controller.FailedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestNewSession_UnsupportedPage(t *testing.T) {
	f := newFixture(t)
	_, err := NewSession(f.registry, "https://jobs.example.com/1", "<html></html>", f.controller, time.Second, f.logger)
	assert.True(t, errors.Is(err, domain.ErrUnsupportedPage))
}

func TestSession_ClickOutsideControl(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, linkedInURL, linkedInPage)

	state, err := s.Click(context.Background(), "h1")
	require.NoError(t, err)
	assert.Equal(t, applyflow.StateIdle, state)

	_, err = s.Click(context.Background(), "#missing")
	assert.Error(t, err)
}

func events(t *testing.T, evs ...Event) string {
	t.Helper()
	var b strings.Builder
	for _, ev := range evs {
		raw, err := json.Marshal(ev)
		require.NoError(t, err)
		b.Write(raw)
		b.WriteByte('\n')
	}
	return b.String()
}

func TestDriver_EasyApplyDelivers(t *testing.T) {
	f := newFixture(t)
	d := NewDriver(&DriverConfig{
		Registry:   f.registry,
		Controller: f.controller,
		Logger:     f.logger,
		Timeout:    time.Second,
	})

	script := events(t,
		Event{Type: EventLoad, URL: linkedInURL, HTML: linkedInPage},
		Event{Type: EventClick, Selector: "button.jobs-apply-button span"},
		Event{Type: EventMutate, HTML: linkedInDialog},
		Event{Type: EventClick, Selector: `button[aria-label="Submit application"]`},
		Event{Type: EventMutate, HTML: linkedInSent},
	)

	require.NoError(t, d.Run(context.Background(), strings.NewReader(script+"not json\n")))

	f.bg.mu.Lock()
	defer f.bg.mu.Unlock()
	require.Len(t, f.bg.delivered, 1)
	rec := f.bg.delivered[0]
	assert.Equal(t, "Backend Engineer", rec.JobTitle)
	assert.Equal(t, "Acme", rec.CompanyName)
	assert.Equal(t, domain.PlatformLinkedIn, rec.Platform)
	assert.Zero(t, f.pendingCount(t), "no pending job for an observed completion")
}

func TestDriver_ConfirmFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := NewDriver(&DriverConfig{Registry: f.registry, Controller: f.controller, Logger: f.logger, Timeout: time.Second})

	require.NoError(t, d.Handle(ctx, Event{Type: EventLoad, URL: naukriURL, HTML: naukriPage}))
	require.NoError(t, d.Handle(ctx, Event{Type: EventClick, Selector: "#company-site-button"}))
	require.NoError(t, d.Handle(ctx, Event{Type: EventClick, Selector: "#company-site-button"}), "duplicate is reported, not fatal")

	job, err := f.controller.Prompt(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, d.Handle(ctx, Event{Type: EventLoad, URL: naukriURL, HTML: naukriPage}))
	require.NoError(t, d.Handle(ctx, Event{Type: EventConfirm, ID: job.ID}))
	assert.Equal(t, []string{naukriURL}, f.bg.deliveredURLs())

	assert.Error(t, d.Handle(ctx, Event{Type: "scroll"}))
	require.NoError(t, d.Handle(ctx, Event{Type: EventRetry}))
}

func TestDriver_EventsBeforeLoad(t *testing.T) {
	f := newFixture(t)
	d := NewDriver(&DriverConfig{Registry: f.registry, Controller: f.controller, Logger: f.logger})

	assert.Error(t, d.Handle(context.Background(), Event{Type: EventClick, Selector: "button"}))
	assert.Error(t, d.Handle(context.Background(), Event{Type: EventMutate, HTML: "<p>x</p>"}))
}
