// Package applyflow sequences the clicks of one page visit into at most one
// emitted job record per application.
package applyflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/applytrack/internal/domain"
	"github.com/cuongbtq/applytrack/internal/platform"
)

// DefaultTimeout bounds the wait for a success signal on the page
const DefaultTimeout = 6 * time.Second

type State string

const (
	StateIdle                 State = "IDLE"
	StateEasyApplyStarted     State = "EASY_APPLY_STARTED"
	StateAwaitingConfirmation State = "AWAITING_CONFIRMATION"
	StateComplete             State = "COMPLETE"
	StateAbandoned            State = "ABANDONED"
	StateExternalApplyCached  State = "EXTERNAL_APPLY_CACHED"
)

// Sink receives emitted records
type Sink interface {
	// Deliver hands over a record whose submission was observed on the page
	Deliver(ctx context.Context, rec domain.JobRecord) error
	// CachePending stores a record whose submission happens off the page
	CachePending(ctx context.Context, rec domain.JobRecord) error
}

// Config holds machine configuration
type Config struct {
	Adapter platform.Adapter
	Page    *platform.Page
	Sink    Sink
	Logger  *slog.Logger
	Timeout time.Duration
	// OnTransition, when set, is called for every state change
	OnTransition func(from, to State)
}

// Machine is owned by one page visit. Terminal states are passed through
// and the machine is back in IDLE before HandleClick returns, or when the
// observation settles for Easy Apply and direct apply.
type Machine struct {
	adapter      platform.Adapter
	page         *platform.Page
	sink         Sink
	logger       *slog.Logger
	timeout      time.Duration
	onTransition func(from, to State)

	mu       sync.Mutex
	state    State
	snapshot *domain.JobRecord
	wg       sync.WaitGroup
}

func New(cfg *Config) *Machine {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Machine{
		adapter:      cfg.Adapter,
		page:         cfg.Page,
		sink:         cfg.Sink,
		logger:       cfg.Logger.With(slog.String("platform", string(cfg.Adapter.Platform()))),
		timeout:      timeout,
		onTransition: cfg.OnTransition,
		state:        StateIdle,
	}
}

// State returns the current state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Wait blocks until every in-flight completion observation has settled
func (m *Machine) Wait() {
	m.wg.Wait()
}

// transitionLocked must be called with m.mu held
func (m *Machine) transitionLocked(to State) {
	from := m.state
	m.state = to
	m.logger.Debug("Apply state changed",
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	if m.onTransition != nil {
		m.onTransition(from, to)
	}
}

// finishLocked passes through a terminal state and resets to IDLE
func (m *Machine) finishLocked(terminal State) {
	m.transitionLocked(terminal)
	m.snapshot = nil
	m.transitionLocked(StateIdle)
}

// HandleClick classifies c and advances the machine. It returns the state
// the click led to; for terminal outcomes that is the terminal state even
// though the machine has already reset to IDLE. Only sink errors of an
// external apply are returned; observed flows log theirs.
func (m *Machine) HandleClick(ctx context.Context, c platform.Control) (State, error) {
	flow := m.adapter.Classify(c)
	if flow == domain.FlowNone {
		return m.State(), nil
	}

	m.logger.Info("Apply control clicked",
		slog.String("flow", flow.String()),
		slog.String("text", c.Text),
	)

	switch flow {
	case domain.FlowEasyApply:
		return m.startEasyApply(), nil
	case domain.FlowSubmit:
		return m.submit(ctx), nil
	case domain.FlowDirectApply:
		return m.directApply(ctx), nil
	case domain.FlowExternalApply:
		return m.leavePage(ctx)
	}

	return m.State(), nil
}

// startEasyApply snapshots the job now; the dialog may hide the details
func (m *Machine) startEasyApply() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateAwaitingConfirmation {
		m.logger.Debug("Easy Apply ignored while awaiting confirmation")
		return m.state
	}

	m.snapshot = m.adapter.Extract(m.page)
	if m.snapshot == nil {
		m.logger.Warn("No job details at Easy Apply start, will re-extract on completion")
	}

	m.transitionLocked(StateEasyApplyStarted)
	return m.state
}

func (m *Machine) submit(ctx context.Context) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateEasyApplyStarted {
		m.logger.Debug("Submit ignored outside an Easy Apply flow",
			slog.String("state", string(m.state)),
		)
		return m.state
	}

	m.transitionLocked(StateAwaitingConfirmation)

	m.wg.Add(1)
	go m.observe(ctx, domain.FlowSubmit)

	return m.state
}

// directApply snapshots the job and waits for the success banner. Without
// a banner the record is kept pending for the user to confirm.
func (m *Machine) directApply(ctx context.Context) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateAwaitingConfirmation {
		m.logger.Debug("Apply ignored while awaiting confirmation")
		return m.state
	}

	rec := m.adapter.Extract(m.page)
	if err := rec.Validate(); err != nil {
		m.logger.Warn("Cannot capture application", slog.Any("error", err))
		m.finishLocked(StateAbandoned)
		return StateAbandoned
	}

	m.snapshot = rec
	m.transitionLocked(StateAwaitingConfirmation)

	m.wg.Add(1)
	go m.observe(ctx, domain.FlowDirectApply)

	return m.state
}

// observe settles an Easy Apply submit or a direct apply once the page
// shows success or the timeout passes
func (m *Machine) observe(ctx context.Context, flow domain.ApplyFlow) {
	defer m.wg.Done()

	seen := WaitFor(ctx, m.page, m.adapter.Completed, m.timeout)

	m.mu.Lock()
	if !seen && flow != domain.FlowDirectApply {
		m.logger.Info("No completion signal, application abandoned",
			slog.Duration("timeout", m.timeout),
		)
		m.finishLocked(StateAbandoned)
		m.mu.Unlock()
		return
	}

	rec := m.snapshot
	if rec == nil {
		rec = m.adapter.Extract(m.page)
	}
	if err := rec.Validate(); err != nil {
		m.logger.Warn("Completed application has incomplete details", slog.Any("error", err))
		m.finishLocked(StateAbandoned)
		m.mu.Unlock()
		return
	}

	if !seen {
		m.logger.Info("No completion signal, keeping application pending",
			slog.Duration("timeout", m.timeout),
		)
		m.finishLocked(StateExternalApplyCached)
		m.mu.Unlock()
		m.report(flow, *rec, m.sink.CachePending(ctx, *rec))
		return
	}

	m.finishLocked(StateComplete)
	m.mu.Unlock()
	m.report(flow, *rec, m.sink.Deliver(ctx, *rec))
}

func (m *Machine) report(flow domain.ApplyFlow, rec domain.JobRecord, err error) {
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrDuplicatePending):
		m.logger.Info("Application already pending", slog.String("job_url", rec.JobURL))
	default:
		m.logger.Error("Failed to hand over application",
			slog.String("flow", flow.String()),
			slog.String("job_url", rec.JobURL),
			slog.Any("error", err),
		)
	}
}

// leavePage extracts fresh data; the page is about to be left or replaced
func (m *Machine) leavePage(ctx context.Context) (State, error) {
	m.mu.Lock()
	if m.state == StateAwaitingConfirmation {
		m.mu.Unlock()
		m.logger.Debug("Apply ignored while awaiting confirmation")
		return StateAwaitingConfirmation, nil
	}

	rec := m.adapter.Extract(m.page)
	if err := rec.Validate(); err != nil {
		m.logger.Warn("Cannot capture application", slog.Any("error", err))
		m.finishLocked(StateAbandoned)
		m.mu.Unlock()
		return StateAbandoned, nil
	}

	m.finishLocked(StateExternalApplyCached)
	m.mu.Unlock()

	err := m.sink.CachePending(ctx, *rec)
	if err != nil && !errors.Is(err, domain.ErrDuplicatePending) {
		m.report(domain.FlowExternalApply, *rec, err)
	}
	return StateExternalApplyCached, err
}
