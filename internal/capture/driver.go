package capture

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cuongbtq/applytrack/internal/applyflow"
	"github.com/cuongbtq/applytrack/internal/domain"
	"github.com/cuongbtq/applytrack/internal/platform"
)

// maxEventSize bounds one JSON line; page snapshots can be large
const maxEventSize = 8 << 20

// EventType names a page event
type EventType string

const (
	EventLoad    EventType = "load"
	EventMutate  EventType = "mutate"
	EventClick   EventType = "click"
	EventConfirm EventType = "confirm"
	EventDecline EventType = "decline"
	EventRetry   EventType = "retry"
	EventWait    EventType = "wait"
)

// Event is one line of a page event stream. HTML may be given inline or
// by file path.
type Event struct {
	Type     EventType         `json:"type"`
	URL      string            `json:"url,omitempty"`
	HTML     string            `json:"html,omitempty"`
	HTMLFile string            `json:"htmlFile,omitempty"`
	Selector string            `json:"selector,omitempty"`
	Control  *platform.Control `json:"control,omitempty"`
	ID       string            `json:"id,omitempty"`
}

// DriverConfig holds driver configuration
type DriverConfig struct {
	Registry   *platform.Registry
	Controller *Controller
	Logger     *slog.Logger
	Timeout    time.Duration
}

// Driver replays page events against one session at a time
type Driver struct {
	registry   *platform.Registry
	controller *Controller
	logger     *slog.Logger
	timeout    time.Duration

	session *Session
}

func NewDriver(cfg *DriverConfig) *Driver {
	return &Driver{
		registry:   cfg.Registry,
		controller: cfg.Controller,
		logger:     cfg.Logger,
		timeout:    cfg.Timeout,
	}
}

// Run reads JSON-lines events from r until EOF or ctx is done. Bad events
// are logged and skipped.
func (d *Driver) Run(ctx context.Context, r io.Reader) error {
	defer d.closeSession()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)

	line := 0
	for scanner.Scan() {
		line++
		if ctx.Err() != nil {
			return ctx.Err()
		}

		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			d.logger.Warn("Skipping malformed event", slog.Int("line", line), slog.Any("error", err))
			continue
		}

		if err := d.Handle(ctx, ev); err != nil {
			d.logger.Warn("Event failed",
				slog.Int("line", line),
				slog.String("type", string(ev.Type)),
				slog.Any("error", err),
			)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}
	return nil
}

// Handle applies one event
func (d *Driver) Handle(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventLoad:
		return d.load(ctx, ev)

	case EventMutate:
		if d.session == nil {
			return errors.New("no page loaded")
		}
		html, err := ev.html()
		if err != nil {
			return err
		}
		return d.session.Mutate(html)

	case EventClick:
		if d.session == nil {
			return errors.New("no page loaded")
		}
		var (
			state applyflow.State
			err   error
		)
		if ev.Control != nil {
			state, err = d.session.ClickControl(ctx, *ev.Control)
		} else {
			state, err = d.session.Click(ctx, ev.Selector)
		}
		if errors.Is(err, domain.ErrDuplicatePending) {
			d.logger.Info("Job already saved", slog.String("url", d.session.Page().URL()))
			return nil
		}
		d.logger.Debug("Click handled", slog.String("state", string(state)))
		return err

	case EventConfirm:
		res, err := d.controller.Confirm(ctx, ev.ID)
		if err != nil {
			return err
		}
		d.logger.Info("Pending job confirmed",
			slog.String("id", ev.ID),
			slog.Bool("accepted", res.Accepted),
		)
		return nil

	case EventDecline:
		return d.controller.Decline(ctx, ev.ID)

	case EventRetry:
		res, err := d.controller.RetryFailed(ctx)
		if err != nil {
			return err
		}
		d.logger.Info("Retry requested",
			slog.Int("retried", res.Retried),
			slog.Int("failed_count", res.FailedCount),
		)
		return nil

	case EventWait:
		if d.session != nil {
			d.session.Close()
		}
		return nil
	}

	return fmt.Errorf("unknown event type %q", ev.Type)
}

// load ends the current visit and starts a new one, prompting for a
// pending job if there is one
func (d *Driver) load(ctx context.Context, ev Event) error {
	d.closeSession()

	html, err := ev.html()
	if err != nil {
		return err
	}

	session, err := NewSession(d.registry, ev.URL, html, d.controller, d.timeout, d.logger)
	if err != nil {
		return err
	}
	d.session = session

	job, err := d.controller.Prompt(ctx)
	if err != nil {
		return fmt.Errorf("failed to read pending jobs: %w", err)
	}
	if job != nil {
		d.logger.Info("Did you apply to this job?",
			slog.String("id", job.ID),
			slog.String("job_title", job.JobTitle),
			slog.String("company_name", job.CompanyName),
		)
	}
	return nil
}

func (d *Driver) closeSession() {
	if d.session != nil {
		d.session.Close()
		d.session = nil
	}
}

func (ev Event) html() (string, error) {
	if ev.HTMLFile == "" {
		return ev.HTML, nil
	}
	b, err := os.ReadFile(ev.HTMLFile)
	if err != nil {
		return "", fmt.Errorf("failed to read page file: %w", err)
	}
	return string(b), nil
}
