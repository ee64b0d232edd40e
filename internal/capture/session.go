package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/applytrack/internal/applyflow"
	"github.com/cuongbtq/applytrack/internal/domain"
	"github.com/cuongbtq/applytrack/internal/platform"
)

// Session is one visit to a job page
type Session struct {
	adapter platform.Adapter
	page    *platform.Page
	machine *applyflow.Machine
	logger  *slog.Logger
}

// NewSession returns ErrUnsupportedPage when no board matches url
func NewSession(registry *platform.Registry, url, html string, sink applyflow.Sink, timeout time.Duration, logger *slog.Logger) (*Session, error) {
	adapter, ok := registry.ForURL(url)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedPage, url)
	}

	page, err := platform.NewPageFromHTML(url, html)
	if err != nil {
		return nil, fmt.Errorf("failed to load page: %w", err)
	}

	logger = logger.With(slog.String("url", url))
	return &Session{
		adapter: adapter,
		page:    page,
		machine: applyflow.New(&applyflow.Config{
			Adapter: adapter,
			Page:    page,
			Sink:    sink,
			Logger:  logger,
			Timeout: timeout,
		}),
		logger: logger,
	}, nil
}

func (s *Session) Page() *platform.Page { return s.page }

func (s *Session) State() applyflow.State { return s.machine.State() }

// Mutate replaces the page content
func (s *Session) Mutate(html string) error {
	return s.page.ReplaceHTML(html)
}

// Click resolves the first element matching selector to its control and
// feeds it to the state machine. Clicks outside any control are ignored.
func (s *Session) Click(ctx context.Context, selector string) (applyflow.State, error) {
	target := s.page.Document().Find(selector).First()
	if target.Length() == 0 {
		return s.machine.State(), fmt.Errorf("no element matches %q", selector)
	}

	control, ok := s.adapter.Control(target)
	if !ok {
		s.logger.Debug("Click outside a control", slog.String("selector", selector))
		return s.machine.State(), nil
	}
	return s.machine.HandleClick(ctx, control)
}

// ClickControl feeds an already resolved control
func (s *Session) ClickControl(ctx context.Context, c platform.Control) (applyflow.State, error) {
	return s.machine.HandleClick(ctx, c)
}

// Close waits for in-flight observations to settle
func (s *Session) Close() {
	s.machine.Wait()
}
