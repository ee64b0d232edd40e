package background

import (
	"fmt"
	"log/slog"

	"github.com/cuongbtq/applytrack/internal/domain"
)

// Notifier emits user-facing notifications as structured log events
type Notifier struct {
	logger *slog.Logger
}

func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{logger: logger.With(slog.String("component", "notifier"))}
}

func (n *Notifier) Tracked(rec domain.JobRecord) {
	n.logger.Info("Job application tracked",
		slog.String("title", "Job Application Tracked"),
		slog.String("message", fmt.Sprintf("%s at %s has been saved to your dashboard.", rec.JobTitle, rec.CompanyName)),
	)
}

// Delivered and DeliveryFailed let the Notifier observe the sync queue
func (n *Notifier) Delivered(rec domain.JobRecord) {
	n.Tracked(rec)
}

func (n *Notifier) DeliveryFailed(rec domain.JobRecord, cause error) {
	n.Failed(fmt.Errorf("delivery of %s failed after %d attempt(s): %w", rec.JobURL, rec.RetryCount, cause))
}

func (n *Notifier) Failed(err error) {
	n.logger.Warn("Failed to track application",
		slog.String("title", "Failed to Track Application"),
		slog.Any("error", err),
	)
}

func (n *Notifier) PendingSaved(count int) {
	suffix := ""
	if count > 1 {
		suffix = "s"
	}
	n.logger.Info("Job saved, action required",
		slog.String("title", "Job Saved - Action Required"),
		slog.String("message", fmt.Sprintf("You have %d pending job%s waiting for confirmation.", count, suffix)),
		slog.Int("count", count),
	)
}
