package applyflow

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cuongbtq/applytrack/internal/platform"
)

// WaitFor reports whether cond holds for the page within timeout. It
// re-evaluates cond on every DOM change and always returns by the deadline.
func WaitFor(ctx context.Context, page *platform.Page, cond func(*goquery.Document) bool, timeout time.Duration) bool {
	changes, stop := page.Watch()
	defer stop()

	if cond(page.Document()) {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-changes:
			if cond(page.Document()) {
				return true
			}
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}
