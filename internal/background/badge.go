package background

import (
	"log/slog"
	"strconv"
	"sync"
)

// BadgeColor is shown behind a non-empty badge
const BadgeColor = "#2563eb"

// Badge is the pending-count indicator of the background context
type Badge struct {
	logger *slog.Logger

	mu    sync.RWMutex
	text  string
	color string
}

func NewBadge(logger *slog.Logger) *Badge {
	return &Badge{logger: logger}
}

// Set shows count, or clears the badge when count is zero
func (b *Badge) Set(count int) {
	if count <= 0 {
		b.Clear()
		return
	}

	b.mu.Lock()
	b.text = strconv.Itoa(count)
	b.color = BadgeColor
	b.mu.Unlock()

	b.logger.Debug("Badge updated", slog.Int("count", count))
}

func (b *Badge) Clear() {
	b.mu.Lock()
	b.text = ""
	b.mu.Unlock()

	b.logger.Debug("Badge cleared")
}

func (b *Badge) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text
}

func (b *Badge) Color() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.color
}
