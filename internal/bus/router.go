package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cuongbtq/applytrack/internal/domain"
)

// HandlerFunc serves one message type. The returned value is encoded as the
// response data.
type HandlerFunc func(ctx context.Context, data json.RawMessage) (any, error)

// Router dispatches requests to registered handlers
type Router struct {
	mu       sync.RWMutex
	handlers map[domain.MessageType]HandlerFunc
	logger   *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		handlers: make(map[domain.MessageType]HandlerFunc),
		logger:   logger,
	}
}

// RegisterHandlers adds or replaces handlers
func (r *Router) RegisterHandlers(handlers map[domain.MessageType]HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for t, h := range handlers {
		r.handlers[t] = h
	}
}

// Dispatch runs the handler to completion and always returns a response.
// Errors and panics become {success: false}.
func (r *Router) Dispatch(ctx context.Context, req Request) (resp Response) {
	r.mu.RLock()
	h, ok := r.handlers[req.Type]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("No handler for message",
			slog.String("type", string(req.Type)),
		)
		return failure(fmt.Errorf("%w: %s", domain.ErrUnknownMessage, req.Type))
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Message handler panicked",
				slog.String("type", string(req.Type)),
				slog.Any("panic", p),
			)
			resp = failure(fmt.Errorf("handler panic: %v", p))
		}
	}()

	result, err := h(ctx, req.Data)
	if err != nil {
		r.logger.Warn("Message handler failed",
			slog.String("type", string(req.Type)),
			slog.Any("error", err),
		)
		return failure(err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return failure(fmt.Errorf("failed to encode response: %w", err))
	}

	return Response{Success: true, Data: data}
}

// failure collapses not-authenticated errors to the bare signal so the
// sender can match it with errors.Is
func failure(err error) Response {
	msg := err.Error()
	if errors.Is(err, domain.ErrNotAuthenticated) {
		msg = domain.ErrNotAuthenticated.Error()
	}
	return Response{Success: false, Error: msg}
}
