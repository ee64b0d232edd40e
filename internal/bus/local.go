package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cuongbtq/applytrack/internal/domain"
)

// Local serves requests in-process, one at a time. Stop simulates a
// background context that went away.
type Local struct {
	router  *Router
	serial  sync.Mutex
	stopped atomic.Bool
}

func NewLocal(router *Router) *Local {
	return &Local{router: router}
}

func (l *Local) RoundTrip(ctx context.Context, req Request) (Response, error) {
	if l.stopped.Load() {
		return Response{}, domain.ErrBackgroundUnavailable
	}

	done := make(chan Response, 1)
	go func() {
		l.serial.Lock()
		defer l.serial.Unlock()
		// the handler runs to completion even if the caller stops waiting
		done <- l.router.Dispatch(context.WithoutCancel(ctx), req)
	}()

	select {
	case resp := <-done:
		return resp, nil
	case <-ctx.Done():
		return Response{}, fmt.Errorf("%w: %v", domain.ErrBackgroundUnavailable, ctx.Err())
	}
}

func (l *Local) Stop()  { l.stopped.Store(true) }
func (l *Local) Start() { l.stopped.Store(false) }
