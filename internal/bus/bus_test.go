package bus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/applytrack/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestRouter() *Router {
	r := NewRouter(testLogger)
	r.RegisterHandlers(map[domain.MessageType]HandlerFunc{
		domain.MsgUpdateBadge: func(ctx context.Context, data json.RawMessage) (any, error) {
			var p domain.CountPayload
			if err := json.Unmarshal(data, &p); err != nil {
				return nil, err
			}
			return domain.CountPayload{Count: p.Count * 2}, nil
		},
		domain.MsgJobApplication: func(ctx context.Context, data json.RawMessage) (any, error) {
			return nil, domain.ErrNotAuthenticated
		},
		domain.MsgRetryFailed: func(ctx context.Context, data json.RawMessage) (any, error) {
			panic("boom")
		},
		domain.MsgClearBadge: func(ctx context.Context, data json.RawMessage) (any, error) {
			return nil, errors.New("storage offline")
		},
	})
	return r
}

func TestRouter_Dispatch(t *testing.T) {
	r := newTestRouter()
	ctx := context.Background()

	tests := []struct {
		name        string
		req         Request
		wantSuccess bool
		wantData    string
		wantError   string
	}{
		{
			name:        "handler result",
			req:         Request{Type: domain.MsgUpdateBadge, Data: json.RawMessage(`{"count":2}`)},
			wantSuccess: true,
			wantData:    `{"count":4}`,
		},
		{
			name:      "handler error",
			req:       Request{Type: domain.MsgClearBadge},
			wantError: "storage offline",
		},
		{
			name:      "handler panic",
			req:       Request{Type: domain.MsgRetryFailed},
			wantError: "handler panic: boom",
		},
		{
			name:      "unknown type",
			req:       Request{Type: "NOPE"},
			wantError: "unknown message type: NOPE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := r.Dispatch(ctx, tt.req)
			assert.Equal(t, tt.wantSuccess, resp.Success)
			if tt.wantData != "" {
				assert.JSONEq(t, tt.wantData, string(resp.Data))
			}
			assert.Equal(t, tt.wantError, resp.Error)
		})
	}
}

func TestClient_Local(t *testing.T) {
	ctx := context.Background()
	client := NewClient(NewLocal(newTestRouter()), time.Second)

	var out domain.CountPayload
	require.NoError(t, client.Send(ctx, domain.MsgUpdateBadge, domain.CountPayload{Count: 3}, &out))
	assert.Equal(t, 6, out.Count)

	err := client.Send(ctx, domain.MsgJobApplication, nil, nil)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)

	err = client.Send(ctx, domain.MsgClearBadge, nil, nil)
	require.ErrorAs(t, err, &remote)
	assert.NotErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.Equal(t, "storage offline", remote.Message)
}

func TestClient_LocalStopped(t *testing.T) {
	local := NewLocal(newTestRouter())
	client := NewClient(local, time.Second)

	local.Stop()
	err := client.Send(context.Background(), domain.MsgUpdateBadge, domain.CountPayload{}, nil)
	assert.ErrorIs(t, err, domain.ErrBackgroundUnavailable)

	local.Start()
	assert.NoError(t, client.Send(context.Background(), domain.MsgUpdateBadge, domain.CountPayload{}, nil))
}

func TestClient_HungHandlerTimesOut(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})

	r := NewRouter(testLogger)
	r.RegisterHandlers(map[domain.MessageType]HandlerFunc{
		domain.MsgJobApplication: func(ctx context.Context, _ json.RawMessage) (any, error) {
			<-release
			close(finished)
			return nil, nil
		},
	})

	client := NewClient(NewLocal(r), 20*time.Millisecond)
	err := client.Send(context.Background(), domain.MsgJobApplication, nil, nil)
	assert.ErrorIs(t, err, domain.ErrBackgroundUnavailable)

	// the handler is not abandoned when the caller gives up
	close(release)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("handler did not finish")
	}
}

func TestLocal_ServesOneRequestAtATime(t *testing.T) {
	var active, maxActive atomic.Int32

	r := NewRouter(testLogger)
	r.RegisterHandlers(map[domain.MessageType]HandlerFunc{
		domain.MsgUpdateBadge: func(ctx context.Context, _ json.RawMessage) (any, error) {
			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			return nil, nil
		},
	})

	client := NewClient(NewLocal(r), time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, client.Send(context.Background(), domain.MsgUpdateBadge, nil, nil))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
}
