package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/applytrack/internal/domain"
)

// DefaultTimeout bounds one round trip
const DefaultTimeout = 20 * time.Second

// Transport carries one request to the background context and waits for
// its response. Implementations return an error wrapping
// domain.ErrBackgroundUnavailable when nobody answers.
type Transport interface {
	RoundTrip(ctx context.Context, req Request) (Response, error)
}

// Sender is what the page context depends on
type Sender interface {
	Send(ctx context.Context, t domain.MessageType, data, out any) error
}

// Client encodes requests and decodes responses over a Transport
type Client struct {
	transport Transport
	timeout   time.Duration
}

func NewClient(transport Transport, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{transport: transport, timeout: timeout}
}

// Send delivers {t, data} and decodes the response data into out (may be nil).
// A handler failure is returned as *RemoteError.
func (c *Client) Send(ctx context.Context, t domain.MessageType, data, out any) error {
	req := Request{Type: t}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", t, err)
		}
		req.Data = raw
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.transport.RoundTrip(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", t, err)
	}

	if !resp.Success {
		return &RemoteError{Type: t, Message: resp.Error}
	}

	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", t, err)
		}
	}

	return nil
}
