package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/applytrack/internal/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ClientBroker is the part of shared/rabbitmq.Client the RPC client needs
type ClientBroker interface {
	DeclareReplyQueue() (string, error)
	ConsumeReplies(queue string) (<-chan amqp.Delivery, error)
	Consumers() (int, error)
	Request(ctx context.Context, body []byte, correlationID, replyTo string, expiration time.Duration) error
}

// AMQPClient is a Transport over RabbitMQ using a private reply queue and
// correlation ids
type AMQPClient struct {
	broker  ClientBroker
	logger  *slog.Logger
	replyTo string

	mu      sync.Mutex
	pending map[string]chan Response
	closed  bool
	done    chan struct{}
	once    sync.Once
}

func NewAMQPClient(broker ClientBroker, logger *slog.Logger) (*AMQPClient, error) {
	queue, err := broker.DeclareReplyQueue()
	if err != nil {
		return nil, err
	}

	replies, err := broker.ConsumeReplies(queue)
	if err != nil {
		return nil, err
	}

	c := &AMQPClient{
		broker:  broker,
		logger:  logger,
		replyTo: queue,
		pending: make(map[string]chan Response),
		done:    make(chan struct{}),
	}
	go c.readReplies(replies)

	return c, nil
}

func (c *AMQPClient) readReplies(replies <-chan amqp.Delivery) {
	defer c.shutdown()

	for {
		select {
		case <-c.done:
			return
		case d, ok := <-replies:
			if !ok {
				c.logger.Warn("Reply channel closed")
				return
			}

			var resp Response
			if err := json.Unmarshal(d.Body, &resp); err != nil {
				c.logger.Error("Failed to parse reply JSON",
					slog.String("correlation_id", d.CorrelationId),
					slog.Any("error", err),
				)
				continue
			}

			c.mu.Lock()
			ch, ok := c.pending[d.CorrelationId]
			delete(c.pending, d.CorrelationId)
			c.mu.Unlock()

			if !ok {
				c.logger.Debug("Reply for an abandoned request",
					slog.String("correlation_id", d.CorrelationId),
				)
				continue
			}
			ch <- resp
		}
	}
}

// shutdown fails every waiting request and rejects new ones
func (c *AMQPClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *AMQPClient) RoundTrip(ctx context.Context, req Request) (Response, error) {
	consumers, err := c.broker.Consumers()
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", domain.ErrBackgroundUnavailable, err)
	}
	if consumers == 0 {
		return Response{}, fmt.Errorf("%w: no consumer on request queue", domain.ErrBackgroundUnavailable)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode request: %w", err)
	}

	id := uuid.NewString()
	ch := make(chan Response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Response{}, fmt.Errorf("%w: reply channel closed", domain.ErrBackgroundUnavailable)
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	// an unanswered request must not be served after its caller gave up
	var expiration time.Duration
	if deadline, ok := ctx.Deadline(); ok {
		expiration = time.Until(deadline)
	}

	if err := c.broker.Request(ctx, body, id, c.replyTo, expiration); err != nil {
		return Response{}, fmt.Errorf("%w: %v", domain.ErrBackgroundUnavailable, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return Response{}, fmt.Errorf("%w: reply channel closed", domain.ErrBackgroundUnavailable)
		}
		return resp, nil
	case <-ctx.Done():
		return Response{}, fmt.Errorf("%w: %v", domain.ErrBackgroundUnavailable, ctx.Err())
	}
}

// Close stops reading replies; waiting requests fail as unavailable
func (c *AMQPClient) Close() {
	c.once.Do(func() { close(c.done) })
}
