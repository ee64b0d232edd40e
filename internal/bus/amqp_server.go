package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ServerBroker is the part of shared/rabbitmq.Client the server needs
type ServerBroker interface {
	SetQos(prefetch int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	Reply(ctx context.Context, replyTo, correlationID string, body []byte) error
}

// AMQPServer consumes requests from the RabbitMQ request queue and answers
// each on its reply-to queue. Prefetch is 1, so the broker hands out one
// request at a time, and a request is acknowledged only after its reply
// has been published.
type AMQPServer struct {
	broker      ServerBroker
	router      *Router
	logger      *slog.Logger
	consumerTag string

	mu       sync.Mutex
	stopped  bool
	wg       sync.WaitGroup
	stopChan chan struct{}
}

func NewAMQPServer(broker ServerBroker, router *Router, consumerTag string, logger *slog.Logger) *AMQPServer {
	return &AMQPServer{
		broker:      broker,
		router:      router,
		logger:      logger,
		consumerTag: consumerTag,
		stopChan:    make(chan struct{}),
	}
}

// Start sets up the consumer and serves until ctx is canceled, Stop is
// called or the delivery channel closes. After Stop it returns at once.
func (s *AMQPServer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	if err := s.broker.SetQos(1); err != nil {
		return err
	}

	deliveries, err := s.broker.Consume(s.consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	s.logger.Info("Message bus server started",
		slog.String("consumer_tag", s.consumerTag),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Message bus server stopped - context canceled")
			return nil

		case <-s.stopChan:
			s.logger.Info("Message bus server stopped")
			return nil

		case d, ok := <-deliveries:
			if !ok {
				s.logger.Warn("RabbitMQ delivery channel closed")
				return fmt.Errorf("delivery channel closed")
			}
			select {
			case <-s.stopChan:
				// unacked, so the broker redelivers it to the next consumer
				s.logger.Info("Message bus server stopped")
				return nil
			default:
			}
			s.handle(ctx, d)
		}
	}
}

// Stop ends the serve loop after the in-flight request is answered
func (s *AMQPServer) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopChan)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *AMQPServer) handle(ctx context.Context, d amqp.Delivery) {
	if d.ReplyTo == "" || d.CorrelationId == "" {
		s.logger.Error("Request without reply address",
			slog.Uint64("delivery_tag", d.DeliveryTag),
		)
		if err := d.Nack(false, false); err != nil {
			s.logger.Error("Failed to NACK message", slog.Any("error", err))
		}
		return
	}

	var resp Response
	var req Request
	if err := json.Unmarshal(d.Body, &req); err != nil {
		s.logger.Error("Failed to parse request JSON",
			slog.Any("error", err),
			slog.String("body", string(d.Body)),
		)
		resp = failure(fmt.Errorf("malformed request: %w", err))
	} else {
		resp = s.router.Dispatch(ctx, req)
	}

	body, err := json.Marshal(resp)
	if err != nil {
		body = []byte(`{"success":false,"error":"failed to encode response"}`)
	}

	if err := s.broker.Reply(ctx, d.ReplyTo, d.CorrelationId, body); err != nil {
		s.logger.Error("Failed to publish reply",
			slog.String("correlation_id", d.CorrelationId),
			slog.Any("error", err),
		)
		if nackErr := d.Nack(false, false); nackErr != nil {
			s.logger.Error("Failed to NACK message", slog.Any("error", nackErr))
		}
		return
	}

	if err := d.Ack(false); err != nil {
		s.logger.Error("Failed to ACK message",
			slog.String("correlation_id", d.CorrelationId),
			slog.Any("error", err),
		)
		return
	}

	s.logger.Debug("Request answered",
		slog.String("type", string(req.Type)),
		slog.Bool("success", resp.Success),
	)
}
