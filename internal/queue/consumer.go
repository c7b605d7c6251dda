package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var _ Consumer = (*RabbitMQConsumer)(nil)

// RabbitMQConsumer consumes link messages with manual acks, reconnecting
// with backoff whenever the channel drops.
type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	logger   *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:   client,
		prefetch: prefetch,
		logger:   logger,
	}
}

func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	backoff := reconnectBackoff
	for {
		err := c.consumeOnce(ctx, queue, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = reconnectBackoff
			continue
		}

		c.logger.Warn("consumer interrupted, reconnecting",
			zap.String("queue", queue),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *RabbitMQConsumer) consumeOnce(ctx context.Context, queue string, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			if err := c.handleDelivery(ctx, d, handler); err != nil {
				return err
			}
		}
	}
}

// disposition is what happens to a delivery after the handler ran.
type disposition int

const (
	dispositionAck disposition = iota
	dispositionRequeue
	dispositionDeadLetter
)

// dispositionFor settles a handled delivery. A failing message is requeued
// once; a redelivered message that fails again goes to the dead-letter queue.
func dispositionFor(redelivered bool, err error) disposition {
	switch {
	case err == nil:
		return dispositionAck
	case errors.Is(err, ErrDrop), redelivered:
		return dispositionDeadLetter
	default:
		return dispositionRequeue
	}
}

func decodeDelivery(body []byte) (LinkMessage, error) {
	var msg LinkMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return LinkMessage{}, fmt.Errorf("%w: invalid JSON: %v", ErrDrop, err)
	}
	if err := msg.Validate(); err != nil {
		return LinkMessage{}, fmt.Errorf("%w: %v", ErrDrop, err)
	}
	return msg, nil
}

func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, d amqp.Delivery, handler MessageHandler) error {
	msg, err := decodeDelivery(d.Body)
	if err == nil {
		err = handler(ctx, msg)
	}

	logger := c.logger.With(
		zap.String("messageId", d.MessageId),
		zap.String("batchId", msg.BatchID),
		zap.Int("index", msg.Index),
		zap.Bool("redelivered", d.Redelivered),
	)

	switch dispositionFor(d.Redelivered, err) {
	case dispositionAck:
		if ackErr := d.Ack(false); ackErr != nil {
			return fmt.Errorf("failed to ack delivery: %w", ackErr)
		}
	case dispositionRequeue:
		logger.Warn("requeueing message", zap.Error(err))
		if nackErr := d.Nack(false, true); nackErr != nil {
			return fmt.Errorf("handler failed and nack failed: %w", nackErr)
		}
	case dispositionDeadLetter:
		logger.Warn("dead-lettering message", zap.Error(err))
		if rejectErr := d.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to reject delivery: %w", rejectErr)
		}
	}

	return nil
}

// Close is a no-op. Consumption stops with its context and the shared
// connection is closed by its owner.
func (c *RabbitMQConsumer) Close() error {
	return nil
}
