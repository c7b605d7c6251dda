package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var _ Publisher = (*RabbitMQPublisher)(nil)

// RabbitMQPublisher publishes link messages on a long-lived confirm-mode
// channel. Scrape messages go to their batch's shard. Publish returns only
// after the broker acknowledged the message.
type RabbitMQPublisher struct {
	client *RabbitMQ
	now    func() time.Time

	mu sync.Mutex
	ch *amqp.Channel
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client, now: time.Now}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, queue string, msg LinkMessage) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}

	publishing, err := p.publishing(msg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.confirmChannel(ctx)
	if err != nil {
		return err
	}

	target := p.client.route(queue, msg.BatchID)
	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", target, false, false, publishing)
	if err != nil {
		p.resetChannel()
		return fmt.Errorf("failed to publish message to queue %q: %w", target, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("waiting for publish confirm on %q: %w", target, err)
	}
	if !acked {
		return fmt.Errorf("broker nacked message %s on %q", msg.MessageID(), target)
	}

	return nil
}

func (p *RabbitMQPublisher) publishing(msg LinkMessage) (amqp.Publishing, error) {
	if err := msg.Validate(); err != nil {
		return amqp.Publishing{}, fmt.Errorf("invalid link message: %w", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal link message: %w", err)
	}

	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     p.now().UTC(),
		MessageId:     msg.MessageID(),
		CorrelationId: msg.RequestID,
		Body:          payload,
	}, nil
}

// confirmChannel must be called with p.mu held.
func (p *RabbitMQPublisher) confirmChannel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	p.ch = ch
	return ch, nil
}

func (p *RabbitMQPublisher) resetChannel() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
}

// Close closes the publishing channel. The shared connection is closed by its owner.
func (p *RabbitMQPublisher) Close() error {
	if p == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetChannel()
	return nil
}
