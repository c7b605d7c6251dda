package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dlxExchangeName  = "linkbot.dlx"
	dialTimeout      = 15 * time.Second
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
)

// Options tunes the declared topology.
type Options struct {
	// MessageTTL dead-letters link messages nobody consumed in time. Their
	// batch has been evicted by then. Zero keeps messages forever.
	MessageTTL time.Duration
	// Shards is the number of scrape queue shards. Publishers and workers
	// must agree on it.
	Shards int
}

// queueSpec describes one declared queue and the dead-letter queue it feeds.
type queueSpec struct {
	name       string
	dlq        string
	routingKey string
	args       amqp.Table
}

// RabbitMQ owns the broker connection. Topology is declared once per
// connection, before the first channel is handed out.
type RabbitMQ struct {
	url    string
	shards int
	queues []queueSpec

	mu          sync.RWMutex
	reconnectMu sync.Mutex
	conn        *amqp.Connection
	declared    bool
}

func NewRabbitMQ(url string, opts Options) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	if opts.Shards < 1 {
		opts.Shards = 1
	}
	r := &RabbitMQ{url: url, shards: opts.Shards, queues: topology(opts)}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if _, err := r.channel(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.declared = false
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}

	return conn.Close()
}

// route maps a logical queue to the physical queue for batchID.
func (r *RabbitMQ) route(queue string, batchID string) string {
	if queue == ScrapeQueue {
		return ShardFor(queue, batchID, r.shards)
	}
	return queue
}

// Ping reports whether a broker connection is available, reconnecting if needed.
func (r *RabbitMQ) Ping(ctx context.Context) error {
	_, err := r.connection(ctx)
	return err
}

// channel opens a channel on the current connection, redialing once when the
// connection went away underneath us.
func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	conn, err := r.connection(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		r.drop(conn)
		if conn, err = r.connection(ctx); err != nil {
			return nil, err
		}
		if ch, err = conn.Channel(); err != nil {
			return nil, fmt.Errorf("failed to create rabbitmq channel after reconnect: %w", err)
		}
	}

	if err := r.declareOnce(conn, ch); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return ch, nil
}

func (r *RabbitMQ) connection(ctx context.Context) (*amqp.Connection, error) {
	r.mu.RLock()
	conn := r.conn
	r.mu.RUnlock()

	if conn != nil && !conn.IsClosed() {
		return conn, nil
	}

	return r.reconnectWithBackoff(ctx)
}

func (r *RabbitMQ) drop(conn *amqp.Connection) {
	r.mu.Lock()
	if r.conn == conn {
		r.conn = nil
		r.declared = false
	}
	r.mu.Unlock()

	if conn != nil && !conn.IsClosed() {
		_ = conn.Close()
	}
}

func (r *RabbitMQ) reconnectWithBackoff(ctx context.Context) (*amqp.Connection, error) {
	r.reconnectMu.Lock()
	defer r.reconnectMu.Unlock()

	r.mu.RLock()
	conn := r.conn
	r.mu.RUnlock()
	if conn != nil && !conn.IsClosed() {
		return conn, nil
	}

	wait := reconnectBackoff
	for {
		newConn, err := amqp.Dial(r.url)
		if err == nil {
			r.mu.Lock()
			r.conn = newConn
			r.declared = false
			r.mu.Unlock()
			return newConn, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rabbitmq reconnect canceled: %w", ctx.Err())
		case <-time.After(wait):
		}

		wait = min(wait*2, maxBackoff)
	}
}

func (r *RabbitMQ) declareOnce(conn *amqp.Connection, ch *amqp.Channel) error {
	r.mu.RLock()
	done := r.declared && r.conn == conn
	r.mu.RUnlock()
	if done {
		return nil
	}

	if err := declareTopology(ch, r.queues); err != nil {
		return err
	}

	r.mu.Lock()
	if r.conn == conn {
		r.declared = true
	}
	r.mu.Unlock()
	return nil
}

func topology(opts Options) []queueSpec {
	names := WorkQueueNames(opts.Shards)
	specs := make([]queueSpec, 0, len(names))
	for _, name := range names {
		args := amqp.Table{
			"x-dead-letter-exchange":    dlxExchangeName,
			"x-dead-letter-routing-key": scrapeRoutingKey,
			"x-single-active-consumer":  true,
		}
		if opts.MessageTTL > 0 {
			args["x-message-ttl"] = opts.MessageTTL.Milliseconds()
		}
		specs = append(specs, queueSpec{
			name:       name,
			dlq:        DLQName(ScrapeQueue),
			routingKey: scrapeRoutingKey,
			args:       args,
		})
	}
	return specs
}

func declareTopology(ch *amqp.Channel, queues []queueSpec) error {
	if err := ch.ExchangeDeclare(dlxExchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlx exchange: %w", err)
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dlq %q: %w", q.dlq, err)
		}
		if err := ch.QueueBind(q.dlq, q.routingKey, dlxExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind dlq %q: %w", q.dlq, err)
		}
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", q.name, err)
		}
	}

	return nil
}
