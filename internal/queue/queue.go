package queue

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
)

// Publisher publishes link messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg LinkMessage) error
	Close() error
}

// ErrDrop is returned by a handler to dead-letter a message instead of requeueing it.
var ErrDrop = errors.New("drop message")

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg LinkMessage) error

// Consumer consumes link messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	// ScrapeQueue carries one message per batch item. It is split into shards;
	// every message of a batch lands on the same shard, and each shard has a
	// single active consumer, so the items of a batch are scraped one at a
	// time and in order.
	ScrapeQueue = "links.scrape"

	scrapeRoutingKey = "links.scrape"
)

// ShardName returns the physical queue for one shard, e.g. links.scrape.2.
func ShardName(queue string, shard int) string {
	return fmt.Sprintf("%s.%d", queue, shard)
}

// ShardFor returns the shard of queue that owns batchID.
func ShardFor(queue string, batchID string, shards int) string {
	if shards < 1 {
		shards = 1
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(batchID))
	return ShardName(queue, int(h.Sum32()%uint32(shards)))
}

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.links.scrape.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// WorkQueueNames returns the shards of the scrape queue.
func WorkQueueNames(shards int) []string {
	if shards < 1 {
		shards = 1
	}
	names := make([]string, 0, shards)
	for i := 0; i < shards; i++ {
		names = append(names, ShardName(ScrapeQueue, i))
	}
	return names
}

// DLQNames returns all dead-letter queues. Shards share one.
func DLQNames() []string {
	return []string{DLQName(ScrapeQueue)}
}
