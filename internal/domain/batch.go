package domain

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// ItemStatus represents the processing state of a single link within a batch.
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

func (s ItemStatus) String() string { return string(s) }

func (s ItemStatus) IsValid() bool {
	switch s {
	case ItemStatusPending, ItemStatusProcessing, ItemStatusCompleted, ItemStatusFailed:
		return true
	}
	return false
}

func (s ItemStatus) IsTerminal() bool {
	return s == ItemStatusCompleted || s == ItemStatusFailed
}

// SubmitMode records which path drives a batch. A batch is driven by exactly one.
type SubmitMode string

const (
	SubmitModeNone         SubmitMode = ""
	SubmitModeOrchestrated SubmitMode = "orchestrated"
	SubmitModeQueued       SubmitMode = "queued"
)

func (m SubmitMode) String() string { return string(m) }

// Stats holds aggregate counters. Pending+Completed+Failed always equals Total.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

func (s Stats) Resolved() int { return s.Completed + s.Failed }

// Percent returns the rounded share of resolved items.
func (s Stats) Percent() int {
	if s.Total <= 0 {
		return 0
	}
	return int(math.Round(float64(s.Resolved()) / float64(s.Total) * 100))
}

type Item struct {
	URL    string        `json:"url"`
	Index  int           `json:"index"`
	Status ItemStatus    `json:"status"`
	Result *ScrapeResult `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// MessageRef points at a chat message that can be edited in place.
type MessageRef struct {
	ChatID    string `json:"chatId"`
	MessageID int64  `json:"messageId"`
}

// Batch is a set of links submitted together. All mutation goes through its
// methods, which serialize on the batch mutex.
type Batch struct {
	ID          string
	Destination Destination
	CreatedAt   time.Time

	mu            sync.Mutex
	mode          SubmitMode
	finished      bool
	statusMessage *MessageRef
	items         []Item
	stats         Stats
}

// BatchSnapshot is an immutable copy of a batch used for rendering and responses.
type BatchSnapshot struct {
	ID          string      `json:"batchId"`
	Destination Destination `json:"destination"`
	CreatedAt   time.Time   `json:"createdAt"`
	Mode        SubmitMode  `json:"mode,omitempty"`
	Stats       Stats       `json:"stats"`
	Items       []Item      `json:"items"`
}

func NewBatch(id string, urls []string, dest Destination, createdAt time.Time) (*Batch, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: batch id is required", ErrValidation)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: batch must include at least one url", ErrValidation)
	}

	items := make([]Item, len(urls))
	for i, u := range urls {
		items[i] = Item{
			URL:    u,
			Index:  i,
			Status: ItemStatusPending,
		}
	}

	return &Batch{
		ID:          id,
		Destination: dest,
		CreatedAt:   createdAt,
		items:       items,
		stats: Stats{
			Total:   len(urls),
			Pending: len(urls),
		},
	}, nil
}

// Claim binds the batch to a submission mode. A batch can be claimed once.
func (b *Batch) Claim(mode SubmitMode) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if mode == SubmitModeNone {
		return fmt.Errorf("%w: submit mode is required", ErrValidation)
	}
	if b.mode != SubmitModeNone {
		return fmt.Errorf("%w: batch %s already submitted in %s mode", ErrConflict, b.ID, b.mode)
	}
	b.mode = mode
	return nil
}

func (b *Batch) Mode() SubmitMode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

// SetStatusMessage stores the status message reference. Only the first call wins.
func (b *Batch) SetStatusMessage(ref MessageRef) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.statusMessage != nil {
		return false
	}
	b.statusMessage = &ref
	return true
}

func (b *Batch) StatusMessage() (MessageRef, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.statusMessage == nil {
		return MessageRef{}, false
	}
	return *b.statusMessage, true
}

func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

func (b *Batch) Item(index int) (Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkIndex(index); err != nil {
		return Item{}, err
	}
	return b.items[index], nil
}

func (b *Batch) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Done reports whether every item reached a terminal state.
func (b *Batch) Done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats.Pending == 0
}

// Finish marks a fully resolved batch as finished. It reports true only for
// the first call after every item reached a terminal state.
func (b *Batch) Finish() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stats.Pending > 0 || b.finished {
		return false
	}
	b.finished = true
	return true
}

// Begin moves an item from pending to processing.
func (b *Batch) Begin(index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.begin(index)
}

// Complete moves a processing item to completed and records its result.
// A completed item always carries a result.
func (b *Batch) Complete(index int, result *ScrapeResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.complete(index, result)
}

// Fail moves a processing item to failed and records the failure message.
func (b *Batch) Fail(index int, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fail(index, message)
}

// Resolve settles an item from outside the orchestrator loop. A pending item
// passes through processing first; a terminal item is rejected.
func (b *Batch) Resolve(index int, result *ScrapeResult, message string, success bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkIndex(index); err != nil {
		return err
	}
	if success && result == nil {
		return missingResultError(b.ID, index)
	}
	if b.items[index].Status == ItemStatusPending {
		if err := b.begin(index); err != nil {
			return err
		}
	}
	if success {
		return b.complete(index, result)
	}
	return b.fail(index, message)
}

func (b *Batch) Snapshot() BatchSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := make([]Item, len(b.items))
	copy(items, b.items)

	return BatchSnapshot{
		ID:          b.ID,
		Destination: b.Destination,
		CreatedAt:   b.CreatedAt,
		Mode:        b.mode,
		Stats:       b.stats,
		Items:       items,
	}
}

func (b *Batch) begin(index int) error {
	if err := b.checkIndex(index); err != nil {
		return err
	}
	item := &b.items[index]
	if item.Status != ItemStatusPending {
		return transitionError(b.ID, index, item.Status, ItemStatusProcessing)
	}
	item.Status = ItemStatusProcessing
	return nil
}

func (b *Batch) complete(index int, result *ScrapeResult) error {
	if err := b.checkIndex(index); err != nil {
		return err
	}
	item := &b.items[index]
	if item.Status != ItemStatusProcessing {
		return transitionError(b.ID, index, item.Status, ItemStatusCompleted)
	}
	if result == nil {
		return missingResultError(b.ID, index)
	}
	item.Status = ItemStatusCompleted
	item.Result = result
	b.stats.Pending--
	b.stats.Completed++
	return nil
}

func (b *Batch) fail(index int, message string) error {
	if err := b.checkIndex(index); err != nil {
		return err
	}
	item := &b.items[index]
	if item.Status != ItemStatusProcessing {
		return transitionError(b.ID, index, item.Status, ItemStatusFailed)
	}
	if strings.TrimSpace(message) == "" {
		message = "unknown error"
	}
	item.Status = ItemStatusFailed
	item.Error = message
	b.stats.Pending--
	b.stats.Failed++
	return nil
}

func (b *Batch) checkIndex(index int) error {
	if index < 0 || index >= len(b.items) {
		return fmt.Errorf("%w: item index %d out of range [0,%d)", ErrValidation, index, len(b.items))
	}
	return nil
}

func transitionError(batchID string, index int, from, to ItemStatus) error {
	return fmt.Errorf("%w: batch %s item %d %s -> %s", ErrInvalidTransition, batchID, index, from, to)
}

func missingResultError(batchID string, index int) error {
	return fmt.Errorf("%w: batch %s item %d cannot complete without a scrape result", ErrValidation, batchID, index)
}
