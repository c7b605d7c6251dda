package repository

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/linkbot/internal/domain"
)

// BatchStore owns the set of in-flight batches. Batches live in memory only.
type BatchStore interface {
	Create(urls []string, chatID string, userID string) (*domain.Batch, error)
	Get(id string) (*domain.Batch, error)
	Remove(id string)
	ScheduleRemoval(id string, after time.Duration) bool
	Len() int
}

type stopper interface {
	Stop() bool
}

type batchEntry struct {
	batch   *domain.Batch
	removal stopper
}

var _ BatchStore = (*MemoryBatchStore)(nil)

// MemoryBatchStore keeps batches in a map guarded by a mutex. Each entry owns
// its pending removal timer, which is stopped when the entry goes away.
type MemoryBatchStore struct {
	mu      sync.Mutex
	entries map[string]*batchEntry

	newID     func() string
	now       func() time.Time
	afterFunc func(d time.Duration, f func()) stopper
}

func NewMemoryBatchStore() *MemoryBatchStore {
	return &MemoryBatchStore{
		entries: make(map[string]*batchEntry),
		newID:   uuid.NewString,
		now:     time.Now,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

func (s *MemoryBatchStore) Create(urls []string, chatID string, userID string) (*domain.Batch, error) {
	dest := domain.Destination{ChatID: chatID, UserID: userID}
	if err := dest.Validate(); err != nil {
		return nil, err
	}

	batch, err := domain.NewBatch(s.newID(), urls, dest, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[batch.ID]; exists {
		return nil, fmt.Errorf("%w: batch %s already exists", domain.ErrConflict, batch.ID)
	}
	s.entries[batch.ID] = &batchEntry{batch: batch}
	return batch, nil
}

func (s *MemoryBatchStore) Get(id string) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: batch %s", domain.ErrNotFound, id)
	}
	return entry.batch, nil
}

// Remove deletes the batch and cancels its pending removal. Unknown ids are ignored.
func (s *MemoryBatchStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return
	}
	if entry.removal != nil {
		entry.removal.Stop()
	}
	delete(s.entries, id)
}

// ScheduleRemoval removes the batch after the given delay, replacing any
// earlier schedule. It reports false when the batch is unknown.
func (s *MemoryBatchStore) ScheduleRemoval(id string, after time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return false
	}
	if entry.removal != nil {
		entry.removal.Stop()
	}

	entry.removal = s.afterFunc(after, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if current, ok := s.entries[id]; ok && current == entry {
			delete(s.entries, id)
		}
	})
	return true
}

func (s *MemoryBatchStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
