package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/linkbot/internal/domain"
	"github.com/kursadbilgin/linkbot/internal/queue"
	"github.com/kursadbilgin/linkbot/internal/repository"
	"github.com/kursadbilgin/linkbot/internal/scraper"
	"go.uber.org/zap"
)

// eventLog records the order of collaborator calls across goroutines.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeTransport struct {
	mu     sync.Mutex
	sends  []string
	edits  []string
	sendFn func(ctx context.Context, chatID string, text string) (domain.MessageRef, error)
	editFn func(ctx context.Context, ref domain.MessageRef, text string) error
}

func (f *fakeTransport) SendMessage(ctx context.Context, chatID string, text string) (domain.MessageRef, error) {
	f.mu.Lock()
	f.sends = append(f.sends, text)
	f.mu.Unlock()

	if f.sendFn != nil {
		return f.sendFn(ctx, chatID, text)
	}
	return domain.MessageRef{ChatID: chatID, MessageID: 1}, nil
}

func (f *fakeTransport) EditMessage(ctx context.Context, ref domain.MessageRef, text string) error {
	f.mu.Lock()
	f.edits = append(f.edits, text)
	f.mu.Unlock()

	if f.editFn != nil {
		return f.editFn(ctx, ref, text)
	}
	return nil
}

func (f *fakeTransport) SendPhoto(context.Context, string, string, string) (domain.MessageRef, error) {
	return domain.MessageRef{}, nil
}

func (f *fakeTransport) SendVideo(context.Context, string, string, string) (domain.MessageRef, error) {
	return domain.MessageRef{}, nil
}

func (f *fakeTransport) lastEdit() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return ""
	}
	return f.edits[len(f.edits)-1]
}

func (f *fakeTransport) editCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.edits)
}

type fakeRouter struct {
	routeFn func(ctx context.Context, dest domain.Destination, rawURL string, result *domain.ScrapeResult) error
}

func (f *fakeRouter) Route(ctx context.Context, dest domain.Destination, rawURL string, result *domain.ScrapeResult) error {
	if f.routeFn != nil {
		return f.routeFn(ctx, dest, rawURL, result)
	}
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []queue.LinkMessage
	publishFn func(ctx context.Context, queueName string, msg queue.LinkMessage) error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.LinkMessage) error {
	if f.publishFn != nil {
		if err := f.publishFn(ctx, queueName, msg); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

// recordingStore wraps the memory store and records scheduled removals.
type recordingStore struct {
	*repository.MemoryBatchStore

	mu        sync.Mutex
	scheduled map[string]time.Duration
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		MemoryBatchStore: repository.NewMemoryBatchStore(),
		scheduled:        make(map[string]time.Duration),
	}
}

func (s *recordingStore) ScheduleRemoval(id string, after time.Duration) bool {
	if _, err := s.Get(id); err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled[id] = after
	return true
}

func (s *recordingStore) scheduledFor(id string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.scheduled[id]
	return d, ok
}

type serviceFixture struct {
	store   *recordingStore
	service *BatchService
	events  *eventLog
}

func newServiceFixture(t testing.TB, scrape scraper.Func, router *fakeRouter) *serviceFixture {
	t.Helper()

	store := newRecordingStore()
	janitor, err := NewJanitor(store, time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("NewJanitor() error = %v", err)
	}
	if router == nil {
		router = &fakeRouter{}
	}

	svc, err := NewBatchService(store, scrape, router, janitor, BatchServiceOptions{MaxBatchSize: 5}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewBatchService() error = %v", err)
	}
	svc.sleep = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(svc.Close)

	return &serviceFixture{store: store, service: svc, events: &eventLog{}}
}

func okResult(rawURL string) *domain.ScrapeResult {
	return &domain.ScrapeResult{URL: rawURL, Title: "title of " + rawURL}
}
