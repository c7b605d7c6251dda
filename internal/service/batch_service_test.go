package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kursadbilgin/linkbot/internal/domain"
	"github.com/kursadbilgin/linkbot/internal/render"
	"github.com/kursadbilgin/linkbot/internal/scraper"
	"go.uber.org/zap"
)

func TestBatchServiceProcessesItemsInOrder(t *testing.T) {
	t.Parallel()

	var f *serviceFixture
	router := &fakeRouter{
		routeFn: func(_ context.Context, _ domain.Destination, rawURL string, _ *domain.ScrapeResult) error {
			f.events.add("route %s", rawURL)
			return nil
		},
	}
	f = newServiceFixture(t, func(_ context.Context, rawURL string, _ string) (*domain.ScrapeResult, error) {
		f.events.add("scrape %s", rawURL)
		if rawURL == "https://b.example" {
			return nil, &scraper.ScrapeError{URL: rawURL, StatusCode: 500, Message: "upstream failed"}
		}
		return okResult(rawURL), nil
	}, router)

	urls := []string{"https://a.example", "https://b.example", "https://c.example"}
	batch, err := f.service.CreateBatch(urls, "chat-1", "user-1")
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}

	transport := &fakeTransport{}
	if err := f.service.SubmitBatch(context.Background(), batch.ID, transport); err != nil {
		t.Fatalf("SubmitBatch() error = %v", err)
	}
	f.service.Wait()

	wantEvents := []string{
		"scrape https://a.example",
		"route https://a.example",
		"scrape https://b.example",
		"scrape https://c.example",
		"route https://c.example",
	}
	if got := f.events.list(); !reflect.DeepEqual(got, wantEvents) {
		t.Fatalf("events = %v, want %v", got, wantEvents)
	}

	wantStats := domain.Stats{Total: 3, Pending: 0, Completed: 2, Failed: 1}
	if got := batch.Stats(); got != wantStats {
		t.Fatalf("stats = %+v, want %+v", got, wantStats)
	}

	final := transport.lastEdit()
	for _, want := range []string{"Batch finished: 100%", "1. ✅", "2. ❌", "3. ✅"} {
		if !strings.Contains(final, want) {
			t.Fatalf("final render %q missing %q", final, want)
		}
	}
	if final != render.Render(batch.Snapshot()) {
		t.Fatal("final render should match the batch snapshot")
	}

	item, _ := batch.Item(1)
	if !strings.Contains(item.Error, "upstream failed") {
		t.Fatalf("item error = %q", item.Error)
	}

	if d, ok := f.store.scheduledFor(batch.ID); !ok || d != time.Hour {
		t.Fatalf("removal scheduled = %v/%v, want 1h", d, ok)
	}
}

func TestBatchServiceInitialStatusShowsPendingItems(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, func(_ context.Context, rawURL string, _ string) (*domain.ScrapeResult, error) {
		return okResult(rawURL), nil
	}, nil)

	batch, err := f.service.CreateBatch([]string{"https://a", "https://b"}, "chat-1", "")
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}

	transport := &fakeTransport{}
	if err := f.service.SubmitBatch(context.Background(), batch.ID, transport); err != nil {
		t.Fatalf("SubmitBatch() error = %v", err)
	}
	f.service.Wait()

	if len(transport.sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(transport.sends))
	}
	initial := transport.sends[0]
	if !strings.Contains(initial, "Processing links: 0%") || strings.Count(initial, "⏳") != 2 {
		t.Fatalf("initial status = %q", initial)
	}
	// begin + result per item, plus the final render.
	if got := transport.editCount(); got != 5 {
		t.Fatalf("edits = %d, want 5", got)
	}
}

func TestBatchServiceInitialStatusFailureRemovesBatch(t *testing.T) {
	t.Parallel()

	scraped := false
	f := newServiceFixture(t, func(context.Context, string, string) (*domain.ScrapeResult, error) {
		scraped = true
		return nil, nil
	}, nil)

	batch, err := f.service.CreateBatch([]string{"https://a", "https://b"}, "chat-1", "user-1")
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}

	sendErr := errors.New("chat not found")
	transport := &fakeTransport{
		sendFn: func(context.Context, string, string) (domain.MessageRef, error) {
			return domain.MessageRef{}, sendErr
		},
	}

	err = f.service.SubmitBatch(context.Background(), batch.ID, transport)
	if !errors.Is(err, sendErr) {
		t.Fatalf("SubmitBatch() error = %v, want %v", err, sendErr)
	}
	f.service.Wait()

	if _, err := f.store.Get(batch.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("batch should be removed, Get() error = %v", err)
	}
	if scraped {
		t.Fatal("no item should be scraped after initial status failure")
	}
}

func TestBatchServiceSubmitUnknownBatch(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, func(context.Context, string, string) (*domain.ScrapeResult, error) {
		t.Fatal("scraper should not be called")
		return nil, nil
	}, nil)

	transport := &fakeTransport{}
	if err := f.service.SubmitBatch(context.Background(), "missing", transport); err != nil {
		t.Fatalf("SubmitBatch() error = %v, want nil", err)
	}
	if len(transport.sends) != 0 {
		t.Fatal("no status message should be sent")
	}
}

func TestBatchServiceSubmitTwiceConflicts(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, func(_ context.Context, rawURL string, _ string) (*domain.ScrapeResult, error) {
		return okResult(rawURL), nil
	}, nil)

	batch, err := f.service.CreateBatch([]string{"https://a", "https://b"}, "chat-1", "user-1")
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}

	transport := &fakeTransport{}
	if err := f.service.SubmitBatch(context.Background(), batch.ID, transport); err != nil {
		t.Fatalf("first SubmitBatch() error = %v", err)
	}
	if err := f.service.SubmitBatch(context.Background(), batch.ID, transport); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second SubmitBatch() error = %v, want ErrConflict", err)
	}
	if err := f.service.EnqueueBatch(context.Background(), batch.ID, transport, &fakePublisher{}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("EnqueueBatch() error = %v, want ErrConflict", err)
	}
	f.service.Wait()
}

func TestBatchServiceRenderFailuresAreSwallowed(t *testing.T) {
	t.Parallel()

	routed := 0
	f := newServiceFixture(t, func(_ context.Context, rawURL string, _ string) (*domain.ScrapeResult, error) {
		return okResult(rawURL), nil
	}, &fakeRouter{routeFn: func(context.Context, domain.Destination, string, *domain.ScrapeResult) error {
		routed++
		return nil
	}})

	batch, err := f.service.CreateBatch([]string{"https://a", "https://b"}, "chat-1", "user-1")
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}

	transport := &fakeTransport{
		editFn: func(context.Context, domain.MessageRef, string) error {
			return errors.New("edit rejected")
		},
	}
	if err := f.service.SubmitBatch(context.Background(), batch.ID, transport); err != nil {
		t.Fatalf("SubmitBatch() error = %v", err)
	}
	f.service.Wait()

	if got := batch.Stats(); got.Completed != 2 {
		t.Fatalf("stats = %+v, want 2 completed", got)
	}
	if routed != 2 {
		t.Fatalf("routed = %d, want 2", routed)
	}
}

func TestBatchServiceDeliveryFailureKeepsCompletion(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, func(_ context.Context, rawURL string, _ string) (*domain.ScrapeResult, error) {
		return okResult(rawURL), nil
	}, &fakeRouter{routeFn: func(context.Context, domain.Destination, string, *domain.ScrapeResult) error {
		return errors.New("delivery failed")
	}})

	batch, err := f.service.CreateBatch([]string{"https://a", "https://b"}, "chat-1", "user-1")
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	if err := f.service.SubmitBatch(context.Background(), batch.ID, &fakeTransport{}); err != nil {
		t.Fatalf("SubmitBatch() error = %v", err)
	}
	f.service.Wait()

	for i := 0; i < 2; i++ {
		item, _ := batch.Item(i)
		if item.Status != domain.ItemStatusCompleted {
			t.Fatalf("item %d status = %s, want completed", i, item.Status)
		}
	}
}

func TestBatchServiceRecoversItemPanic(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, func(_ context.Context, rawURL string, _ string) (*domain.ScrapeResult, error) {
		if rawURL == "https://b" {
			panic("parser exploded")
		}
		return okResult(rawURL), nil
	}, nil)

	batch, err := f.service.CreateBatch([]string{"https://a", "https://b", "https://c"}, "chat-1", "user-1")
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	if err := f.service.SubmitBatch(context.Background(), batch.ID, &fakeTransport{}); err != nil {
		t.Fatalf("SubmitBatch() error = %v", err)
	}
	f.service.Wait()

	item, _ := batch.Item(1)
	if item.Status != domain.ItemStatusFailed || !strings.Contains(item.Error, "parser exploded") {
		t.Fatalf("panicking item = %+v", item)
	}
	if got := batch.Stats(); got != (domain.Stats{Total: 3, Completed: 2, Failed: 1}) {
		t.Fatalf("stats = %+v", got)
	}
}

func TestBatchServiceWaitsBetweenItems(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, func(_ context.Context, rawURL string, _ string) (*domain.ScrapeResult, error) {
		return okResult(rawURL), nil
	}, nil)
	f.service.itemDelay = 250 * time.Millisecond

	var delays []time.Duration
	f.service.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	batch, err := f.service.CreateBatch([]string{"https://a", "https://b", "https://c"}, "chat-1", "user-1")
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	if err := f.service.SubmitBatch(context.Background(), batch.ID, &fakeTransport{}); err != nil {
		t.Fatalf("SubmitBatch() error = %v", err)
	}
	f.service.Wait()

	if !reflect.DeepEqual(delays, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}) {
		t.Fatalf("delays = %v", delays)
	}
}

func TestBatchServiceCloseAbandonsRemainingItems(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, func(_ context.Context, rawURL string, _ string) (*domain.ScrapeResult, error) {
		return okResult(rawURL), nil
	}, nil)
	f.service.itemDelay = time.Millisecond

	started := make(chan struct{})
	f.service.sleep = func(ctx context.Context, _ time.Duration) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}

	batch, err := f.service.CreateBatch([]string{"https://a", "https://b", "https://c"}, "chat-1", "user-1")
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	if err := f.service.SubmitBatch(context.Background(), batch.ID, &fakeTransport{}); err != nil {
		t.Fatalf("SubmitBatch() error = %v", err)
	}

	<-started
	f.service.Close()

	if got := batch.Stats(); got != (domain.Stats{Total: 3, Completed: 1, Failed: 2}) {
		t.Fatalf("stats = %+v", got)
	}
	item, _ := batch.Item(2)
	if item.Error != "processing canceled" {
		t.Fatalf("abandoned item error = %q", item.Error)
	}
}

func TestBatchServiceCreateBatchLimits(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t, func(context.Context, string, string) (*domain.ScrapeResult, error) { return nil, nil }, nil)

	tests := []struct {
		name   string
		urls   []string
		chatID string
	}{
		{name: "empty", urls: nil, chatID: "chat-1"},
		{name: "too many", urls: []string{"https://1", "https://2", "https://3", "https://4", "https://5", "https://6"}, chatID: "chat-1"},
		{name: "missing chat", urls: []string{"https://1"}, chatID: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := f.service.CreateBatch(tt.urls, tt.chatID, "user-1"); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("CreateBatch() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestNewBatchServiceValidation(t *testing.T) {
	t.Parallel()

	store := newRecordingStore()
	janitor, _ := NewJanitor(store, 0, nil)
	scrape := scraper.Func(func(context.Context, string, string) (*domain.ScrapeResult, error) { return nil, nil })

	if _, err := NewBatchService(nil, scrape, &fakeRouter{}, janitor, BatchServiceOptions{}, nil); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewBatchService(store, nil, &fakeRouter{}, janitor, BatchServiceOptions{}, nil); err == nil {
		t.Fatal("expected error for nil scraper")
	}
	if _, err := NewBatchService(store, scrape, nil, janitor, BatchServiceOptions{}, nil); err == nil {
		t.Fatal("expected error for nil router")
	}
	if _, err := NewBatchService(store, scrape, &fakeRouter{}, nil, BatchServiceOptions{}, nil); err == nil {
		t.Fatal("expected error for nil janitor")
	}

	svc, err := NewBatchService(store, scrape, &fakeRouter{}, janitor, BatchServiceOptions{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewBatchService() error = %v", err)
	}
	defer svc.Close()
	if svc.MaxBatchSize() != defaultMaxBatchSize {
		t.Fatalf("MaxBatchSize() = %d, want %d", svc.MaxBatchSize(), defaultMaxBatchSize)
	}
}
