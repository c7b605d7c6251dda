package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/linkbot/internal/domain"
	"github.com/kursadbilgin/linkbot/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewGatewayRequiresBackend(t *testing.T) {
	t.Parallel()

	if _, err := NewGateway(nil, 0, nil); err == nil {
		t.Fatal("expected error for nil backend")
	}
}

func TestGatewayScrape(t *testing.T) {
	t.Parallel()

	upstreamErr := errors.New("connection reset")

	tests := []struct {
		name           string
		backend        Func
		wantErr        bool
		wantMessage    string
		wantStatusCode int
		wantCause      error
	}{
		{
			name: "success fills url",
			backend: func(context.Context, string, string) (*domain.ScrapeResult, error) {
				return &domain.ScrapeResult{Title: "ok"}, nil
			},
		},
		{
			name: "plain error is wrapped",
			backend: func(context.Context, string, string) (*domain.ScrapeResult, error) {
				return nil, upstreamErr
			},
			wantErr:     true,
			wantMessage: "scrape failed",
			wantCause:   upstreamErr,
		},
		{
			name: "scrape error keeps status code",
			backend: func(context.Context, string, string) (*domain.ScrapeResult, error) {
				return nil, &ScrapeError{StatusCode: 404, Message: "page returned status 404"}
			},
			wantErr:        true,
			wantMessage:    "page returned status 404",
			wantStatusCode: 404,
		},
		{
			name: "nil result without error",
			backend: func(context.Context, string, string) (*domain.ScrapeResult, error) {
				return nil, nil
			},
			wantErr:     true,
			wantMessage: "scraper returned no result",
		},
		{
			name: "deadline is reported as timeout",
			backend: func(context.Context, string, string) (*domain.ScrapeResult, error) {
				return nil, context.DeadlineExceeded
			},
			wantErr:     true,
			wantMessage: "scrape timed out",
			wantCause:   context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gateway, err := NewGateway(tt.backend, 0, nil)
			if err != nil {
				t.Fatalf("NewGateway() error = %v", err)
			}

			result, err := gateway.Scrape(context.Background(), "https://example.com/a", "user-1")
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Scrape() unexpected error = %v", err)
				}
				if result.URL != "https://example.com/a" {
					t.Fatalf("result url = %q, want request url", result.URL)
				}
				return
			}

			var scrapeErr *ScrapeError
			if !errors.As(err, &scrapeErr) {
				t.Fatalf("Scrape() error = %T, want *ScrapeError", err)
			}
			if scrapeErr.Message != tt.wantMessage {
				t.Fatalf("message = %q, want %q", scrapeErr.Message, tt.wantMessage)
			}
			if scrapeErr.StatusCode != tt.wantStatusCode {
				t.Fatalf("status code = %d, want %d", scrapeErr.StatusCode, tt.wantStatusCode)
			}
			if scrapeErr.URL != "https://example.com/a" {
				t.Fatalf("error url = %q", scrapeErr.URL)
			}
			if tt.wantCause != nil && !errors.Is(err, tt.wantCause) {
				t.Fatalf("errors.Is(err, cause) = false for %v", err)
			}
			if result != nil {
				t.Fatal("result should be nil on error")
			}
		})
	}
}

func TestGatewayCallsBackendOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	gateway, err := NewGateway(Func(func(context.Context, string, string) (*domain.ScrapeResult, error) {
		calls++
		return nil, errors.New("boom")
	}), 0, nil)
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}

	if _, err := gateway.Scrape(context.Background(), "https://example.com", ""); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("backend calls = %d, want 1", calls)
	}
}

func TestGatewayAppliesTimeout(t *testing.T) {
	t.Parallel()

	gateway, err := NewGateway(Func(func(ctx context.Context, _ string, _ string) (*domain.ScrapeResult, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("backend context should carry a deadline")
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}), 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}

	_, err = gateway.Scrape(context.Background(), "https://example.com", "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Scrape() error = %v, want deadline exceeded", err)
	}

	var scrapeErr *ScrapeError
	if !errors.As(err, &scrapeErr) || scrapeErr.Reason() != "timeout" {
		t.Fatalf("Reason() = %q, want timeout", scrapeErr.Reason())
	}
}

func TestGatewayObservesDuration(t *testing.T) {
	t.Parallel()

	metrics := observability.NewMetrics()
	gateway, err := NewGateway(Func(func(context.Context, string, string) (*domain.ScrapeResult, error) {
		return &domain.ScrapeResult{Type: "youtube"}, nil
	}), 0, nil)
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	gateway.SetMetrics(metrics)

	if _, err := gateway.Scrape(context.Background(), "https://example.com", ""); err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}

	count, err := testutil.GatherAndCount(metrics.Gatherer(), "linkbot_scrape_duration_seconds")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("scrape_duration_seconds series = %d, want 1", count)
	}
}
