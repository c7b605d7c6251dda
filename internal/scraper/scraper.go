// Package scraper fetches links and normalizes them into scrape results.
package scraper

import (
	"context"

	"github.com/kursadbilgin/linkbot/internal/domain"
)

// Scraper is the port implemented by every scraping backend.
type Scraper interface {
	Scrape(ctx context.Context, rawURL string, userID string) (*domain.ScrapeResult, error)
}

// Func adapts a plain function to the Scraper interface.
type Func func(ctx context.Context, rawURL string, userID string) (*domain.ScrapeResult, error)

func (f Func) Scrape(ctx context.Context, rawURL string, userID string) (*domain.ScrapeResult, error) {
	return f(ctx, rawURL, userID)
}
