package scraper

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/linkbot/internal/classifier"
	"github.com/kursadbilgin/linkbot/internal/domain"
	"github.com/kursadbilgin/linkbot/internal/observability"
	"go.uber.org/zap"
)

// Dispatcher selects a scraping backend per content type. Specialized
// backends fall back to the plain page scraper once when they fail.
type Dispatcher struct {
	page    Scraper
	browser Scraper
	video   Scraper
	logger  *zap.Logger
}

// NewDispatcher requires page. browser and video are optional; when nil the
// page scraper handles those content types directly.
func NewDispatcher(page Scraper, browser Scraper, video Scraper, logger *zap.Logger) (*Dispatcher, error) {
	if page == nil {
		return nil, fmt.Errorf("page scraper is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		page:    page,
		browser: browser,
		video:   video,
		logger:  logger,
	}, nil
}

func (d *Dispatcher) Scrape(ctx context.Context, rawURL string, userID string) (*domain.ScrapeResult, error) {
	contentType := classifier.Classify(rawURL, "")

	if primary := d.primaryFor(contentType); primary != nil {
		result, err := primary.Scrape(ctx, rawURL, userID)
		if err == nil && result != nil {
			return stamp(result, contentType), nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		observability.WithContextLogger(d.logger, ctx).Warn("primary scraper failed, falling back to page scraper",
			zap.String("url", rawURL),
			zap.String("contentType", contentType.String()),
			zap.Error(err),
		)
	}

	result, err := d.page.Scrape(ctx, rawURL, userID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, &ScrapeError{URL: rawURL, Message: "scraper returned no result"}
	}
	return stamp(result, contentType), nil
}

func (d *Dispatcher) primaryFor(contentType domain.ContentType) Scraper {
	switch contentType {
	case domain.ContentTypeYouTube:
		return d.video
	case domain.ContentTypeInstagram, domain.ContentTypePinterest:
		return d.browser
	case domain.ContentTypeGeneric:
		return nil
	}
	return nil
}

func stamp(result *domain.ScrapeResult, contentType domain.ContentType) *domain.ScrapeResult {
	if result.Type == "" {
		result.Type = contentType.String()
	}
	return result
}
