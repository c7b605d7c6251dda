package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/linkbot/internal/classifier"
	"github.com/kursadbilgin/linkbot/internal/domain"
	"github.com/kursadbilgin/linkbot/internal/observability"
	"go.uber.org/zap"
)

// Gateway calls the scraping backend exactly once per link and normalizes
// every failure into a *ScrapeError.
type Gateway struct {
	backend Scraper
	timeout time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewGateway(backend Scraper, timeout time.Duration, logger *zap.Logger) (*Gateway, error) {
	if backend == nil {
		return nil, fmt.Errorf("scrape backend is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Gateway{
		backend: backend,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (g *Gateway) SetMetrics(metrics *observability.Metrics) {
	if g == nil {
		return
	}
	g.metrics = metrics
}

func (g *Gateway) Scrape(ctx context.Context, rawURL string, userID string) (*domain.ScrapeResult, error) {
	if g == nil || g.backend == nil {
		return nil, &ScrapeError{URL: rawURL, Message: "scrape gateway is not initialized"}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := g.now()
	result, err := g.backend.Scrape(ctx, rawURL, userID)
	elapsed := g.now().Sub(start)

	hint := ""
	if result != nil {
		hint = result.Type
	}
	contentType := classifier.Classify(rawURL, hint)
	g.metrics.ObserveScrapeDuration(contentType.String(), elapsed)

	if err != nil {
		scrapeErr := normalizeError(rawURL, err)
		observability.WithContextLogger(g.logger, ctx).Debug("scrape failed",
			zap.String("url", rawURL),
			zap.Int("statusCode", scrapeErr.StatusCode),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, scrapeErr
	}
	if result == nil {
		return nil, &ScrapeError{URL: rawURL, Message: "scraper returned no result"}
	}
	if result.URL == "" {
		result.URL = rawURL
	}

	return result, nil
}
