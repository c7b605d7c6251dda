package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/linkbot/internal/domain"
	"golang.org/x/time/rate"
)

const (
	defaultPageTimeout = 20 * time.Second
	defaultUserAgent   = "Mozilla/5.0 (compatible; linkbot/1.0; +https://github.com/kursadbilgin/linkbot)"
)

// PageScraper fetches a page over plain HTTP and reads its Open Graph metadata.
type PageScraper struct {
	client  *resty.Client
	limiter *rate.Limiter
}

func NewPageScraper(requestsPerSecond float64) (*PageScraper, error) {
	client := resty.New()
	client.SetTimeout(defaultPageTimeout)

	return NewPageScraperWithClient(client, requestsPerSecond)
}

func NewPageScraperWithClient(client *resty.Client, requestsPerSecond float64) (*PageScraper, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultPageTimeout)
	}
	client.SetRetryCount(0)
	client.SetHeader("User-Agent", defaultUserAgent)
	client.SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	client.SetHeader("Accept-Language", "en-US,en;q=0.5")

	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}

	return &PageScraper{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

func (s *PageScraper) Scrape(ctx context.Context, rawURL string, _ string) (*domain.ScrapeResult, error) {
	if s == nil || s.client == nil {
		return nil, &ScrapeError{URL: rawURL, Message: "page scraper is not initialized"}
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &ScrapeError{URL: rawURL, Message: "rate limiter wait failed", Cause: err}
	}

	response, err := s.client.R().
		SetContext(ctx).
		Get(rawURL)
	if err != nil {
		message := "page request failed"
		if errors.Is(err, context.DeadlineExceeded) {
			message = "page request timed out"
		}
		return nil, &ScrapeError{URL: rawURL, Message: message, Cause: err}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusBadRequest {
		return nil, &ScrapeError{
			URL:        rawURL,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("page returned status %d", statusCode),
		}
	}

	if contentType := response.Header().Get("Content-Type"); contentType != "" && !isHTML(contentType) {
		return nil, &ScrapeError{
			URL:        rawURL,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("unsupported content type %q", contentType),
		}
	}

	result, err := ParseHTML(finalURL(response, rawURL), bytes.NewReader(response.Body()))
	if err != nil {
		return nil, &ScrapeError{URL: rawURL, Message: "page parse failed", Cause: err}
	}
	return result, nil
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

func finalURL(response *resty.Response, fallback string) string {
	if response == nil || response.RawResponse == nil || response.RawResponse.Request == nil || response.RawResponse.Request.URL == nil {
		return fallback
	}
	return response.RawResponse.Request.URL.String()
}
