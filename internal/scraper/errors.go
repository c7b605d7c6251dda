package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ScrapeError is the normalized failure returned by the gateway and backends.
// StatusCode is the upstream HTTP status when one was observed.
type ScrapeError struct {
	URL        string
	StatusCode int
	Message    string
	Cause      error
}

func (e *ScrapeError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "scrape error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ScrapeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Reason returns a short label suitable for metrics.
func (e *ScrapeError) Reason() string {
	switch {
	case e == nil:
		return "unknown"
	case errors.Is(e.Cause, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(e.Cause, context.Canceled):
		return "canceled"
	case e.StatusCode >= 500:
		return "upstream_5xx"
	case e.StatusCode >= 400:
		return "upstream_4xx"
	}
	return "scrape_error"
}

// normalizeError converts any backend failure into a *ScrapeError.
func normalizeError(rawURL string, err error) *ScrapeError {
	if err == nil {
		return nil
	}

	var scrapeErr *ScrapeError
	if errors.As(err, &scrapeErr) {
		if scrapeErr.URL == "" {
			scrapeErr.URL = rawURL
		}
		return scrapeErr
	}

	message := "scrape failed"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		message = "scrape timed out"
	case errors.Is(err, context.Canceled):
		message = "scrape canceled"
	}

	return &ScrapeError{URL: rawURL, Message: message, Cause: err}
}
