package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/linkbot/internal/domain"
)

const defaultRemoteTimeout = 60 * time.Second

type remoteRequest struct {
	URL    string `json:"url"`
	UserID string `json:"userId"`
}

type remoteErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RemoteScraper delegates scraping to an external HTTP scraping service.
type RemoteScraper struct {
	client   *resty.Client
	endpoint string
}

func NewRemoteScraper(endpoint string) (*RemoteScraper, error) {
	client := resty.New()
	client.SetTimeout(defaultRemoteTimeout)

	return NewRemoteScraperWithClient(endpoint, client)
}

func NewRemoteScraperWithClient(endpoint string, client *resty.Client) (*RemoteScraper, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("scraper endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid scraper endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultRemoteTimeout)
	}
	client.SetRetryCount(0)

	return &RemoteScraper{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (s *RemoteScraper) Scrape(ctx context.Context, rawURL string, userID string) (*domain.ScrapeResult, error) {
	if s == nil || s.client == nil {
		return nil, &ScrapeError{URL: rawURL, Message: "remote scraper is not initialized"}
	}

	response, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(remoteRequest{URL: rawURL, UserID: userID}).
		Post(s.endpoint)
	if err != nil {
		message := "remote scrape request failed"
		if errors.Is(err, context.DeadlineExceeded) {
			message = "remote scrape timed out"
		}
		return nil, &ScrapeError{URL: rawURL, Message: message, Cause: err}
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &ScrapeError{
			URL:        rawURL,
			StatusCode: statusCode,
			Message:    remoteErrorMessage(statusCode, response.Body()),
		}
	}

	var result domain.ScrapeResult
	if err := json.Unmarshal(response.Body(), &result); err != nil {
		return nil, &ScrapeError{URL: rawURL, StatusCode: statusCode, Message: "remote scraper returned invalid json", Cause: err}
	}
	return &result, nil
}

func remoteErrorMessage(statusCode int, body []byte) string {
	base := fmt.Sprintf("remote scraper returned status %d", statusCode)

	var payload remoteErrorBody
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := firstNonEmpty(payload.Error, payload.Message); msg != "" {
			return fmt.Sprintf("%s: %s", base, msg)
		}
	}
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		return fmt.Sprintf("%s: %s", base, truncate(trimmed, 200))
	}
	return base
}
