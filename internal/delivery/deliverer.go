// Package delivery sends scrape results to the user's chat in a format
// chosen by content type.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/linkbot/internal/domain"
)

// ErrNoMedia is returned by media deliverers when the result has nothing to attach.
var ErrNoMedia = errors.New("result has no deliverable media")

// Deliverer sends one scrape result to a destination.
type Deliverer interface {
	Deliver(ctx context.Context, dest domain.Destination, result *domain.ScrapeResult) error
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, dest domain.Destination, result *domain.ScrapeResult) error

func (f DelivererFunc) Deliver(ctx context.Context, dest domain.Destination, result *domain.ScrapeResult) error {
	return f(ctx, dest, result)
}

// DeliveryError is returned when the chosen deliverer failed and, for
// specialized types, the generic fallback failed too.
type DeliveryError struct {
	Type        domain.ContentType
	URL         string
	Err         error
	FallbackErr error
}

func (e *DeliveryError) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := fmt.Sprintf("delivery error: type=%s: %s: %v", e.Type, e.URL, e.Err)
	if e.FallbackErr != nil {
		msg = fmt.Sprintf("%s: fallback: %v", msg, e.FallbackErr)
	}
	return msg
}

func (e *DeliveryError) Unwrap() []error {
	if e == nil {
		return nil
	}

	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.FallbackErr != nil {
		errs = append(errs, e.FallbackErr)
	}
	return errs
}

// caption joins the non-empty lines of a delivery caption.
func caption(lines ...string) string {
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}

	total := int(d.Round(time.Second).Seconds())
	hours, minutes, seconds := total/3600, (total%3600)/60, total%60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
