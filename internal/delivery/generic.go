package delivery

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/linkbot/internal/chat"
	"github.com/kursadbilgin/linkbot/internal/domain"
)

// GenericDeliverer sends a plain text summary. It needs only the URL, so it
// serves as the fallback for every other content type.
type GenericDeliverer struct {
	transport chat.Transport
}

func NewGenericDeliverer(transport chat.Transport) *GenericDeliverer {
	return &GenericDeliverer{transport: transport}
}

func (d *GenericDeliverer) Deliver(ctx context.Context, dest domain.Destination, result *domain.ScrapeResult) error {
	if d == nil || d.transport == nil {
		return fmt.Errorf("generic deliverer is not initialized")
	}

	title := result.DisplayTitle()
	if title == result.URL {
		title = ""
	}
	text := caption(title, result.Description, result.URL)

	if _, err := d.transport.SendMessage(ctx, dest.ChatID, text); err != nil {
		return fmt.Errorf("send generic message: %w", err)
	}
	return nil
}
