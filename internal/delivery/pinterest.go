package delivery

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/linkbot/internal/chat"
	"github.com/kursadbilgin/linkbot/internal/domain"
)

// PinterestDeliverer sends the pin image with its title and description.
type PinterestDeliverer struct {
	transport chat.Transport
}

func NewPinterestDeliverer(transport chat.Transport) *PinterestDeliverer {
	return &PinterestDeliverer{transport: transport}
}

func (d *PinterestDeliverer) Deliver(ctx context.Context, dest domain.Destination, result *domain.ScrapeResult) error {
	if d == nil || d.transport == nil {
		return fmt.Errorf("pinterest deliverer is not initialized")
	}

	text := caption(result.Title, result.Description, result.URL)

	for _, item := range result.Media {
		if item.Kind == domain.MediaKindVideo {
			if _, err := d.transport.SendVideo(ctx, dest.ChatID, item.URL, text); err != nil {
				return fmt.Errorf("send pinterest video: %w", err)
			}
			return nil
		}
	}

	photo := result.ThumbnailURL
	for _, item := range result.Media {
		if item.Kind == domain.MediaKindPhoto {
			photo = item.URL
			break
		}
	}
	if photo == "" {
		return ErrNoMedia
	}

	if _, err := d.transport.SendPhoto(ctx, dest.ChatID, photo, text); err != nil {
		return fmt.Errorf("send pinterest photo: %w", err)
	}
	return nil
}
