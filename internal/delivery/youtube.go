package delivery

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/linkbot/internal/chat"
	"github.com/kursadbilgin/linkbot/internal/domain"
)

// YouTubeDeliverer sends the video thumbnail with title, channel and length.
type YouTubeDeliverer struct {
	transport chat.Transport
}

func NewYouTubeDeliverer(transport chat.Transport) *YouTubeDeliverer {
	return &YouTubeDeliverer{transport: transport}
}

func (d *YouTubeDeliverer) Deliver(ctx context.Context, dest domain.Destination, result *domain.ScrapeResult) error {
	if d == nil || d.transport == nil {
		return fmt.Errorf("youtube deliverer is not initialized")
	}
	if result.ThumbnailURL == "" {
		return ErrNoMedia
	}

	meta := result.Author
	if length := formatDuration(result.Duration); length != "" {
		if meta != "" {
			meta += " · "
		}
		meta += length
	}

	text := caption("▶ "+result.DisplayTitle(), meta, result.URL)
	if _, err := d.transport.SendPhoto(ctx, dest.ChatID, result.ThumbnailURL, text); err != nil {
		return fmt.Errorf("send youtube thumbnail: %w", err)
	}
	return nil
}
