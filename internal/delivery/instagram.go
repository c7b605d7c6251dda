package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/linkbot/internal/chat"
	"github.com/kursadbilgin/linkbot/internal/domain"
)

const maxAlbumSize = 10

// InstagramDeliverer sends every photo and video of a post. The caption is
// attached to the first item only.
type InstagramDeliverer struct {
	transport chat.Transport
}

func NewInstagramDeliverer(transport chat.Transport) *InstagramDeliverer {
	return &InstagramDeliverer{transport: transport}
}

func (d *InstagramDeliverer) Deliver(ctx context.Context, dest domain.Destination, result *domain.ScrapeResult) error {
	if d == nil || d.transport == nil {
		return fmt.Errorf("instagram deliverer is not initialized")
	}
	if len(result.Media) == 0 {
		return ErrNoMedia
	}

	text := caption(authorLine(result.Author), result.Description, result.URL)

	media := result.Media
	if len(media) > maxAlbumSize {
		media = media[:maxAlbumSize]
	}

	for i, item := range media {
		itemCaption := ""
		if i == 0 {
			itemCaption = text
		}

		var err error
		switch item.Kind {
		case domain.MediaKindVideo:
			_, err = d.transport.SendVideo(ctx, dest.ChatID, item.URL, itemCaption)
		default:
			_, err = d.transport.SendPhoto(ctx, dest.ChatID, item.URL, itemCaption)
		}
		if err != nil {
			return fmt.Errorf("send instagram media %d/%d: %w", i+1, len(media), err)
		}
	}
	return nil
}

func authorLine(author string) string {
	if author == "" {
		return ""
	}
	return "@" + strings.TrimLeft(author, "@")
}
