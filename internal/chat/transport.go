// Package chat sends and edits messages in the user's chat.
package chat

import (
	"context"

	"github.com/kursadbilgin/linkbot/internal/domain"
)

// Transport is the outbound chat port used for status messages and deliveries.
type Transport interface {
	SendMessage(ctx context.Context, chatID string, text string) (domain.MessageRef, error)
	EditMessage(ctx context.Context, ref domain.MessageRef, text string) error
	SendPhoto(ctx context.Context, chatID string, photoURL string, caption string) (domain.MessageRef, error)
	SendVideo(ctx context.Context, chatID string, videoURL string, caption string) (domain.MessageRef, error)
}
