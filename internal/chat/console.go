package chat

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/kursadbilgin/linkbot/internal/domain"
)

var _ Transport = (*ConsoleTransport)(nil)

// ConsoleTransport writes messages to a terminal. Edits are printed as new
// blocks prefixed with the edited message id.
type ConsoleTransport struct {
	mu     sync.Mutex
	out    io.Writer
	nextID int64
}

func NewConsoleTransport(out io.Writer) *ConsoleTransport {
	return &ConsoleTransport{out: out}
}

func (t *ConsoleTransport) SendMessage(_ context.Context, chatID string, text string) (domain.MessageRef, error) {
	return t.write(chatID, "message", text)
}

func (t *ConsoleTransport) EditMessage(_ context.Context, ref domain.MessageRef, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := fmt.Fprintf(t.out, "--- edit #%d ---\n%s\n\n", ref.MessageID, text)
	return err
}

func (t *ConsoleTransport) SendPhoto(_ context.Context, chatID string, photoURL string, caption string) (domain.MessageRef, error) {
	return t.write(chatID, "photo", fmt.Sprintf("[photo] %s\n%s", photoURL, caption))
}

func (t *ConsoleTransport) SendVideo(_ context.Context, chatID string, videoURL string, caption string) (domain.MessageRef, error) {
	return t.write(chatID, "video", fmt.Sprintf("[video] %s\n%s", videoURL, caption))
}

func (t *ConsoleTransport) write(chatID string, kind string, text string) (domain.MessageRef, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	if _, err := fmt.Fprintf(t.out, "--- %s #%d ---\n%s\n\n", kind, t.nextID, text); err != nil {
		return domain.MessageRef{}, err
	}
	return domain.MessageRef{ChatID: chatID, MessageID: t.nextID}, nil
}
