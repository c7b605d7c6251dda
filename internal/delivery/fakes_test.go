package delivery

import (
	"context"
	"sync"

	"github.com/kursadbilgin/linkbot/internal/domain"
)

type sentMessage struct {
	method  string
	chatID  string
	media   string
	caption string
}

type fakeTransport struct {
	mu       sync.Mutex
	sent     []sentMessage
	failWith map[string]error
}

func (f *fakeTransport) record(method, chatID, media, caption string) (domain.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failWith[method]; err != nil {
		return domain.MessageRef{}, err
	}
	f.sent = append(f.sent, sentMessage{method: method, chatID: chatID, media: media, caption: caption})
	return domain.MessageRef{ChatID: chatID, MessageID: int64(len(f.sent))}, nil
}

func (f *fakeTransport) SendMessage(_ context.Context, chatID string, text string) (domain.MessageRef, error) {
	return f.record("message", chatID, "", text)
}

func (f *fakeTransport) EditMessage(_ context.Context, ref domain.MessageRef, text string) error {
	_, err := f.record("edit", ref.ChatID, "", text)
	return err
}

func (f *fakeTransport) SendPhoto(_ context.Context, chatID string, photoURL string, caption string) (domain.MessageRef, error) {
	return f.record("photo", chatID, photoURL, caption)
}

func (f *fakeTransport) SendVideo(_ context.Context, chatID string, videoURL string, caption string) (domain.MessageRef, error) {
	return f.record("video", chatID, videoURL, caption)
}

func (f *fakeTransport) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeSettingsRepo struct {
	getFn  func(ctx context.Context, userID string) (domain.UserSettings, error)
	saveFn func(ctx context.Context, settings domain.UserSettings) error
}

func (f *fakeSettingsRepo) Get(ctx context.Context, userID string) (domain.UserSettings, error) {
	if f.getFn != nil {
		return f.getFn(ctx, userID)
	}
	return domain.DefaultUserSettings(userID), nil
}

func (f *fakeSettingsRepo) Save(ctx context.Context, settings domain.UserSettings) error {
	if f.saveFn != nil {
		return f.saveFn(ctx, settings)
	}
	return nil
}

type fakeLinkRepo struct {
	mu      sync.Mutex
	created []domain.LinkRecord
	err     error
}

func (f *fakeLinkRepo) Create(_ context.Context, l *domain.LinkRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, *l)
	return nil
}

func (f *fakeLinkRepo) ListByUser(context.Context, string, int) ([]domain.LinkRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.LinkRecord(nil), f.created...), nil
}
