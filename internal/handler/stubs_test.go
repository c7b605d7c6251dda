package handler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/linkbot/internal/chat"
	"github.com/kursadbilgin/linkbot/internal/domain"
	"github.com/kursadbilgin/linkbot/internal/service"
	"github.com/kursadbilgin/linkbot/internal/transport"
	"go.uber.org/zap"
)

type stubBatchService struct {
	handleTextFn func(ctx context.Context, text string, dest domain.Destination, transport chat.Transport) (service.TextOutcome, error)
	snapshotFn   func(batchID string) (domain.BatchSnapshot, error)
	reportItemFn func(ctx context.Context, batchID string, index int, result *domain.ScrapeResult, errMsg string, success bool) error
}

func (s *stubBatchService) HandleText(ctx context.Context, text string, dest domain.Destination, transport chat.Transport) (service.TextOutcome, error) {
	if s.handleTextFn != nil {
		return s.handleTextFn(ctx, text, dest, transport)
	}
	return service.TextOutcome{}, errors.New("not implemented")
}

func (s *stubBatchService) Snapshot(batchID string) (domain.BatchSnapshot, error) {
	if s.snapshotFn != nil {
		return s.snapshotFn(batchID)
	}
	return domain.BatchSnapshot{}, domain.ErrNotFound
}

func (s *stubBatchService) ReportItem(ctx context.Context, batchID string, index int, result *domain.ScrapeResult, errMsg string, success bool) error {
	if s.reportItemFn != nil {
		return s.reportItemFn(ctx, batchID, index, result, errMsg, success)
	}
	return nil
}

type stubTransport struct {
	mu    sync.Mutex
	texts []string
}

func (s *stubTransport) SendMessage(_ context.Context, chatID string, text string) (domain.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return domain.MessageRef{ChatID: chatID, MessageID: int64(len(s.texts))}, nil
}

func (s *stubTransport) EditMessage(context.Context, domain.MessageRef, string) error { return nil }

func (s *stubTransport) SendPhoto(context.Context, string, string, string) (domain.MessageRef, error) {
	return domain.MessageRef{}, nil
}

func (s *stubTransport) SendVideo(context.Context, string, string, string) (domain.MessageRef, error) {
	return domain.MessageRef{}, nil
}

func (s *stubTransport) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type stubSettingsRepo struct {
	mu      sync.Mutex
	byUser  map[string]domain.UserSettings
	saveErr error
}

func newStubSettingsRepo() *stubSettingsRepo {
	return &stubSettingsRepo{byUser: make(map[string]domain.UserSettings)}
}

func (s *stubSettingsRepo) Get(_ context.Context, userID string) (domain.UserSettings, error) {
	if userID == "" {
		return domain.UserSettings{}, domain.ErrValidation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if settings, ok := s.byUser[userID]; ok {
		return settings, nil
	}
	return domain.DefaultUserSettings(userID), nil
}

func (s *stubSettingsRepo) Save(_ context.Context, settings domain.UserSettings) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[settings.UserID] = settings
	return nil
}

func newTestApp(t *testing.T, register func(app *fiber.App) error) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})
	if err := register(app); err != nil {
		t.Fatalf("register routes error = %v", err)
	}
	return app
}
