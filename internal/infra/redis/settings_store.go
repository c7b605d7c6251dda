package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kursadbilgin/linkbot/internal/domain"
	"github.com/kursadbilgin/linkbot/internal/repository"
	goredis "github.com/redis/go-redis/v9"
)

const (
	settingsKeyPrefix   = "linkbot:settings:"
	fieldArchiveEnabled = "archive_enabled"
)

var _ repository.SettingsRepository = (*SettingsStore)(nil)

// SettingsStore keeps per-user settings in a Redis hash.
type SettingsStore struct {
	client *goredis.Client
}

func NewSettingsStore(client *goredis.Client) (*SettingsStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &SettingsStore{client: client}, nil
}

func (s *SettingsStore) Get(ctx context.Context, userID string) (domain.UserSettings, error) {
	key, err := settingsKey(userID)
	if err != nil {
		return domain.UserSettings{}, err
	}

	settings := domain.DefaultUserSettings(strings.TrimSpace(userID))

	raw, err := s.client.HGet(ctx, key, fieldArchiveEnabled).Result()
	if errors.Is(err, goredis.Nil) {
		return settings, nil
	}
	if err != nil {
		return domain.UserSettings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return domain.UserSettings{}, fmt.Errorf("invalid %s value %q: %w", fieldArchiveEnabled, raw, err)
	}
	settings.ArchiveEnabled = enabled
	return settings, nil
}

func (s *SettingsStore) Save(ctx context.Context, settings domain.UserSettings) error {
	key, err := settingsKey(settings.UserID)
	if err != nil {
		return err
	}

	if err := s.client.HSet(ctx, key, fieldArchiveEnabled, strconv.FormatBool(settings.ArchiveEnabled)).Err(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

func settingsKey(userID string) (string, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return "", fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	return settingsKeyPrefix + trimmed, nil
}
