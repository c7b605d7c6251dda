package repository

import (
	"context"

	"github.com/kursadbilgin/linkbot/internal/domain"
)

// SettingsRepository stores per-user preferences. Get returns defaults for
// users that never saved settings.
type SettingsRepository interface {
	Get(ctx context.Context, userID string) (domain.UserSettings, error)
	Save(ctx context.Context, settings domain.UserSettings) error
}
