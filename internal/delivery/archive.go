package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/linkbot/internal/domain"
	"github.com/kursadbilgin/linkbot/internal/repository"
)

var _ Archiver = (*SettingsArchiver)(nil)

// SettingsArchiver stores delivered links for users that have archiving enabled.
type SettingsArchiver struct {
	settings repository.SettingsRepository
	links    repository.LinkRepository
	now      func() time.Time
}

func NewSettingsArchiver(settings repository.SettingsRepository, links repository.LinkRepository) (*SettingsArchiver, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings repository is required")
	}
	if links == nil {
		return nil, fmt.Errorf("link repository is required")
	}

	return &SettingsArchiver{
		settings: settings,
		links:    links,
		now:      time.Now,
	}, nil
}

func (a *SettingsArchiver) Archive(ctx context.Context, dest domain.Destination, contentType domain.ContentType, result *domain.ScrapeResult) error {
	if result == nil || strings.TrimSpace(dest.UserID) == "" {
		return nil
	}

	settings, err := a.settings.Get(ctx, dest.UserID)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if !settings.ArchiveEnabled {
		return nil
	}

	record := &domain.LinkRecord{
		UserID:      dest.UserID,
		ChatID:      dest.ChatID,
		URL:         result.URL,
		ContentType: contentType,
		Title:       result.Title,
		Description: result.Description,
		Author:      result.Author,
		MediaCount:  len(result.Media),
		CreatedAt:   a.now().UTC(),
	}
	if err := a.links.Create(ctx, record); err != nil {
		return fmt.Errorf("archive link: %w", err)
	}
	return nil
}
