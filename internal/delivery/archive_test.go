package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/linkbot/internal/domain"
)

func TestSettingsArchiverArchive(t *testing.T) {
	t.Parallel()

	links := &fakeLinkRepo{}
	archiver, err := NewSettingsArchiver(&fakeSettingsRepo{}, links)
	if err != nil {
		t.Fatalf("NewSettingsArchiver() error = %v", err)
	}
	archiver.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	err = archiver.Archive(context.Background(), testDest, domain.ContentTypePinterest, &domain.ScrapeResult{
		URL:   "https://pin.it/a",
		Title: "Kitchen",
		Media: []domain.MediaItem{{URL: "https://cdn/1.jpg"}},
	})
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	if len(links.created) != 1 {
		t.Fatalf("created = %d, want 1", len(links.created))
	}
	got := links.created[0]
	if got.UserID != "user-1" || got.ChatID != "chat-1" || got.URL != "https://pin.it/a" || got.MediaCount != 1 {
		t.Fatalf("record = %+v", got)
	}
	if !got.CreatedAt.Equal(time.Unix(1_700_000_000, 0)) {
		t.Fatalf("created at = %v", got.CreatedAt)
	}
}

func TestSettingsArchiverSkips(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		dest     domain.Destination
		settings *fakeSettingsRepo
	}{
		{name: "no user", dest: domain.Destination{ChatID: "chat-1"}, settings: &fakeSettingsRepo{}},
		{
			name: "archive disabled",
			dest: testDest,
			settings: &fakeSettingsRepo{getFn: func(_ context.Context, userID string) (domain.UserSettings, error) {
				return domain.UserSettings{UserID: userID, ArchiveEnabled: false}, nil
			}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			links := &fakeLinkRepo{}
			archiver, err := NewSettingsArchiver(tt.settings, links)
			if err != nil {
				t.Fatalf("NewSettingsArchiver() error = %v", err)
			}
			if err := archiver.Archive(context.Background(), tt.dest, domain.ContentTypeGeneric, &domain.ScrapeResult{URL: "https://x"}); err != nil {
				t.Fatalf("Archive() error = %v", err)
			}
			if len(links.created) != 0 {
				t.Fatal("nothing should be archived")
			}
		})
	}
}

func TestSettingsArchiverSettingsError(t *testing.T) {
	t.Parallel()

	settingsErr := errors.New("redis down")
	archiver, err := NewSettingsArchiver(&fakeSettingsRepo{getFn: func(context.Context, string) (domain.UserSettings, error) {
		return domain.UserSettings{}, settingsErr
	}}, &fakeLinkRepo{})
	if err != nil {
		t.Fatalf("NewSettingsArchiver() error = %v", err)
	}

	if err := archiver.Archive(context.Background(), testDest, domain.ContentTypeGeneric, &domain.ScrapeResult{}); !errors.Is(err, settingsErr) {
		t.Fatalf("Archive() error = %v, want settings error", err)
	}
}
