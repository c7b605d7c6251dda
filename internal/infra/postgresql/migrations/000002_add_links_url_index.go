package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func addLinksURLIndex() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_add_links_url_index",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_links_content_type_url ON links (content_type, url)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`DROP INDEX IF EXISTS idx_links_content_type_url`).Error
		},
	}
}
