package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/linkbot/internal/repository"
	"gorm.io/gorm"
)

func createLinksTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_links",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.LinkModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_links_user_created ON links (user_id, created_at DESC)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.LinkModel{})
		},
	}
}
