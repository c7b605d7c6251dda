package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/linkbot/internal/domain"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// LinkRepository archives delivered links.
type LinkRepository interface {
	Create(ctx context.Context, l *domain.LinkRecord) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.LinkRecord, error)
}

type GormLinkRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormLinkRepo(db *gorm.DB) *GormLinkRepo {
	return &GormLinkRepo{db: db, now: time.Now}
}

func (r *GormLinkRepo) Create(ctx context.Context, l *domain.LinkRecord) error {
	if l == nil {
		return fmt.Errorf("%w: link record is required", domain.ErrValidation)
	}
	if strings.TrimSpace(l.URL) == "" {
		return fmt.Errorf("%w: link url is required", domain.ErrValidation)
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = r.now().UTC()
	}

	model := linkModelFromDomain(l)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	*l = *linkModelToDomain(model)
	return nil
}

func (r *GormLinkRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.LinkRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var models []LinkModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	links := make([]domain.LinkRecord, 0, len(models))
	for i := range models {
		links = append(links, *linkModelToDomain(&models[i]))
	}

	return links, nil
}
