package repository

import (
	"time"

	"github.com/kursadbilgin/linkbot/internal/domain"
)

// LinkModel is the persistence model for the links table.
type LinkModel struct {
	ID          string             `gorm:"type:uuid;primaryKey"`
	UserID      string             `gorm:"type:varchar(64);not null"`
	ChatID      string             `gorm:"type:varchar(64);not null"`
	URL         string             `gorm:"type:text;not null"`
	ContentType domain.ContentType `gorm:"type:varchar(20);not null"`
	Title       *string            `gorm:"type:text"`
	Description *string            `gorm:"type:text"`
	Author      *string            `gorm:"type:varchar(255)"`
	MediaCount  int                `gorm:"not null;default:0"`
	CreatedAt   time.Time
}

func (LinkModel) TableName() string {
	return "links"
}

func linkModelFromDomain(l *domain.LinkRecord) *LinkModel {
	if l == nil {
		return nil
	}

	return &LinkModel{
		ID:          l.ID,
		UserID:      l.UserID,
		ChatID:      l.ChatID,
		URL:         l.URL,
		ContentType: l.ContentType,
		Title:       optionalString(l.Title),
		Description: optionalString(l.Description),
		Author:      optionalString(l.Author),
		MediaCount:  l.MediaCount,
		CreatedAt:   l.CreatedAt,
	}
}

func linkModelToDomain(m *LinkModel) *domain.LinkRecord {
	if m == nil {
		return nil
	}

	return &domain.LinkRecord{
		ID:          m.ID,
		UserID:      m.UserID,
		ChatID:      m.ChatID,
		URL:         m.URL,
		ContentType: m.ContentType,
		Title:       derefString(m.Title),
		Description: derefString(m.Description),
		Author:      derefString(m.Author),
		MediaCount:  m.MediaCount,
		CreatedAt:   m.CreatedAt,
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
