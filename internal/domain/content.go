package domain

import (
	"fmt"
	"strings"
	"time"
)

// ContentType selects the delivery formatting path for a scraped link.
type ContentType string

const (
	ContentTypeInstagram ContentType = "instagram"
	ContentTypePinterest ContentType = "pinterest"
	ContentTypeYouTube   ContentType = "youtube"
	ContentTypeGeneric   ContentType = "generic"
)

func (c ContentType) String() string { return string(c) }

func (c ContentType) IsValid() bool {
	switch c {
	case ContentTypeInstagram, ContentTypePinterest, ContentTypeYouTube, ContentTypeGeneric:
		return true
	}
	return false
}

func ParseContentTypeFromString(s string) (ContentType, error) {
	ct := ContentType(strings.ToLower(strings.TrimSpace(s)))
	if !ct.IsValid() {
		return "", fmt.Errorf("%w: invalid content type %q", ErrValidation, s)
	}
	return ct, nil
}

// ContentTypes lists every content type in classification order.
func ContentTypes() []ContentType {
	return []ContentType{
		ContentTypeInstagram,
		ContentTypePinterest,
		ContentTypeYouTube,
		ContentTypeGeneric,
	}
}

// MediaKind distinguishes photo and video attachments.
type MediaKind string

const (
	MediaKindPhoto MediaKind = "photo"
	MediaKindVideo MediaKind = "video"
)

type MediaItem struct {
	URL  string    `json:"url"`
	Kind MediaKind `json:"kind"`
}

// ScrapeResult is the normalized payload returned by a scraper. Type carries the
// scraper's own classification and is used as a hint by the router.
type ScrapeResult struct {
	Type         string            `json:"type"`
	URL          string            `json:"url"`
	Title        string            `json:"title,omitempty"`
	Description  string            `json:"description,omitempty"`
	Author       string            `json:"author,omitempty"`
	SiteName     string            `json:"siteName,omitempty"`
	ThumbnailURL string            `json:"thumbnailUrl,omitempty"`
	Duration     time.Duration     `json:"duration,omitempty"`
	Media        []MediaItem       `json:"media,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
}

// DisplayTitle falls back to the URL when the page had no usable title.
func (r *ScrapeResult) DisplayTitle() string {
	if r == nil {
		return ""
	}
	if title := strings.TrimSpace(r.Title); title != "" {
		return title
	}
	return r.URL
}

// Destination identifies where status updates and deliveries go.
type Destination struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

func (d Destination) Validate() error {
	if strings.TrimSpace(d.ChatID) == "" {
		return fmt.Errorf("%w: chat id is required", ErrValidation)
	}
	return nil
}
