package domain

import "time"

// LinkRecord is the archived copy of a delivered link.
type LinkRecord struct {
	ID          string
	UserID      string
	ChatID      string
	URL         string
	ContentType ContentType
	Title       string
	Description string
	Author      string
	MediaCount  int
	CreatedAt   time.Time
}
