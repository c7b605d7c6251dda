package queue

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/linkbot/internal/domain"
)

// LinkMessage is the broker payload for scraping one batch item.
type LinkMessage struct {
	BatchID   string `json:"batchId"`
	Index     int    `json:"index"`
	URL       string `json:"url"`
	UserID    string `json:"userId,omitempty"`
	ChatID    string `json:"chatId"`
	RequestID string `json:"requestId,omitempty"`
}

func (m LinkMessage) Validate() error {
	if strings.TrimSpace(m.BatchID) == "" {
		return fmt.Errorf("batchId is required")
	}
	if m.Index < 0 {
		return fmt.Errorf("invalid index %d", m.Index)
	}
	if strings.TrimSpace(m.URL) == "" {
		return fmt.Errorf("url is required")
	}
	if strings.TrimSpace(m.ChatID) == "" {
		return fmt.Errorf("chatId is required")
	}
	return nil
}

// Destination returns where the item's delivery goes.
func (m LinkMessage) Destination() domain.Destination {
	return domain.Destination{ChatID: m.ChatID, UserID: m.UserID}
}

// MessageID identifies the message for broker-side deduplication.
func (m LinkMessage) MessageID() string {
	return fmt.Sprintf("%s:%d", m.BatchID, m.Index)
}
