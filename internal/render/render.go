// Package render formats batch progress for the chat status message.
package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kursadbilgin/linkbot/internal/domain"
)

const (
	MaxURLLength = 40
	ellipsis     = "..."
)

var glyphs = map[domain.ItemStatus]string{
	domain.ItemStatusPending:    "⏳",
	domain.ItemStatusProcessing: "🔄",
	domain.ItemStatusCompleted:  "✅",
	domain.ItemStatusFailed:     "❌",
}

// Glyph returns the status marker shown next to an item.
func Glyph(status domain.ItemStatus) string {
	if g, ok := glyphs[status]; ok {
		return g
	}
	return "❔"
}

// Render returns the progress text for a batch. It depends only on the
// snapshot's stats and items, so equal snapshots render identically.
func Render(snapshot domain.BatchSnapshot) string {
	stats := snapshot.Stats

	var b strings.Builder
	title := "Processing links"
	if stats.Total > 0 && stats.Pending == 0 {
		title = "Batch finished"
	}
	fmt.Fprintf(&b, "%s: %d%%\n", title, stats.Percent())
	fmt.Fprintf(&b, "Total: %d | Pending: %d | Completed: %d | Failed: %d\n",
		stats.Total, stats.Pending, stats.Completed, stats.Failed)

	for i, item := range snapshot.Items {
		fmt.Fprintf(&b, "\n%d. %s %s", i+1, Glyph(item.Status), TruncateURL(item.URL, MaxURLLength))
	}
	return b.String()
}

// TruncateURL shortens s to at most limit runes, replacing the tail with an
// ellipsis when it does not fit.
func TruncateURL(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	if limit <= len(ellipsis) {
		return string(runes[:limit])
	}
	return string(runes[:limit-len(ellipsis)]) + ellipsis
}
