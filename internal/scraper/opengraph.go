package scraper

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kursadbilgin/linkbot/internal/domain"
)

const maxDescriptionLength = 1000

// ParseHTML extracts Open Graph and basic document metadata from an HTML page.
func ParseHTML(pageURL string, body io.Reader) (*domain.ScrapeResult, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base, _ := url.Parse(pageURL)
	meta := collectMeta(doc)

	result := &domain.ScrapeResult{
		URL:         firstNonEmpty(resolve(base, meta.first("og:url")), pageURL),
		Title:       firstNonEmpty(meta.first("og:title"), meta.first("twitter:title"), strings.TrimSpace(doc.Find("title").First().Text())),
		Description: firstNonEmpty(meta.first("og:description"), meta.first("twitter:description"), meta.first("description")),
		Author:      firstNonEmpty(meta.first("author"), meta.first("article:author"), meta.first("twitter:creator")),
		SiteName:    meta.first("og:site_name"),
	}
	result.Description = truncate(collapseSpace(result.Description), maxDescriptionLength)
	result.Title = collapseSpace(result.Title)

	seen := make(map[string]struct{})
	addMedia := func(raw string, kind domain.MediaKind) {
		resolved := resolve(base, raw)
		if resolved == "" {
			return
		}
		if _, ok := seen[resolved]; ok {
			return
		}
		seen[resolved] = struct{}{}
		result.Media = append(result.Media, domain.MediaItem{URL: resolved, Kind: kind})
	}

	for _, key := range []string{"og:video:secure_url", "og:video:url", "og:video"} {
		for _, v := range meta[key] {
			addMedia(v, domain.MediaKindVideo)
		}
	}
	for _, key := range []string{"og:image:secure_url", "og:image:url", "og:image", "twitter:image"} {
		for _, v := range meta[key] {
			addMedia(v, domain.MediaKindPhoto)
		}
	}

	for _, m := range result.Media {
		if m.Kind == domain.MediaKindPhoto {
			result.ThumbnailURL = m.URL
			break
		}
	}

	if ogType := meta.first("og:type"); ogType != "" {
		result.Fields = map[string]string{"ogType": ogType}
	}

	return result, nil
}

type metaTags map[string][]string

func (m metaTags) first(key string) string {
	for _, v := range m[key] {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func collectMeta(doc *goquery.Document) metaTags {
	tags := make(metaTags)
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok {
			return
		}
		key := strings.TrimSpace(s.AttrOr("property", ""))
		if key == "" {
			key = strings.TrimSpace(s.AttrOr("name", ""))
		}
		if key == "" {
			return
		}
		key = strings.ToLower(key)
		tags[key] = append(tags[key], content)
	})
	return tags
}

func resolve(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
