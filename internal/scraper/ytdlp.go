package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/kursadbilgin/linkbot/internal/domain"
)

const defaultYtdlpBinary = "yt-dlp"

// CommandRunner executes an external command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// YtdlpScraper reads video metadata through the yt-dlp command line tool.
type YtdlpScraper struct {
	binary string
	run    CommandRunner
}

type ytdlpInfo struct {
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Uploader     string  `json:"uploader"`
	Channel      string  `json:"channel"`
	Duration     float64 `json:"duration"`
	Thumbnail    string  `json:"thumbnail"`
	WebpageURL   string  `json:"webpage_url"`
	ExtractorKey string  `json:"extractor_key"`
	ViewCount    int64   `json:"view_count"`
	UploadDate   string  `json:"upload_date"`
}

func NewYtdlpScraper(binary string) *YtdlpScraper {
	return NewYtdlpScraperWithRunner(binary, execRunner)
}

func NewYtdlpScraperWithRunner(binary string, run CommandRunner) *YtdlpScraper {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = defaultYtdlpBinary
	}
	if run == nil {
		run = execRunner
	}
	return &YtdlpScraper{binary: binary, run: run}
}

func (s *YtdlpScraper) Scrape(ctx context.Context, rawURL string, _ string) (*domain.ScrapeResult, error) {
	if s == nil || s.run == nil {
		return nil, &ScrapeError{URL: rawURL, Message: "yt-dlp scraper is not initialized"}
	}

	out, err := s.run(ctx, s.binary,
		"--dump-single-json",
		"--no-playlist",
		"--skip-download",
		"--no-warnings",
		rawURL,
	)
	if err != nil {
		return nil, &ScrapeError{URL: rawURL, Message: "yt-dlp failed", Cause: err}
	}

	var info ytdlpInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, &ScrapeError{URL: rawURL, Message: "yt-dlp returned invalid json", Cause: err}
	}

	result := &domain.ScrapeResult{
		URL:          firstNonEmpty(info.WebpageURL, rawURL),
		Title:        strings.TrimSpace(info.Title),
		Description:  truncate(strings.TrimSpace(info.Description), maxDescriptionLength),
		Author:       firstNonEmpty(info.Channel, info.Uploader),
		SiteName:     info.ExtractorKey,
		ThumbnailURL: info.Thumbnail,
		Duration:     time.Duration(info.Duration * float64(time.Second)),
	}
	if strings.EqualFold(info.ExtractorKey, "youtube") {
		result.Type = domain.ContentTypeYouTube.String()
	}
	if info.Thumbnail != "" {
		result.Media = []domain.MediaItem{{URL: info.Thumbnail, Kind: domain.MediaKindPhoto}}
	}

	fields := make(map[string]string)
	if info.ViewCount > 0 {
		fields["viewCount"] = strconv.FormatInt(info.ViewCount, 10)
	}
	if info.UploadDate != "" {
		fields["uploadDate"] = info.UploadDate
	}
	if len(fields) > 0 {
		result.Fields = fields
	}

	return result, nil
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if stderr := strings.TrimSpace(string(exitErr.Stderr)); stderr != "" {
				return nil, fmt.Errorf("%w: %s", err, stderr)
			}
		}
		return nil, err
	}
	return out, nil
}
