package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/kursadbilgin/linkbot/internal/domain"
	"go.uber.org/zap"
)

const defaultSettleTime = time.Second

// BrowserScraper renders pages in headless Chrome before reading their metadata.
// It is used for sites that build their Open Graph tags client side.
type BrowserScraper struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	settle      time.Duration
	logger      *zap.Logger

	// render is replaced in tests.
	render func(ctx context.Context, rawURL string) (string, error)
}

func NewBrowserScraper(settle time.Duration, logger *zap.Logger) *BrowserScraper {
	if settle <= 0 {
		settle = defaultSettleTime
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Headless,
		chromedp.UserAgent(defaultUserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	b := &BrowserScraper{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		settle:      settle,
		logger:      logger,
	}
	b.render = b.renderChrome
	return b
}

// Close shuts down the browser allocator.
func (b *BrowserScraper) Close() {
	if b == nil || b.allocCancel == nil {
		return
	}
	b.allocCancel()
}

func (b *BrowserScraper) Scrape(ctx context.Context, rawURL string, _ string) (*domain.ScrapeResult, error) {
	if b == nil || b.render == nil {
		return nil, &ScrapeError{URL: rawURL, Message: "browser scraper is not initialized"}
	}

	html, err := b.render(ctx, rawURL)
	if err != nil {
		return nil, &ScrapeError{URL: rawURL, Message: "browser render failed", Cause: err}
	}

	result, err := ParseHTML(rawURL, strings.NewReader(html))
	if err != nil {
		return nil, &ScrapeError{URL: rawURL, Message: "browser parse failed", Cause: err}
	}
	return result, nil
}

func (b *BrowserScraper) renderChrome(ctx context.Context, rawURL string) (string, error) {
	tabCtx, cancel := chromedp.NewContext(b.allocCtx)
	defer cancel()

	// Tie the tab to the caller's deadline and cancellation.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		tabCtx, cancelDeadline = context.WithDeadline(tabCtx, deadline)
		defer cancelDeadline()
	}

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("render %s: %w", rawURL, ctxErr)
		}
		return "", fmt.Errorf("render %s: %w", rawURL, err)
	}

	b.logger.Debug("page rendered", zap.String("url", rawURL), zap.Int("bytes", len(html)))
	return html, nil
}
