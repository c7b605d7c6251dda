package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kursadbilgin/linkbot/internal/chat"
	"github.com/kursadbilgin/linkbot/internal/delivery"
	"github.com/kursadbilgin/linkbot/internal/domain"
	"github.com/kursadbilgin/linkbot/internal/repository"
	"github.com/kursadbilgin/linkbot/internal/scraper"
	"github.com/kursadbilgin/linkbot/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const consoleChatID = "console"

type runFlags struct {
	itemDelay     time.Duration
	scrapeTimeout time.Duration
	browserSettle time.Duration
	pageRate      float64
	ytdlpPath     string
	scraperURL    string
	maxBatchSize  int
}

func newRunCmd(root *rootFlags) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run <text>",
		Short: "Process a message's links and print every chat message to stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runText(cmd, root, flags, strings.Join(args, " "))
		},
	}

	cmd.Flags().DurationVar(&flags.itemDelay, "item-delay", 500*time.Millisecond, "pause between batch items")
	cmd.Flags().DurationVar(&flags.scrapeTimeout, "scrape-timeout", 30*time.Second, "per-link scrape timeout")
	cmd.Flags().DurationVar(&flags.browserSettle, "browser-settle", 1500*time.Millisecond, "wait after page load in the headless browser")
	cmd.Flags().Float64Var(&flags.pageRate, "page-rate", 2, "page fetches per second")
	cmd.Flags().StringVar(&flags.ytdlpPath, "ytdlp", "yt-dlp", "yt-dlp binary")
	cmd.Flags().StringVar(&flags.scraperURL, "scraper-url", "", "remote scraper endpoint; local scrapers are used when empty")
	cmd.Flags().IntVar(&flags.maxBatchSize, "max-batch-size", 50, "maximum links per message")
	return cmd
}

func runText(cmd *cobra.Command, root *rootFlags, flags *runFlags, text string) error {
	logger, err := root.logger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := buildScraper(flags, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	gateway, err := scraper.NewGateway(backend, flags.scrapeTimeout, logger)
	if err != nil {
		return err
	}

	console := chat.NewConsoleTransport(cmd.OutOrStdout())
	router, err := delivery.NewTransportRouter(console, nil, logger)
	if err != nil {
		return err
	}

	store := repository.NewMemoryBatchStore()
	janitor, err := service.NewJanitor(store, time.Minute, logger)
	if err != nil {
		return err
	}

	batches, err := service.NewBatchService(store, gateway, router, janitor, service.BatchServiceOptions{
		ItemDelay:    flags.itemDelay,
		MaxBatchSize: flags.maxBatchSize,
	}, logger)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		batches.Close()
	}()

	outcome, err := batches.HandleText(ctx, text, domain.Destination{ChatID: consoleChatID}, console)
	if err != nil {
		return err
	}
	batches.Wait()
	batches.Close()

	if outcome.BatchID != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "batch %s: %d links\n", outcome.BatchID, outcome.Total)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("interrupted: %w", context.Cause(ctx))
	}
	return nil
}

func buildScraper(flags *runFlags, logger *zap.Logger) (scraper.Scraper, func(), error) {
	if flags.scraperURL != "" {
		remote, err := scraper.NewRemoteScraper(flags.scraperURL)
		if err != nil {
			return nil, nil, err
		}
		return remote, func() {}, nil
	}

	page, err := scraper.NewPageScraper(flags.pageRate)
	if err != nil {
		return nil, nil, err
	}
	browser := scraper.NewBrowserScraper(flags.browserSettle, logger)

	dispatcher, err := scraper.NewDispatcher(page, browser, scraper.NewYtdlpScraper(flags.ytdlpPath), logger)
	if err != nil {
		browser.Close()
		return nil, nil, err
	}
	return dispatcher, browser.Close, nil
}
