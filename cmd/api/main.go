package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/linkbot/internal/chat"
	"github.com/kursadbilgin/linkbot/internal/config"
	"github.com/kursadbilgin/linkbot/internal/delivery"
	"github.com/kursadbilgin/linkbot/internal/handler"
	"github.com/kursadbilgin/linkbot/internal/infra/postgresql"
	"github.com/kursadbilgin/linkbot/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/linkbot/internal/infra/redis"
	"github.com/kursadbilgin/linkbot/internal/observability"
	"github.com/kursadbilgin/linkbot/internal/queue"
	"github.com/kursadbilgin/linkbot/internal/repository"
	"github.com/kursadbilgin/linkbot/internal/scraper"
	"github.com/kursadbilgin/linkbot/internal/service"
	"github.com/kursadbilgin/linkbot/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("linkbot api stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.DefaultPoolOptions())
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	limiter, err := infraredis.NewRedisRateLimiter(rdb, infraredis.Limits{
		PerChat: cfg.ChatRateLimitPerSec,
		Global:  cfg.BotRateLimitPerSec,
	})
	if err != nil {
		return fmt.Errorf("rate limiter initialization failed: %w", err)
	}
	settings, err := infraredis.NewSettingsStore(rdb)
	if err != nil {
		return fmt.Errorf("settings store initialization failed: %w", err)
	}
	archiver, err := delivery.NewSettingsArchiver(settings, repository.NewGormLinkRepo(db))
	if err != nil {
		return err
	}

	bot, err := chat.NewBotTransport(cfg.BotAPIURL, cfg.BotToken, limiter, logger)
	if err != nil {
		return fmt.Errorf("bot transport initialization failed: %w", err)
	}

	page, err := scraper.NewPageScraper(float64(cfg.PageRateLimitPerSec))
	if err != nil {
		return err
	}
	browser := scraper.NewBrowserScraper(cfg.BrowserSettle(), logger)
	defer browser.Close()

	local, err := scraper.NewDispatcher(page, browser, scraper.NewYtdlpScraper(cfg.YtdlpPath), logger)
	if err != nil {
		return err
	}

	var backend scraper.Scraper = local
	if cfg.ScraperURL != "" {
		remote, err := scraper.NewRemoteScraper(cfg.ScraperURL)
		if err != nil {
			return err
		}
		backend = remote
		logger.Info("using remote scraper", zap.String("endpoint", cfg.ScraperURL))
	}

	gateway, err := scraper.NewGateway(backend, cfg.ScrapeTimeout(), logger)
	if err != nil {
		return err
	}
	gateway.SetMetrics(metrics)

	router, err := delivery.NewTransportRouter(bot, archiver, logger)
	if err != nil {
		return err
	}
	router.SetMetrics(metrics)

	store := repository.NewMemoryBatchStore()
	janitor, err := service.NewJanitor(store, cfg.BatchRetention(), logger)
	if err != nil {
		return err
	}

	batches, err := service.NewBatchService(store, gateway, router, janitor, service.BatchServiceOptions{
		ItemDelay:     cfg.ItemDelay(),
		MaxBatchSize:  cfg.MaxBatchSize,
		QueueDeadline: cfg.BatchRetention() + 2*cfg.ScrapeTimeout() + time.Minute,
	}, logger)
	if err != nil {
		return err
	}
	batches.SetMetrics(metrics)
	defer batches.Close()

	checks := []handler.HealthCheck{handler.PostgresCheck(sqlDB), handler.RedisCheck(rdb)}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.QueueEnabled() {
		mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL, queue.Options{
			MessageTTL: cfg.BatchRetention(),
			Shards:     cfg.WorkerConcurrency,
		})
		if err != nil {
			return fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		defer mq.Close()

		publisher := queue.NewRabbitMQPublisher(mq)
		defer publisher.Close() //nolint:errcheck
		batches.SetPublisher(publisher)

		// One in-flight message per shard keeps a batch's items sequential.
		consumer := queue.NewRabbitMQConsumer(mq, 1, logger)
		worker, err := service.NewQueueWorker(consumer, gateway, batches, cfg.WorkerConcurrency, logger)
		if err != nil {
			return err
		}
		worker.SetMetrics(metrics)

		checks = append(checks, handler.HealthCheck{Name: "rabbitmq", Ping: mq.Ping})
		g.Go(func() error {
			return worker.Start(gctx)
		})
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app, checks...)
	if err := handler.RegisterBatchRoutes(app, batches, bot); err != nil {
		return err
	}
	if err := handler.RegisterChatRoutes(app, batches, settings, bot, logger); err != nil {
		return err
	}
	if err := handler.RegisterScrapeRoutes(app, local); err != nil {
		return err
	}
	if err := handler.RegisterSettingsRoutes(app, settings); err != nil {
		return err
	}

	g.Go(func() error {
		logger.Info("linkbot api started",
			zap.Int("port", cfg.APIPort),
			zap.String("submitMode", cfg.SubmitMode),
		)
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("linkbot api stopped")
	return nil
}
