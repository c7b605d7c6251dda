package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

const (
	SubmitModeDirect = "direct"
	SubmitModeQueue  = "queue"
)

type Config struct {
	DatabaseDSN         string `env:"DATABASE_DSN,required=true"`
	RedisURL            string `env:"REDIS_URL,required=true"`
	BotToken            string `env:"BOT_TOKEN,required=true"`
	BotAPIURL           string `env:"BOT_API_URL,default=https://api.telegram.org"`
	RabbitMQURL         string `env:"RABBITMQ_URL"`
	SubmitMode          string `env:"SUBMIT_MODE,default=direct"`
	ScraperURL          string `env:"SCRAPER_URL"`
	YtdlpPath           string `env:"YTDLP_PATH,default=yt-dlp"`
	ScrapeTimeoutSec    int    `env:"SCRAPE_TIMEOUT_SEC,default=30"`
	ItemDelayMS         int    `env:"ITEM_DELAY_MS,default=500"`
	BatchRetentionMin   int    `env:"BATCH_RETENTION_MIN,default=60"`
	MaxBatchSize        int    `env:"MAX_BATCH_SIZE,default=50"`
	ChatRateLimitPerSec int    `env:"CHAT_RATE_LIMIT_PER_SEC,default=20"`
	BotRateLimitPerSec  int    `env:"BOT_RATE_LIMIT_PER_SEC,default=30"`
	PageRateLimitPerSec int    `env:"PAGE_RATE_LIMIT_PER_SEC,default=2"`
	BrowserSettleMS     int    `env:"BROWSER_SETTLE_MS,default=1500"`
	WorkerConcurrency   int    `env:"WORKER_CONCURRENCY,default=1"`
	APIPort             int    `env:"API_PORT,default=8080"`
	LogLevel            string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	c.SubmitMode = strings.ToLower(strings.TrimSpace(c.SubmitMode))
	switch c.SubmitMode {
	case SubmitModeDirect:
	case SubmitModeQueue:
		if strings.TrimSpace(c.RabbitMQURL) == "" {
			return fmt.Errorf("RABBITMQ_URL is required when SUBMIT_MODE=queue")
		}
	default:
		return fmt.Errorf("invalid SUBMIT_MODE %q", c.SubmitMode)
	}
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("MAX_BATCH_SIZE must be positive")
	}
	return nil
}

// QueueEnabled reports whether batches go through the broker.
func (c *Config) QueueEnabled() bool {
	return c.SubmitMode == SubmitModeQueue
}

func (c *Config) ScrapeTimeout() time.Duration {
	return time.Duration(c.ScrapeTimeoutSec) * time.Second
}

func (c *Config) ItemDelay() time.Duration {
	return time.Duration(c.ItemDelayMS) * time.Millisecond
}

func (c *Config) BatchRetention() time.Duration {
	return time.Duration(c.BatchRetentionMin) * time.Minute
}

func (c *Config) BrowserSettle() time.Duration {
	return time.Duration(c.BrowserSettleMS) * time.Millisecond
}
