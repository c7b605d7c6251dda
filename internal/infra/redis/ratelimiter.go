package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/linkbot/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultPerChatLimit int64 = 20
	defaultGlobalLimit  int64 = 30
	backoffStep               = 10 * time.Millisecond
	backoffMax                = 50 * time.Millisecond
	windowSeconds             = 1
	keyPrefix                 = "linkbot:ratelimit"
)

// Both windows are checked before either is charged, so a chat that is over
// its own budget does not consume the bot-wide one.
var allowScript = goredis.NewScript(`
local chat = tonumber(redis.call("GET", KEYS[1]) or "0")
local bot = tonumber(redis.call("GET", KEYS[2]) or "0")
if chat >= tonumber(ARGV[1]) then
  return 0
end
if bot >= tonumber(ARGV[2]) then
  return -1
end
redis.call("INCR", KEYS[1])
redis.call("EXPIRE", KEYS[1], ARGV[3])
redis.call("INCR", KEYS[2])
redis.call("EXPIRE", KEYS[2], ARGV[3])
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// Limits caps outbound bot calls per one-second window.
type Limits struct {
	PerChat int
	Global  int
}

// RedisRateLimiter paces Bot API calls with fixed one-second windows kept in
// Redis: one window per chat and one shared by the whole bot. Replicas that
// share Redis share both budgets.
type RedisRateLimiter struct {
	client  *goredis.Client
	perChat int64
	global  int64
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	script  *goredis.Script
}

func NewRedisRateLimiter(client *goredis.Client, limits Limits) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, limits, time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limits Limits,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	perChat := int64(limits.PerChat)
	if perChat <= 0 {
		perChat = defaultPerChatLimit
	}
	global := int64(limits.Global)
	if global <= 0 {
		global = defaultGlobalLimit
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client:  client,
		perChat: perChat,
		global:  global,
		now:     nowFn,
		sleep:   sleepFn,
		script:  allowScript,
	}, nil
}

// Allow charges one call to chatID when both its window and the bot window
// have room.
func (r *RedisRateLimiter) Allow(ctx context.Context, chatID string) (bool, error) {
	if r == nil || r.client == nil || r.script == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	chat := strings.ToLower(strings.TrimSpace(chatID))
	if chat == "" {
		return false, fmt.Errorf("rate limit key is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	window := r.now().UTC().Unix()
	keys := []string{
		fmt.Sprintf("%s:chat:%s:%d", keyPrefix, chat, window),
		fmt.Sprintf("%s:bot:%d", keyPrefix, window),
	}
	result, err := r.script.Run(ctx, r.client, keys, r.perChat, r.global, windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return result == 1, nil
}

// Wait blocks until Allow succeeds or ctx ends.
func (r *RedisRateLimiter) Wait(ctx context.Context, chatID string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := backoffStep
	for {
		allowed, err := r.Allow(ctx, chatID)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, backoff); err != nil {
			return err
		}

		backoff = min(backoff+backoffStep, backoffMax)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
