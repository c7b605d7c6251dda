package ratelimit

import "context"

// RateLimiter paces outbound calls per key, such as a chat id.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}

// Nop never limits. It is used when no shared limiter is configured.
type Nop struct{}

func (Nop) Allow(context.Context, string) (bool, error) { return true, nil }

func (Nop) Wait(ctx context.Context, _ string) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
