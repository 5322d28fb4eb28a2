package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "ratelimit:"

// Limiter is a fixed-window rate limiter shared by every API replica.
type Limiter struct {
	rdb    cmdable
	limit  int64
	window time.Duration
}

// NewLimiter allows limit hits per key within each window.
func NewLimiter(client *redis.Client, limit int, window time.Duration) *Limiter {
	return newLimiter(client, limit, window)
}

func newLimiter(rdb cmdable, limit int, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, limit: int64(limit), window: window}
}

// Allow counts a hit for key and reports whether it is within the limit.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	k := rateLimitPrefix + key
	count, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, errors.Wrap(err, "incr rate limit counter")
	}
	// The first hit opens the window.
	if count == 1 && l.window > 0 {
		if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
			return false, errors.Wrap(err, "expire rate limit counter")
		}
	}
	return count <= l.limit, nil
}
