package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter throttles outbound requests per domain using a fixed-window counter
// in Redis, so concurrent workers across processes share one budget.
//
// Any backend error defaults to allow: crawl availability wins over strict
// throttling, and the remote site's own defenses are the real backstop.
type Limiter struct {
	rdb     *redis.Client
	ceiling int64
	window  time.Duration
}

func New(rdb *redis.Client, ceiling int, window time.Duration) *Limiter {
	if ceiling <= 0 {
		ceiling = 5
	}
	if window <= 0 {
		window = 10 * time.Second
	}
	return &Limiter{rdb: rdb, ceiling: int64(ceiling), window: window}
}

// Allow increments the domain's counter for the current window and reports
// whether the request fits the budget. The first request for an unseen domain
// is always allowed.
func (l *Limiter) Allow(ctx context.Context, domain string) bool {
	windowID := time.Now().Unix() / int64(l.window.Seconds())
	key := fmt.Sprintf("ratelimit:%s:%d", domain, windowID)

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		slog.WarnContext(ctx, "rate limiter backend unavailable, allowing request", "domain", domain, "error", err)
		return true
	}

	if count == 1 {
		// Window keys expire on their own; a failed EXPIRE only delays cleanup.
		if err := l.rdb.Expire(ctx, key, l.window*2).Err(); err != nil {
			slog.WarnContext(ctx, "failed to set rate limit key expiry", "key", key, "error", err)
		}
	}

	return count <= l.ceiling
}
