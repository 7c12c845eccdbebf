package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter is a fixed-window counter per key. With redis unavailable, or a
// non-positive limit, it allows everything.
type RateLimiter struct {
	redis  *Redis
	scope  string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(r *Redis, scope string, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "default"
	}
	return &RateLimiter{redis: r, scope: scope, limit: limit, window: window, now: time.Now}
}

func (l *RateLimiter) windowKey(key string, at time.Time) string {
	slot := at.UnixNano() / int64(l.window)
	return fmt.Sprintf("rl:%s:%s:%d", l.scope, key, slot)
}

func (l *RateLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l == nil {
		return Decision{Allowed: true}, nil
	}
	open := Decision{Allowed: true, Limit: l.limit, Remaining: l.limit}
	if l.limit <= 0 || !l.redis.Available() {
		return open, nil
	}

	now := l.now()
	k := l.windowKey(key, now)

	pipe := l.redis.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, 2*l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.redis.warnUnavailableOnce(err)
		return open, err
	}

	count := int(incr.Val())
	d := Decision{Limit: l.limit, Remaining: l.limit - count}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if count <= l.limit {
		d.Allowed = true
		return d, nil
	}
	elapsed := time.Duration(now.UnixNano() % int64(l.window))
	d.RetryAfter = l.window - elapsed
	return d, nil
}
