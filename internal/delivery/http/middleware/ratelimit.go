package middleware

import (
	"context"
	"log"
	"math"
	"strconv"

	"job-harvester/internal/infrastructure/cache"

	"github.com/gofiber/fiber/v3"
)

// Limiter decides whether key may make another request in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (cache.Decision, error)
}

type RateLimitMiddleware struct {
	limiter Limiter
	logger  *log.Logger
}

func NewRateLimitMiddleware(limiter Limiter, logger *log.Logger) *RateLimitMiddleware {
	if logger == nil {
		logger = log.Default()
	}
	return &RateLimitMiddleware{limiter: limiter, logger: logger}
}

// Middleware limits per client IP. Limiter failures let the request through.
func (m *RateLimitMiddleware) Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		if m.limiter == nil {
			return c.Next()
		}

		d, err := m.limiter.Allow(c.Context(), c.IP())
		if err != nil {
			m.logger.Printf("http event=ratelimit_error ip=%s err=%v", c.IP(), err)
			return c.Next()
		}
		if d.Limit > 0 {
			c.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			c.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		}
		if !d.Allowed {
			secs := int(math.Ceil(d.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
			return NewAppError(fiber.StatusTooManyRequests, "rate limit exceeded", fiber.Map{"retry_after_seconds": secs}, nil)
		}
		return c.Next()
	}
}
