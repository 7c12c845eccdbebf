package middleware

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type AccessLogMiddleware struct {
	logger *log.Logger
	quiet  map[string]bool
}

// NewAccessLogMiddleware logs every request except those whose path is listed
// in quiet, which still receive a request id.
func NewAccessLogMiddleware(logger *log.Logger, quiet ...string) *AccessLogMiddleware {
	if logger == nil {
		logger = log.Default()
	}
	q := make(map[string]bool, len(quiet))
	for _, p := range quiet {
		q[p] = true
	}
	return &AccessLogMiddleware{logger: logger, quiet: q}
}

func (m *AccessLogMiddleware) Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		rid := c.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
			c.Set("X-Request-ID", rid)
		}

		err := c.Next()
		if m.quiet[c.Path()] {
			return err
		}

		dur := time.Since(start)
		status := c.Response().StatusCode()

		ip := c.IP()
		method := c.Method()
		path := c.OriginalURL()

		ua := c.Get("User-Agent")

		reqBytes := c.Request().Header.ContentLength()
		respBytes := c.Response().Header.ContentLength()

		if m.logger != nil {
			m.logger.Printf(
				"http event=access rid=%s ip=%s method=%s path=%s status=%d latency=%s req_bytes=%d resp_bytes=%d ua=%q",
				rid, ip, method, path, status, dur, reqBytes, respBytes, ua,
			)
		}

		return err
	}
}
