package middleware

import (
	"log"
	"time"

	"jobpilot/internal/metrics"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type AccessLogMiddleware struct {
	logger  *log.Logger
	metrics *metrics.Metrics
}

func NewAccessLogMiddleware(logger *log.Logger, m *metrics.Metrics) *AccessLogMiddleware {
	if logger == nil {
		logger = log.Default()
	}
	return &AccessLogMiddleware{logger: logger, metrics: m}
}

func (m *AccessLogMiddleware) Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		rid := c.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set("X-Request-ID", rid)

		err := c.Next()

		dur := time.Since(start)
		status := c.Response().StatusCode()
		method := c.Method()
		path := c.OriginalURL()

		route := path
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}

		if m == nil {
			return err
		}
		m.metrics.HTTPRequest(method, route, status, dur)
		if m.logger != nil {
			m.logger.Printf(
				"HTTP access | rid=%s ip=%s method=%s path=%s route=%s status=%d latency=%s req_bytes=%d resp_bytes=%d ua=%q",
				rid, c.IP(), method, path, route, status, dur,
				c.Request().Header.ContentLength(), len(c.Response().Body()), c.Get("User-Agent"),
			)
		}
		return err
	}
}
