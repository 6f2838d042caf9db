package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dkrasnov/receipt-gateway/pkg/logger"
)

// Logger logs one structured line per request through logger.Interface,
// tagging it with the request id RequestID stashed in locals.
func Logger(l logger.Interface) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		rid, _ := c.Locals(RequestIDLocalKey).(string)
		l.Info(
			"restapi - request, requestId=%s, method=%s, path=%s, status=%d, latencyMs=%d",
			rid, c.Method(), c.Path(), c.Response().StatusCode(), time.Since(start).Milliseconds(),
		)

		return err
	}
}
