package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/homeflix/internal/api/handlers"
	"github.com/amaumene/homeflix/internal/metrics"
)

// Logging middleware logs HTTP requests and records request metrics
func Logging(logger *logrus.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Call next handler
		err := c.Next()

		// The error handler has not run yet, so derive the status it will write
		status := c.Response().StatusCode()
		if err != nil {
			status = handlers.StatusFor(err)
		}
		route := c.Route().Path
		elapsed := time.Since(start)

		metrics.HTTPRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Method(), route).Observe(elapsed.Seconds())

		entry := logger.WithFields(logrus.Fields{
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      status,
			"duration_ms": elapsed.Milliseconds(),
			"remote_addr": c.IP(),
		})
		if route == "/health" || route == "/metrics" {
			entry.Debug("HTTP request")
		} else {
			entry.Info("HTTP request")
		}
		return err
	}
}
