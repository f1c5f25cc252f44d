package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Pinger checks a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	db      Pinger
	started time.Time
	logger  *logrus.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db Pinger, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{db: db, started: time.Now(), logger: logger}
}

// Get handles the health check endpoint. An unreachable database answers 503.
func (h *HealthHandler) Get(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	response := fiber.Map{
		"status":   "healthy",
		"uptime":   time.Since(h.started).Round(time.Second).String(),
		"database": "ok",
	}
	if err := h.db.Ping(ctx); err != nil {
		h.logger.WithError(err).Warn("Health check: database unreachable")
		response["status"] = "unhealthy"
		response["database"] = err.Error()
		return c.Status(fiber.StatusServiceUnavailable).JSON(response)
	}
	return c.JSON(response)
}
