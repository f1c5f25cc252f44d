package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/homeflix/internal/controllers"
)

// ReportSource exposes the most recent sync report
type ReportSource interface {
	LastReport() *controllers.SyncReport
}

// StatusHandler handles status and cache maintenance requests
type StatusHandler struct {
	catalog *controllers.CatalogController
	sync    ReportSource
	logger  *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(catalog *controllers.CatalogController, sync ReportSource, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		catalog: catalog,
		sync:    sync,
		logger:  logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	*controllers.CatalogStats
	LastSync *controllers.SyncReport `json:"last_sync"`
}

// Get handles the status endpoint
func (h *StatusHandler) Get(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{
		CatalogStats: h.catalog.Stats(),
		LastSync:     h.sync.LastReport(),
	})
}

// ClearCache empties the namespaces named in ?namespace= (comma separated),
// or every namespace when none is given
func (h *StatusHandler) ClearCache(c *fiber.Ctx) error {
	var names []string
	for _, n := range strings.Split(c.Query("namespace"), ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	h.catalog.ClearCache(names...)
	return c.JSON(fiber.Map{"status": "ok", "cleared": names})
}
