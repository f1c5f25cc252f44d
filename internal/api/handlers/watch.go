package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/homeflix/internal/controllers"
	"github.com/amaumene/homeflix/internal/models"
)

// WatchHandler serves the watchlist, progress and watched marks
type WatchHandler struct {
	catalog *controllers.CatalogController
	logger  *logrus.Logger
}

// NewWatchHandler creates a new watch state handler
func NewWatchHandler(catalog *controllers.CatalogController, logger *logrus.Logger) *WatchHandler {
	return &WatchHandler{catalog: catalog, logger: logger}
}

// titleRequest identifies a title, optionally down to one episode
type titleRequest struct {
	Type    string `json:"type" query:"type"`
	IMDBID  string `json:"imdb_id" query:"imdb_id"`
	TMDBID  *int64 `json:"tmdb_id" query:"tmdb_id"`
	Title   string `json:"title" query:"title"`
	Season  *int   `json:"season" query:"season"`
	Episode *int   `json:"episode" query:"episode"`
}

func (r titleRequest) key() (models.WatchKey, error) {
	kind, err := mediaTypeOf(r.Type)
	if err != nil {
		return models.WatchKey{}, err
	}
	if r.IMDBID == "" {
		return models.WatchKey{}, badRequest("imdb_id is required")
	}
	return models.WatchKey{MediaType: kind, MediaID: r.IMDBID, Season: r.Season, Episode: r.Episode}, nil
}

// bodyOrQuery reads req from the JSON body, or the query string when the body is empty
func bodyOrQuery(c *fiber.Ctx, req any) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(req); err != nil {
			return badRequest("invalid request body")
		}
		return nil
	}
	if err := c.QueryParser(req); err != nil {
		return badRequest("invalid query")
	}
	return nil
}

// List handles GET /api/my-list
func (h *WatchHandler) List(c *fiber.Ctx) error {
	items, err := h.catalog.Watchlist()
	if err != nil {
		return err
	}
	return c.JSON(items)
}

// Add handles POST /api/my-list
func (h *WatchHandler) Add(c *fiber.Ctx) error {
	var req titleRequest
	if err := bodyOrQuery(c, &req); err != nil {
		return err
	}
	key, err := req.key()
	if err != nil {
		return err
	}
	entry, created, err := h.catalog.AddToWatchlist(key.MediaType, key.MediaID, req.Title, req.TMDBID)
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"created": created, "entry": entry})
}

// Remove handles DELETE /api/my-list/:type/:id
func (h *WatchHandler) Remove(c *fiber.Ctx) error {
	kind, err := mediaType(c, "type")
	if err != nil {
		return err
	}
	removed, err := h.catalog.RemoveFromWatchlist(kind, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"removed": removed})
}

type progressRequest struct {
	titleRequest
	PosterPath string `json:"poster_path"`
	Progress   int    `json:"progress"`
	Duration   int    `json:"duration"`
}

// SaveProgress handles POST /api/progress
func (h *WatchHandler) SaveProgress(c *fiber.Ctx) error {
	var req progressRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	key, err := req.key()
	if err != nil {
		return err
	}
	p, err := h.catalog.SaveProgress(models.ProgressUpdate{
		Key:             key,
		TMDBID:          req.TMDBID,
		Title:           req.Title,
		PosterPath:      req.PosterPath,
		ProgressSeconds: req.Progress,
		DurationSeconds: req.Duration,
	})
	if err != nil {
		return err
	}
	return c.JSON(p)
}

// ClearProgress handles DELETE /api/progress
func (h *WatchHandler) ClearProgress(c *fiber.Ctx) error {
	var req titleRequest
	if err := bodyOrQuery(c, &req); err != nil {
		return err
	}
	key, err := req.key()
	if err != nil {
		return err
	}
	removed, err := h.catalog.ClearProgress(key)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"removed": removed})
}

// ContinueWatching handles GET /api/continue-watching?limit=
func (h *WatchHandler) ContinueWatching(c *fiber.Ctx) error {
	items, err := h.catalog.ContinueWatching(c.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	return c.JSON(items)
}

// Watched handles GET /api/watched?type=&limit=
func (h *WatchHandler) Watched(c *fiber.Ctx) error {
	var kind models.MediaType
	if raw := c.Query("type"); raw != "" {
		k, err := mediaTypeOf(raw)
		if err != nil {
			return err
		}
		kind = k
	}
	items, err := h.catalog.WatchedItems(kind, c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(items)
}

// MarkWatched handles POST /api/watched
func (h *WatchHandler) MarkWatched(c *fiber.Ctx) error {
	var req titleRequest
	if err := bodyOrQuery(c, &req); err != nil {
		return err
	}
	key, err := req.key()
	if err != nil {
		return err
	}
	m, err := h.catalog.MarkWatched(key, req.Title, req.TMDBID)
	if err != nil {
		return err
	}
	return c.JSON(m)
}

// UnmarkWatched handles DELETE /api/watched
func (h *WatchHandler) UnmarkWatched(c *fiber.Ctx) error {
	var req titleRequest
	if err := bodyOrQuery(c, &req); err != nil {
		return err
	}
	key, err := req.key()
	if err != nil {
		return err
	}
	removed, err := h.catalog.UnmarkWatched(key)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"removed": removed})
}

type seasonRequest struct {
	IMDBID string `json:"imdb_id"`
	Season int    `json:"season"`
}

// MarkSeason handles POST /api/watched/season
func (h *WatchHandler) MarkSeason(c *fiber.Ctx) error {
	var req seasonRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	n, err := h.catalog.MarkSeasonWatched(c.UserContext(), req.IMDBID, req.Season)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"marked": n})
}

// MarkSeries handles POST /api/watched/series
func (h *WatchHandler) MarkSeries(c *fiber.Ctx) error {
	var req seasonRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}
	n, err := h.catalog.MarkSeriesWatched(c.UserContext(), req.IMDBID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"marked": n})
}
