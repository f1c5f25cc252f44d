package handlers

import (
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/homeflix/internal/controllers"
	"github.com/amaumene/homeflix/internal/models"
)

// CatalogHandler serves catalog reads
type CatalogHandler struct {
	catalog *controllers.CatalogController
	logger  *logrus.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog *controllers.CatalogController, logger *logrus.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

// Home handles GET /api/home?movie_page=&series_page=
func (h *CatalogHandler) Home(c *fiber.Ctx) error {
	home, err := h.catalog.Home(c.UserContext(), c.QueryInt("movie_page", 1), c.QueryInt("series_page", 1))
	if err != nil {
		return err
	}
	return c.JSON(home)
}

// Movies handles GET /api/movies?page=
func (h *CatalogHandler) Movies(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	views, err := h.catalog.LatestMovies(c.UserContext(), page)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"page": max(page, 1), "results": views})
}

// Series handles GET /api/series?page=
func (h *CatalogHandler) Series(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	views, err := h.catalog.LatestSeries(c.UserContext(), page)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"page": max(page, 1), "results": views})
}

// Search handles GET /api/search?q=
func (h *CatalogHandler) Search(c *fiber.Ctx) error {
	return c.JSON(h.catalog.Search(c.UserContext(), c.Query("q")))
}

// SearchMore handles GET /api/search/:type/:query/:page
func (h *CatalogHandler) SearchMore(c *fiber.Ctx) error {
	kind, err := mediaType(c, "type")
	if err != nil {
		return err
	}
	query, err := url.PathUnescape(c.Params("query"))
	if err != nil {
		return badRequest("malformed query")
	}
	page, err := c.ParamsInt("page", 1)
	if err != nil || page < 1 {
		return badRequest("page must be a positive number")
	}
	results := h.catalog.SearchMore(c.UserContext(), kind, query, page)
	return c.JSON(fiber.Map{
		"query":    controllers.NormalizeQuery(query),
		"page":     page,
		"results":  results,
		"has_more": len(results) > 0,
	})
}

// Movie handles GET /api/movies/:imdb
func (h *CatalogHandler) Movie(c *fiber.Ctx) error {
	v, err := h.catalog.MovieDetail(c.UserContext(), c.Params("imdb"))
	if err != nil {
		return err
	}
	return c.JSON(v)
}

// Show handles GET /api/series/:imdb
func (h *CatalogHandler) Show(c *fiber.Ctx) error {
	d, err := h.catalog.SeriesDetail(c.UserContext(), c.Params("imdb"))
	if err != nil {
		return err
	}
	return c.JSON(d)
}

// Season handles GET /api/series/:imdb/season/:season
func (h *CatalogHandler) Season(c *fiber.Ctx) error {
	season, err := c.ParamsInt("season")
	if err != nil {
		return badRequest("season must be a number")
	}
	s, err := h.catalog.SeasonEpisodes(c.UserContext(), c.Params("imdb"), season)
	if err != nil {
		return err
	}
	return c.JSON(s)
}

// Watch handles GET /api/watch/:type/:imdb?season=&episode=
func (h *CatalogHandler) Watch(c *fiber.Ctx) error {
	kind, err := mediaType(c, "type")
	if err != nil {
		return err
	}
	season, err := optionalInt(c.Query("season"))
	if err != nil {
		return err
	}
	episode, err := optionalInt(c.Query("episode"))
	if err != nil {
		return err
	}
	info, err := h.catalog.WatchSources(kind, c.Params("imdb"), season, episode)
	if err != nil {
		return err
	}
	return c.JSON(info)
}

// Image handles GET /poster/:type/:tmdb and GET /backdrop/:type/:tmdb by
// redirecting to the CDN
func (h *CatalogHandler) Image(variant controllers.ImageVariant) fiber.Handler {
	return func(c *fiber.Ctx) error {
		kind, err := mediaType(c, "type")
		if err != nil {
			return err
		}
		id, err := strconv.ParseInt(c.Params("tmdb"), 10, 64)
		if err != nil || id <= 0 {
			return badRequest("tmdb id must be a positive number")
		}
		u, ok := h.catalog.ImageURL(c.UserContext(), variant, kind, id)
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no "+string(variant)+" for this title")
		}
		c.Set(fiber.HeaderCacheControl, "public, max-age=86400")
		return c.Redirect(u, fiber.StatusFound)
	}
}

// mediaTypeOf parses a type from a request body or query string
func mediaTypeOf(raw string) (models.MediaType, error) {
	kind, err := models.ParseMediaType(raw)
	if err != nil {
		return "", badRequest(err.Error())
	}
	return kind, nil
}
