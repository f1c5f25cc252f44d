package controllers

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/amaumene/homeflix/internal/metrics"
	"github.com/amaumene/homeflix/internal/models"
)

const (
	// MaxQueryLength caps normalised queries, in runes
	MaxQueryLength = 100
	// minIndexedQuery is the trigram width; shorter queries cannot use the index
	minIndexedQuery = 3
)

// SearchController handles title search over the catalog
type SearchController struct {
	db     *models.Database
	logger *logrus.Logger
}

// NewSearchController creates a new search controller
func NewSearchController(db *models.Database, logger *logrus.Logger) *SearchController {
	return &SearchController{db: db, logger: logger}
}

// NormalizeQuery trims, composes and collapses whitespace, truncating to MaxQueryLength runes
func NormalizeQuery(q string) string {
	q = strings.Join(strings.Fields(norm.NFC.String(q)), " ")
	if utf8.RuneCountInString(q) > MaxQueryLength {
		q = strings.TrimSpace(string([]rune(q)[:MaxQueryLength]))
	}
	return q
}

// ftsPhrase quotes q as a single FTS5 phrase so operators in it stay literal
func ftsPhrase(q string) string {
	return `"` + strings.ReplaceAll(q, `"`, `""`) + `"`
}

// SearchMovies returns movies whose title contains query
func (c *SearchController) SearchMovies(ctx context.Context, query string, page, pageSize int) []models.Movie {
	return searchWith[models.Movie](c, models.MediaTypeMovie, query, page, pageSize,
		c.db.SearchMoviesIndexed, c.db.SearchMoviesLike)
}

// SearchTVShows returns series whose title contains query
func (c *SearchController) SearchTVShows(ctx context.Context, query string, page, pageSize int) []models.TVShow {
	return searchWith[models.TVShow](c, models.MediaTypeTV, query, page, pageSize,
		c.db.SearchTVShowsIndexed, c.db.SearchTVShowsLike)
}

// Search dispatches on kind. It never fails: errors yield an empty list.
func (c *SearchController) Search(ctx context.Context, kind models.MediaType, query string, page, pageSize int) []models.Media {
	var out []models.Media
	switch kind {
	case models.MediaTypeMovie:
		rows := c.SearchMovies(ctx, query, page, pageSize)
		out = make([]models.Media, 0, len(rows))
		for i := range rows {
			out = append(out, &rows[i])
		}
	case models.MediaTypeTV:
		rows := c.SearchTVShows(ctx, query, page, pageSize)
		out = make([]models.Media, 0, len(rows))
		for i := range rows {
			out = append(out, &rows[i])
		}
	default:
		out = []models.Media{}
	}
	return out
}

type (
	indexedSearch[T any] func(match, startsWith string, limit, offset int) ([]T, error)
	likeSearch[T any]    func(q string, limit, offset int) ([]T, error)
)

// searchWith tries the index first and falls back to a substring scan
func searchWith[T any](c *SearchController, kind models.MediaType, query string, page, pageSize int, indexed indexedSearch[T], like likeSearch[T]) []T {
	q := NormalizeQuery(query)
	if q == "" {
		return []T{}
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	offset := (page - 1) * pageSize
	log := c.logger.WithFields(logrus.Fields{"type": kind, "query": q})

	if utf8.RuneCountInString(q) >= minIndexedQuery && c.db.SearchIndexAvailable() {
		rows, err := indexed(ftsPhrase(q), q, pageSize, offset)
		if err == nil {
			metrics.SearchQueries.WithLabelValues("index").Inc()
			return nonNil(rows)
		}
		log.WithError(err).Warn("Indexed search failed, falling back to substring match")
	}

	rows, err := like(q, pageSize, offset)
	if err != nil {
		metrics.SearchQueries.WithLabelValues("failed").Inc()
		log.WithError(err).Error("Substring search failed")
		return []T{}
	}
	metrics.SearchQueries.WithLabelValues("substring").Inc()
	return nonNil(rows)
}

func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
