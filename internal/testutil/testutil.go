// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/homeflix/internal/models"
)

// Logger returns a logger that discards output
func Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

// NewDatabase opens a migrated database in a temp dir, closed when the test ends
func NewDatabase(t testing.TB) *models.Database {
	t.Helper()
	db, err := models.NewDatabase(models.DatabaseOptions{
		Path:            filepath.Join(t.TempDir(), "homeflix.db"),
		PoolSize:        2,
		MaxOverflow:     2,
		ConnMaxLifetime: time.Hour,
	}, Logger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Movie builds a minimal valid movie row
func Movie(imdbID string, tmdbID int64, title string) *models.Movie {
	return &models.Movie{
		IMDBID:      imdbID,
		TMDBID:      models.Int64Ptr(tmdbID),
		Title:       title,
		ReleaseDate: "2024-01-01",
		Year:        "2024",
		Genres:      models.Genres{"Drama"},
		Quality:     "HD",
		Popularity:  float64(tmdbID),
	}
}

// TVShow builds a minimal valid tv show row
func TVShow(imdbID string, tmdbID int64, title string) *models.TVShow {
	return &models.TVShow{
		IMDBID:          imdbID,
		TMDBID:          models.Int64Ptr(tmdbID),
		Title:           title,
		FirstAirDate:    "2024-01-01",
		Year:            "2024",
		Genres:          models.Genres{"Drama"},
		NumberOfSeasons: 1,
		Popularity:      float64(tmdbID),
	}
}
