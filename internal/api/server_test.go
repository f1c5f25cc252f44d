package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/homeflix/internal/api/handlers"
	"github.com/amaumene/homeflix/internal/cache"
	"github.com/amaumene/homeflix/internal/config"
	"github.com/amaumene/homeflix/internal/controllers"
	"github.com/amaumene/homeflix/internal/models"
	"github.com/amaumene/homeflix/internal/services/apiclient"
	"github.com/amaumene/homeflix/internal/testutil"
)

type noReports struct{}

func (noReports) LastReport() *controllers.SyncReport { return nil }

func newTestServer(t *testing.T) (*Server, *models.Database) {
	t.Helper()
	db := testutil.NewDatabase(t)
	c := cache.New(map[cache.Namespace]cache.Options{
		cache.NamespacePosters:   {Duration: time.Hour},
		cache.NamespaceBackdrops: {Duration: time.Hour},
	})
	t.Cleanup(c.Close)

	cfg := &config.Config{ServerPort: "0"}
	catalog := controllers.NewCatalogController(db, controllers.NewSearchController(db, testutil.Logger()), nil, c,
		controllers.CatalogOptions{
			PerPage:         10,
			SearchPerPage:   10,
			ImageBaseURL:    "https://img.test/w500",
			BackdropBaseURL: "https://img.test/w1280",
		}, testutil.Logger())
	return NewServer(cfg, db, catalog, noReports{}, testutil.Logger()), db
}

func do(t *testing.T, s *Server, method, target, body string) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func seedMovie(t *testing.T, db *models.Database) {
	t.Helper()
	m := testutil.Movie("tt0000001", 10, "The Matrix")
	m.PosterPath = "/matrix.jpg"
	_, err := db.UpsertMovie(m, models.UpsertOptions{})
	require.NoError(t, err)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	resp, body := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}

func TestHealthDatabaseDown(t *testing.T) {
	s, db := newTestServer(t)
	require.NoError(t, db.Close())
	resp, body := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestCatalogRoutes(t *testing.T) {
	s, db := newTestServer(t)
	seedMovie(t, db)

	resp, body := do(t, s, http.MethodGet, "/api/movies?page=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results, ok := body["results"].([]any)
	require.True(t, ok)
	assert.Len(t, results, 1)

	resp, body = do(t, s, http.MethodGet, "/api/movies/tt0000001", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "The Matrix", body["title"])
	assert.Equal(t, "/poster/movie/10", body["poster_url"])

	resp, body = do(t, s, http.MethodGet, "/api/movies/tt0009999", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, body["error"])

	resp, body = do(t, s, http.MethodGet, "/api/search?q=matrix", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["movies"], 1)

	resp, body = do(t, s, http.MethodGet, "/api/search/movie/the%20matrix/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "the matrix", body["query"])

	resp, _ = do(t, s, http.MethodGet, "/api/search/podcast/matrix/1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestImageRedirect(t *testing.T) {
	s, db := newTestServer(t)
	seedMovie(t, db)

	resp, _ := do(t, s, http.MethodGet, "/poster/movie/10", "")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://img.test/w500/matrix.jpg", resp.Header.Get("Location"))

	resp, _ = do(t, s, http.MethodGet, "/backdrop/movie/10", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, s, http.MethodGet, "/poster/movie/abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWatchlistRoutes(t *testing.T) {
	s, db := newTestServer(t)
	seedMovie(t, db)

	resp, body := do(t, s, http.MethodPost, "/api/my-list", `{"type":"movie","imdb_id":"tt0000001"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["created"])

	resp, _ = do(t, s, http.MethodPost, "/api/my-list", `{"type":"movie","imdb_id":"tt0000001"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = do(t, s, http.MethodDelete, "/api/my-list/movie/tt0000001", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["removed"])

	resp, _ = do(t, s, http.MethodPost, "/api/my-list", `{"type":"book","imdb_id":"tt0000001"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProgressRoutes(t *testing.T) {
	s, db := newTestServer(t)
	seedMovie(t, db)

	resp, body := do(t, s, http.MethodPost, "/api/progress",
		`{"type":"movie","imdb_id":"tt0000001","progress":600,"duration":6000}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "The Matrix", body["title"])

	resp, _ = do(t, s, http.MethodGet, "/api/continue-watching", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = do(t, s, http.MethodDelete, "/api/progress", `{"type":"movie","imdb_id":"tt0000001"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["removed"])
}

func TestStatusAndMetrics(t *testing.T) {
	s, db := newTestServer(t)
	seedMovie(t, db)

	resp, body := do(t, s, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["movies"])
	assert.Nil(t, body["last_sync"])

	resp, body = do(t, s, http.MethodPost, "/cache/clear?namespace=posters", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mresp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, mresp.StatusCode)
	raw, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "homeflix_http_requests_total")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, handlers.StatusFor(models.ErrNotFound))
	assert.Equal(t, http.StatusBadRequest, handlers.StatusFor(controllers.ErrInvalidInput))
	assert.Equal(t, http.StatusBadGateway, handlers.StatusFor(&apiclient.TransientError{Err: errors.New("timeout")}))
	assert.Equal(t, http.StatusInternalServerError, handlers.StatusFor(errors.New("boom")))
}
