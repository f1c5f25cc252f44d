package controllers

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/homeflix/internal/cache"
	"github.com/amaumene/homeflix/internal/models"
	"github.com/amaumene/homeflix/internal/services/tmdb"
	"github.com/amaumene/homeflix/internal/testutil"
)

func TestLatestMoviesPopulatesImageCache(t *testing.T) {
	ctrl, db, c := newTestCatalog(t, nil)
	m := testutil.Movie("tt0000001", 10, "Alpha")
	m.PosterPath, m.BackdropPath = "/alpha.jpg", "/alpha-wide.jpg"
	upsertMovie(t, db, m)

	views, err := ctrl.LatestMovies(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "/poster/movie/10", views[0].PosterURL)
	assert.Equal(t, "/backdrop/movie/10", views[0].BackdropURL)
	assert.Equal(t, []string{"Drama"}, views[0].Genres)

	poster, ok := c.Fresh(cache.NamespacePosters, "movie_10_poster")
	require.True(t, ok)
	assert.Equal(t, "/alpha.jpg", poster)
	backdrop, ok := c.Fresh(cache.NamespaceBackdrops, "movie_10_backdrop")
	require.True(t, ok)
	assert.Equal(t, "/alpha-wide.jpg", backdrop)
}

func TestImageURLTiers(t *testing.T) {
	provider := newFakeProvider()
	ctrl, db, c := newTestCatalog(t, provider)
	ctx := context.Background()

	// cache
	c.Set(cache.NamespacePosters, "movie_1_poster", "/cached.jpg")
	u, ok := ctrl.ImageURL(ctx, VariantPoster, models.MediaTypeMovie, 1)
	require.True(t, ok)
	assert.Equal(t, "https://img.test/w500/cached.jpg", u)

	// store row
	m := testutil.Movie("tt0000002", 2, "Beta")
	m.BackdropPath = "/stored.jpg"
	upsertMovie(t, db, m)
	assert.Equal(t, "https://img.test/w1280/stored.jpg", ctrl.BackdropURL(ctx, models.MediaTypeMovie, 2))
	assert.Zero(t, provider.imageCalls)

	// provider, best rated
	assert.Equal(t, "https://img.test/w500/best3.jpg", ctrl.PosterURL(ctx, models.MediaTypeMovie, 3))
	assert.Equal(t, 1, provider.imageCalls)
	assert.Equal(t, "https://img.test/w500/best3.jpg", ctrl.PosterURL(ctx, models.MediaTypeMovie, 3))
	assert.Equal(t, 1, provider.imageCalls)

	// none: the provider has no backdrop either
	_, ok = ctrl.ImageURL(ctx, VariantBackdrop, models.MediaTypeTV, 4)
	assert.False(t, ok)
}

func TestImageURLDoesNotCacheProviderFailure(t *testing.T) {
	provider := newFakeProvider()
	provider.noImages = true
	ctrl, _, c := newTestCatalog(t, provider)

	assert.Empty(t, ctrl.PosterURL(context.Background(), models.MediaTypeMovie, 7))
	_, ok := c.Fresh(cache.NamespacePosters, "movie_7_poster")
	assert.False(t, ok)
}

func TestParseImageVariant(t *testing.T) {
	v, err := ParseImageVariant("backdrop")
	require.NoError(t, err)
	assert.Equal(t, VariantBackdrop, v)

	_, err = ParseImageVariant("thumbnail")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestHomeBackdrops(t *testing.T) {
	ctrl, db, _ := newTestCatalog(t, nil)
	var first models.Media
	for i, id := range []string{"tt0000001", "tt0000002", "tt0000003"} {
		m := testutil.Movie(id, int64(i+1), "Movie "+id)
		m.BackdropPath = "/m.jpg"
		stored := upsertMovie(t, db, m)
		if first == nil {
			first = stored
		}
	}
	_, err := db.ApplyTrending(models.MediaTypeMovie, []models.Media{first})
	require.NoError(t, err)
	s := testutil.TVShow("tt0000010", 10, "Show")
	s.BackdropPath = "/s.jpg"
	_, err = db.UpsertTVShow(s, models.UpsertOptions{})
	require.NoError(t, err)

	home, err := ctrl.Home(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, home.MoviePage)
	assert.Len(t, home.Movies, 3)
	assert.Len(t, home.Series, 1)
	assert.Len(t, home.TrendingMovies, 1)
	assert.Empty(t, home.TrendingSeries)
	require.Len(t, home.BackdropURLs, 4)
	assert.Equal(t, "/backdrop/tv/10", home.BackdropURLs[0])
}

func TestMovieDetail(t *testing.T) {
	provider := newFakeProvider()
	provider.add(models.MediaTypeMovie, "tt0000005", 5, "Fetched")
	ctrl, db, _ := newTestCatalog(t, provider)
	ctx := context.Background()

	upsertMovie(t, db, testutil.Movie("tt0000001", 1, "Stored"))
	v, err := ctrl.MovieDetail(ctx, "tt0000001")
	require.NoError(t, err)
	assert.Equal(t, "Stored", v.Title)
	assert.Zero(t, provider.detailCalls)

	v, err = ctrl.MovieDetail(ctx, "tt0000005")
	require.NoError(t, err)
	assert.Equal(t, "Fetched", v.Title)
	assert.Equal(t, "HD", v.Quality)
	stored, err := db.FindMovie(models.IDTypeIMDB, "tt0000005")
	require.NoError(t, err)
	assert.False(t, stored.IsTrending)

	_, err = ctrl.MovieDetail(ctx, "tt0009999")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = ctrl.MovieDetail(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMovieDetailRejectsWrongKind(t *testing.T) {
	provider := newFakeProvider()
	provider.add(models.MediaTypeTV, "tt0000010", 10, "A Show")
	ctrl, _, _ := newTestCatalog(t, provider)

	_, err := ctrl.MovieDetail(context.Background(), "tt0000010")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSeriesDetailAndSeasons(t *testing.T) {
	provider := newFakeProvider()
	provider.add(models.MediaTypeTV, "tt0000010", 10, "A Show")
	provider.seasons[1] = episodes(3)
	provider.seasons[2] = episodes(2)
	ctrl, _, _ := newTestCatalog(t, provider)
	ctx := context.Background()

	d, err := ctrl.SeriesDetail(ctx, "tt0000010")
	require.NoError(t, err)
	assert.Equal(t, "A Show", d.Title)
	require.Len(t, d.Seasons, 2)
	assert.Equal(t, 3, d.Seasons[0].EpisodeCount)

	s, err := ctrl.SeasonEpisodes(ctx, "tt0000010", 2)
	require.NoError(t, err)
	assert.Len(t, s.Episodes, 2)

	_, err = ctrl.SeasonEpisodes(ctx, "tt0000010", 9)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = ctrl.SeasonEpisodes(ctx, "tt0000010", -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSearchUsesCatalogFirst(t *testing.T) {
	provider := newFakeProvider()
	provider.search["matrix"] = []tmdb.ListItem{provider.add(models.MediaTypeMovie, "tt0000009", 9, "Matrix Remote")}
	ctrl, db, _ := newTestCatalog(t, provider)
	upsertMovie(t, db, testutil.Movie("tt0000001", 1, "The Matrix"))

	res := ctrl.Search(context.Background(), "  matrix ")
	assert.Equal(t, "matrix", res.Query)
	require.Len(t, res.Movies, 1)
	assert.Equal(t, "The Matrix", res.Movies[0].Title)
	assert.Empty(t, res.Series)
	assert.Empty(t, res.Suggestion)
}

func TestSearchFallsBackToProvider(t *testing.T) {
	provider := newFakeProvider()
	known := provider.add(models.MediaTypeMovie, "tt0000009", 9, "Remote Movie")
	orphan := provider.add(models.MediaTypeMovie, "", 8, "Remote Orphan")
	known.PosterPath = "/remote.jpg"
	provider.search["remote"] = []tmdb.ListItem{known, orphan}
	ctrl, _, c := newTestCatalog(t, provider)

	res := ctrl.Search(context.Background(), "remote")
	require.Len(t, res.Movies, 1)
	assert.Equal(t, "tt0000009", res.Movies[0].IMDBID)
	assert.Equal(t, "/poster/movie/9", res.Movies[0].PosterURL)
	cached, ok := c.Fresh(cache.NamespacePosters, "movie_9_poster")
	require.True(t, ok)
	assert.Equal(t, "/remote.jpg", cached)
}

func TestSearchSuggestion(t *testing.T) {
	ctrl, db, _ := newTestCatalog(t, nil)
	upsertMovie(t, db, testutil.Movie("tt0000001", 1, "The Matrix"))

	res := ctrl.Search(context.Background(), "the matrx")
	assert.Empty(t, res.Movies)
	assert.Equal(t, "The Matrix", res.Suggestion)

	res = ctrl.Search(context.Background(), "completely different")
	assert.Empty(t, res.Suggestion)
}

func TestClosestTitle(t *testing.T) {
	titles := []string{"Breaking Bad", "Better Call Saul", "The Wire"}
	assert.Equal(t, "Breaking Bad", closestTitle("braking bad", titles))
	assert.Equal(t, "The Wire", closestTitle("the wyre", titles))
	assert.Empty(t, closestTitle("zzzz", titles))
}

func TestWatchSources(t *testing.T) {
	ctrl, db, _ := newTestCatalog(t, nil)
	upsertMovie(t, db, testutil.Movie("tt0000001", 42, "Known"))

	info, err := ctrl.WatchSources(models.MediaTypeMovie, "tt0000001", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Known", info.Title)
	assert.Contains(t, info.EmbedURL, "/movie/42")
	assert.Equal(t, info.Sources[0], info.EmbedURL)

	info, err = ctrl.WatchSources(models.MediaTypeMovie, "tt0000077", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, info.EmbedURL, "tt0000077")

	info, err = ctrl.WatchSources(models.MediaTypeTV, "tt0000010", models.IntPtr(2), models.IntPtr(5))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(info.Title, "S2E5"))
	assert.Contains(t, info.EmbedURL, "tt0000010/2/5")

	_, err = ctrl.WatchSources(models.MediaTypeTV, "tt0000010", models.IntPtr(2), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStats(t *testing.T) {
	ctrl, db, _ := newTestCatalog(t, nil)
	m := testutil.Movie("tt0000001", 1, "Alpha")
	m.PosterPath = "/a.jpg"
	upsertMovie(t, db, m)
	_, err := ctrl.LatestMovies(context.Background(), 1)
	require.NoError(t, err)

	stats := ctrl.Stats()
	assert.EqualValues(t, 1, stats.Movies)
	assert.Zero(t, stats.TVShows)
	assert.True(t, stats.SearchIndex)
	assert.Equal(t, 1, stats.Cache[string(cache.NamespacePosters)])

	ctrl.ClearCache(string(cache.NamespacePosters))
	assert.Zero(t, ctrl.Stats().Cache[string(cache.NamespacePosters)])
}
