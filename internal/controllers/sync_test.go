package controllers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/homeflix/internal/models"
	"github.com/amaumene/homeflix/internal/services/tmdb"
	"github.com/amaumene/homeflix/internal/services/vidsrc"
	"github.com/amaumene/homeflix/internal/testutil"
	"github.com/amaumene/homeflix/internal/utils"
)

func newTestSync(t *testing.T, provider *fakeProvider, listing *fakeListing, blocklist *utils.Blocklist) (*SyncController, *models.Database) {
	t.Helper()
	db := testutil.NewDatabase(t)
	opts := SyncOptions{MoviePages: 2, TVPages: 1, TrendingPages: 1, PageWorkers: 2, DetailWorkers: 4}
	return NewSyncController(db, provider, listing, blocklist, opts, testutil.Logger()), db
}

func trendingIDs(t *testing.T, db *models.Database) []string {
	t.Helper()
	rows, err := db.TrendingMovies(0)
	require.NoError(t, err)
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.IMDBID)
	}
	return ids
}

// fiveMovies registers five movies and lists them over two latest pages
func fiveMovies(provider *fakeProvider, listing *fakeListing) {
	ids := []string{"tt0000001", "tt0000002", "tt0000003", "tt0000004", "tt0000005"}
	stubs := make([]vidsrc.Stub, 0, len(ids))
	for i, id := range ids {
		provider.add(models.MediaTypeMovie, id, int64(i+1), "Movie "+id)
		stubs = append(stubs, vidsrc.Stub{IMDBID: id, Quality: "1080p"})
	}
	listing.set(models.MediaTypeMovie, stubs[:3], stubs[3:])
}

func TestSyncAllIsIdempotent(t *testing.T) {
	provider, listing := newFakeProvider(), newFakeListing()
	fiveMovies(provider, listing)
	a := provider.add(models.MediaTypeMovie, "tt0000001", 1, "Movie tt0000001")
	b := provider.add(models.MediaTypeMovie, "tt0000002", 2, "Movie tt0000002")
	provider.setTrending(models.MediaTypeMovie, []tmdb.ListItem{a, b})

	ctrl, db := newTestSync(t, provider, listing, nil)
	ctx := context.Background()

	first := ctrl.SyncAll(ctx)
	require.NotNil(t, first)
	assert.False(t, first.Partial())
	assert.EqualValues(t, 5, first.Movies)

	before, err := db.FindMovie(models.IDTypeIMDB, "tt0000003")
	require.NoError(t, err)
	hotBefore, err := db.FindMovie(models.IDTypeIMDB, "tt0000001")
	require.NoError(t, err)
	trendingBefore := trendingIDs(t, db)

	time.Sleep(10 * time.Millisecond)
	second := ctrl.SyncAll(ctx)
	require.NotNil(t, second)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.EqualValues(t, 5, second.Movies)

	after, err := db.FindMovie(models.IDTypeIMDB, "tt0000003")
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.True(t, before.CreatedAt.Equal(after.CreatedAt))
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt), "unchanged listing bumped updated_at")
	assert.Equal(t, "HD", after.Quality)

	hotAfter, err := db.FindMovie(models.IDTypeIMDB, "tt0000001")
	require.NoError(t, err)
	assert.True(t, hotBefore.UpdatedAt.Equal(hotAfter.UpdatedAt), "unchanged trending row bumped updated_at")
	assert.Equal(t, "/best3.jpg", after.PosterPath)
	assert.ElementsMatch(t, trendingBefore, trendingIDs(t, db))
	assert.ElementsMatch(t, []string{"tt0000001", "tt0000002"}, trendingIDs(t, db))

	assert.Same(t, second, ctrl.LastReport())
}

func TestSyncAllRotatesTrending(t *testing.T) {
	provider, listing := newFakeProvider(), newFakeListing()
	a := provider.add(models.MediaTypeMovie, "tt0000001", 1, "Alpha")
	b := provider.add(models.MediaTypeMovie, "tt0000002", 2, "Beta")
	c := provider.add(models.MediaTypeMovie, "tt0000003", 3, "Gamma")
	ctrl, db := newTestSync(t, provider, listing, nil)
	ctx := context.Background()

	provider.setTrending(models.MediaTypeMovie, []tmdb.ListItem{a, b})
	ctrl.SyncAll(ctx)
	assert.ElementsMatch(t, []string{"tt0000001", "tt0000002"}, trendingIDs(t, db))

	provider.setTrending(models.MediaTypeMovie, []tmdb.ListItem{b, c})
	ctrl.SyncAll(ctx)
	assert.ElementsMatch(t, []string{"tt0000002", "tt0000003"}, trendingIDs(t, db))

	// rotated out rows stay in the catalog
	alpha, err := db.FindMovie(models.IDTypeIMDB, "tt0000001")
	require.NoError(t, err)
	assert.False(t, alpha.IsTrending)
}

func TestSyncLatestKeepsTrendingFlag(t *testing.T) {
	provider, listing := newFakeProvider(), newFakeListing()
	a := provider.add(models.MediaTypeMovie, "tt0000001", 1, "Alpha")
	provider.setTrending(models.MediaTypeMovie, []tmdb.ListItem{a})
	listing.set(models.MediaTypeMovie, []vidsrc.Stub{{IMDBID: "tt0000001", Quality: "CAM"}})
	ctrl, db := newTestSync(t, provider, listing, nil)

	report := ctrl.SyncAll(context.Background())
	require.NotNil(t, report)

	alpha, err := db.FindMovie(models.IDTypeIMDB, "tt0000001")
	require.NoError(t, err)
	assert.True(t, alpha.IsTrending)
	assert.Equal(t, "CAM", alpha.Quality)
	// resolved once for both stages
	assert.Equal(t, 1, provider.detailCalls)
}

func TestSyncTrendingAndLatestOverlapIsStable(t *testing.T) {
	provider, listing := newFakeProvider(), newFakeListing()
	a := provider.add(models.MediaTypeMovie, "tt0000001", 1, "Alpha")
	provider.setTrending(models.MediaTypeMovie, []tmdb.ListItem{a})
	listing.set(models.MediaTypeMovie, []vidsrc.Stub{{IMDBID: "tt0000001", Quality: "CAM"}})
	ctrl, db := newTestSync(t, provider, listing, nil)
	ctx := context.Background()

	require.NotNil(t, ctrl.SyncAll(ctx))
	before, err := db.FindMovie(models.IDTypeIMDB, "tt0000001")
	require.NoError(t, err)
	require.Equal(t, "CAM", before.Quality)

	// wait past the stored timestamp granularity
	time.Sleep(1100 * time.Millisecond)
	require.NotNil(t, ctrl.SyncAll(ctx))

	after, err := db.FindMovie(models.IDTypeIMDB, "tt0000001")
	require.NoError(t, err)
	assert.Equal(t, "CAM", after.Quality)
	assert.True(t, after.IsTrending)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt), "overlapping stages rewrote an unchanged row")
}

func TestSyncAllWithoutTrendingPagesKeepsFlags(t *testing.T) {
	provider, listing := newFakeProvider(), newFakeListing()
	a := provider.add(models.MediaTypeMovie, "tt0000001", 1, "Alpha")
	provider.setTrending(models.MediaTypeMovie, []tmdb.ListItem{a})
	ctrl, db := newTestSync(t, provider, listing, nil)
	ctx := context.Background()

	ctrl.SyncAll(ctx)
	require.Equal(t, []string{"tt0000001"}, trendingIDs(t, db))

	noTrending := NewSyncController(db, provider, listing, nil,
		SyncOptions{MoviePages: 1, TVPages: 1, TrendingPages: 0}, testutil.Logger())
	report := noTrending.SyncAll(ctx)
	require.NotNil(t, report)
	assert.False(t, report.Stages[0].Applied)
	assert.Equal(t, []string{"tt0000001"}, trendingIDs(t, db))
}

func TestSyncAllContinuesPastFailedPage(t *testing.T) {
	provider, listing := newFakeProvider(), newFakeListing()
	fiveMovies(provider, listing)
	listing.failPages[1] = true
	ctrl, db := newTestSync(t, provider, listing, nil)

	report := ctrl.SyncAll(context.Background())
	require.NotNil(t, report)
	assert.True(t, report.Partial())

	var latest StageReport
	for _, s := range report.Stages {
		if s.Name == "latest_movie" {
			latest = s
		}
	}
	assert.Equal(t, 1, latest.PagesFailed)
	assert.Equal(t, 2, latest.Listed)
	assert.Equal(t, 2, latest.Written)

	n, err := db.CountMovies()
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestSyncAllKeepsTrendingWhenEveryPageFails(t *testing.T) {
	provider, listing := newFakeProvider(), newFakeListing()
	a := provider.add(models.MediaTypeMovie, "tt0000001", 1, "Alpha")
	provider.setTrending(models.MediaTypeMovie, []tmdb.ListItem{a})
	ctrl, db := newTestSync(t, provider, listing, nil)
	ctx := context.Background()

	ctrl.SyncAll(ctx)
	require.Equal(t, []string{"tt0000001"}, trendingIDs(t, db))

	provider.failPage(1, true)
	report := ctrl.SyncAll(ctx)
	require.NotNil(t, report)
	assert.False(t, report.Stages[0].Applied)
	assert.Equal(t, 1, report.Stages[0].PagesFailed)
	assert.Equal(t, []string{"tt0000001"}, trendingIDs(t, db))
}

func TestSyncAllSkipsBlocklisted(t *testing.T) {
	provider, listing := newFakeProvider(), newFakeListing()
	fiveMovies(provider, listing)
	blocklist := utils.NewBlocklist([]string{"tt0000002", "tt0000004"})
	ctrl, db := newTestSync(t, provider, listing, blocklist)

	report := ctrl.SyncAll(context.Background())
	require.NotNil(t, report)

	var skipped int
	for _, s := range report.Stages {
		skipped += s.Skipped
	}
	assert.Equal(t, 2, skipped)

	_, err := db.FindMovie(models.IDTypeIMDB, "tt0000002")
	assert.ErrorIs(t, err, models.ErrNotFound)
	n, err := db.CountMovies()
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestSyncAllSkipsUnknownTitles(t *testing.T) {
	provider, listing := newFakeProvider(), newFakeListing()
	provider.add(models.MediaTypeTV, "tt0000010", 10, "Known Show")
	listing.set(models.MediaTypeTV, []vidsrc.Stub{{IMDBID: "tt0000010"}, {IMDBID: "tt0000099"}})
	ctrl, db := newTestSync(t, provider, listing, nil)

	report := ctrl.SyncAll(context.Background())
	require.NotNil(t, report)
	assert.False(t, report.Partial())

	show, err := db.FindTVShow(models.IDTypeIMDB, "tt0000010")
	require.NoError(t, err)
	assert.Equal(t, "Known Show", show.Title)
	assert.EqualValues(t, 1, report.TVShows)
}

func TestSyncAllFallsBackToDefaultImages(t *testing.T) {
	provider, listing := newFakeProvider(), newFakeListing()
	provider.noImages = true
	provider.add(models.MediaTypeMovie, "tt0000001", 1, "Alpha")
	listing.set(models.MediaTypeMovie, []vidsrc.Stub{{IMDBID: "tt0000001"}})
	ctrl, db := newTestSync(t, provider, listing, nil)

	ctrl.SyncAll(context.Background())
	alpha, err := db.FindMovie(models.IDTypeIMDB, "tt0000001")
	require.NoError(t, err)
	assert.Equal(t, "/p1.jpg", alpha.PosterPath)
	assert.Equal(t, "/b1.jpg", alpha.BackdropPath)
}

func TestSyncAllCancelled(t *testing.T) {
	provider, listing := newFakeProvider(), newFakeListing()
	fiveMovies(provider, listing)
	ctrl, db := newTestSync(t, provider, listing, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := ctrl.SyncAll(ctx)
	require.NotNil(t, report)

	n, err := db.CountMovies()
	require.NoError(t, err)
	assert.Zero(t, n)
}
