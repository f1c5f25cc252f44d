package controllers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amaumene/homeflix/internal/cache"
	"github.com/amaumene/homeflix/internal/models"
	"github.com/amaumene/homeflix/internal/services/apiclient"
	"github.com/amaumene/homeflix/internal/services/tmdb"
	"github.com/amaumene/homeflix/internal/services/vidsrc"
	"github.com/amaumene/homeflix/internal/testutil"
	"github.com/amaumene/homeflix/internal/utils"
)

var errUpstream = errors.New("upstream unavailable")

type fakeTitle struct {
	kind   models.MediaType
	imdbID string
	id     int64
	title  string
}

// fakeProvider is an in-memory MetadataProvider
type fakeProvider struct {
	mu        sync.Mutex
	byIMDB    map[string]fakeTitle
	byID      map[string]fakeTitle
	trending  map[models.MediaType][][]tmdb.ListItem
	failPages map[int]bool
	search    map[string][]tmdb.ListItem
	seasons   map[int][]tmdb.Episode
	noImages  bool

	detailCalls int
	imageCalls  int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		byIMDB:    map[string]fakeTitle{},
		byID:      map[string]fakeTitle{},
		trending:  map[models.MediaType][][]tmdb.ListItem{},
		failPages: map[int]bool{},
		search:    map[string][]tmdb.ListItem{},
		seasons:   map[int][]tmdb.Episode{},
	}
}

func (f *fakeProvider) add(kind models.MediaType, imdbID string, id int64, title string) tmdb.ListItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := fakeTitle{kind: kind, imdbID: imdbID, id: id, title: title}
	if imdbID != "" {
		f.byIMDB[imdbID] = t
	}
	f.byID[crossRefKey(kind, id)] = t
	return tmdb.ListItem{Kind: kind, ProviderID: id, Title: title, Popularity: float64(id)}
}

// setTrending replaces the trending pages for kind
func (f *fakeProvider) setTrending(kind models.MediaType, pages ...[]tmdb.ListItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trending[kind] = pages
}

func (f *fakeProvider) failPage(page int, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPages[page] = fail
}

func (f *fakeProvider) FindByExternalID(ctx context.Context, imdbID string) (*tmdb.FindResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byIMDB[imdbID]
	if !ok {
		return nil, fmt.Errorf("find %s: %w", imdbID, tmdb.ErrNoMatch)
	}
	return &tmdb.FindResult{Kind: t.kind, ProviderID: t.id, Title: t.title}, nil
}

func (f *fakeProvider) GetDetail(ctx context.Context, providerID int64, kind models.MediaType) (*tmdb.Detail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls++
	t, ok := f.byID[crossRefKey(kind, providerID)]
	if !ok {
		return nil, apiclient.ErrNotFound
	}
	d := &tmdb.Detail{
		Kind:         kind,
		ProviderID:   t.id,
		IMDBID:       t.imdbID,
		Title:        t.title,
		Overview:     "About " + t.title,
		Date:         "2024-01-01",
		Year:         "2024",
		Rating:       "PG-13",
		Genres:       []string{"Drama"},
		PosterPath:   fmt.Sprintf("/p%d.jpg", t.id),
		BackdropPath: fmt.Sprintf("/b%d.jpg", t.id),
		Popularity:   float64(t.id),
	}
	if kind == models.MediaTypeTV {
		for n := 1; n <= len(f.seasons); n++ {
			d.Seasons = append(d.Seasons, tmdb.SeasonSummary{SeasonNumber: n, EpisodeCount: len(f.seasons[n])})
		}
		d.NumberOfSeasons = len(d.Seasons)
	}
	return d, nil
}

func (f *fakeProvider) GetImages(ctx context.Context, providerID int64, kind models.MediaType) (*tmdb.Images, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageCalls++
	if f.noImages {
		return nil, errUpstream
	}
	return &tmdb.Images{
		Posters: []utils.Image{
			{FilePath: fmt.Sprintf("/low%d.jpg", providerID), VoteAverage: 4},
			{FilePath: fmt.Sprintf("/best%d.jpg", providerID), VoteAverage: 8},
		},
	}, nil
}

func (f *fakeProvider) GetCrossRefID(ctx context.Context, providerID int64, kind models.MediaType) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[crossRefKey(kind, providerID)]
	if !ok || t.imdbID == "" {
		return "", fmt.Errorf("external ids %d: %w", providerID, tmdb.ErrNoMatch)
	}
	return t.imdbID, nil
}

func (f *fakeProvider) Trending(ctx context.Context, kind models.MediaType, page int) ([]tmdb.ListItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPages[page] {
		return nil, errUpstream
	}
	pages := f.trending[kind]
	if page > len(pages) {
		return nil, nil
	}
	return pages[page-1], nil
}

func (f *fakeProvider) GetSeason(ctx context.Context, providerID int64, season int) (*tmdb.Season, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	eps, ok := f.seasons[season]
	if !ok {
		return nil, apiclient.ErrNotFound
	}
	return &tmdb.Season{SeasonNumber: season, Name: "Season " + strconv.Itoa(season), Episodes: eps}, nil
}

func (f *fakeProvider) Search(ctx context.Context, kind models.MediaType, query string, page int) ([]tmdb.ListItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tmdb.ListItem
	for _, it := range f.search[query] {
		if it.Kind == kind {
			out = append(out, it)
		}
	}
	return out, nil
}

// fakeListing is an in-memory ListingSource
type fakeListing struct {
	mu        sync.Mutex
	pages     map[models.MediaType][][]vidsrc.Stub
	failPages map[int]bool
}

func newFakeListing() *fakeListing {
	return &fakeListing{
		pages:     map[models.MediaType][][]vidsrc.Stub{},
		failPages: map[int]bool{},
	}
}

func (l *fakeListing) set(kind models.MediaType, pages ...[]vidsrc.Stub) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pages[kind] = pages
}

func (l *fakeListing) Latest(ctx context.Context, kind models.MediaType, page int) ([]vidsrc.Stub, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failPages[page] {
		return nil, errUpstream
	}
	pages := l.pages[kind]
	if page > len(pages) {
		return nil, nil
	}
	return pages[page-1], nil
}

func episodes(n int) []tmdb.Episode {
	out := make([]tmdb.Episode, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, tmdb.Episode{EpisodeNumber: i, Name: "Episode " + strconv.Itoa(i)})
	}
	return out
}

func newTestCache(t *testing.T) *cache.TieredCache {
	t.Helper()
	c := cache.New(map[cache.Namespace]cache.Options{
		cache.NamespacePosters:   {Duration: time.Hour},
		cache.NamespaceBackdrops: {Duration: time.Hour},
	})
	t.Cleanup(c.Close)
	return c
}

func newTestCatalog(t *testing.T, provider CatalogProvider) (*CatalogController, *models.Database, *cache.TieredCache) {
	t.Helper()
	db := testutil.NewDatabase(t)
	c := newTestCache(t)
	opts := CatalogOptions{
		PerPage:         10,
		SearchPerPage:   10,
		MaxPerPage:      50,
		TrendingLimit:   10,
		ImageBaseURL:    "https://img.test/w500",
		BackdropBaseURL: "https://img.test/w1280",
	}
	ctrl := NewCatalogController(db, NewSearchController(db, testutil.Logger()), provider, c, opts, testutil.Logger())
	return ctrl, db, c
}

func upsertMovie(t *testing.T, db *models.Database, m *models.Movie) *models.Movie {
	t.Helper()
	stored, err := db.UpsertMovie(m, models.UpsertOptions{})
	require.NoError(t, err)
	return stored
}
