package controllers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/amaumene/homeflix/internal/cache"
	"github.com/amaumene/homeflix/internal/config"
	"github.com/amaumene/homeflix/internal/models"
	"github.com/amaumene/homeflix/internal/services/apiclient"
	"github.com/amaumene/homeflix/internal/services/tmdb"
	"github.com/amaumene/homeflix/internal/utils"
)

var (
	// ErrNotFound is returned when neither the catalog nor the provider knows a title
	ErrNotFound = models.ErrNotFound
	// ErrInvalidInput rejects malformed identifiers and parameters
	ErrInvalidInput = errors.New("invalid input")
)

// CatalogProvider is the metadata provider plus its title search
type CatalogProvider interface {
	MetadataProvider
	Search(ctx context.Context, kind models.MediaType, query string, page int) ([]tmdb.ListItem, error)
}

// CatalogOptions holds paging limits and image locations
type CatalogOptions struct {
	PerPage         int
	SearchPerPage   int
	MaxPerPage      int
	TrendingLimit   int
	ImageBaseURL    string
	BackdropBaseURL string
}

// CatalogOptionsFromConfig reads the catalog settings
func CatalogOptionsFromConfig(cfg *config.Config) CatalogOptions {
	return CatalogOptions{
		PerPage:         cfg.PerPage,
		SearchPerPage:   cfg.SearchPerPage,
		MaxPerPage:      cfg.MaxPerPage,
		TrendingLimit:   cfg.TrendingLimit,
		ImageBaseURL:    cfg.TMDBImageBaseURL,
		BackdropBaseURL: cfg.TMDBBackdropBaseURL,
	}
}

// CatalogController serves catalog reads and viewer state to the API layer
type CatalogController struct {
	db       *models.Database
	search   *SearchController
	provider CatalogProvider
	cache    *cache.TieredCache
	opts     CatalogOptions
	logger   *logrus.Logger

	images singleflight.Group
}

// NewCatalogController creates a new catalog controller. provider may be nil,
// which disables every provider fallback.
func NewCatalogController(db *models.Database, search *SearchController, provider CatalogProvider, c *cache.TieredCache, opts CatalogOptions, logger *logrus.Logger) *CatalogController {
	if opts.PerPage < 1 {
		opts.PerPage = 16
	}
	if opts.SearchPerPage < 1 {
		opts.SearchPerPage = 15
	}
	if opts.MaxPerPage < opts.PerPage {
		opts.MaxPerPage = opts.PerPage
	}
	return &CatalogController{
		db:       db,
		search:   search,
		provider: provider,
		cache:    c,
		opts:     opts,
		logger:   logger,
	}
}

// MediaView is the presentation shape of a movie or series
type MediaView struct {
	Type            models.MediaType `json:"type"`
	IMDBID          string           `json:"imdb_id"`
	TMDBID          *int64           `json:"tmdb_id,omitempty"`
	Title           string           `json:"title"`
	Overview        string           `json:"overview"`
	Date            string           `json:"date,omitempty"`
	Year            string           `json:"year,omitempty"`
	Rating          string           `json:"rating,omitempty"`
	Duration        string           `json:"duration,omitempty"`
	Genres          []string         `json:"genres"`
	Quality         string           `json:"quality,omitempty"`
	VoteAverage     float64          `json:"vote_average"`
	VoteCount       int              `json:"vote_count"`
	Popularity      float64          `json:"popularity"`
	NumberOfSeasons int              `json:"number_of_seasons,omitempty"`
	IsTrending      bool             `json:"is_trending"`
	PosterURL       string           `json:"poster_url,omitempty"`
	BackdropURL     string           `json:"backdrop_url,omitempty"`
}

// view builds a MediaView and records the row's image paths in the cache
func (c *CatalogController) view(rec models.Media) MediaView {
	v := MediaView{
		Type:       rec.Kind(),
		IMDBID:     rec.GetIMDBID(),
		TMDBID:     rec.GetTMDBID(),
		Title:      rec.GetTitle(),
		Popularity: rec.GetPopularity(),
		IsTrending: rec.Trending(),
		Genres:     []string{},
	}
	switch r := rec.(type) {
	case *models.Movie:
		v.Overview, v.Date, v.Year = r.Overview, r.ReleaseDate, r.Year
		v.Rating, v.Duration, v.Quality = r.Rating, r.Duration, r.Quality
		v.VoteAverage, v.VoteCount = r.VoteAverage, r.VoteCount
		if r.Genres != nil {
			v.Genres = r.Genres
		}
	case *models.TVShow:
		v.Overview, v.Date, v.Year = r.Overview, r.FirstAirDate, r.Year
		v.Rating, v.NumberOfSeasons = r.Rating, r.NumberOfSeasons
		v.VoteAverage, v.VoteCount = r.VoteAverage, r.VoteCount
		if r.Genres != nil {
			v.Genres = r.Genres
		}
	}

	if id := rec.GetTMDBID(); id != nil {
		c.rememberImages(rec.Kind(), *id, rec.GetPosterPath(), rec.GetBackdropPath())
		if rec.GetPosterPath() != "" {
			v.PosterURL = proxyPath(VariantPoster, rec.Kind(), *id)
		}
		if rec.GetBackdropPath() != "" {
			v.BackdropURL = proxyPath(VariantBackdrop, rec.Kind(), *id)
		}
	}
	return v
}

func (c *CatalogController) movieViews(rows []models.Movie) []MediaView {
	out := make([]MediaView, 0, len(rows))
	for i := range rows {
		out = append(out, c.view(&rows[i]))
	}
	return out
}

func (c *CatalogController) tvViews(rows []models.TVShow) []MediaView {
	out := make([]MediaView, 0, len(rows))
	for i := range rows {
		out = append(out, c.view(&rows[i]))
	}
	return out
}

// HomePage is everything the landing page shows
type HomePage struct {
	TrendingMovies []MediaView `json:"trending_movies"`
	TrendingSeries []MediaView `json:"trending_series"`
	Movies         []MediaView `json:"movies"`
	Series         []MediaView `json:"series"`
	MoviePage      int         `json:"movie_page"`
	SeriesPage     int         `json:"series_page"`
	BackdropURLs   []string    `json:"backdrop_urls"`
}

// Home builds the landing page. Hero backdrops come from the series page,
// topped up from movies when there are fewer than five.
func (c *CatalogController) Home(ctx context.Context, moviePage, seriesPage int) (*HomePage, error) {
	moviePage, seriesPage = max(moviePage, 1), max(seriesPage, 1)

	movies, err := c.LatestMovies(ctx, moviePage)
	if err != nil {
		return nil, err
	}
	series, err := c.LatestSeries(ctx, seriesPage)
	if err != nil {
		return nil, err
	}
	trendingMovies, err := c.db.TrendingMovies(c.opts.TrendingLimit)
	if err != nil {
		return nil, err
	}
	trendingSeries, err := c.db.TrendingTVShows(c.opts.TrendingLimit)
	if err != nil {
		return nil, err
	}

	home := &HomePage{
		TrendingMovies: c.movieViews(trendingMovies),
		TrendingSeries: c.tvViews(trendingSeries),
		Movies:         movies,
		Series:         series,
		MoviePage:      moviePage,
		SeriesPage:     seriesPage,
		BackdropURLs:   []string{},
	}
	for _, s := range series {
		if s.BackdropURL != "" {
			home.BackdropURLs = append(home.BackdropURLs, s.BackdropURL)
		}
	}
	if len(home.BackdropURLs) < 5 {
		for _, m := range movies {
			if len(home.BackdropURLs) >= 10 {
				break
			}
			if m.BackdropURL != "" {
				home.BackdropURLs = append(home.BackdropURLs, m.BackdropURL)
			}
		}
	}
	return home, nil
}

// LatestMovies returns one page of the newest movies
func (c *CatalogController) LatestMovies(ctx context.Context, page int) ([]MediaView, error) {
	rows, err := c.db.LatestMovies(max(page, 1), c.opts.PerPage)
	if err != nil {
		return nil, err
	}
	return c.movieViews(rows), nil
}

// LatestSeries returns one page of the newest series
func (c *CatalogController) LatestSeries(ctx context.Context, page int) ([]MediaView, error) {
	rows, err := c.db.LatestTVShows(max(page, 1), c.opts.PerPage)
	if err != nil {
		return nil, err
	}
	return c.tvViews(rows), nil
}

// SearchResults is a combined search over both types
type SearchResults struct {
	Query      string      `json:"query"`
	Movies     []MediaView `json:"movies"`
	Series     []MediaView `json:"series"`
	Suggestion string      `json:"suggestion,omitempty"`
}

// Search looks both types up in the catalog, asking the provider for a type
// the catalog has nothing for. When both come back empty a close catalog
// title is offered as a suggestion.
func (c *CatalogController) Search(ctx context.Context, query string) *SearchResults {
	q := NormalizeQuery(query)
	res := &SearchResults{Query: q, Movies: []MediaView{}, Series: []MediaView{}}
	if q == "" {
		return res
	}

	res.Movies = c.SearchMore(ctx, models.MediaTypeMovie, q, 1)
	res.Series = c.SearchMore(ctx, models.MediaTypeTV, q, 1)
	if len(res.Movies) == 0 && len(res.Series) == 0 {
		res.Suggestion = c.suggest(q)
	}
	return res
}

// SearchMore returns one page of results for a single type
func (c *CatalogController) SearchMore(ctx context.Context, kind models.MediaType, query string, page int) []MediaView {
	page = max(page, 1)
	hits := c.search.Search(ctx, kind, query, page, c.opts.SearchPerPage)
	if len(hits) > 0 {
		out := make([]MediaView, 0, len(hits))
		for _, h := range hits {
			out = append(out, c.view(h))
		}
		return out
	}
	return c.providerSearch(ctx, kind, NormalizeQuery(query), page)
}

// providerSearch maps provider hits into views, dropping titles with no IMDB id
func (c *CatalogController) providerSearch(ctx context.Context, kind models.MediaType, q string, page int) []MediaView {
	out := []MediaView{}
	if c.provider == nil || q == "" {
		return out
	}
	items, err := c.provider.Search(ctx, kind, q, page)
	if err != nil {
		c.logger.WithError(err).WithField("query", q).Warn("Provider search failed")
		return out
	}
	if len(items) > c.opts.SearchPerPage {
		items = items[:c.opts.SearchPerPage]
	}

	for _, it := range items {
		imdbID, err := c.provider.GetCrossRefID(ctx, it.ProviderID, kind)
		if err != nil {
			continue
		}
		id := it.ProviderID
		v := MediaView{
			Type:        kind,
			IMDBID:      imdbID,
			TMDBID:      &id,
			Title:       it.Title,
			Overview:    it.Overview,
			Date:        it.Date,
			Year:        utils.YearFromDate(it.Date),
			Genres:      []string{},
			VoteAverage: it.VoteAverage,
			VoteCount:   it.VoteCount,
			Popularity:  it.Popularity,
		}
		if kind == models.MediaTypeMovie {
			v.Quality = utils.DefaultQuality
		}
		c.rememberImages(kind, id, it.PosterPath, it.BackdropPath)
		if it.PosterPath != "" {
			v.PosterURL = proxyPath(VariantPoster, kind, id)
		}
		if it.BackdropPath != "" {
			v.BackdropURL = proxyPath(VariantBackdrop, kind, id)
		}
		out = append(out, v)
	}
	return out
}

// suggest returns the trending or latest title closest to q, if close enough
func (c *CatalogController) suggest(q string) string {
	var titles []string
	if rows, err := c.db.TrendingMovies(c.opts.MaxPerPage); err == nil {
		for _, r := range rows {
			titles = append(titles, r.Title)
		}
	}
	if rows, err := c.db.TrendingTVShows(c.opts.MaxPerPage); err == nil {
		for _, r := range rows {
			titles = append(titles, r.Title)
		}
	}
	if rows, err := c.db.LatestMovies(1, c.opts.MaxPerPage); err == nil {
		for _, r := range rows {
			titles = append(titles, r.Title)
		}
	}
	if rows, err := c.db.LatestTVShows(1, c.opts.MaxPerPage); err == nil {
		for _, r := range rows {
			titles = append(titles, r.Title)
		}
	}
	return closestTitle(q, titles)
}

// closestTitle picks the title with the smallest edit distance to q, allowing
// roughly one edit per three characters
func closestTitle(q string, titles []string) string {
	lq := strings.ToLower(q)
	limit := max(2, len([]rune(lq))/3)

	best, bestDist := "", limit+1
	for _, t := range titles {
		d := levenshtein.ComputeDistance(lq, strings.ToLower(t))
		if d < bestDist {
			best, bestDist = t, d
		}
	}
	return best
}

// MovieDetail returns a movie from the catalog, or from the provider when
// the catalog does not have it yet. Provider results are stored.
func (c *CatalogController) MovieDetail(ctx context.Context, imdbID string) (*MediaView, error) {
	rec, err := c.lookup(ctx, models.MediaTypeMovie, imdbID)
	if err != nil {
		return nil, err
	}
	v := c.view(rec)
	return &v, nil
}

// SeriesDetail is a series with its season list
type SeriesDetail struct {
	MediaView
	Tagline string               `json:"tagline,omitempty"`
	Status  string               `json:"status,omitempty"`
	Seasons []tmdb.SeasonSummary `json:"seasons"`
}

// SeriesDetail returns a series with seasons. A provider failure while
// listing seasons leaves the list empty.
func (c *CatalogController) SeriesDetail(ctx context.Context, imdbID string) (*SeriesDetail, error) {
	rec, err := c.lookup(ctx, models.MediaTypeTV, imdbID)
	if err != nil {
		return nil, err
	}
	out := &SeriesDetail{MediaView: c.view(rec), Seasons: []tmdb.SeasonSummary{}}

	if id := rec.GetTMDBID(); id != nil && c.provider != nil {
		detail, err := c.provider.GetDetail(ctx, *id, models.MediaTypeTV)
		if err != nil {
			c.logger.WithError(err).WithField("imdb_id", imdbID).Warn("Failed to load seasons")
		} else {
			out.Tagline, out.Status = detail.Tagline, detail.Status
			if detail.Seasons != nil {
				out.Seasons = detail.Seasons
			}
		}
	}
	return out, nil
}

// SeasonEpisodes lists the episodes of one season
func (c *CatalogController) SeasonEpisodes(ctx context.Context, imdbID string, season int) (*tmdb.Season, error) {
	if season < 0 {
		return nil, fmt.Errorf("season %d: %w", season, ErrInvalidInput)
	}
	id, err := c.providerID(ctx, models.MediaTypeTV, imdbID)
	if err != nil {
		return nil, err
	}
	s, err := c.provider.GetSeason(ctx, id, season)
	if err != nil {
		return nil, providerErr(err)
	}
	return s, nil
}

// WatchInfo lists the players for a title or episode
type WatchInfo struct {
	Type     models.MediaType `json:"type"`
	IMDBID   string           `json:"imdb_id"`
	TMDBID   *int64           `json:"tmdb_id,omitempty"`
	Title    string           `json:"title"`
	Season   *int             `json:"season,omitempty"`
	Episode  *int             `json:"episode,omitempty"`
	EmbedURL string           `json:"embed_url"`
	Sources  []string         `json:"sources"`
}

// WatchSources builds the embed player list. Players are keyed by TMDB id
// when the catalog knows it and by IMDB id otherwise.
func (c *CatalogController) WatchSources(kind models.MediaType, imdbID string, season, episode *int) (*WatchInfo, error) {
	if imdbID == "" {
		return nil, fmt.Errorf("missing imdb id: %w", ErrInvalidInput)
	}
	if (season == nil) != (episode == nil) {
		return nil, fmt.Errorf("season and episode go together: %w", ErrInvalidInput)
	}

	info := &WatchInfo{Type: kind, IMDBID: imdbID, Season: season, Episode: episode, Title: "Unknown"}
	id := imdbID
	rec, err := c.db.FindMedia(kind, models.IDTypeIMDB, imdbID)
	switch {
	case err == nil:
		info.Title = rec.GetTitle()
		info.TMDBID = rec.GetTMDBID()
		if info.TMDBID != nil {
			id = strconv.FormatInt(*info.TMDBID, 10)
		}
	case !errors.Is(err, models.ErrNotFound):
		return nil, err
	}

	variant := string(kind)
	if season != nil {
		variant = "episode"
		info.Title = fmt.Sprintf("%s - S%dE%d", info.Title, *season, *episode)
	}
	info.Sources = utils.EmbedSources(variant, id, season, episode)
	if len(info.Sources) == 0 {
		return nil, fmt.Errorf("no players for %s: %w", kind, ErrInvalidInput)
	}
	info.EmbedURL = info.Sources[0]
	return info, nil
}

// lookup finds a catalog row, falling back to the provider and storing what it returns
func (c *CatalogController) lookup(ctx context.Context, kind models.MediaType, imdbID string) (models.Media, error) {
	if imdbID == "" {
		return nil, fmt.Errorf("missing imdb id: %w", ErrInvalidInput)
	}
	rec, err := c.db.FindMedia(kind, models.IDTypeIMDB, imdbID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, models.ErrNotFound) || c.provider == nil {
		return nil, err
	}

	found, err := c.provider.FindByExternalID(ctx, imdbID)
	if err != nil {
		return nil, providerErr(err)
	}
	if found.Kind != kind {
		return nil, fmt.Errorf("%s is not a %s: %w", imdbID, kind, ErrNotFound)
	}
	detail, err := c.provider.GetDetail(ctx, found.ProviderID, kind)
	if err != nil {
		return nil, providerErr(err)
	}

	fresh := detail.Record(imdbID, utils.DefaultQuality)
	stored, err := c.db.UpsertMedia(fresh, models.UpsertOptions{KeepTrending: true})
	if err != nil {
		c.logger.WithError(err).WithField("imdb_id", imdbID).Warn("Failed to store provider detail")
		return fresh, nil
	}
	return stored, nil
}

// providerID returns the TMDB id for a title from the catalog or the provider
func (c *CatalogController) providerID(ctx context.Context, kind models.MediaType, imdbID string) (int64, error) {
	if c.provider == nil {
		return 0, fmt.Errorf("no metadata provider: %w", ErrNotFound)
	}
	rec, err := c.lookup(ctx, kind, imdbID)
	if err != nil {
		return 0, err
	}
	if id := rec.GetTMDBID(); id != nil {
		return *id, nil
	}
	return 0, fmt.Errorf("%s has no provider id: %w", imdbID, ErrNotFound)
}

// providerErr folds provider misses into ErrNotFound
func providerErr(err error) error {
	if errors.Is(err, tmdb.ErrNoMatch) || errors.Is(err, apiclient.ErrNotFound) {
		return fmt.Errorf("%v: %w", err, ErrNotFound)
	}
	return err
}

// CatalogStats is the diagnostic summary behind /status
type CatalogStats struct {
	Movies      int64          `json:"movies"`
	TVShows     int64          `json:"tvshows"`
	Watchlist   int            `json:"watchlist"`
	SearchIndex bool           `json:"search_index"`
	Cache       map[string]int `json:"cache"`
	OpenConns   int            `json:"db_open_connections"`
	InUseConns  int            `json:"db_in_use_connections"`
}

// Stats collects counts for monitoring. Failed counts are reported as zero.
func (c *CatalogController) Stats() *CatalogStats {
	s := &CatalogStats{Cache: map[string]int{}}
	if n, err := c.db.CountMovies(); err == nil {
		s.Movies = n
	}
	if n, err := c.db.CountTVShows(); err == nil {
		s.TVShows = n
	}
	if list, err := c.db.Watchlist(); err == nil {
		s.Watchlist = len(list)
	}
	s.SearchIndex = c.db.SearchIndexAvailable()
	for ns, n := range c.cache.Stats() {
		s.Cache[string(ns)] = n
	}
	pool := c.db.PoolStats()
	s.OpenConns, s.InUseConns = pool.OpenConnections, pool.InUse
	return s
}

// ClearCache empties the given namespaces, or all of them
func (c *CatalogController) ClearCache(names ...string) {
	ns := make([]cache.Namespace, 0, len(names))
	for _, n := range names {
		ns = append(ns, cache.Namespace(n))
	}
	c.cache.Clear(ns...)
	c.logger.WithField("namespaces", names).Info("Cache cleared")
}
