package tmdb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/homeflix/internal/cache"
	"github.com/amaumene/homeflix/internal/config"
	"github.com/amaumene/homeflix/internal/models"
	"github.com/amaumene/homeflix/internal/services/apiclient"
	"github.com/amaumene/homeflix/internal/utils"
)

// DefaultRating is used when no US certification is published
const DefaultRating = "TV-MA"

// ErrNoMatch is returned when a cross reference lookup finds nothing
var ErrNoMatch = errors.New("no matching title")

// Client handles communication with the TMDB API
type Client struct {
	api    *apiclient.Client
	logger *logrus.Logger
}

// NewClient creates a new TMDB API client. Responses are cached in the
// tmdb namespace of c.
func NewClient(cfg *config.Config, c *cache.TieredCache, logger *logrus.Logger) *Client {
	return &Client{
		api: apiclient.New(apiclient.Options{
			BaseURL:           cfg.TMDBBaseURL,
			BearerToken:       cfg.TMDBAccessToken,
			Timeout:           cfg.RequestTimeout,
			MaxRetries:        cfg.MaxRetries,
			RetryBaseDelay:    cfg.RetryBaseDelay,
			RetryMultiplier:   cfg.RetryMultiplier,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Cache:             c,
			CacheNamespace:    cache.NamespaceTMDB,
			CacheTTL:          cfg.CacheTMDB,
		}, logger),
		logger: logger,
	}
}

// FindResult is the provider entry matching an IMDB id
type FindResult struct {
	Kind         models.MediaType
	ProviderID   int64
	Title        string
	Overview     string
	Date         string
	PosterPath   string
	BackdropPath string
	VoteAverage  float64
	VoteCount    int
	Popularity   float64
}

type findResponse struct {
	MovieResults []listItemJSON `json:"movie_results"`
	TVResults    []listItemJSON `json:"tv_results"`
}

// FindByExternalID resolves an IMDB id. Movie matches win over series matches.
func (c *Client) FindByExternalID(ctx context.Context, imdbID string) (*FindResult, error) {
	var resp findResponse
	params := url.Values{"external_source": {"imdb_id"}}
	if err := c.api.GetJSON(ctx, "/find/"+url.PathEscape(imdbID), params, &resp); err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", imdbID, err)
	}

	var (
		item listItemJSON
		kind models.MediaType
	)
	switch {
	case len(resp.MovieResults) > 0:
		item, kind = resp.MovieResults[0], models.MediaTypeMovie
	case len(resp.TVResults) > 0:
		item, kind = resp.TVResults[0], models.MediaTypeTV
	default:
		return nil, fmt.Errorf("%s: %w", imdbID, ErrNoMatch)
	}

	li := item.toListItem(kind)
	return &FindResult{
		Kind:         kind,
		ProviderID:   li.ProviderID,
		Title:        li.Title,
		Overview:     li.Overview,
		Date:         li.Date,
		PosterPath:   li.PosterPath,
		BackdropPath: li.BackdropPath,
		VoteAverage:  li.VoteAverage,
		VoteCount:    li.VoteCount,
		Popularity:   li.Popularity,
	}, nil
}

// SeasonSummary is one entry of a series' season list
type SeasonSummary struct {
	SeasonNumber int    `json:"season_number"`
	Name         string `json:"name"`
	EpisodeCount int    `json:"episode_count"`
	Overview     string `json:"overview"`
	AirDate      string `json:"air_date"`
	PosterPath   string `json:"poster_path"`
}

// Detail is the normalised detail record for a movie or series
type Detail struct {
	Kind            models.MediaType
	ProviderID      int64
	IMDBID          string
	Title           string
	Overview        string
	Tagline         string
	Status          string
	Date            string
	Year            string
	Rating          string
	Duration        string
	Genres          []string
	PosterPath      string
	BackdropPath    string
	VoteAverage     float64
	VoteCount       int
	Popularity      float64
	NumberOfSeasons int
	Seasons         []SeasonSummary
}

type genreJSON struct {
	Name string `json:"name"`
}

type releaseDatesJSON struct {
	Results []struct {
		Country      string `json:"iso_3166_1"`
		ReleaseDates []struct {
			Certification string `json:"certification"`
		} `json:"release_dates"`
	} `json:"results"`
}

type contentRatingsJSON struct {
	Results []struct {
		Country string `json:"iso_3166_1"`
		Rating  string `json:"rating"`
	} `json:"results"`
}

// us returns the first non-empty US certification
func (r releaseDatesJSON) us() string {
	for _, country := range r.Results {
		if country.Country != "US" {
			continue
		}
		for _, rel := range country.ReleaseDates {
			if rel.Certification != "" {
				return rel.Certification
			}
		}
		return ""
	}
	return ""
}

func (r contentRatingsJSON) us() string {
	for _, rating := range r.Results {
		if rating.Country == "US" {
			return rating.Rating
		}
	}
	return ""
}

type detailJSON struct {
	ID              int64              `json:"id"`
	IMDBID          string             `json:"imdb_id"`
	Title           string             `json:"title"`
	Name            string             `json:"name"`
	Overview        string             `json:"overview"`
	Tagline         string             `json:"tagline"`
	Status          string             `json:"status"`
	ReleaseDate     string             `json:"release_date"`
	FirstAirDate    string             `json:"first_air_date"`
	Runtime         int                `json:"runtime"`
	EpisodeRunTime  []int              `json:"episode_run_time"`
	PosterPath      string             `json:"poster_path"`
	BackdropPath    string             `json:"backdrop_path"`
	VoteAverage     float64            `json:"vote_average"`
	VoteCount       int                `json:"vote_count"`
	Popularity      float64            `json:"popularity"`
	NumberOfSeasons int                `json:"number_of_seasons"`
	Genres          []genreJSON        `json:"genres"`
	Seasons         []SeasonSummary    `json:"seasons"`
	ReleaseDates    releaseDatesJSON   `json:"release_dates"`
	ContentRatings  contentRatingsJSON `json:"content_ratings"`
}

// GetDetail fetches details with the US certification folded in
func (c *Client) GetDetail(ctx context.Context, providerID int64, kind models.MediaType) (*Detail, error) {
	appendTo := "release_dates"
	if kind == models.MediaTypeTV {
		appendTo = "content_ratings"
	}

	var raw detailJSON
	path := fmt.Sprintf("/%s/%d", kind.Path(), providerID)
	if err := c.api.GetJSON(ctx, path, url.Values{"append_to_response": {appendTo}}, &raw); err != nil {
		return nil, fmt.Errorf("failed to get %s details for %d: %w", kind, providerID, err)
	}

	d := &Detail{
		Kind:            kind,
		ProviderID:      raw.ID,
		IMDBID:          raw.IMDBID,
		Overview:        raw.Overview,
		Tagline:         raw.Tagline,
		Status:          raw.Status,
		PosterPath:      raw.PosterPath,
		BackdropPath:    raw.BackdropPath,
		VoteAverage:     raw.VoteAverage,
		VoteCount:       raw.VoteCount,
		Popularity:      raw.Popularity,
		NumberOfSeasons: raw.NumberOfSeasons,
		Rating:          DefaultRating,
		Genres:          make([]string, 0, len(raw.Genres)),
	}
	if d.ProviderID == 0 {
		d.ProviderID = providerID
	}
	for _, g := range raw.Genres {
		d.Genres = append(d.Genres, g.Name)
	}

	if kind == models.MediaTypeTV {
		d.Title = raw.Name
		d.Date = raw.FirstAirDate
		if len(raw.EpisodeRunTime) > 0 {
			d.Duration = utils.FormatRuntime(raw.EpisodeRunTime[0])
		}
		for _, s := range raw.Seasons {
			// season 0 holds specials
			if s.SeasonNumber > 0 {
				d.Seasons = append(d.Seasons, s)
			}
		}
		if r := raw.ContentRatings.us(); r != "" {
			d.Rating = r
		}
	} else {
		d.Title = raw.Title
		d.Date = raw.ReleaseDate
		d.Duration = utils.FormatRuntime(raw.Runtime)
		if r := raw.ReleaseDates.us(); r != "" {
			d.Rating = r
		}
	}
	d.Year = utils.YearFromDate(d.Date)
	return d, nil
}

// Images holds the poster and backdrop candidates for a title
type Images struct {
	Posters   []utils.Image
	Backdrops []utils.Image
}

type imageJSON struct {
	FilePath    string  `json:"file_path"`
	VoteAverage float64 `json:"vote_average"`
}

// BestPoster returns the highest rated poster path, or fallback
func (i *Images) BestPoster(fallback string) string {
	if i == nil {
		return fallback
	}
	return utils.BestImagePath(i.Posters, fallback)
}

// BestBackdrop returns the highest rated backdrop path, or fallback
func (i *Images) BestBackdrop(fallback string) string {
	if i == nil {
		return fallback
	}
	return utils.BestImagePath(i.Backdrops, fallback)
}

// GetImages lists every poster and backdrop known for a title
func (c *Client) GetImages(ctx context.Context, providerID int64, kind models.MediaType) (*Images, error) {
	var raw struct {
		Posters   []imageJSON `json:"posters"`
		Backdrops []imageJSON `json:"backdrops"`
	}
	path := fmt.Sprintf("/%s/%d/images", kind.Path(), providerID)
	if err := c.api.GetJSON(ctx, path, nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to get images for %s %d: %w", kind, providerID, err)
	}

	convert := func(in []imageJSON) []utils.Image {
		out := make([]utils.Image, 0, len(in))
		for _, img := range in {
			out = append(out, utils.Image{FilePath: img.FilePath, VoteAverage: img.VoteAverage})
		}
		return out
	}
	return &Images{Posters: convert(raw.Posters), Backdrops: convert(raw.Backdrops)}, nil
}

// GetCrossRefID returns the IMDB id for a provider id
func (c *Client) GetCrossRefID(ctx context.Context, providerID int64, kind models.MediaType) (string, error) {
	var raw struct {
		IMDBID string `json:"imdb_id"`
	}
	path := fmt.Sprintf("/%s/%d/external_ids", kind.Path(), providerID)
	if err := c.api.GetJSON(ctx, path, nil, &raw); err != nil {
		return "", fmt.Errorf("failed to get external ids for %s %d: %w", kind, providerID, err)
	}
	if raw.IMDBID == "" {
		return "", fmt.Errorf("%s %d has no imdb id: %w", kind, providerID, ErrNoMatch)
	}
	return raw.IMDBID, nil
}

// ListItem is one entry of a provider list such as trending
type ListItem struct {
	Kind         models.MediaType
	ProviderID   int64
	Title        string
	Overview     string
	Date         string
	PosterPath   string
	BackdropPath string
	VoteAverage  float64
	VoteCount    int
	Popularity   float64
}

type listItemJSON struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
	VoteAverage  float64 `json:"vote_average"`
	VoteCount    int     `json:"vote_count"`
	Popularity   float64 `json:"popularity"`
}

func (j listItemJSON) toListItem(kind models.MediaType) ListItem {
	li := ListItem{
		Kind:         kind,
		ProviderID:   j.ID,
		Title:        j.Title,
		Overview:     j.Overview,
		Date:         j.ReleaseDate,
		PosterPath:   j.PosterPath,
		BackdropPath: j.BackdropPath,
		VoteAverage:  j.VoteAverage,
		VoteCount:    j.VoteCount,
		Popularity:   j.Popularity,
	}
	if kind == models.MediaTypeTV {
		li.Title = j.Name
		li.Date = j.FirstAirDate
	}
	return li
}

// Trending returns one page of the weekly trending list
func (c *Client) Trending(ctx context.Context, kind models.MediaType, page int) ([]ListItem, error) {
	var raw struct {
		Results []listItemJSON `json:"results"`
	}
	path := "/trending/" + kind.Path() + "/week"
	if err := c.api.GetJSON(ctx, path, url.Values{"page": {strconv.Itoa(page)}}, &raw); err != nil {
		return nil, fmt.Errorf("failed to get trending %s page %d: %w", kind, page, err)
	}

	items := make([]ListItem, 0, len(raw.Results))
	for _, r := range raw.Results {
		items = append(items, r.toListItem(kind))
	}
	return items, nil
}

// Episode is one episode of a season
type Episode struct {
	EpisodeNumber int     `json:"episode_number"`
	Name          string  `json:"name"`
	Overview      string  `json:"overview"`
	AirDate       string  `json:"air_date"`
	Runtime       int     `json:"runtime"`
	StillPath     string  `json:"still_path"`
	VoteAverage   float64 `json:"vote_average"`
}

// Season is a season with its episode list
type Season struct {
	SeasonNumber int       `json:"season_number"`
	Name         string    `json:"name"`
	Overview     string    `json:"overview"`
	AirDate      string    `json:"air_date"`
	Episodes     []Episode `json:"episodes"`
}

// GetSeason fetches a season of a series
func (c *Client) GetSeason(ctx context.Context, providerID int64, season int) (*Season, error) {
	var s Season
	path := fmt.Sprintf("/tv/%d/season/%d", providerID, season)
	if err := c.api.GetJSON(ctx, path, nil, &s); err != nil {
		return nil, fmt.Errorf("failed to get season %d of %d: %w", season, providerID, err)
	}
	if s.SeasonNumber == 0 {
		s.SeasonNumber = season
	}
	return &s, nil
}

// Search runs a title search against the provider
func (c *Client) Search(ctx context.Context, kind models.MediaType, query string, page int) ([]ListItem, error) {
	var raw struct {
		Results []listItemJSON `json:"results"`
	}
	params := url.Values{"query": {query}, "page": {strconv.Itoa(page)}}
	if err := c.api.GetJSON(ctx, "/search/"+kind.Path(), params, &raw); err != nil {
		return nil, fmt.Errorf("failed to search %s for %q: %w", kind, query, err)
	}

	items := make([]ListItem, 0, len(raw.Results))
	for _, r := range raw.Results {
		items = append(items, r.toListItem(kind))
	}
	return items, nil
}
