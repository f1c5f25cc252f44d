package controllers

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/homeflix/internal/models"
	"github.com/amaumene/homeflix/internal/services/tmdb"
)

// WatchlistItem is a saved title with its artwork
type WatchlistItem struct {
	models.WatchlistEntry
	PosterURL string `json:"poster_url,omitempty"`
}

// ProgressItem is a progress row with its artwork
type ProgressItem struct {
	models.WatchProgress
	PosterURL string `json:"poster_url,omitempty"`
}

// WatchedItem is a watched mark with its artwork
type WatchedItem struct {
	models.WatchedMark
	PosterURL string `json:"poster_url,omitempty"`
}

// posterFor returns the proxy path for a title's poster, or "" when the
// title has no known provider id
func (c *CatalogController) posterFor(kind models.MediaType, tmdbID *int64) string {
	if tmdbID == nil {
		return ""
	}
	return proxyPath(VariantPoster, kind, *tmdbID)
}

// fillFromCatalog copies the title and provider id from the catalog row when
// the caller did not supply them
func (c *CatalogController) fillFromCatalog(kind models.MediaType, imdbID string, title *string, tmdbID **int64) {
	if *title != "" && *tmdbID != nil {
		return
	}
	rec, err := c.db.FindMedia(kind, models.IDTypeIMDB, imdbID)
	if err != nil {
		return
	}
	if *title == "" {
		*title = rec.GetTitle()
	}
	if *tmdbID == nil {
		*tmdbID = rec.GetTMDBID()
	}
}

func validKey(key models.WatchKey) error {
	if key.MediaID == "" {
		return fmt.Errorf("missing media id: %w", ErrInvalidInput)
	}
	if key.MediaType != models.MediaTypeMovie && key.MediaType != models.MediaTypeTV {
		return fmt.Errorf("media type %q: %w", key.MediaType, ErrInvalidInput)
	}
	if key.Episode != nil && key.Season == nil {
		return fmt.Errorf("episode without season: %w", ErrInvalidInput)
	}
	return nil
}

// Watchlist returns the saved titles, newest first
func (c *CatalogController) Watchlist() ([]WatchlistItem, error) {
	entries, err := c.db.Watchlist()
	if err != nil {
		return nil, err
	}
	out := make([]WatchlistItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, WatchlistItem{WatchlistEntry: e, PosterURL: c.posterFor(e.MediaType, e.TMDBID)})
	}
	return out, nil
}

// AddToWatchlist saves a title. Adding a title twice is not an error; the
// second call reports created=false.
func (c *CatalogController) AddToWatchlist(kind models.MediaType, imdbID, title string, tmdbID *int64) (*models.WatchlistEntry, bool, error) {
	if err := validKey(models.WatchKey{MediaType: kind, MediaID: imdbID}); err != nil {
		return nil, false, err
	}
	c.fillFromCatalog(kind, imdbID, &title, &tmdbID)
	return c.db.AddToWatchlist(&models.WatchlistEntry{
		MediaType: kind,
		MediaID:   imdbID,
		TMDBID:    tmdbID,
		Title:     title,
	})
}

// RemoveFromWatchlist deletes a saved title and reports whether it was saved
func (c *CatalogController) RemoveFromWatchlist(kind models.MediaType, imdbID string) (bool, error) {
	return c.db.RemoveFromWatchlist(kind, imdbID)
}

// InWatchlist reports whether a title is saved
func (c *CatalogController) InWatchlist(kind models.MediaType, imdbID string) (bool, error) {
	return c.db.InWatchlist(kind, imdbID)
}

// SaveProgress records a playback position
func (c *CatalogController) SaveProgress(u models.ProgressUpdate) (*models.WatchProgress, error) {
	if err := validKey(u.Key); err != nil {
		return nil, err
	}
	if u.ProgressSeconds < 0 || u.DurationSeconds < 0 {
		return nil, fmt.Errorf("negative position: %w", ErrInvalidInput)
	}
	c.fillFromCatalog(u.Key.MediaType, u.Key.MediaID, &u.Title, &u.TMDBID)
	if u.PosterPath == "" {
		if rec, err := c.db.FindMedia(u.Key.MediaType, models.IDTypeIMDB, u.Key.MediaID); err == nil {
			u.PosterPath = rec.GetPosterPath()
		}
	}
	return c.db.SaveProgress(u)
}

// ContinueWatching lists partially watched items, most recent first
func (c *CatalogController) ContinueWatching(limit int) ([]ProgressItem, error) {
	rows, err := c.db.ContinueWatching(limit)
	if err != nil {
		return nil, err
	}
	return c.progressItems(rows), nil
}

// CompletedItems lists finished items, most recent first
func (c *CatalogController) CompletedItems(limit int) ([]ProgressItem, error) {
	rows, err := c.db.CompletedItems(limit)
	if err != nil {
		return nil, err
	}
	return c.progressItems(rows), nil
}

func (c *CatalogController) progressItems(rows []models.WatchProgress) []ProgressItem {
	out := make([]ProgressItem, 0, len(rows))
	for _, p := range rows {
		out = append(out, ProgressItem{WatchProgress: p, PosterURL: c.posterFor(p.MediaType, p.TMDBID)})
	}
	return out
}

// ClearProgress forgets the position for key
func (c *CatalogController) ClearProgress(key models.WatchKey) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	return c.db.ClearProgress(key)
}

// MarkWatched marks one movie, series or episode as watched
func (c *CatalogController) MarkWatched(key models.WatchKey, title string, tmdbID *int64) (*models.WatchedMark, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	c.fillFromCatalog(key.MediaType, key.MediaID, &title, &tmdbID)
	return c.db.MarkWatched(&models.WatchedMark{
		MediaType:     key.MediaType,
		MediaID:       key.MediaID,
		TMDBID:        tmdbID,
		Title:         title,
		SeasonNumber:  key.Season,
		EpisodeNumber: key.Episode,
	})
}

// UnmarkWatched removes the watched mark for key
func (c *CatalogController) UnmarkWatched(key models.WatchKey) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	return c.db.UnmarkWatched(key)
}

// IsWatched reports whether key carries a watched mark
func (c *CatalogController) IsWatched(key models.WatchKey) (bool, error) {
	return c.db.IsMarkedWatched(key)
}

// WatchedItems lists watched marks, optionally of one type
func (c *CatalogController) WatchedItems(kind models.MediaType, limit int) ([]WatchedItem, error) {
	marks, err := c.db.WatchedMarks(kind, limit)
	if err != nil {
		return nil, err
	}
	out := make([]WatchedItem, 0, len(marks))
	for _, m := range marks {
		out = append(out, WatchedItem{WatchedMark: m, PosterURL: c.posterFor(m.MediaType, m.TMDBID)})
	}
	return out, nil
}

// MarkSeasonWatched marks every episode of one season. Returns the number
// of episodes marked.
func (c *CatalogController) MarkSeasonWatched(ctx context.Context, imdbID string, season int) (int, error) {
	base, _, err := c.seriesMark(ctx, imdbID)
	if err != nil {
		return 0, err
	}
	s, err := c.SeasonEpisodes(ctx, imdbID, season)
	if err != nil {
		return 0, err
	}
	return c.db.MarkEpisodesWatched(base, episodeRefs(season, s.Episodes))
}

// MarkSeriesWatched marks every episode of every regular season. Seasons the
// provider fails to list are skipped and logged.
func (c *CatalogController) MarkSeriesWatched(ctx context.Context, imdbID string) (int, error) {
	base, tmdbID, err := c.seriesMark(ctx, imdbID)
	if err != nil {
		return 0, err
	}
	detail, err := c.provider.GetDetail(ctx, tmdbID, models.MediaTypeTV)
	if err != nil {
		return 0, providerErr(err)
	}

	var refs []models.EpisodeRef
	for _, summary := range detail.Seasons {
		s, err := c.provider.GetSeason(ctx, tmdbID, summary.SeasonNumber)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return 0, err
			}
			c.logger.WithError(err).WithFields(logrus.Fields{
				"imdb_id": imdbID,
				"season":  summary.SeasonNumber,
			}).Warn("Failed to list season episodes")
			continue
		}
		refs = append(refs, episodeRefs(summary.SeasonNumber, s.Episodes)...)
	}
	if len(refs) == 0 {
		return 0, nil
	}
	return c.db.MarkEpisodesWatched(base, refs)
}

// seriesMark resolves a series and returns the mark template for its episodes
func (c *CatalogController) seriesMark(ctx context.Context, imdbID string) (models.WatchedMark, int64, error) {
	tmdbID, err := c.providerID(ctx, models.MediaTypeTV, imdbID)
	if err != nil {
		return models.WatchedMark{}, 0, err
	}
	title := ""
	if rec, err := c.db.FindMedia(models.MediaTypeTV, models.IDTypeIMDB, imdbID); err == nil {
		title = rec.GetTitle()
	}
	return models.WatchedMark{
		MediaType: models.MediaTypeTV,
		MediaID:   imdbID,
		TMDBID:    models.Int64Ptr(tmdbID),
		Title:     title,
	}, tmdbID, nil
}

func episodeRefs(season int, episodes []tmdb.Episode) []models.EpisodeRef {
	refs := make([]models.EpisodeRef, 0, len(episodes))
	for _, ep := range episodes {
		refs = append(refs, models.EpisodeRef{Season: season, Episode: ep.EpisodeNumber})
	}
	return refs
}
