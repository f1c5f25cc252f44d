package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

const (
	// CompletionThreshold is the progress percentage at which an item counts as watched
	CompletionThreshold = 90.0
	// ContinueWatchingMin is the lowest progress shown in continue watching
	ContinueWatchingMin = 5.0
)

// WatchKey identifies a watchable unit: a movie, a series or one episode
type WatchKey struct {
	MediaType MediaType
	MediaID   string
	Season    *int
	Episode   *int
}

func (k WatchKey) String() string {
	s := fmt.Sprintf("%s:%s", k.MediaType, k.MediaID)
	if k.Season != nil {
		s += fmt.Sprintf(":s%d", *k.Season)
	}
	if k.Episode != nil {
		s += fmt.Sprintf(":e%d", *k.Episode)
	}
	return s
}

// scope filters a query to exactly this key, NULL season/episode included
func (k WatchKey) scope(q *gorm.DB) *gorm.DB {
	q = q.Where("media_type = ? AND media_id = ?", k.MediaType, k.MediaID)
	if k.Season == nil {
		q = q.Where("season_number IS NULL")
	} else {
		q = q.Where("season_number = ?", *k.Season)
	}
	if k.Episode == nil {
		q = q.Where("episode_number IS NULL")
	} else {
		q = q.Where("episode_number = ?", *k.Episode)
	}
	return q
}

// WatchlistEntry is a user's saved title
type WatchlistEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MediaType MediaType `gorm:"not null" json:"media_type"`
	MediaID   string    `gorm:"not null" json:"media_id"`
	TMDBID    *int64    `gorm:"column:tmdb_id" json:"tmdb_id,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

func (WatchlistEntry) TableName() string { return "my_list" }

// WatchProgress tracks playback position for one key
type WatchProgress struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	MediaType       MediaType `gorm:"not null" json:"media_type"`
	MediaID         string    `gorm:"not null" json:"media_id"`
	TMDBID          *int64    `gorm:"column:tmdb_id" json:"tmdb_id,omitempty"`
	Title           string    `json:"title"`
	PosterPath      string    `json:"poster_path,omitempty"`
	SeasonNumber    *int      `json:"season_number,omitempty"`
	EpisodeNumber   *int      `json:"episode_number,omitempty"`
	ProgressSeconds int       `json:"progress_seconds"`
	DurationSeconds int       `json:"duration_seconds"`
	ProgressPercent float64   `json:"progress_percent"`
	IsCompleted     bool      `json:"is_completed"`
	LastWatched     time.Time `json:"last_watched"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (WatchProgress) TableName() string { return "watch_history" }

// Key returns the identity of the progress row
func (p *WatchProgress) Key() WatchKey {
	return WatchKey{MediaType: p.MediaType, MediaID: p.MediaID, Season: p.SeasonNumber, Episode: p.EpisodeNumber}
}

// WatchedMark records that a key has been watched
type WatchedMark struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	MediaType     MediaType `gorm:"not null" json:"media_type"`
	MediaID       string    `gorm:"not null" json:"media_id"`
	TMDBID        *int64    `gorm:"column:tmdb_id" json:"tmdb_id,omitempty"`
	Title         string    `json:"title"`
	SeasonNumber  *int      `json:"season_number,omitempty"`
	EpisodeNumber *int      `json:"episode_number,omitempty"`
	MarkedAt      time.Time `json:"marked_at"`
}

func (WatchedMark) TableName() string { return "watched_items" }

// Key returns the identity of the mark
func (m *WatchedMark) Key() WatchKey {
	return WatchKey{MediaType: m.MediaType, MediaID: m.MediaID, Season: m.SeasonNumber, Episode: m.EpisodeNumber}
}

// ProgressUpdate is the input to SaveProgress
type ProgressUpdate struct {
	Key             WatchKey
	TMDBID          *int64
	Title           string
	PosterPath      string
	ProgressSeconds int
	DurationSeconds int
}

// EpisodeRef names one episode of a series
type EpisodeRef struct {
	Season  int
	Episode int
}

// ProgressPercent converts a position into a percentage, 0 when duration is unknown
func ProgressPercent(progress, duration int) float64 {
	if duration <= 0 {
		return 0
	}
	return float64(progress) / float64(duration) * 100
}

// Watchlist operations

// Watchlist returns saved titles, most recent first
func (db *Database) Watchlist() ([]WatchlistEntry, error) {
	var out []WatchlistEntry
	err := db.orm.Order("created_at DESC").Order("id DESC").Find(&out).Error
	return out, storageErr("list watchlist", "", err)
}

// AddToWatchlist saves e unless it is already present. The stored entry is
// returned together with whether this call created it.
func (db *Database) AddToWatchlist(e *WatchlistEntry) (*WatchlistEntry, bool, error) {
	var (
		out     WatchlistEntry
		created bool
	)
	err := db.write("add to watchlist", e.MediaID, func(tx *gorm.DB) error {
		created = false
		err := tx.Where("media_type = ? AND media_id = ?", e.MediaType, e.MediaID).Take(&out).Error
		if err == nil {
			return nil
		}
		if !isNotFound(err) {
			return err
		}
		out = *e
		out.ID = 0
		out.CreatedAt = db.now()
		if err := tx.Create(&out).Error; err != nil {
			if !isUniqueViolation(err) {
				return err
			}
			return tx.Where("media_type = ? AND media_id = ?", e.MediaType, e.MediaID).Take(&out).Error
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, created, nil
}

// RemoveFromWatchlist deletes a saved title and reports whether it existed
func (db *Database) RemoveFromWatchlist(kind MediaType, mediaID string) (bool, error) {
	var removed bool
	err := db.write("remove from watchlist", mediaID, func(tx *gorm.DB) error {
		res := tx.Where("media_type = ? AND media_id = ?", kind, mediaID).Delete(&WatchlistEntry{})
		removed = res.RowsAffected > 0
		return res.Error
	})
	return removed, err
}

// InWatchlist reports whether a title is saved
func (db *Database) InWatchlist(kind MediaType, mediaID string) (bool, error) {
	var n int64
	err := db.orm.Model(&WatchlistEntry{}).
		Where("media_type = ? AND media_id = ?", kind, mediaID).Count(&n).Error
	return n > 0, storageErr("check watchlist", mediaID, err)
}

// Progress operations

// SaveProgress records a playback position. Reaching the completion
// threshold marks the progress completed and writes a watched mark for the
// same key in the same transaction.
func (db *Database) SaveProgress(u ProgressUpdate) (*WatchProgress, error) {
	var out WatchProgress
	err := db.write("save progress", u.Key.String(), func(tx *gorm.DB) error {
		now := db.now()
		pct := ProgressPercent(u.ProgressSeconds, u.DurationSeconds)
		completed := pct >= CompletionThreshold

		err := u.Key.scope(tx).Take(&out).Error
		switch {
		case err == nil:
			if err := db.updateProgress(tx, &out, u, pct, completed, now); err != nil {
				return err
			}
		case isNotFound(err):
			out = WatchProgress{
				MediaType:       u.Key.MediaType,
				MediaID:         u.Key.MediaID,
				TMDBID:          u.TMDBID,
				Title:           u.Title,
				PosterPath:      u.PosterPath,
				SeasonNumber:    u.Key.Season,
				EpisodeNumber:   u.Key.Episode,
				ProgressSeconds: u.ProgressSeconds,
				DurationSeconds: u.DurationSeconds,
				ProgressPercent: pct,
				IsCompleted:     completed,
				LastWatched:     now,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := tx.Create(&out).Error; err != nil {
				if !isUniqueViolation(err) {
					return err
				}
				if err := u.Key.scope(tx).Take(&out).Error; err != nil {
					return err
				}
				if err := db.updateProgress(tx, &out, u, pct, completed, now); err != nil {
					return err
				}
			}
		default:
			return err
		}

		if !completed {
			return nil
		}
		_, err = markWatched(tx, &WatchedMark{
			MediaType:     u.Key.MediaType,
			MediaID:       u.Key.MediaID,
			TMDBID:        u.TMDBID,
			Title:         u.Title,
			SeasonNumber:  u.Key.Season,
			EpisodeNumber: u.Key.Episode,
		}, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (db *Database) updateProgress(tx *gorm.DB, p *WatchProgress, u ProgressUpdate, pct float64, completed bool, now time.Time) error {
	updates := map[string]any{
		"progress_seconds": u.ProgressSeconds,
		"duration_seconds": u.DurationSeconds,
		"progress_percent": pct,
		"is_completed":     completed,
		"last_watched":     now,
		"updated_at":       now,
	}
	if u.Title != "" {
		updates["title"] = u.Title
	}
	if u.PosterPath != "" {
		updates["poster_path"] = u.PosterPath
	}
	if u.TMDBID != nil {
		updates["tmdb_id"] = u.TMDBID
	}
	if err := tx.Model(p).Updates(updates).Error; err != nil {
		return err
	}
	return tx.Take(p, p.ID).Error
}

// GetProgress returns the progress row for key or ErrNotFound
func (db *Database) GetProgress(key WatchKey) (*WatchProgress, error) {
	var out WatchProgress
	if err := key.scope(db.orm).Take(&out).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get progress", key.String(), err)
	}
	return &out, nil
}

// ClearProgress deletes the progress row for key
func (db *Database) ClearProgress(key WatchKey) (bool, error) {
	var removed bool
	err := db.write("clear progress", key.String(), func(tx *gorm.DB) error {
		res := key.scope(tx).Delete(&WatchProgress{})
		removed = res.RowsAffected > 0
		return res.Error
	})
	return removed, err
}

// ContinueWatching returns in-progress items, most recently watched first
func (db *Database) ContinueWatching(limit int) ([]WatchProgress, error) {
	limit = limitOrAll(limit)
	var out []WatchProgress
	err := db.orm.
		Where("progress_percent >= ? AND progress_percent < ? AND is_completed = ?",
			ContinueWatchingMin, CompletionThreshold, false).
		Order("last_watched DESC").Order("id DESC").
		Limit(limit).Find(&out).Error
	return out, storageErr("continue watching", "", err)
}

// CompletedItems returns completed progress rows, most recent first
func (db *Database) CompletedItems(limit int) ([]WatchProgress, error) {
	limit = limitOrAll(limit)
	var out []WatchProgress
	err := db.orm.Where("is_completed = ?", true).
		Order("last_watched DESC").Order("id DESC").
		Limit(limit).Find(&out).Error
	return out, storageErr("completed items", "", err)
}

// Watched mark operations

func markWatched(tx *gorm.DB, m *WatchedMark, now time.Time) (*WatchedMark, error) {
	key := m.Key()
	var cur WatchedMark
	err := key.scope(tx).Take(&cur).Error
	if err == nil {
		if err := tx.Model(&cur).Update("marked_at", now).Error; err != nil {
			return nil, err
		}
		cur.MarkedAt = now
		return &cur, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	out := *m
	out.ID = 0
	out.MarkedAt = now
	if err := tx.Create(&out).Error; err != nil {
		if !isUniqueViolation(err) {
			return nil, err
		}
		if err := key.scope(tx).Take(&cur).Error; err != nil {
			return nil, err
		}
		if err := tx.Model(&cur).Update("marked_at", now).Error; err != nil {
			return nil, err
		}
		cur.MarkedAt = now
		return &cur, nil
	}
	return &out, nil
}

// MarkWatched marks a key as watched; an existing mark only has its timestamp refreshed
func (db *Database) MarkWatched(m *WatchedMark) (*WatchedMark, error) {
	var out *WatchedMark
	err := db.write("mark watched", m.Key().String(), func(tx *gorm.DB) error {
		var err error
		out, err = markWatched(tx, m, db.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkEpisodesWatched marks each episode of a series. Episodes already
// marked keep their row and get a fresh timestamp. Returns the number of
// episodes processed.
func (db *Database) MarkEpisodesWatched(base WatchedMark, episodes []EpisodeRef) (int, error) {
	n := 0
	err := db.write("mark episodes watched", base.MediaID, func(tx *gorm.DB) error {
		n = 0
		now := db.now()
		for _, ep := range episodes {
			m := base
			m.SeasonNumber = IntPtr(ep.Season)
			m.EpisodeNumber = IntPtr(ep.Episode)
			if _, err := markWatched(tx, &m, now); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// UnmarkWatched deletes the mark for key and reports whether it existed
func (db *Database) UnmarkWatched(key WatchKey) (bool, error) {
	var removed bool
	err := db.write("unmark watched", key.String(), func(tx *gorm.DB) error {
		res := key.scope(tx).Delete(&WatchedMark{})
		removed = res.RowsAffected > 0
		return res.Error
	})
	return removed, err
}

// IsMarkedWatched reports whether key has a watched mark
func (db *Database) IsMarkedWatched(key WatchKey) (bool, error) {
	var n int64
	err := key.scope(db.orm.Model(&WatchedMark{})).Count(&n).Error
	return n > 0, storageErr("check watched", key.String(), err)
}

// WatchedMarks lists marks, newest first, optionally filtered by type
func (db *Database) WatchedMarks(kind MediaType, limit int) ([]WatchedMark, error) {
	q := db.orm.Order("marked_at DESC").Order("id DESC")
	if kind != "" {
		q = q.Where("media_type = ?", kind)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []WatchedMark
	err := q.Find(&out).Error
	return out, storageErr("list watched", "", err)
}
