package models

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// record is the per-table contract the generic upsert works against
type record[T any] interface {
	*T
	Media
	imdbKey() string
	primaryKey() uint
	setTrending(bool)
	stamp(time.Time)
	changes(cur *T, opts UpsertOptions) map[string]any
}

// upsertRecord inserts rec or reconciles it with the stored row sharing its imdb_id
func upsertRecord[T any, P record[T]](tx *gorm.DB, rec P, opts UpsertOptions, now time.Time) (P, error) {
	key := rec.imdbKey()
	if key == "" {
		return nil, ErrMissingIMDBID
	}

	var cur T
	err := tx.Where("imdb_id = ?", key).Take(&cur).Error
	if err == nil {
		return updateRecord[T, P](tx, P(&cur), rec, opts, now)
	}
	if !isNotFound(err) {
		return nil, err
	}

	rec.stamp(now)
	createErr := tx.Create(rec).Error
	if createErr == nil {
		return rec, nil
	}
	if !isUniqueViolation(createErr) {
		return nil, createErr
	}

	// Lost an insert race: the row exists now, so fall through to the update path
	if err := tx.Where("imdb_id = ?", key).Take(&cur).Error; err != nil {
		if isNotFound(err) {
			return nil, createErr
		}
		return nil, err
	}
	return updateRecord[T, P](tx, P(&cur), rec, opts, now)
}

func updateRecord[T any, P record[T]](tx *gorm.DB, cur, rec P, opts UpsertOptions, now time.Time) (P, error) {
	ch := rec.changes((*T)(cur), opts)
	if len(ch) == 0 {
		return cur, nil
	}
	ch["updated_at"] = now
	if err := tx.Model(cur).Updates(ch).Error; err != nil {
		return nil, err
	}
	var fresh T
	if err := tx.Take(&fresh, cur.primaryKey()).Error; err != nil {
		return nil, err
	}
	return P(&fresh), nil
}

// UpsertMovie inserts or updates a movie keyed by imdb_id. Identical input
// leaves the stored row, including updated_at, untouched.
func (db *Database) UpsertMovie(m *Movie, opts UpsertOptions) (*Movie, error) {
	var out *Movie
	err := db.write("upsert movie", m.IMDBID, func(tx *gorm.DB) error {
		var err error
		out, err = upsertRecord[Movie](tx, m, opts, db.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertTVShow inserts or updates a tv show keyed by imdb_id
func (db *Database) UpsertTVShow(s *TVShow, opts UpsertOptions) (*TVShow, error) {
	var out *TVShow
	err := db.write("upsert tvshow", s.IMDBID, func(tx *gorm.DB) error {
		var err error
		out, err = upsertRecord[TVShow](tx, s, opts, db.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertMedia dispatches to the table matching the record's type
func (db *Database) UpsertMedia(rec Media, opts UpsertOptions) (Media, error) {
	switch r := rec.(type) {
	case *Movie:
		m, err := db.UpsertMovie(r, opts)
		if err != nil {
			return nil, err
		}
		return m, nil
	case *TVShow:
		s, err := db.UpsertTVShow(r, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, storageErr("upsert", "", fmt.Errorf("unsupported record type %T", rec))
}

// UpsertMediaBatch upserts every record, logging and skipping failures.
// Each record commits on its own. Returns the number of records attempted.
func (db *Database) UpsertMediaBatch(recs []Media, opts UpsertOptions) int {
	for _, rec := range recs {
		if _, err := db.UpsertMedia(rec, opts); err != nil {
			db.logUpsertFailure(rec, err)
		}
	}
	return len(recs)
}

func (db *Database) logUpsertFailure(rec Media, err error) {
	entry := db.logger.WithFields(logrus.Fields{
		"type":    rec.Kind(),
		"imdb_id": rec.GetIMDBID(),
		"title":   rec.GetTitle(),
	}).WithError(err)
	if errors.Is(err, ErrMissingIMDBID) {
		entry.Warn("Skipping record without imdb_id")
		return
	}
	entry.Error("Failed to upsert record")
}

// ClearTrendingFlags resets is_trending for the given media types (both when none given)
func (db *Database) ClearTrendingFlags(kinds ...MediaType) error {
	if len(kinds) == 0 {
		kinds = []MediaType{MediaTypeMovie, MediaTypeTV}
	}
	return db.write("clear trending", "", func(tx *gorm.DB) error {
		for _, kind := range kinds {
			if err := clearTrending(tx, kind, nil, db.now()); err != nil {
				return err
			}
		}
		return nil
	})
}

// clearTrending resets the flag on every trending row whose imdb_id is not in keep
func clearTrending(tx *gorm.DB, kind MediaType, keep []string, now time.Time) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	q := tx.Table(table).Where("is_trending = ?", true)
	if len(keep) > 0 {
		q = q.Where("imdb_id NOT IN ?", keep)
	}
	return q.Updates(map[string]any{"is_trending": false, "updated_at": now}).Error
}

// ApplyTrending makes recs the complete trending set for kind in a single
// transaction. Records failing to upsert are rolled back individually and
// skipped. Stored rows keep their quality. Returns how many records were applied.
func (db *Database) ApplyTrending(kind MediaType, recs []Media) (int, error) {
	applied := 0
	err := db.write("apply trending", string(kind), func(tx *gorm.DB) error {
		applied = 0
		now := db.now()

		keep := make([]string, 0, len(recs))
		for _, rec := range recs {
			if rec.Kind() == kind && rec.GetIMDBID() != "" {
				keep = append(keep, rec.GetIMDBID())
			}
		}
		if err := clearTrending(tx, kind, keep, now); err != nil {
			return err
		}

		for i, rec := range recs {
			if rec.Kind() != kind {
				continue
			}
			sp := "trending_" + strconv.Itoa(i)
			if err := tx.SavePoint(sp).Error; err != nil {
				return err
			}
			if err := upsertTrending(tx, rec, now); err != nil {
				db.logUpsertFailure(rec, err)
				if err := tx.RollbackTo(sp).Error; err != nil {
					return err
				}
				continue
			}
			applied++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

func upsertTrending(tx *gorm.DB, rec Media, now time.Time) error {
	var err error
	switch r := rec.(type) {
	case *Movie:
		r.setTrending(true)
		_, err = upsertRecord[Movie](tx, r, UpsertOptions{KeepQuality: true}, now)
	case *TVShow:
		r.setTrending(true)
		_, err = upsertRecord[TVShow](tx, r, UpsertOptions{KeepQuality: true}, now)
	default:
		err = fmt.Errorf("unsupported record type %T", rec)
	}
	return err
}

func findRecord[T any](orm *gorm.DB, idType IDType, value string) (*T, error) {
	q := orm
	switch idType {
	case IDTypeIMDB:
		q = q.Where("imdb_id = ?", value)
	case IDTypeTMDB:
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, ErrNotFound
		}
		q = q.Where("tmdb_id = ?", id)
	default:
		return nil, fmt.Errorf("unknown id type %q", idType)
	}

	var out T
	if err := q.Take(&out).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, storageErr("find", value, err)
	}
	return &out, nil
}

// FindMovie looks a movie up by imdb or tmdb id
func (db *Database) FindMovie(idType IDType, value string) (*Movie, error) {
	return findRecord[Movie](db.orm, idType, value)
}

// FindTVShow looks a tv show up by imdb or tmdb id
func (db *Database) FindTVShow(idType IDType, value string) (*TVShow, error) {
	return findRecord[TVShow](db.orm, idType, value)
}

// FindMedia looks up either type
func (db *Database) FindMedia(kind MediaType, idType IDType, value string) (Media, error) {
	switch kind {
	case MediaTypeMovie:
		m, err := db.FindMovie(idType, value)
		if err != nil {
			return nil, err
		}
		return m, nil
	case MediaTypeTV:
		s, err := db.FindTVShow(idType, value)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown media type %q", kind)
}

// LatestMovies returns movies by release date, newest first
func (db *Database) LatestMovies(page, pageSize int) ([]Movie, error) {
	limit, offset := paginate(page, pageSize)
	var out []Movie
	err := db.orm.
		Where("imdb_id IS NOT NULL AND imdb_id <> ''").
		Order("release_date DESC").Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&out).Error
	return out, storageErr("list latest movies", "", err)
}

// LatestTVShows returns tv shows by first air date, newest first
func (db *Database) LatestTVShows(page, pageSize int) ([]TVShow, error) {
	limit, offset := paginate(page, pageSize)
	var out []TVShow
	err := db.orm.
		Where("imdb_id IS NOT NULL AND imdb_id <> ''").
		Order("first_air_date DESC").Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&out).Error
	return out, storageErr("list latest tvshows", "", err)
}

// TrendingMovies returns flagged movies by popularity
func (db *Database) TrendingMovies(limit int) ([]Movie, error) {
	limit = limitOrAll(limit)
	var out []Movie
	err := db.orm.Where("is_trending = ?", true).
		Order("popularity DESC").Order("id ASC").
		Limit(limit).Find(&out).Error
	return out, storageErr("list trending movies", "", err)
}

// TrendingTVShows returns flagged tv shows by popularity
func (db *Database) TrendingTVShows(limit int) ([]TVShow, error) {
	limit = limitOrAll(limit)
	var out []TVShow
	err := db.orm.Where("is_trending = ?", true).
		Order("popularity DESC").Order("id ASC").
		Limit(limit).Find(&out).Error
	return out, storageErr("list trending tvshows", "", err)
}

// CountMovies returns the number of stored movies
func (db *Database) CountMovies() (int64, error) {
	var n int64
	err := db.orm.Model(&Movie{}).Count(&n).Error
	return n, storageErr("count movies", "", err)
}

// CountTVShows returns the number of stored tv shows
func (db *Database) CountTVShows() (int64, error) {
	var n int64
	err := db.orm.Model(&TVShow{}).Count(&n).Error
	return n, storageErr("count tvshows", "", err)
}
