package models

import (
	"fmt"
)

func searchIndexed[T any](db *Database, t indexedTable, match, startsWith string, limit, offset int) ([]T, error) {
	var out []T
	query := fmt.Sprintf(`SELECT c.* FROM %[1]s c
		JOIN %[2]s ON %[2]s.rowid = c.id
		WHERE %[2]s MATCH ?
		ORDER BY CASE WHEN %[3]s(c.title) LIKE ? ESCAPE '\' THEN 0 ELSE 1 END,
			c.popularity DESC, c.id ASC
		LIMIT ? OFFSET ?`, t.content, t.fts, foldFunc)
	err := db.orm.Raw(query, match, fold(escapeLike(startsWith))+"%", limit, offset).Scan(&out).Error
	return out, err
}

func searchLike[T any](db *Database, table, q string, limit, offset int) ([]T, error) {
	var out []T
	query := fmt.Sprintf(`SELECT * FROM %[1]s
		WHERE %[2]s(title) LIKE ? ESCAPE '\'
		ORDER BY popularity DESC, id ASC
		LIMIT ? OFFSET ?`, table, foldFunc)
	err := db.orm.Raw(query, "%"+fold(escapeLike(q))+"%", limit, offset).Scan(&out).Error
	return out, err
}

// SearchMoviesIndexed matches movies through the FTS index. Titles starting
// with startsWith rank first, then more popular titles.
func (db *Database) SearchMoviesIndexed(match, startsWith string, limit, offset int) ([]Movie, error) {
	return searchIndexed[Movie](db, indexedTables[0], match, startsWith, limit, offset)
}

// SearchTVShowsIndexed is the tv show counterpart of SearchMoviesIndexed
func (db *Database) SearchTVShowsIndexed(match, startsWith string, limit, offset int) ([]TVShow, error) {
	return searchIndexed[TVShow](db, indexedTables[1], match, startsWith, limit, offset)
}

// SearchMoviesLike matches titles containing q, case-insensitively
func (db *Database) SearchMoviesLike(q string, limit, offset int) ([]Movie, error) {
	return searchLike[Movie](db, Movie{}.TableName(), q, limit, offset)
}

// SearchTVShowsLike is the tv show counterpart of SearchMoviesLike
func (db *Database) SearchTVShowsLike(q string, limit, offset int) ([]TVShow, error) {
	return searchLike[TVShow](db, TVShow{}.TableName(), q, limit, offset)
}
