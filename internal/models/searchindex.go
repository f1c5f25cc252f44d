package models

import (
	"fmt"

	"gorm.io/gorm"
)

// The search index mirrors (rowid, imdb_id, tmdb_id, title) of each catalog
// table into an external-content FTS5 table. Triggers keep it in step with
// every insert, title/id update and delete.

const trigramTokenizer = "trigram"

type indexedTable struct {
	content string
	fts     string
}

var indexedTables = []indexedTable{
	{content: "movies", fts: "movies_fts"},
	{content: "tvshows", fts: "tvshows_fts"},
}

func (t indexedTable) createStatements() []string {
	return []string{
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS %[1]s USING fts5(
			imdb_id UNINDEXED, tmdb_id UNINDEXED, title,
			content='%[2]s', content_rowid='id', tokenize='%[3]s'
		)`, t.fts, t.content, trigramTokenizer),
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %[2]s_ai AFTER INSERT ON %[2]s BEGIN
			INSERT INTO %[1]s(rowid, imdb_id, tmdb_id, title)
			VALUES (new.id, new.imdb_id, new.tmdb_id, new.title);
		END`, t.fts, t.content),
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %[2]s_ad AFTER DELETE ON %[2]s BEGIN
			INSERT INTO %[1]s(%[1]s, rowid, imdb_id, tmdb_id, title)
			VALUES ('delete', old.id, old.imdb_id, old.tmdb_id, old.title);
		END`, t.fts, t.content),
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %[2]s_au AFTER UPDATE OF title, imdb_id, tmdb_id ON %[2]s BEGIN
			INSERT INTO %[1]s(%[1]s, rowid, imdb_id, tmdb_id, title)
			VALUES ('delete', old.id, old.imdb_id, old.tmdb_id, old.title);
			INSERT INTO %[1]s(rowid, imdb_id, tmdb_id, title)
			VALUES (new.id, new.imdb_id, new.tmdb_id, new.title);
		END`, t.fts, t.content),
	}
}

func (t indexedTable) dropStatements() []string {
	return []string{
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s_ai", t.content),
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s_ad", t.content),
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s_au", t.content),
		fmt.Sprintf("DROP TABLE IF EXISTS %s", t.fts),
	}
}

func (t indexedTable) rebuildStatement() string {
	return fmt.Sprintf("INSERT INTO %[1]s(%[1]s) VALUES ('rebuild')", t.fts)
}

// EnsureSearchIndex creates the index when missing and leaves an existing one alone
func (db *Database) EnsureSearchIndex() error {
	if db.SearchIndexAvailable() {
		return nil
	}
	return db.RebuildSearchIndex()
}

// RebuildSearchIndex drops and recreates the index, then repopulates it from the catalog tables
func (db *Database) RebuildSearchIndex() error {
	return db.write("rebuild search index", "", func(tx *gorm.DB) error {
		for _, t := range indexedTables {
			for _, stmt := range t.dropStatements() {
				if err := tx.Exec(stmt).Error; err != nil {
					return err
				}
			}
			for _, stmt := range t.createStatements() {
				if err := tx.Exec(stmt).Error; err != nil {
					return fmt.Errorf("create %s: %w", t.fts, err)
				}
			}
			if err := tx.Exec(t.rebuildStatement()).Error; err != nil {
				return fmt.Errorf("populate %s: %w", t.fts, err)
			}
		}
		return nil
	})
}

// DropSearchIndex removes the index tables and their triggers
func (db *Database) DropSearchIndex() error {
	return db.write("drop search index", "", func(tx *gorm.DB) error {
		for _, t := range indexedTables {
			for _, stmt := range t.dropStatements() {
				if err := tx.Exec(stmt).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// SearchIndexAvailable reports whether every index table exists
func (db *Database) SearchIndexAvailable() bool {
	for _, t := range indexedTables {
		var n int64
		err := db.orm.Raw(
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", t.fts,
		).Scan(&n).Error
		if err != nil || n == 0 {
			return false
		}
	}
	return true
}
