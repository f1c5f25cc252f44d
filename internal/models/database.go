package models

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DatabaseOptions configures the SQLite file and its connection pool
type DatabaseOptions struct {
	Path            string
	PoolSize        int           // idle connections kept open
	MaxOverflow     int           // extra connections allowed above PoolSize
	ConnMaxLifetime time.Duration // connections are recycled after this long
	BusyTimeout     time.Duration
}

// Database wraps the gorm handle over the catalog and watch-state tables
type Database struct {
	orm    *gorm.DB
	sqlDB  *sql.DB
	logger *logrus.Logger

	// SQLite has a single writer; serialise in-process writes instead of
	// piling them onto busy_timeout.
	writeMu       sync.Mutex
	writeAttempts uint
	now           func() time.Time
}

// NewDatabase opens the database, applies migrations and makes sure the search index exists
func NewDatabase(opts DatabaseOptions, logger *logrus.Logger) (*Database, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 10
	}
	if opts.MaxOverflow < 0 {
		opts.MaxOverflow = 0
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 10 * time.Second
	}

	if err := ensureFoldFunc(); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", foldFunc, err)
	}

	db := &Database{
		logger:        logger,
		writeAttempts: 5,
		now:           func() time.Time { return time.Now().UTC() },
	}

	orm, err := gorm.Open(&sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        buildDSN(opts.Path, opts.BusyTimeout),
	}, &gorm.Config{
		Logger: gormlogger.New(logger, gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return db.now() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := orm.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(opts.PoolSize + opts.MaxOverflow)
	sqlDB.SetMaxIdleConns(opts.PoolSize)
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
		sqlDB.SetConnMaxIdleTime(opts.ConnMaxLifetime / 2)
	}

	db.orm = orm
	db.sqlDB = sqlDB

	if err := db.Ping(context.Background()); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	if err := db.Migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	if err := db.EnsureSearchIndex(); err != nil {
		logger.WithError(err).Warn("Search index unavailable, searches will use substring matching")
	}

	return db, nil
}

func buildDSN(path string, busy time.Duration) string {
	params := url.Values{}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Set("_time_format", "sqlite")
	return path + "?" + params.Encode()
}

// Migrate applies the embedded schema migrations
func (db *Database) Migrate() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(db.logger)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(db.sqlDB, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.sqlDB.Close()
}

// Ping checks that a connection can be acquired and used
func (db *Database) Ping(ctx context.Context) error {
	return db.sqlDB.PingContext(ctx)
}

// PoolStats exposes database/sql pool counters
func (db *Database) PoolStats() sql.DBStats {
	return db.sqlDB.Stats()
}

// write runs fn in a transaction on the single writer path, retrying while SQLite reports busy
func (db *Database) write(op, key string, fn func(tx *gorm.DB) error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	err := retry.Do(
		func() error { return db.orm.Transaction(fn) },
		retry.RetryIf(isBusy),
		retry.Attempts(db.writeAttempts),
		retry.Delay(50*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			db.logger.WithFields(logrus.Fields{
				"op":      op,
				"attempt": n + 1,
			}).WithError(err).Debug("Database busy, retrying write")
		}),
	)
	return storageErr(op, key, err)
}

func paginate(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	return pageSize, (page - 1) * pageSize
}

// limitOrAll maps a non-positive limit to gorm's "no limit"
func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func tableFor(kind MediaType) (string, error) {
	switch kind {
	case MediaTypeMovie:
		return Movie{}.TableName(), nil
	case MediaTypeTV:
		return TVShow{}.TableName(), nil
	}
	return "", fmt.Errorf("unknown media type %q", kind)
}

// escapeLike escapes LIKE wildcards so the query is matched literally
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
