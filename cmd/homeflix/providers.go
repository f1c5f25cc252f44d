package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/amaumene/homeflix/internal/api"
	"github.com/amaumene/homeflix/internal/cache"
	"github.com/amaumene/homeflix/internal/config"
	"github.com/amaumene/homeflix/internal/controllers"
	"github.com/amaumene/homeflix/internal/metrics"
	"github.com/amaumene/homeflix/internal/models"
	"github.com/amaumene/homeflix/internal/scheduler"
	"github.com/amaumene/homeflix/internal/services/tmdb"
	"github.com/amaumene/homeflix/internal/services/vidsrc"
	"github.com/amaumene/homeflix/internal/utils"
)

// application holds every long-lived component of a running process
type application struct {
	Config    *config.Config
	Logger    *logrus.Logger
	Tracer    *sdktrace.TracerProvider
	DB        *models.Database
	Cache     *cache.TieredCache
	Sync      *controllers.SyncController
	Catalog   *controllers.CatalogController
	Scheduler *scheduler.Scheduler
	Server    *api.Server
}

func provideLogger(cfg *config.Config) *logrus.Logger {
	return utils.NewLogger(cfg.LogLevel, cfg.LogFile)
}

func provideTracer(logger *logrus.Logger) (*sdktrace.TracerProvider, func()) {
	tp := utils.NewTracerProvider(logger)
	return tp, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
	}
}

func provideDatabase(cfg *config.Config, logger *logrus.Logger) (*models.Database, func(), error) {
	db, err := models.NewDatabase(models.DatabaseOptions{
		Path:            cfg.DatabaseFile,
		PoolSize:        cfg.DBPoolSize,
		MaxOverflow:     cfg.DBMaxOverflow,
		ConnMaxLifetime: cfg.DBPoolRecycle,
		BusyTimeout:     cfg.DBBusyTimeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.WithField("path", cfg.DatabaseFile).Info("Database initialized")
	return db, func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close database")
		}
	}, nil
}

func provideCache(cfg *config.Config) (*cache.TieredCache, func()) {
	// stale entries are swept once they are twice the namespace duration old
	c := cache.New(map[cache.Namespace]cache.Options{
		cache.NamespaceTMDB:      {Duration: cfg.CacheTMDB, MaxEntries: cfg.ProviderCacheSize, Retain: 2 * cfg.CacheTMDB},
		cache.NamespaceVidSrc:    {Duration: cfg.CacheVidSrc, Retain: 2 * cfg.CacheVidSrc},
		cache.NamespacePosters:   {Duration: cfg.CachePoster, Retain: 2 * cfg.CachePoster},
		cache.NamespaceBackdrops: {Duration: cfg.CacheBackdrop, Retain: 2 * cfg.CacheBackdrop},
	})
	c.OnLookup(func(ns cache.Namespace, hit bool) {
		metrics.CacheLookup(string(ns), hit)
	})
	return c, c.Close
}

func provideBlocklist(cfg *config.Config, logger *logrus.Logger) *utils.Blocklist {
	blocklist, err := utils.LoadBlocklist(cfg.BlocklistFile)
	if err != nil {
		logger.WithError(err).Warn("Failed to load blocklist, continuing without it")
		return utils.NewBlocklist(nil)
	}
	logger.Info("Blocklist loaded")
	return blocklist
}

func provideSyncController(cfg *config.Config, db *models.Database, provider *tmdb.Client, listing *vidsrc.Client, blocklist *utils.Blocklist, logger *logrus.Logger) *controllers.SyncController {
	return controllers.NewSyncController(db, provider, listing, blocklist, controllers.SyncOptionsFromConfig(cfg), logger)
}

func provideCatalogController(cfg *config.Config, db *models.Database, search *controllers.SearchController, provider *tmdb.Client, c *cache.TieredCache, logger *logrus.Logger) *controllers.CatalogController {
	return controllers.NewCatalogController(db, search, provider, c, controllers.CatalogOptionsFromConfig(cfg), logger)
}

func provideScheduler(cfg *config.Config, sync *controllers.SyncController, logger *logrus.Logger) *scheduler.Scheduler {
	return scheduler.NewScheduler(sync, scheduler.OptionsFromConfig(cfg), logger)
}

func provideServer(cfg *config.Config, db *models.Database, catalog *controllers.CatalogController, sync *controllers.SyncController, logger *logrus.Logger) *api.Server {
	return api.NewServer(cfg, db, catalog, sync, logger)
}
