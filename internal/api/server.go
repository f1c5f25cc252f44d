package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/homeflix/internal/api/handlers"
	"github.com/amaumene/homeflix/internal/api/middleware"
	"github.com/amaumene/homeflix/internal/config"
	"github.com/amaumene/homeflix/internal/controllers"
	"github.com/amaumene/homeflix/internal/metrics"
)

// Server represents the HTTP server
type Server struct {
	app    *fiber.App
	addr   string
	logger *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, db handlers.Pinger, catalog *controllers.CatalogController, sync handlers.ReportSource, logger *logrus.Logger) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               "homeflix",
			DisableStartupMessage: true,
			ReadTimeout:           15 * time.Second,
			WriteTimeout:          30 * time.Second,
			IdleTimeout:           60 * time.Second,
			ErrorHandler:          handlers.ErrorHandler(logger),
		}),
		addr:   ":" + cfg.ServerPort,
		logger: logger,
	}

	s.app.Use(recover.New())
	s.app.Use(middleware.Logging(logger))
	s.setupRoutes(db, catalog, sync)
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(db handlers.Pinger, catalog *controllers.CatalogController, sync handlers.ReportSource) {
	// Monitoring
	health := handlers.NewHealthHandler(db, s.logger)
	status := handlers.NewStatusHandler(catalog, sync, s.logger)
	s.app.Get("/health", health.Get)
	s.app.Get("/status", status.Get)
	s.app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	s.app.Post("/cache/clear", status.ClearCache)

	// Artwork
	cat := handlers.NewCatalogHandler(catalog, s.logger)
	s.app.Get("/poster/:type/:tmdb", cat.Image(controllers.VariantPoster))
	s.app.Get("/backdrop/:type/:tmdb", cat.Image(controllers.VariantBackdrop))

	// Catalog
	api := s.app.Group("/api")
	api.Get("/home", cat.Home)
	api.Get("/movies", cat.Movies)
	api.Get("/movies/:imdb", cat.Movie)
	api.Get("/series", cat.Series)
	api.Get("/series/:imdb", cat.Show)
	api.Get("/series/:imdb/season/:season", cat.Season)
	api.Get("/search", cat.Search)
	api.Get("/search/:type/:query/:page", cat.SearchMore)
	api.Get("/watch/:type/:imdb", cat.Watch)

	// Watch state
	watch := handlers.NewWatchHandler(catalog, s.logger)
	api.Get("/my-list", watch.List)
	api.Post("/my-list", watch.Add)
	api.Delete("/my-list/:type/:id", watch.Remove)
	api.Post("/progress", watch.SaveProgress)
	api.Delete("/progress", watch.ClearProgress)
	api.Get("/continue-watching", watch.ContinueWatching)
	api.Get("/watched", watch.Watched)
	api.Post("/watched", watch.MarkWatched)
	api.Delete("/watched", watch.UnmarkWatched)
	api.Post("/watched/season", watch.MarkSeason)
	api.Post("/watched/series", watch.MarkSeries)
}

// App exposes the fiber application, mainly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the HTTP server and blocks until ctx is done or listening fails
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("port", s.addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.app.Listen(s.addr); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(shutdownCtx)
}
