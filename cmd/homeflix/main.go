package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amaumene/homeflix/internal/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "homeflix",
		Short:         "Self-hosted catalog of recently published movies and series",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")

	load := func() (*config.Config, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		return cfg, nil
	}

	root.AddCommand(
		newServeCommand(load),
		newSyncCommand(load),
		newReindexCommand(load),
		newMigrateCommand(load),
	)
	return root
}

type configLoader func() (*config.Config, error)

func newServeCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the sync scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	app, cleanup, err := initializeApp(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	logger := app.Logger
	logger.Info("Starting Homeflix")
	logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Info("Configuration loaded")

	if err := app.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer app.Scheduler.Stop()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- app.Server.Start(ctx)
	}()

	logger.Info("Homeflix is running")

	select {
	case err := <-serverErrChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
		if err := <-serverErrChan; err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	logger.Info("Homeflix stopped")
	return nil
}

func newSyncCommand(load configLoader) *cobra.Command {
	var moviePages, tvPages, trendingPages int

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle and print its report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("movie-pages") {
				cfg.SyncMoviePages = moviePages
			}
			if flags.Changed("tv-pages") {
				cfg.SyncTVPages = tvPages
			}
			if flags.Changed("trending-pages") {
				cfg.SyncTrendingPages = trendingPages
			}

			app, cleanup, err := initializeApp(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if cfg.SyncTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.SyncTimeout)
				defer cancel()
			}

			report := app.Sync.SyncAll(ctx)
			if report == nil {
				return fmt.Errorf("sync already in progress")
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().IntVar(&moviePages, "movie-pages", 0, "listing pages of movies to fetch")
	cmd.Flags().IntVar(&tvPages, "tv-pages", 0, "listing pages of series to fetch")
	cmd.Flags().IntVar(&trendingPages, "trending-pages", 0, "trending pages to fetch per kind")
	return cmd
}

func newReindexCommand(load configLoader) *cobra.Command {
	var drop bool

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the full-text search index from the catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger := provideLogger(cfg)
			db, cleanup, err := provideDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			if drop {
				if err := db.DropSearchIndex(); err != nil {
					return fmt.Errorf("failed to drop search index: %w", err)
				}
				logger.Info("Search index dropped, searches will use substring matching")
				return nil
			}
			if err := db.RebuildSearchIndex(); err != nil {
				return fmt.Errorf("failed to rebuild search index: %w", err)
			}
			logger.Info("Search index rebuilt")
			return nil
		},
	}
	cmd.Flags().BoolVar(&drop, "drop", false, "remove the index instead of rebuilding it")
	return cmd
}

func newMigrateCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger := provideLogger(cfg)
			// opening the database applies migrations
			_, cleanup, err := provideDatabase(cfg, logger)
			if err != nil {
				return err
			}
			cleanup()
			logger.Info("Migrations applied")
			return nil
		},
	}
}
