//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/amaumene/homeflix/internal/config"
	"github.com/amaumene/homeflix/internal/controllers"
	"github.com/amaumene/homeflix/internal/services/tmdb"
	"github.com/amaumene/homeflix/internal/services/vidsrc"
)

func initializeApp(cfg *config.Config) (*application, func(), error) {
	wire.Build(
		provideLogger,
		provideTracer,
		provideDatabase,
		provideCache,
		tmdb.NewClient,
		vidsrc.NewClient,
		provideBlocklist,
		controllers.NewSearchController,
		provideSyncController,
		provideCatalogController,
		provideScheduler,
		provideServer,
		wire.Struct(new(application), "*"),
	)
	return nil, nil, nil
}
