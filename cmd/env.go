package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sheetmap/sheetmap/internal/geocache"
	"github.com/sheetmap/sheetmap/internal/pipeline"
	"github.com/sheetmap/sheetmap/internal/render"
	"github.com/sheetmap/sheetmap/internal/sheet"
	"github.com/sheetmap/sheetmap/pkg/geocode"
)

// env holds the wired pipeline dependencies shared by commands.
type env struct {
	Store    geocache.Store
	Resolver *geocode.Resolver
	Pipeline *pipeline.Pipeline
}

func initEnv(ctx context.Context) (*env, error) {
	store, err := geocache.Open(ctx, cfg.Cache.Driver, cfg.Cache.DSN)
	if err != nil {
		return nil, eris.Wrap(err, "open geocode cache")
	}

	provider := geocode.NewGoogleProvider(cfg.Geocode.APIKey,
		geocode.WithRateLimit(cfg.Geocode.RequestsPerSec),
	)
	resolver := geocode.NewResolver(provider, store)

	fetcher := sheet.NewFetcher(sheet.Options{})
	renderer := render.NewRenderer(cfg.Geocode.APIKey, render.NewLoader())

	return &env{
		Store:    store,
		Resolver: resolver,
		Pipeline: pipeline.New(cfg, fetcher, resolver, renderer),
	}, nil
}

func (e *env) Close() {
	_ = e.Store.Close()
}
