// Package pipeline wires fetch, parse, resolve, and render into one run.
package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sheetmap/sheetmap/internal/config"
	"github.com/sheetmap/sheetmap/internal/model"
	"github.com/sheetmap/sheetmap/internal/render"
	"github.com/sheetmap/sheetmap/internal/rows"
	"github.com/sheetmap/sheetmap/internal/sheet"
	"github.com/sheetmap/sheetmap/pkg/geocode"
)

// Pipeline executes the one-shot fetch → parse → resolve → render sequence.
// Runs are independent: overlapping invocations each get their own UUID and
// may interleave; the cache store is the only shared state and tolerates
// last-write-wins (see geocache).
type Pipeline struct {
	cfg      *config.Config
	fetcher  *sheet.Fetcher
	resolver *geocode.Resolver
	renderer *render.Renderer
}

// New creates a Pipeline.
func New(cfg *config.Config, fetcher *sheet.Fetcher, resolver *geocode.Resolver, renderer *render.Renderer) *Pipeline {
	return &Pipeline{cfg: cfg, fetcher: fetcher, resolver: resolver, renderer: renderer}
}

// Result summarizes a completed run.
type Result struct {
	RunID         string                `json:"run_id"`
	Document      []byte                `json:"-"`
	Entries       []model.LocationEntry `json:"entries"`
	Dropped       int                   `json:"dropped"`
	Geocoded      int                   `json:"geocoded"`
	CacheHits     int                   `json:"cache_hits"`
	GeocodeFailed int                   `json:"geocode_failed"`
}

// Run executes the full pipeline once. Failures at the configuration,
// fetch, or capability level return a FatalError; row-level failures only
// reduce the entry count.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res, err := p.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := p.renderer.BuildDocument(ctx, res.Entries, render.Options{
		ContainerID: p.cfg.Embed.ContainerID,
		Zoom:        p.cfg.Embed.Zoom,
		MapID:       p.cfg.Embed.MapID,
	})
	if err != nil {
		return nil, fatal(KindCapability, err)
	}
	res.Document = doc

	zap.L().Info("pipeline: run complete",
		zap.String("run_id", res.RunID),
		zap.Int("entries", len(res.Entries)),
		zap.Int("dropped", res.Dropped),
		zap.Int("geocoded", res.Geocoded),
		zap.Int("cache_hits", res.CacheHits),
		zap.Int("geocode_failed", res.GeocodeFailed),
	)
	return res, nil
}

// Resolve executes fetch → parse → resolve without rendering, for consumers
// that want the entry list itself.
func (p *Pipeline) Resolve(ctx context.Context) (*Result, error) {
	runID := uuid.New().String()

	if err := p.cfg.Validate(); err != nil {
		return nil, fatal(KindConfig, err)
	}

	body, err := p.fetcher.FetchCSV(ctx, p.cfg.Sheet.ID, p.cfg.Sheet.GID)
	if err != nil {
		return nil, fatal(KindFetch, err)
	}
	defer body.Close() //nolint:errcheck

	parsed, err := rows.ParseReader(body)
	if err != nil {
		return nil, fatal(KindFetch, eris.Wrap(err, "pipeline: parse sheet"))
	}

	zap.L().Debug("pipeline: rows classified",
		zap.String("run_id", runID),
		zap.Int("located", len(parsed.Located)),
		zap.Int("pending", len(parsed.Pending)),
		zap.Int("dropped", parsed.Dropped),
	)

	resolved, stats := p.resolver.ResolveAll(ctx, parsed.Pending)

	// Rows with coordinates pass straight through; geocoded rows follow.
	entries := make([]model.LocationEntry, 0, len(parsed.Located)+len(resolved))
	entries = append(entries, parsed.Located...)
	entries = append(entries, resolved...)

	return &Result{
		RunID:         runID,
		Entries:       entries,
		Dropped:       parsed.Dropped,
		Geocoded:      stats.Geocoded,
		CacheHits:     stats.CacheHits,
		GeocodeFailed: stats.Failed,
	}, nil
}
