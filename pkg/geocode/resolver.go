package geocode

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sheetmap/sheetmap/internal/geocache"
	"github.com/sheetmap/sheetmap/internal/model"
)

// Resolver turns pending rows into located entries, consulting and updating
// the persisted cache.
type Resolver struct {
	provider Provider
	store    geocache.Store
}

// ResolveStats summarizes a resolution pass.
type ResolveStats struct {
	Geocoded  int
	CacheHits int
	Failed    int
}

// NewResolver creates a Resolver over the given provider and cache store.
func NewResolver(p Provider, s geocache.Store) *Resolver {
	return &Resolver{provider: p, store: s}
}

// ResolveAll resolves rows strictly sequentially, preserving source order.
// The cache snapshot is loaded once, mutated in place, and persisted after
// every successful geocode; sequential processing keeps that mutation
// race-free without locks. Rows that cannot be resolved are logged and
// skipped; failures never escalate past the row.
func (r *Resolver) ResolveAll(ctx context.Context, pending []model.PendingRow) ([]model.LocationEntry, ResolveStats) {
	var stats ResolveStats
	if len(pending) == 0 {
		return nil, stats
	}

	snapshot := r.store.Load(ctx)
	now := time.Now().UTC()

	entries := make([]model.LocationEntry, 0, len(pending))
	for _, row := range pending {
		key := geocache.Key(row.Address)

		if cached, ok := snapshot[key]; ok && cached.Fresh(now) {
			entry, err := row.Entry(cached.Lat, cached.Lng)
			if err != nil {
				zap.L().Warn("geocode: cached coordinates unusable",
					zap.String("address", row.Address),
					zap.Error(err),
				)
				stats.Failed++
				continue
			}
			zap.L().Debug("geocode: cache hit", zap.String("key", key))
			entries = append(entries, entry)
			stats.CacheHits++
			continue
		}

		result, err := r.provider.Geocode(ctx, row.Address)
		if err != nil || !result.Matched {
			zap.L().Warn("geocode: address did not resolve",
				zap.String("address", row.Address),
				zap.String("name", row.Name),
				zap.Error(err),
			)
			stats.Failed++
			continue
		}

		entry, err := row.Entry(result.Lat, result.Lng)
		if err != nil {
			zap.L().Warn("geocode: provider returned unusable coordinates",
				zap.String("address", row.Address),
				zap.Error(err),
			)
			stats.Failed++
			continue
		}

		snapshot[key] = geocache.Entry{Lat: result.Lat, Lng: result.Lng, CachedAt: time.Now().UTC()}
		r.store.Save(ctx, snapshot)

		entries = append(entries, entry)
		stats.Geocoded++
	}

	return entries, stats
}

// Resolve resolves a single address through the same cache-then-provider
// path, for operator use.
func (r *Resolver) Resolve(ctx context.Context, address string) (*Result, error) {
	key := geocache.Key(address)
	snapshot := r.store.Load(ctx)

	if cached, ok := snapshot[key]; ok && cached.Fresh(time.Now().UTC()) {
		return &Result{Lat: cached.Lat, Lng: cached.Lng, Matched: true, Source: "cache"}, nil
	}

	result, err := r.provider.Geocode(ctx, address)
	if err != nil {
		return nil, err
	}
	if result.Matched {
		snapshot[key] = geocache.Entry{Lat: result.Lat, Lng: result.Lng, CachedAt: time.Now().UTC()}
		r.store.Save(ctx, snapshot)
	}
	return result, nil
}
