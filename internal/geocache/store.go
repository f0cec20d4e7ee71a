// Package geocache persists resolved geocode results across runs.
//
// The cache is a best-effort optimization, never a correctness requirement:
// Load returns an empty mapping instead of failing, Save failures are
// swallowed, and entries older than the retention window are treated as
// absent. Expired rows are filtered on load and dropped on the next save, so
// the store self-prunes under normal write traffic.
package geocache

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Retention is the fixed validity window for a cached geocode result.
const Retention = 7 * 24 * time.Hour

// Entry maps a normalized address to a resolved coordinate pair.
type Entry struct {
	Lat      float64
	Lng      float64
	CachedAt time.Time
}

// Fresh reports whether the entry is still within the retention window.
func (e Entry) Fresh(now time.Time) bool {
	return now.Sub(e.CachedAt) < Retention
}

// Key normalizes an address into its cache key.
func Key(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Stats summarizes the persisted cache contents.
type Stats struct {
	Fresh   int `json:"fresh"`
	Expired int `json:"expired"`
}

// Store is read-modify-write access to the persisted address cache.
type Store interface {
	// Load returns the persisted mapping with expired entries filtered
	// out. It never fails the caller: an absent, unreadable, or malformed
	// store yields an empty mapping.
	Load(ctx context.Context) map[string]Entry

	// Save overwrites the persisted mapping. Write failures are silently
	// ignored; expired rows are not written back.
	Save(ctx context.Context, entries map[string]Entry)

	// Stats counts fresh and expired persisted entries.
	Stats(ctx context.Context) (Stats, error)

	// Prune deletes expired entries and returns how many were removed.
	Prune(ctx context.Context) (int, error)

	Close() error
}

// Open creates a Store for the configured backend driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite", "":
		return NewSQLite(ctx, dsn)
	case "postgres":
		return NewPostgres(ctx, dsn)
	default:
		return nil, eris.Errorf("geocache: unknown driver %q", driver)
	}
}
