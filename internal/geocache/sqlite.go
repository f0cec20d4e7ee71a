package geocache

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single local database file, the durable
// local storage backing a standalone deployment.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	address   TEXT PRIMARY KEY,
	latitude  REAL NOT NULL,
	longitude REAL NOT NULL,
	cached_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_geocode_cache_cached_at ON geocode_cache(cached_at);
`

// NewSQLite opens the database at the given path, configures WAL mode, and
// applies the schema.
func NewSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "geocache: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "geocache: sqlite exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteMigration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "geocache: sqlite migrate")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load implements Store. Read failures degrade to an empty mapping.
func (s *SQLiteStore) Load(ctx context.Context) map[string]Entry {
	entries := make(map[string]Entry)
	cutoff := time.Now().UTC().Add(-Retention)

	rows, err := s.db.QueryContext(ctx,
		`SELECT address, latitude, longitude, cached_at FROM geocode_cache WHERE cached_at > ?`,
		cutoff,
	)
	if err != nil {
		zap.L().Debug("geocache: sqlite load failed, starting empty", zap.Error(err))
		return entries
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var e Entry
		if err := rows.Scan(&key, &e.Lat, &e.Lng, &e.CachedAt); err != nil {
			zap.L().Debug("geocache: sqlite scan failed, skipping entry", zap.Error(err))
			continue
		}
		entries[key] = e
	}
	if err := rows.Err(); err != nil {
		zap.L().Debug("geocache: sqlite load iteration failed", zap.Error(err))
	}
	return entries
}

// Save implements Store. Expired entries are not written back, and expired
// persisted rows are removed in the same transaction.
func (s *SQLiteStore) Save(ctx context.Context, entries map[string]Entry) {
	now := time.Now().UTC()
	cutoff := now.Add(-Retention)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		zap.L().Debug("geocache: sqlite save begin failed", zap.Error(err))
		return
	}
	defer tx.Rollback() //nolint:errcheck

	for key, e := range entries {
		if !e.Fresh(now) {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO geocode_cache (address, latitude, longitude, cached_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (address) DO UPDATE SET
				latitude = excluded.latitude,
				longitude = excluded.longitude,
				cached_at = excluded.cached_at`,
			key, e.Lat, e.Lng, e.CachedAt.UTC(),
		); err != nil {
			zap.L().Debug("geocache: sqlite upsert failed", zap.String("key", key), zap.Error(err))
			return
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM geocode_cache WHERE cached_at <= ?`, cutoff,
	); err != nil {
		zap.L().Debug("geocache: sqlite expiry sweep failed", zap.Error(err))
		return
	}

	if err := tx.Commit(); err != nil {
		zap.L().Debug("geocache: sqlite save commit failed", zap.Error(err))
	}
}

// Stats implements Store.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	cutoff := time.Now().UTC().Add(-Retention)

	var st Stats
	row := s.db.QueryRowContext(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE cached_at > ?),
			COUNT(*) FILTER (WHERE cached_at <= ?)
		 FROM geocode_cache`,
		cutoff, cutoff,
	)
	if err := row.Scan(&st.Fresh, &st.Expired); err != nil {
		return Stats{}, eris.Wrap(err, "geocache: sqlite stats")
	}
	return st, nil
}

// Prune implements Store.
func (s *SQLiteStore) Prune(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-Retention)

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM geocode_cache WHERE cached_at <= ?`, cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "geocache: sqlite prune")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "geocache: sqlite rows affected")
}
