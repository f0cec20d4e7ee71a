package geocache

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Pool is the subset of pgxpool.Pool the postgres backend needs. pgxmock
// satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store on a shared postgres database, for
// deployments where several embed servers share one geocode cache.
type PostgresStore struct {
	pool Pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	address   TEXT PRIMARY KEY,
	latitude  DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	cached_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_geocode_cache_cached_at ON geocode_cache(cached_at);
`

// NewPostgres creates a PostgresStore with a connection pool and applies the
// schema.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "geocache: postgres create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "geocache: postgres ping")
	}
	s := &PostgresStore{pool: pool}
	if _, err := pool.Exec(ctx, postgresMigration); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "geocache: postgres migrate")
	}
	return s, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Load implements Store. Read failures degrade to an empty mapping.
func (s *PostgresStore) Load(ctx context.Context) map[string]Entry {
	entries := make(map[string]Entry)
	cutoff := time.Now().UTC().Add(-Retention)

	rows, err := s.pool.Query(ctx,
		`SELECT address, latitude, longitude, cached_at FROM geocode_cache WHERE cached_at > $1`,
		cutoff,
	)
	if err != nil {
		zap.L().Debug("geocache: postgres load failed, starting empty", zap.Error(err))
		return entries
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var e Entry
		if err := rows.Scan(&key, &e.Lat, &e.Lng, &e.CachedAt); err != nil {
			zap.L().Debug("geocache: postgres scan failed, skipping entry", zap.Error(err))
			continue
		}
		entries[key] = e
	}
	if err := rows.Err(); err != nil {
		zap.L().Debug("geocache: postgres load iteration failed", zap.Error(err))
	}
	return entries
}

// Save implements Store. Expired entries are not written back.
func (s *PostgresStore) Save(ctx context.Context, entries map[string]Entry) {
	now := time.Now().UTC()

	for key, e := range entries {
		if !e.Fresh(now) {
			continue
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO geocode_cache (address, latitude, longitude, cached_at) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (address) DO UPDATE SET
				latitude = EXCLUDED.latitude,
				longitude = EXCLUDED.longitude,
				cached_at = EXCLUDED.cached_at`,
			key, e.Lat, e.Lng, e.CachedAt.UTC(),
		); err != nil {
			zap.L().Debug("geocache: postgres upsert failed", zap.String("key", key), zap.Error(err))
			return
		}
	}

	if _, err := s.pool.Exec(ctx,
		`DELETE FROM geocode_cache WHERE cached_at <= $1`, now.Add(-Retention),
	); err != nil {
		zap.L().Debug("geocache: postgres expiry sweep failed", zap.Error(err))
	}
}

// Stats implements Store.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	cutoff := time.Now().UTC().Add(-Retention)

	var st Stats
	row := s.pool.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE cached_at > $1),
			COUNT(*) FILTER (WHERE cached_at <= $1)
		 FROM geocode_cache`,
		cutoff,
	)
	if err := row.Scan(&st.Fresh, &st.Expired); err != nil {
		return Stats{}, eris.Wrap(err, "geocache: postgres stats")
	}
	return st, nil
}

// Prune implements Store.
func (s *PostgresStore) Prune(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-Retention)

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM geocode_cache WHERE cached_at <= $1`, cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "geocache: postgres prune")
	}
	return int(tag.RowsAffected()), nil
}
