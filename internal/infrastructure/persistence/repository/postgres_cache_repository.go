package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/goalforge/entitlement/internal/domain/entity"
	"github.com/goalforge/entitlement/internal/domain/repository"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS entitlement_cache (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type postgresCacheRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCacheRepository creates a Postgres-backed entitlement cache
func NewPostgresCacheRepository(pool *pgxpool.Pool) repository.CacheRepository {
	return &postgresCacheRepository{pool: pool}
}

// EnsureSchema creates the cache table if it does not exist
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, cacheSchema); err != nil {
		return fmt.Errorf("failed to ensure cache schema: %w", err)
	}
	return nil
}

func (r *postgresCacheRepository) Entry(ctx context.Context) (*entity.LocalCacheEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT key, value FROM entitlement_cache WHERE key = ANY($1)`,
		repository.CacheKeys(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	defer rows.Close()

	entry := &entity.LocalCacheEntry{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan cache row: %w", err)
		}
		applyCacheField(entry, key, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	return entry, nil
}

func (r *postgresCacheRepository) SetTrialStart(ctx context.Context, startISO string) error {
	return r.set(ctx, repository.KeyTrialStart, startISO)
}

func (r *postgresCacheRepository) ClearTrialStart(ctx context.Context) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM entitlement_cache WHERE key = $1`, repository.KeyTrialStart)
	if err != nil {
		return fmt.Errorf("failed to clear trial start: %w", err)
	}
	return nil
}

func (r *postgresCacheRepository) SetSubscriptionActive(ctx context.Context, active bool) error {
	return r.set(ctx, repository.KeySubscriptionActive, strconv.FormatBool(active))
}

func (r *postgresCacheRepository) SetHasSeenPaywall(ctx context.Context, seen bool) error {
	return r.set(ctx, repository.KeyHasSeenPaywall, strconv.FormatBool(seen))
}

func (r *postgresCacheRepository) SetStatusMirror(ctx context.Context, status string) error {
	return r.set(ctx, repository.KeyStatusMirror, status)
}

func (r *postgresCacheRepository) Reset(ctx context.Context) error {
	// All keys clear atomically so a concurrent reader never sees a half reset.
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`DELETE FROM entitlement_cache WHERE key = ANY($1)`,
			repository.CacheKeys(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to reset cache: %w", err)
	}
	return nil
}

func (r *postgresCacheRepository) set(ctx context.Context, key, value string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO entitlement_cache (key, value, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = now()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

// applyCacheField maps a stored key/value pair onto the entry. Unparseable
// booleans read as false, matching the missing-key behavior.
func applyCacheField(entry *entity.LocalCacheEntry, key, value string) {
	switch key {
	case repository.KeyTrialStart:
		entry.TrialStartISO = value
	case repository.KeySubscriptionActive:
		entry.SubscriptionActive, _ = strconv.ParseBool(value)
	case repository.KeyHasSeenPaywall:
		entry.HasSeenPaywall, _ = strconv.ParseBool(value)
	case repository.KeyStatusMirror:
		entry.StatusMirror = value
	}
}
