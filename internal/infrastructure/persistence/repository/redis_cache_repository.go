package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/goalforge/entitlement/internal/domain/entity"
	"github.com/goalforge/entitlement/internal/domain/repository"
)

type redisCacheRepository struct {
	client *redis.Client
}

// NewRedisCacheRepository creates a Redis-backed entitlement cache
func NewRedisCacheRepository(client *redis.Client) repository.CacheRepository {
	return &redisCacheRepository{client: client}
}

func (r *redisCacheRepository) Entry(ctx context.Context) (*entity.LocalCacheEntry, error) {
	keys := repository.CacheKeys()
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	entry := &entity.LocalCacheEntry{}
	for i, raw := range values {
		value, ok := raw.(string)
		if !ok {
			continue // missing key reads as zero value
		}
		applyCacheField(entry, keys[i], value)
	}

	return entry, nil
}

func (r *redisCacheRepository) SetTrialStart(ctx context.Context, startISO string) error {
	return r.set(ctx, repository.KeyTrialStart, startISO)
}

func (r *redisCacheRepository) ClearTrialStart(ctx context.Context) error {
	if err := r.client.Del(ctx, repository.KeyTrialStart).Err(); err != nil {
		return fmt.Errorf("failed to clear trial start: %w", err)
	}
	return nil
}

func (r *redisCacheRepository) SetSubscriptionActive(ctx context.Context, active bool) error {
	return r.set(ctx, repository.KeySubscriptionActive, strconv.FormatBool(active))
}

func (r *redisCacheRepository) SetHasSeenPaywall(ctx context.Context, seen bool) error {
	return r.set(ctx, repository.KeyHasSeenPaywall, strconv.FormatBool(seen))
}

func (r *redisCacheRepository) SetStatusMirror(ctx context.Context, status string) error {
	return r.set(ctx, repository.KeyStatusMirror, status)
}

func (r *redisCacheRepository) Reset(ctx context.Context) error {
	if err := r.client.Del(ctx, repository.CacheKeys()...).Err(); err != nil {
		return fmt.Errorf("failed to reset cache: %w", err)
	}
	return nil
}

func (r *redisCacheRepository) set(ctx context.Context, key, value string) error {
	// No TTL: the entitlement cache is the offline fallback and must survive
	// arbitrarily long gaps between launches.
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}
