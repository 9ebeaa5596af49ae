package repository

import (
	"context"
	"sync"

	"github.com/goalforge/entitlement/internal/domain/entity"
	"github.com/goalforge/entitlement/internal/domain/repository"
)

// memoryCacheRepository keeps the cache in process memory. Used when no
// durable backing is configured, which only non-production environments allow.
type memoryCacheRepository struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryCacheRepository creates an in-memory entitlement cache
func NewMemoryCacheRepository() repository.CacheRepository {
	return &memoryCacheRepository{values: make(map[string]string)}
}

func (r *memoryCacheRepository) Entry(_ context.Context) (*entity.LocalCacheEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry := &entity.LocalCacheEntry{}
	for _, key := range repository.CacheKeys() {
		if value, ok := r.values[key]; ok {
			applyCacheField(entry, key, value)
		}
	}
	return entry, nil
}

func (r *memoryCacheRepository) SetTrialStart(_ context.Context, startISO string) error {
	return r.set(repository.KeyTrialStart, startISO)
}

func (r *memoryCacheRepository) ClearTrialStart(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.values, repository.KeyTrialStart)
	return nil
}

func (r *memoryCacheRepository) SetSubscriptionActive(_ context.Context, active bool) error {
	return r.set(repository.KeySubscriptionActive, boolString(active))
}

func (r *memoryCacheRepository) SetHasSeenPaywall(_ context.Context, seen bool) error {
	return r.set(repository.KeyHasSeenPaywall, boolString(seen))
}

func (r *memoryCacheRepository) SetStatusMirror(_ context.Context, status string) error {
	return r.set(repository.KeyStatusMirror, status)
}

func (r *memoryCacheRepository) Reset(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = make(map[string]string)
	return nil
}

func (r *memoryCacheRepository) set(key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
	return nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
