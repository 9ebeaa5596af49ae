package repository

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainRepo "github.com/goalforge/entitlement/internal/domain/repository"
)

func newRedisRepo(t *testing.T) domainRepo.CacheRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCacheRepository(client)
}

func TestRedisCacheRepository_EmptyEntry(t *testing.T) {
	repo := newRedisRepo(t)

	entry, err := repo.Entry(context.Background())
	require.NoError(t, err)
	assert.False(t, entry.SubscriptionActive)
	assert.Empty(t, entry.TrialStartISO)
	assert.False(t, entry.HasSeenPaywall)
	assert.Empty(t, entry.StatusMirror)
}

func TestRedisCacheRepository_RoundTrip(t *testing.T) {
	repo := newRedisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SetTrialStart(ctx, "2025-06-01T12:00:00Z"))
	require.NoError(t, repo.SetSubscriptionActive(ctx, true))
	require.NoError(t, repo.SetHasSeenPaywall(ctx, true))
	require.NoError(t, repo.SetStatusMirror(ctx, "premium"))

	entry, err := repo.Entry(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01T12:00:00Z", entry.TrialStartISO)
	assert.True(t, entry.SubscriptionActive)
	assert.True(t, entry.HasSeenPaywall)
	assert.Equal(t, "premium", entry.StatusMirror)

	require.NoError(t, repo.SetSubscriptionActive(ctx, false))
	entry, err = repo.Entry(ctx)
	require.NoError(t, err)
	assert.False(t, entry.SubscriptionActive)
}

func TestRedisCacheRepository_ClearTrialStart(t *testing.T) {
	repo := newRedisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SetTrialStart(ctx, "2025-06-01T12:00:00Z"))
	require.NoError(t, repo.ClearTrialStart(ctx))

	entry, err := repo.Entry(ctx)
	require.NoError(t, err)
	assert.Empty(t, entry.TrialStartISO)
}

func TestRedisCacheRepository_Reset(t *testing.T) {
	repo := newRedisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SetTrialStart(ctx, "2025-06-01T12:00:00Z"))
	require.NoError(t, repo.SetSubscriptionActive(ctx, true))
	require.NoError(t, repo.SetHasSeenPaywall(ctx, true))
	require.NoError(t, repo.SetStatusMirror(ctx, "premium"))

	require.NoError(t, repo.Reset(ctx))

	entry, err := repo.Entry(ctx)
	require.NoError(t, err)
	assert.False(t, entry.SubscriptionActive)
	assert.Empty(t, entry.TrialStartISO)
	assert.False(t, entry.HasSeenPaywall)
	assert.Empty(t, entry.StatusMirror)
}
