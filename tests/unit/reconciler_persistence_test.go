package unit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goalforge/entitlement/internal/domain/entity"
	"github.com/goalforge/entitlement/internal/domain/service"
	"github.com/goalforge/entitlement/internal/domain/valueobject"
	"github.com/goalforge/entitlement/tests/mocks"
)

func newMockedReconciler(t *testing.T, cache *mocks.MockCacheRepository, remote *mocks.MockRemoteSource) *service.Reconciler {
	t.Helper()
	rec := service.NewReconciler(valueobject.EnvSandbox, cache, remote, nil, zap.NewNop(), service.ReconcilerConfig{})
	t.Cleanup(rec.Close)
	return rec
}

func TestStartTrial_CacheWriteFailureBlocksTransition(t *testing.T) {
	ctx := context.Background()

	cache := mocks.NewMockCacheRepository()
	remote := mocks.NewMockRemoteSource()

	cache.On("Entry", mock.Anything).Return(&entity.LocalCacheEntry{}, nil)
	cache.On("SetStatusMirror", mock.Anything, "free").Return(nil)
	remote.On("Initialize", mock.Anything).Return(true)

	rec := newMockedReconciler(t, cache, remote)
	require.NoError(t, rec.Hydrate(ctx))
	require.Equal(t, valueobject.StatusFree, rec.Status())

	// The trial start write fails, so the status must not move.
	cache.On("SetTrialStart", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	err := rec.StartTrial(ctx, "paywall")
	assert.Error(t, err)
	assert.Equal(t, valueobject.StatusFree, rec.Status())

	cache.AssertNotCalled(t, "SetHasSeenPaywall", mock.Anything, mock.Anything)
	cache.AssertExpectations(t)
}

func TestCheckStatus_PremiumWritesCompleteBeforePublish(t *testing.T) {
	ctx := context.Background()

	cache := mocks.NewMockCacheRepository()
	remote := mocks.NewMockRemoteSource()

	var order []string
	record := func(name string) func(mock.Arguments) {
		return func(mock.Arguments) { order = append(order, name) }
	}

	cache.On("Entry", mock.Anything).Return(&entity.LocalCacheEntry{}, nil)
	cache.On("SetStatusMirror", mock.Anything, "free").Return(nil)
	remote.On("Initialize", mock.Anything).Return(true)

	cache.On("SetSubscriptionActive", mock.Anything, true).Run(record("subscription_active")).Return(nil)
	cache.On("ClearTrialStart", mock.Anything).Run(record("clear_trial_start")).Return(nil)
	cache.On("SetHasSeenPaywall", mock.Anything, true).Run(record("has_seen_paywall")).Return(nil)
	cache.On("SetStatusMirror", mock.Anything, "premium").Run(record("status_mirror")).Return(nil)

	remote.On("CustomerInfo", mock.Anything).
		Return(service.Ok(entity.GrantedRecord("premium", "goalforge_premium_monthly")))

	rec := newMockedReconciler(t, cache, remote)
	require.NoError(t, rec.Hydrate(ctx))
	require.NoError(t, rec.CheckStatus(ctx))

	assert.Equal(t, valueobject.StatusPremium, rec.Status())
	// Durable writes land before the mirror (and therefore the publication).
	assert.Equal(t, []string{"subscription_active", "clear_trial_start", "has_seen_paywall", "status_mirror"}, order)
	cache.AssertExpectations(t)
	remote.AssertExpectations(t)
}

func TestCheckStatus_PersistFailureSurfaces(t *testing.T) {
	ctx := context.Background()

	cache := mocks.NewMockCacheRepository()
	remote := mocks.NewMockRemoteSource()

	cache.On("Entry", mock.Anything).Return(&entity.LocalCacheEntry{}, nil)
	cache.On("SetStatusMirror", mock.Anything, "free").Return(nil)
	remote.On("Initialize", mock.Anything).Return(true)

	cache.On("SetSubscriptionActive", mock.Anything, true).Return(errors.New("disk full"))
	remote.On("CustomerInfo", mock.Anything).
		Return(service.Ok(entity.GrantedRecord("premium", "goalforge_premium_monthly")))

	rec := newMockedReconciler(t, cache, remote)
	require.NoError(t, rec.Hydrate(ctx))

	err := rec.CheckStatus(ctx)
	assert.Error(t, err)
	// Without the durable write the published status must not claim premium.
	assert.Equal(t, valueobject.StatusFree, rec.Status())
}
