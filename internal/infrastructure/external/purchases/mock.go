package purchases

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/goalforge/entitlement/internal/domain/entity"
	domainErrors "github.com/goalforge/entitlement/internal/domain/errors"
	"github.com/goalforge/entitlement/internal/domain/repository"
	"github.com/goalforge/entitlement/internal/domain/service"
	"github.com/goalforge/entitlement/internal/domain/valueobject"
)

// mockPackages is the static catalog the simulated platform sells.
var mockPackages = []entity.Package{
	{Identifier: "monthly", ProductID: "goalforge_premium_monthly", PriceString: "$9.99"},
	{Identifier: "annual", ProductID: "goalforge_premium_annual", PriceString: "$59.99"},
	{Identifier: "lifetime", ProductID: "goalforge_premium_lifetime", PriceString: "$149.99"},
}

// MockSource simulates the purchase platform for non-production environments.
// It holds no state of its own: the local cache written by the reconciler is
// the simulation's source of truth, so a purchase survives restarts and a
// full reset genuinely leaves nothing to restore. The cache is only ever
// read here; all writes stay with the reconciler.
type MockSource struct {
	cache          repository.CacheRepository
	entitlementKey string
	logger         *zap.Logger

	mu         sync.Mutex
	cancelNext bool
}

// NewMockSource creates a simulated purchase platform backed by the cache
func NewMockSource(cache repository.CacheRepository, entitlementKey string, logger *zap.Logger) *MockSource {
	return &MockSource{
		cache:          cache,
		entitlementKey: entitlementKey,
		logger:         logger,
	}
}

// CancelNextPurchase makes the next Purchase call report a user cancellation.
// Test hook for the dev surface.
func (m *MockSource) CancelNextPurchase() {
	m.mu.Lock()
	m.cancelNext = true
	m.mu.Unlock()
}

// Initialize always succeeds for the simulated platform
func (m *MockSource) Initialize(_ context.Context) bool {
	return true
}

// CustomerInfo reflects the cached subscription state back as a platform
// answer
func (m *MockSource) CustomerInfo(ctx context.Context) service.FetchResult {
	return m.reflectCache(ctx)
}

// Purchase simulates buying a product from the static catalog
func (m *MockSource) Purchase(_ context.Context, productID string) (*service.PurchaseOutcome, error) {
	m.mu.Lock()
	cancel := m.cancelNext
	m.cancelNext = false
	m.mu.Unlock()

	if cancel {
		m.logger.Debug("simulated purchase cancelled by user")
		return &service.PurchaseOutcome{Cancelled: true}, nil
	}

	pkg, ok := findPackage(productID)
	if !ok {
		return nil, domainErrors.ErrPurchaseFailed
	}

	return &service.PurchaseOutcome{
		Record:      entity.GrantedRecord(m.entitlementKey, pkg.ProductID),
		ProductID:   pkg.ProductID,
		PriceString: pkg.PriceString,
	}, nil
}

// Restore replays the cached subscription state. After a full reset the
// cache is empty, so there is genuinely nothing to restore.
func (m *MockSource) Restore(ctx context.Context) service.FetchResult {
	return m.reflectCache(ctx)
}

// Offerings lists the static catalog
func (m *MockSource) Offerings(_ context.Context) ([]entity.Package, error) {
	packages := make([]entity.Package, len(mockPackages))
	copy(packages, mockPackages)
	return packages, nil
}

// InvalidateCache is a no-op for the simulated platform
func (m *MockSource) InvalidateCache(_ context.Context) error {
	return nil
}

// ForceSync behaves like CustomerInfo; there is no platform cache to bypass
func (m *MockSource) ForceSync(ctx context.Context) service.FetchResult {
	return m.reflectCache(ctx)
}

func (m *MockSource) reflectCache(ctx context.Context) service.FetchResult {
	entry, err := m.cache.Entry(ctx)
	if err != nil {
		return service.Unavailable(err)
	}

	premium := entry.SubscriptionActive ||
		entry.StatusMirror == string(valueobject.StatusPremium)
	if !premium {
		return service.Ok(&entity.EntitlementRecord{})
	}

	return service.Ok(entity.GrantedRecord(m.entitlementKey, mockPackages[0].ProductID))
}

func findPackage(productID string) (entity.Package, bool) {
	for _, pkg := range mockPackages {
		if pkg.ProductID == productID || pkg.Identifier == productID {
			return pkg, true
		}
	}
	return entity.Package{}, false
}
