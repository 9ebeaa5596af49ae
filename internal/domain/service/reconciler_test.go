package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goalforge/entitlement/internal/domain/entity"
	domainErrors "github.com/goalforge/entitlement/internal/domain/errors"
	"github.com/goalforge/entitlement/internal/domain/valueobject"
)

// fakeClock is a manually advanced clock shared with the reconciler.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeCache is an in-memory CacheRepository that records write order.
type fakeCache struct {
	mu     sync.Mutex
	entry  entity.LocalCacheEntry
	writes []string
	fail   bool
}

func (c *fakeCache) Entry(context.Context) (*entity.LocalCacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, errors.New("cache down")
	}
	entry := c.entry
	return &entry, nil
}

func (c *fakeCache) write(name string, apply func(*entity.LocalCacheEntry)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("cache down")
	}
	c.writes = append(c.writes, name)
	apply(&c.entry)
	return nil
}

func (c *fakeCache) SetTrialStart(_ context.Context, iso string) error {
	return c.write("trial_start", func(e *entity.LocalCacheEntry) { e.TrialStartISO = iso })
}

func (c *fakeCache) ClearTrialStart(context.Context) error {
	return c.write("clear_trial_start", func(e *entity.LocalCacheEntry) { e.TrialStartISO = "" })
}

func (c *fakeCache) SetSubscriptionActive(_ context.Context, active bool) error {
	return c.write("subscription_active", func(e *entity.LocalCacheEntry) { e.SubscriptionActive = active })
}

func (c *fakeCache) SetHasSeenPaywall(_ context.Context, seen bool) error {
	return c.write("has_seen_paywall", func(e *entity.LocalCacheEntry) { e.HasSeenPaywall = seen })
}

func (c *fakeCache) SetStatusMirror(_ context.Context, status string) error {
	return c.write("status_mirror", func(e *entity.LocalCacheEntry) { e.StatusMirror = status })
}

func (c *fakeCache) Reset(context.Context) error {
	return c.write("reset", func(e *entity.LocalCacheEntry) { *e = entity.LocalCacheEntry{} })
}

func (c *fakeCache) snapshot() entity.LocalCacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry
}

// fakeRemote is a scriptable RemoteSource.
type fakeRemote struct {
	initOK      bool
	info        FetchResult
	sync        FetchResult
	restore     FetchResult
	purchase    *PurchaseOutcome
	purchaseErr error
	offerings   []entity.Package
}

func (r *fakeRemote) Initialize(context.Context) bool          { return r.initOK }
func (r *fakeRemote) CustomerInfo(context.Context) FetchResult { return r.info }
func (r *fakeRemote) Purchase(context.Context, string) (*PurchaseOutcome, error) {
	return r.purchase, r.purchaseErr
}
func (r *fakeRemote) Restore(context.Context) FetchResult { return r.restore }
func (r *fakeRemote) Offerings(context.Context) ([]entity.Package, error) {
	return r.offerings, nil
}
func (r *fakeRemote) InvalidateCache(context.Context) error { return nil }
func (r *fakeRemote) ForceSync(context.Context) FetchResult { return r.sync }

// recordSink captures emitted events.
type recordSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordSink) Emit(_ context.Context, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordSink) ofType(t EventType) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	clock  *fakeClock
	cache  *fakeCache
	remote *fakeRemote
	sink   *recordSink
	rec    *Reconciler
}

func newFixture(t *testing.T, env valueobject.Environment) *fixture {
	t.Helper()
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	cache := &fakeCache{}
	remote := &fakeRemote{
		initOK:  true,
		info:    Unavailable(errors.New("offline")),
		sync:    Unavailable(errors.New("offline")),
		restore: Unavailable(errors.New("offline")),
	}
	sink := &recordSink{}
	rec := NewReconciler(env, cache, remote, sink, zap.NewNop(), ReconcilerConfig{
		// A very long re-evaluation interval keeps the background ticker from
		// interfering with manually advanced clocks.
		ReevalInterval: time.Hour,
		Clock:          clock.Now,
	})
	t.Cleanup(rec.Close)
	return &fixture{clock: clock, cache: cache, remote: remote, sink: sink, rec: rec}
}

func TestHydrate_FreshInstallOffline(t *testing.T) {
	f := newFixture(t, valueobject.EnvSandbox)

	assert.Equal(t, valueobject.StatusLoading, f.rec.Status())
	require.NoError(t, f.rec.Hydrate(context.Background()))

	assert.Equal(t, valueobject.StatusFree, f.rec.Status())

	snap := f.rec.Snapshot()
	assert.False(t, snap.IsPremium)
	assert.False(t, snap.IsTrialActive)
	assert.False(t, snap.IsTrialExpired)
	assert.True(t, snap.ShouldShowOffer)
	assert.False(t, snap.ShouldBlockPremiumFeatures)

	table := f.rec.FeatureAccess()
	assert.False(t, table.AIGoalGeneration)
	assert.True(t, table.BasicTasks)
}

func TestHydrate_RemoteInitFailure(t *testing.T) {
	t.Run("production surfaces the error once", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvProduction)
		f.remote.initOK = false

		err := f.rec.Hydrate(context.Background())
		assert.ErrorIs(t, err, domainErrors.ErrRemoteInitFailed)
		// Status still settles on the local derivation.
		assert.Equal(t, valueobject.StatusFree, f.rec.Status())

		// A second hydration does not re-raise.
		assert.NoError(t, f.rec.Hydrate(context.Background()))
	})

	t.Run("non-production substitutes silently", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvDevRuntime)
		f.remote.initOK = false
		assert.NoError(t, f.rec.Hydrate(context.Background()))
		assert.Equal(t, valueobject.StatusFree, f.rec.Status())
	})
}

func TestHydrate_BrokenCacheReadsAsFirstInstall(t *testing.T) {
	f := newFixture(t, valueobject.EnvSandbox)
	f.cache.fail = true

	require.NoError(t, f.rec.Hydrate(context.Background()))
	assert.Equal(t, valueobject.StatusFree, f.rec.Status())
}

func TestStartTrial(t *testing.T) {
	ctx := context.Background()

	t.Run("requires hydration", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		assert.ErrorIs(t, f.rec.StartTrial(ctx, "paywall"), domainErrors.ErrNotHydrated)
	})

	t.Run("activates and persists before publishing", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		require.NoError(t, f.rec.Hydrate(ctx))

		require.NoError(t, f.rec.StartTrial(ctx, "paywall"))
		assert.Equal(t, valueobject.StatusTrial, f.rec.Status())

		entry := f.cache.snapshot()
		assert.NotEmpty(t, entry.TrialStartISO)
		assert.True(t, entry.HasSeenPaywall)
		assert.Equal(t, "trial", entry.StatusMirror)

		snap := f.rec.Snapshot()
		assert.True(t, snap.IsTrialActive)
		assert.Equal(t, int64(24*time.Hour/time.Millisecond), snap.TrialRemainingMs)
		assert.False(t, snap.ShouldShowOffer)

		events := f.sink.ofType(EventTrialStarted)
		require.Len(t, events, 1)
		assert.Equal(t, "paywall", events[0].Source)
	})

	t.Run("second call is a no-op", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		require.NoError(t, f.rec.Hydrate(ctx))
		require.NoError(t, f.rec.StartTrial(ctx, "paywall"))

		first := f.cache.snapshot().TrialStartISO
		f.clock.Advance(2 * time.Hour)
		require.NoError(t, f.rec.StartTrial(ctx, "settings"))

		assert.Equal(t, first, f.cache.snapshot().TrialStartISO)
		assert.Len(t, f.sink.ofType(EventTrialStarted), 1)
	})
}

func TestTrialExpiry(t *testing.T) {
	ctx := context.Background()

	t.Run("expiry fires exactly once", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		require.NoError(t, f.rec.Hydrate(ctx))
		require.NoError(t, f.rec.StartTrial(ctx, "paywall"))

		f.clock.Advance(24*time.Hour + time.Millisecond)
		f.rec.Reevaluate(ctx)

		assert.Equal(t, valueobject.StatusFree, f.rec.Status())
		assert.Len(t, f.sink.ofType(EventTrialExpired), 1)

		// Further re-evaluations past expiry stay silent.
		f.clock.Advance(time.Hour)
		f.rec.Reevaluate(ctx)
		f.clock.Advance(time.Hour)
		f.rec.Reevaluate(ctx)
		assert.Len(t, f.sink.ofType(EventTrialExpired), 1)

		snap := f.rec.Snapshot()
		assert.True(t, snap.IsTrialExpired)
		assert.False(t, snap.IsTrialActive)
		assert.True(t, snap.ShouldBlockPremiumFeatures)
		assert.Zero(t, snap.TrialRemainingMs)
	})

	t.Run("expiry from a previous session does not fire", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		stale := f.clock.Now().Add(-48 * time.Hour).Format(time.RFC3339)
		f.cache.entry = entity.LocalCacheEntry{TrialStartISO: stale, HasSeenPaywall: true}

		require.NoError(t, f.rec.Hydrate(ctx))
		f.rec.Reevaluate(ctx)

		assert.Equal(t, valueobject.StatusFree, f.rec.Status())
		assert.Empty(t, f.sink.ofType(EventTrialExpired))
	})

	t.Run("unexpired trial survives a restart", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		require.NoError(t, f.rec.Hydrate(ctx))
		require.NoError(t, f.rec.StartTrial(ctx, "paywall"))
		f.rec.Close()

		f.clock.Advance(6 * time.Hour)
		rec2 := NewReconciler(valueobject.EnvSandbox, f.cache, f.remote, f.sink, zap.NewNop(), ReconcilerConfig{
			ReevalInterval: time.Hour,
			Clock:          f.clock.Now,
		})
		defer rec2.Close()

		require.NoError(t, rec2.Hydrate(ctx))
		assert.Equal(t, valueobject.StatusTrial, rec2.Status())
		assert.Equal(t, int64(18*time.Hour/time.Millisecond), rec2.Snapshot().TrialRemainingMs)
	})
}

func TestCheckStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("active entitlement wins over trial", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		require.NoError(t, f.rec.Hydrate(ctx))
		require.NoError(t, f.rec.StartTrial(ctx, "paywall"))

		f.remote.info = Ok(entity.GrantedRecord("premium", "goalforge_premium_annual"))
		require.NoError(t, f.rec.CheckStatus(ctx))

		assert.Equal(t, valueobject.StatusPremium, f.rec.Status())
		entry := f.cache.snapshot()
		assert.True(t, entry.SubscriptionActive)
		assert.Empty(t, entry.TrialStartISO, "premium supersedes trial bookkeeping")
	})

	t.Run("explicit empty clears premium and falls back to trial", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		start := f.clock.Now().Add(-time.Hour).Format(time.RFC3339)
		f.cache.entry = entity.LocalCacheEntry{
			SubscriptionActive: true,
			TrialStartISO:      start,
			HasSeenPaywall:     true,
		}
		require.NoError(t, f.rec.Hydrate(ctx))
		assert.Equal(t, valueobject.StatusPremium, f.rec.Status())

		f.remote.info = Ok(&entity.EntitlementRecord{})
		require.NoError(t, f.rec.CheckStatus(ctx))

		assert.Equal(t, valueobject.StatusTrial, f.rec.Status())
		assert.False(t, f.cache.snapshot().SubscriptionActive)
	})

	t.Run("explicit empty without trial falls to free", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		f.cache.entry = entity.LocalCacheEntry{SubscriptionActive: true, HasSeenPaywall: true}
		require.NoError(t, f.rec.Hydrate(ctx))

		f.remote.info = Ok(&entity.EntitlementRecord{})
		require.NoError(t, f.rec.CheckStatus(ctx))
		assert.Equal(t, valueobject.StatusFree, f.rec.Status())
	})

	t.Run("failure never downgrades local premium", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		f.cache.entry = entity.LocalCacheEntry{SubscriptionActive: true, HasSeenPaywall: true}
		require.NoError(t, f.rec.Hydrate(ctx))

		f.remote.info = Failed(errors.New("HTTP 500"))
		require.NoError(t, f.rec.CheckStatus(ctx))
		assert.Equal(t, valueobject.StatusPremium, f.rec.Status())

		f.remote.info = Unavailable(errors.New("offline"))
		require.NoError(t, f.rec.CheckStatus(ctx))
		assert.Equal(t, valueobject.StatusPremium, f.rec.Status())
	})
}

func TestPurchase(t *testing.T) {
	ctx := context.Background()

	t.Run("empty product id is invalid", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		require.NoError(t, f.rec.Hydrate(ctx))
		_, err := f.rec.Purchase(ctx, "")
		assert.ErrorIs(t, err, domainErrors.ErrInvalidInput)
	})

	t.Run("success persists premium and builds a receipt", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		require.NoError(t, f.rec.Hydrate(ctx))
		require.NoError(t, f.rec.StartTrial(ctx, "paywall"))

		f.remote.purchase = &PurchaseOutcome{
			Record:      entity.GrantedRecord("premium", "goalforge_premium_annual"),
			ProductID:   "goalforge_premium_annual",
			PriceString: "$59.99",
		}

		receipt, err := f.rec.Purchase(ctx, "goalforge_premium_annual")
		require.NoError(t, err)
		require.NotNil(t, receipt)

		assert.Equal(t, "Yearly Plan", receipt.PlanName)
		assert.Equal(t, valueobject.PlanAnnual, receipt.PlanType)
		assert.Equal(t, "$59.99", receipt.PriceString)
		assert.Equal(t, f.clock.Now().AddDate(1, 0, 0), receipt.NextBillingDate)

		assert.Equal(t, valueobject.StatusPremium, f.rec.Status())
		entry := f.cache.snapshot()
		assert.True(t, entry.SubscriptionActive)
		assert.Empty(t, entry.TrialStartISO)
		require.Len(t, f.sink.ofType(EventPurchaseComplete), 1)
	})

	t.Run("lifetime receipt has no next billing date", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		require.NoError(t, f.rec.Hydrate(ctx))

		f.remote.purchase = &PurchaseOutcome{
			Record:      entity.GrantedRecord("premium", "goalforge_premium_lifetime"),
			ProductID:   "goalforge_premium_lifetime",
			PriceString: "$149.99",
		}
		receipt, err := f.rec.Purchase(ctx, "goalforge_premium_lifetime")
		require.NoError(t, err)
		assert.True(t, receipt.NextBillingDate.IsZero())
	})

	t.Run("cancellation is silent", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		require.NoError(t, f.rec.Hydrate(ctx))

		f.remote.purchase = &PurchaseOutcome{Cancelled: true}
		receipt, err := f.rec.Purchase(ctx, "goalforge_premium_monthly")
		assert.NoError(t, err)
		assert.Nil(t, receipt)

		assert.Equal(t, valueobject.StatusFree, f.rec.Status())
		assert.Empty(t, f.sink.ofType(EventPurchaseComplete))
	})

	t.Run("platform failure surfaces as purchase error", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		require.NoError(t, f.rec.Hydrate(ctx))

		f.remote.purchaseErr = errors.New("store timeout")
		_, err := f.rec.Purchase(ctx, "goalforge_premium_monthly")
		assert.ErrorIs(t, err, domainErrors.ErrPurchaseFailed)
		assert.Equal(t, valueobject.StatusFree, f.rec.Status())
	})
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("restores an active entitlement", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		require.NoError(t, f.rec.Hydrate(ctx))

		f.remote.restore = Ok(entity.GrantedRecord("premium", "goalforge_premium_monthly"))
		restored, err := f.rec.Restore(ctx)
		require.NoError(t, err)
		assert.True(t, restored)
		assert.Equal(t, valueobject.StatusPremium, f.rec.Status())
		assert.Len(t, f.sink.ofType(EventRestoreComplete), 1)
	})

	t.Run("nothing to restore is not an error", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		require.NoError(t, f.rec.Hydrate(ctx))

		f.remote.restore = Ok(&entity.EntitlementRecord{})
		restored, err := f.rec.Restore(ctx)
		assert.NoError(t, err)
		assert.False(t, restored)
		assert.Equal(t, valueobject.StatusFree, f.rec.Status())
	})

	t.Run("unreachable platform reports false without failing", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		require.NoError(t, f.rec.Hydrate(ctx))

		restored, err := f.rec.Restore(ctx)
		assert.NoError(t, err)
		assert.False(t, restored)
	})
}

func TestForceRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("authoritative answer applies and reports synced", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		require.NoError(t, f.rec.Hydrate(ctx))

		f.remote.sync = Ok(entity.GrantedRecord("premium", "goalforge_premium_monthly"))
		synced, err := f.rec.ForceRefresh(ctx, true)
		require.NoError(t, err)
		assert.True(t, synced)
		assert.Equal(t, valueobject.StatusPremium, f.rec.Status())
	})

	t.Run("unreachable platform keeps local state", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		f.cache.entry = entity.LocalCacheEntry{SubscriptionActive: true, HasSeenPaywall: true}
		require.NoError(t, f.rec.Hydrate(ctx))

		synced, err := f.rec.ForceRefresh(ctx, false)
		require.NoError(t, err)
		assert.False(t, synced)
		assert.Equal(t, valueobject.StatusPremium, f.rec.Status())
	})
}

func TestDevSurface(t *testing.T) {
	ctx := context.Background()

	t.Run("gated outside non-production", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvProduction)
		require.NoError(t, f.rec.Hydrate(ctx))

		assert.ErrorIs(t, f.rec.FullReset(ctx), domainErrors.ErrDevOnly)
		assert.ErrorIs(t, f.rec.DevCancelSubscription(ctx), domainErrors.ErrDevOnly)
		assert.ErrorIs(t, f.rec.DevExpireTrial(ctx), domainErrors.ErrDevOnly)
	})

	t.Run("full reset returns to first-install state", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		require.NoError(t, f.rec.Hydrate(ctx))

		f.remote.purchase = &PurchaseOutcome{
			Record:    entity.GrantedRecord("premium", "goalforge_premium_monthly"),
			ProductID: "goalforge_premium_monthly",
		}
		_, err := f.rec.Purchase(ctx, "goalforge_premium_monthly")
		require.NoError(t, err)
		require.Equal(t, valueobject.StatusPremium, f.rec.Status())

		require.NoError(t, f.rec.FullReset(ctx))

		assert.Equal(t, valueobject.StatusFree, f.rec.Status())
		// Every persisted key is empty after the reset, including the mirror.
		assert.Equal(t, entity.LocalCacheEntry{}, f.cache.snapshot())
		assert.True(t, f.rec.Snapshot().ShouldShowOffer)
	})

	t.Run("cancel subscription falls back to trial when one runs", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		require.NoError(t, f.rec.Hydrate(ctx))
		require.NoError(t, f.rec.StartTrial(ctx, "paywall"))

		f.remote.info = Ok(entity.GrantedRecord("premium", "goalforge_premium_monthly"))
		require.NoError(t, f.rec.CheckStatus(ctx))
		require.Equal(t, valueobject.StatusPremium, f.rec.Status())

		// Premium cleared the trial bookkeeping, so cancel lands on free.
		require.NoError(t, f.rec.DevCancelSubscription(ctx))
		assert.Equal(t, valueobject.StatusFree, f.rec.Status())
	})

	t.Run("expire trial forces the expiry transition", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		require.NoError(t, f.rec.Hydrate(ctx))
		require.NoError(t, f.rec.StartTrial(ctx, "paywall"))

		require.NoError(t, f.rec.DevExpireTrial(ctx))
		assert.Equal(t, valueobject.StatusFree, f.rec.Status())
		assert.Len(t, f.sink.ofType(EventTrialExpired), 1)
		assert.True(t, f.rec.Snapshot().IsTrialExpired)
	})

	t.Run("expire trial without a trial is a no-op", func(t *testing.T) {
		f := newFixture(t, valueobject.EnvSandbox)
		require.NoError(t, f.rec.Hydrate(ctx))
		require.NoError(t, f.rec.DevExpireTrial(ctx))
		assert.Equal(t, valueobject.StatusFree, f.rec.Status())
	})
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, valueobject.EnvSandbox)

	ch := f.rec.Subscribe()
	require.NoError(t, f.rec.Hydrate(ctx))
	require.NoError(t, f.rec.StartTrial(ctx, "paywall"))

	var seen []valueobject.SubscriptionStatus
	for len(ch) > 0 {
		seen = append(seen, <-ch)
	}
	assert.Equal(t, []valueobject.SubscriptionStatus{valueobject.StatusFree, valueobject.StatusTrial}, seen)
}

func TestOfferings(t *testing.T) {
	f := newFixture(t, valueobject.EnvSandbox)
	f.remote.offerings = []entity.Package{{Identifier: "monthly", ProductID: "goalforge_premium_monthly", PriceString: "$9.99"}}
	packages := f.rec.Offerings(context.Background())
	require.Len(t, packages, 1)
	assert.Equal(t, "goalforge_premium_monthly", packages[0].ProductID)
}
