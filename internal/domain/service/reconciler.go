package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goalforge/entitlement/internal/domain/entity"
	domainErrors "github.com/goalforge/entitlement/internal/domain/errors"
	"github.com/goalforge/entitlement/internal/domain/repository"
	"github.com/goalforge/entitlement/internal/domain/valueobject"
)

// ReconcilerConfig tunes the reconciler. Zero values fall back to defaults.
type ReconcilerConfig struct {
	// EntitlementKey is the business entitlement gating paid features.
	EntitlementKey string
	// TrialDuration is the trial window, 24h by default.
	TrialDuration time.Duration
	// ReevalInterval is the trial re-evaluation cadence, one minute by default.
	ReevalInterval time.Duration
	// Clock supplies the current time; overridable in tests.
	Clock func() time.Time
}

func (c *ReconcilerConfig) applyDefaults() {
	if c.EntitlementKey == "" {
		c.EntitlementKey = entity.EntitlementPremium
	}
	if c.TrialDuration <= 0 {
		c.TrialDuration = entity.DefaultTrialDuration
	}
	if c.ReevalInterval <= 0 {
		c.ReevalInterval = time.Minute
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// StatusSnapshot is the read model exposed to the rest of the app.
type StatusSnapshot struct {
	Status                     valueobject.SubscriptionStatus `json:"status"`
	IsPremium                  bool                           `json:"is_premium"`
	IsTrialActive              bool                           `json:"is_trial_active"`
	IsTrialExpired             bool                           `json:"is_trial_expired"`
	TrialExpiresAt             *time.Time                     `json:"trial_expires_at,omitempty"`
	TrialRemainingMs           int64                          `json:"trial_remaining_ms"`
	ShouldShowOffer            bool                           `json:"should_show_offer"`
	ShouldBlockPremiumFeatures bool                           `json:"should_block_premium_features"`
}

// Reconciler merges local cache, trial clock and remote entitlement truth into
// one subscription status. It is the only writer of the local cache; cache
// writes that belong to a transition complete before the new status is
// published, so a restart immediately after a transition never forgets it.
type Reconciler struct {
	cfg    ReconcilerConfig
	env    valueobject.Environment
	cache  repository.CacheRepository
	remote RemoteSource
	sink   EventSink
	logger *zap.Logger

	mu                sync.Mutex
	status            valueobject.SubscriptionStatus
	entry             entity.LocalCacheEntry
	hydrated          bool
	closed            bool
	trialExpiredFired bool
	purchaseInFlight  bool
	restoreInFlight   bool
	refreshInFlight   bool
	subscribers       []chan valueobject.SubscriptionStatus
	tickerStop        chan struct{}
}

// NewReconciler creates a reconciler in the loading state. Call Hydrate before
// anything else.
func NewReconciler(
	env valueobject.Environment,
	cache repository.CacheRepository,
	remote RemoteSource,
	sink EventSink,
	logger *zap.Logger,
	cfg ReconcilerConfig,
) *Reconciler {
	cfg.applyDefaults()
	if sink == nil {
		sink = NewLogSink(logger)
	}
	return &Reconciler{
		cfg:    cfg,
		env:    env,
		cache:  cache,
		remote: remote,
		sink:   sink,
		logger: logger,
		status: valueobject.StatusLoading,
	}
}

// Env returns the one-shot environment classification the reconciler runs under
func (r *Reconciler) Env() valueobject.Environment {
	return r.env
}

// Hydrate performs the first hydration pass: local cache read plus remote
// initialization. The locally derived status is published immediately; the
// remote answer is folded in later via CheckStatus. The returned error is the
// one initialization-fatal case (remote unusable in production) and is raised
// exactly once so the caller can decide how to degrade; status still settles
// on the local derivation.
func (r *Reconciler) Hydrate(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hydrated {
		return nil
	}

	entry, err := r.cache.Entry(ctx)
	if err != nil {
		// A broken cache reads as first-install state.
		r.logger.Warn("cache hydration failed, starting from empty state", zap.Error(err))
		entry = &entity.LocalCacheEntry{}
	}
	r.entry = *entry

	now := r.cfg.Clock()
	snap := r.trialSnapshotLocked(now)
	if snap.Expired {
		// Expiry that happened before this session does not re-fire the event.
		r.trialExpiredFired = true
	}

	r.hydrated = true
	r.publishLocked(ctx, r.deriveLocalLocked(now))
	r.manageTickerLocked(now)

	if !r.remote.Initialize(ctx) && !r.env.AllowsSimulatedPurchases() {
		r.logger.Error("purchase platform unusable on production device, gating falls back to local state")
		return domainErrors.ErrRemoteInitFailed
	}
	return nil
}

// Close stops the trial ticker and closes subscriber channels.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.stopTickerLocked()
	for _, ch := range r.subscribers {
		close(ch)
	}
	r.subscribers = nil
}

// Subscribe returns a channel receiving every published status change. The
// channel is buffered; slow consumers miss intermediate values rather than
// blocking reconciliation.
func (r *Reconciler) Subscribe() <-chan valueobject.SubscriptionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan valueobject.SubscriptionStatus, 16)
	r.subscribers = append(r.subscribers, ch)
	return ch
}

// Status returns the current reconciled status.
func (r *Reconciler) Status() valueobject.SubscriptionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Snapshot returns the full derived read model at the current instant.
func (r *Reconciler) Snapshot() StatusSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.cfg.Clock()
	snap := r.trialSnapshotLocked(now)
	st := r.status

	return StatusSnapshot{
		Status:                     st,
		IsPremium:                  st == valueobject.StatusPremium,
		IsTrialActive:              snap.Active,
		IsTrialExpired:             snap.Expired,
		TrialExpiresAt:             snap.ExpiresAt,
		TrialRemainingMs:           snap.RemainingMillis(),
		ShouldShowOffer:            !r.entry.HasSeenPaywall && st != valueobject.StatusPremium && !snap.Started(),
		ShouldBlockPremiumFeatures: snap.Started() && snap.Expired && st != valueobject.StatusPremium,
	}
}

// FeatureAccess projects the current access level onto the feature table.
func (r *Reconciler) FeatureAccess() FeatureAccessTable {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.cfg.Clock()
	canAccess := r.status == valueobject.StatusPremium || r.trialSnapshotLocked(now).Active
	return FeatureAccessFor(canAccess)
}

// StartTrial activates the once-per-install trial. Idempotent: a second call
// performs no storage writes beyond re-flagging the paywall as seen.
func (r *Reconciler) StartTrial(ctx context.Context, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hydrated {
		return domainErrors.ErrNotHydrated
	}

	if r.entry.TrialStartISO != "" {
		if !r.entry.HasSeenPaywall {
			if err := r.cache.SetHasSeenPaywall(ctx, true); err != nil {
				return fmt.Errorf("failed to flag paywall seen: %w", err)
			}
			r.entry.HasSeenPaywall = true
		}
		return nil
	}

	now := r.cfg.Clock()
	startISO := now.UTC().Format(time.RFC3339)

	if err := r.cache.SetTrialStart(ctx, startISO); err != nil {
		return fmt.Errorf("failed to persist trial start: %w", err)
	}
	if err := r.cache.SetHasSeenPaywall(ctx, true); err != nil {
		return fmt.Errorf("failed to flag paywall seen: %w", err)
	}

	r.entry.TrialStartISO = startISO
	r.entry.HasSeenPaywall = true
	r.trialExpiredFired = false

	ev := NewEvent(EventTrialStarted, valueobject.StatusTrial, now)
	ev.Source = source
	r.sink.Emit(ctx, ev)

	if r.status != valueobject.StatusPremium {
		r.publishLocked(ctx, valueobject.StatusTrial)
	}
	r.manageTickerLocked(now)
	return nil
}

// Reevaluate re-runs the trial clock and applies an expiry transition if one
// is due. Called by the minute ticker while a trial runs, and explicitly by
// anything that has just moved the clock.
func (r *Reconciler) Reevaluate(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hydrated {
		return
	}
	r.reevaluateLocked(ctx, r.cfg.Clock())
}

// CheckStatus forces a remote re-check without invalidating platform caches.
// No-ops if a refresh is already in flight.
func (r *Reconciler) CheckStatus(ctx context.Context) error {
	if !r.beginRefresh() {
		return nil
	}
	res := r.remote.CustomerInfo(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshInFlight = false
	return r.applyRemoteLocked(ctx, res)
}

// ForceRefresh fetches a fresh remote read, optionally invalidating the
// platform-side cache first. Returns whether an authoritative answer was
// obtained.
func (r *Reconciler) ForceRefresh(ctx context.Context, invalidate bool) (bool, error) {
	if !r.beginRefresh() {
		return false, domainErrors.ErrOperationInFlight
	}
	if invalidate {
		if err := r.remote.InvalidateCache(ctx); err != nil {
			r.logger.Debug("platform cache invalidation failed", zap.Error(err))
		}
	}
	res := r.remote.ForceSync(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshInFlight = false
	if err := r.applyRemoteLocked(ctx, res); err != nil {
		return false, err
	}
	return res.Known(), nil
}

// Purchase buys a product through the remote source. Returns (nil, nil) when
// the user cancels; callers must not surface that path as an error. Status
// only changes on a confirmed purchase.
func (r *Reconciler) Purchase(ctx context.Context, productID string) (*entity.PurchaseReceipt, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: product identifier is empty", domainErrors.ErrInvalidInput)
	}

	r.mu.Lock()
	if !r.hydrated {
		r.mu.Unlock()
		return nil, domainErrors.ErrNotHydrated
	}
	if r.purchaseInFlight {
		r.mu.Unlock()
		return nil, domainErrors.ErrOperationInFlight
	}
	r.purchaseInFlight = true
	r.mu.Unlock()

	outcome, err := r.remote.Purchase(ctx, productID)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.purchaseInFlight = false

	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrPurchaseFailed, err)
	}
	if outcome == nil {
		return nil, domainErrors.ErrPurchaseFailed
	}
	if outcome.Cancelled {
		return nil, nil
	}

	if err := r.persistPremiumLocked(ctx); err != nil {
		return nil, err
	}

	now := r.cfg.Clock()
	plan := valueobject.InferPlanType(productID)
	receipt := &entity.PurchaseReceipt{
		PlanName:        plan.DisplayName(),
		ProductID:       productID,
		PriceString:     outcome.PriceString,
		PlanType:        plan,
		NextBillingDate: valueobject.EstimateNextBilling(plan, now),
	}

	ev := NewEvent(EventPurchaseComplete, valueobject.StatusPremium, now)
	ev.ProductID = productID
	r.sink.Emit(ctx, ev)

	return receipt, nil
}

// Restore replays historical purchases. Returns true when an active
// entitlement came back; false with a nil error means nothing to restore.
func (r *Reconciler) Restore(ctx context.Context) (bool, error) {
	r.mu.Lock()
	if !r.hydrated {
		r.mu.Unlock()
		return false, domainErrors.ErrNotHydrated
	}
	if r.restoreInFlight {
		r.mu.Unlock()
		return false, domainErrors.ErrOperationInFlight
	}
	r.restoreInFlight = true
	r.mu.Unlock()

	res := r.remote.Restore(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.restoreInFlight = false

	if res.Known() && res.Record.HasActive(r.cfg.EntitlementKey) {
		if err := r.persistPremiumLocked(ctx); err != nil {
			return false, err
		}
		ev := NewEvent(EventRestoreComplete, valueobject.StatusPremium, r.cfg.Clock())
		r.sink.Emit(ctx, ev)
		return true, nil
	}
	if res.State == FetchOk {
		return false, nil
	}

	r.logger.Warn("restore could not reach purchase platform", zap.Error(res.Err))
	return false, nil
}

// Offerings lists purchasable packages, empty on any platform problem.
func (r *Reconciler) Offerings(ctx context.Context) []entity.Package {
	packages, err := r.remote.Offerings(ctx)
	if err != nil {
		r.logger.Warn("failed to list offerings", zap.Error(err))
		return []entity.Package{}
	}
	if packages == nil {
		packages = []entity.Package{}
	}
	return packages
}

// FullReset clears all persisted entitlement state, returning the service to
// first-install semantics. Dev/test surface only.
func (r *Reconciler) FullReset(ctx context.Context) error {
	if !r.env.AllowsDevSurface() {
		return domainErrors.ErrDevOnly
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.cache.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset entitlement cache: %w", err)
	}
	r.entry = entity.LocalCacheEntry{}
	r.trialExpiredFired = false
	r.stopTickerLocked()
	// Publish without re-writing the mirror: the reset just cleared it and
	// first-install state keeps every key empty.
	r.notifyLocked(ctx, valueobject.StatusFree)
	return nil
}

// DevCancelSubscription drops the local premium flag so paywall flows can be
// retested. Dev/test surface only.
func (r *Reconciler) DevCancelSubscription(ctx context.Context) error {
	if !r.env.AllowsDevSurface() {
		return domainErrors.ErrDevOnly
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.cache.SetSubscriptionActive(ctx, false); err != nil {
		return fmt.Errorf("failed to clear subscription flag: %w", err)
	}
	r.entry.SubscriptionActive = false

	now := r.cfg.Clock()
	r.publishLocked(ctx, r.deriveLocalLocked(now))
	r.manageTickerLocked(now)
	return nil
}

// DevExpireTrial rewrites the trial start so the window is already over, then
// re-evaluates. Dev/test surface only.
func (r *Reconciler) DevExpireTrial(ctx context.Context) error {
	if !r.env.AllowsDevSurface() {
		return domainErrors.ErrDevOnly
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entry.TrialStartISO == "" {
		return nil
	}

	now := r.cfg.Clock()
	startISO := now.Add(-r.cfg.TrialDuration - time.Second).UTC().Format(time.RFC3339)
	if err := r.cache.SetTrialStart(ctx, startISO); err != nil {
		return fmt.Errorf("failed to rewrite trial start: %w", err)
	}
	r.entry.TrialStartISO = startISO
	r.reevaluateLocked(ctx, now)
	return nil
}

func (r *Reconciler) beginRefresh() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hydrated || r.refreshInFlight {
		return false
	}
	r.refreshInFlight = true
	return true
}

func (r *Reconciler) trialSnapshotLocked(now time.Time) entity.TrialSnapshot {
	return entity.BuildTrialSnapshotWithDuration(r.entry.TrialStartISO, r.cfg.TrialDuration, now)
}

// deriveLocalLocked is the synchronous fallback derivation used whenever the
// remote source has nothing authoritative to say.
func (r *Reconciler) deriveLocalLocked(now time.Time) valueobject.SubscriptionStatus {
	if r.entry.SubscriptionActive {
		return valueobject.StatusPremium
	}
	if r.trialSnapshotLocked(now).Active {
		return valueobject.StatusTrial
	}
	return valueobject.StatusFree
}

// applyRemoteLocked folds a remote answer into the status, by precedence: an
// active entitlement wins outright, an explicit empty clears the premium flag
// and falls back to trial-if-active, and anything else leaves local truth
// untouched.
func (r *Reconciler) applyRemoteLocked(ctx context.Context, res FetchResult) error {
	now := r.cfg.Clock()

	switch res.State {
	case FetchOk:
		if res.Record.HasActive(r.cfg.EntitlementKey) {
			return r.persistPremiumLocked(ctx)
		}
		// Explicit empty answer: the entitlement is gone. A still-unexpired
		// trial record keeps its grant; the trial outlives the subscription.
		if err := r.cache.SetSubscriptionActive(ctx, false); err != nil {
			return fmt.Errorf("failed to clear subscription flag: %w", err)
		}
		r.entry.SubscriptionActive = false
		if r.trialSnapshotLocked(now).Active {
			r.publishLocked(ctx, valueobject.StatusTrial)
		} else {
			r.publishLocked(ctx, valueobject.StatusFree)
		}
		r.manageTickerLocked(now)
		return nil

	default:
		// Unreachable or failed: never a downgrade signal.
		r.logger.Debug("remote entitlement lookup inconclusive, keeping local derivation",
			zap.Error(res.Err),
		)
		r.publishLocked(ctx, r.deriveLocalLocked(now))
		return nil
	}
}

// persistPremiumLocked applies the highest-precedence transition: remote (or
// purchase) confirmed the entitlement. Premium supersedes trial bookkeeping.
func (r *Reconciler) persistPremiumLocked(ctx context.Context) error {
	if err := r.cache.SetSubscriptionActive(ctx, true); err != nil {
		return fmt.Errorf("failed to persist subscription flag: %w", err)
	}
	if err := r.cache.ClearTrialStart(ctx); err != nil {
		return fmt.Errorf("failed to clear trial bookkeeping: %w", err)
	}
	if !r.entry.HasSeenPaywall {
		if err := r.cache.SetHasSeenPaywall(ctx, true); err != nil {
			return fmt.Errorf("failed to flag paywall seen: %w", err)
		}
	}

	r.entry.SubscriptionActive = true
	r.entry.TrialStartISO = ""
	r.entry.HasSeenPaywall = true

	r.publishLocked(ctx, valueobject.StatusPremium)
	r.stopTickerLocked()
	return nil
}

func (r *Reconciler) reevaluateLocked(ctx context.Context, now time.Time) {
	if r.entry.SubscriptionActive {
		r.stopTickerLocked()
		return
	}

	snap := r.trialSnapshotLocked(now)
	if !snap.Started() {
		r.stopTickerLocked()
		return
	}

	if snap.Expired {
		if !r.trialExpiredFired {
			r.trialExpiredFired = true
			r.sink.Emit(ctx, NewEvent(EventTrialExpired, valueobject.StatusFree, now))
		}
		if r.status == valueobject.StatusTrial {
			r.publishLocked(ctx, valueobject.StatusFree)
		}
		r.stopTickerLocked()
	}
}

// publishLocked records a new status, mirrors it and fans it out. The mirror
// write is best-effort; it only serves the offline purchase simulation.
func (r *Reconciler) publishLocked(ctx context.Context, status valueobject.SubscriptionStatus) {
	if r.status == status {
		return
	}
	if r.entry.StatusMirror != status.String() {
		if err := r.cache.SetStatusMirror(ctx, status.String()); err != nil {
			r.logger.Debug("status mirror write failed", zap.Error(err))
		} else {
			r.entry.StatusMirror = status.String()
		}
	}
	r.notifyLocked(ctx, status)
}

// notifyLocked swaps the status and notifies observers without touching the
// persisted mirror.
func (r *Reconciler) notifyLocked(ctx context.Context, status valueobject.SubscriptionStatus) {
	prev := r.status
	if prev == status {
		return
	}
	r.status = status

	for _, ch := range r.subscribers {
		select {
		case ch <- status:
		default:
		}
	}

	if prev.Known() {
		ev := NewEvent(EventStatusChanged, status, r.cfg.Clock())
		r.sink.Emit(context.WithoutCancel(ctx), ev)
	}
}

// manageTickerLocked keeps the minute re-evaluation loop alive exactly while
// an unexpired trial is the thing granting or about to lose access.
func (r *Reconciler) manageTickerLocked(now time.Time) {
	if r.closed {
		return
	}
	active := !r.entry.SubscriptionActive && r.trialSnapshotLocked(now).Active
	if active && r.tickerStop == nil {
		stop := make(chan struct{})
		r.tickerStop = stop
		go r.runTicker(stop)
	} else if !active {
		r.stopTickerLocked()
	}
}

func (r *Reconciler) stopTickerLocked() {
	if r.tickerStop != nil {
		close(r.tickerStop)
		r.tickerStop = nil
	}
}

func (r *Reconciler) runTicker(stop chan struct{}) {
	ticker := time.NewTicker(r.cfg.ReevalInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.Reevaluate(context.Background())
		}
	}
}
