package service

import (
	"context"

	"github.com/goalforge/entitlement/internal/domain/entity"
)

// FetchState tags the outcome of a remote entitlement lookup. The three-way
// split matters: an explicit empty answer clears local premium state, while
// Unavailable/Failed must leave status derivation to the local fallback.
type FetchState int

const (
	FetchOk FetchState = iota
	FetchUnavailable
	FetchFailed
)

// FetchResult is the tagged answer from the remote entitlement source.
type FetchResult struct {
	State  FetchState
	Record *entity.EntitlementRecord
	Err    error
}

// Ok wraps an authoritative record (which may legitimately be empty).
func Ok(record *entity.EntitlementRecord) FetchResult {
	if record == nil {
		record = &entity.EntitlementRecord{}
	}
	return FetchResult{State: FetchOk, Record: record}
}

// Unavailable marks the source as unreachable (offline, not initialized).
func Unavailable(err error) FetchResult {
	return FetchResult{State: FetchUnavailable, Err: err}
}

// Failed marks a reachable source that returned an error.
func Failed(err error) FetchResult {
	return FetchResult{State: FetchFailed, Err: err}
}

// Known returns true when the result carries an authoritative record
func (r FetchResult) Known() bool {
	return r.State == FetchOk && r.Record != nil
}

// PurchaseOutcome is the result of a purchase attempt. Cancelled is set for
// user-initiated aborts, which are silent non-errors; platform failures come
// back as a plain error instead.
type PurchaseOutcome struct {
	Cancelled   bool
	Record      *entity.EntitlementRecord
	ProductID   string
	PriceString string
}

// RemoteSource is the purchase platform contract the reconciler consumes.
// Implementations own their own timeouts and must not panic; the reconciler
// never blocks status derivation on any of these calls.
type RemoteSource interface {
	// Initialize is idempotent and reports whether the platform is usable in
	// the current environment.
	Initialize(ctx context.Context) bool

	// CustomerInfo fetches the current entitlement record.
	CustomerInfo(ctx context.Context) FetchResult

	// Purchase buys a product. Returns (outcome, nil) on success or user
	// cancellation (flagged), (nil, err) on platform failure.
	Purchase(ctx context.Context, productID string) (*PurchaseOutcome, error)

	// Restore replays historical purchases into a fresh entitlement record.
	Restore(ctx context.Context) FetchResult

	// Offerings lists purchasable packages; empty when uninitialized.
	Offerings(ctx context.Context) ([]entity.Package, error)

	// InvalidateCache drops any platform-side cached entitlement state.
	InvalidateCache(ctx context.Context) error

	// ForceSync bypasses platform caches for a fresh read.
	ForceSync(ctx context.Context) FetchResult
}
