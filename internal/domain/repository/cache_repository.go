package repository

import (
	"context"

	"github.com/goalforge/entitlement/internal/domain/entity"
)

// Persisted cache keys. The two durable backings must use the same names so
// they stay interchangeable; no other component writes these keys directly.
const (
	KeyTrialStart         = "entitlement:trial_start"
	KeySubscriptionActive = "entitlement:subscription_active"
	KeyHasSeenPaywall     = "entitlement:has_seen_paywall"
	KeyStatusMirror       = "entitlement:status_mirror"
)

// CacheKeys lists every persisted key, in the order the full reset clears them.
func CacheKeys() []string {
	return []string{
		KeyTrialStart,
		KeySubscriptionActive,
		KeyHasSeenPaywall,
		KeyStatusMirror,
	}
}

// CacheRepository is the durable local entitlement cache. Writes must be
// complete when the call returns so that a later read (or a process restart)
// always observes them. Implementations must not differ in behavior beyond
// which backing stores the bytes.
type CacheRepository interface {
	// Entry reads all cached fields in one pass. A missing key reads as the
	// zero value; only a backing failure returns an error.
	Entry(ctx context.Context) (*entity.LocalCacheEntry, error)

	SetTrialStart(ctx context.Context, startISO string) error
	ClearTrialStart(ctx context.Context) error
	SetSubscriptionActive(ctx context.Context, active bool) error
	SetHasSeenPaywall(ctx context.Context, seen bool) error
	SetStatusMirror(ctx context.Context, status string) error

	// Reset clears every cache key as one logical operation, returning the
	// store to first-install state. Test/dev surface only.
	Reset(ctx context.Context) error
}
