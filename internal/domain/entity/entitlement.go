package entity

import (
	"time"

	"github.com/goalforge/entitlement/internal/domain/valueobject"
)

// EntitlementPremium is the business entitlement key gating paid features.
const EntitlementPremium = "premium"

// Entitlement is a single named right granted by the purchase platform.
type Entitlement struct {
	Identifier        string `json:"identifier"`
	ProductIdentifier string `json:"product_identifier"`
	IsActive          bool   `json:"is_active"`
}

// EntitlementRecord is the authoritative answer from the purchase platform.
// Presence of an active entitlement under its key is the sole truth signal
// for premium access; an absent record means "unknown", not "not granted".
type EntitlementRecord struct {
	ActiveSubscriptions []string               `json:"active_subscriptions"`
	Entitlements        map[string]Entitlement `json:"entitlements"`
}

// HasActive returns true if the given entitlement key is granted
func (r *EntitlementRecord) HasActive(key string) bool {
	if r == nil {
		return false
	}
	ent, ok := r.Entitlements[key]
	return ok && ent.IsActive
}

// HasAnyActive returns true if any entitlement is granted
func (r *EntitlementRecord) HasAnyActive() bool {
	if r == nil {
		return false
	}
	for _, ent := range r.Entitlements {
		if ent.IsActive {
			return true
		}
	}
	return false
}

// GrantedRecord builds a record with a single active entitlement. Used by the
// simulated purchase path and by receipt cross-checks that only learn about
// one product.
func GrantedRecord(key, productID string) *EntitlementRecord {
	return &EntitlementRecord{
		ActiveSubscriptions: []string{productID},
		Entitlements: map[string]Entitlement{
			key: {
				Identifier:        key,
				ProductIdentifier: productID,
				IsActive:          true,
			},
		},
	}
}

// LocalCacheEntry is the durable local fallback: the last confirmed premium
// truth plus trial bookkeeping. Created empty on first launch, mutated only
// by the reconciler, cleared only by the full test reset.
type LocalCacheEntry struct {
	SubscriptionActive bool
	TrialStartISO      string
	HasSeenPaywall     bool
	StatusMirror       string
}

// Package is a purchasable offering exposed to the paywall UI.
type Package struct {
	Identifier  string `json:"identifier"`
	ProductID   string `json:"product_id"`
	PriceString string `json:"price_string"`
}

// PurchaseReceipt summarizes a successful purchase for display. The next
// billing date is a client-side estimate, not authoritative.
type PurchaseReceipt struct {
	PlanName        string               `json:"plan_name"`
	ProductID       string               `json:"product_id"`
	PriceString     string               `json:"price_string"`
	PlanType        valueobject.PlanType `json:"plan_type"`
	NextBillingDate time.Time            `json:"next_billing_date"`
}
