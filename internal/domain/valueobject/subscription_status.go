package valueobject

// SubscriptionStatus is the reconciled access level for the account.
// It is a projection over local cache, trial clock and remote entitlement
// state, never stored as independent truth.
type SubscriptionStatus string

const (
	// StatusLoading is the only initial state. It holds until the first
	// hydration pass (local cache read + environment classification) completes.
	StatusLoading SubscriptionStatus = "loading"
	StatusFree    SubscriptionStatus = "free"
	StatusTrial   SubscriptionStatus = "trial"
	StatusPremium SubscriptionStatus = "premium"
)

// IsValid returns true if the status is one of the known states
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case StatusLoading, StatusFree, StatusTrial, StatusPremium:
		return true
	default:
		return false
	}
}

// Known returns true once the status has settled past the initial loading state
func (s SubscriptionStatus) Known() bool {
	return s.IsValid() && s != StatusLoading
}

// String returns the string representation of the status
func (s SubscriptionStatus) String() string {
	return string(s)
}

// ParseSubscriptionStatus maps a persisted mirror value back to a status.
// Unknown values degrade to free rather than erroring; the mirror is a
// display/simulation aid, never an access-control input.
func ParseSubscriptionStatus(raw string) SubscriptionStatus {
	s := SubscriptionStatus(raw)
	if !s.IsValid() {
		return StatusFree
	}
	return s
}
