package valueobject

import (
	"strings"
	"time"
)

type PlanType string

const (
	PlanMonthly  PlanType = "monthly"
	PlanAnnual   PlanType = "annual"
	PlanLifetime PlanType = "lifetime"
)

// String returns the string representation of the plan type
func (p PlanType) String() string {
	return string(p)
}

// IsValid returns true if the plan type is valid
func (p PlanType) IsValid() bool {
	switch p {
	case PlanMonthly, PlanAnnual, PlanLifetime:
		return true
	default:
		return false
	}
}

// DisplayName returns a human-readable plan name for receipts
func (p PlanType) DisplayName() string {
	switch p {
	case PlanAnnual:
		return "Yearly Plan"
	case PlanLifetime:
		return "Lifetime"
	default:
		return "Monthly Plan"
	}
}

// InferPlanType guesses the billing cycle from a store product identifier.
// Product IDs are opaque, so this is a substring heuristic ("annual"/"year"
// and "lifetime"/"forever"); anything else is treated as monthly.
func InferPlanType(productID string) PlanType {
	id := strings.ToLower(productID)
	switch {
	case strings.Contains(id, "lifetime"), strings.Contains(id, "forever"):
		return PlanLifetime
	case strings.Contains(id, "annual"), strings.Contains(id, "year"):
		return PlanAnnual
	default:
		return PlanMonthly
	}
}

// EstimateNextBilling computes a display-only next billing date for a plan.
// The purchase platform owns the real renewal schedule; this value must never
// feed an access-control decision.
func EstimateNextBilling(p PlanType, now time.Time) time.Time {
	switch p {
	case PlanAnnual:
		return now.AddDate(1, 0, 0)
	case PlanLifetime:
		return time.Time{}
	default:
		return now.AddDate(0, 1, 0)
	}
}
