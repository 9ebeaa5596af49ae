package service

import "math"

// Unlimited marks a numeric feature cap as removed.
var Unlimited = math.Inf(1)

// Free-tier caps for gated numeric features.
const (
	freeActiveGoalLimit    = 1
	freeGuidedSessionLimit = 3
	freeBreathingLimit     = 3
	freeHistoryDays        = 7
)

// FeatureAccessTable maps each app feature to its enablement or usage cap.
// Numeric fields are caps, with Unlimited meaning no cap. The table is a pure
// projection of premium access and carries no state of its own.
type FeatureAccessTable struct {
	// Always on, independent of access level.
	BasicTasks bool `json:"basic_tasks"`
	OneDayPlan bool `json:"one_day_plan"`
	BasicTimer bool `json:"basic_timer"`

	// Gated: limited cap without premium, unlimited with it.
	ActiveGoals     float64 `json:"active_goals"`
	GuidedSessions  float64 `json:"guided_sessions"`
	BreathingCycles float64 `json:"breathing_cycles"`
	HistoryDays     float64 `json:"history_days"`

	// Gated: off without premium.
	AIGoalGeneration bool `json:"ai_goal_generation"`
	MultiDayPlanning bool `json:"multi_day_planning"`
	AdvancedStats    bool `json:"advanced_stats"`
}

// FeatureAccessFor projects an access level onto the feature table. It is
// recomputed on every call; callers must not cache the result across status
// changes.
func FeatureAccessFor(canAccessPremium bool) FeatureAccessTable {
	table := FeatureAccessTable{
		BasicTasks:      true,
		OneDayPlan:      true,
		BasicTimer:      true,
		ActiveGoals:     freeActiveGoalLimit,
		GuidedSessions:  freeGuidedSessionLimit,
		BreathingCycles: freeBreathingLimit,
		HistoryDays:     freeHistoryDays,
	}

	if canAccessPremium {
		table.ActiveGoals = Unlimited
		table.GuidedSessions = Unlimited
		table.BreathingCycles = Unlimited
		table.HistoryDays = Unlimited
		table.AIGoalGeneration = true
		table.MultiDayPlanning = true
		table.AdvancedStats = true
	}

	return table
}
