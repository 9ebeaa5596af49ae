package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeatureAccessFor_Free(t *testing.T) {
	table := FeatureAccessFor(false)

	// Always-on features do not depend on the access level.
	assert.True(t, table.BasicTasks)
	assert.True(t, table.OneDayPlan)
	assert.True(t, table.BasicTimer)

	assert.Equal(t, float64(1), table.ActiveGoals)
	assert.Equal(t, float64(3), table.GuidedSessions)
	assert.Equal(t, float64(3), table.BreathingCycles)
	assert.Equal(t, float64(7), table.HistoryDays)

	assert.False(t, table.AIGoalGeneration)
	assert.False(t, table.MultiDayPlanning)
	assert.False(t, table.AdvancedStats)
}

func TestFeatureAccessFor_Premium(t *testing.T) {
	table := FeatureAccessFor(true)

	assert.True(t, table.BasicTasks)
	assert.True(t, table.OneDayPlan)
	assert.True(t, table.BasicTimer)

	for name, cap := range map[string]float64{
		"active_goals":     table.ActiveGoals,
		"guided_sessions":  table.GuidedSessions,
		"breathing_cycles": table.BreathingCycles,
		"history_days":     table.HistoryDays,
	} {
		assert.True(t, math.IsInf(cap, 1), "%s should be unlimited", name)
	}

	assert.True(t, table.AIGoalGeneration)
	assert.True(t, table.MultiDayPlanning)
	assert.True(t, table.AdvancedStats)
}
