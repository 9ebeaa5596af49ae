package entity

import "time"

// DefaultTrialDuration is the fixed trial window. Configurable at wiring time
// but the default is load-bearing for compatibility with deployed clients.
const DefaultTrialDuration = 24 * time.Hour

// TrialSnapshot is a derived view of the trial state at a single instant.
// It is never stored; only the start timestamp is persisted, and every
// snapshot is recomputed from it so repeated evaluation cannot drift.
type TrialSnapshot struct {
	StartedAt *time.Time
	ExpiresAt *time.Time
	Active    bool
	Expired   bool
	Remaining time.Duration
}

// BuildTrialSnapshot computes the trial state from a persisted RFC3339 start
// timestamp using the default 24h window. An empty or unparseable start yields
// the zero "no trial" snapshot; it never fails.
func BuildTrialSnapshot(startISO string, now time.Time) TrialSnapshot {
	return BuildTrialSnapshotWithDuration(startISO, DefaultTrialDuration, now)
}

// BuildTrialSnapshotWithDuration is BuildTrialSnapshot with an explicit window.
func BuildTrialSnapshotWithDuration(startISO string, duration time.Duration, now time.Time) TrialSnapshot {
	if startISO == "" {
		return TrialSnapshot{}
	}

	startedAt, err := time.Parse(time.RFC3339, startISO)
	if err != nil {
		// Malformed persisted timestamp means no trial, never a crash.
		return TrialSnapshot{}
	}
	if duration <= 0 {
		duration = DefaultTrialDuration
	}

	expiresAt := startedAt.Add(duration)
	remaining := expiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}

	// Active and Expired are mutually exclusive by construction: expiry is
	// now >= expiresAt, active is its complement while a start exists.
	expired := !now.Before(expiresAt)
	return TrialSnapshot{
		StartedAt: &startedAt,
		ExpiresAt: &expiresAt,
		Active:    !expired,
		Expired:   expired,
		Remaining: remaining,
	}
}

// Started returns true if a trial has ever been activated
func (t TrialSnapshot) Started() bool {
	return t.StartedAt != nil
}

// RemainingMillis returns the remaining window in milliseconds for API payloads
func (t TrialSnapshot) RemainingMillis() int64 {
	return t.Remaining.Milliseconds()
}
