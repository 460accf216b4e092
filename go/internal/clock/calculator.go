package clock

import (
	"time"
)

// AnomalyThreshold is the largest gap applied to a running clock. Anything
// longer is treated as a recovering process and only rebases last_updated.
const AnomalyThreshold = 600 * time.Second

// Elapsed is the result of recomputing a clock against the wall clock.
type Elapsed struct {
	Remaining int
	Seconds   int
	Anomaly   bool
}

// Recompute returns the true remaining time for a stored snapshot.
func Recompute(storedRemaining int, lastUpdated time.Time, isPaused bool, now time.Time) Elapsed {
	return recompute(storedRemaining, lastUpdated, isPaused, now, AnomalyThreshold)
}

func recompute(storedRemaining int, lastUpdated time.Time, isPaused bool, now time.Time, threshold time.Duration) Elapsed {
	if storedRemaining < 0 {
		storedRemaining = 0
	}
	if isPaused {
		return Elapsed{Remaining: storedRemaining}
	}
	if lastUpdated.IsZero() {
		lastUpdated = now
	}

	gap := now.UTC().Sub(lastUpdated.UTC())
	if gap < 0 {
		gap = 0
	}
	seconds := int(gap / time.Second)

	if threshold > 0 && gap > threshold {
		return Elapsed{Remaining: storedRemaining, Seconds: seconds, Anomaly: true}
	}

	remaining := storedRemaining - seconds
	if remaining < 0 {
		remaining = 0
	}
	return Elapsed{Remaining: remaining, Seconds: seconds}
}
