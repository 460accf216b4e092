package clock

import (
	"time"

	"github.com/mcdev12/tourneyclock/go/internal/models"
)

// TransitionKind classifies the result of one driver step.
type TransitionKind string

const (
	TransitionNone     TransitionKind = "none"
	TransitionTick     TransitionKind = "tick"
	TransitionRebased  TransitionKind = "rebased"
	TransitionLevelUp  TransitionKind = "level_up"
	TransitionFinished TransitionKind = "finished"
	TransitionStalled  TransitionKind = "stalled"
)

// Outcome is the next record plus what happened to get there.
type Outcome struct {
	Record  models.ClockRecord
	Kind    TransitionKind
	Level   *models.BlindLevel // set on TransitionLevelUp
	Elapsed Elapsed
}

// Advance runs the level state machine for one step. It never performs I/O;
// a nil or empty schedule means the blind structure could not be loaded.
func Advance(rec models.ClockRecord, schedule models.LevelSchedule, now time.Time) Outcome {
	return advance(rec, schedule, now, AnomalyThreshold)
}

func advance(rec models.ClockRecord, schedule models.LevelSchedule, now time.Time, threshold time.Duration) Outcome {
	out := Outcome{Record: rec, Kind: TransitionNone}
	if rec.IsPaused {
		return out
	}

	now = now.UTC()
	el := recompute(rec.TimeRemainingSeconds, rec.LastUpdated, false, now, threshold)
	out.Elapsed = el
	next := rec

	if el.Anomaly {
		next.LastUpdated = now
		out.Record = next
		out.Kind = TransitionRebased
		return out
	}

	if el.Remaining > 0 {
		if el.Seconds == 0 {
			return out
		}
		next.TimeRemainingSeconds = el.Remaining
		// Advance the baseline by whole seconds only so sub-second
		// remainders carry into the next step.
		if rec.LastUpdated.IsZero() {
			next.LastUpdated = now
		} else {
			next.LastUpdated = rec.LastUpdated.UTC().Add(time.Duration(el.Seconds) * time.Second)
		}
		out.Record = next
		out.Kind = TransitionTick
		return out
	}

	// Remaining reached zero.
	next.TimeRemainingSeconds = 0
	next.LastUpdated = now

	if schedule.Len() == 0 {
		out.Record = next
		out.Kind = TransitionStalled
		return out
	}

	lvl, ok := schedule.Level(rec.CurrentLevel + 1)
	if !ok {
		out.Record = next
		out.Kind = TransitionFinished
		return out
	}

	next.CurrentLevel = lvl.Level
	next.TimeRemainingSeconds = lvl.DurationSeconds()
	next.IsPaused = false
	next.PausedAt = nil
	out.Record = next
	out.Kind = TransitionLevelUp
	out.Level = &lvl
	return out
}
