package clock

import (
	"time"

	"github.com/mcdev12/tourneyclock/go/internal/models"
)

// MaxAdjustSeconds bounds manual time overrides.
const MaxAdjustSeconds = 24 * 60 * 60

// Pause freezes the countdown at its recomputed value.
func Pause(rec models.ClockRecord, now time.Time) (models.ClockRecord, bool) {
	if rec.IsPaused {
		return rec, false
	}
	now = now.UTC()
	el := Recompute(rec.TimeRemainingSeconds, rec.LastUpdated, false, now)

	next := rec
	next.TimeRemainingSeconds = el.Remaining
	next.IsPaused = true
	next.PausedAt = &now
	next.LastUpdated = now
	return next, true
}

// Resume restarts the countdown from exactly the stored remaining time.
func Resume(rec models.ClockRecord, now time.Time) (models.ClockRecord, bool) {
	if !rec.IsPaused {
		return rec, false
	}
	now = now.UTC()
	next := rec
	next.TotalPauseTimeSeconds += pausedSeconds(rec.PausedAt, now)
	next.IsPaused = false
	next.PausedAt = nil
	next.LastUpdated = now
	return next, true
}

// AdjustTime overrides the remaining time. Pause state is kept.
func AdjustTime(rec models.ClockRecord, seconds int, now time.Time) (models.ClockRecord, error) {
	if seconds < 0 || seconds > MaxAdjustSeconds {
		return rec, validationf("time_remaining_seconds must be between 0 and %d, got %d", MaxAdjustSeconds, seconds)
	}
	next := rec
	next.TimeRemainingSeconds = seconds
	next.LastUpdated = now.UTC()
	return next, nil
}

// ChangeLevel jumps to level and resets remaining time to its duration.
// Going back to an earlier level keeps the current pause state; any other
// move unpauses the clock.
func ChangeLevel(rec models.ClockRecord, schedule models.LevelSchedule, level int, now time.Time) (models.ClockRecord, models.BlindLevel, error) {
	lvl, ok := schedule.Level(level)
	if !ok {
		return rec, models.BlindLevel{}, validationf("level must be between 1 and %d, got %d", schedule.Len(), level)
	}
	now = now.UTC()

	next := rec
	next.CurrentLevel = lvl.Level
	next.TimeRemainingSeconds = lvl.DurationSeconds()
	next.LastUpdated = now

	if level >= rec.CurrentLevel && rec.IsPaused {
		next.TotalPauseTimeSeconds += pausedSeconds(rec.PausedAt, now)
		next.IsPaused = false
		next.PausedAt = nil
	}
	return next, lvl, nil
}

// InitialRecord is the clock state for a tournament that just became active.
func InitialRecord(t models.Tournament, now time.Time) (models.ClockRecord, error) {
	first, ok := t.BlindStructure.Level(1)
	if !ok {
		return models.ClockRecord{}, ErrNoSchedule
	}
	now = now.UTC()
	return models.ClockRecord{
		TournamentID:         t.ID,
		CurrentLevel:         1,
		TimeRemainingSeconds: first.DurationSeconds(),
		IsPaused:             true,
		PausedAt:             &now,
		LastUpdated:          now,
	}, nil
}

func pausedSeconds(pausedAt *time.Time, now time.Time) int {
	if pausedAt == nil {
		return 0
	}
	d := now.Sub(pausedAt.UTC())
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}
