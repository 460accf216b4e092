package clock

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/tourneyclock/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schedule(durations ...float64) models.LevelSchedule {
	s := make(models.LevelSchedule, len(durations))
	for i, d := range durations {
		s[i] = models.BlindLevel{
			Level:           i + 1,
			SmallBlind:      int64(25 * (i + 1)),
			BigBlind:        int64(50 * (i + 1)),
			DurationMinutes: d,
		}
	}
	return s
}

func running(level, remaining int, last time.Time) models.ClockRecord {
	return models.ClockRecord{
		TournamentID:         uuid.MustParse("0b6f7c8e-6d9a-4f43-9a59-2d5a1e3c4b70"),
		CurrentLevel:         level,
		TimeRemainingSeconds: remaining,
		LastUpdated:          last,
		Version:              1,
	}
}

func TestAdvanceLevelUp(t *testing.T) {
	// Level 1 is 30s; resumed at t0 with 30s left, ticked at t0+31s.
	sched := schedule(0.5, 20)
	out := Advance(running(1, 30, t0), sched, t0.Add(31*time.Second))

	require.Equal(t, TransitionLevelUp, out.Kind)
	assert.Equal(t, 2, out.Record.CurrentLevel)
	assert.Equal(t, 1200, out.Record.TimeRemainingSeconds)
	assert.False(t, out.Record.IsPaused)
	assert.Nil(t, out.Record.PausedAt)
	assert.Equal(t, t0.Add(31*time.Second), out.Record.LastUpdated)
	require.NotNil(t, out.Level)
	assert.Equal(t, 2, out.Level.Level)
}

func TestAdvanceFinishedOnLastLevel(t *testing.T) {
	out := Advance(running(3, 10, t0), schedule(1, 1, 1), t0.Add(12*time.Second))

	assert.Equal(t, TransitionFinished, out.Kind)
	assert.Equal(t, 3, out.Record.CurrentLevel)
	assert.Equal(t, 0, out.Record.TimeRemainingSeconds)
	assert.Nil(t, out.Level)
}

func TestAdvanceTickKeepsSubSecondRemainder(t *testing.T) {
	rec := running(1, 100, t0)

	out := Advance(rec, schedule(5), t0.Add(2500*time.Millisecond))
	require.Equal(t, TransitionTick, out.Kind)
	assert.Equal(t, 98, out.Record.TimeRemainingSeconds)
	assert.Equal(t, t0.Add(2*time.Second), out.Record.LastUpdated)

	// The half second left over is counted by the next step.
	out = Advance(out.Record, schedule(5), t0.Add(3*time.Second))
	require.Equal(t, TransitionTick, out.Kind)
	assert.Equal(t, 97, out.Record.TimeRemainingSeconds)
}

func TestAdvanceNoopCases(t *testing.T) {
	t.Run("paused", func(t *testing.T) {
		rec := running(1, 40, t0)
		rec.IsPaused = true
		out := Advance(rec, schedule(1), t0.Add(time.Hour))
		assert.Equal(t, TransitionNone, out.Kind)
		assert.Equal(t, rec, out.Record)
	})

	t.Run("under a second", func(t *testing.T) {
		rec := running(1, 40, t0)
		out := Advance(rec, schedule(1), t0.Add(999*time.Millisecond))
		assert.Equal(t, TransitionNone, out.Kind)
		assert.Equal(t, rec, out.Record)
	})
}

func TestAdvanceAnomalyRebasesOnly(t *testing.T) {
	rec := running(2, 300, t0)
	now := t0.Add(700 * time.Second)

	out := Advance(rec, schedule(10, 10), now)

	assert.Equal(t, TransitionRebased, out.Kind)
	assert.Equal(t, 2, out.Record.CurrentLevel)
	assert.Equal(t, 300, out.Record.TimeRemainingSeconds)
	assert.Equal(t, now, out.Record.LastUpdated)
	assert.True(t, out.Elapsed.Anomaly)
}

func TestAdvanceStalledWithoutSchedule(t *testing.T) {
	rec := running(1, 5, t0)
	now := t0.Add(10 * time.Second)

	out := Advance(rec, nil, now)

	assert.Equal(t, TransitionStalled, out.Kind)
	assert.Equal(t, 1, out.Record.CurrentLevel)
	assert.Equal(t, 0, out.Record.TimeRemainingSeconds)
	assert.False(t, out.Record.IsPaused)
	assert.Equal(t, now, out.Record.LastUpdated)
}

func TestAdvanceIsDeterministic(t *testing.T) {
	rec := running(1, 30, t0)
	sched := schedule(0.5, 1)
	now := t0.Add(45 * time.Second)

	assert.Equal(t, Advance(rec, sched, now), Advance(rec, sched, now))
}

func TestAdvanceNeverSkipsLevels(t *testing.T) {
	// Even with far more time elapsed than level 2 lasts, one step moves one level.
	out := advance(running(1, 10, t0), schedule(1, 1, 1), t0.Add(500*time.Second), 0)

	require.Equal(t, TransitionLevelUp, out.Kind)
	assert.Equal(t, 2, out.Record.CurrentLevel)
	assert.Equal(t, 60, out.Record.TimeRemainingSeconds)
}
