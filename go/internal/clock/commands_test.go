package clock

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/tourneyclock/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPauseResumeAccumulatesPauseTime(t *testing.T) {
	rec := running(1, 55, t0)

	paused, changed := Pause(rec, t0.Add(10*time.Second))
	require.True(t, changed)
	assert.True(t, paused.IsPaused)
	assert.Equal(t, 45, paused.TimeRemainingSeconds)
	require.NotNil(t, paused.PausedAt)
	assert.Equal(t, t0.Add(10*time.Second), *paused.PausedAt)

	resumed, changed := Resume(paused, t0.Add(20*time.Second))
	require.True(t, changed)
	assert.False(t, resumed.IsPaused)
	assert.Nil(t, resumed.PausedAt)
	assert.Equal(t, 45, resumed.TimeRemainingSeconds)
	assert.Equal(t, 10, resumed.TotalPauseTimeSeconds)
	assert.Equal(t, t0.Add(20*time.Second), resumed.LastUpdated)

	// Countdown restarts from the resume instant.
	el := Recompute(resumed.TimeRemainingSeconds, resumed.LastUpdated, resumed.IsPaused, t0.Add(25*time.Second))
	assert.Equal(t, 40, el.Remaining)
}

func TestPauseResumeIdempotent(t *testing.T) {
	rec := running(1, 30, t0)
	rec.IsPaused = true

	same, changed := Pause(rec, t0.Add(time.Minute))
	assert.False(t, changed)
	assert.Equal(t, rec, same)

	rec.IsPaused = false
	same, changed = Resume(rec, t0.Add(time.Minute))
	assert.False(t, changed)
	assert.Equal(t, rec, same)
}

func TestAdjustTime(t *testing.T) {
	rec := running(2, 500, t0)

	next, err := AdjustTime(rec, 60, t0.Add(100*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 60, next.TimeRemainingSeconds)
	assert.Equal(t, t0.Add(100*time.Second), next.LastUpdated)

	// Elapsed counts from the adjustment, not the old baseline.
	el := Recompute(next.TimeRemainingSeconds, next.LastUpdated, next.IsPaused, t0.Add(110*time.Second))
	assert.Equal(t, 50, el.Remaining)
}

func TestAdjustTimeKeepsPauseState(t *testing.T) {
	rec := running(1, 100, t0)
	rec.IsPaused = true
	rec.PausedAt = &t0

	next, err := AdjustTime(rec, 0, t0.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, next.IsPaused)
	assert.Equal(t, &t0, next.PausedAt)
	assert.Equal(t, 0, next.TimeRemainingSeconds)
}

func TestAdjustTimeValidation(t *testing.T) {
	for _, seconds := range []int{-1, MaxAdjustSeconds + 1} {
		_, err := AdjustTime(running(1, 10, t0), seconds, t0)
		assert.True(t, errors.Is(err, ErrValidation), "seconds=%d", seconds)
	}
	_, err := AdjustTime(running(1, 10, t0), MaxAdjustSeconds, t0)
	assert.NoError(t, err)
}

func TestChangeLevel(t *testing.T) {
	sched := schedule(10, 15, 20)
	pausedAt := t0

	t.Run("forward unpauses", func(t *testing.T) {
		rec := running(1, 100, t0)
		rec.IsPaused = true
		rec.PausedAt = &pausedAt

		next, lvl, err := ChangeLevel(rec, sched, 3, t0.Add(30*time.Second))
		require.NoError(t, err)
		assert.Equal(t, 3, lvl.Level)
		assert.Equal(t, 3, next.CurrentLevel)
		assert.Equal(t, 1200, next.TimeRemainingSeconds)
		assert.False(t, next.IsPaused)
		assert.Nil(t, next.PausedAt)
		assert.Equal(t, 30, next.TotalPauseTimeSeconds)
	})

	t.Run("back keeps paused", func(t *testing.T) {
		rec := running(3, 100, t0)
		rec.IsPaused = true
		rec.PausedAt = &pausedAt

		next, _, err := ChangeLevel(rec, sched, 1, t0.Add(30*time.Second))
		require.NoError(t, err)
		assert.Equal(t, 1, next.CurrentLevel)
		assert.Equal(t, 600, next.TimeRemainingSeconds)
		assert.True(t, next.IsPaused)
		assert.Equal(t, 0, next.TotalPauseTimeSeconds)
	})

	t.Run("back keeps running", func(t *testing.T) {
		next, _, err := ChangeLevel(running(3, 100, t0), sched, 2, t0)
		require.NoError(t, err)
		assert.False(t, next.IsPaused)
		assert.Equal(t, 900, next.TimeRemainingSeconds)
	})

	t.Run("out of range", func(t *testing.T) {
		for _, level := range []int{0, 4} {
			_, _, err := ChangeLevel(running(1, 100, t0), sched, level, t0)
			assert.ErrorIs(t, err, ErrValidation)
		}
	})
}

func TestInitialRecord(t *testing.T) {
	tour := models.Tournament{ID: uuid.New(), BlindStructure: schedule(20, 20)}

	rec, err := InitialRecord(tour, t0)
	require.NoError(t, err)
	assert.Equal(t, tour.ID, rec.TournamentID)
	assert.Equal(t, 1, rec.CurrentLevel)
	assert.Equal(t, 1200, rec.TimeRemainingSeconds)
	assert.True(t, rec.IsPaused)
	require.NotNil(t, rec.PausedAt)
	assert.Equal(t, t0, *rec.PausedAt)

	_, err = InitialRecord(models.Tournament{ID: uuid.New()}, t0)
	assert.ErrorIs(t, err, ErrNoSchedule)
}
