package clock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/tourneyclock/go/internal/db"
	"github.com/mcdev12/tourneyclock/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveClockArgs(t *testing.T) {
	id := uuid.New()
	cest := time.FixedZone("CEST", 2*3600)
	level, remaining, total := 3, 120, 45
	paused := false
	resumedAt := time.Date(2025, 6, 1, 20, 0, 0, 0, cest)

	tests := []struct {
		name  string
		patch models.ClockPatch
		check func(t *testing.T, args []any)
	}{
		{
			name:  "empty patch binds only NULLs",
			patch: models.ClockPatch{},
			check: func(t *testing.T, args []any) {
				for i := 2; i < len(args); i++ {
					if i == 5 {
						assert.Equal(t, false, args[i])
						continue
					}
					assert.Nil(t, args[i], "arg $%d", i+1)
				}
			},
		},
		{
			name: "resume clears paused_at and moves last_updated to UTC",
			patch: models.ClockPatch{
				IsPaused:              &paused,
				ClearPausedAt:         true,
				TotalPauseTimeSeconds: &total,
				LastUpdated:           &resumedAt,
			},
			check: func(t *testing.T, args []any) {
				assert.Equal(t, &paused, args[4])
				assert.Equal(t, true, args[5])
				assert.Nil(t, args[6])
				assert.Equal(t, &total, args[7])
				lu := args[8].(*time.Time)
				assert.Equal(t, time.UTC, lu.Location())
				assert.Equal(t, 18, lu.Hour())
			},
		},
		{
			name:  "level change sets level and remaining",
			patch: models.ClockPatch{CurrentLevel: &level, TimeRemainingSeconds: &remaining, PausedAt: &resumedAt},
			check: func(t *testing.T, args []any) {
				assert.Equal(t, &level, args[2])
				assert.Equal(t, &remaining, args[3])
				assert.Equal(t, false, args[5])
				assert.True(t, resumedAt.Equal(*args[6].(*time.Time)))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := saveClockArgs(id, 7, tt.patch)
			require.Len(t, args, 9)
			assert.Equal(t, id, args[0])
			assert.Equal(t, int64(7), args[1])
			tt.check(t, args)
		})
	}
}

func TestCreateClockArgs(t *testing.T) {
	at := time.Date(2025, 6, 1, 20, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	rec := models.ClockRecord{TournamentID: uuid.New(), CurrentLevel: 1, TimeRemainingSeconds: 900, IsPaused: true, PausedAt: &at, LastUpdated: at}

	args := createClockArgs(rec)
	require.Len(t, args, 7)
	assert.Equal(t, rec.TournamentID, args[0])
	assert.Equal(t, time.UTC, args[4].(*time.Time).Location())
	assert.Equal(t, time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC), args[6])
}

// TestRepositoryAgainstPostgres runs when CLOCK_TEST_DATABASE_URL points at a
// disposable database.
func TestRepositoryAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("CLOCK_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CLOCK_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(ctx, pool))

	id := uuid.New()
	_, err = pool.Exec(ctx, `INSERT INTO tournaments (id, name, status) VALUES ($1, 'repo test', 'active')`, id)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM tournaments WHERE id = $1`, id)
	})

	repo := NewRepository(pool)
	start := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	initial, err := InitialRecord(models.Tournament{ID: id, BlindStructure: schedule(15, 20)}, start)
	require.NoError(t, err)

	created, err := repo.CreateClockIfAbsent(ctx, initial)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)
	require.NotNil(t, created.PausedAt)

	other := initial
	other.TimeRemainingSeconds = 1
	again, err := repo.CreateClockIfAbsent(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 900, again.TimeRemainingSeconds, "losing insert returns the stored row")

	resumed, _ := Resume(*created, start.Add(10*time.Second))
	saved, err := repo.SaveClock(ctx, id, created.Version, models.Diff(*created, resumed))
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)
	assert.False(t, saved.IsPaused)
	assert.Nil(t, saved.PausedAt)
	assert.Equal(t, 10, saved.TotalPauseTimeSeconds)
	assert.Equal(t, 1, saved.CurrentLevel, "untouched columns keep their value")
	assert.True(t, start.Add(10*time.Second).Equal(saved.LastUpdated))

	_, err = repo.SaveClock(ctx, id, created.Version, models.Diff(*created, resumed))
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, repo.DeleteClock(ctx, id))
	require.NoError(t, repo.DeleteClock(ctx, id))
	_, err = repo.LoadClock(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.SaveClock(ctx, id, saved.Version, models.Diff(*saved, resumed))
	assert.ErrorIs(t, err, ErrConflict)
}
