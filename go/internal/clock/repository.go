package clock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/tourneyclock/go/internal/models"
	"github.com/mcdev12/tourneyclock/go/internal/sqlutil"
)

const clockColumns = `tournament_id, current_level, time_remaining_seconds, is_paused,
	paused_at, total_pause_time_seconds, last_updated, version`

const loadClockSQL = `SELECT ` + clockColumns + ` FROM clock_records WHERE tournament_id = $1`

const saveClockSQL = `UPDATE clock_records SET
	current_level            = COALESCE($3::integer, current_level),
	time_remaining_seconds   = COALESCE($4::integer, time_remaining_seconds),
	is_paused                = COALESCE($5::boolean, is_paused),
	paused_at                = CASE WHEN $6::boolean THEN NULL ELSE COALESCE($7::timestamp, paused_at) END,
	total_pause_time_seconds = COALESCE($8::integer, total_pause_time_seconds),
	last_updated             = COALESCE($9::timestamp, last_updated),
	version                  = version + 1
WHERE tournament_id = $1 AND version = $2
RETURNING ` + clockColumns

const createClockSQL = `INSERT INTO clock_records (
	tournament_id, current_level, time_remaining_seconds, is_paused,
	paused_at, total_pause_time_seconds, last_updated, version
) VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
ON CONFLICT (tournament_id) DO NOTHING
RETURNING ` + clockColumns

const deleteClockSQL = `DELETE FROM clock_records WHERE tournament_id = $1`

// Repository handles clock persistence in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new clock repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LoadClock retrieves the clock record for a tournament
func (r *Repository) LoadClock(ctx context.Context, id uuid.UUID) (*models.ClockRecord, error) {
	rec, err := scanClock(r.pool.QueryRow(ctx, loadClockSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("clock for tournament %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load clock: %w", err)
	}
	return rec, nil
}

// SaveClock applies patch only if the row is still at expectedVersion.
func (r *Repository) SaveClock(ctx context.Context, id uuid.UUID, expectedVersion int64, patch models.ClockPatch) (*models.ClockRecord, error) {
	rec, err := scanClock(r.pool.QueryRow(ctx, saveClockSQL, saveClockArgs(id, expectedVersion, patch)...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("clock for tournament %s at version %d: %w", id, expectedVersion, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save clock: %w", err)
	}
	return rec, nil
}

// CreateClockIfAbsent inserts the initial record. A concurrent insert that
// got there first is returned instead.
func (r *Repository) CreateClockIfAbsent(ctx context.Context, initial models.ClockRecord) (*models.ClockRecord, error) {
	rec, err := scanClock(r.pool.QueryRow(ctx, createClockSQL, createClockArgs(initial)...))
	if errors.Is(err, pgx.ErrNoRows) {
		return r.LoadClock(ctx, initial.TournamentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create clock: %w", err)
	}
	return rec, nil
}

// DeleteClock removes the clock of a finished tournament.
func (r *Repository) DeleteClock(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, deleteClockSQL, id); err != nil {
		return fmt.Errorf("failed to delete clock: %w", err)
	}
	return nil
}

// saveClockArgs binds a patch to saveClockSQL. Nil fields become NULL so
// COALESCE keeps the stored value.
func saveClockArgs(id uuid.UUID, expectedVersion int64, patch models.ClockPatch) []any {
	return []any{
		id,
		expectedVersion,
		patch.CurrentLevel,
		patch.TimeRemainingSeconds,
		patch.IsPaused,
		patch.ClearPausedAt,
		utcPtr(patch.PausedAt),
		patch.TotalPauseTimeSeconds,
		utcPtr(patch.LastUpdated),
	}
}

func createClockArgs(initial models.ClockRecord) []any {
	return []any{
		initial.TournamentID,
		initial.CurrentLevel,
		initial.TimeRemainingSeconds,
		initial.IsPaused,
		utcPtr(initial.PausedAt),
		initial.TotalPauseTimeSeconds,
		initial.LastUpdated.UTC(),
	}
}

func scanClock(row pgx.Row) (*models.ClockRecord, error) {
	var rec models.ClockRecord
	err := row.Scan(
		&rec.TournamentID,
		&rec.CurrentLevel,
		&rec.TimeRemainingSeconds,
		&rec.IsPaused,
		&rec.PausedAt,
		&rec.TotalPauseTimeSeconds,
		&rec.LastUpdated,
		&rec.Version,
	)
	if err != nil {
		return nil, err
	}
	// timestamp columns carry no zone; they are always written as UTC.
	rec.LastUpdated = sqlutil.AsUTC(rec.LastUpdated)
	if rec.PausedAt != nil {
		t := sqlutil.AsUTC(*rec.PausedAt)
		rec.PausedAt = &t
	}
	return &rec, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
