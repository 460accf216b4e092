package tournament

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/tourneyclock/go/internal/clock"
	"github.com/mcdev12/tourneyclock/go/internal/models"
	"github.com/mcdev12/tourneyclock/go/internal/sqlutil"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
)

// StatusChannel is the Postgres NOTIFY channel for tournament status changes.
// Payloads are "<tournament id>:<status>".
const StatusChannel = "tournament_status_changed"

const tournamentColumns = `id, name, status, blind_structure, started_at, ended_at, created_at, updated_at`

// Repository handles tournament database operations
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new tournament repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetTournament retrieves a tournament by ID
func (r *Repository) GetTournament(ctx context.Context, id uuid.UUID) (*models.Tournament, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tournamentColumns+` FROM tournaments WHERE id = $1`, id)
	t, err := scanTournament(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tournament %s: %w", id, clock.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tournament: %w", err)
	}
	return t, nil
}

// ListActiveTournaments returns every tournament currently in play.
func (r *Repository) ListActiveTournaments(ctx context.Context) ([]models.Tournament, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tournamentColumns+` FROM tournaments WHERE status = $1 ORDER BY started_at NULLS LAST, id`,
		string(models.TournamentStatusActive),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tournaments: %w", err)
	}
	defer rows.Close()

	var out []models.Tournament
	for rows.Next() {
		t, err := scanTournament(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tournament: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list active tournaments: %w", err)
	}
	return out, nil
}

// CreateTournament inserts a tournament, or refreshes name and blind
// structure when it exists and has not started yet.
func (r *Repository) CreateTournament(ctx context.Context, t models.Tournament) (*models.Tournament, error) {
	blinds, err := sqlutil.ToNullRawMessage(t.BlindStructure)
	if err != nil {
		return nil, fmt.Errorf("failed to encode blind structure: %w", err)
	}
	now := time.Now().UTC()

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO tournaments (id, name, status, blind_structure, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, blind_structure = EXCLUDED.blind_structure, updated_at = EXCLUDED.updated_at
		WHERE tournaments.status = 'scheduled'
		RETURNING `+tournamentColumns,
		t.ID, t.Name, string(models.TournamentStatusScheduled), blinds, now,
	)
	created, err := scanTournament(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: tournament %s already started", clock.ErrInvalidState, t.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}
	return created, nil
}

// ActivateTournament moves a scheduled tournament to active and notifies listeners.
func (r *Repository) ActivateTournament(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	return r.transition(ctx, id, models.TournamentStatusScheduled, models.TournamentStatusActive,
		`UPDATE tournaments SET status = $2, started_at = $3, updated_at = $3 WHERE id = $1 AND status = $4`,
		startedAt,
	)
}

// MarkFinished ends an active tournament and records its end time.
func (r *Repository) MarkFinished(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	return r.transition(ctx, id, models.TournamentStatusActive, models.TournamentStatusFinished,
		`UPDATE tournaments SET status = $2, ended_at = $3, updated_at = $3 WHERE id = $1 AND status = $4`,
		endedAt,
	)
}

// transition performs a guarded status change and pg_notify in one transaction.
func (r *Repository) transition(ctx context.Context, id uuid.UUID, from, to models.TournamentStatus, query string, at time.Time) error {
	return sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, id, string(to), at.UTC(), string(from))
		if err != nil {
			return fmt.Errorf("failed to update tournament status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			var current string
			err := tx.QueryRowContext(ctx, `SELECT status FROM tournaments WHERE id = $1`, id).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("tournament %s: %w", id, clock.ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("failed to read tournament status: %w", err)
			}
			return fmt.Errorf("%w: tournament %s is %s, want %s", clock.ErrInvalidState, id, current, from)
		}

		if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, StatusChannel, formatNote(id, to)); err != nil {
			return fmt.Errorf("failed to notify status change: %w", err)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTournament(row rowScanner) (*models.Tournament, error) {
	var (
		t         models.Tournament
		status    string
		blinds    pqtype.NullRawMessage
		startedAt sql.NullTime
		endedAt   sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.Name, &status, &blinds, &startedAt, &endedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = models.TournamentStatus(status)
	t.StartedAt = sqlutil.FromSqlTime(startedAt)
	t.EndedAt = sqlutil.FromSqlTime(endedAt)
	t.CreatedAt = sqlutil.AsUTC(t.CreatedAt)
	t.UpdatedAt = sqlutil.AsUTC(t.UpdatedAt)

	var schedule models.LevelSchedule
	ok, err := sqlutil.FromNullRawMessage(blinds, &schedule)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("tournament_id", t.ID.String()).Msg("undecodable blind structure")
	case ok:
		if err := schedule.Validate(); err != nil {
			log.Warn().Err(err).Str("tournament_id", t.ID.String()).Msg("invalid blind structure")
		} else {
			t.BlindStructure = schedule
		}
	}
	return &t, nil
}
