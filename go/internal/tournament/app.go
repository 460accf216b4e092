package tournament

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/tourneyclock/go/internal/clock"
	"github.com/mcdev12/tourneyclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

// TournamentRepository defines what the tournament app layer needs from persistence.
type TournamentRepository interface {
	GetTournament(ctx context.Context, id uuid.UUID) (*models.Tournament, error)
	ListActiveTournaments(ctx context.Context) ([]models.Tournament, error)
	CreateTournament(ctx context.Context, t models.Tournament) (*models.Tournament, error)
	ActivateTournament(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	MarkFinished(ctx context.Context, id uuid.UUID, endedAt time.Time) error
}

// App handles the slice of tournament logic the clock depends on.
type App struct {
	repo TournamentRepository
}

// NewApp creates a new tournament App
func NewApp(repo TournamentRepository) *App {
	return &App{repo: repo}
}

// GetTournament retrieves a tournament by ID
func (a *App) GetTournament(ctx context.Context, id uuid.UUID) (*models.Tournament, error) {
	return a.repo.GetTournament(ctx, id)
}

// ListActiveTournaments returns tournaments the clock driver should tick.
func (a *App) ListActiveTournaments(ctx context.Context) ([]models.Tournament, error) {
	return a.repo.ListActiveTournaments(ctx)
}

// MarkFinished ends the tournament.
func (a *App) MarkFinished(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	if err := a.repo.MarkFinished(ctx, id, endedAt); err != nil {
		return fmt.Errorf("failed to mark tournament finished: %w", err)
	}
	log.Info().Str("tournament_id", id.String()).Time("ended_at", endedAt).Msg("tournament marked finished")
	return nil
}

// CreateTournament validates and stores a scheduled tournament.
func (a *App) CreateTournament(ctx context.Context, t models.Tournament) (*models.Tournament, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return nil, fmt.Errorf("%w: tournament name is required", clock.ErrValidation)
	}
	if err := t.BlindStructure.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", clock.ErrValidation, err)
	}

	created, err := a.repo.CreateTournament(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}
	log.Info().Str("tournament_id", created.ID.String()).Int("levels", t.BlindStructure.Len()).Msg("created tournament")
	return created, nil
}

// Activate starts a scheduled tournament. Its clock is created by whoever
// observes the status change.
func (a *App) Activate(ctx context.Context, id uuid.UUID, startedAt time.Time) (*models.Tournament, error) {
	t, err := a.repo.GetTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TournamentStatusScheduled {
		return nil, fmt.Errorf("%w: tournament %s is %s", clock.ErrInvalidState, id, t.Status)
	}
	if t.BlindStructure.Len() == 0 {
		return nil, fmt.Errorf("%w: tournament %s has no blind structure", clock.ErrNotFound, id)
	}
	if err := a.repo.ActivateTournament(ctx, id, startedAt); err != nil {
		return nil, fmt.Errorf("failed to activate tournament: %w", err)
	}

	t.Status = models.TournamentStatusActive
	started := startedAt.UTC()
	t.StartedAt = &started
	log.Info().Str("tournament_id", id.String()).Msg("tournament activated")
	return t, nil
}

func formatNote(id uuid.UUID, status models.TournamentStatus) string {
	return id.String() + ":" + string(status)
}

func parseNote(extra string) (uuid.UUID, models.TournamentStatus, error) {
	raw, status, ok := strings.Cut(extra, ":")
	if !ok {
		return uuid.Nil, "", fmt.Errorf("malformed status notification %q", extra)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid tournament ID in notification: %w", err)
	}
	return id, models.TournamentStatus(status), nil
}
