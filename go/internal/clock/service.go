package clock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mcdev12/tourneyclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ServiceName is the fully-qualified Connect service name.
const ServiceName = "clock.v1.ClockService"

// Procedure paths
const (
	JoinProcedure        = "/" + ServiceName + "/Join"
	GetStateProcedure    = "/" + ServiceName + "/GetState"
	PauseProcedure       = "/" + ServiceName + "/Pause"
	ResumeProcedure      = "/" + ServiceName + "/Resume"
	AdjustTimeProcedure  = "/" + ServiceName + "/AdjustTime"
	ChangeLevelProcedure = "/" + ServiceName + "/ChangeLevel"
	SyncAllProcedure     = "/" + ServiceName + "/SyncAll"
)

// TournamentRequest addresses a single tournament clock.
type TournamentRequest struct {
	TournamentID string `json:"tournament_id"`
}

// AdjustTimeRequest sets the remaining seconds of the current level.
type AdjustTimeRequest struct {
	TournamentID string `json:"tournament_id"`
	Seconds      int    `json:"seconds"`
}

// ChangeLevelRequest moves the clock to another level.
type ChangeLevelRequest struct {
	TournamentID string `json:"tournament_id"`
	Level        int    `json:"level"`
}

// SnapshotResponse carries the clock state after an operation.
type SnapshotResponse struct {
	Snapshot models.ClockSnapshot `json:"snapshot"`
}

// SyncAllRequest is empty; SyncAll always covers every active tournament.
type SyncAllRequest struct{}

// ClockApp defines what the service layer needs from the clock application
type ClockApp interface {
	Join(ctx context.Context, id uuid.UUID) (*models.ClockSnapshot, error)
	GetState(ctx context.Context, id uuid.UUID) (*models.ClockSnapshot, error)
	Pause(ctx context.Context, id uuid.UUID) (*models.ClockSnapshot, error)
	Resume(ctx context.Context, id uuid.UUID) (*models.ClockSnapshot, error)
	AdjustTime(ctx context.Context, id uuid.UUID, seconds int) (*models.ClockSnapshot, error)
	ChangeLevel(ctx context.Context, id uuid.UUID, level int) (*models.ClockSnapshot, error)
	SyncAll(ctx context.Context) (SyncReport, error)
}

// Service exposes the clock app over Connect and plain HTTP.
type Service struct {
	app ClockApp
}

// NewService creates a new clock service
func NewService(app ClockApp) *Service {
	return &Service{app: app}
}

// Register mounts every Connect procedure on mux.
func (s *Service) Register(mux interface {
	Handle(pattern string, handler http.Handler)
}) {
	opts := []connect.HandlerOption{connect.WithCodec(jsonCodec{})}

	mux.Handle(JoinProcedure, connect.NewUnaryHandler(JoinProcedure, s.Join, opts...))
	mux.Handle(GetStateProcedure, connect.NewUnaryHandler(GetStateProcedure, s.GetState, opts...))
	mux.Handle(PauseProcedure, connect.NewUnaryHandler(PauseProcedure, s.Pause, opts...))
	mux.Handle(ResumeProcedure, connect.NewUnaryHandler(ResumeProcedure, s.Resume, opts...))
	mux.Handle(AdjustTimeProcedure, connect.NewUnaryHandler(AdjustTimeProcedure, s.AdjustTime, opts...))
	mux.Handle(ChangeLevelProcedure, connect.NewUnaryHandler(ChangeLevelProcedure, s.ChangeLevel, opts...))
	mux.Handle(SyncAllProcedure, connect.NewUnaryHandler(SyncAllProcedure, s.SyncAll, opts...))
}

// Join returns the clock state for a subscriber, creating the clock if needed.
func (s *Service) Join(ctx context.Context, req *connect.Request[TournamentRequest]) (*connect.Response[SnapshotResponse], error) {
	return s.byID(ctx, req.Msg.TournamentID, s.app.Join)
}

// GetState returns the computed clock state without writing it.
func (s *Service) GetState(ctx context.Context, req *connect.Request[TournamentRequest]) (*connect.Response[SnapshotResponse], error) {
	return s.byID(ctx, req.Msg.TournamentID, s.app.GetState)
}

func (s *Service) Pause(ctx context.Context, req *connect.Request[TournamentRequest]) (*connect.Response[SnapshotResponse], error) {
	return s.byID(ctx, req.Msg.TournamentID, s.app.Pause)
}

func (s *Service) Resume(ctx context.Context, req *connect.Request[TournamentRequest]) (*connect.Response[SnapshotResponse], error) {
	return s.byID(ctx, req.Msg.TournamentID, s.app.Resume)
}

func (s *Service) AdjustTime(ctx context.Context, req *connect.Request[AdjustTimeRequest]) (*connect.Response[SnapshotResponse], error) {
	return s.byID(ctx, req.Msg.TournamentID, func(ctx context.Context, id uuid.UUID) (*models.ClockSnapshot, error) {
		return s.app.AdjustTime(ctx, id, req.Msg.Seconds)
	})
}

func (s *Service) ChangeLevel(ctx context.Context, req *connect.Request[ChangeLevelRequest]) (*connect.Response[SnapshotResponse], error) {
	return s.byID(ctx, req.Msg.TournamentID, func(ctx context.Context, id uuid.UUID) (*models.ClockSnapshot, error) {
		return s.app.ChangeLevel(ctx, id, req.Msg.Level)
	})
}

// SyncAll runs one batch pass over every active tournament.
func (s *Service) SyncAll(ctx context.Context, _ *connect.Request[SyncAllRequest]) (*connect.Response[SyncReport], error) {
	report, err := s.app.SyncAll(ctx)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&report), nil
}

// HandleClockState serves GET /api/tournaments/{id}/clock for polling clients.
func (s *Service) HandleClockState(w http.ResponseWriter, r *http.Request) {
	id, err := parseTournamentID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap, err := s.app.GetState(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), httpStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		log.Error().Err(err).Str("tournament_id", id.String()).Msg("failed to encode clock state")
	}
}

func (s *Service) byID(ctx context.Context, raw string, fn func(context.Context, uuid.UUID) (*models.ClockSnapshot, error)) (*connect.Response[SnapshotResponse], error) {
	id, err := parseTournamentID(raw)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	snap, err := fn(ctx, id)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&SnapshotResponse{Snapshot: *snap}), nil
}

func parseTournamentID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, validationf("invalid tournament ID %q", raw)
	}
	if id == uuid.Nil {
		return uuid.Nil, validationf("tournament ID is required")
	}
	return id, nil
}

func connectError(err error) error {
	var transientErr *TransientError
	switch {
	case errors.Is(err, ErrValidation):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, ErrInvalidState):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.As(err, &transientErr):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, fmt.Errorf("internal error: %w", err))
	}
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
