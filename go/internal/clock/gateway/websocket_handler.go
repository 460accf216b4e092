package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/tourneyclock/go/internal/clock"
	"github.com/mcdev12/tourneyclock/go/internal/clock/events"
	"github.com/mcdev12/tourneyclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

// SnapshotSource provides the snapshot sent to a subscriber when it joins.
type SnapshotSource interface {
	Snapshot(ctx context.Context, id uuid.UUID) (*models.ClockSnapshot, error)
}

// SnapshotFunc adapts a function to SnapshotSource.
type SnapshotFunc func(ctx context.Context, id uuid.UUID) (*models.ClockSnapshot, error)

func (f SnapshotFunc) Snapshot(ctx context.Context, id uuid.UUID) (*models.ClockSnapshot, error) {
	return f(ctx, id)
}

// WebSocketHandler handles WebSocket connection requests
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	source            SnapshotSource
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, source SnapshotSource) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm, source: source}
}

// HandleWebSocket joins a client to a tournament clock and sends clock-sync.
// Route: /ws/clock?tournament_id=<uuid>
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tournamentIDStr := r.URL.Query().Get("tournament_id")
	if tournamentIDStr == "" {
		http.Error(w, "tournament_id parameter required", http.StatusBadRequest)
		return
	}
	tournamentID, err := uuid.Parse(tournamentIDStr)
	if err != nil {
		http.Error(w, "invalid tournament_id format", http.StatusBadRequest)
		return
	}

	snap, err := h.source.Snapshot(r.Context(), tournamentID)
	if err != nil {
		log.Warn().Err(err).Str("tournament_id", tournamentIDStr).Msg("rejecting clock subscription")
		http.Error(w, err.Error(), StatusFromError(err))
		return
	}

	ev, err := events.Snapshot(events.TypeClockSync, *snap)
	if err != nil {
		log.Error().Err(err).Msg("failed to build clock-sync event")
		http.Error(w, "failed to encode clock state", http.StatusInternalServerError)
		return
	}

	// Upgrade writes its own HTTP error.
	if _, err := h.connectionManager.UpgradeConnection(w, r, tournamentID, ev); err != nil {
		log.Debug().Err(err).Str("tournament_id", tournamentIDStr).Msg("clock subscription not established")
	}
}

// HandleStats returns connection statistics
func (h *WebSocketHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// StatusFromError maps clock errors onto HTTP status codes.
func StatusFromError(err error) int {
	switch {
	case errors.Is(err, clock.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, clock.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, clock.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
