package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/tourneyclock/go/internal/clock/events"
	"github.com/mcdev12/tourneyclock/go/internal/clock/orchestrator"
	"github.com/mcdev12/tourneyclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Relay feeds bus events into a local mirror and the connection manager. It
// is the fan-out for gateway processes that do not run the ticker.
type Relay struct {
	connectionManager *ConnectionManager
	mirror            *orchestrator.Mirror
	fallback          SnapshotSource
}

// NewRelay creates a relay. fallback serves joins the mirror cannot.
func NewRelay(cm *ConnectionManager, mirror *orchestrator.Mirror, fallback SnapshotSource) *Relay {
	return &Relay{connectionManager: cm, mirror: mirror, fallback: fallback}
}

// HandleEvent updates the mirror from ev and broadcasts it.
func (r *Relay) HandleEvent(ctx context.Context, ev events.Event) error {
	payload, err := events.ParsePayload(ev)
	if err != nil {
		return fmt.Errorf("parse %s payload: %w", ev.Type, err)
	}

	switch p := payload.(type) {
	case events.ClockSnapshotPayload:
		r.mirror.Put(p.Snapshot)
	case events.LevelChangedPayload:
		r.mirror.Put(p.Snapshot)
	case events.TournamentEndedPayload:
		r.mirror.Evict(ev.TournamentID)
	}

	if err := r.connectionManager.Notify(ctx, ev); err != nil {
		// A full broadcast queue is not worth redelivering a clock tick for.
		log.Warn().Err(err).Str("event_id", ev.ID).Msg("dropped relayed event")
	}
	return nil
}

// Snapshot serves joins from the mirror, then the fallback source.
func (r *Relay) Snapshot(ctx context.Context, id uuid.UUID) (*models.ClockSnapshot, error) {
	if snap, ok := r.mirror.Get(id); ok {
		return &snap, nil
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("no clock state for tournament %s", id)
	}
	snap, err := r.fallback.Snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	r.mirror.Put(*snap)
	return snap, nil
}
