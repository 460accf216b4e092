package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/tourneyclock/go/internal/models"
)

// Type is the name of a clock event as seen by subscribers.
type Type string

const (
	TypeClockSync       Type = "clock-sync"
	TypeClockUpdate     Type = "clock-update"
	TypePauseToggled    Type = "clock-pause-toggled"
	TypeTimeAdjusted    Type = "clock-time-adjusted"
	TypeLevelChanged    Type = "level-changed"
	TypeTournamentEnded Type = "tournament-ended"
)

// Event is the envelope for everything pushed to subscribers of a tournament.
type Event struct {
	ID           string          `json:"id"`
	TournamentID uuid.UUID       `json:"tournament_id"`
	Type         Type            `json:"type"`
	Version      int64           `json:"version"`
	Timestamp    time.Time       `json:"timestamp"`
	Data         json.RawMessage `json:"data"`
}

// ClockSnapshotPayload is carried by clock-sync, clock-update,
// clock-pause-toggled and clock-time-adjusted.
type ClockSnapshotPayload struct {
	Snapshot models.ClockSnapshot `json:"snapshot"`
}

// LevelChangedPayload is carried by level-changed.
type LevelChangedPayload struct {
	Level    models.BlindLevel    `json:"level"`
	Snapshot models.ClockSnapshot `json:"snapshot"`
}

// TournamentEndedPayload is carried by tournament-ended.
type TournamentEndedPayload struct {
	EndedAt    time.Time `json:"ended_at"`
	FinalLevel int       `json:"final_level"`
}

// New builds an envelope around payload.
func New(t Type, tournamentID uuid.UUID, version int64, at time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{
		ID:           uuid.New().String(),
		TournamentID: tournamentID,
		Type:         t,
		Version:      version,
		Timestamp:    at.UTC(),
		Data:         data,
	}, nil
}

// Snapshot builds a snapshot-carrying event.
func Snapshot(t Type, snap models.ClockSnapshot) (Event, error) {
	return New(t, snap.TournamentID, snap.Version, snap.ServerTime, ClockSnapshotPayload{Snapshot: snap})
}

// LevelChanged builds a level-changed event.
func LevelChanged(level models.BlindLevel, snap models.ClockSnapshot) (Event, error) {
	return New(TypeLevelChanged, snap.TournamentID, snap.Version, snap.ServerTime, LevelChangedPayload{Level: level, Snapshot: snap})
}

// TournamentEnded builds a tournament-ended event.
func TournamentEnded(tournamentID uuid.UUID, version int64, endedAt time.Time, finalLevel int) (Event, error) {
	return New(TypeTournamentEnded, tournamentID, version, endedAt, TournamentEndedPayload{EndedAt: endedAt.UTC(), FinalLevel: finalLevel})
}

// ParseType validates a wire event type.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeClockSync, TypeClockUpdate, TypePauseToggled, TypeTimeAdjusted, TypeLevelChanged, TypeTournamentEnded:
		return t, nil
	default:
		return "", fmt.Errorf("unknown event type: %s", s)
	}
}

// ParsePayload decodes the event data into the payload struct for its type.
func ParsePayload(ev Event) (any, error) {
	switch ev.Type {
	case TypeClockSync, TypeClockUpdate, TypePauseToggled, TypeTimeAdjusted:
		var p ClockSnapshotPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeLevelChanged:
		var p LevelChangedPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeTournamentEnded:
		var p TournamentEndedPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", ev.Type)
	}
}
