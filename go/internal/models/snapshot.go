package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ClockSnapshot is the clock state handed to callers and subscribers.
type ClockSnapshot struct {
	TournamentID          uuid.UUID   `json:"tournament_id"`
	CurrentLevel          int         `json:"current_level"`
	TimeRemainingSeconds  int         `json:"time_remaining_seconds"`
	IsPaused              bool        `json:"is_paused"`
	PausedAt              *time.Time  `json:"paused_at,omitempty"`
	TotalPauseTimeSeconds int         `json:"total_pause_time_seconds"`
	LastUpdated           time.Time   `json:"last_updated"`
	Version               int64       `json:"version"`
	Level                 *BlindLevel `json:"level,omitempty"`
	NextLevel             *BlindLevel `json:"next_level,omitempty"`
	Finished              bool        `json:"finished"`
	ServerTime            time.Time   `json:"server_time"`
}

// NewClockSnapshot decorates a record with its current and next level config.
func NewClockSnapshot(rec ClockRecord, schedule LevelSchedule, now time.Time) ClockSnapshot {
	s := ClockSnapshot{
		TournamentID:          rec.TournamentID,
		CurrentLevel:          rec.CurrentLevel,
		TimeRemainingSeconds:  rec.TimeRemainingSeconds,
		IsPaused:              rec.IsPaused,
		PausedAt:              rec.PausedAt,
		TotalPauseTimeSeconds: rec.TotalPauseTimeSeconds,
		LastUpdated:           rec.LastUpdated,
		Version:               rec.Version,
		ServerTime:            now.UTC(),
	}
	if lvl, ok := schedule.Level(rec.CurrentLevel); ok {
		s.Level = &lvl
	}
	if lvl, ok := schedule.Level(rec.CurrentLevel + 1); ok {
		s.NextLevel = &lvl
	}
	return s
}

// Record strips the level decoration.
func (s ClockSnapshot) Record() ClockRecord {
	return ClockRecord{
		TournamentID:          s.TournamentID,
		CurrentLevel:          s.CurrentLevel,
		TimeRemainingSeconds:  s.TimeRemainingSeconds,
		IsPaused:              s.IsPaused,
		PausedAt:              s.PausedAt,
		TotalPauseTimeSeconds: s.TotalPauseTimeSeconds,
		LastUpdated:           s.LastUpdated,
		Version:               s.Version,
	}
}

// UnmarshalJSON accepts timestamps written by other producers, including
// zone-less ones, via ParseTimestamp.
func (s *ClockSnapshot) UnmarshalJSON(data []byte) error {
	type alias ClockSnapshot
	var wire struct {
		alias
		PausedAt    *string `json:"paused_at,omitempty"`
		LastUpdated string  `json:"last_updated"`
		ServerTime  string  `json:"server_time"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	now := time.Now().UTC()
	*s = ClockSnapshot(wire.alias)
	s.ServerTime = ParseTimestamp(wire.ServerTime, now)
	s.LastUpdated = ParseTimestamp(wire.LastUpdated, s.ServerTime)
	s.PausedAt = nil
	if wire.PausedAt != nil {
		t := ParseTimestamp(*wire.PausedAt, s.ServerTime)
		s.PausedAt = &t
	}
	return nil
}
