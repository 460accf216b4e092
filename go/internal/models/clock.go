package models

import (
	"time"

	"github.com/google/uuid"
)

// ClockRecord is the persisted countdown state for one tournament.
type ClockRecord struct {
	TournamentID          uuid.UUID  `json:"tournament_id"`
	CurrentLevel          int        `json:"current_level"`
	TimeRemainingSeconds  int        `json:"time_remaining_seconds"`
	IsPaused              bool       `json:"is_paused"`
	PausedAt              *time.Time `json:"paused_at,omitempty"`
	TotalPauseTimeSeconds int        `json:"total_pause_time_seconds"`
	LastUpdated           time.Time  `json:"last_updated"`
	Version               int64      `json:"version"`
}

// ClockPatch is a partial update to a ClockRecord. Nil fields are left as stored.
type ClockPatch struct {
	CurrentLevel          *int
	TimeRemainingSeconds  *int
	IsPaused              *bool
	PausedAt              *time.Time
	ClearPausedAt         bool
	TotalPauseTimeSeconds *int
	LastUpdated           *time.Time
}

// IsEmpty reports whether applying the patch would change nothing.
func (p ClockPatch) IsEmpty() bool {
	return p.CurrentLevel == nil &&
		p.TimeRemainingSeconds == nil &&
		p.IsPaused == nil &&
		p.PausedAt == nil &&
		!p.ClearPausedAt &&
		p.TotalPauseTimeSeconds == nil &&
		p.LastUpdated == nil
}

// Apply returns a copy of rec with the patch applied. Version is not touched.
func (p ClockPatch) Apply(rec ClockRecord) ClockRecord {
	if p.CurrentLevel != nil {
		rec.CurrentLevel = *p.CurrentLevel
	}
	if p.TimeRemainingSeconds != nil {
		rec.TimeRemainingSeconds = *p.TimeRemainingSeconds
	}
	if p.IsPaused != nil {
		rec.IsPaused = *p.IsPaused
	}
	if p.ClearPausedAt {
		rec.PausedAt = nil
	} else if p.PausedAt != nil {
		t := *p.PausedAt
		rec.PausedAt = &t
	}
	if p.TotalPauseTimeSeconds != nil {
		rec.TotalPauseTimeSeconds = *p.TotalPauseTimeSeconds
	}
	if p.LastUpdated != nil {
		rec.LastUpdated = *p.LastUpdated
	}
	return rec
}

// Diff builds the smallest patch that turns prev into next.
func Diff(prev, next ClockRecord) ClockPatch {
	var p ClockPatch
	if prev.CurrentLevel != next.CurrentLevel {
		v := next.CurrentLevel
		p.CurrentLevel = &v
	}
	if prev.TimeRemainingSeconds != next.TimeRemainingSeconds {
		v := next.TimeRemainingSeconds
		p.TimeRemainingSeconds = &v
	}
	if prev.IsPaused != next.IsPaused {
		v := next.IsPaused
		p.IsPaused = &v
	}
	switch {
	case next.PausedAt == nil && prev.PausedAt != nil:
		p.ClearPausedAt = true
	case next.PausedAt != nil && (prev.PausedAt == nil || !prev.PausedAt.Equal(*next.PausedAt)):
		v := *next.PausedAt
		p.PausedAt = &v
	}
	if prev.TotalPauseTimeSeconds != next.TotalPauseTimeSeconds {
		v := next.TotalPauseTimeSeconds
		p.TotalPauseTimeSeconds = &v
	}
	if !prev.LastUpdated.Equal(next.LastUpdated) {
		v := next.LastUpdated
		p.LastUpdated = &v
	}
	return p
}
