package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// TournamentStatus defines the lifecycle status of a tournament.
type TournamentStatus string

const (
	TournamentStatusScheduled TournamentStatus = "scheduled"
	TournamentStatusActive    TournamentStatus = "active"
	TournamentStatusFinished  TournamentStatus = "finished"
	TournamentStatusCancelled TournamentStatus = "cancelled"
)

// BlindLevel is one entry of a tournament's blind structure.
type BlindLevel struct {
	Level           int     `json:"level" yaml:"level"`
	SmallBlind      int64   `json:"small_blind" yaml:"small_blind"`
	BigBlind        int64   `json:"big_blind" yaml:"big_blind"`
	Ante            *int64  `json:"ante,omitempty" yaml:"ante,omitempty"`
	DurationMinutes float64 `json:"duration_minutes" yaml:"duration_minutes"`
}

// DurationSeconds returns the level length rounded to whole seconds.
func (b BlindLevel) DurationSeconds() int {
	return int(math.Round(b.DurationMinutes * 60))
}

// LevelSchedule is the ordered, 1-based blind structure of a tournament.
type LevelSchedule []BlindLevel

// Len returns the number of configured levels.
func (s LevelSchedule) Len() int {
	return len(s)
}

// Level looks up a level by its 1-based number.
func (s LevelSchedule) Level(n int) (BlindLevel, bool) {
	if n < 1 || n > len(s) {
		return BlindLevel{}, false
	}
	return s[n-1], true
}

// Validate checks levels are numbered 1..n in order with positive durations.
func (s LevelSchedule) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("blind structure has no levels")
	}
	for i, lvl := range s {
		if lvl.Level != i+1 {
			return fmt.Errorf("level %d out of order at position %d", lvl.Level, i+1)
		}
		if lvl.DurationSeconds() <= 0 {
			return fmt.Errorf("level %d must have a positive duration", lvl.Level)
		}
		if lvl.SmallBlind < 0 || lvl.BigBlind < lvl.SmallBlind {
			return fmt.Errorf("level %d has invalid blinds %d/%d", lvl.Level, lvl.SmallBlind, lvl.BigBlind)
		}
	}
	return nil
}

// Tournament is the slice of the tournament entity the clock depends on.
type Tournament struct {
	ID             uuid.UUID        `json:"id"`
	Name           string           `json:"name"`
	Status         TournamentStatus `json:"status"`
	BlindStructure LevelSchedule    `json:"blind_structure"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	EndedAt        *time.Time       `json:"ended_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}
