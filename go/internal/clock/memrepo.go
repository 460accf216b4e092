package clock

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/tourneyclock/go/internal/models"
)

// MemoryRepository is an in-process ClockRepository with the same
// conditional-write semantics as the Postgres one.
type MemoryRepository struct {
	mu     sync.Mutex
	clocks map[uuid.UUID]models.ClockRecord
}

// NewMemoryRepository creates an empty in-memory clock store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{clocks: make(map[uuid.UUID]models.ClockRecord)}
}

func (r *MemoryRepository) LoadClock(_ context.Context, id uuid.UUID) (*models.ClockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.clocks[id]
	if !ok {
		return nil, fmt.Errorf("clock for tournament %s: %w", id, ErrNotFound)
	}
	return cloneRecord(rec), nil
}

func (r *MemoryRepository) SaveClock(_ context.Context, id uuid.UUID, expectedVersion int64, patch models.ClockPatch) (*models.ClockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.clocks[id]
	if !ok || rec.Version != expectedVersion {
		return nil, fmt.Errorf("clock for tournament %s at version %d: %w", id, expectedVersion, ErrConflict)
	}
	next := patch.Apply(rec)
	next.Version = rec.Version + 1
	r.clocks[id] = next
	return cloneRecord(next), nil
}

func (r *MemoryRepository) CreateClockIfAbsent(_ context.Context, initial models.ClockRecord) (*models.ClockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.clocks[initial.TournamentID]; ok {
		return cloneRecord(rec), nil
	}
	initial.Version = 1
	r.clocks[initial.TournamentID] = initial
	return cloneRecord(initial), nil
}

func (r *MemoryRepository) DeleteClock(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clocks, id)
	return nil
}

func cloneRecord(rec models.ClockRecord) *models.ClockRecord {
	if rec.PausedAt != nil {
		t := *rec.PausedAt
		rec.PausedAt = &t
	}
	return &rec
}
