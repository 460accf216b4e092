package orchestrator

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mcdev12/tourneyclock/go/internal/models"
)

// DefaultMirrorSize bounds how many tournaments the ticker keeps in memory.
const DefaultMirrorSize = 1024

// Mirror is a bounded write-through copy of recently ticked clocks. The
// store stays authoritative; a miss only costs a store round trip.
type Mirror struct {
	mu    sync.Mutex
	cache *lru.Cache[uuid.UUID, models.ClockSnapshot]
}

// NewMirror creates a mirror holding at most size tournaments.
func NewMirror(size int) (*Mirror, error) {
	if size <= 0 {
		size = DefaultMirrorSize
	}
	cache, err := lru.New[uuid.UUID, models.ClockSnapshot](size)
	if err != nil {
		return nil, fmt.Errorf("create mirror cache: %w", err)
	}
	return &Mirror{cache: cache}, nil
}

// Get returns the cached snapshot for a tournament.
func (m *Mirror) Get(id uuid.UUID) (models.ClockSnapshot, bool) {
	return m.cache.Get(id)
}

// Put stores snap unless a newer version is already cached.
func (m *Mirror) Put(snap models.ClockSnapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.cache.Peek(snap.TournamentID); ok && cur.Version > snap.Version {
		return false
	}
	m.cache.Add(snap.TournamentID, snap)
	return true
}

// Evict drops a tournament, typically because it finished.
func (m *Mirror) Evict(id uuid.UUID) {
	m.cache.Remove(id)
}

// Len reports how many tournaments are mirrored.
func (m *Mirror) Len() int {
	return m.cache.Len()
}
