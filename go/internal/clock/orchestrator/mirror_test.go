package orchestrator

import (
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/tourneyclock/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirrorRejectsStaleVersions(t *testing.T) {
	m, err := NewMirror(4)
	require.NoError(t, err)
	id := uuid.New()

	assert.True(t, m.Put(models.ClockSnapshot{TournamentID: id, Version: 5, TimeRemainingSeconds: 50}))
	assert.False(t, m.Put(models.ClockSnapshot{TournamentID: id, Version: 4, TimeRemainingSeconds: 99}))
	assert.True(t, m.Put(models.ClockSnapshot{TournamentID: id, Version: 5, TimeRemainingSeconds: 49}))

	got, ok := m.Get(id)
	require.True(t, ok)
	assert.Equal(t, 49, got.TimeRemainingSeconds)

	m.Evict(id)
	_, ok = m.Get(id)
	assert.False(t, ok)
}

func TestMirrorIsBounded(t *testing.T) {
	m, err := NewMirror(2)
	require.NoError(t, err)

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		m.Put(models.ClockSnapshot{TournamentID: id, Version: 1})
	}

	assert.Equal(t, 2, m.Len())
	_, ok := m.Get(ids[0])
	assert.False(t, ok, "oldest entry should be evicted")
}

func TestNewMirrorDefaultsSize(t *testing.T) {
	m, err := NewMirror(0)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
}
