package tournament

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/tourneyclock/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClocks struct {
	mu      sync.Mutex
	ensured []uuid.UUID
	fail    map[uuid.UUID]bool
}

func (f *fakeClocks) EnsureClock(_ context.Context, t models.Tournament) (*models.ClockRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[t.ID] {
		return nil, errors.New("store down")
	}
	f.ensured = append(f.ensured, t.ID)
	return &models.ClockRecord{TournamentID: t.ID, CurrentLevel: 1}, nil
}

func TestHandleNotification(t *testing.T) {
	active := models.Tournament{ID: uuid.New(), Status: models.TournamentStatusActive, BlindStructure: blinds()}
	clocks := &fakeClocks{}
	var finished []uuid.UUID
	l := newListener(NewApp(newFakeRepo(active)), clocks, func(id uuid.UUID) {
		finished = append(finished, id)
	}, DefaultListenerConfig())
	ctx := context.Background()

	require.NoError(t, l.handleNotification(ctx, formatNote(active.ID, models.TournamentStatusActive)))
	assert.Equal(t, []uuid.UUID{active.ID}, clocks.ensured)

	ended := uuid.New()
	require.NoError(t, l.handleNotification(ctx, formatNote(ended, models.TournamentStatusFinished)))
	require.NoError(t, l.handleNotification(ctx, formatNote(ended, models.TournamentStatusCancelled)))
	assert.Equal(t, []uuid.UUID{ended, ended}, finished)

	require.NoError(t, l.handleNotification(ctx, formatNote(uuid.New(), models.TournamentStatusScheduled)))
	assert.Error(t, l.handleNotification(ctx, formatNote(uuid.New(), models.TournamentStatusActive)))
	assert.Error(t, l.handleNotification(ctx, "garbage"))
}

func TestReconcileContinuesPastFailures(t *testing.T) {
	a := models.Tournament{ID: uuid.New(), Status: models.TournamentStatusActive}
	b := models.Tournament{ID: uuid.New(), Status: models.TournamentStatusActive}
	done := models.Tournament{ID: uuid.New(), Status: models.TournamentStatusFinished}
	clocks := &fakeClocks{fail: map[uuid.UUID]bool{a.ID: true}}
	l := newListener(NewApp(newFakeRepo(a, b, done)), clocks, nil, DefaultListenerConfig())

	require.NoError(t, l.reconcile(context.Background()))
	assert.Equal(t, []uuid.UUID{b.ID}, clocks.ensured)
	assert.NoError(t, l.Stop())
}
