package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/tourneyclock/go/internal/clock"
	"github.com/mcdev12/tourneyclock/go/internal/clock/events"
	"github.com/mcdev12/tourneyclock/go/internal/clock/orchestrator"
	"github.com/mcdev12/tourneyclock/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var serverTime = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

func snapshotAt(id uuid.UUID, version int64, remaining int) models.ClockSnapshot {
	return models.ClockSnapshot{
		TournamentID:         id,
		CurrentLevel:         1,
		TimeRemainingSeconds: remaining,
		LastUpdated:          serverTime,
		ServerTime:           serverTime,
		Version:              version,
	}
}

func knownClock(id uuid.UUID) SnapshotSource {
	return SnapshotFunc(func(_ context.Context, got uuid.UUID) (*models.ClockSnapshot, error) {
		if got != id {
			return nil, fmt.Errorf("tournament %s: %w", got, clock.ErrNotFound)
		}
		snap := snapshotAt(id, 1, 600)
		return &snap, nil
	})
}

func newGatewayServer(t *testing.T, source SnapshotSource) (*ConnectionManager, *httptest.Server) {
	t.Helper()
	cm := NewConnectionManager(DefaultConnectionConfig())
	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)

	ws := NewWebSocketHandler(cm, source)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/clock", ws.HandleWebSocket)
	mux.HandleFunc("/ws/stats", ws.HandleStats)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return cm, srv
}

func dial(t *testing.T, srv *httptest.Server, id uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/clock?tournament_id=" + id.String()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestJoinReceivesClockSync(t *testing.T) {
	id := uuid.New()
	_, srv := newGatewayServer(t, knownClock(id))

	conn := dial(t, srv, id)
	ev := readEvent(t, conn)
	assert.Equal(t, events.TypeClockSync, ev.Type)
	assert.Equal(t, id, ev.TournamentID)

	payload, err := events.ParsePayload(ev)
	require.NoError(t, err)
	assert.Equal(t, 600, payload.(events.ClockSnapshotPayload).Snapshot.TimeRemainingSeconds)
}

func TestBroadcastDropsStaleVersions(t *testing.T) {
	id := uuid.New()
	cm, srv := newGatewayServer(t, knownClock(id))
	conn := dial(t, srv, id)
	readEvent(t, conn)

	ctx := context.Background()
	for _, v := range []struct {
		version   int64
		remaining int
	}{{3, 598}, {2, 599}, {4, 597}} {
		ev, err := events.Snapshot(events.TypeClockUpdate, snapshotAt(id, v.version, v.remaining))
		require.NoError(t, err)
		require.NoError(t, cm.Notify(ctx, ev))
	}

	assert.Equal(t, int64(3), readEvent(t, conn).Version)
	assert.Equal(t, int64(4), readEvent(t, conn).Version)
}

func TestJoinSyncIsNeverOvertaken(t *testing.T) {
	id := uuid.New()
	source := SnapshotFunc(func(_ context.Context, got uuid.UUID) (*models.ClockSnapshot, error) {
		snap := snapshotAt(got, 5, 300)
		return &snap, nil
	})
	cm, srv := newGatewayServer(t, source)
	conn := dial(t, srv, id)

	ctx := context.Background()
	notify := func(typ events.Type, version int64) {
		t.Helper()
		ev, err := events.Snapshot(typ, snapshotAt(id, version, 300-int(version)))
		require.NoError(t, err)
		require.NoError(t, cm.Notify(ctx, ev))
	}
	// Older than the joined state, then the same clock-sync broadcast to
	// everyone by the join itself, then a real update.
	notify(events.TypeLevelChanged, 4)
	notify(events.TypeClockSync, 5)
	notify(events.TypeClockUpdate, 6)

	first := readEvent(t, conn)
	assert.Equal(t, events.TypeClockSync, first.Type)
	assert.Equal(t, int64(5), first.Version)

	next := readEvent(t, conn)
	assert.Equal(t, events.TypeClockUpdate, next.Type)
	assert.Equal(t, int64(6), next.Version)
}

func TestConnectionSkips(t *testing.T) {
	c := &Connection{joinVersion: 7}
	assert.True(t, c.skips(events.Event{Type: events.TypeClockUpdate, Version: 6}))
	assert.True(t, c.skips(events.Event{Type: events.TypeClockSync, Version: 7}))
	assert.False(t, c.skips(events.Event{Type: events.TypePauseToggled, Version: 7}))
	assert.False(t, c.skips(events.Event{Type: events.TypeClockSync, Version: 8}))
}

func TestBroadcastOnlyReachesTournamentSubscribers(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	source := SnapshotFunc(func(_ context.Context, id uuid.UUID) (*models.ClockSnapshot, error) {
		snap := snapshotAt(id, 1, 600)
		return &snap, nil
	})
	cm, srv := newGatewayServer(t, source)
	connA := dial(t, srv, a)
	readEvent(t, connA)
	connB := dial(t, srv, b)
	readEvent(t, connB)

	ended, err := events.TournamentEnded(b, 9, serverTime, 5)
	require.NoError(t, err)
	require.NoError(t, cm.Notify(context.Background(), ended))
	update, err := events.Snapshot(events.TypeClockUpdate, snapshotAt(a, 2, 599))
	require.NoError(t, err)
	require.NoError(t, cm.Notify(context.Background(), update))

	assert.Equal(t, events.TypeTournamentEnded, readEvent(t, connB).Type)
	got := readEvent(t, connA)
	assert.Equal(t, events.TypeClockUpdate, got.Type)
	assert.Equal(t, a, got.TournamentID)
}

func TestHandleWebSocketRejectsBadRequests(t *testing.T) {
	id := uuid.New()
	_, srv := newGatewayServer(t, knownClock(id))

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing id", "", http.StatusBadRequest},
		{"malformed id", "?tournament_id=abc", http.StatusBadRequest},
		{"unknown tournament", "?tournament_id=" + uuid.NewString(), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/ws/clock" + tt.query)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestHandleStats(t *testing.T) {
	id := uuid.New()
	_, srv := newGatewayServer(t, knownClock(id))
	conn := dial(t, srv, id)
	readEvent(t, conn)

	resp, err := http.Get(srv.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats struct {
		Total  int            `json:"total_connections"`
		Counts map[string]int `json:"tournament_connections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Counts[id.String()])
}

func TestStatusFromError(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFromError(fmt.Errorf("x: %w", clock.ErrValidation)))
	assert.Equal(t, http.StatusNotFound, StatusFromError(clock.ErrNotFound))
	assert.Equal(t, http.StatusConflict, StatusFromError(clock.ErrInvalidState))
	assert.Equal(t, http.StatusGatewayTimeout, StatusFromError(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, StatusFromError(fmt.Errorf("boom")))
}

func TestRelayMaintainsMirror(t *testing.T) {
	id := uuid.New()
	mirror, err := orchestrator.NewMirror(8)
	require.NoError(t, err)

	fallbackCalls := 0
	fallback := SnapshotFunc(func(_ context.Context, got uuid.UUID) (*models.ClockSnapshot, error) {
		fallbackCalls++
		snap := snapshotAt(got, 1, 600)
		return &snap, nil
	})
	relay := NewRelay(NewConnectionManager(DefaultConnectionConfig()), mirror, fallback)
	ctx := context.Background()

	update, err := events.Snapshot(events.TypeClockUpdate, snapshotAt(id, 5, 480))
	require.NoError(t, err)
	require.NoError(t, relay.HandleEvent(ctx, update))

	snap, err := relay.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 480, snap.TimeRemainingSeconds)
	assert.Zero(t, fallbackCalls)

	ended, err := events.TournamentEnded(id, 6, serverTime, 3)
	require.NoError(t, err)
	require.NoError(t, relay.HandleEvent(ctx, ended))
	_, ok := mirror.Get(id)
	assert.False(t, ok)

	snap, err = relay.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 600, snap.TimeRemainingSeconds)
	assert.Equal(t, 1, fallbackCalls)

	assert.Error(t, relay.HandleEvent(ctx, events.Event{Type: "bogus"}))
}
