package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/tourneyclock/go/internal/clock/events"
	"github.com/rs/zerolog/log"
)

// ConnectionManager manages WebSocket subscribers of tournament clocks
type ConnectionManager struct {
	// Connection pools organized by tournament ID
	tournamentConnections map[uuid.UUID]map[*Connection]bool
	mu                    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	// Single consumer goroutine keeps per-tournament order.
	broadcastCh chan BroadcastMessage

	// Highest version delivered per tournament; only touched by the
	// broadcast goroutine.
	lastVersion map[uuid.UUID]int64
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID           string
	TournamentID uuid.UUID
	Conn         *websocket.Conn
	Send         chan []byte
	Manager      *ConnectionManager

	ConnectedAt time.Time

	// Version of the clock-sync the connection joined with. Older events
	// and repeats of that clock-sync are not delivered to it.
	joinVersion int64
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage represents an event to deliver to a tournament's subscribers
type BroadcastMessage struct {
	TournamentID uuid.UUID
	Event        events.Event
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024, // clients only send pings
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	return &ConnectionManager{
		tournamentConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
		lastVersion: make(map[uuid.UUID]int64),
	}
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// Notify queues ev for every subscriber of its tournament.
func (cm *ConnectionManager) Notify(_ context.Context, ev events.Event) error {
	select {
	case cm.broadcastCh <- BroadcastMessage{TournamentID: ev.TournamentID, Event: ev}:
		return nil
	default:
		log.Warn().Str("tournament_id", ev.TournamentID.String()).Msg("broadcast channel full, dropping message")
		return fmt.Errorf("broadcast channel full")
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and registers it.
// The join clock-sync is queued before the connection joins the broadcast
// pool, so it is always the first event the subscriber reads.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, tournamentID uuid.UUID, joinEvent events.Event) (*Connection, error) {
	data, err := json.Marshal(joinEvent)
	if err != nil {
		http.Error(w, "failed to encode clock state", http.StatusInternalServerError)
		return nil, fmt.Errorf("marshal clock-sync: %w", err)
	}

	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:           uuid.New().String(),
		TournamentID: tournamentID,
		Conn:         conn,
		Send:         make(chan []byte, cm.config.SendBufferSize),
		Manager:      cm,
		ConnectedAt:  time.Now(),
		joinVersion:  joinEvent.Version,
	}
	connection.Send <- data

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("tournament_id", tournamentID.String()).
		Int64("version", joinEvent.Version).
		Msg("WebSocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.tournamentConnections[conn.TournamentID] == nil {
		cm.tournamentConnections[conn.TournamentID] = make(map[*Connection]bool)
	}
	cm.tournamentConnections[conn.TournamentID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("tournament_id", conn.TournamentID.String()).
		Int("total_connections", len(cm.tournamentConnections[conn.TournamentID])).
		Msg("connection registered")
}

// unregisterConnection drops only the push subscription; clock state is untouched.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, exists := cm.tournamentConnections[conn.TournamentID]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			close(conn.Send)

			if len(connections) == 0 {
				delete(cm.tournamentConnections, conn.TournamentID)
			}

			log.Info().
				Str("connection_id", conn.ID).
				Str("tournament_id", conn.TournamentID.String()).
				Msg("connection unregistered")
		}
	}
}

// handleBroadcast processes a broadcast message
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	ev := message.Event
	if last, ok := cm.lastVersion[message.TournamentID]; ok && ev.Version < last {
		log.Debug().
			Str("tournament_id", message.TournamentID.String()).
			Int64("version", ev.Version).
			Int64("last_version", last).
			Msg("dropping stale clock event")
		return
	}
	if ev.Type == events.TypeTournamentEnded {
		delete(cm.lastVersion, message.TournamentID)
	} else {
		cm.lastVersion[message.TournamentID] = ev.Version
	}

	// Marshal the event once
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Sends happen under the read lock so unregister cannot close a
	// channel mid-send; slow connections are dropped afterwards.
	var slow []*Connection
	delivered := 0
	cm.mu.RLock()
	for conn := range cm.tournamentConnections[message.TournamentID] {
		if conn.skips(ev) {
			continue
		}
		select {
		case conn.Send <- data:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
	if delivered == 0 {
		return
	}

	log.Debug().
		Str("event_type", string(ev.Type)).
		Str("tournament_id", message.TournamentID.String()).
		Int("connections", delivered).
		Msg("event broadcasted")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.tournamentConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	total := 0
	counts := make(map[string]int)
	for id, connections := range cm.tournamentConnections {
		total += len(connections)
		counts[id.String()] = len(connections)
	}

	return map[string]interface{}{
		"total_connections":      total,
		"active_tournaments":     len(cm.tournamentConnections),
		"tournament_connections": counts,
	}
}

// skips reports whether ev is older than, or a repeat of, the state the
// connection joined with.
func (c *Connection) skips(ev events.Event) bool {
	if ev.Version < c.joinVersion {
		return true
	}
	return ev.Version == c.joinVersion && ev.Type == events.TypeClockSync
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump drains the client side so pongs and close frames are processed
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
