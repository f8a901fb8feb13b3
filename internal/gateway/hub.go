// Package gateway exposes the game over WebSocket: it broadcasts game
// events to every connected client and accepts join and pick messages.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/davidgomes/10-seconds-game/internal/game"
	"github.com/davidgomes/10-seconds-game/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Game is what the gateway needs from the round machine.
type Game interface {
	SubmitPick(ctx context.Context, userID, roundID int64, number int) (*models.Pick, error)
	Snapshot() models.RoundSnapshot
}

// Users is the join flow: get-or-create by username.
type Users interface {
	CreateUser(ctx context.Context, username string) (*models.User, error)
	PlayerStats(ctx context.Context, userID int64) (wins, roundsPlayed int, err error)
}

// Projections serves the read-side state pushed to connecting clients.
type Projections interface {
	Players(ctx context.Context) ([]models.Player, error)
	History(ctx context.Context, limit int) ([]models.Round, error)
}

// Config holds WebSocket connection tuning.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConfig returns the default WebSocket configuration.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// Hub manages WebSocket connections and fans game events out to them. It
// implements game.Broadcaster.
type Hub struct {
	game        Game
	users       Users
	projections Projections

	mu          sync.RWMutex
	connections map[*Connection]bool
	joined      map[*Connection]models.Player

	upgrader    websocket.Upgrader
	config      Config
	broadcastCh chan game.Event
}

// NewHub creates a connection hub.
func NewHub(g Game, users Users, projections Projections, config Config) *Hub {
	return &Hub{
		game:        g,
		users:       users,
		projections: projections,
		connections: make(map[*Connection]bool),
		joined:      make(map[*Connection]models.Player),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan game.Event, 256),
	}
}

// Broadcast enqueues an event for delivery to every connected client. It
// never blocks the caller; under sustained backpressure events are dropped
// with a warning.
func (h *Hub) Broadcast(event game.Event) {
	select {
	case h.broadcastCh <- event:
	default:
		log.Warn().Str("event_type", string(event.Type)).Msg("broadcast channel full, dropping event")
	}
}

// Start processes broadcast events until ctx is cancelled.
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("gateway hub started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("gateway hub shutting down")
			h.closeAll()
			return
		case event := <-h.broadcastCh:
			h.handleBroadcast(event)
		}
	}
}

func (h *Hub) handleBroadcast(event game.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Sends happen under the read lock, channel close under the write lock
	// in unregister, so a send can never hit a closed channel.
	var slow []*Connection
	h.mu.RLock()
	for conn := range h.connections {
		select {
		case conn.send <- data:
		default:
			slow = append(slow, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().Str("connection_id", conn.id).Msg("connection send buffer full, closing connection")
		h.unregister(conn)
		conn.ws.Close()
	}
}

// send delivers data to one connection if it is still registered. It shares
// the read lock with broadcasts so it is ordered against the close in
// unregister.
func (h *Hub) send(conn *Connection, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.connections[conn] {
		return false
	}
	select {
	case conn.send <- data:
		return true
	default:
		return false
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and starts
// serving it. The current game state is pushed immediately so late joiners
// are never blank.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}

	conn := &Connection{
		id:   uuid.New().String(),
		ws:   ws,
		send: make(chan []byte, 64),
		hub:  h,
	}
	h.register(conn)

	go conn.writePump()
	go conn.readPump()

	conn.sendGameState(r.Context())

	log.Info().Str("connection_id", conn.id).Msg("websocket connection established")
}

func (h *Hub) register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn] = true
}

// markJoined records the player behind a connection so presence can be
// reported until the connection goes away. It fails when the connection
// already unregistered.
func (h *Hub) markJoined(conn *Connection, player models.Player) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.connections[conn] {
		return false
	}
	h.joined[conn] = player
	return true
}

// connectedUsers returns the ids of users with a joined connection.
func (h *Hub) connectedUsers() map[int64]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make(map[int64]bool, len(h.joined))
	for _, p := range h.joined {
		ids[p.ID] = true
	}
	return ids
}

func (h *Hub) unregister(conn *Connection) {
	h.mu.Lock()
	player, wasJoined := h.joined[conn]
	delete(h.joined, conn)
	if _, ok := h.connections[conn]; ok {
		delete(h.connections, conn)
		close(conn.send)
	}
	h.mu.Unlock()

	if wasJoined {
		player.Connected = false
		h.Broadcast(mustEvent(eventTypePlayerLeft, player))
		log.Info().
			Str("connection_id", conn.id).
			Int64("user_id", player.ID).
			Str("username", player.Username).
			Msg("player left")
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.connections {
		delete(h.connections, conn)
		delete(h.joined, conn)
		close(conn.send)
		conn.ws.Close()
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

func marshalEnvelope(eventType game.EventType, payload any) ([]byte, error) {
	event, err := game.NewEvent(eventType, payload)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}
	return data, nil
}
