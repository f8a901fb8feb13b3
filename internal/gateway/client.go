package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/davidgomes/10-seconds-game/internal/game"
	"github.com/davidgomes/10-seconds-game/internal/leaderboard"
	"github.com/davidgomes/10-seconds-game/internal/models"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Gateway-level message types. These are connection concerns, not round
// lifecycle events, so they live here rather than in the game package.
const (
	eventTypeGameState    game.EventType = "GameState"
	eventTypePlayerJoined game.EventType = "PlayerJoined"
	eventTypePlayerLeft   game.EventType = "PlayerLeft"
	eventTypeError        game.EventType = "Error"
)

// clientMessage is the envelope for messages sent by clients.
type clientMessage struct {
	Type     string          `json:"type"`
	Username string          `json:"username,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

type pickRequest struct {
	RoundID int64 `json:"round_id"`
	Number  int   `json:"number"`
}

type gameStatePayload struct {
	CurrentRound models.RoundSnapshot `json:"current_round"`
	Players      []models.Player      `json:"players"`
	RoundHistory []models.Round       `json:"round_history"`
}

type errorPayload struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Connection is one WebSocket client. The zero userID means the client has
// not joined yet and may only watch.
type Connection struct {
	id       string
	userID   int64
	username string
	ws       *websocket.Conn
	send     chan []byte
	hub      *Hub
}

func (c *Connection) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(c.hub.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.id).Msg("unexpected websocket close")
			}
			return
		}

		c.handleMessage(data)
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.id).Msg("failed to write websocket message")
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) handleMessage(data []byte) {
	ctx := context.Background()

	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("invalid message format", "")
		return
	}

	switch msg.Type {
	case "join":
		c.handleJoin(ctx, msg.Username)
	case "pick":
		c.handlePick(ctx, msg.Data)
	default:
		log.Debug().
			Str("connection_id", c.id).
			Str("type", msg.Type).
			Msg("ignoring unknown client message")
	}
}

func (c *Connection) handleJoin(ctx context.Context, username string) {
	if username == "" {
		c.sendError("username is required", "")
		return
	}
	if c.userID != 0 {
		c.sendError("already joined", "")
		return
	}

	user, err := c.hub.users.CreateUser(ctx, username)
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("join failed")
		c.sendError("failed to join game", "")
		return
	}

	c.userID = user.ID
	c.username = user.Username

	wins, roundsPlayed, err := c.hub.users.PlayerStats(ctx, user.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to load player stats")
	}

	player := models.Player{
		ID:           user.ID,
		Username:     user.Username,
		Wins:         wins,
		RoundsPlayed: roundsPlayed,
		Connected:    true,
	}
	if !c.hub.markJoined(c, player) {
		// The connection went away mid-join; nobody to announce.
		return
	}
	c.hub.Broadcast(mustEvent(eventTypePlayerJoined, player))

	c.sendGameState(ctx)

	log.Info().
		Str("connection_id", c.id).
		Int64("user_id", user.ID).
		Str("username", user.Username).
		Msg("player joined")
}

func (c *Connection) handlePick(ctx context.Context, data json.RawMessage) {
	if c.userID == 0 {
		c.sendError("not joined", "")
		return
	}

	var req pickRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("invalid pick payload", "")
		return
	}

	if _, err := c.hub.game.SubmitPick(ctx, c.userID, req.RoundID, req.Number); err != nil {
		if reason, ok := game.RejectReasonOf(err); ok {
			c.sendError(err.Error(), string(reason))
			return
		}
		log.Error().Err(err).Str("connection_id", c.id).Msg("pick submission failed")
		c.sendError("failed to submit pick", "")
	}
	// Acceptance reaches the client through the broadcast stream.
}

// sendGameState pushes the full current state to this client: round
// snapshot, leaderboard and recent round history.
func (c *Connection) sendGameState(ctx context.Context) {
	players, err := c.hub.projections.Players(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load leaderboard for game state")
	}
	history, err := c.hub.projections.History(ctx, leaderboard.DefaultHistoryLimit)
	if err != nil {
		log.Error().Err(err).Msg("failed to load round history for game state")
	}

	// The projection slice may be cached and shared; annotate a copy with
	// live presence.
	connected := c.hub.connectedUsers()
	annotated := make([]models.Player, len(players))
	copy(annotated, players)
	for i := range annotated {
		annotated[i].Connected = connected[annotated[i].ID]
	}

	c.sendEnvelope(eventTypeGameState, gameStatePayload{
		CurrentRound: c.hub.game.Snapshot(),
		Players:      annotated,
		RoundHistory: history,
	})
}

func (c *Connection) sendError(message, reason string) {
	c.sendEnvelope(eventTypeError, errorPayload{Error: message, Reason: reason})
}

func (c *Connection) sendEnvelope(eventType game.EventType, payload any) {
	data, err := marshalEnvelope(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to marshal envelope")
		return
	}
	if !c.hub.send(c, data) {
		log.Warn().Str("connection_id", c.id).Msg("dropping message for unavailable connection")
	}
}

func mustEvent(eventType game.EventType, payload any) game.Event {
	event, err := game.NewEvent(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return game.Event{Type: eventType}
	}
	return event
}
