package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/davidgomes/10-seconds-game/internal/models"
	"github.com/google/uuid"
)

// EventType identifies the kind of game event.
type EventType string

const (
	EventTypeNewRound       EventType = "NewRound"
	EventTypeNumberRevealed EventType = "NumberRevealed"
	EventTypeRoundEnded     EventType = "RoundEnded"
	EventTypePickAccepted   EventType = "PickAccepted"
	EventTypePickRejected   EventType = "PickRejected"
)

// Event is the envelope for all game events. Data holds the type-specific
// payload as raw JSON so transports can forward it without re-encoding.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewRoundPayload announces a fresh round with its initial state.
type NewRoundPayload struct {
	Round models.RoundSnapshot `json:"round"`
}

// NumberRevealedPayload announces one revealed number.
type NumberRevealedPayload struct {
	RoundID      int64 `json:"round_id"`
	Number       int   `json:"number"`
	DisplayIndex int   `json:"display_index"`
}

// RoundEndedPayload carries the terminal state of a round, winners included.
type RoundEndedPayload struct {
	Round models.RoundSnapshot `json:"round"`
}

// PickAcceptedPayload announces a committed pick.
type PickAcceptedPayload struct {
	RoundID  int64  `json:"round_id"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
	Number   int    `json:"number"`
}

// PickRejectedPayload announces a rejected pick with its reason code.
type PickRejectedPayload struct {
	RoundID int64        `json:"round_id"`
	UserID  int64        `json:"user_id"`
	Reason  RejectReason `json:"reason"`
}

// NewEvent builds an event envelope around the given payload.
func NewEvent(eventType EventType, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// Broadcaster delivers game events to clients. Implementations must not
// block: the round machine emits from its timer loop.
type Broadcaster interface {
	Broadcast(event Event)
}

// Fanout broadcasts every event to each of its members in order.
type Fanout []Broadcaster

func (f Fanout) Broadcast(event Event) {
	for _, b := range f {
		b.Broadcast(event)
	}
}
