package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered player.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Round is the durable record of one game round. EndTime is nil while the
// round is active. WinningNumber is nil until the round ends with at least
// one pick; WinnerIDs holds every user whose pick matched it (ties share
// the win).
type Round struct {
	ID            int64      `json:"id"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	WinningNumber *int       `json:"winning_number,omitempty"`
	WinnerIDs     []int64    `json:"winner_ids,omitempty"`
}

// RevealedNumber is one number shown during a round, at a fixed display slot.
type RevealedNumber struct {
	RoundID      int64 `json:"round_id"`
	Number       int   `json:"number"`
	DisplayIndex int   `json:"display_index"`
}

// Pick is a user's single claim on a revealed number within a round.
// WriteID is the idempotency key for retried or replicated submissions.
type Pick struct {
	ID       uuid.UUID `json:"id"`
	UserID   int64     `json:"user_id"`
	RoundID  int64     `json:"round_id"`
	Number   int       `json:"number"`
	PickedAt time.Time `json:"picked_at"`
	WriteID  uuid.UUID `json:"write_id"`
}

// Player is a leaderboard entry. Connected reflects live presence and is
// annotated by the gateway, never persisted.
type Player struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Wins         int    `json:"wins"`
	RoundsPlayed int    `json:"rounds_played"`
	Connected    bool   `json:"connected"`
}

// RoundSnapshot is the in-memory view of a round as seen by clients: the
// authoritative state during an active round, the terminal state afterwards.
type RoundSnapshot struct {
	ID               int64      `json:"id"`
	Active           bool       `json:"active"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	DisplayedNumbers []int      `json:"displayed_numbers"`
	Winners          []string   `json:"winners,omitempty"`
	WinnerIDs        []int64    `json:"winner_ids,omitempty"`
	WinningNumber    *int       `json:"winning_number,omitempty"`
}
