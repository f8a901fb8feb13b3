package storage

import (
	"context"
	"errors"
	"time"

	"github.com/davidgomes/10-seconds-game/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrPickConflict is returned by CreatePick when a pick already exists
	// for the same (user, round) pair. The store's uniqueness guarantee is
	// the source of truth for the one-pick-per-round rule; in-memory checks
	// are only a fast path.
	ErrPickConflict = errors.New("pick already exists for user and round")

	// ErrRoundClosed is returned by CreatePick when the target round has a
	// persisted end time. Closing the round and inserting a pick are ordered
	// through the store, which is what keeps late picks out of a finished
	// round even when validation raced the round's end.
	ErrRoundClosed = errors.New("round is closed")
)

// RoundUpdate carries the fields settable after round creation. Nil fields
// are left untouched.
type RoundUpdate struct {
	EndTime       *time.Time
	WinningNumber *int
	WinnerIDs     []int64
}

// Store is the persistence contract for users, rounds, revealed numbers and
// picks. Implementations must make CreatePick atomic with respect to both
// the (user, round) uniqueness constraint and the round's closed state.
type Store interface {
	// Users
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, username string) (*models.User, error)

	// Rounds
	CreateRound(ctx context.Context, startTime time.Time) (*models.Round, error)
	GetRound(ctx context.Context, id int64) (*models.Round, error)
	UpdateRound(ctx context.Context, id int64, upd RoundUpdate) error
	RoundHistory(ctx context.Context, limit int) ([]models.Round, error)

	// Revealed numbers
	AppendRevealedNumber(ctx context.Context, roundID int64, number, displayIndex int) error
	GetRevealedNumbers(ctx context.Context, roundID int64) ([]models.RevealedNumber, error)

	// Picks
	CreatePick(ctx context.Context, pick *models.Pick) error
	GetPicksByRound(ctx context.Context, roundID int64) ([]models.Pick, error)
	GetUserPickForRound(ctx context.Context, userID, roundID int64) (*models.Pick, error)

	// Read-side projections
	PlayerStats(ctx context.Context, userID int64) (wins, roundsPlayed int, err error)
	Leaderboard(ctx context.Context) ([]models.Player, error)
}
