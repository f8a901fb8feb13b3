package leaderboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/davidgomes/10-seconds-game/internal/models"
	"github.com/davidgomes/10-seconds-game/internal/storage/memory"
)

func TestPlayersCachesResults(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewService(store)

	if _, err := store.CreateUser(ctx, "alice"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	first, err := svc.Players(ctx)
	if err != nil {
		t.Fatalf("Players failed: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("got %d players, want 1", len(first))
	}

	// A user added after the first read stays invisible until the cache
	// entry expires.
	if _, err := store.CreateUser(ctx, "bob"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	second, err := svc.Players(ctx)
	if err != nil {
		t.Fatalf("Players failed: %v", err)
	}
	if len(second) != 1 {
		t.Errorf("got %d players from cached read, want 1", len(second))
	}
}

func TestHistoryDefaultsTheLimit(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewService(store)

	for i := 0; i < DefaultHistoryLimit+5; i++ {
		if _, err := store.CreateRound(ctx, time.Now()); err != nil {
			t.Fatalf("CreateRound failed: %v", err)
		}
	}

	rounds, err := svc.History(ctx, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(rounds) != DefaultHistoryLimit {
		t.Errorf("got %d rounds, want %d", len(rounds), DefaultHistoryLimit)
	}

	limited, err := svc.History(ctx, 3)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(limited) != 3 {
		t.Errorf("got %d rounds, want 3", len(limited))
	}
}

func TestRoundPicksPassesThroughErrors(t *testing.T) {
	svc := NewService(failingStore{})

	if _, err := svc.RoundPicks(context.Background(), 1); !errors.Is(err, errStore) {
		t.Errorf("got %v, want wrapped store error", err)
	}
}

var errStore = errors.New("store unavailable")

type failingStore struct{}

func (failingStore) Leaderboard(ctx context.Context) ([]models.Player, error) {
	return nil, errStore
}

func (failingStore) RoundHistory(ctx context.Context, limit int) ([]models.Round, error) {
	return nil, errStore
}

func (failingStore) GetPicksByRound(ctx context.Context, roundID int64) ([]models.Pick, error) {
	return nil, errStore
}

var _ Store = failingStore{}
