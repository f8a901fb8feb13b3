// Package leaderboard serves the read-side projections of the game: player
// standings and round history. Both are pure reads over the store, cached
// briefly because every connecting client asks for them.
package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/davidgomes/10-seconds-game/internal/models"
	"github.com/patrickmn/go-cache"
)

const (
	cacheTTL       = 2 * time.Second
	cacheCleanup   = time.Minute
	leaderboardKey = "leaderboard"
	historyKeyFmt  = "history:%d"
)

// DefaultHistoryLimit is how many past rounds clients see by default.
const DefaultHistoryLimit = 10

// Store is what the leaderboard needs from persistence.
type Store interface {
	Leaderboard(ctx context.Context) ([]models.Player, error)
	RoundHistory(ctx context.Context, limit int) ([]models.Round, error)
	GetPicksByRound(ctx context.Context, roundID int64) ([]models.Pick, error)
}

// Service answers leaderboard and history queries with short-lived caching.
type Service struct {
	store Store
	cache *cache.Cache
}

// NewService creates a leaderboard service.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		cache: cache.New(cacheTTL, cacheCleanup),
	}
}

// Players returns the leaderboard sorted by wins descending.
func (s *Service) Players(ctx context.Context) ([]models.Player, error) {
	if cached, found := s.cache.Get(leaderboardKey); found {
		return cached.([]models.Player), nil
	}

	players, err := s.store.Leaderboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}

	s.cache.Set(leaderboardKey, players, cache.DefaultExpiration)
	return players, nil
}

// History returns the most recent rounds, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]models.Round, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	key := fmt.Sprintf(historyKeyFmt, limit)
	if cached, found := s.cache.Get(key); found {
		return cached.([]models.Round), nil
	}

	rounds, err := s.store.RoundHistory(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load round history: %w", err)
	}

	s.cache.Set(key, rounds, cache.DefaultExpiration)
	return rounds, nil
}

// RoundPicks returns all picks recorded for one round.
func (s *Service) RoundPicks(ctx context.Context, roundID int64) ([]models.Pick, error) {
	picks, err := s.store.GetPicksByRound(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("load round picks: %w", err)
	}
	return picks, nil
}
