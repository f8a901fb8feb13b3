// Package memory provides an in-memory Store used in tests and when the
// server runs without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/davidgomes/10-seconds-game/internal/models"
	"github.com/davidgomes/10-seconds-game/internal/storage"
)

// Store keeps all game state in process memory behind a single mutex. Every
// method is a short critical section, so the atomicity CreatePick requires
// falls out of the locking.
type Store struct {
	mu sync.Mutex

	users       map[int64]*models.User
	usersByName map[string]int64
	rounds      map[int64]*models.Round
	revealed    map[int64][]models.RevealedNumber
	picks       []*models.Pick

	nextUserID  int64
	nextRoundID int64
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		users:       make(map[int64]*models.User),
		usersByName: make(map[string]int64),
		rounds:      make(map[int64]*models.Round),
		revealed:    make(map[int64][]models.RevealedNumber),
		nextUserID:  1,
		nextRoundID: 1,
	}
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	u := *user
	return &u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usersByName[username]
	if !ok {
		return nil, storage.ErrNotFound
	}
	u := *s.users[id]
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.usersByName[username]; ok {
		u := *s.users[id]
		return &u, nil
	}

	user := &models.User{ID: s.nextUserID, Username: username}
	s.nextUserID++
	s.users[user.ID] = user
	s.usersByName[username] = user.ID

	u := *user
	return &u, nil
}

func (s *Store) CreateRound(ctx context.Context, startTime time.Time) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	round := &models.Round{ID: s.nextRoundID, StartTime: startTime}
	s.nextRoundID++
	s.rounds[round.ID] = round

	r := *round
	return &r, nil
}

func (s *Store) GetRound(ctx context.Context, id int64) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	round, ok := s.rounds[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	r := copyRound(round)
	return &r, nil
}

func (s *Store) UpdateRound(ctx context.Context, id int64, upd storage.RoundUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	round, ok := s.rounds[id]
	if !ok {
		return storage.ErrNotFound
	}
	if upd.EndTime != nil {
		t := *upd.EndTime
		round.EndTime = &t
	}
	if upd.WinningNumber != nil {
		n := *upd.WinningNumber
		round.WinningNumber = &n
	}
	if upd.WinnerIDs != nil {
		round.WinnerIDs = append([]int64(nil), upd.WinnerIDs...)
	}
	return nil
}

func (s *Store) RoundHistory(ctx context.Context, limit int) ([]models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rounds := make([]models.Round, 0, len(s.rounds))
	for _, r := range s.rounds {
		rounds = append(rounds, copyRound(r))
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].ID > rounds[j].ID })
	if limit > 0 && len(rounds) > limit {
		rounds = rounds[:limit]
	}
	return rounds, nil
}

func (s *Store) AppendRevealedNumber(ctx context.Context, roundID int64, number, displayIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rounds[roundID]; !ok {
		return storage.ErrNotFound
	}
	s.revealed[roundID] = append(s.revealed[roundID], models.RevealedNumber{
		RoundID:      roundID,
		Number:       number,
		DisplayIndex: displayIndex,
	})
	return nil
}

func (s *Store) GetRevealedNumbers(ctx context.Context, roundID int64) ([]models.RevealedNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	numbers := append([]models.RevealedNumber(nil), s.revealed[roundID]...)
	sort.Slice(numbers, func(i, j int) bool { return numbers[i].DisplayIndex < numbers[j].DisplayIndex })
	return numbers, nil
}

func (s *Store) CreatePick(ctx context.Context, pick *models.Pick) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	round, ok := s.rounds[pick.RoundID]
	if !ok {
		return storage.ErrNotFound
	}
	if round.EndTime != nil {
		return storage.ErrRoundClosed
	}
	for _, p := range s.picks {
		if p.UserID == pick.UserID && p.RoundID == pick.RoundID {
			return storage.ErrPickConflict
		}
	}

	p := *pick
	s.picks = append(s.picks, &p)
	return nil
}

func (s *Store) GetPicksByRound(ctx context.Context, roundID int64) ([]models.Pick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var picks []models.Pick
	for _, p := range s.picks {
		if p.RoundID == roundID {
			picks = append(picks, *p)
		}
	}
	return picks, nil
}

func (s *Store) GetUserPickForRound(ctx context.Context, userID, roundID int64) (*models.Pick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.picks {
		if p.UserID == userID && p.RoundID == roundID {
			pick := *p
			return &pick, nil
		}
	}
	return nil, nil
}

func (s *Store) PlayerStats(ctx context.Context, userID int64) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.playerStatsLocked(userID)
}

func (s *Store) playerStatsLocked(userID int64) (int, int, error) {
	wins := 0
	for _, r := range s.rounds {
		for _, id := range r.WinnerIDs {
			if id == userID {
				wins++
				break
			}
		}
	}

	roundsPlayed := make(map[int64]struct{})
	for _, p := range s.picks {
		if p.UserID == userID {
			roundsPlayed[p.RoundID] = struct{}{}
		}
	}
	return wins, len(roundsPlayed), nil
}

func (s *Store) Leaderboard(ctx context.Context) ([]models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	players := make([]models.Player, 0, len(s.users))
	for _, u := range s.users {
		wins, played, _ := s.playerStatsLocked(u.ID)
		players = append(players, models.Player{
			ID:           u.ID,
			Username:     u.Username,
			Wins:         wins,
			RoundsPlayed: played,
		})
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].Wins != players[j].Wins {
			return players[i].Wins > players[j].Wins
		}
		return players[i].ID < players[j].ID
	})
	return players, nil
}

func copyRound(r *models.Round) models.Round {
	out := *r
	if r.EndTime != nil {
		t := *r.EndTime
		out.EndTime = &t
	}
	if r.WinningNumber != nil {
		n := *r.WinningNumber
		out.WinningNumber = &n
	}
	out.WinnerIDs = append([]int64(nil), r.WinnerIDs...)
	return out
}
