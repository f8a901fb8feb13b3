package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/davidgomes/10-seconds-game/internal/models"
	"github.com/davidgomes/10-seconds-game/internal/storage"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Store is what the round machine needs from persistence.
type Store interface {
	CreateRound(ctx context.Context, startTime time.Time) (*models.Round, error)
	UpdateRound(ctx context.Context, id int64, upd storage.RoundUpdate) error
	AppendRevealedNumber(ctx context.Context, roundID int64, number, displayIndex int) error
	CreatePick(ctx context.Context, pick *models.Pick) error
	GetPicksByRound(ctx context.Context, roundID int64) ([]models.Pick, error)
	GetUserPickForRound(ctx context.Context, userID, roundID int64) (*models.Pick, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// roundState is the authoritative in-memory state of the current round.
// Written only by the manager's run loop, read under mu by pick submission
// and snapshot requests.
type roundState struct {
	id            int64
	active        bool
	startTime     time.Time
	endTime       *time.Time
	displayed     []int
	winnerIDs     []int64
	winners       []string
	winningNumber *int
}

func (r *roundState) snapshot() models.RoundSnapshot {
	snap := models.RoundSnapshot{
		ID:               r.id,
		Active:           r.active,
		StartTime:        r.startTime,
		DisplayedNumbers: append([]int(nil), r.displayed...),
		Winners:          append([]string(nil), r.winners...),
		WinnerIDs:        append([]int64(nil), r.winnerIDs...),
	}
	if r.endTime != nil {
		t := *r.endTime
		snap.EndTime = &t
	}
	if r.winningNumber != nil {
		n := *r.winningNumber
		snap.WinningNumber = &n
	}
	return snap
}

// Manager owns the round lifecycle: it starts rounds, reveals numbers on a
// fixed cadence, validates and commits picks, determines winners and starts
// the next round after the cooldown. One Run loop performs every state
// transition, so the duration timer, the reveal ticker and shutdown never
// race each other.
type Manager struct {
	store     Store
	broadcast Broadcaster
	clock     clockwork.Clock
	cfg       Config
	gen       *numberGenerator

	mu      sync.RWMutex
	current *roundState
}

// NewManager creates a round manager. Use clockwork.NewRealClock() in
// production; tests pass a fake clock.
func NewManager(store Store, broadcast Broadcaster, cfg Config, clock clockwork.Clock) *Manager {
	return &Manager{
		store:     store,
		broadcast: broadcast,
		clock:     clock,
		cfg:       cfg,
		gen:       newNumberGenerator(clock.Now().UnixNano()),
	}
}

// SetBroadcaster replaces the event sink. Call it before Run; the hub and
// the manager reference each other, so one of them has to be wired up after
// construction.
func (m *Manager) SetBroadcaster(broadcast Broadcaster) {
	m.broadcast = broadcast
}

// Run drives rounds until ctx is cancelled. A failed round start is retried
// after a short delay; the game self-heals from transient storage failures
// instead of crashing.
func (m *Manager) Run(ctx context.Context) error {
	log.Info().
		Dur("round_duration", m.cfg.RoundDuration).
		Dur("reveal_interval", m.cfg.RevealInterval).
		Int("numbers_per_round", m.cfg.NumbersPerRound).
		Msg("game manager started")

	for {
		roundID, err := m.startRound(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to start round, retrying")
			select {
			case <-m.clock.After(m.cfg.StartRetryDelay):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		m.runRound(ctx, roundID)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-m.clock.After(m.cfg.Cooldown):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// startRound persists a new round, installs it as the current state and
// announces it.
func (m *Manager) startRound(ctx context.Context) (int64, error) {
	round, err := m.store.CreateRound(ctx, m.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("create round: %w", err)
	}

	m.mu.Lock()
	m.current = &roundState{
		id:        round.ID,
		active:    true,
		startTime: round.StartTime,
	}
	snap := m.current.snapshot()
	m.mu.Unlock()

	m.emit(EventTypeNewRound, NewRoundPayload{Round: snap})

	log.Info().Int64("round_id", round.ID).Msg("round started")
	return round.ID, nil
}

// runRound reveals numbers until the round's duration elapses, then ends
// it. The ticker and the end timer live in one select, which both
// serializes reveals against the end transition and scopes the reveal
// schedule to exactly this round: when runRound returns, no stale tick can
// persist or emit anything.
func (m *Manager) runRound(ctx context.Context, roundID int64) {
	ticker := m.clock.NewTicker(m.cfg.RevealInterval)
	defer ticker.Stop()
	endTimer := m.clock.NewTimer(m.cfg.RoundDuration)
	defer endTimer.Stop()

	revealIndex := 0
	for {
		select {
		case <-ticker.Chan():
			if revealIndex >= m.cfg.NumbersPerRound {
				continue
			}
			if err := m.reveal(ctx, roundID, revealIndex); err != nil {
				// Keep the same display index: the slot is retried on the
				// next firing rather than skipped.
				log.Error().Err(err).
					Int64("round_id", roundID).
					Int("display_index", revealIndex).
					Msg("reveal failed, retrying on next tick")
				continue
			}
			revealIndex++

		case <-endTimer.Chan():
			// A reveal due at the same instant lands before the round
			// closes, so RoundEnded always follows the final reveal.
			if revealIndex < m.cfg.NumbersPerRound {
				select {
				case <-ticker.Chan():
					if err := m.reveal(ctx, roundID, revealIndex); err != nil {
						log.Error().Err(err).
							Int64("round_id", roundID).
							Int("display_index", revealIndex).
							Msg("final reveal failed")
					}
				default:
				}
			}
			m.endRound(ctx, roundID)
			return

		case <-ctx.Done():
			m.endRound(context.WithoutCancel(ctx), roundID)
			return
		}
	}
}

// reveal generates the next number, persists it and announces it.
func (m *Manager) reveal(ctx context.Context, roundID int64, displayIndex int) error {
	m.mu.RLock()
	cur := m.current
	stale := cur == nil || cur.id != roundID || !cur.active
	var exclude map[int]struct{}
	if !stale {
		exclude = make(map[int]struct{}, len(cur.displayed))
		for _, n := range cur.displayed {
			exclude[n] = struct{}{}
		}
	}
	m.mu.RUnlock()

	if stale {
		// The round closed under us; drop the tick without persisting or
		// emitting anything.
		log.Debug().Int64("round_id", roundID).Msg("discarding reveal for stale round")
		return nil
	}

	number := m.gen.Next(exclude)

	if err := m.store.AppendRevealedNumber(ctx, roundID, number, displayIndex); err != nil {
		return fmt.Errorf("append revealed number: %w", err)
	}

	m.mu.Lock()
	if m.current != nil && m.current.id == roundID && m.current.active {
		m.current.displayed = append(m.current.displayed, number)
	}
	m.mu.Unlock()

	m.emit(EventTypeNumberRevealed, NumberRevealedPayload{
		RoundID:      roundID,
		Number:       number,
		DisplayIndex: displayIndex,
	})

	log.Debug().
		Int64("round_id", roundID).
		Int("number", number).
		Int("display_index", displayIndex).
		Msg("number revealed")
	return nil
}

// endRound closes the round, computes winners from the complete pick set
// and announces the terminal state. It is idempotent: duplicate triggers
// find the round inactive and return.
func (m *Manager) endRound(ctx context.Context, roundID int64) {
	m.mu.Lock()
	cur := m.current
	if cur == nil || cur.id != roundID || !cur.active {
		m.mu.Unlock()
		return
	}
	now := m.clock.Now()
	cur.active = false
	cur.endTime = &now
	m.mu.Unlock()

	// Persist the end time before reading picks: the store refuses picks
	// for closed rounds, so everything read below is the complete set.
	if err := m.store.UpdateRound(ctx, roundID, storage.RoundUpdate{EndTime: &now}); err != nil {
		log.Error().Err(err).Int64("round_id", roundID).Msg("failed to persist round end")
	}

	picks, err := m.store.GetPicksByRound(ctx, roundID)
	if err != nil {
		// The round still ends; it just ends without a winner rather than
		// staying stuck active.
		log.Error().Err(err).Int64("round_id", roundID).Msg("failed to read picks, ending round without winners")
		picks = nil
	}

	if len(picks) > 0 {
		winningNumber, winnerIDs := computeWinners(picks)

		if err := m.store.UpdateRound(ctx, roundID, storage.RoundUpdate{
			WinningNumber: &winningNumber,
			WinnerIDs:     winnerIDs,
		}); err != nil {
			log.Error().Err(err).Int64("round_id", roundID).Msg("failed to persist round winners")
		}

		winners := m.resolveUsernames(ctx, winnerIDs)

		m.mu.Lock()
		cur.winningNumber = &winningNumber
		cur.winnerIDs = winnerIDs
		cur.winners = winners
		m.mu.Unlock()

		log.Info().
			Int64("round_id", roundID).
			Int("winning_number", winningNumber).
			Ints64("winner_ids", winnerIDs).
			Msg("round ended")
	} else {
		log.Info().Int64("round_id", roundID).Msg("round ended with no picks")
	}

	m.mu.RLock()
	snap := cur.snapshot()
	m.mu.RUnlock()

	m.emit(EventTypeRoundEnded, RoundEndedPayload{Round: snap})
}

// computeWinners returns the strict maximum over all picked numbers and
// every user who picked it. Ties share the win; a single computation over
// the complete pick set means a later tie never disqualifies anyone.
func computeWinners(picks []models.Pick) (int, []int64) {
	winningNumber := picks[0].Number
	for _, p := range picks[1:] {
		if p.Number > winningNumber {
			winningNumber = p.Number
		}
	}

	var winnerIDs []int64
	for _, p := range picks {
		if p.Number == winningNumber {
			winnerIDs = append(winnerIDs, p.UserID)
		}
	}
	return winningNumber, winnerIDs
}

func (m *Manager) resolveUsernames(ctx context.Context, userIDs []int64) []string {
	usernames := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		user, err := m.store.GetUser(ctx, id)
		if err != nil {
			log.Error().Err(err).Int64("user_id", id).Msg("failed to resolve winner username")
			continue
		}
		usernames = append(usernames, user.Username)
	}
	return usernames
}

// SubmitPick validates and commits one pick. It is the single authoritative
// validation path for every entry point (live WebSocket messages, REST
// submissions, replicated writes). The store's conditional insert is the
// source of truth for the duplicate and round-closed races; the in-memory
// checks are a fast path.
func (m *Manager) SubmitPick(ctx context.Context, userID, roundID int64, number int) (*models.Pick, error) {
	m.mu.RLock()
	cur := m.current
	var (
		currentID int64
		active    bool
		latest    int
		hasLatest bool
	)
	if cur != nil {
		currentID = cur.id
		active = cur.active
		if len(cur.displayed) > 0 {
			latest = cur.displayed[len(cur.displayed)-1]
			hasLatest = true
		}
	}
	m.mu.RUnlock()

	switch {
	case cur == nil || currentID != roundID:
		return nil, m.reject(roundID, userID, ErrInvalidRound)
	case !active:
		return nil, m.reject(roundID, userID, ErrRoundNotActive)
	case !hasLatest || number != latest:
		// Picks must claim the newest number before the next one appears.
		return nil, m.reject(roundID, userID, ErrInvalidNumber)
	}

	existing, err := m.store.GetUserPickForRound(ctx, userID, roundID)
	if err != nil {
		return nil, fmt.Errorf("check existing pick: %w", err)
	}
	if existing != nil {
		return nil, m.reject(roundID, userID, ErrDuplicatePick)
	}

	pick := &models.Pick{
		ID:       uuid.New(),
		UserID:   userID,
		RoundID:  roundID,
		Number:   number,
		PickedAt: m.clock.Now(),
		WriteID:  uuid.New(),
	}

	if err := m.store.CreatePick(ctx, pick); err != nil {
		switch {
		case errors.Is(err, storage.ErrPickConflict):
			return nil, m.reject(roundID, userID, ErrDuplicatePick)
		case errors.Is(err, storage.ErrRoundClosed), errors.Is(err, storage.ErrNotFound):
			return nil, m.reject(roundID, userID, ErrRoundNotActive)
		default:
			return nil, fmt.Errorf("create pick: %w", err)
		}
	}

	// Announce only while the round is still open. A pick that lands in the
	// closing window is persisted and counted for winners, but a client's
	// stream never shows an acceptance after the round's end.
	m.mu.RLock()
	stillActive := m.current != nil && m.current.id == roundID && m.current.active
	m.mu.RUnlock()

	if stillActive {
		username := ""
		if user, err := m.store.GetUser(ctx, userID); err == nil {
			username = user.Username
		}
		m.emit(EventTypePickAccepted, PickAcceptedPayload{
			RoundID:  roundID,
			UserID:   userID,
			Username: username,
			Number:   number,
		})
	}

	log.Info().
		Int64("round_id", roundID).
		Int64("user_id", userID).
		Int("number", number).
		Msg("pick accepted")
	return pick, nil
}

func (m *Manager) reject(roundID, userID int64, rejection *Rejection) error {
	m.emit(EventTypePickRejected, PickRejectedPayload{
		RoundID: roundID,
		UserID:  userID,
		Reason:  rejection.Reason,
	})
	log.Debug().
		Int64("round_id", roundID).
		Int64("user_id", userID).
		Str("reason", string(rejection.Reason)).
		Msg("pick rejected")
	return rejection
}

// Snapshot returns a consistent view of the current round for late-joining
// clients. Before the first round starts it returns a zero snapshot with
// Active false.
func (m *Manager) Snapshot() models.RoundSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return models.RoundSnapshot{DisplayedNumbers: []int{}}
	}
	return m.current.snapshot()
}

func (m *Manager) emit(eventType EventType, payload any) {
	event, err := NewEvent(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	// Envelope timestamps follow the manager's clock.
	event.Timestamp = m.clock.Now().UTC()
	if m.broadcast == nil {
		return
	}
	m.broadcast.Broadcast(event)
}
