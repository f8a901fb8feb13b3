package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/davidgomes/10-seconds-game/internal/game"
	"github.com/davidgomes/10-seconds-game/internal/leaderboard"
	"github.com/davidgomes/10-seconds-game/internal/models"
	"github.com/davidgomes/10-seconds-game/internal/storage/memory"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// stubGame returns canned answers so handler tests stay independent of the
// round machine.
type stubGame struct {
	snapshot models.RoundSnapshot
	pick     *models.Pick
	err      error
}

func (s *stubGame) SubmitPick(ctx context.Context, userID, roundID int64, number int) (*models.Pick, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.pick, nil
}

func (s *stubGame) Snapshot() models.RoundSnapshot {
	return s.snapshot
}

func newTestRouter(t *testing.T, g Game, store *memory.Store) http.Handler {
	t.Helper()
	h := NewHandler(g, store, leaderboard.NewService(store))
	ws := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
	return NewRouter(h, ws, zerolog.Nop())
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, &stubGame{}, memory.New())
	rr := doJSON(t, router, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Errorf("got status %d, want 200", rr.Code)
	}
}

func TestJoin(t *testing.T) {
	store := memory.New()
	router := newTestRouter(t, &stubGame{}, store)

	rr := doJSON(t, router, http.MethodPost, "/api/join", `{"username":"alice"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var user models.User
	if err := json.Unmarshal(rr.Body.Bytes(), &user); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if user.Username != "alice" || user.ID == 0 {
		t.Errorf("unexpected user %+v", user)
	}

	// Joining again with the same name returns the same user.
	rr = doJSON(t, router, http.MethodPost, "/api/join", `{"username":"alice"}`)
	var again models.User
	if err := json.Unmarshal(rr.Body.Bytes(), &again); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if again.ID != user.ID {
		t.Errorf("rejoin created user %d, want %d", again.ID, user.ID)
	}
}

func TestJoinRequiresUsername(t *testing.T) {
	router := newTestRouter(t, &stubGame{}, memory.New())

	for _, body := range []string{`{}`, `{"username":""}`, `not json`} {
		rr := doJSON(t, router, http.MethodPost, "/api/join", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: got status %d, want 400", body, rr.Code)
		}
	}
}

func TestGetGame(t *testing.T) {
	store := memory.New()
	if _, err := store.CreateUser(context.Background(), "alice"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	g := &stubGame{snapshot: models.RoundSnapshot{
		ID:               3,
		Active:           true,
		StartTime:        time.Now(),
		DisplayedNumbers: []int{4, 17},
	}}
	router := newTestRouter(t, g, store)

	rr := doJSON(t, router, http.MethodGet, "/api/game", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rr.Code)
	}

	var body struct {
		CurrentRound models.RoundSnapshot `json:"current_round"`
		Leaderboard  []models.Player      `json:"leaderboard"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.CurrentRound.ID != 3 || !body.CurrentRound.Active {
		t.Errorf("unexpected snapshot %+v", body.CurrentRound)
	}
	if len(body.Leaderboard) != 1 {
		t.Errorf("got %d leaderboard entries, want 1", len(body.Leaderboard))
	}
}

func TestGetRounds(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := store.CreateRound(ctx, time.Now()); err != nil {
			t.Fatalf("CreateRound failed: %v", err)
		}
	}
	router := newTestRouter(t, &stubGame{}, store)

	rr := doJSON(t, router, http.MethodGet, "/api/rounds?limit=2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rr.Code)
	}
	var rounds []models.Round
	if err := json.Unmarshal(rr.Body.Bytes(), &rounds); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(rounds) != 2 {
		t.Errorf("got %d rounds, want 2", len(rounds))
	}

	rr = doJSON(t, router, http.MethodGet, "/api/rounds?limit=bogus", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rr.Code)
	}
}

func TestGetRoundPicks(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	round, _ := store.CreateRound(ctx, time.Now())
	if err := store.CreatePick(ctx, &models.Pick{
		ID:      uuid.New(),
		UserID:  1,
		RoundID: round.ID,
		Number:  9,
		WriteID: uuid.New(),
	}); err != nil {
		t.Fatalf("CreatePick failed: %v", err)
	}
	router := newTestRouter(t, &stubGame{}, store)

	rr := doJSON(t, router, http.MethodGet, "/api/rounds/1/picks", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rr.Code)
	}
	var picks []models.Pick
	if err := json.Unmarshal(rr.Body.Bytes(), &picks); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(picks) != 1 || picks[0].Number != 9 {
		t.Errorf("unexpected picks %+v", picks)
	}

	rr = doJSON(t, router, http.MethodGet, "/api/rounds/bogus/picks", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rr.Code)
	}
}

func TestSubmitPick(t *testing.T) {
	accepted := &models.Pick{
		ID:      uuid.New(),
		UserID:  1,
		RoundID: 1,
		Number:  12,
		WriteID: uuid.New(),
	}

	tests := []struct {
		name       string
		game       *stubGame
		body       string
		wantStatus int
		wantReason string
	}{
		{
			name:       "accepted",
			game:       &stubGame{pick: accepted},
			body:       `{"user_id":1,"number":12}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing user id",
			game:       &stubGame{pick: accepted},
			body:       `{"number":12}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "wrong number",
			game:       &stubGame{err: game.ErrInvalidNumber},
			body:       `{"user_id":1,"number":3}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantReason: "invalid_number",
		},
		{
			name:       "duplicate",
			game:       &stubGame{err: game.ErrDuplicatePick},
			body:       `{"user_id":1,"number":12}`,
			wantStatus: http.StatusConflict,
			wantReason: "duplicate_pick",
		},
		{
			name:       "round over",
			game:       &stubGame{err: game.ErrRoundNotActive},
			body:       `{"user_id":1,"number":12}`,
			wantStatus: http.StatusConflict,
			wantReason: "round_not_active",
		},
		{
			name:       "stale round",
			game:       &stubGame{err: game.ErrInvalidRound},
			body:       `{"user_id":1,"number":12}`,
			wantStatus: http.StatusNotFound,
			wantReason: "invalid_round",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(t, tc.game, memory.New())
			rr := doJSON(t, router, http.MethodPost, "/api/rounds/1/picks", tc.body)
			if rr.Code != tc.wantStatus {
				t.Fatalf("got status %d, want %d: %s", rr.Code, tc.wantStatus, rr.Body.String())
			}
			if tc.wantReason != "" && !strings.Contains(rr.Body.String(), tc.wantReason) {
				t.Errorf("response %s missing reason %q", rr.Body.String(), tc.wantReason)
			}
		})
	}
}

func TestGetLeaderboard(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	if _, err := store.CreateUser(ctx, "alice"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	router := newTestRouter(t, &stubGame{}, store)

	rr := doJSON(t, router, http.MethodGet, "/api/leaderboard", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rr.Code)
	}
	var players []models.Player
	if err := json.Unmarshal(rr.Body.Bytes(), &players); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(players) != 1 || players[0].Username != "alice" {
		t.Errorf("unexpected leaderboard %+v", players)
	}
}
