package gateway

import (
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
	"github.com/gorilla/websocket"
)

type stubGame struct {
	snapshot models.RoundSnapshot
	pickErr  error

	picks chan pickRequest
}

func (s *stubGame) SubmitPick(ctx context.Context, userID, roundID int64, number int) (*models.Pick, error) {
	if s.picks != nil {
		s.picks <- pickRequest{RoundID: roundID, Number: number}
	}
	if s.pickErr != nil {
		return nil, s.pickErr
	}
	return &models.Pick{UserID: userID, RoundID: roundID, Number: number}, nil
}

func (s *stubGame) Snapshot() models.RoundSnapshot {
	return s.snapshot
}

type testClient struct {
	t  *testing.T
	ws *websocket.Conn
}

type hubHarness struct {
	t   *testing.T
	hub *Hub
	srv *httptest.Server
}

func newHubHarness(t *testing.T, g Game, store *memory.Store) *hubHarness {
	t.Helper()

	hub := NewHub(g, store, leaderboard.NewService(store), DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Start(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &hubHarness{t: t, hub: hub, srv: srv}
}

func (h *hubHarness) dial() *testClient {
	h.t.Helper()

	url := "ws" + strings.TrimPrefix(h.srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		h.t.Fatalf("failed to dial websocket: %v", err)
	}
	h.t.Cleanup(func() { ws.Close() })
	return &testClient{t: h.t, ws: ws}
}

func dialHub(t *testing.T, g Game) (*Hub, *testClient) {
	t.Helper()
	h := newHubHarness(t, g, memory.New())
	return h.hub, h.dial()
}

func (c *testClient) send(msg any) {
	c.t.Helper()
	if err := c.ws.WriteJSON(msg); err != nil {
		c.t.Fatalf("failed to write message: %v", err)
	}
}

func (c *testClient) expect(eventType game.EventType) game.Event {
	c.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		c.ws.SetReadDeadline(deadline)
		var ev game.Event
		if err := c.ws.ReadJSON(&ev); err != nil {
			c.t.Fatalf("failed to read event while waiting for %s: %v", eventType, err)
		}
		if ev.Type == eventType {
			return ev
		}
	}
}

// expectAll reads events until every listed type has been seen once. The
// join flow produces a broadcast and a direct send whose relative order is
// not fixed.
func (c *testClient) expectAll(types ...game.EventType) map[game.EventType]game.Event {
	c.t.Helper()
	want := make(map[game.EventType]bool, len(types))
	for _, typ := range types {
		want[typ] = true
	}
	seen := make(map[game.EventType]game.Event, len(types))

	deadline := time.Now().Add(2 * time.Second)
	for len(seen) < len(want) {
		c.ws.SetReadDeadline(deadline)
		var ev game.Event
		if err := c.ws.ReadJSON(&ev); err != nil {
			c.t.Fatalf("failed to read event while waiting for %v: %v", types, err)
		}
		if want[ev.Type] {
			seen[ev.Type] = ev
		}
	}
	return seen
}

func TestConnectPushesGameState(t *testing.T) {
	g := &stubGame{snapshot: models.RoundSnapshot{
		ID:               7,
		Active:           true,
		DisplayedNumbers: []int{9, 14},
	}}
	hub, client := dialHub(t, g)

	ev := client.expect(eventTypeGameState)
	var state gameStatePayload
	if err := json.Unmarshal(ev.Data, &state); err != nil {
		t.Fatalf("failed to decode game state: %v", err)
	}
	if state.CurrentRound.ID != 7 || len(state.CurrentRound.DisplayedNumbers) != 2 {
		t.Errorf("unexpected snapshot %+v", state.CurrentRound)
	}

	if hub.ConnectionCount() != 1 {
		t.Errorf("got %d connections, want 1", hub.ConnectionCount())
	}
}

func TestJoinThenPick(t *testing.T) {
	g := &stubGame{picks: make(chan pickRequest, 1)}
	_, client := dialHub(t, g)

	client.expect(eventTypeGameState)

	client.send(map[string]any{"type": "join", "username": "alice"})
	seen := client.expectAll(eventTypePlayerJoined, eventTypeGameState)
	var player models.Player
	if err := json.Unmarshal(seen[eventTypePlayerJoined].Data, &player); err != nil {
		t.Fatalf("failed to decode player: %v", err)
	}
	if player.Username != "alice" {
		t.Errorf("got player %q, want alice", player.Username)
	}

	client.send(map[string]any{
		"type": "pick",
		"data": map[string]any{"round_id": 3, "number": 14},
	})

	select {
	case pick := <-g.picks:
		if pick.RoundID != 3 || pick.Number != 14 {
			t.Errorf("unexpected pick %+v", pick)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pick never reached the game")
	}
}

func TestPickBeforeJoinIsRejected(t *testing.T) {
	_, client := dialHub(t, &stubGame{})

	client.expect(eventTypeGameState)
	client.send(map[string]any{
		"type": "pick",
		"data": map[string]any{"round_id": 1, "number": 5},
	})

	ev := client.expect(eventTypeError)
	var payload errorPayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if payload.Error != "not joined" {
		t.Errorf("got error %q, want %q", payload.Error, "not joined")
	}
}

func TestPickRejectionCarriesReason(t *testing.T) {
	g := &stubGame{pickErr: game.ErrInvalidNumber}
	_, client := dialHub(t, g)

	client.expect(eventTypeGameState)
	client.send(map[string]any{"type": "join", "username": "alice"})
	client.expectAll(eventTypePlayerJoined, eventTypeGameState)

	client.send(map[string]any{
		"type": "pick",
		"data": map[string]any{"round_id": 1, "number": 99},
	})

	ev := client.expect(eventTypeError)
	var payload errorPayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if payload.Reason != string(game.ReasonInvalidNumber) {
		t.Errorf("got reason %q, want %q", payload.Reason, game.ReasonInvalidNumber)
	}
}

func TestDisconnectBroadcastsPlayerLeft(t *testing.T) {
	harness := newHubHarness(t, &stubGame{}, memory.New())

	leaver := harness.dial()
	watcher := harness.dial()
	leaver.expect(eventTypeGameState)
	watcher.expect(eventTypeGameState)

	leaver.send(map[string]any{"type": "join", "username": "alice"})
	leaver.expectAll(eventTypePlayerJoined, eventTypeGameState)
	watcher.expect(eventTypePlayerJoined)

	leaver.ws.Close()

	ev := watcher.expect(eventTypePlayerLeft)
	var player models.Player
	if err := json.Unmarshal(ev.Data, &player); err != nil {
		t.Fatalf("failed to decode player: %v", err)
	}
	if player.Username != "alice" {
		t.Errorf("got player %q, want alice", player.Username)
	}
	if player.Connected {
		t.Error("a player who left should not be marked connected")
	}
}

func TestWatcherDisconnectIsSilent(t *testing.T) {
	harness := newHubHarness(t, &stubGame{}, memory.New())

	watcher := harness.dial()
	stayer := harness.dial()
	watcher.expect(eventTypeGameState)
	stayer.expect(eventTypeGameState)

	// A connection that never joined leaves without an announcement.
	watcher.ws.Close()

	// Wait until the hub has dropped the connection, then broadcast a
	// marker; nothing may arrive between the two.
	deadline := time.Now().Add(2 * time.Second)
	for harness.hub.ConnectionCount() > 1 {
		if time.Now().After(deadline) {
			t.Fatal("hub never dropped the closed connection")
		}
		time.Sleep(time.Millisecond)
	}

	event, err := game.NewEvent(game.EventTypeNumberRevealed, game.NumberRevealedPayload{
		RoundID: 1, Number: 7, DisplayIndex: 0,
	})
	if err != nil {
		t.Fatalf("failed to build event: %v", err)
	}
	harness.hub.Broadcast(event)

	stayer.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev game.Event
	if err := stayer.ws.ReadJSON(&ev); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if ev.Type != game.EventTypeNumberRevealed {
		t.Fatalf("got %s, want the marker broadcast with no leave announcement first", ev.Type)
	}
}

func TestGameStateMarksConnectedPlayers(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for _, name := range []string{"alice", "bob"} {
		if _, err := store.CreateUser(ctx, name); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}

	harness := newHubHarness(t, &stubGame{}, store)
	client := harness.dial()

	ev := client.expect(eventTypeGameState)
	var state gameStatePayload
	if err := json.Unmarshal(ev.Data, &state); err != nil {
		t.Fatalf("failed to decode game state: %v", err)
	}
	for _, p := range state.Players {
		if p.Connected {
			t.Errorf("player %s marked connected before anyone joined", p.Username)
		}
	}

	client.send(map[string]any{"type": "join", "username": "alice"})
	seen := client.expectAll(eventTypePlayerJoined, eventTypeGameState)

	var joined models.Player
	if err := json.Unmarshal(seen[eventTypePlayerJoined].Data, &joined); err != nil {
		t.Fatalf("failed to decode player: %v", err)
	}
	if !joined.Connected {
		t.Error("joining player should be announced as connected")
	}

	if err := json.Unmarshal(seen[eventTypeGameState].Data, &state); err != nil {
		t.Fatalf("failed to decode game state: %v", err)
	}
	connected := make(map[string]bool, len(state.Players))
	for _, p := range state.Players {
		connected[p.Username] = p.Connected
	}
	if !connected["alice"] {
		t.Error("alice joined and should be marked connected")
	}
	if connected["bob"] {
		t.Error("bob never joined and should not be marked connected")
	}
}

func TestBroadcastWhileClientsDisconnect(t *testing.T) {
	harness := newHubHarness(t, &stubGame{}, memory.New())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			event, err := game.NewEvent(game.EventTypeNumberRevealed, game.NumberRevealedPayload{
				RoundID: 1, Number: i + 1, DisplayIndex: i,
			})
			if err != nil {
				return
			}
			harness.hub.Broadcast(event)
		}
	}()

	for i := 0; i < 10; i++ {
		client := harness.dial()
		client.expect(eventTypeGameState)
		client.ws.Close()
	}
	<-done
}

func TestBroadcastReachesClients(t *testing.T) {
	hub, client := dialHub(t, &stubGame{})
	client.expect(eventTypeGameState)

	event, err := game.NewEvent(game.EventTypeNumberRevealed, game.NumberRevealedPayload{
		RoundID: 1, Number: 42, DisplayIndex: 0,
	})
	if err != nil {
		t.Fatalf("failed to build event: %v", err)
	}
	hub.Broadcast(event)

	ev := client.expect(game.EventTypeNumberRevealed)
	var payload game.NumberRevealedPayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.Number != 42 {
		t.Errorf("got number %d, want 42", payload.Number)
	}
}
