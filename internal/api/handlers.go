package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/davidgomes/10-seconds-game/internal/api/response"
	"github.com/davidgomes/10-seconds-game/internal/game"
	"github.com/davidgomes/10-seconds-game/internal/leaderboard"
	"github.com/davidgomes/10-seconds-game/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog/log"
)

// Game is what the REST handlers need from the round machine.
type Game interface {
	SubmitPick(ctx context.Context, userID, roundID int64, number int) (*models.Pick, error)
	Snapshot() models.RoundSnapshot
}

// Users is the join flow.
type Users interface {
	CreateUser(ctx context.Context, username string) (*models.User, error)
}

// Handler holds the REST endpoints.
type Handler struct {
	game        Game
	users       Users
	projections *leaderboard.Service
}

// NewHandler creates the REST handler set.
func NewHandler(g Game, users Users, projections *leaderboard.Service) *Handler {
	return &Handler{game: g, users: users, projections: projections}
}

// GetGame returns the current round snapshot and the leaderboard.
func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	players, err := h.projections.Players(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to load leaderboard")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to fetch game state", http.StatusInternalServerError))
		return
	}

	render.JSON(w, r, map[string]any{
		"current_round": h.game.Snapshot(),
		"leaderboard":   players,
	})
}

// GetRounds returns recent round history, newest first.
func (h *Handler) GetRounds(w http.ResponseWriter, r *http.Request) {
	limit := leaderboard.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid limit", http.StatusBadRequest))
			return
		}
		limit = parsed
	}

	rounds, err := h.projections.History(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to load round history")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to fetch rounds", http.StatusInternalServerError))
		return
	}
	if rounds == nil {
		rounds = []models.Round{}
	}
	render.JSON(w, r, rounds)
}

// GetRoundPicks returns all picks recorded for one round.
func (h *Handler) GetRoundPicks(w http.ResponseWriter, r *http.Request) {
	roundID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid round id", http.StatusBadRequest))
		return
	}

	picks, err := h.projections.RoundPicks(r.Context(), roundID)
	if err != nil {
		log.Error().Err(err).Int64("round_id", roundID).Msg("failed to load round picks")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to fetch picks", http.StatusInternalServerError))
		return
	}
	if picks == nil {
		picks = []models.Pick{}
	}
	render.JSON(w, r, picks)
}

// GetLeaderboard returns the leaderboard sorted by wins.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	players, err := h.projections.Players(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to load leaderboard")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to fetch leaderboard", http.StatusInternalServerError))
		return
	}
	if players == nil {
		players = []models.Player{}
	}
	render.JSON(w, r, players)
}

type joinRequest struct {
	Username string `json:"username"`
}

// Join gets or creates a user by username.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil || req.Username == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("username is required", http.StatusBadRequest))
		return
	}

	user, err := h.users.CreateUser(r.Context(), req.Username)
	if err != nil {
		log.Error().Err(err).Str("username", req.Username).Msg("join failed")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to join", http.StatusInternalServerError))
		return
	}

	render.JSON(w, r, user)
}

type submitPickRequest struct {
	UserID int64 `json:"user_id"`
	Number int   `json:"number"`
}

// SubmitPick submits a pick over REST. The same validation path serves the
// WebSocket gateway, so the two entry points cannot drift apart.
func (h *Handler) SubmitPick(w http.ResponseWriter, r *http.Request) {
	roundID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid round id", http.StatusBadRequest))
		return
	}

	var req submitPickRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil || req.UserID == 0 {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("user_id and number are required", http.StatusBadRequest))
		return
	}

	pick, err := h.game.SubmitPick(r.Context(), req.UserID, roundID, req.Number)
	if err != nil {
		if reason, ok := game.RejectReasonOf(err); ok {
			status := rejectStatus(reason)
			render.Status(r, status)
			render.JSON(w, r, response.Rejected(err.Error(), string(reason), status))
			return
		}
		log.Error().Err(err).Int64("round_id", roundID).Msg("pick submission failed")
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to submit pick", http.StatusInternalServerError))
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, pick)
}

func rejectStatus(reason game.RejectReason) int {
	switch reason {
	case game.ReasonDuplicatePick:
		return http.StatusConflict
	case game.ReasonRoundNotActive:
		return http.StatusConflict
	case game.ReasonInvalidRound:
		return http.StatusNotFound
	default:
		return http.StatusUnprocessableEntity
	}
}
