// Package api serves the REST surface of the game: read-side queries for
// state, history and the leaderboard, plus join and pick submission. Pick
// submissions go through the same validation path as WebSocket picks.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// NewRouter builds the HTTP router.
func NewRouter(h *Handler, wsHandler http.HandlerFunc, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(logger))
	r.Use(hlog.AccessHandler(func(req *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(req).Info().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/game", h.GetGame)
		r.Get("/rounds", h.GetRounds)
		r.Get("/rounds/{id}/picks", h.GetRoundPicks)
		r.Post("/rounds/{id}/picks", h.SubmitPick)
		r.Get("/leaderboard", h.GetLeaderboard)
		r.Post("/join", h.Join)
	})

	r.Get("/ws", wsHandler)

	return r
}
