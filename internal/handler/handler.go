// Package handler exposes the assessment engine over a JSON HTTP API.
// Request validation failures fail fast with an actionable message; pipeline
// failures degrade (fallback explanations, partial batch results) rather
// than turning into 5xx responses.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skillprobe/skillprobe/internal/agent"
	"github.com/skillprobe/skillprobe/internal/scoring"
	"github.com/skillprobe/skillprobe/internal/session"
	"github.com/skillprobe/skillprobe/internal/store"
)

// Generator runs one question-generation pass for a round. Satisfied by
// agent.Orchestrator.
type Generator interface {
	Run(ctx context.Context, goal string) (*agent.RunResult, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	sessions  *session.Service
	scorer    *scoring.Scorer
	generator Generator
}

// New creates a new Handler.
func New(st *store.Store, sessions *session.Service, scorer *scoring.Scorer, gen Generator) *Handler {
	return &Handler{store: st, sessions: sessions, scorer: scorer, generator: gen}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/api/logout", h.handleLogout)

		r.Get("/api/profile", h.handleGetProfile)
		r.Put("/api/profile", h.handlePutProfile)

		r.Post("/api/rounds", h.handleStartRound)
		r.Get("/api/sessions/{sessionID}/questions", h.handleListQuestions)
		r.Get("/api/sessions/{sessionID}", h.handleSessionState)
		r.Post("/api/sessions/{sessionID}/answers", h.handleSaveAnswer)
		r.Post("/api/sessions/{sessionID}/pause", h.handlePause)
		r.Post("/api/sessions/{sessionID}/resume", h.handleResume)
		r.Post("/api/sessions/{sessionID}/grade", h.handleGrade)
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func sessionParam(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}
