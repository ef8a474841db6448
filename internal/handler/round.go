package handler

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/skillprobe/skillprobe/internal/i18n"
	"github.com/skillprobe/skillprobe/internal/model"
	"github.com/skillprobe/skillprobe/internal/schema"
	"github.com/skillprobe/skillprobe/internal/scoring"
	"github.com/skillprobe/skillprobe/internal/session"
	"github.com/skillprobe/skillprobe/internal/transcript"
)

// questionsPerRound is how many items the generation goal asks for.
const questionsPerRound = 5

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	p, err := h.store.GetProfile(user.ID)
	if err != nil {
		slog.Error("load profile", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	profile := model.DefaultProfile(user.ID)
	if p != nil {
		profile = *p
	}
	respondJSON(w, http.StatusOK, profile)
}

func (h *Handler) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var p model.Profile
	if !decodeBody(w, r, &p) {
		return
	}
	p.UserID = user.ID
	if err := h.store.UpsertProfile(p); err != nil {
		slog.Error("save profile", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

type startRoundRequest struct {
	Round       int    `json:"round"`
	Category    string `json:"category"`
	TimeLimitMS int64  `json:"time_limit_ms"`
}

func (h *Handler) handleStartRound(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var req startRoundRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Round == 0 {
		req.Round = 1
	}
	if req.Round != 1 && req.Round != 2 {
		respondError(w, http.StatusBadRequest, "round must be 1 or 2")
		return
	}

	sess, rid, err := h.sessions.StartRound(user.ID, req.Round, req.TimeLimitMS)
	if err != nil {
		slog.Error("start round", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	goal := h.buildGoal(r, user.ID, rid, req.Category)
	run, err := h.generator.Run(r.Context(), goal)
	if err != nil {
		slog.Error("question generation failed", "session_id", sess.ID, "error", err)
		respondError(w, http.StatusBadGateway, i18n.T(r.Context(), "GenerationFailed"))
		return
	}

	report := transcript.Extract(run.Transcript)
	questions, err := h.store.ListQuestionsForRound(rid.String())
	if err != nil {
		slog.Error("list generated questions", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(questions) == 0 {
		slog.Error("generation produced no questions",
			"session_id", sess.ID, "iterations", run.Iterations, "failures", report.Failures)
		respondError(w, http.StatusBadGateway, i18n.T(r.Context(), "GenerationFailed"))
		return
	}

	if err := h.sessions.Activate(sess.ID); err != nil {
		slog.Error("activate session", "session_id", sess.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"session_id":          sess.ID,
		"round_id":            rid.String(),
		"round":               req.Round,
		"time_limit_ms":       sess.TimeLimitMS,
		"question_count":      len(questions),
		"extraction_failures": report.Failures,
	})
}

// buildGoal composes the generation instruction from the user's profile.
func (h *Handler) buildGoal(r *http.Request, userID int64, rid model.RoundID, category string) string {
	profile := model.DefaultProfile(userID)
	if p, err := h.store.GetProfile(userID); err == nil && p != nil {
		profile = *p
	}
	if category == "" && len(profile.Interests) > 0 {
		category = profile.Interests[0]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d assessment questions for round %d of session %s.\n",
		questionsPerRound, rid.Round, rid.SessionID)
	fmt.Fprintf(&b, "Candidate: self-assessed level %s, %d years of experience, interests: %s.\n",
		profile.SelfLevel, profile.Experience, strings.Join(profile.Interests, ", "))
	if profile.PreviousScore > 0 {
		fmt.Fprintf(&b, "Previous round score: %.0f out of 100; adjust difficulty accordingly.\n", profile.PreviousScore)
	}
	fmt.Fprintf(&b, "Category: %s.\n", category)
	fmt.Fprintf(&b, "Look up templates and difficulty keywords first, validate every candidate, and save each accepted question with round_id %q.", rid.String())
	return b.String()
}

func (h *Handler) loadOwnedSession(w http.ResponseWriter, r *http.Request) (model.Session, bool) {
	user := model.UserFromContext(r.Context())
	sess, err := h.store.GetSession(sessionParam(r))
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, i18n.T(r.Context(), "SessionNotFound"))
		return model.Session{}, false
	}
	if err != nil {
		slog.Error("load session", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return model.Session{}, false
	}
	if sess.UserID != user.ID {
		respondError(w, http.StatusNotFound, i18n.T(r.Context(), "SessionNotFound"))
		return model.Session{}, false
	}
	return sess, true
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadOwnedSession(w, r)
	if !ok {
		return
	}
	questions, err := h.store.ListQuestionsForSession(sess.ID)
	if err != nil {
		slog.Error("list questions", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Answer schemas stay server-side; clients only see what they need to
	// render the item.
	out := make([]map[string]any, 0, len(questions))
	for _, q := range questions {
		item := map[string]any{
			"id":         q.ID,
			"round_id":   q.RoundID,
			"stem":       q.Stem,
			"type":       q.Type,
			"difficulty": q.Difficulty,
			"category":   q.Category,
		}
		if len(q.Choices) > 0 {
			item["choices"] = q.Choices
		}
		out = append(out, item)
	}
	respondJSON(w, http.StatusOK, map[string]any{"questions": out})
}

type saveAnswerRequest struct {
	QuestionID     string `json:"question_id"`
	Answer         string `json:"answer"`
	ResponseTimeMS int64  `json:"response_time_ms"`
}

func (h *Handler) handleSaveAnswer(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadOwnedSession(w, r)
	if !ok {
		return
	}
	var req saveAnswerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.QuestionID == "" {
		respondError(w, http.StatusBadRequest, "question_id is required")
		return
	}

	err := h.sessions.SaveAnswer(sess.ID, req.QuestionID, req.Answer, req.ResponseTimeMS)
	switch {
	case errors.Is(err, session.ErrTimeExpired):
		respondJSON(w, http.StatusOK, map[string]string{
			"status":  "time_expired",
			"message": i18n.T(r.Context(), "SessionTimeExpired"),
		})
	case err != nil:
		var ite *session.InvalidTransitionError
		if errors.As(err, &ite) {
			respondError(w, http.StatusConflict, i18n.T(r.Context(), "SessionPaused"))
			return
		}
		slog.Error("save answer", "session_id", sess.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	default:
		respondJSON(w, http.StatusOK, map[string]string{
			"status":  "saved",
			"message": i18n.T(r.Context(), "AnswerSaved"),
		})
	}
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadOwnedSession(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Pause(sess.ID); err != nil {
		var ite *session.InvalidTransitionError
		if errors.As(err, &ite) {
			respondError(w, http.StatusConflict, ite.Error())
			return
		}
		slog.Error("pause session", "session_id", sess.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(model.StatusPaused)})
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadOwnedSession(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Resume(sess.ID); err != nil {
		var ite *session.InvalidTransitionError
		if errors.As(err, &ite) {
			respondError(w, http.StatusConflict, ite.Error())
			return
		}
		slog.Error("resume session", "session_id", sess.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(model.StatusInProgress)})
}

func (h *Handler) handleSessionState(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadOwnedSession(w, r)
	if !ok {
		return
	}
	state, err := h.sessions.State(sess.ID)
	if err != nil {
		slog.Error("load session state", "session_id", sess.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// handleGrade grades every saved answer in the session. Grading is a
// parallel fan-out with per-item isolation: one failed item is reported
// alongside its siblings, and score writes that fail are queued for retry
// instead of dropped.
func (h *Handler) handleGrade(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadOwnedSession(w, r)
	if !ok {
		return
	}
	answers, err := h.store.GetAnswers(sess.ID)
	if err != nil {
		slog.Error("load answers", "session_id", sess.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(answers) == 0 {
		respondError(w, http.StatusBadRequest, "no saved answers to grade")
		return
	}

	subs := make([]scoring.Submission, 0, len(answers))
	skipped := make([]map[string]any, 0)
	for _, a := range answers {
		q, raw, err := h.store.GetQuestion(a.QuestionID)
		if err != nil {
			slog.Warn("skipping answer with missing question",
				"question_id", a.QuestionID, "error", err)
			skipped = append(skipped, map[string]any{
				"question_id": a.QuestionID, "error": i18n.T(r.Context(), "QuestionNotFound"),
			})
			continue
		}
		sc, err := schema.NormalizeForType(q.Type, raw)
		if err != nil {
			slog.Warn("skipping answer with bad stored schema",
				"question_id", a.QuestionID, "error", err)
			skipped = append(skipped, map[string]any{
				"question_id": a.QuestionID, "error": err.Error(),
			})
			continue
		}
		subs = append(subs, scoring.Submission{Question: q, Schema: sc, Answer: a.UserAnswer})
	}

	items := h.scorer.GradeBatch(r.Context(), subs)

	retries := session.NewRetryQueue()
	results := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if item.Err != nil {
			results = append(results, map[string]any{
				"question_id": item.Result.QuestionID,
				"error":       item.Err.Error(),
			})
			continue
		}
		res := item.Result
		if err := h.sessions.RecordScore(sess.ID, res.QuestionID, res.IsCorrect, res.Score); err != nil {
			slog.Warn("score write failed, queuing for retry",
				"question_id", res.QuestionID, "error", err)
			retries.Add(model.AnswerRecord{
				SessionID:  sess.ID,
				QuestionID: res.QuestionID,
				IsCorrect:  res.IsCorrect,
				Score:      res.Score,
			})
		}
		results = append(results, map[string]any{
			"question_id":     res.QuestionID,
			"is_correct":      res.IsCorrect,
			"score":           res.Score,
			"explanation":     res.Explanation,
			"keyword_matches": res.KeywordMatches,
			"is_fallback":     res.IsFallback,
		})
	}

	unrecorded := redriveScores(h.sessions.RecordScore, retries.Drain())

	if err := h.sessions.Complete(sess.ID); err != nil {
		var ite *session.InvalidTransitionError
		if !errors.As(err, &ite) {
			slog.Error("complete session", "session_id", sess.ID, "error", err)
		}
	}

	resp := map[string]any{
		"results":         results,
		"skipped":         skipped,
		"pending_retries": len(unrecorded),
	}
	if len(unrecorded) > 0 {
		resp["unrecorded_question_ids"] = unrecorded
	}
	respondJSON(w, http.StatusOK, resp)
}

// redriveScores replays drained score writes once. The writes are idempotent
// upserts, so replaying a score that did land is harmless. Question IDs that
// still fail are returned so the response can surface them to the caller.
func redriveScores(record func(sessionID, questionID string, isCorrect bool, score float64) error, pending []model.AnswerRecord) []string {
	var unrecorded []string
	for _, rec := range pending {
		if err := record(rec.SessionID, rec.QuestionID, rec.IsCorrect, rec.Score); err != nil {
			slog.Error("score write failed after retry",
				"session_id", rec.SessionID, "question_id", rec.QuestionID, "error", err)
			unrecorded = append(unrecorded, rec.QuestionID)
		}
	}
	return unrecorded
}
