// Package session implements the assessment-round state machine. A session
// starts in generating, moves to in_progress once questions exist, may bounce
// between paused and in_progress, and ends in completed. Answer submissions
// are idempotent upserts and every submission rechecks the round time limit,
// so a crashed client can resume exactly where it stopped.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/skillprobe/skillprobe/internal/model"
	"github.com/skillprobe/skillprobe/internal/store"

	"github.com/google/uuid"
)

// ErrTimeExpired means the round's time limit elapsed; the session has been
// paused and the answer that triggered the check may or may not have been
// saved.
var ErrTimeExpired = errors.New("session time limit exceeded")

// InvalidTransitionError reports a state-machine transition that is not
// permitted from the session's current status.
type InvalidTransitionError struct {
	From model.SessionStatus
	To   model.SessionStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid session transition %s -> %s", e.From, e.To)
}

// Service drives session lifecycle against the persistence layer. Now is
// overridable for tests and defaults to time.Now.
type Service struct {
	store *store.Store
	Now   func() time.Time
}

func NewService(st *store.Store) *Service {
	return &Service{store: st, Now: time.Now}
}

// StartRound creates a session in the generating state and mints the round
// identifier used to tag its questions. A zero timeLimitMS selects the
// default limit.
func (s *Service) StartRound(userID int64, round int, timeLimitMS int64) (model.Session, model.RoundID, error) {
	if timeLimitMS <= 0 {
		timeLimitMS = model.DefaultTimeLimitMS
	}
	sess := model.Session{
		ID:          uuid.New().String(),
		UserID:      userID,
		Status:      model.StatusGenerating,
		Round:       round,
		StartedAt:   s.Now().UTC(),
		TimeLimitMS: timeLimitMS,
	}
	rid, err := model.NewRoundID(sess.ID, round)
	if err != nil {
		return model.Session{}, model.RoundID{}, err
	}
	if err := s.store.CreateSession(sess); err != nil {
		return model.Session{}, model.RoundID{}, fmt.Errorf("create session: %w", err)
	}
	return sess, rid, nil
}

// Activate moves a session from generating to in_progress once its questions
// are ready.
func (s *Service) Activate(sessionID string) error {
	return s.transition(sessionID, model.StatusInProgress, model.StatusGenerating)
}

// Pause suspends an in-progress session.
func (s *Service) Pause(sessionID string) error {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess.Status != model.StatusInProgress {
		return &InvalidTransitionError{From: sess.Status, To: model.StatusPaused}
	}
	return s.store.MarkPaused(sessionID, s.Now().UTC())
}

// Resume reactivates a paused session and clears paused_at. Valid only from
// the paused state.
func (s *Service) Resume(sessionID string) error {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess.Status != model.StatusPaused {
		return &InvalidTransitionError{From: sess.Status, To: model.StatusInProgress}
	}
	return s.store.MarkResumed(sessionID)
}

// Complete finishes an in-progress session.
func (s *Service) Complete(sessionID string) error {
	return s.transition(sessionID, model.StatusCompleted, model.StatusInProgress)
}

func (s *Service) transition(sessionID string, to model.SessionStatus, validFrom ...model.SessionStatus) error {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	for _, from := range validFrom {
		if sess.Status == from {
			return s.store.UpdateSessionStatus(sessionID, to)
		}
	}
	return &InvalidTransitionError{From: sess.Status, To: to}
}

// SaveAnswer upserts the answer for (session, question): resubmitting the
// same question updates the existing record. The round time limit is checked
// on every submission; when exceeded, the session is paused whether or not
// the save itself succeeded, and ErrTimeExpired is returned (joined with the
// save error, if any).
func (s *Service) SaveAnswer(sessionID, questionID, userAnswer string, responseTimeMS int64) error {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess.Status != model.StatusInProgress {
		return &InvalidTransitionError{From: sess.Status, To: sess.Status}
	}

	now := s.Now().UTC()
	saveErr := s.store.UpsertAnswer(model.AnswerRecord{
		SessionID:      sessionID,
		QuestionID:     questionID,
		UserAnswer:     userAnswer,
		ResponseTimeMS: responseTimeMS,
		SavedAt:        now,
	})
	if saveErr != nil {
		saveErr = fmt.Errorf("save answer: %w", saveErr)
	}

	if sess.Exceeded(now) {
		if err := s.store.MarkPaused(sessionID, now); err != nil {
			return errors.Join(saveErr, fmt.Errorf("pause expired session: %w", err))
		}
		return errors.Join(ErrTimeExpired, saveErr)
	}
	return saveErr
}

// RecordScore writes the grading outcome onto an already-saved answer.
func (s *Service) RecordScore(sessionID, questionID string, isCorrect bool, score float64) error {
	existing, err := s.store.GetAnswer(sessionID, questionID)
	if err != nil {
		return fmt.Errorf("load answer: %w", err)
	}
	if existing == nil {
		return fmt.Errorf("record score: no saved answer for question %s", questionID)
	}
	existing.IsCorrect = isCorrect
	existing.Score = score
	if err := s.store.UpsertAnswer(*existing); err != nil {
		return fmt.Errorf("record score: %w", err)
	}
	return nil
}

// State is everything a client needs to resume a round without replaying
// answered items.
type State struct {
	Session           model.Session        `json:"session"`
	Answers           []model.AnswerRecord `json:"answers"`
	NextQuestionIndex int                  `json:"next_question_index"`
	ElapsedMS         int64                `json:"elapsed_ms"`
	RemainingMS       int64                `json:"remaining_ms"`
}

// State returns the saved answers, the index of the next unanswered question,
// and the elapsed/remaining time for the session.
func (s *Service) State(sessionID string) (State, error) {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		return State{}, fmt.Errorf("load session: %w", err)
	}
	answers, err := s.store.GetAnswers(sessionID)
	if err != nil {
		return State{}, fmt.Errorf("load answers: %w", err)
	}

	elapsed := sess.Elapsed(s.Now().UTC()).Milliseconds()
	remaining := sess.TimeLimitMS - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return State{
		Session:           sess,
		Answers:           answers,
		NextQuestionIndex: len(answers),
		ElapsedMS:         elapsed,
		RemainingMS:       remaining,
	}, nil
}
