package store

import (
	"database/sql"
	"time"

	"github.com/skillprobe/skillprobe/internal/model"
)

// CreateSession stores a new assessment session.
func (s *Store) CreateSession(sess model.Session) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, user_id, status, round, started_at, paused_at, time_limit_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.Status, sess.Round, sess.StartedAt, sess.PausedAt, sess.TimeLimitMS,
	)
	return err
}

// GetSession returns a session by ID.
func (s *Store) GetSession(id string) (model.Session, error) {
	var sess model.Session
	err := s.db.QueryRow(
		`SELECT id, user_id, status, round, started_at, paused_at, time_limit_ms FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.UserID, &sess.Status, &sess.Round, &sess.StartedAt, &sess.PausedAt, &sess.TimeLimitMS)
	return sess, err
}

// UpdateSessionStatus updates the session status.
func (s *Store) UpdateSessionStatus(id string, status model.SessionStatus) error {
	_, err := s.db.Exec(`UPDATE sessions SET status = ? WHERE id = ?`, status, id)
	return err
}

// MarkPaused transitions a session to paused and records the pause time.
func (s *Store) MarkPaused(id string, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET status = ?, paused_at = ? WHERE id = ?`,
		model.StatusPaused, at, id,
	)
	return err
}

// MarkResumed transitions a session back to in_progress and clears the pause
// timestamp.
func (s *Store) MarkResumed(id string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET status = ?, paused_at = NULL WHERE id = ?`,
		model.StatusInProgress, id,
	)
	return err
}

// ListSessionsForUser returns all sessions for a user, newest first.
func (s *Store) ListSessionsForUser(userID int64) ([]model.Session, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, status, round, started_at, paused_at, time_limit_ms
		 FROM sessions WHERE user_id = ? ORDER BY started_at DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.Session
	for rows.Next() {
		var sess model.Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Status, &sess.Round, &sess.StartedAt, &sess.PausedAt, &sess.TimeLimitMS); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// UpsertAnswer saves an answer, replacing any previous answer for the same
// (session, question) pair. Resubmission updates rather than duplicates.
func (s *Store) UpsertAnswer(a model.AnswerRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO answers (session_id, question_id, user_answer, response_time_ms, saved_at, is_correct, score)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, question_id) DO UPDATE SET
		   user_answer = excluded.user_answer,
		   response_time_ms = excluded.response_time_ms,
		   saved_at = excluded.saved_at,
		   is_correct = excluded.is_correct,
		   score = excluded.score`,
		a.SessionID, a.QuestionID, a.UserAnswer, a.ResponseTimeMS, a.SavedAt, a.IsCorrect, a.Score,
	)
	return err
}

// GetAnswers returns all saved answers for a session in save order.
func (s *Store) GetAnswers(sessionID string) ([]model.AnswerRecord, error) {
	rows, err := s.db.Query(
		`SELECT session_id, question_id, user_answer, response_time_ms, saved_at, is_correct, score
		 FROM answers WHERE session_id = ? ORDER BY saved_at, question_id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []model.AnswerRecord
	for rows.Next() {
		var a model.AnswerRecord
		if err := rows.Scan(&a.SessionID, &a.QuestionID, &a.UserAnswer, &a.ResponseTimeMS, &a.SavedAt, &a.IsCorrect, &a.Score); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// GetAnswer returns one saved answer, or nil when the question is unanswered.
func (s *Store) GetAnswer(sessionID, questionID string) (*model.AnswerRecord, error) {
	var a model.AnswerRecord
	err := s.db.QueryRow(
		`SELECT session_id, question_id, user_answer, response_time_ms, saved_at, is_correct, score
		 FROM answers WHERE session_id = ? AND question_id = ?`, sessionID, questionID,
	).Scan(&a.SessionID, &a.QuestionID, &a.UserAnswer, &a.ResponseTimeMS, &a.SavedAt, &a.IsCorrect, &a.Score)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CountAnswers returns the number of answered questions in a session.
func (s *Store) CountAnswers(sessionID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM answers WHERE session_id = ?`, sessionID).Scan(&count)
	return count, err
}
