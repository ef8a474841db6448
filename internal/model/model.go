package model

import (
	"context"
	"fmt"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleCandidate is a regular assessment-taking user.
	UserRoleCandidate UserRole = "candidate"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication token session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// SessionStatus represents the status of an assessment session.
type SessionStatus string

const (
	StatusGenerating SessionStatus = "generating"
	StatusInProgress SessionStatus = "in_progress"
	StatusPaused     SessionStatus = "paused"
	StatusCompleted  SessionStatus = "completed"
)

// DefaultTimeLimitMS is the per-round time limit applied when a session does
// not specify one (20 minutes).
const DefaultTimeLimitMS int64 = 1_200_000

// Session represents one timed assessment round for a user.
type Session struct {
	ID          string        `json:"id"`
	UserID      int64         `json:"user_id"`
	Status      SessionStatus `json:"status"`
	Round       int           `json:"round"`
	StartedAt   time.Time     `json:"started_at"`
	PausedAt    *time.Time    `json:"paused_at,omitempty"`
	TimeLimitMS int64         `json:"time_limit_ms"`
}

// Elapsed returns the time spent in the session as of now.
func (s Session) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}

// Exceeded reports whether the session has run past its time limit.
func (s Session) Exceeded(now time.Time) bool {
	return s.Elapsed(now).Milliseconds() >= s.TimeLimitMS
}

// QuestionType represents the kind of generated question.
type QuestionType string

const (
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeTrueFalse      QuestionType = "true_false"
	TypeShortAnswer    QuestionType = "short_answer"
)

// Selectable reports whether the question is answered by picking from fixed
// options rather than free text.
func (t QuestionType) Selectable() bool {
	return t == TypeMultipleChoice || t == TypeTrueFalse
}

// MaxStemLength is the hard cap on question stem length.
const MaxStemLength = 2000

// Question is a generated assessment item. Once persisted it is never mutated.
type Question struct {
	ID         string       `json:"id"`
	RoundID    string       `json:"round_id"`
	Stem       string       `json:"stem"`
	Type       QuestionType `json:"type"`
	Choices    []string     `json:"choices,omitempty"`
	Difficulty int          `json:"difficulty"`
	Category   string       `json:"category"`
}

// Validate checks the structural invariants that must hold before a question
// may be persisted. Quality scoring is a separate concern; this only rejects
// items that cannot be stored at all.
func (q Question) Validate() error {
	if q.Stem == "" {
		return fmt.Errorf("question stem is empty")
	}
	if len([]rune(q.Stem)) > MaxStemLength {
		return fmt.Errorf("question stem exceeds %d characters", MaxStemLength)
	}
	if q.Difficulty < 1 || q.Difficulty > 10 {
		return fmt.Errorf("difficulty %d out of range 1-10", q.Difficulty)
	}
	if q.Type == TypeMultipleChoice && (len(q.Choices) < 4 || len(q.Choices) > 5) {
		return fmt.Errorf("multiple-choice question needs 4-5 choices, got %d", len(q.Choices))
	}
	return nil
}

// AnswerRecord holds a user's saved answer for one question.
type AnswerRecord struct {
	SessionID      string    `json:"session_id"`
	QuestionID     string    `json:"question_id"`
	UserAnswer     string    `json:"user_answer"`
	ResponseTimeMS int64     `json:"response_time_ms"`
	SavedAt        time.Time `json:"saved_at"`
	IsCorrect      bool      `json:"is_correct"`
	Score          float64   `json:"score"`
}

// Profile holds the survey data used to steer question generation.
type Profile struct {
	UserID        int64    `json:"user_id"`
	SelfLevel     string   `json:"self_level"`
	Experience    int      `json:"experience_years"`
	Interests     []string `json:"interests"`
	PreviousScore float64  `json:"previous_score"`
}

// DefaultProfile returns the safe defaults used when a user has no stored
// survey profile.
func DefaultProfile(userID int64) Profile {
	return Profile{
		UserID:    userID,
		SelfLevel: "beginner",
		Interests: []string{"general"},
	}
}

// QuestionTemplate is a pre-authored template the generator can draw on.
type QuestionTemplate struct {
	ID         int64    `json:"id"`
	Text       string   `json:"text"`
	Difficulty int      `json:"difficulty"`
	Category   string   `json:"category"`
	Interests  []string `json:"interests"`
}
