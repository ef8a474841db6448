// Package scoring grades submitted answers against normalized answer schemas
// and produces user-facing explanations. Selectable items are graded
// deterministically; open-ended items combine keyword matching with a
// model-assisted semantic score. Never blocking the user-facing response
// takes priority over numeric precision: model failures produce a fallback
// explanation and a default partial score instead of an error.
package scoring

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/skillprobe/skillprobe/internal/model"
	"github.com/skillprobe/skillprobe/internal/schema"

	"golang.org/x/sync/errgroup"
)

// Score thresholds. A score at or above correctThreshold is correct; scores
// in [partialThreshold, correctThreshold) earn partial credit but are never
// surfaced as correct, including to adaptive-difficulty consumers.
const (
	correctThreshold = 80.0
	partialThreshold = 70.0
)

// fallbackScore is the default partial score used when the semantic grader
// is unavailable.
const fallbackScore = 50.0

// Explanation quality gate: regenerate when the text is shorter than this or
// references fewer key items than required.
const (
	minExplanationRunes = 50
	minReferenceItems   = 2
	explainAttempts     = 3
)

const defaultFallbackExplanation = "We could not generate a detailed explanation right now. " +
	"Review the question topic and compare your answer with the expected key concepts."

// Result is the outcome of grading one submitted answer.
type Result struct {
	QuestionID     string    `json:"question_id"`
	IsCorrect      bool      `json:"is_correct"`
	Score          float64   `json:"score"`
	Explanation    string    `json:"explanation"`
	KeywordMatches []string  `json:"keyword_matches,omitempty"`
	IsFallback     bool      `json:"is_fallback,omitempty"`
	GradedAt       time.Time `json:"graded_at"`
}

// Submission is one answer to grade.
type Submission struct {
	Question model.Question
	Schema   *schema.Schema
	Answer   string
}

// BatchItem pairs a grading result with its per-item error so one failed
// grade is reported alongside its successful siblings.
type BatchItem struct {
	Result Result
	Err    error
}

// ModelGrader is the model-assisted half of grading.
type ModelGrader interface {
	ScoreAnswer(ctx context.Context, q model.Question, s *schema.Schema, answer string) (float64, error)
	Explain(ctx context.Context, q model.Question, s *schema.Schema, correct bool) (string, error)
}

type explanationKey struct {
	questionID string
	correct    bool
}

// Scorer grades answers. Explanations are generated once per
// (question, correctness) pair and cached for subsequent graders.
type Scorer struct {
	grader ModelGrader

	mu           sync.Mutex
	explanations map[explanationKey]string

	// FallbackText supplies the degraded explanation; overridable so the
	// serving layer can localize it.
	FallbackText func(ctx context.Context) string
}

// New creates a Scorer. A nil grader grades open-ended items entirely by
// keyword coverage with fallback explanations.
func New(grader ModelGrader) *Scorer {
	return &Scorer{
		grader:       grader,
		explanations: make(map[explanationKey]string),
		FallbackText: func(context.Context) string { return defaultFallbackExplanation },
	}
}

// Grade scores one submission. The returned error is reserved for structural
// problems (schema kind not matching the question type); model failures
// degrade to a fallback result instead.
func (s *Scorer) Grade(ctx context.Context, sub Submission) (Result, error) {
	res := Result{
		QuestionID: sub.Question.ID,
		GradedAt:   time.Now().UTC(),
	}

	if sub.Question.Type.Selectable() {
		if sub.Schema.Kind() != schema.KindExactMatch {
			return res, &schema.Error{Reason: schema.TypeMismatch, Field: "kind"}
		}
		if strings.EqualFold(strings.TrimSpace(sub.Answer), strings.TrimSpace(sub.Schema.CorrectAnswer())) {
			res.Score = 100
			res.IsCorrect = true
		}
		res.Explanation, res.IsFallback = s.explanation(ctx, sub.Question, sub.Schema, res.IsCorrect)
		return res, nil
	}

	if sub.Schema.Kind() != schema.KindKeywordMatch {
		return res, &schema.Error{Reason: schema.TypeMismatch, Field: "kind"}
	}

	res.KeywordMatches = matchKeywords(sub.Answer, sub.Schema.Keywords())

	if s.grader == nil {
		res.Score = coverageScore(len(res.KeywordMatches), len(sub.Schema.Keywords()))
		res.IsFallback = true
	} else {
		score, err := s.grader.ScoreAnswer(ctx, sub.Question, sub.Schema, sub.Answer)
		if err != nil {
			slog.Warn("semantic grading failed, using fallback score",
				"question_id", sub.Question.ID, "error", err)
			res.Score = fallbackScore
			res.IsFallback = true
		} else {
			res.Score = score
		}
	}

	res.IsCorrect = res.Score >= correctThreshold
	explanation, fellBack := s.explanation(ctx, sub.Question, sub.Schema, res.IsCorrect)
	res.Explanation = explanation
	res.IsFallback = res.IsFallback || fellBack
	return res, nil
}

// GradeBatch grades submissions in parallel and gathers results by index.
// A slow or failing grade never blocks or corrupts its siblings.
func (s *Scorer) GradeBatch(ctx context.Context, subs []Submission) []BatchItem {
	items := make([]BatchItem, len(subs))
	var g errgroup.Group
	for i, sub := range subs {
		g.Go(func() error {
			res, err := s.Grade(ctx, sub)
			items[i] = BatchItem{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return items
}

// explanation returns the cached explanation for the (question, correctness)
// pair, generating and gating it on first use. The second return reports
// whether the fallback text was used.
func (s *Scorer) explanation(ctx context.Context, q model.Question, sc *schema.Schema, correct bool) (string, bool) {
	key := explanationKey{questionID: q.ID, correct: correct}
	s.mu.Lock()
	if cached, ok := s.explanations[key]; ok {
		s.mu.Unlock()
		return cached, false
	}
	s.mu.Unlock()

	if s.grader == nil {
		return s.FallbackText(ctx), true
	}

	for attempt := 1; attempt <= explainAttempts; attempt++ {
		text, err := s.grader.Explain(ctx, q, sc, correct)
		if err != nil {
			slog.Warn("explanation generation failed",
				"question_id", q.ID, "attempt", attempt, "error", err)
			continue
		}
		if !explanationAcceptable(text, q, sc) {
			slog.Debug("explanation below quality gate, retrying",
				"question_id", q.ID, "attempt", attempt)
			continue
		}
		s.mu.Lock()
		s.explanations[key] = text
		s.mu.Unlock()
		return text, false
	}
	return s.FallbackText(ctx), true
}

// explanationAcceptable applies the generation-time quality gate: minimum
// length plus a minimum count of distinct referenced items (keywords,
// choices, or the correct answer).
func explanationAcceptable(text string, q model.Question, sc *schema.Schema) bool {
	if len([]rune(text)) < minExplanationRunes {
		return false
	}

	refs := append([]string(nil), sc.Keywords()...)
	if sc.CorrectAnswer() != "" {
		refs = append(refs, sc.CorrectAnswer())
	}
	refs = append(refs, q.Choices...)

	required := minReferenceItems
	if len(refs) < required {
		required = len(refs)
	}
	if required == 0 {
		return true
	}

	lower := strings.ToLower(text)
	seen := make(map[string]bool, len(refs))
	found := 0
	for _, ref := range refs {
		key := strings.ToLower(strings.TrimSpace(ref))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if strings.Contains(lower, key) {
			found++
			if found >= required {
				return true
			}
		}
	}
	return false
}

// matchKeywords returns the schema keywords present in the answer,
// case-insensitively.
func matchKeywords(answer string, keywords []string) []string {
	lower := strings.ToLower(answer)
	var matches []string
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			matches = append(matches, kw)
		}
	}
	return matches
}

func coverageScore(matched, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total) * 100
}
