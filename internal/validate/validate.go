// Package validate gates generated questions behind a two-stage quality
// score: a model-assisted semantic judgment and a deterministic rule check.
// The final score is the minimum of the two, so a structurally broken item
// can never pass on a favorable semantic judgment alone.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/skillprobe/skillprobe/internal/model"
	"github.com/skillprobe/skillprobe/internal/schema"
)

// Recommendation is the validator's verdict on a candidate item.
type Recommendation string

const (
	RecommendPass   Recommendation = "pass"
	RecommendRevise Recommendation = "revise"
	RecommendReject Recommendation = "reject"
)

// Recommendation thresholds on the final score.
const (
	passThreshold   = 0.85
	reviseThreshold = 0.70
)

// Rule-check deductions, each applied at most once per item.
const (
	stemLengthPenalty    = 0.2
	choiceCountPenalty   = 0.2
	correctChoicePenalty = 0.3
	duplicatePenalty     = 0.15
)

// ruleStemLimit is the stem length the rule scorer penalizes beyond. It is
// deliberately tighter than the storage cap: long stems are storable but
// score poorly.
const ruleStemLimit = 250

// degradedSemanticScore is used when the semantic judge fails, so one model
// outage does not reject every candidate outright.
const degradedSemanticScore = 0.5

// Result holds the two component scores and the derived verdict for one
// candidate item.
type Result struct {
	SemanticScore  float64        `json:"semantic_score"`
	RuleScore      float64        `json:"rule_score"`
	FinalScore     float64        `json:"final_score"`
	Recommendation Recommendation `json:"recommendation"`
	Issues         []string       `json:"issues,omitempty"`
}

// Candidate pairs a question with its normalized answer schema.
type Candidate struct {
	Question model.Question
	Schema   *schema.Schema
}

// SemanticJudge is the model-assisted half of validation.
type SemanticJudge interface {
	JudgeQuality(ctx context.Context, q model.Question, s *schema.Schema) (float64, []string, error)
}

// Validator scores candidate items.
type Validator struct {
	judge SemanticJudge
}

// New creates a Validator. A nil judge runs rule checks only, with the
// semantic score pinned at the degraded default.
func New(judge SemanticJudge) *Validator {
	return &Validator{judge: judge}
}

// Validate scores one candidate. A semantic-judge failure degrades the
// semantic score instead of failing validation.
func (v *Validator) Validate(ctx context.Context, c Candidate) Result {
	ruleScore, issues := RuleScore(c.Question, c.Schema)

	semantic := degradedSemanticScore
	if v.judge != nil {
		score, judgeIssues, err := v.judge.JudgeQuality(ctx, c.Question, c.Schema)
		if err != nil {
			slog.Warn("semantic judge failed, degrading score",
				"question_id", c.Question.ID, "error", err)
			issues = append(issues, "semantic judgment unavailable")
		} else {
			semantic = score
			issues = append(issues, judgeIssues...)
		}
	}

	final := semantic
	if ruleScore < final {
		final = ruleScore
	}
	return Result{
		SemanticScore:  semantic,
		RuleScore:      ruleScore,
		FinalScore:     final,
		Recommendation: Recommend(final),
		Issues:         issues,
	}
}

// ValidateBatch scores candidates in order, one result per candidate. Items
// are fully independent: one item's judge failure never affects another's
// score.
func (v *Validator) ValidateBatch(ctx context.Context, candidates []Candidate) []Result {
	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = v.Validate(ctx, c)
	}
	return results
}

// RuleScore runs the deterministic structural checks, starting at 1.0 and
// deducting per violation, floored at 0.
func RuleScore(q model.Question, s *schema.Schema) (float64, []string) {
	score := 1.0
	var issues []string

	if len([]rune(q.Stem)) > ruleStemLimit {
		score -= stemLengthPenalty
		issues = append(issues, fmt.Sprintf("stem exceeds %d characters", ruleStemLimit))
	}

	if q.Type == model.TypeMultipleChoice {
		if len(q.Choices) < 4 || len(q.Choices) > 5 {
			score -= choiceCountPenalty
			issues = append(issues, fmt.Sprintf("choice count %d outside 4-5", len(q.Choices)))
		}
		if s != nil && s.CorrectAnswer() != "" && !containsFold(q.Choices, s.CorrectAnswer()) {
			score -= correctChoicePenalty
			issues = append(issues, "correct answer not among choices")
		}
	}

	if hasDuplicatesFold(q.Choices) {
		score -= duplicatePenalty
		issues = append(issues, "duplicate choices")
	}

	if score < 0 {
		score = 0
	}
	return score, issues
}

// Recommend maps a final score onto the three-tier verdict.
func Recommend(final float64) Recommendation {
	switch {
	case final >= passThreshold:
		return RecommendPass
	case final >= reviseThreshold:
		return RecommendRevise
	default:
		return RecommendReject
	}
}

func containsFold(list []string, target string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), strings.TrimSpace(target)) {
			return true
		}
	}
	return false
}

func hasDuplicatesFold(list []string) bool {
	seen := make(map[string]bool, len(list))
	for _, item := range list {
		key := strings.ToLower(strings.TrimSpace(item))
		if seen[key] {
			return true
		}
		seen[key] = true
	}
	return false
}
