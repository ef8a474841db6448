package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/skillprobe/skillprobe/internal/model"
	"github.com/skillprobe/skillprobe/internal/schema"
	"github.com/skillprobe/skillprobe/internal/store"
	"github.com/skillprobe/skillprobe/internal/validate"

	"github.com/google/uuid"
)

// Tool names. The registry is built from these at startup; the model may not
// invoke anything else.
const (
	ToolProfileLookup  = "profile_lookup"
	ToolTemplateSearch = "template_search"
	ToolKeywordLookup  = "keyword_lookup"
	ToolValidate       = "validate_questions"
	ToolSaveQuestion   = "save_question"
)

// templateSearchLimit caps how many ranked templates a search returns.
const templateSearchLimit = 10

// GenerationTools builds the registry used by a question-generation run.
func GenerationTools(st *store.Store, validator *validate.Validator) *Registry {
	r := NewRegistry()
	r.MustRegister(
		&ProfileLookupTool{Store: st},
		&TemplateSearchTool{Store: st},
		&KeywordLookupTool{Store: st},
		&ValidateTool{Validator: validator},
		&SaveQuestionTool{Store: st},
	)
	return r
}

// ProfileLookupTool returns the user's survey profile, substituting
// documented safe defaults when no profile is stored.
type ProfileLookupTool struct {
	Store *store.Store
}

func (t *ProfileLookupTool) Name() string { return ToolProfileLookup }

func (t *ProfileLookupTool) Description() string {
	return "Look up a user's survey profile by user_id. Returns self_level, experience_years, interests and previous_score; defaults are used when the user never completed the survey."
}

func (t *ProfileLookupTool) Invoke(_ context.Context, args map[string]any) (map[string]any, error) {
	userID, err := argInt(args, "user_id")
	if err != nil {
		return nil, err
	}
	p, err := t.Store.GetProfile(userID)
	if err != nil {
		return nil, fmt.Errorf("look up profile: %w", err)
	}
	profile := model.DefaultProfile(userID)
	defaulted := true
	if p != nil {
		profile = *p
		defaulted = false
	}
	return map[string]any{
		"user_id":          profile.UserID,
		"self_level":       profile.SelfLevel,
		"experience_years": profile.Experience,
		"interests":        profile.Interests,
		"previous_score":   profile.PreviousScore,
		"defaulted":        defaulted,
	}, nil
}

// TemplateSearchTool finds pre-authored question templates matching the
// user's interests and target difficulty.
type TemplateSearchTool struct {
	Store *store.Store
}

func (t *TemplateSearchTool) Name() string { return ToolTemplateSearch }

func (t *TemplateSearchTool) Description() string {
	return "Search question templates by interests, difficulty (1-10) and category. Returns up to 10 ranked templates."
}

func (t *TemplateSearchTool) Invoke(_ context.Context, args map[string]any) (map[string]any, error) {
	interests, err := argStringList(args, "interests")
	if err != nil {
		return nil, err
	}
	difficulty, err := argInt(args, "difficulty")
	if err != nil {
		return nil, err
	}
	category, _ := args["category"].(string)

	templates, err := t.Store.SearchTemplates(interests, int(difficulty), category, templateSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search templates: %w", err)
	}
	out := make([]map[string]any, 0, len(templates))
	for _, tpl := range templates {
		out = append(out, map[string]any{
			"id":         tpl.ID,
			"text":       tpl.Text,
			"difficulty": tpl.Difficulty,
			"category":   tpl.Category,
			"interests":  tpl.Interests,
		})
	}
	return map[string]any{"templates": out, "count": len(out)}, nil
}

// KeywordLookupTool returns the vocabulary hints stored for a
// (difficulty, category) pair.
type KeywordLookupTool struct {
	Store *store.Store
}

func (t *KeywordLookupTool) Name() string { return ToolKeywordLookup }

func (t *KeywordLookupTool) Description() string {
	return "Look up the difficulty keywords for a (difficulty, category) pair. Returns an empty list when none are stored."
}

func (t *KeywordLookupTool) Invoke(_ context.Context, args map[string]any) (map[string]any, error) {
	difficulty, err := argInt(args, "difficulty")
	if err != nil {
		return nil, err
	}
	category, _ := args["category"].(string)

	keywords, err := t.Store.GetDifficultyKeywords(int(difficulty), category)
	if err != nil {
		return nil, fmt.Errorf("look up keywords: %w", err)
	}
	return map[string]any{"keywords": keywords, "count": len(keywords)}, nil
}

// ValidateTool runs the two-stage quality validation over a batch of
// candidate questions. Items are reported one-to-one by index; one item's
// failure never affects its siblings.
type ValidateTool struct {
	Validator *validate.Validator
}

func (t *ValidateTool) Name() string { return ToolValidate }

func (t *ValidateTool) Description() string {
	return "Validate candidate questions for quality. Input: questions (list of objects with stem, type, choices, difficulty, category, answer). Returns per-item final_score, recommendation and issues."
}

func (t *ValidateTool) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	items, ok := args["questions"].([]any)
	if !ok || len(items) == 0 {
		return nil, fmt.Errorf("validate questions: missing questions list")
	}

	results := make([]map[string]any, 0, len(items))
	var candidates []validate.Candidate
	var indexes []int
	for i, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			results = append(results, map[string]any{
				"index": i, "error": "question is not an object",
			})
			continue
		}
		q, sc, err := parseCandidate(raw)
		if err != nil {
			results = append(results, map[string]any{
				"index": i, "error": err.Error(),
			})
			continue
		}
		results = append(results, nil)
		candidates = append(candidates, validate.Candidate{Question: q, Schema: sc})
		indexes = append(indexes, len(results)-1)
	}

	validated := t.Validator.ValidateBatch(ctx, candidates)
	for i, res := range validated {
		results[indexes[i]] = map[string]any{
			"index":          indexes[i],
			"final_score":    res.FinalScore,
			"semantic_score": res.SemanticScore,
			"rule_score":     res.RuleScore,
			"recommendation": string(res.Recommendation),
			"issues":         res.Issues,
		}
	}
	return map[string]any{"results": results}, nil
}

// SaveQuestionTool persists one validated question together with its
// normalized answer schema. Invoked once per generated question.
type SaveQuestionTool struct {
	Store *store.Store
}

func (t *SaveQuestionTool) Name() string { return ToolSaveQuestion }

func (t *SaveQuestionTool) Description() string {
	return "Persist one question. Input: round_id, stem, type, choices, difficulty, category, answer (keywords or correct_answer plus explanation). Returns the stored question_id."
}

func (t *SaveQuestionTool) Invoke(_ context.Context, args map[string]any) (map[string]any, error) {
	q, sc, err := parseCandidate(args)
	if err != nil {
		return nil, err
	}
	// The validator only penalizes this; the store must never see it.
	if q.Type == model.TypeMultipleChoice && !choicesContain(q.Choices, sc.CorrectAnswer()) {
		return nil, fmt.Errorf("save question: correct answer %q is not among the choices", sc.CorrectAnswer())
	}
	roundID, ok := args["round_id"].(string)
	if !ok || roundID == "" {
		return nil, fmt.Errorf("save question: missing round_id")
	}
	if _, err := model.ParseRoundID(roundID); err != nil {
		return nil, fmt.Errorf("save question: %w", err)
	}

	q.ID = uuid.New().String()
	q.RoundID = roundID
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("save question: %w", err)
	}
	if err := t.Store.InsertQuestion(q, sc.DBMap()); err != nil {
		return nil, fmt.Errorf("save question: %w", err)
	}
	return map[string]any{"saved": true, "question_id": q.ID}, nil
}

// parseCandidate builds a question and its normalized answer schema from a
// tool argument payload.
func parseCandidate(raw map[string]any) (model.Question, *schema.Schema, error) {
	var q model.Question

	stem, ok := raw["stem"].(string)
	if !ok || strings.TrimSpace(stem) == "" {
		return q, nil, fmt.Errorf("parse question: missing stem")
	}
	q.Stem = stem

	typeStr, ok := raw["type"].(string)
	if !ok {
		return q, nil, fmt.Errorf("parse question: missing type")
	}
	switch model.QuestionType(typeStr) {
	case model.TypeMultipleChoice, model.TypeTrueFalse, model.TypeShortAnswer:
		q.Type = model.QuestionType(typeStr)
	default:
		return q, nil, fmt.Errorf("parse question: unknown type %q", typeStr)
	}

	difficulty, err := argInt(raw, "difficulty")
	if err != nil {
		return q, nil, fmt.Errorf("parse question: %w", err)
	}
	q.Difficulty = int(difficulty)
	q.Category, _ = raw["category"].(string)

	if choices, ok := raw["choices"].([]any); ok {
		for _, c := range choices {
			s, ok := c.(string)
			if !ok {
				return q, nil, fmt.Errorf("parse question: choice is not a string")
			}
			q.Choices = append(q.Choices, s)
		}
	}

	answer, ok := raw["answer"].(map[string]any)
	if !ok {
		return q, nil, fmt.Errorf("parse question: missing answer object")
	}
	sc, err := schema.NormalizeForType(q.Type, answer)
	if err != nil {
		return q, nil, fmt.Errorf("parse question answer: %w", err)
	}
	return q, sc, nil
}

func choicesContain(choices []string, answer string) bool {
	for _, c := range choices {
		if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(answer)) {
			return true
		}
	}
	return false
}

// argInt reads an integer argument, accepting the float64 that JSON decoding
// produces for all numbers.
func argInt(args map[string]any, key string) (int64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("argument %q is not a number", key)
	}
}

// argStringList reads a list argument, accepting a JSON array or a single
// comma-separated string.
func argStringList(args map[string]any, key string) ([]string, error) {
	v, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("missing argument %q", key)
	}
	switch list := v.(type) {
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("argument %q contains a non-string entry", key)
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		return append([]string(nil), list...), nil
	case string:
		parts := strings.Split(list, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("argument %q is not a list", key)
	}
}
