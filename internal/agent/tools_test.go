package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/skillprobe/skillprobe/internal/model"
	"github.com/skillprobe/skillprobe/internal/schema"
	"github.com/skillprobe/skillprobe/internal/store"
	"github.com/skillprobe/skillprobe/internal/validate"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

type passJudge struct{}

func (passJudge) JudgeQuality(context.Context, model.Question, *schema.Schema) (float64, []string, error) {
	return 0.9, nil, nil
}

func TestProfileLookupDefaults(t *testing.T) {
	st := testStore(t)
	tool := &ProfileLookupTool{Store: st}

	out, err := tool.Invoke(context.Background(), map[string]any{"user_id": float64(42)})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out["self_level"] != "beginner" {
		t.Errorf("self_level = %v, want beginner default", out["self_level"])
	}
	if out["defaulted"] != true {
		t.Error("expected defaulted=true for missing profile")
	}
	interests, ok := out["interests"].([]string)
	if !ok || len(interests) != 1 || interests[0] != "general" {
		t.Errorf("interests = %v, want [general]", out["interests"])
	}
}

func TestProfileLookupStored(t *testing.T) {
	st := testStore(t)
	if err := st.UpsertProfile(model.Profile{
		UserID: 7, SelfLevel: "advanced", Experience: 5,
		Interests: []string{"networking"}, PreviousScore: 82,
	}); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}

	tool := &ProfileLookupTool{Store: st}
	out, err := tool.Invoke(context.Background(), map[string]any{"user_id": float64(7)})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out["self_level"] != "advanced" || out["defaulted"] != false {
		t.Errorf("out = %v, want stored profile", out)
	}
}

func TestProfileLookupMissingArg(t *testing.T) {
	tool := &ProfileLookupTool{Store: testStore(t)}
	if _, err := tool.Invoke(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected error for missing user_id")
	}
}

func TestTemplateSearchLimit(t *testing.T) {
	st := testStore(t)
	for i := 0; i < 15; i++ {
		_, err := st.InsertTemplate(model.QuestionTemplate{
			Text:       fmt.Sprintf("template %d", i),
			Difficulty: 5,
			Category:   "networking",
			Interests:  []string{"networking"},
		})
		if err != nil {
			t.Fatalf("InsertTemplate: %v", err)
		}
	}

	tool := &TemplateSearchTool{Store: st}
	out, err := tool.Invoke(context.Background(), map[string]any{
		"interests":  []any{"networking"},
		"difficulty": float64(5),
		"category":   "networking",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out["count"] != templateSearchLimit {
		t.Errorf("count = %v, want %d", out["count"], templateSearchLimit)
	}
}

func TestKeywordLookup(t *testing.T) {
	st := testStore(t)
	if err := st.SetDifficultyKeywords(3, "databases", []string{"index", "join"}); err != nil {
		t.Fatalf("SetDifficultyKeywords: %v", err)
	}

	tool := &KeywordLookupTool{Store: st}
	out, err := tool.Invoke(context.Background(), map[string]any{
		"difficulty": float64(3), "category": "databases",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out["count"] != 2 {
		t.Errorf("count = %v, want 2", out["count"])
	}

	// An unknown pair is an empty list, not an error.
	out, err = tool.Invoke(context.Background(), map[string]any{
		"difficulty": float64(9), "category": "databases",
	})
	if err != nil {
		t.Fatalf("Invoke unknown pair: %v", err)
	}
	if out["count"] != 0 {
		t.Errorf("count = %v, want 0", out["count"])
	}
}

func mcPayload(roundID string) map[string]any {
	return map[string]any{
		"round_id":   roundID,
		"stem":       "Which layer does TCP operate at?",
		"type":       "multiple_choice",
		"choices":    []any{"Transport", "Network", "Session", "Physical"},
		"difficulty": float64(4),
		"category":   "networking",
		"answer": map[string]any{
			"correct_answer": "Transport",
			"explanation":    "TCP is the canonical transport-layer protocol.",
		},
	}
}

func TestSaveQuestion(t *testing.T) {
	st := testStore(t)
	rid, err := model.NewRoundID("sess_1", 1)
	if err != nil {
		t.Fatalf("NewRoundID: %v", err)
	}

	tool := &SaveQuestionTool{Store: st}
	out, err := tool.Invoke(context.Background(), mcPayload(rid.String()))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out["saved"] != true {
		t.Fatalf("out = %v", out)
	}
	qid, _ := out["question_id"].(string)
	if qid == "" {
		t.Fatal("no question_id returned")
	}

	q, raw, err := st.GetQuestion(qid)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if q.Stem != "Which layer does TCP operate at?" || q.Type != model.TypeMultipleChoice {
		t.Errorf("stored question = %+v", q)
	}
	stored, err := schema.Normalize(raw)
	if err != nil {
		t.Fatalf("normalize stored schema: %v", err)
	}
	if stored.CorrectAnswer() != "Transport" {
		t.Errorf("stored correct answer = %q", stored.CorrectAnswer())
	}
}

func TestSaveQuestionRejectsBadInput(t *testing.T) {
	st := testStore(t)
	rid, _ := model.NewRoundID("sess_1", 1)
	tool := &SaveQuestionTool{Store: st}

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing round_id", func(p map[string]any) { delete(p, "round_id") }},
		{"malformed round_id", func(p map[string]any) { p["round_id"] = "not-a-round" }},
		{"missing stem", func(p map[string]any) { delete(p, "stem") }},
		{"unknown type", func(p map[string]any) { p["type"] = "essay" }},
		{"too few choices", func(p map[string]any) { p["choices"] = []any{"A", "B"} }},
		{"missing answer", func(p map[string]any) { delete(p, "answer") }},
		{"keyword answer for selectable", func(p map[string]any) {
			p["answer"] = map[string]any{"keywords": []any{"transport"}, "explanation": "e"}
		}},
		{"correct answer not among choices", func(p map[string]any) {
			p["answer"] = map[string]any{
				"correct_answer": "Application",
				"explanation":    "TCP is the canonical transport-layer protocol.",
			}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payload := mcPayload(rid.String())
			tc.mutate(payload)
			if _, err := tool.Invoke(context.Background(), payload); err == nil {
				t.Error("expected error")
			}
		})
	}
	if n, err := st.QuestionCount(); err != nil || n != 0 {
		t.Errorf("question count = %d (err %v), want 0", n, err)
	}
}

func TestSaveQuestionMatchesCorrectAnswerCaseInsensitively(t *testing.T) {
	st := testStore(t)
	rid, _ := model.NewRoundID("sess_1", 1)
	tool := &SaveQuestionTool{Store: st}

	payload := mcPayload(rid.String())
	payload["answer"] = map[string]any{
		"correct_answer": " transport ",
		"explanation":    "TCP is the canonical transport-layer protocol.",
	}
	out, err := tool.Invoke(context.Background(), payload)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out["saved"] != true {
		t.Fatalf("out = %v", out)
	}
}

func TestValidateToolIsolatesBadItems(t *testing.T) {
	tool := &ValidateTool{Validator: validate.New(passJudge{})}
	rid, _ := model.NewRoundID("sess_1", 1)

	good := mcPayload(rid.String())
	bad := map[string]any{"stem": "incomplete item"}

	out, err := tool.Invoke(context.Background(), map[string]any{
		"questions": []any{good, bad},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	results, ok := out["results"].([]map[string]any)
	if !ok || len(results) != 2 {
		t.Fatalf("results = %v", out["results"])
	}
	if _, hasErr := results[0]["error"]; hasErr {
		t.Errorf("good item reported error: %v", results[0])
	}
	if results[0]["recommendation"] != "pass" {
		t.Errorf("recommendation = %v, want pass", results[0]["recommendation"])
	}
	if _, hasErr := results[1]["error"]; !hasErr {
		t.Errorf("bad item missing error: %v", results[1])
	}
}

func TestGenerationToolsRegistry(t *testing.T) {
	st := testStore(t)
	r := GenerationTools(st, validate.New(passJudge{}))

	want := []string{ToolProfileLookup, ToolTemplateSearch, ToolKeywordLookup, ToolValidate, ToolSaveQuestion}
	got := r.Names()
	if len(got) != len(want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
