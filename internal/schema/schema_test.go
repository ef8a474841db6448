package schema

import (
	"testing"

	"github.com/skillprobe/skillprobe/internal/model"
)

func TestNewEnforcesExactlyOneAnswerField(t *testing.T) {
	tests := []struct {
		name     string
		kind     Kind
		keywords []string
		answer   string
		wantErr  Reason
	}{
		{"keyword match ok", KindKeywordMatch, []string{"goroutine"}, "", ""},
		{"exact match ok", KindExactMatch, nil, "go", ""},
		{"both present", KindKeywordMatch, []string{"goroutine"}, "go", ConflictingFields},
		{"both absent keyword", KindKeywordMatch, nil, "", MissingField},
		{"both absent exact", KindExactMatch, nil, "", MissingField},
		{"unknown kind", Kind("fuzzy"), []string{"x"}, "", TypeMismatch},
		{"empty keyword entry", KindKeywordMatch, []string{"ok", ""}, "", TypeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.kind, tt.keywords, tt.answer, "because", "test")
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				hasKeywords := s.Keywords() != nil
				hasAnswer := s.CorrectAnswer() != ""
				if hasKeywords == hasAnswer {
					t.Errorf("expected exactly one of keywords/correct_answer, got keywords=%v answer=%q",
						s.Keywords(), s.CorrectAnswer())
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if got := ReasonOf(err); got != tt.wantErr {
				t.Errorf("expected reason %s, got %s", tt.wantErr, got)
			}
		})
	}
}

func TestNewRequiresExplanation(t *testing.T) {
	_, err := New(KindExactMatch, nil, "go", "", "test")
	if ReasonOf(err) != MissingField {
		t.Errorf("expected MissingField for empty explanation, got %v", err)
	}
}

func TestSchemaImmutability(t *testing.T) {
	s, err := New(KindKeywordMatch, []string{"a", "b"}, "", "because", "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	kws := s.Keywords()
	kws[0] = "mutated"
	if s.Keywords()[0] != "a" {
		t.Error("mutating the returned keyword slice changed the schema")
	}
}

func TestDetectShape(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want string
	}{
		{"keyword list", map[string]any{"keywords": []any{"x"}, "explanation": "e"}, ShapeKeywordList},
		{"choice key", map[string]any{"correct_answer": "a", "explanation": "e"}, ShapeChoiceKey},
		{"generator v1", map[string]any{"answer": "a", "reason": "r"}, ShapeGeneratorV1},
		{"db", map[string]any{"kind": "exact_match", "correct_answer": "a", "explanation": "e"}, ShapeDB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectShape(tt.raw)
			if err != nil {
				t.Fatalf("DetectShape: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected shape %s, got %s", tt.want, got)
			}
		})
	}

	_, err := DetectShape(map[string]any{"something": "else"})
	if ReasonOf(err) != UnknownShape {
		t.Errorf("expected UnknownShape, got %v", err)
	}
}

func TestNormalizeShapes(t *testing.T) {
	tests := []struct {
		name       string
		raw        map[string]any
		wantKind   Kind
		wantAnswer string
		wantKws    int
	}{
		{
			"keyword list",
			map[string]any{"keywords": []any{"goroutine", "channel"}, "explanation": "uses both"},
			KindKeywordMatch, "", 2,
		},
		{
			"keyword list comma string",
			map[string]any{"keywords": "goroutine, channel, select", "explanation": "covers basics"},
			KindKeywordMatch, "", 3,
		},
		{
			"choice key",
			map[string]any{"correct_answer": "B", "explanation": "B is correct"},
			KindExactMatch, "B", 0,
		},
		{
			"generator v1 reason",
			map[string]any{"answer": "true", "reason": "the statement holds"},
			KindExactMatch, "true", 0,
		},
		{
			"generator v1 explanation key",
			map[string]any{"answer": "false", "explanation": "the statement fails"},
			KindExactMatch, "false", 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Normalize(tt.raw)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if s.Kind() != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, s.Kind())
			}
			if s.CorrectAnswer() != tt.wantAnswer {
				t.Errorf("expected answer %q, got %q", tt.wantAnswer, s.CorrectAnswer())
			}
			if len(s.Keywords()) != tt.wantKws {
				t.Errorf("expected %d keywords, got %d", tt.wantKws, len(s.Keywords()))
			}
			if s.Explanation() == "" {
				t.Error("explanation is empty")
			}
		})
	}
}

func TestNormalizeFailures(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want Reason
	}{
		{"keywords wrong type", map[string]any{"keywords": 42, "explanation": "e"}, TypeMismatch},
		{"keywords mixed types", map[string]any{"keywords": []any{"a", 1}, "explanation": "e"}, TypeMismatch},
		{"keywords all empty", map[string]any{"keywords": []any{"", " "}, "explanation": "e"}, MissingField},
		{"choice missing explanation", map[string]any{"correct_answer": "a"}, MissingField},
		{"choice answer wrong type", map[string]any{"correct_answer": 7, "explanation": "e"}, TypeMismatch},
		{"generator missing reason", map[string]any{"answer": "a"}, MissingField},
		{"db bad kind", map[string]any{"kind": "fuzzy", "explanation": "e"}, TypeMismatch},
		{"both keywords and correct_answer", map[string]any{
			"keywords": []any{"cache", "invalidation"}, "correct_answer": "B", "explanation": "e",
		}, ConflictingFields},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := ReasonOf(err); got != tt.want {
				t.Errorf("expected reason %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNormalizeAsUnknownShape(t *testing.T) {
	_, err := NormalizeAs("mystery", map[string]any{})
	if ReasonOf(err) != UnknownShape {
		t.Errorf("expected UnknownShape, got %v", err)
	}
}

func TestDBRoundTrip(t *testing.T) {
	shapes := []map[string]any{
		{"keywords": []any{"goroutine", "channel"}, "explanation": "uses both"},
		{"correct_answer": "B", "explanation": "B is correct"},
		{"answer": "true", "reason": "the statement holds"},
	}
	for _, raw := range shapes {
		s, err := Normalize(raw)
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		back, err := Normalize(s.DBMap())
		if err != nil {
			t.Fatalf("round-trip Normalize: %v", err)
		}
		if !s.Equal(back) {
			t.Errorf("round-trip changed schema: %+v vs %+v", s.DBMap(), back.DBMap())
		}
		if !back.CreatedAt().Equal(s.CreatedAt()) {
			t.Errorf("round-trip lost timestamp: %v vs %v", s.CreatedAt(), back.CreatedAt())
		}
	}
}

func TestResponseMapOmitsProvenance(t *testing.T) {
	s, err := New(KindExactMatch, nil, "go", "because", ShapeChoiceKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp := s.ResponseMap()
	if _, ok := resp["source_format"]; ok {
		t.Error("response map leaks source_format")
	}
	if _, ok := resp["created_at"]; ok {
		t.Error("response map leaks created_at")
	}
	db := s.DBMap()
	if db["source_format"] != ShapeChoiceKey {
		t.Errorf("db map missing source_format, got %v", db["source_format"])
	}
	if _, ok := db["created_at"]; !ok {
		t.Error("db map missing created_at")
	}
}

func TestNormalizeForType(t *testing.T) {
	keywordRaw := map[string]any{"keywords": []any{"goroutine"}, "explanation": "e"}
	choiceRaw := map[string]any{"correct_answer": "B", "explanation": "e"}

	if _, err := NormalizeForType(model.TypeShortAnswer, keywordRaw); err != nil {
		t.Errorf("short answer + keywords should normalize: %v", err)
	}
	if _, err := NormalizeForType(model.TypeMultipleChoice, choiceRaw); err != nil {
		t.Errorf("multiple choice + correct answer should normalize: %v", err)
	}
	if _, err := NormalizeForType(model.TypeTrueFalse, choiceRaw); err != nil {
		t.Errorf("true/false + correct answer should normalize: %v", err)
	}

	// The wrong kind for the question type is rejected outright. A leftover
	// correct_answer on an open-ended item has caused real grading defects.
	if _, err := NormalizeForType(model.TypeShortAnswer, choiceRaw); ReasonOf(err) != TypeMismatch {
		t.Errorf("short answer + correct answer should fail, got %v", err)
	}
	if _, err := NormalizeForType(model.TypeMultipleChoice, keywordRaw); ReasonOf(err) != TypeMismatch {
		t.Errorf("multiple choice + keywords should fail, got %v", err)
	}
}
