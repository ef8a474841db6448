package i18n

import (
	"context"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "SkillProbe" {
		t.Errorf("T(AppTitle) = %q, want 'SkillProbe'", got)
	}

	got = T(ctx, "AnswerSaved")
	if got != "Answer saved." {
		t.Errorf("T(AnswerSaved) = %q, want 'Answer saved.'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "AnswerSaved")
	if got != "Ответ сохранён." {
		t.Errorf("T(AnswerSaved) = %q", got)
	}
}

func TestFallbackExplanationPresent(t *testing.T) {
	for _, lang := range []string{"en", "ru"} {
		ctx := initLang(t, lang)
		got := T(ctx, "FallbackExplanation")
		if got == "" || got == "FallbackExplanation" {
			t.Errorf("lang %s: missing FallbackExplanation", lang)
		}
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "QuestionsRemaining", 1)
	if got1 != "1 question remaining." {
		t.Errorf("Tp(QuestionsRemaining, 1) = %q", got1)
	}

	got5 := Tp(ctx, "QuestionsRemaining", 5)
	if got5 != "5 questions remaining." {
		t.Errorf("Tp(QuestionsRemaining, 5) = %q", got5)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "SessionN", map[string]any{"ID": 42})
	if got != "Session #42" {
		t.Errorf("Td(SessionN, ID=42) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want the ID back", got)
	}
}
