package store

import (
	"testing"
	"time"

	"github.com/skillprobe/skillprobe/internal/model"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createSession(t *testing.T, s *Store, id string, userID int64) model.Session {
	t.Helper()
	sess := model.Session{
		ID:          id,
		UserID:      userID,
		Status:      model.StatusGenerating,
		Round:       1,
		StartedAt:   time.Now().UTC(),
		TimeLimitMS: model.DefaultTimeLimitMS,
	}
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sess
}

func TestSessionLifecyclePersistence(t *testing.T) {
	s := openStore(t)
	createSession(t, s, "sess-1", 1)

	got, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != model.StatusGenerating || got.PausedAt != nil {
		t.Errorf("session = %+v", got)
	}

	pausedAt := time.Now().UTC()
	if err := s.MarkPaused("sess-1", pausedAt); err != nil {
		t.Fatalf("MarkPaused: %v", err)
	}
	got, _ = s.GetSession("sess-1")
	if got.Status != model.StatusPaused || got.PausedAt == nil {
		t.Errorf("after pause: %+v", got)
	}

	if err := s.MarkResumed("sess-1"); err != nil {
		t.Fatalf("MarkResumed: %v", err)
	}
	got, _ = s.GetSession("sess-1")
	if got.Status != model.StatusInProgress || got.PausedAt != nil {
		t.Errorf("after resume: %+v", got)
	}
}

func TestUpsertAnswerIdempotent(t *testing.T) {
	s := openStore(t)
	createSession(t, s, "sess-1", 1)

	first := model.AnswerRecord{
		SessionID: "sess-1", QuestionID: "q1",
		UserAnswer: "first", ResponseTimeMS: 1000, SavedAt: time.Now().UTC(),
	}
	if err := s.UpsertAnswer(first); err != nil {
		t.Fatalf("UpsertAnswer: %v", err)
	}
	second := first
	second.UserAnswer = "second"
	second.Score = 85
	second.IsCorrect = true
	if err := s.UpsertAnswer(second); err != nil {
		t.Fatalf("UpsertAnswer update: %v", err)
	}

	count, err := s.CountAnswers("sess-1")
	if err != nil || count != 1 {
		t.Fatalf("count = %d (err %v), want 1", count, err)
	}
	got, err := s.GetAnswer("sess-1", "q1")
	if err != nil {
		t.Fatalf("GetAnswer: %v", err)
	}
	if got.UserAnswer != "second" || !got.IsCorrect || got.Score != 85 {
		t.Errorf("answer = %+v", got)
	}

	missing, err := s.GetAnswer("sess-1", "nope")
	if err != nil || missing != nil {
		t.Errorf("GetAnswer missing = %v, %v; want nil, nil", missing, err)
	}
}

func TestQuestionRoundTrip(t *testing.T) {
	s := openStore(t)
	q := model.Question{
		ID:         "q1",
		RoundID:    "sess-1_1_2026-08-29T10:00:00.000000+00:00",
		Stem:       "What does ACID stand for?",
		Type:       model.TypeShortAnswer,
		Difficulty: 5,
		Category:   "databases",
	}
	answerSchema := map[string]any{
		"kind":        "keyword_match",
		"keywords":    []string{"atomicity", "consistency", "isolation", "durability"},
		"explanation": "The four transactional guarantees.",
	}
	if err := s.InsertQuestion(q, answerSchema); err != nil {
		t.Fatalf("InsertQuestion: %v", err)
	}

	got, raw, err := s.GetQuestion("q1")
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if got.Stem != q.Stem || got.Type != q.Type || got.Difficulty != 5 {
		t.Errorf("question = %+v", got)
	}
	if raw["kind"] != "keyword_match" {
		t.Errorf("raw schema = %v", raw)
	}
	kws, ok := raw["keywords"].([]any)
	if !ok || len(kws) != 4 {
		t.Errorf("keywords = %v", raw["keywords"])
	}
}

func TestListQuestionsForSessionWithUnderscoredIDs(t *testing.T) {
	s := openStore(t)

	// "sess_1" must not swallow questions belonging to session "sess".
	insert := func(id, roundID string) {
		t.Helper()
		err := s.InsertQuestion(model.Question{
			ID: id, RoundID: roundID, Stem: "stem", Type: model.TypeTrueFalse,
			Difficulty: 1, Category: "general",
		}, map[string]any{"kind": "exact_match", "correct_answer": "true", "explanation": "e"})
		if err != nil {
			t.Fatalf("InsertQuestion %s: %v", id, err)
		}
	}
	insert("a1", "sess_1_1_2026-08-29T10:00:00.000000+00:00")
	insert("a2", "sess_1_2_2026-08-29T11:00:00.000000+00:00")
	insert("b1", "sess_1_extra_1_2026-08-29T10:00:00.000000+00:00")

	got, err := s.ListQuestionsForSession("sess_1")
	if err != nil {
		t.Fatalf("ListQuestionsForSession: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d questions, want 2: %+v", len(got), got)
	}
	for _, q := range got {
		if q.ID == "b1" {
			t.Error("picked up question from a different session")
		}
	}

	other, err := s.ListQuestionsForSession("sess_1_extra")
	if err != nil {
		t.Fatalf("ListQuestionsForSession: %v", err)
	}
	if len(other) != 1 || other[0].ID != "b1" {
		t.Errorf("other = %+v, want b1 only", other)
	}
}

func TestSearchTemplatesRanking(t *testing.T) {
	s := openStore(t)

	seed := []model.QuestionTemplate{
		{Text: "near, overlapping", Difficulty: 5, Category: "go", Interests: []string{"concurrency"}},
		{Text: "exact, overlapping", Difficulty: 4, Category: "go", Interests: []string{"concurrency", "channels"}},
		{Text: "exact, no overlap", Difficulty: 4, Category: "go", Interests: []string{"generics"}},
		{Text: "wrong category", Difficulty: 4, Category: "sql", Interests: []string{"concurrency"}},
		{Text: "too hard", Difficulty: 8, Category: "go", Interests: []string{"concurrency"}},
	}
	for _, tpl := range seed {
		if _, err := s.InsertTemplate(tpl); err != nil {
			t.Fatalf("InsertTemplate: %v", err)
		}
	}

	got, err := s.SearchTemplates([]string{"concurrency"}, 4, "go", 10)
	if err != nil {
		t.Fatalf("SearchTemplates: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d templates, want 3: %+v", len(got), got)
	}
	if got[0].Text != "exact, overlapping" {
		t.Errorf("first = %q, want best overlap at exact difficulty", got[0].Text)
	}
	if got[1].Text != "near, overlapping" {
		t.Errorf("second = %q, want overlap at distance 1", got[1].Text)
	}
	if got[2].Text != "exact, no overlap" {
		t.Errorf("third = %q, want zero overlap last", got[2].Text)
	}

	limited, err := s.SearchTemplates([]string{"concurrency"}, 4, "go", 2)
	if err != nil {
		t.Fatalf("SearchTemplates limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limit ignored: got %d", len(limited))
	}
}

func TestDifficultyKeywords(t *testing.T) {
	s := openStore(t)

	got, err := s.GetDifficultyKeywords(3, "go")
	if err != nil {
		t.Fatalf("GetDifficultyKeywords empty: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty list", got)
	}

	if err := s.SetDifficultyKeywords(3, "go", []string{"goroutine", "channel"}); err != nil {
		t.Fatalf("SetDifficultyKeywords: %v", err)
	}
	if err := s.SetDifficultyKeywords(3, "go", []string{"select"}); err != nil {
		t.Fatalf("SetDifficultyKeywords replace: %v", err)
	}
	got, err = s.GetDifficultyKeywords(3, "go")
	if err != nil {
		t.Fatalf("GetDifficultyKeywords: %v", err)
	}
	if len(got) != 1 || got[0] != "select" {
		t.Errorf("got %v, want replaced list", got)
	}
}

func TestProfileUpsert(t *testing.T) {
	s := openStore(t)

	p, err := s.GetProfile(1)
	if err != nil || p != nil {
		t.Fatalf("GetProfile missing = %v, %v; want nil, nil", p, err)
	}

	if err := s.UpsertProfile(model.Profile{
		UserID: 1, SelfLevel: "beginner", Interests: []string{"go"},
	}); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	if err := s.UpsertProfile(model.Profile{
		UserID: 1, SelfLevel: "advanced", Experience: 7,
		Interests: []string{"go", "sql"}, PreviousScore: 91,
	}); err != nil {
		t.Fatalf("UpsertProfile update: %v", err)
	}

	p, err = s.GetProfile(1)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.SelfLevel != "advanced" || p.Experience != 7 || len(p.Interests) != 2 {
		t.Errorf("profile = %+v", p)
	}
}

func TestAuthSessionExpiry(t *testing.T) {
	s := openStore(t)
	userID, err := s.CreateUser(model.User{
		Username: "bob", PasswordHash: "x", Role: model.UserRoleCandidate, Active: true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	token, err := s.CreateAuthSession(userID)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	sess, err := s.GetAuthSession(token)
	if err != nil || sess == nil || sess.UserID != userID {
		t.Fatalf("GetAuthSession = %v, %v", sess, err)
	}

	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	sess, err = s.GetAuthSession(token)
	if err != nil || sess != nil {
		t.Errorf("deleted token still resolves: %v, %v", sess, err)
	}

	sess, err = s.GetAuthSession("no-such-token")
	if err != nil || sess != nil {
		t.Errorf("unknown token = %v, %v; want nil, nil", sess, err)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := openStore(t)

	got, err := s.GetImportedFileHash("templates.json")
	if err != nil || got != "" {
		t.Fatalf("hash for new file = %q, %v", got, err)
	}
	if err := s.SetImportedFileHash("templates.json", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	if err := s.SetImportedFileHash("templates.json", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	got, err = s.GetImportedFileHash("templates.json")
	if err != nil || got != "def456" {
		t.Errorf("hash = %q, %v; want def456", got, err)
	}
}

func TestExportAllSessions(t *testing.T) {
	s := openStore(t)
	createSession(t, s, "sess-1", 1)

	answers := []model.AnswerRecord{
		{SessionID: "sess-1", QuestionID: "q1", UserAnswer: "a", SavedAt: time.Now().UTC(), IsCorrect: true, Score: 100},
		{SessionID: "sess-1", QuestionID: "q2", UserAnswer: "b", SavedAt: time.Now().UTC(), IsCorrect: false, Score: 40},
	}
	for _, a := range answers {
		if err := s.UpsertAnswer(a); err != nil {
			t.Fatalf("UpsertAnswer: %v", err)
		}
	}

	results, err := s.ExportAllSessions()
	if err != nil {
		t.Fatalf("ExportAllSessions: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.CorrectCount != 1 {
		t.Errorf("correct count = %d, want 1", r.CorrectCount)
	}
	if r.AverageScore != 70 {
		t.Errorf("average = %v, want 70", r.AverageScore)
	}
}
