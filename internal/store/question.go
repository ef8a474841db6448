package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/skillprobe/skillprobe/internal/model"
)

// InsertQuestion persists a generated question with its answer schema in
// database form. Questions are immutable after this point.
func (s *Store) InsertQuestion(q model.Question, answerSchema map[string]any) error {
	choices, err := json.Marshal(q.Choices)
	if err != nil {
		return fmt.Errorf("marshal choices: %w", err)
	}
	schemaJSON, err := json.Marshal(answerSchema)
	if err != nil {
		return fmt.Errorf("marshal answer schema: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO questions (id, round_id, stem, item_type, choices, answer_schema, difficulty, category)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.RoundID, q.Stem, q.Type, string(choices), string(schemaJSON), q.Difficulty, q.Category,
	)
	return err
}

// GetQuestion returns a question and its raw answer-schema payload.
func (s *Store) GetQuestion(id string) (model.Question, map[string]any, error) {
	var q model.Question
	var choicesJSON, schemaJSON string
	err := s.db.QueryRow(
		`SELECT id, round_id, stem, item_type, choices, answer_schema, difficulty, category
		 FROM questions WHERE id = ?`, id,
	).Scan(&q.ID, &q.RoundID, &q.Stem, &q.Type, &choicesJSON, &schemaJSON, &q.Difficulty, &q.Category)
	if err != nil {
		return q, nil, err
	}
	if err := json.Unmarshal([]byte(choicesJSON), &q.Choices); err != nil {
		return q, nil, fmt.Errorf("unmarshal choices for %s: %w", id, err)
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(schemaJSON), &raw); err != nil {
		return q, nil, fmt.Errorf("unmarshal answer schema for %s: %w", id, err)
	}
	return q, raw, nil
}

// ListQuestionsForRound returns all questions generated for a round.
func (s *Store) ListQuestionsForRound(roundID string) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, round_id, stem, item_type, choices, difficulty, category
		 FROM questions WHERE round_id = ? ORDER BY id`, roundID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var choicesJSON string
		if err := rows.Scan(&q.ID, &q.RoundID, &q.Stem, &q.Type, &choicesJSON, &q.Difficulty, &q.Category); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(choicesJSON), &q.Choices); err != nil {
			return nil, fmt.Errorf("unmarshal choices for %s: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListQuestionsForSession returns all questions across a session's rounds.
// Round identifiers embed the session ID as a prefix; candidates are narrowed
// in SQL and confirmed by parsing, since session IDs may contain underscores.
func (s *Store) ListQuestionsForSession(sessionID string) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, round_id, stem, item_type, choices, difficulty, category
		 FROM questions WHERE substr(round_id, 1, length(?) + 1) = ? || '_'
		 ORDER BY round_id, id`, sessionID, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var choicesJSON string
		if err := rows.Scan(&q.ID, &q.RoundID, &q.Stem, &q.Type, &choicesJSON, &q.Difficulty, &q.Category); err != nil {
			return nil, err
		}
		rid, err := model.ParseRoundID(q.RoundID)
		if err != nil || rid.SessionID != sessionID {
			continue
		}
		if err := json.Unmarshal([]byte(choicesJSON), &q.Choices); err != nil {
			return nil, fmt.Errorf("unmarshal choices for %s: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// QuestionCount returns the number of stored questions.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

// InsertTemplate stores a question template.
func (s *Store) InsertTemplate(t model.QuestionTemplate) (int64, error) {
	interests, err := json.Marshal(t.Interests)
	if err != nil {
		return 0, fmt.Errorf("marshal interests: %w", err)
	}
	res, err := s.db.Exec(
		`INSERT INTO question_templates (text, difficulty, category, interests) VALUES (?, ?, ?, ?)`,
		t.Text, t.Difficulty, t.Category, string(interests),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// TemplateCount returns the number of stored templates.
func (s *Store) TemplateCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM question_templates`).Scan(&count)
	return count, err
}

// SearchTemplates returns up to limit templates near the requested
// difficulty in the given category, ranked by interest overlap and then by
// difficulty distance.
func (s *Store) SearchTemplates(interests []string, difficulty int, category string, limit int) ([]model.QuestionTemplate, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(
		`SELECT id, text, difficulty, category, interests FROM question_templates
		 WHERE category = ? AND difficulty BETWEEN ? AND ?`,
		category, difficulty-1, difficulty+1,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []model.QuestionTemplate
	for rows.Next() {
		var t model.QuestionTemplate
		var interestsJSON string
		if err := rows.Scan(&t.ID, &t.Text, &t.Difficulty, &t.Category, &interestsJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(interestsJSON), &t.Interests); err != nil {
			return nil, fmt.Errorf("unmarshal interests for template %d: %w", t.ID, err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(interests))
	for _, in := range interests {
		wanted[strings.ToLower(strings.TrimSpace(in))] = true
	}
	overlap := func(t model.QuestionTemplate) int {
		n := 0
		for _, in := range t.Interests {
			if wanted[strings.ToLower(in)] {
				n++
			}
		}
		return n
	}
	dist := func(t model.QuestionTemplate) int {
		d := t.Difficulty - difficulty
		if d < 0 {
			d = -d
		}
		return d
	}
	sort.SliceStable(templates, func(i, j int) bool {
		oi, oj := overlap(templates[i]), overlap(templates[j])
		if oi != oj {
			return oi > oj
		}
		return dist(templates[i]) < dist(templates[j])
	})

	if len(templates) > limit {
		templates = templates[:limit]
	}
	return templates, nil
}

// SetDifficultyKeywords stores the keyword list for a difficulty/category pair.
func (s *Store) SetDifficultyKeywords(difficulty int, category string, keywords []string) error {
	data, err := json.Marshal(keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO difficulty_keywords (difficulty, category, keywords) VALUES (?, ?, ?)
		 ON CONFLICT(difficulty, category) DO UPDATE SET keywords = excluded.keywords`,
		difficulty, category, string(data),
	)
	return err
}

// GetDifficultyKeywords returns the keyword list for a difficulty/category
// pair, or an empty list when none is stored.
func (s *Store) GetDifficultyKeywords(difficulty int, category string) ([]string, error) {
	var data string
	err := s.db.QueryRow(
		`SELECT keywords FROM difficulty_keywords WHERE difficulty = ? AND category = ?`,
		difficulty, category,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	var keywords []string
	if err := json.Unmarshal([]byte(data), &keywords); err != nil {
		return nil, fmt.Errorf("unmarshal keywords: %w", err)
	}
	return keywords, nil
}
