// Package schema defines the single canonical representation of "what counts
// as correct" for a generated question, no matter which producer emitted the
// raw answer definition. Construction is the only validation point: a Schema
// either passes every invariant or is never created, which makes the value
// safe to cache, compare, and hash.
package schema

import (
	"fmt"
	"time"
)

// Kind tags how a submitted answer is compared against the schema.
type Kind string

const (
	// KindKeywordMatch grades free-text answers by keyword coverage.
	KindKeywordMatch Kind = "keyword_match"
	// KindExactMatch grades selectable answers by exact comparison.
	KindExactMatch Kind = "exact_match"
)

// Schema is the normalized answer definition. Fields are unexported so the
// value stays immutable after construction.
type Schema struct {
	kind          Kind
	keywords      []string
	correctAnswer string
	explanation   string
	sourceFormat  string
	createdAt     time.Time
}

// New builds a Schema, enforcing every invariant: the kind must carry exactly
// the field it grades on (keywords for keyword_match, a correct answer for
// exact_match, never both or neither) and the explanation must be non-empty.
func New(kind Kind, keywords []string, correctAnswer, explanation, sourceFormat string) (*Schema, error) {
	if explanation == "" {
		return nil, &Error{Reason: MissingField, Field: "explanation"}
	}
	hasKeywords := len(keywords) > 0
	hasAnswer := correctAnswer != ""
	if hasKeywords && hasAnswer {
		return nil, &Error{Reason: ConflictingFields, Field: "keywords/correct_answer"}
	}
	switch kind {
	case KindKeywordMatch:
		if !hasKeywords {
			return nil, &Error{Reason: MissingField, Field: "keywords"}
		}
		for i, kw := range keywords {
			if kw == "" {
				return nil, &Error{Reason: TypeMismatch, Field: fmt.Sprintf("keywords[%d]", i)}
			}
		}
	case KindExactMatch:
		if !hasAnswer {
			return nil, &Error{Reason: MissingField, Field: "correct_answer"}
		}
	default:
		return nil, &Error{Reason: TypeMismatch, Field: "kind"}
	}

	s := &Schema{
		kind:          kind,
		correctAnswer: correctAnswer,
		explanation:   explanation,
		sourceFormat:  sourceFormat,
		createdAt:     time.Now().UTC(),
	}
	if hasKeywords {
		s.keywords = append([]string(nil), keywords...)
	}
	return s, nil
}

// Kind returns the comparison kind.
func (s *Schema) Kind() Kind { return s.kind }

// Keywords returns a copy of the keyword list, nil for exact-match schemas.
func (s *Schema) Keywords() []string {
	if s.keywords == nil {
		return nil
	}
	return append([]string(nil), s.keywords...)
}

// CorrectAnswer returns the expected answer, empty for keyword-match schemas.
func (s *Schema) CorrectAnswer() string { return s.correctAnswer }

// Explanation returns the explanation shown after grading.
func (s *Schema) Explanation() string { return s.explanation }

// SourceFormat names the producer shape this schema was normalized from.
func (s *Schema) SourceFormat() string { return s.sourceFormat }

// CreatedAt returns the normalization timestamp.
func (s *Schema) CreatedAt() time.Time { return s.createdAt }

// Equal compares every field except the creation timestamp, which varies
// between otherwise identical normalizations.
func (s *Schema) Equal(other *Schema) bool {
	if other == nil {
		return false
	}
	if s.kind != other.kind || s.correctAnswer != other.correctAnswer ||
		s.explanation != other.explanation || s.sourceFormat != other.sourceFormat {
		return false
	}
	if len(s.keywords) != len(other.keywords) {
		return false
	}
	for i := range s.keywords {
		if s.keywords[i] != other.keywords[i] {
			return false
		}
	}
	return true
}

// DBMap renders the schema for persistence, including provenance fields for
// audit traceability.
func (s *Schema) DBMap() map[string]any {
	m := map[string]any{
		"kind":          string(s.kind),
		"explanation":   s.explanation,
		"source_format": s.sourceFormat,
		"created_at":    s.createdAt.Format(time.RFC3339Nano),
	}
	if s.kind == KindKeywordMatch {
		m["keywords"] = s.Keywords()
	} else {
		m["correct_answer"] = s.correctAnswer
	}
	return m
}

// ResponseMap renders the schema for API responses, omitting internal
// provenance fields.
func (s *Schema) ResponseMap() map[string]any {
	m := map[string]any{
		"kind":        string(s.kind),
		"explanation": s.explanation,
	}
	if s.kind == KindKeywordMatch {
		m["keywords"] = s.Keywords()
	} else {
		m["correct_answer"] = s.correctAnswer
	}
	return m
}
