package schema

import (
	"strings"
	"time"

	"github.com/skillprobe/skillprobe/internal/model"
)

// Producer shape names. Each shape is recognized by its distinguishing keys
// and normalized by its own transformer, so a structurally wrong payload
// fails with a descriptive error instead of yielding a half-filled schema.
const (
	// ShapeKeywordList carries a "keywords" list for open-ended items.
	ShapeKeywordList = "keyword_list"
	// ShapeChoiceKey carries a single "correct_answer" for selectable items.
	ShapeChoiceKey = "choice_key"
	// ShapeGeneratorV1 is the legacy generator payload ("answer"/"reason").
	ShapeGeneratorV1 = "generator_v1"
	// ShapeDB is the persisted form produced by Schema.DBMap.
	ShapeDB = "db"
)

type transform func(raw map[string]any) (*Schema, error)

var transformers = map[string]transform{
	ShapeKeywordList: normalizeKeywordList,
	ShapeChoiceKey:   normalizeChoiceKey,
	ShapeGeneratorV1: normalizeGeneratorV1,
	ShapeDB:          normalizeDB,
}

// DetectShape identifies which producer emitted the payload by its
// distinguishing keys. The DB shape is checked first since it carries a
// "kind" tag alongside the same answer keys the other shapes use.
func DetectShape(raw map[string]any) (string, error) {
	if _, ok := raw["kind"]; ok {
		return ShapeDB, nil
	}
	// A payload carrying both distinguishing keys is the stray-leftover-field
	// bug that used to grade open-ended answers as exact matches. Refuse to
	// guess which key the producer meant.
	if _, hasKeywords := raw["keywords"]; hasKeywords {
		if _, hasAnswer := raw["correct_answer"]; hasAnswer {
			return "", &Error{Reason: ConflictingFields, Field: "keywords/correct_answer"}
		}
	}
	if _, ok := raw["keywords"]; ok {
		return ShapeKeywordList, nil
	}
	if _, ok := raw["correct_answer"]; ok {
		return ShapeChoiceKey, nil
	}
	if _, ok := raw["answer"]; ok {
		return ShapeGeneratorV1, nil
	}
	return "", &Error{Reason: UnknownShape}
}

// Normalize detects the producer shape and converts the payload into the
// canonical Schema.
func Normalize(raw map[string]any) (*Schema, error) {
	shape, err := DetectShape(raw)
	if err != nil {
		return nil, err
	}
	return NormalizeAs(shape, raw)
}

// NormalizeAs is the generic path used when the caller already knows which
// producer emitted the payload.
func NormalizeAs(shape string, raw map[string]any) (*Schema, error) {
	fn, ok := transformers[shape]
	if !ok {
		return nil, &Error{Reason: UnknownShape, Shape: shape}
	}
	return fn(raw)
}

// NormalizeForType normalizes the payload and enforces the type-awareness
// rule: open-ended items carry only keywords, selectable items carry only a
// correct answer. A schema of the wrong kind for the question type is a
// grading bug waiting to happen, so it is rejected here.
func NormalizeForType(qtype model.QuestionType, raw map[string]any) (*Schema, error) {
	s, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	if qtype.Selectable() && s.Kind() != KindExactMatch {
		return nil, &Error{Reason: TypeMismatch, Field: "kind", Shape: ShapeKeywordList}
	}
	if !qtype.Selectable() && s.Kind() != KindKeywordMatch {
		return nil, &Error{Reason: TypeMismatch, Field: "kind", Shape: ShapeChoiceKey}
	}
	return s, nil
}

func normalizeKeywordList(raw map[string]any) (*Schema, error) {
	keywords, err := stringList(raw, "keywords", ShapeKeywordList)
	if err != nil {
		return nil, err
	}
	explanation, err := requiredString(raw, "explanation", ShapeKeywordList)
	if err != nil {
		return nil, err
	}
	return New(KindKeywordMatch, keywords, "", explanation, ShapeKeywordList)
}

func normalizeChoiceKey(raw map[string]any) (*Schema, error) {
	answer, err := requiredString(raw, "correct_answer", ShapeChoiceKey)
	if err != nil {
		return nil, err
	}
	explanation, err := requiredString(raw, "explanation", ShapeChoiceKey)
	if err != nil {
		return nil, err
	}
	return New(KindExactMatch, nil, answer, explanation, ShapeChoiceKey)
}

// normalizeGeneratorV1 handles the legacy generator payload, which used
// "answer" for the correct choice and "reason" for the explanation. Some
// emitters used "explanation" instead of "reason"; both are accepted.
func normalizeGeneratorV1(raw map[string]any) (*Schema, error) {
	answer, err := requiredString(raw, "answer", ShapeGeneratorV1)
	if err != nil {
		return nil, err
	}
	explanation, _ := optionalString(raw, "reason")
	if explanation == "" {
		explanation, _ = optionalString(raw, "explanation")
	}
	if explanation == "" {
		return nil, &Error{Reason: MissingField, Field: "reason", Shape: ShapeGeneratorV1}
	}
	return New(KindExactMatch, nil, answer, explanation, ShapeGeneratorV1)
}

func normalizeDB(raw map[string]any) (*Schema, error) {
	kindStr, err := requiredString(raw, "kind", ShapeDB)
	if err != nil {
		return nil, err
	}
	explanation, err := requiredString(raw, "explanation", ShapeDB)
	if err != nil {
		return nil, err
	}
	sourceFormat, _ := optionalString(raw, "source_format")
	if sourceFormat == "" {
		sourceFormat = ShapeDB
	}

	var s *Schema
	switch Kind(kindStr) {
	case KindKeywordMatch:
		keywords, err := stringList(raw, "keywords", ShapeDB)
		if err != nil {
			return nil, err
		}
		s, err = New(KindKeywordMatch, keywords, "", explanation, sourceFormat)
		if err != nil {
			return nil, err
		}
	case KindExactMatch:
		answer, err := requiredString(raw, "correct_answer", ShapeDB)
		if err != nil {
			return nil, err
		}
		s, err = New(KindExactMatch, nil, answer, explanation, sourceFormat)
		if err != nil {
			return nil, err
		}
	default:
		return nil, &Error{Reason: TypeMismatch, Field: "kind", Shape: ShapeDB}
	}

	// Preserve the original timestamp so persisted schemas survive the
	// round-trip with their audit trail intact.
	if tsStr, ok := optionalString(raw, "created_at"); ok && tsStr != "" {
		if ts, err := time.Parse(time.RFC3339Nano, tsStr); err == nil {
			s.createdAt = ts.UTC()
		}
	}
	return s, nil
}

func requiredString(raw map[string]any, key, shape string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", &Error{Reason: MissingField, Field: key, Shape: shape}
	}
	str, ok := v.(string)
	if !ok {
		return "", &Error{Reason: TypeMismatch, Field: key, Shape: shape}
	}
	str = strings.TrimSpace(str)
	if str == "" {
		return "", &Error{Reason: MissingField, Field: key, Shape: shape}
	}
	return str, nil
}

func optionalString(raw map[string]any, key string) (string, bool) {
	v, ok := raw[key]
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(str), true
}

// stringList accepts either a JSON array of strings or a comma-separated
// string, which older producers emitted interchangeably.
func stringList(raw map[string]any, key, shape string) ([]string, error) {
	v, ok := raw[key]
	if !ok {
		return nil, &Error{Reason: MissingField, Field: key, Shape: shape}
	}
	switch val := v.(type) {
	case []string:
		return cleanList(val, key, shape)
	case []any:
		items := make([]string, 0, len(val))
		for _, item := range val {
			str, ok := item.(string)
			if !ok {
				return nil, &Error{Reason: TypeMismatch, Field: key, Shape: shape}
			}
			items = append(items, str)
		}
		return cleanList(items, key, shape)
	case string:
		return cleanList(strings.Split(val, ","), key, shape)
	default:
		return nil, &Error{Reason: TypeMismatch, Field: key, Shape: shape}
	}
}

func cleanList(items []string, key, shape string) ([]string, error) {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil, &Error{Reason: MissingField, Field: key, Shape: shape}
	}
	return out, nil
}
