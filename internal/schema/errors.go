package schema

import "fmt"

// Reason is the closed set of normalization failure causes.
type Reason string

const (
	// MissingField means a shape-required field was absent or empty.
	MissingField Reason = "missing_field"
	// ConflictingFields means mutually exclusive fields were both present.
	ConflictingFields Reason = "conflicting_fields"
	// TypeMismatch means a field was present but structurally wrong.
	TypeMismatch Reason = "type_mismatch"
	// UnknownShape means no registered transformer recognized the payload.
	UnknownShape Reason = "unknown_shape"
)

// Error describes why a raw payload could not be normalized.
type Error struct {
	Reason Reason
	Field  string
	Shape  string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("normalize: %s", e.Reason)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field %q)", e.Field)
	}
	if e.Shape != "" {
		msg += fmt.Sprintf(" (shape %q)", e.Shape)
	}
	return msg
}

// ReasonOf returns the normalization failure reason, or empty when err is not
// a normalization error.
func ReasonOf(err error) Reason {
	if e, ok := err.(*Error); ok {
		return e.Reason
	}
	return ""
}
