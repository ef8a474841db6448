package model

// SessionResult is one session's outcome in an export.
type SessionResult struct {
	Session      Session        `json:"session"`
	Answers      []AnswerRecord `json:"answers"`
	CorrectCount int            `json:"correct_count"`
	AverageScore float64        `json:"average_score"`
}

// AssessmentExport is the top-level export document.
type AssessmentExport struct {
	AssessmentID string          `json:"assessment_id"`
	Category     string          `json:"category"`
	Date         string          `json:"date"`
	Results      []SessionResult `json:"results"`
}
