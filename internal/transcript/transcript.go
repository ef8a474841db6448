// Package transcript models the message history produced by one reasoning
// loop run and extracts structured tool results from it. Model output is
// treated as hostile input: payloads arrive wrapped in prose, code fences, or
// truncated JSON, and extraction must salvage what it can without ever
// letting one bad record poison its siblings.
package transcript

// Role tags a transcript message by its producer.
type Role string

const (
	// RoleUser is the goal or an injected user message.
	RoleUser Role = "user"
	// RoleReasoning is a Thought/Action step emitted by the model.
	RoleReasoning Role = "reasoning"
	// RoleTool is an Observation carrying a tool's raw output.
	RoleTool Role = "tool"
	// RoleFinal is the terminal payload ending the loop.
	RoleFinal Role = "final"
)

// Message is one entry in a reasoning-loop transcript. Tool messages carry
// the invocation's raw input and output so extraction can attribute every
// call individually, even when one tool is invoked many times.
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Tool      string `json:"tool,omitempty"`
	CallIndex int    `json:"call_index,omitempty"`
	Input     string `json:"input,omitempty"`
	OK        bool   `json:"ok,omitempty"`
}

// Verdict classifies how much of a tool payload could be recovered.
type Verdict string

const (
	// ParsedFull means the payload decoded cleanly.
	ParsedFull Verdict = "full"
	// ParsedPartial means some fields were salvaged via fallbacks.
	ParsedPartial Verdict = "partial"
	// Unparseable means nothing usable could be recovered.
	Unparseable Verdict = "unparseable"
)

// ToolCallRecord is the extraction result for a single tool invocation.
// Exactly one record exists per invocation; it is immutable once written.
type ToolCallRecord struct {
	CallIndex int
	Tool      string
	RawInput  string
	RawOutput string
	OK        bool
	Parsed    map[string]any
	Verdict   Verdict
}

// Report is the outcome of extracting one full transcript. Failures counts
// records (and terminal payloads) that could not be recovered at all;
// extraction itself never fails outright.
type Report struct {
	Records     []ToolCallRecord
	Terminal    map[string]any
	TerminalRaw string
	Failures    int
}

// RecordsFor returns all records for the named tool in call order. Tools such
// as the per-item save are invoked once per generated question, so multiple
// records under one name are the normal case.
func (r *Report) RecordsFor(tool string) []ToolCallRecord {
	var out []ToolCallRecord
	for _, rec := range r.Records {
		if rec.Tool == tool {
			out = append(out, rec)
		}
	}
	return out
}
