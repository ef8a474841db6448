package transcript

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// Extract scans a transcript for tool invocations and the terminal payload.
// Each tool message becomes exactly one ToolCallRecord; a malformed payload
// increments Failures and leaves the record's Verdict at Unparseable, but
// never blocks sibling records.
func Extract(messages []Message) *Report {
	report := &Report{}
	for _, m := range messages {
		switch m.Role {
		case RoleTool:
			rec := ToolCallRecord{
				CallIndex: m.CallIndex,
				Tool:      m.Tool,
				RawInput:  m.Input,
				RawOutput: m.Content,
				OK:        m.OK,
			}
			rec.Parsed, rec.Verdict = DecodeObject(m.Content)
			if rec.Verdict == Unparseable {
				report.Failures++
				slog.Warn("tool output unparseable, excluding record",
					"tool", m.Tool, "call_index", m.CallIndex)
			}
			report.Records = append(report.Records, rec)
		case RoleFinal:
			report.TerminalRaw = m.Content
			parsed, verdict := DecodeObject(m.Content)
			if verdict == Unparseable {
				report.Failures++
				slog.Warn("terminal payload unparseable")
			} else {
				report.Terminal = parsed
			}
		}
	}
	return report
}

// DecodeObject recovers a JSON object from a raw payload using a layered
// strategy: direct parse, then stripping wrapping markers, then
// bracket-balance extraction, and finally best-effort field salvage. The
// verdict reports which layer succeeded.
func DecodeObject(raw string) (map[string]any, Verdict) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		return obj, ParsedFull
	}

	stripped := stripWrapping(raw)
	if stripped != raw {
		if err := json.Unmarshal([]byte(stripped), &obj); err == nil {
			return obj, ParsedFull
		}
	}

	if balanced := balancedObject(raw); balanced != "" {
		if err := json.Unmarshal([]byte(balanced), &obj); err == nil {
			return obj, ParsedFull
		}
	}

	if salvaged := salvageFields(raw); len(salvaged) > 0 {
		return salvaged, ParsedPartial
	}

	return nil, Unparseable
}

// stripWrapping removes the usual decoration models wrap JSON in: code
// fences, a leading language tag, and prose before/after the object.
func stripWrapping(raw string) string {
	s := strings.TrimSpace(raw)

	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}

// balancedObject returns the first brace-balanced object in raw, walking the
// string with quote and escape awareness so braces inside string values do
// not throw off the depth count. Returns "" when no balanced object exists,
// e.g. for truncated output.
func balancedObject(raw string) string {
	start := strings.Index(raw, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			if inString {
				escaped = true
			}
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}

var fieldPattern = regexp.MustCompile(`"([A-Za-z_][A-Za-z0-9_]*)"\s*:\s*("(?:[^"\\]|\\.)*"|-?\d+(?:\.\d+)?|true|false|null)`)

// salvageFields scrapes scalar key/value pairs out of irreparably broken
// JSON. Nested values are lost; the point is to keep records usable when a
// payload was truncated mid-object.
func salvageFields(raw string) map[string]any {
	matches := fieldPattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make(map[string]any, len(matches))
	for _, m := range matches {
		key, val := m[1], m[2]
		switch {
		case strings.HasPrefix(val, `"`):
			var s string
			if err := json.Unmarshal([]byte(val), &s); err == nil {
				out[key] = s
			}
		case val == "true":
			out[key] = true
		case val == "false":
			out[key] = false
		case val == "null":
			out[key] = nil
		default:
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				out[key] = f
			}
		}
	}
	return out
}
