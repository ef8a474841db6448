package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// roundTimestampLayout renders UTC timestamps with fixed microsecond
// precision and a numeric offset, so "+00:00" survives round-trips.
const roundTimestampLayout = "2006-01-02T15:04:05.000000-07:00"

// RoundID identifies one round within a session. Its string form is the wire
// format `{session_id}_{round_number}_{timestamp}` shared with every external
// consumer, so both halves of the round-trip live here.
type RoundID struct {
	SessionID string
	Round     int
	StartedAt time.Time
}

// NewRoundID creates a round identifier stamped with the current UTC time.
func NewRoundID(sessionID string, round int) (RoundID, error) {
	if sessionID == "" {
		return RoundID{}, fmt.Errorf("session ID is empty")
	}
	if round != 1 && round != 2 {
		return RoundID{}, fmt.Errorf("round number %d out of range (1 or 2)", round)
	}
	return RoundID{
		SessionID: sessionID,
		Round:     round,
		StartedAt: time.Now().UTC().Truncate(time.Microsecond),
	}, nil
}

// String renders the wire form of the identifier.
func (r RoundID) String() string {
	return fmt.Sprintf("%s_%d_%s", r.SessionID, r.Round, r.StartedAt.UTC().Format(roundTimestampLayout))
}

// ParseRoundID parses the wire form back into its components. The session ID
// may itself contain underscores, so the split works from the right: the last
// segment is the timestamp, the one before it the round number, and whatever
// remains is the session ID.
func ParseRoundID(s string) (RoundID, error) {
	tsSep := strings.LastIndex(s, "_")
	if tsSep < 0 {
		return RoundID{}, fmt.Errorf("round ID %q: missing timestamp separator", s)
	}
	head, tsPart := s[:tsSep], s[tsSep+1:]

	roundSep := strings.LastIndex(head, "_")
	if roundSep < 0 {
		return RoundID{}, fmt.Errorf("round ID %q: missing round separator", s)
	}
	sessionID, roundPart := head[:roundSep], head[roundSep+1:]
	if sessionID == "" {
		return RoundID{}, fmt.Errorf("round ID %q: empty session ID", s)
	}

	round, err := strconv.Atoi(roundPart)
	if err != nil {
		return RoundID{}, fmt.Errorf("round ID %q: round number: %w", s, err)
	}
	if round != 1 && round != 2 {
		return RoundID{}, fmt.Errorf("round ID %q: round number %d out of range (1 or 2)", s, round)
	}

	ts, err := time.Parse(roundTimestampLayout, tsPart)
	if err != nil {
		return RoundID{}, fmt.Errorf("round ID %q: timestamp: %w", s, err)
	}

	return RoundID{SessionID: sessionID, Round: round, StartedAt: ts.UTC()}, nil
}
