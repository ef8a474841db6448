package store

import "github.com/skillprobe/skillprobe/internal/model"

// ExportAllSessions builds the full result set for the export subcommand:
// every session with its saved answers and summary statistics.
func (s *Store) ExportAllSessions() ([]model.SessionResult, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, status, round, started_at, paused_at, time_limit_ms FROM sessions ORDER BY started_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var sess model.Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Status, &sess.Round, &sess.StartedAt, &sess.PausedAt, &sess.TimeLimitMS); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []model.SessionResult
	for _, sess := range sessions {
		answers, err := s.GetAnswers(sess.ID)
		if err != nil {
			return nil, err
		}
		result := model.SessionResult{Session: sess, Answers: answers}
		var total float64
		for _, a := range answers {
			if a.IsCorrect {
				result.CorrectCount++
			}
			total += a.Score
		}
		if len(answers) > 0 {
			result.AverageScore = total / float64(len(answers))
		}
		results = append(results, result)
	}
	return results, nil
}
