package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/skillprobe/skillprobe/internal/model"
)

// GetProfile returns the survey profile for a user, or nil when none exists.
// Callers apply model.DefaultProfile for missing profiles.
func (s *Store) GetProfile(userID int64) (*model.Profile, error) {
	var p model.Profile
	var interestsJSON string
	err := s.db.QueryRow(
		`SELECT user_id, self_level, experience_years, interests, previous_score
		 FROM survey_profiles WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.SelfLevel, &p.Experience, &interestsJSON, &p.PreviousScore)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(interestsJSON), &p.Interests); err != nil {
		return nil, fmt.Errorf("unmarshal interests for user %d: %w", userID, err)
	}
	return &p, nil
}

// UpsertProfile stores or replaces a user's survey profile.
func (s *Store) UpsertProfile(p model.Profile) error {
	interests, err := json.Marshal(p.Interests)
	if err != nil {
		return fmt.Errorf("marshal interests: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO survey_profiles (user_id, self_level, experience_years, interests, previous_score)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   self_level = excluded.self_level,
		   experience_years = excluded.experience_years,
		   interests = excluded.interests,
		   previous_score = excluded.previous_score`,
		p.UserID, p.SelfLevel, p.Experience, string(interests), p.PreviousScore,
	)
	return err
}
