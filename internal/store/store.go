package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'candidate',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS survey_profiles (
		user_id INTEGER PRIMARY KEY,
		self_level TEXT NOT NULL DEFAULT 'beginner',
		experience_years INTEGER NOT NULL DEFAULT 0,
		interests TEXT NOT NULL DEFAULT '[]',
		previous_score REAL NOT NULL DEFAULT 0,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS question_templates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL,
		difficulty INTEGER NOT NULL,
		category TEXT NOT NULL,
		interests TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS difficulty_keywords (
		difficulty INTEGER NOT NULL,
		category TEXT NOT NULL,
		keywords TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (difficulty, category)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'generating',
		round INTEGER NOT NULL DEFAULT 1,
		started_at DATETIME NOT NULL,
		paused_at DATETIME,
		time_limit_ms INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		round_id TEXT NOT NULL,
		stem TEXT NOT NULL,
		item_type TEXT NOT NULL,
		choices TEXT NOT NULL DEFAULT '[]',
		answer_schema TEXT NOT NULL,
		difficulty INTEGER NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS answers (
		session_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		user_answer TEXT NOT NULL,
		response_time_ms INTEGER NOT NULL DEFAULT 0,
		saved_at DATETIME NOT NULL,
		is_correct INTEGER NOT NULL DEFAULT 0,
		score REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (session_id, question_id),
		FOREIGN KEY (session_id) REFERENCES sessions(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS app_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}
