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
	if dbPath == ":memory:" {
		// Every new connection would open a different empty database.
		db.SetMaxOpenConns(1)
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
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS quiz_results (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		score INTEGER NOT NULL,
		total INTEGER NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		finished_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS quiz_answers (
		id TEXT PRIMARY KEY,
		result_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		question TEXT NOT NULL,
		kind TEXT NOT NULL,
		answer TEXT NOT NULL DEFAULT '[]',
		is_correct INTEGER NOT NULL DEFAULT 0,
		correct_answer TEXT NOT NULL DEFAULT '',
		feedback TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (result_id) REFERENCES quiz_results(id)
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}
