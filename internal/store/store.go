package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/superdisco-agents/moai-flow-sub004/internal/config"
	_ "modernc.org/sqlite"
)

// Store archives coordinator operational history: the registered-agent
// snapshot, topology transitions and performance samples. Message payloads
// are never written here.
type Store struct {
	db *sql.DB
}

func New(cfg config.StoreConfig) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Enable WAL mode for concurrent read/write access and set a busy
	// timeout so writers retry instead of immediately returning SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
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
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id            TEXT PRIMARY KEY,
			role          TEXT,
			capabilities  TEXT,
			state         TEXT NOT NULL,
			seq           INTEGER NOT NULL,
			registered_at DATETIME NOT NULL,
			updated_at    DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS transitions (
			id           TEXT PRIMARY KEY,
			from_type    TEXT NOT NULL,
			to_type      TEXT NOT NULL,
			status       TEXT NOT NULL,
			reason       TEXT,
			agent_count  INTEGER,
			started_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_started ON transitions(started_at)`,
		`CREATE TABLE IF NOT EXISTS samples (
			id               TEXT PRIMARY KEY,
			topology         TEXT NOT NULL,
			agent_count      INTEGER NOT NULL,
			message_count    INTEGER NOT NULL,
			delivered        INTEGER NOT NULL,
			total_latency_us INTEGER NOT NULL,
			window_start     DATETIME NOT NULL,
			window_end       DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_window ON samples(window_end)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	return nil
}
