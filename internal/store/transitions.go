package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Transition records one topology switch attempt from start to outcome.
type Transition struct {
	ID          string     `json:"id"`
	FromType    string     `json:"from_type"`
	ToType      string     `json:"to_type"`
	Status      string     `json:"status"` // running, completed, aborted
	Reason      string     `json:"reason,omitempty"`
	AgentCount  int        `json:"agent_count"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (s *Store) SaveTransition(t *Transition) error {
	_, err := s.db.Exec(`
		INSERT INTO transitions (id, from_type, to_type, status, reason, agent_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			reason = excluded.reason,
			completed_at = CASE WHEN excluded.status IN ('completed', 'aborted') THEN CURRENT_TIMESTAMP ELSE completed_at END`,
		t.ID, t.FromType, t.ToType, t.Status, t.Reason, t.AgentCount)
	if err != nil {
		return fmt.Errorf("save transition: %w", err)
	}
	return nil
}

func (s *Store) UpdateTransition(id, status, reason string) error {
	_, err := s.db.Exec(`
		UPDATE transitions
		SET status = ?, reason = ?,
		    completed_at = CASE WHEN ? IN ('completed', 'aborted') THEN CURRENT_TIMESTAMP ELSE completed_at END
		WHERE id = ?`, status, reason, status, id)
	if err != nil {
		return fmt.Errorf("update transition: %w", err)
	}
	return nil
}

func (s *Store) GetTransition(id string) (*Transition, error) {
	t := &Transition{}
	var reason sql.NullString
	err := s.db.QueryRow(`SELECT id, from_type, to_type, status, reason, agent_count, started_at, completed_at FROM transitions WHERE id = ?`, id).
		Scan(&t.ID, &t.FromType, &t.ToType, &t.Status, &reason, &t.AgentCount, &t.StartedAt, &t.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transition: %w", err)
	}
	t.Reason = reason.String
	return t, nil
}

func (s *Store) ListTransitions(limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, from_type, to_type, status, reason, agent_count, started_at, completed_at
		FROM transitions
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		var reason sql.NullString
		if err := rows.Scan(&t.ID, &t.FromType, &t.ToType, &t.Status, &reason, &t.AgentCount, &t.StartedAt, &t.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.Reason = reason.String
		out = append(out, t)
	}
	return out, rows.Err()
}
