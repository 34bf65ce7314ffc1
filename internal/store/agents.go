package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// AgentRecord mirrors the registry's view of an agent for the history store.
type AgentRecord struct {
	ID           string    `json:"id"`
	Role         string    `json:"role,omitempty"`
	Capabilities []string  `json:"capabilities,omitempty"`
	State        string    `json:"state"`
	Seq          int       `json:"seq"`
	RegisteredAt time.Time `json:"registered_at"`
}

func (s *Store) SaveAgent(a *AgentRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO agents (id, role, capabilities, state, seq, registered_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			role = excluded.role,
			capabilities = excluded.capabilities,
			state = excluded.state,
			seq = excluded.seq,
			updated_at = CURRENT_TIMESTAMP`,
		a.ID, a.Role, strings.Join(a.Capabilities, ","), a.State, a.Seq, a.RegisteredAt)
	if err != nil {
		return fmt.Errorf("save agent: %w", err)
	}
	return nil
}

func (s *Store) GetAgent(id string) (*AgentRecord, error) {
	a := &AgentRecord{}
	var role, caps sql.NullString
	err := s.db.QueryRow(`SELECT id, role, capabilities, state, seq, registered_at FROM agents WHERE id = ?`, id).
		Scan(&a.ID, &role, &caps, &a.State, &a.Seq, &a.RegisteredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	a.Role = role.String
	if caps.String != "" {
		a.Capabilities = strings.Split(caps.String, ",")
	}
	return a, nil
}

func (s *Store) ListAgents() ([]AgentRecord, error) {
	rows, err := s.db.Query(`SELECT id, role, capabilities, state, seq, registered_at FROM agents ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []AgentRecord
	for rows.Next() {
		var a AgentRecord
		var role, caps sql.NullString
		if err := rows.Scan(&a.ID, &role, &caps, &a.State, &a.Seq, &a.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		a.Role = role.String
		if caps.String != "" {
			a.Capabilities = strings.Split(caps.String, ",")
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *Store) SetAgentState(id, state string) error {
	_, err := s.db.Exec(`UPDATE agents SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, state, id)
	if err != nil {
		return fmt.Errorf("set agent state: %w", err)
	}
	return nil
}
