package store

import (
	"fmt"
	"time"

	"github.com/superdisco-agents/moai-flow-sub004/internal/monitor"
)

func (s *Store) SaveSample(sm *monitor.Sample) error {
	_, err := s.db.Exec(`
		INSERT INTO samples (id, topology, agent_count, message_count, delivered, total_latency_us, window_start, window_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sm.ID, sm.Topology, sm.AgentCount, sm.MessageCount, sm.Delivered,
		sm.TotalLatency.Microseconds(), sm.WindowStart, sm.WindowEnd)
	if err != nil {
		return fmt.Errorf("save sample: %w", err)
	}
	return nil
}

func (s *Store) ListSamples(limit int) ([]monitor.Sample, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, topology, agent_count, message_count, delivered, total_latency_us, window_start, window_end
		FROM samples
		ORDER BY window_end DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	var out []monitor.Sample
	for rows.Next() {
		var sm monitor.Sample
		var latencyUS int64
		if err := rows.Scan(&sm.ID, &sm.Topology, &sm.AgentCount, &sm.MessageCount, &sm.Delivered, &latencyUS, &sm.WindowStart, &sm.WindowEnd); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		sm.TotalLatency = time.Duration(latencyUS) * time.Microsecond
		out = append(out, sm)
	}
	return out, rows.Err()
}

// PruneSamples deletes samples older than the cutoff, returning rows removed.
func (s *Store) PruneSamples(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM samples WHERE window_end < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune samples: %w", err)
	}
	return res.RowsAffected()
}
