package topology

import (
	"fmt"
	"sort"
	"sync"

	"github.com/superdisco-agents/moai-flow-sub004/internal/registry"
)

// MeshStrategy keeps full adjacency: every agent can reach every other agent
// directly. Membership changes cost O(n), which is why the adaptive policy
// only keeps a mesh while the swarm is small.
type MeshStrategy struct {
	mu       sync.RWMutex
	adjacent map[string]map[string]bool
	seq      map[string]int
}

func NewMesh() *MeshStrategy {
	return &MeshStrategy{
		adjacent: make(map[string]map[string]bool),
		seq:      make(map[string]int),
	}
}

func (m *MeshStrategy) Type() Type { return Mesh }

func (m *MeshStrategy) Route(from, to string) (Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.adjacent[from]; !ok {
		return Delivery{}, fmt.Errorf("mesh route from %s: %w", from, ErrUnknownAgent)
	}
	if _, ok := m.adjacent[to]; !ok {
		return Delivery{}, fmt.Errorf("mesh route to %s: %w", to, ErrUnknownAgent)
	}
	if from == to {
		return Delivery{Target: to}, nil
	}
	return Delivery{Target: to, Hops: 1}, nil
}

func (m *MeshStrategy) BroadcastRoutes(from string) ([]Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.adjacent[from]; !ok {
		return nil, fmt.Errorf("mesh broadcast from %s: %w", from, ErrUnknownAgent)
	}

	out := make([]Delivery, 0, len(m.adjacent)-1)
	for id := range m.adjacent {
		if id == from {
			continue
		}
		out = append(out, Delivery{Target: id, Hops: 1})
	}
	sort.Slice(out, func(i, j int) bool { return m.seq[out[i].Target] < m.seq[out[j].Target] })
	return out, nil
}

func (m *MeshStrategy) OnAgentAdded(a registry.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.adjacent[a.ID]; ok {
		return nil
	}

	entry := make(map[string]bool, len(m.adjacent))
	for id, peers := range m.adjacent {
		peers[a.ID] = true
		entry[id] = true
	}
	m.adjacent[a.ID] = entry
	m.seq[a.ID] = a.Seq
	return nil
}

func (m *MeshStrategy) OnAgentRemoved(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.adjacent[id]; !ok {
		return fmt.Errorf("mesh remove %s: %w", id, ErrUnknownAgent)
	}
	delete(m.adjacent, id)
	delete(m.seq, id)
	for _, peers := range m.adjacent {
		delete(peers, id)
	}
	return nil
}

func (m *MeshStrategy) Rebuild(agents []registry.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.adjacent = make(map[string]map[string]bool, len(agents))
	m.seq = make(map[string]int, len(agents))
	for _, a := range agents {
		m.seq[a.ID] = a.Seq
	}
	for _, a := range agents {
		peers := make(map[string]bool, len(agents)-1)
		for _, b := range agents {
			if b.ID != a.ID {
				peers[b.ID] = true
			}
		}
		m.adjacent[a.ID] = peers
	}
	return nil
}

func (m *MeshStrategy) Describe() Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Descriptor{
		Type:       Mesh,
		AgentCount: len(m.adjacent),
		Healthy:    true,
		Detail:     fmt.Sprintf("edges=%d", len(m.adjacent)*(len(m.adjacent)-1)),
	}
}
