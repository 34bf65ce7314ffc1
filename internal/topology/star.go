package topology

import (
	"fmt"
	"sort"
	"sync"

	"github.com/superdisco-agents/moai-flow-sub004/internal/registry"
)

// StarStrategy routes everything through a single hub agent. Spoke-to-spoke
// traffic costs two hops. The hub is a structural single point of failure:
// losing it is surfaced as degraded health and ErrHubUnreachable on
// cross-spoke sends until a new hub is designated.
type StarStrategy struct {
	mu      sync.RWMutex
	hub     string
	members map[string]int // id -> registration seq
}

func NewStar() *StarStrategy {
	return &StarStrategy{
		members: make(map[string]int),
	}
}

func (s *StarStrategy) Type() Type { return Star }

// Hub returns the current hub id, empty when the hub has been lost.
func (s *StarStrategy) Hub() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hub
}

// DesignateHub promotes an existing member to hub.
func (s *StarStrategy) DesignateHub(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[id]; !ok {
		return fmt.Errorf("designate hub %s: %w", id, ErrUnknownAgent)
	}
	s.hub = id
	return nil
}

func (s *StarStrategy) Route(from, to string) (Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.members[from]; !ok {
		return Delivery{}, fmt.Errorf("star route from %s: %w", from, ErrUnknownAgent)
	}
	if _, ok := s.members[to]; !ok {
		return Delivery{}, fmt.Errorf("star route to %s: %w", to, ErrUnknownAgent)
	}
	if from == to {
		return Delivery{Target: to}, nil
	}

	// Direct edge when either endpoint is the hub.
	if from == s.hub || to == s.hub {
		return Delivery{Target: to, Hops: 1}, nil
	}

	if s.hub == "" {
		return Delivery{}, fmt.Errorf("star route %s->%s: %w", from, to, ErrHubUnreachable)
	}
	return Delivery{Target: to, Relays: []string{s.hub}, Hops: 2}, nil
}

func (s *StarStrategy) BroadcastRoutes(from string) ([]Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.members[from]; !ok {
		return nil, fmt.Errorf("star broadcast from %s: %w", from, ErrUnknownAgent)
	}
	if s.hub == "" && from != s.hub {
		return nil, fmt.Errorf("star broadcast from %s: %w", from, ErrHubUnreachable)
	}

	out := make([]Delivery, 0, len(s.members)-1)
	for id := range s.members {
		if id == from {
			continue
		}
		switch {
		case from == s.hub || id == s.hub:
			// Hub fan-out and spoke-to-hub are single hops.
			out = append(out, Delivery{Target: id, Hops: 1})
		default:
			out = append(out, Delivery{Target: id, Relays: []string{s.hub}, Hops: 2})
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.members[out[i].Target] < s.members[out[j].Target] })
	return out, nil
}

func (s *StarStrategy) OnAgentAdded(a registry.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[a.ID]; ok {
		return nil
	}
	s.members[a.ID] = a.Seq
	if s.hub == "" && len(s.members) == 1 {
		s.hub = a.ID
	}
	return nil
}

func (s *StarStrategy) OnAgentRemoved(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[id]; !ok {
		return fmt.Errorf("star remove %s: %w", id, ErrUnknownAgent)
	}
	delete(s.members, id)
	if id == s.hub {
		// No silent failover. The outage stays visible until a caller
		// designates a replacement or the topology is rebuilt.
		s.hub = ""
	}
	return nil
}

func (s *StarStrategy) Rebuild(agents []registry.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.members = make(map[string]int, len(agents))
	s.hub = ""
	hubSeq := 0
	for _, a := range agents {
		s.members[a.ID] = a.Seq
		// Newest registration takes the hub role; established members stay
		// spokes and keep their existing traffic patterns.
		if s.hub == "" || a.Seq > hubSeq {
			s.hub, hubSeq = a.ID, a.Seq
		}
	}
	return nil
}

func (s *StarStrategy) Describe() Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := Descriptor{
		Type:       Star,
		AgentCount: len(s.members),
		Healthy:    s.hub != "" || len(s.members) == 0,
	}
	if s.hub != "" {
		d.Detail = "hub=" + s.hub
	} else if len(s.members) > 0 {
		d.Detail = "hub lost, awaiting designation"
	}
	return d
}
