package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrDuplicateAgent = errors.New("agent id already registered")
	ErrAgentNotFound  = errors.New("agent not found")
)

// State is the lifecycle state of a registered agent.
type State string

const (
	StateRegistering State = "registering"
	StateActive      State = "active"
	StateDegraded    State = "degraded"
	StateUnreachable State = "unreachable"
	StateRemoved     State = "removed"
)

// Metadata is supplied by the caller at registration time.
type Metadata struct {
	Role         string   `json:"role,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	// Parent is a placement hint for the hierarchical topology. Empty means
	// the tree position is inferred from registration order.
	Parent string            `json:"parent,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
}

// Agent is the registry's view of a swarm participant. Topology-specific
// relationships (ring neighbors, hub role, tree layer) live inside the active
// strategy's routing table, keyed by agent id.
type Agent struct {
	ID           string            `json:"id"`
	Role         string            `json:"role,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Parent       string            `json:"parent,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`
	State        State             `json:"state"`
	// Seq preserves registration order; it is the tie-break for topology
	// placement (ring position, inferred tree slots).
	Seq          int       `json:"seq"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Registry is the source of truth for swarm membership. Reads may proceed
// concurrently; writes are serialized by the coordinator relative to
// reconfiguration (see swarm package).
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	seq    int
}

func New() *Registry {
	return &Registry{
		agents: make(map[string]*Agent),
	}
}

func (r *Registry) Register(id string, meta Metadata) (Agent, error) {
	if id == "" {
		return Agent{}, fmt.Errorf("register: empty agent id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.agents[id]; ok && existing.State != StateRemoved {
		return Agent{}, fmt.Errorf("register %s: %w", id, ErrDuplicateAgent)
	}

	r.seq++
	a := &Agent{
		ID:           id,
		Role:         meta.Role,
		Capabilities: meta.Capabilities,
		Parent:       meta.Parent,
		Labels:       meta.Labels,
		State:        StateRegistering,
		Seq:          r.seq,
		RegisteredAt: time.Now().UTC(),
	}
	r.agents[id] = a
	return *a, nil
}

// Activate moves an agent from registering to active once its bus
// subscription is in place.
func (r *Registry) Activate(id string) error {
	return r.setState(id, StateActive)
}

func (r *Registry) SetState(id string, st State) error {
	return r.setState(id, st)
}

func (r *Registry) setState(id string, st State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok || a.State == StateRemoved {
		return fmt.Errorf("set state %s: %w", id, ErrAgentNotFound)
	}
	a.State = st
	return nil
}

// Unregister marks the agent removed. Messages already enqueued toward it
// are not retracted; delivery to a removed agent surfaces as a delivery
// failure at the router, not a registry error.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok || a.State == StateRemoved {
		return fmt.Errorf("unregister %s: %w", id, ErrAgentNotFound)
	}
	a.State = StateRemoved
	return nil
}

func (r *Registry) Get(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok || a.State == StateRemoved {
		return Agent{}, false
	}
	return *a, true
}

// IsLive reports whether the agent exists and is routable.
func (r *Registry) IsLive(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	return ok && (a.State == StateActive || a.State == StateRegistering || a.State == StateDegraded)
}

// ListActive returns live agents ordered by registration sequence. The slice
// is a stable snapshot; callers may hold it across registry mutations.
func (r *Registry) ListActive() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		if a.State == StateRemoved || a.State == StateUnreachable {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (r *Registry) CountActive() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, a := range r.agents {
		if a.State != StateRemoved && a.State != StateUnreachable {
			n++
		}
	}
	return n
}
