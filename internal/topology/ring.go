package topology

import (
	"fmt"
	"sync"

	"github.com/superdisco-agents/moai-flow-sub004/internal/registry"
)

// RingStrategy orders agents in a cycle by registration sequence and forwards
// messages hop-by-hop along the shorter direction. It suits pipeline and
// sequential-dependency workloads rather than low-latency fan-out. The
// critical repair operation is relinking the two neighbors of a removed
// agent, which OnAgentRemoved performs in place.
type RingStrategy struct {
	mu    sync.RWMutex
	order []string
	index map[string]int // id -> position in order
	next  map[string]string
	prev  map[string]string
}

func NewRing() *RingStrategy {
	return &RingStrategy{
		index: make(map[string]int),
		next:  make(map[string]string),
		prev:  make(map[string]string),
	}
}

func (r *RingStrategy) Type() Type { return Ring }

// Neighbors returns the ring neighbors of an agent.
func (r *RingStrategy) Neighbors(id string) (prev, next string, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.index[id]; !ok {
		return "", "", fmt.Errorf("ring neighbors %s: %w", id, ErrUnknownAgent)
	}
	return r.prev[id], r.next[id], nil
}

func (r *RingStrategy) Route(from, to string) (Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fi, ok := r.index[from]
	if !ok {
		return Delivery{}, fmt.Errorf("ring route from %s: %w", from, ErrUnknownAgent)
	}
	ti, ok := r.index[to]
	if !ok {
		return Delivery{}, fmt.Errorf("ring route to %s: %w", to, ErrUnknownAgent)
	}
	if from == to {
		return Delivery{Target: to}, nil
	}
	if err := r.checkLinks(); err != nil {
		return Delivery{}, err
	}

	n := len(r.order)
	fwd := (ti - fi + n) % n
	bwd := (fi - ti + n) % n

	var relays []string
	if fwd <= bwd {
		for i, pos := 1, fi; i < fwd; i++ {
			pos = (pos + 1) % n
			relays = append(relays, r.order[pos])
		}
		return Delivery{Target: to, Relays: relays, Hops: fwd}, nil
	}
	for i, pos := 1, fi; i < bwd; i++ {
		pos = (pos - 1 + n) % n
		relays = append(relays, r.order[pos])
	}
	return Delivery{Target: to, Relays: relays, Hops: bwd}, nil
}

// BroadcastRoutes walks the full ring once in the forward direction; the
// recipient at distance d sees hop count d.
func (r *RingStrategy) BroadcastRoutes(from string) ([]Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fi, ok := r.index[from]
	if !ok {
		return nil, fmt.Errorf("ring broadcast from %s: %w", from, ErrUnknownAgent)
	}
	if err := r.checkLinks(); err != nil {
		return nil, err
	}

	n := len(r.order)
	out := make([]Delivery, 0, n-1)
	var relays []string
	for d := 1; d < n; d++ {
		target := r.order[(fi+d)%n]
		out = append(out, Delivery{Target: target, Relays: relays, Hops: d})
		relays = append(relays[:len(relays):len(relays)], target)
	}
	return out, nil
}

func (r *RingStrategy) OnAgentAdded(a registry.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[a.ID]; ok {
		return nil
	}
	r.order = append(r.order, a.ID)
	r.rebuildLinks()
	return nil
}

// OnAgentRemoved splices the agent out and relinks its two neighbors
// directly. This is the automatic repair for an otherwise broken ring.
func (r *RingStrategy) OnAgentRemoved(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.index[id]
	if !ok {
		return fmt.Errorf("ring remove %s: %w", id, ErrUnknownAgent)
	}
	r.order = append(r.order[:pos], r.order[pos+1:]...)
	r.rebuildLinks()
	return nil
}

func (r *RingStrategy) Rebuild(agents []registry.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = r.order[:0]
	for _, a := range agents {
		r.order = append(r.order, a.ID)
	}
	r.rebuildLinks()
	return nil
}

// rebuildLinks recomputes index and neighbor pointers from order.
// Callers hold the write lock.
func (r *RingStrategy) rebuildLinks() {
	r.index = make(map[string]int, len(r.order))
	r.next = make(map[string]string, len(r.order))
	r.prev = make(map[string]string, len(r.order))
	n := len(r.order)
	for i, id := range r.order {
		r.index[id] = i
		r.next[id] = r.order[(i+1)%n]
		r.prev[id] = r.order[(i-1+n)%n]
	}
}

// checkLinks verifies no neighbor pointer dangles. Callers hold at least the
// read lock.
func (r *RingStrategy) checkLinks() error {
	for id, nxt := range r.next {
		if _, ok := r.index[nxt]; !ok {
			return fmt.Errorf("ring member %s points at departed %s: %w", id, nxt, ErrRingBroken)
		}
	}
	return nil
}

func (r *RingStrategy) Describe() Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	healthy := r.checkLinks() == nil
	return Descriptor{
		Type:       Ring,
		AgentCount: len(r.order),
		Healthy:    healthy,
		Detail:     fmt.Sprintf("circumference=%d", len(r.order)),
	}
}
