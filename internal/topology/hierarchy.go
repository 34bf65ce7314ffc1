package topology

import (
	"fmt"
	"sort"
	"sync"

	"github.com/superdisco-agents/moai-flow-sub004/internal/registry"
)

// HierarchyStrategy arranges agents in a layered tree. Every non-root agent
// has exactly one parent; routing walks up to the lowest common ancestor and
// back down, which stays around O(log n) hops while the tree is balanced.
// Agents registered without a parent hint are slotted breadth-first to keep
// the tree balanced. Removing a non-leaf agent promotes its eldest child
// (lowest registration sequence) into the vacated position.
type HierarchyStrategy struct {
	mu       sync.RWMutex
	root     string
	parent   map[string]string
	children map[string][]string
	layer    map[string]int
	seq      map[string]int
}

// maxChildren bounds inferred placement so the tree stays binary-balanced.
const maxChildren = 2

func NewHierarchy() *HierarchyStrategy {
	return &HierarchyStrategy{
		parent:   make(map[string]string),
		children: make(map[string][]string),
		layer:    make(map[string]int),
		seq:      make(map[string]int),
	}
}

func (h *HierarchyStrategy) Type() Type { return Hierarchical }

// Parent returns the parent of an agent; the root has none.
func (h *HierarchyStrategy) Parent(id string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.parent[id]
	return p, ok
}

// Layer returns the tree depth of an agent, root at 0.
func (h *HierarchyStrategy) Layer(id string) (int, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	l, ok := h.layer[id]
	return l, ok
}

func (h *HierarchyStrategy) Route(from, to string) (Delivery, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.layer[from]; !ok {
		return Delivery{}, fmt.Errorf("hierarchy route from %s: %w", from, ErrUnknownAgent)
	}
	if _, ok := h.layer[to]; !ok {
		return Delivery{}, fmt.Errorf("hierarchy route to %s: %w", to, ErrUnknownAgent)
	}
	if from == to {
		return Delivery{Target: to}, nil
	}

	path := h.path(from, to)
	relays := path[1 : len(path)-1]
	return Delivery{Target: to, Relays: relays, Hops: len(path) - 1}, nil
}

// path returns the unique tree path from a to b inclusive. Callers hold at
// least the read lock.
func (h *HierarchyStrategy) path(a, b string) []string {
	// Walk both endpoints up to the lowest common ancestor.
	up := []string{a}
	x, y := a, b
	for h.layer[x] > h.layer[y] {
		x = h.parent[x]
		up = append(up, x)
	}
	var down []string
	for h.layer[y] > h.layer[x] {
		down = append(down, y)
		y = h.parent[y]
	}
	for x != y {
		x = h.parent[x]
		up = append(up, x)
		down = append(down, y)
		y = h.parent[y]
	}

	for i := len(down) - 1; i >= 0; i-- {
		up = append(up, down[i])
	}
	return up
}

func (h *HierarchyStrategy) BroadcastRoutes(from string) ([]Delivery, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.layer[from]; !ok {
		return nil, fmt.Errorf("hierarchy broadcast from %s: %w", from, ErrUnknownAgent)
	}

	ids := make([]string, 0, len(h.layer))
	for id := range h.layer {
		if id != from {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return h.seq[ids[i]] < h.seq[ids[j]] })

	out := make([]Delivery, 0, len(ids))
	for _, id := range ids {
		p := h.path(from, id)
		out = append(out, Delivery{Target: id, Relays: p[1 : len(p)-1], Hops: len(p) - 1})
	}
	return out, nil
}

func (h *HierarchyStrategy) OnAgentAdded(a registry.Agent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.place(a)
}

// place attaches one agent. Callers hold the write lock.
func (h *HierarchyStrategy) place(a registry.Agent) error {
	if _, ok := h.layer[a.ID]; ok {
		return nil
	}

	if h.root == "" {
		h.root = a.ID
		h.layer[a.ID] = 0
		h.seq[a.ID] = a.Seq
		return nil
	}

	p := a.Parent
	if p != "" {
		if _, ok := h.layer[p]; !ok {
			return fmt.Errorf("%w: agent %s declares unknown parent %s", ErrInvalidConfiguration, a.ID, p)
		}
	} else {
		p = h.inferParent()
	}

	h.parent[a.ID] = p
	h.children[p] = append(h.children[p], a.ID)
	h.layer[a.ID] = h.layer[p] + 1
	h.seq[a.ID] = a.Seq
	return nil
}

// inferParent picks the shallowest node with a free child slot, registration
// order breaking ties. Callers hold the write lock.
func (h *HierarchyStrategy) inferParent() string {
	best := ""
	for id := range h.layer {
		if len(h.children[id]) >= maxChildren {
			continue
		}
		if best == "" ||
			h.layer[id] < h.layer[best] ||
			(h.layer[id] == h.layer[best] && h.seq[id] < h.seq[best]) {
			best = id
		}
	}
	return best
}

func (h *HierarchyStrategy) OnAgentRemoved(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.layer[id]; !ok {
		return fmt.Errorf("hierarchy remove %s: %w", id, ErrUnknownAgent)
	}

	kids := h.children[id]
	p, hasParent := h.parent[id]

	h.detach(id)

	if len(kids) == 0 {
		return nil
	}

	// Promote the eldest child into the vacated position; its siblings
	// re-parent under it.
	sort.Slice(kids, func(i, j int) bool { return h.seq[kids[i]] < h.seq[kids[j]] })
	eldest := kids[0]

	if hasParent {
		h.parent[eldest] = p
		h.children[p] = append(h.children[p], eldest)
	} else {
		delete(h.parent, eldest)
		h.root = eldest
	}
	for _, sibling := range kids[1:] {
		h.parent[sibling] = eldest
		h.children[eldest] = append(h.children[eldest], sibling)
	}

	h.relayer()
	return nil
}

// detach removes a node's own entries, leaving its children dangling for the
// caller to re-parent. Callers hold the write lock.
func (h *HierarchyStrategy) detach(id string) {
	if p, ok := h.parent[id]; ok {
		sibs := h.children[p]
		for i, c := range sibs {
			if c == id {
				h.children[p] = append(sibs[:i], sibs[i+1:]...)
				break
			}
		}
	}
	delete(h.parent, id)
	delete(h.children, id)
	delete(h.layer, id)
	delete(h.seq, id)
	if h.root == id {
		h.root = ""
	}
}

// relayer recomputes every node's layer from the root. Callers hold the
// write lock.
func (h *HierarchyStrategy) relayer() {
	if h.root == "" {
		return
	}
	h.layer[h.root] = 0
	queue := []string{h.root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, c := range h.children[n] {
			h.layer[c] = h.layer[n] + 1
			queue = append(queue, c)
		}
	}
}

func (h *HierarchyStrategy) Rebuild(agents []registry.Agent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.root = ""
	h.parent = make(map[string]string, len(agents))
	h.children = make(map[string][]string, len(agents))
	h.layer = make(map[string]int, len(agents))
	h.seq = make(map[string]int, len(agents))

	// Registration order: parents place before the children that name them,
	// as long as callers registered them in dependency order.
	for _, a := range agents {
		if err := h.place(a); err != nil {
			return err
		}
	}
	return nil
}

func (h *HierarchyStrategy) Describe() Descriptor {
	h.mu.RLock()
	defer h.mu.RUnlock()

	depth := 0
	for _, l := range h.layer {
		if l > depth {
			depth = l
		}
	}
	return Descriptor{
		Type:       Hierarchical,
		AgentCount: len(h.layer),
		Healthy:    true,
		Detail:     fmt.Sprintf("root=%s depth=%d", h.root, depth),
	}
}
