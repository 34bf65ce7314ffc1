package swarm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/superdisco-agents/moai-flow-sub004/internal/config"
	"github.com/superdisco-agents/moai-flow-sub004/internal/registry"
	"github.com/superdisco-agents/moai-flow-sub004/internal/topology"
)

func newTestEngine(t *testing.T, drainTimeout time.Duration, ids ...string) (*Engine, *Manager, *registry.Registry) {
	t.Helper()

	reg := registry.New()
	mesh := topology.NewMesh()
	for _, id := range ids {
		a, err := reg.Register(id, registry.Metadata{})
		if err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
		reg.Activate(id)
		mesh.OnAgentAdded(a)
	}

	m := NewManager(mesh, false, config.FreezeQueue)
	return NewEngine(m, reg, drainTimeout), m, reg
}

func TestTransitionSwapsStrategy(t *testing.T) {
	e, m, _ := newTestEngine(t, time.Second, "a", "b", "c")

	if err := e.Transition(context.Background(), topology.Ring); err != nil {
		t.Fatalf("transition error: %v", err)
	}
	if got := m.Active().Type(); got != topology.Ring {
		t.Errorf("expected ring active, got %s", got)
	}

	// The incoming strategy was rebuilt from the live snapshot.
	d, err := m.Active().Route("a", "b")
	if err != nil {
		t.Fatalf("route on new strategy error: %v", err)
	}
	if d.Hops != 1 {
		t.Errorf("expected adjacent hop, got %d", d.Hops)
	}
}

func TestTransitionDrainTimeout(t *testing.T) {
	e, m, _ := newTestEngine(t, 100*time.Millisecond, "a", "b")

	// A send that never finishes blocks the drain.
	_, release, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire error: %v", err)
	}
	defer release()

	err = e.Transition(context.Background(), topology.Ring)
	if err == nil {
		t.Fatal("expected drain timeout error")
	}
	if !strings.Contains(err.Error(), "drain timed out") {
		t.Errorf("expected drain timeout, got %v", err)
	}

	// The outgoing strategy stays active and sends resume.
	if got := m.Active().Type(); got != topology.Mesh {
		t.Errorf("expected mesh still active, got %s", got)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, release2, err := m.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire after aborted transition error: %v", err)
	}
	release2()
}

func TestTransitionContextCanceled(t *testing.T) {
	e, m, _ := newTestEngine(t, 10*time.Second, "a")

	_, release, _ := m.Acquire(context.Background())
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := e.Transition(ctx, topology.Star); err == nil {
		t.Fatal("expected context error")
	}
	if got := m.Active().Type(); got != topology.Mesh {
		t.Errorf("expected mesh still active, got %s", got)
	}
}

func TestRepairRing(t *testing.T) {
	e, _, reg := newTestEngine(t, time.Second, "a", "b", "c")

	ring := topology.NewRing()
	if err := ring.Rebuild(reg.ListActive()); err != nil {
		t.Fatalf("rebuild error: %v", err)
	}

	// Simulate a member leaving the registry without the ring noticing.
	reg.Unregister("b")
	if err := e.RepairRing(ring); err != nil {
		t.Fatalf("repair error: %v", err)
	}

	d, err := ring.Route("a", "c")
	if err != nil {
		t.Fatalf("route after repair error: %v", err)
	}
	if d.Hops != 1 {
		t.Errorf("expected adjacent after repair, got %d hops", d.Hops)
	}

	// Non-ring strategies are a no-op.
	if err := e.RepairRing(topology.NewMesh()); err != nil {
		t.Errorf("repair on mesh should be nil, got %v", err)
	}
}
