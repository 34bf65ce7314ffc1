package topology

import (
	"errors"
	"testing"
)

func TestRingNeighbors(t *testing.T) {
	r := NewRing()
	if err := r.Rebuild(liveAgents("a", "b", "c", "d")); err != nil {
		t.Fatalf("rebuild error: %v", err)
	}

	prev, next, err := r.Neighbors("a")
	if err != nil {
		t.Fatalf("neighbors error: %v", err)
	}
	if prev != "d" || next != "b" {
		t.Errorf("expected neighbors (d, b), got (%s, %s)", prev, next)
	}
}

func TestRingShortestDirection(t *testing.T) {
	r := NewRing()
	r.Rebuild(liveAgents("a", "b", "c", "d", "e"))

	// Forward: a -> c via b.
	d, err := r.Route("a", "c")
	if err != nil {
		t.Fatalf("route error: %v", err)
	}
	if d.Hops != 2 || len(d.Relays) != 1 || d.Relays[0] != "b" {
		t.Errorf("a->c: expected 2 hops via b, got hops=%d relays=%v", d.Hops, d.Relays)
	}

	// Backward is shorter: a -> d via e (2 hops) beats forward (3 hops).
	d, err = r.Route("a", "d")
	if err != nil {
		t.Fatalf("route error: %v", err)
	}
	if d.Hops != 2 || len(d.Relays) != 1 || d.Relays[0] != "e" {
		t.Errorf("a->d: expected 2 hops via e, got hops=%d relays=%v", d.Hops, d.Relays)
	}

	// Adjacent is direct.
	d, err = r.Route("a", "b")
	if err != nil {
		t.Fatalf("route error: %v", err)
	}
	if d.Hops != 1 || len(d.Relays) != 0 {
		t.Errorf("a->b: expected direct hop, got hops=%d relays=%v", d.Hops, d.Relays)
	}
}

func TestRingRemovalRelinks(t *testing.T) {
	r := NewRing()
	r.Rebuild(liveAgents("a", "b", "c", "d", "e"))

	if err := r.OnAgentRemoved("c"); err != nil {
		t.Fatalf("remove error: %v", err)
	}

	// The removed agent's neighbors now point at each other.
	_, next, err := r.Neighbors("b")
	if err != nil {
		t.Fatalf("neighbors error: %v", err)
	}
	if next != "d" {
		t.Errorf("expected b.next=d after relink, got %s", next)
	}
	prev, _, err := r.Neighbors("d")
	if err != nil {
		t.Fatalf("neighbors error: %v", err)
	}
	if prev != "b" {
		t.Errorf("expected d.prev=b after relink, got %s", prev)
	}

	// Every remaining member still has two live neighbors.
	for _, id := range []string{"a", "b", "d", "e"} {
		prev, next, err := r.Neighbors(id)
		if err != nil {
			t.Fatalf("neighbors %s error: %v", id, err)
		}
		if prev == "" || next == "" || prev == "c" || next == "c" {
			t.Errorf("member %s has stale neighbors (%s, %s)", id, prev, next)
		}
	}

	if !r.Describe().Healthy {
		t.Error("relinked ring should be healthy")
	}
}

func TestRingBroadcastWalk(t *testing.T) {
	r := NewRing()
	r.Rebuild(liveAgents("a", "b", "c", "d"))

	routes, err := r.BroadcastRoutes("a")
	if err != nil {
		t.Fatalf("broadcast error: %v", err)
	}
	if len(routes) != 3 {
		t.Fatalf("expected 3 routes, got %d", len(routes))
	}
	// Forward walk: hop count equals ring distance.
	want := []struct {
		target string
		hops   int
	}{{"b", 1}, {"c", 2}, {"d", 3}}
	for i, w := range want {
		if routes[i].Target != w.target || routes[i].Hops != w.hops {
			t.Errorf("route %d: expected %s at %d hops, got %s at %d", i, w.target, w.hops, routes[i].Target, routes[i].Hops)
		}
	}
	// The far recipient's relays are the walk prefix.
	if len(routes[2].Relays) != 2 || routes[2].Relays[0] != "b" || routes[2].Relays[1] != "c" {
		t.Errorf("expected relays [b c] for d, got %v", routes[2].Relays)
	}
}

func TestRingUnknownAgent(t *testing.T) {
	r := NewRing()
	r.Rebuild(liveAgents("a", "b"))

	if _, err := r.Route("a", "ghost"); !errors.Is(err, ErrUnknownAgent) {
		t.Errorf("expected ErrUnknownAgent, got %v", err)
	}
	if err := r.OnAgentRemoved("ghost"); !errors.Is(err, ErrUnknownAgent) {
		t.Errorf("expected ErrUnknownAgent, got %v", err)
	}
}

func TestRingTwoMembers(t *testing.T) {
	r := NewRing()
	r.Rebuild(liveAgents("a", "b"))

	d, err := r.Route("a", "b")
	if err != nil {
		t.Fatalf("route error: %v", err)
	}
	if d.Hops != 1 {
		t.Errorf("expected 1 hop, got %d", d.Hops)
	}

	prev, next, _ := r.Neighbors("a")
	if prev != "b" || next != "b" {
		t.Errorf("two-member ring: expected b on both sides, got (%s, %s)", prev, next)
	}
}
