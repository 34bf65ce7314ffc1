// Package topology implements the communication graph shapes a swarm can
// route over: mesh, star, ring and hierarchical. Each shape is a Strategy
// behind one interface so the coordinator can swap them at runtime.
package topology

import (
	"errors"
	"fmt"

	"github.com/superdisco-agents/moai-flow-sub004/internal/registry"
)

type Type string

const (
	Mesh         Type = "mesh"
	Star         Type = "star"
	Ring         Type = "ring"
	Hierarchical Type = "hierarchical"
	// Adaptive is a policy, not a shape: the coordinator delegates to
	// whichever concrete strategy fits the current swarm.
	Adaptive Type = "adaptive"
)

func ParseType(s string) (Type, error) {
	switch Type(s) {
	case Mesh, Star, Ring, Hierarchical, Adaptive:
		return Type(s), nil
	default:
		return "", fmt.Errorf("unknown topology type %q", s)
	}
}

var (
	// ErrUnknownAgent means a route endpoint is not in the strategy's table.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrHubUnreachable means the star hub has been removed and no new hub
	// has been designated; cross-spoke routing is structurally impossible.
	ErrHubUnreachable = errors.New("hub unreachable")
	// ErrRingBroken means a ring neighbor pointer references an agent that is
	// no longer a member and relinking could not repair it.
	ErrRingBroken = errors.New("ring broken")
	// ErrInvalidConfiguration means the strategy cannot build a consistent
	// routing table from the given membership.
	ErrInvalidConfiguration = errors.New("invalid topology configuration")
)

// Delivery is a computed route to one recipient. Relays are the intermediate
// agents the message passes through, in order; Hops counts every relay step
// including the final delivery.
type Delivery struct {
	Target string
	Relays []string
	Hops   int
}

// Descriptor summarizes a strategy's current shape and health.
type Descriptor struct {
	Type       Type   `json:"type"`
	AgentCount int    `json:"agent_count"`
	Healthy    bool   `json:"healthy"`
	Detail     string `json:"detail,omitempty"`
}

// Strategy is the capability interface every topology shape implements.
// Implementations are safe for concurrent use: Route and Describe may run
// concurrently with each other, membership changes take exclusive access
// internally.
type Strategy interface {
	Type() Type

	// Route computes the relay path for a unicast message.
	Route(from, to string) (Delivery, error)

	// BroadcastRoutes computes one delivery per live member other than the
	// sender, honoring the shape (mesh fan-out, star via hub, ring walk,
	// tree walk).
	BroadcastRoutes(from string) ([]Delivery, error)

	OnAgentAdded(a registry.Agent) error
	OnAgentRemoved(id string) error

	// Rebuild replaces the routing table from a live-agent snapshot. A
	// failed rebuild leaves the strategy unusable; callers discard it.
	Rebuild(agents []registry.Agent) error

	Describe() Descriptor
}

// New returns an empty strategy of the given concrete type. Adaptive is a
// manager-level policy and is rejected here.
func New(t Type) (Strategy, error) {
	switch t {
	case Mesh:
		return NewMesh(), nil
	case Star:
		return NewStar(), nil
	case Ring:
		return NewRing(), nil
	case Hierarchical:
		return NewHierarchy(), nil
	default:
		return nil, fmt.Errorf("%w: no strategy for type %q", ErrInvalidConfiguration, t)
	}
}
