package swarm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/superdisco-agents/moai-flow-sub004/internal/registry"
	"github.com/superdisco-agents/moai-flow-sub004/internal/topology"
)

// Engine performs the reconfiguration protocol: freeze inbound sends, drain
// accepted ones, rebuild the incoming strategy from the live snapshot, swap
// atomically, resume. A failure at any step before the swap aborts the
// transition and leaves the outgoing strategy active.
type Engine struct {
	manager      *Manager
	registry     *registry.Registry
	drainTimeout time.Duration
}

func NewEngine(m *Manager, reg *registry.Registry, drainTimeout time.Duration) *Engine {
	if drainTimeout <= 0 {
		drainTimeout = 10 * time.Second
	}
	return &Engine{
		manager:      m,
		registry:     reg,
		drainTimeout: drainTimeout,
	}
}

// Transition switches the active strategy to the given concrete type. The
// caller serializes transitions relative to membership writes.
func (e *Engine) Transition(ctx context.Context, to topology.Type) error {
	from := e.manager.Active().Type()
	slog.Info("topology transition starting", "from", from, "to", to)

	drained := e.manager.beginFreeze()
	select {
	case <-drained:
	case <-time.After(e.drainTimeout):
		e.manager.abortFreeze()
		return fmt.Errorf("transition %s->%s: drain timed out after %s", from, to, e.drainTimeout)
	case <-ctx.Done():
		e.manager.abortFreeze()
		return fmt.Errorf("transition %s->%s: %w", from, to, ctx.Err())
	}

	next, err := topology.New(to)
	if err != nil {
		e.manager.abortFreeze()
		return err
	}

	if err := next.Rebuild(e.registry.ListActive()); err != nil {
		e.manager.abortFreeze()
		return fmt.Errorf("transition %s->%s: %w", from, to, err)
	}

	e.manager.completeSwap(next)
	slog.Info("topology transition complete", "from", from, "to", to, "agents", e.registry.CountActive())
	return nil
}

// RepairRing relinks a broken ring from the live snapshot. Called by the
// router when routing trips over a dangling neighbor pointer, before the
// route is retried.
func (e *Engine) RepairRing(s topology.Strategy) error {
	ring, ok := s.(*topology.RingStrategy)
	if !ok {
		return nil
	}
	if err := ring.Rebuild(e.registry.ListActive()); err != nil {
		return fmt.Errorf("ring repair: %w", err)
	}
	slog.Info("ring relinked", "agents", e.registry.CountActive())
	return nil
}
