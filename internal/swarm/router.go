package swarm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/superdisco-agents/moai-flow-sub004/internal/monitor"
	"github.com/superdisco-agents/moai-flow-sub004/internal/natsbus"
	"github.com/superdisco-agents/moai-flow-sub004/internal/registry"
	"github.com/superdisco-agents/moai-flow-sub004/internal/topology"
)

// Publisher is the slice of the bus client the router needs.
type Publisher interface {
	PublishJSON(subject string, v any) error
	Flush() error
}

// Router is the single entry point for send and broadcast. It validates
// endpoints against the live registry snapshot, walks the active strategy's
// computed route over the bus and records every outcome with the monitor.
type Router struct {
	manager  *Manager
	registry *registry.Registry
	engine   *Engine
	bus      Publisher
	monitor  *monitor.Monitor
}

func NewRouter(m *Manager, reg *registry.Registry, eng *Engine, bus Publisher, mon *monitor.Monitor) *Router {
	return &Router{
		manager:  m,
		registry: reg,
		engine:   eng,
		bus:      bus,
		monitor:  mon,
	}
}

// Send delivers a unicast message along the active topology. Failures are
// reported in the result, never retried; retry policy belongs to the caller.
func (r *Router) Send(ctx context.Context, from, to string, payload []byte) DeliveryResult {
	start := time.Now()
	id := uuid.New().String()

	// Fail fast against the live snapshot at call time.
	if !r.registry.IsLive(from) {
		return r.failed(id, to, start, fmt.Errorf("sender %s: %w", from, topology.ErrUnknownAgent), false)
	}
	if !r.registry.IsLive(to) {
		return r.failed(id, to, start, fmt.Errorf("recipient %s: %w", to, topology.ErrUnknownAgent), false)
	}

	// Self-sends never touch the topology: zero hops, straight to the inbox.
	if from == to {
		if res, ok := r.deliver(id, from, topology.Delivery{Target: to}, payload, false, start); !ok {
			return res
		}
		result := DeliveryResult{
			MessageID: id,
			Target:    to,
			Delivered: true,
			Latency:   time.Since(start),
		}
		r.monitor.Record(monitor.Outcome{Latency: result.Latency, Delivered: true})
		return result
	}

	strategy, release, err := r.manager.Acquire(ctx)
	if err != nil {
		return r.failed(id, to, start, err, false)
	}
	defer release()

	d, err := strategy.Route(from, to)
	if errors.Is(err, topology.ErrRingBroken) {
		// Relink and retry once; the repair is invisible to the caller
		// unless it fails too.
		if repairErr := r.engine.RepairRing(strategy); repairErr != nil {
			return r.failed(id, to, start, repairErr, false)
		}
		d, err = strategy.Route(from, to)
	}
	if err != nil {
		return r.failed(id, to, start, err, false)
	}

	if res, ok := r.deliver(id, from, d, payload, false, start); !ok {
		return res
	}

	result := DeliveryResult{
		MessageID: id,
		Target:    to,
		Delivered: true,
		Hops:      d.Hops,
		Latency:   time.Since(start),
	}
	r.monitor.Record(monitor.Outcome{Latency: result.Latency, Hops: d.Hops, Delivered: true})
	return result
}

// Broadcast delivers to every live agent in the call-time snapshot, exactly
// once per recipient, best effort. Agents registered after the snapshot do
// not receive the broadcast.
func (r *Router) Broadcast(ctx context.Context, from string, payload []byte) []DeliveryResult {
	start := time.Now()
	id := uuid.New().String()

	if !r.registry.IsLive(from) {
		return []DeliveryResult{r.failed(id, "", start, fmt.Errorf("sender %s: %w", from, topology.ErrUnknownAgent), true)}
	}

	strategy, release, err := r.manager.Acquire(ctx)
	if err != nil {
		return []DeliveryResult{r.failed(id, "", start, err, true)}
	}
	defer release()

	deliveries, err := strategy.BroadcastRoutes(from)
	if errors.Is(err, topology.ErrRingBroken) {
		if repairErr := r.engine.RepairRing(strategy); repairErr != nil {
			return []DeliveryResult{r.failed(id, "", start, repairErr, true)}
		}
		deliveries, err = strategy.BroadcastRoutes(from)
	}
	if err != nil {
		return []DeliveryResult{r.failed(id, "", start, err, true)}
	}

	// Each recipient's delivery walks the same relay chain a unicast send
	// would; relay envelopes are not surfaced by the handles, so every live
	// recipient still sees the broadcast exactly once.
	results := make([]DeliveryResult, 0, len(deliveries))
	for _, d := range deliveries {
		if res, ok := r.deliver(id, from, d, payload, true, start); !ok {
			results = append(results, res)
			continue
		}
		res := DeliveryResult{
			MessageID: id,
			Target:    d.Target,
			Delivered: true,
			Hops:      d.Hops,
			Latency:   time.Since(start),
		}
		results = append(results, res)
		r.monitor.Record(monitor.Outcome{Latency: res.Latency, Hops: d.Hops, Delivered: true, Broadcast: true})
	}
	return results
}

// deliver publishes the relay envelopes followed by the final one, checking
// at every hop that the target is still live. On failure it returns the
// failed result and false.
func (r *Router) deliver(id, from string, d topology.Delivery, payload []byte, broadcast bool, start time.Time) (DeliveryResult, bool) {
	for i, relay := range d.Relays {
		if !r.registry.IsLive(relay) {
			// The relay vanished between routing and delivery. Remaining
			// hops are abandoned.
			return r.failed(id, d.Target, start, fmt.Errorf("relay %s removed mid-route: %w", relay, topology.ErrUnknownAgent), broadcast), false
		}
		env := Envelope{
			ID:        id,
			From:      from,
			To:        d.Target,
			Relay:     true,
			Broadcast: broadcast,
			Hop:       i + 1,
			Payload:   payload,
			SentAt:    start.UTC(),
		}
		if err := r.bus.PublishJSON(natsbus.SubjectAgentInbox(relay), env); err != nil {
			return r.failed(id, d.Target, start, fmt.Errorf("publish relay %s: %w", relay, err), broadcast), false
		}
	}

	if !r.registry.IsLive(d.Target) {
		return r.failed(id, d.Target, start, fmt.Errorf("recipient %s removed mid-route: %w", d.Target, topology.ErrUnknownAgent), broadcast), false
	}
	env := Envelope{
		ID:        id,
		From:      from,
		To:        d.Target,
		Broadcast: broadcast,
		Hop:       d.Hops,
		Payload:   payload,
		SentAt:    start.UTC(),
	}
	if err := r.bus.PublishJSON(natsbus.SubjectAgentInbox(d.Target), env); err != nil {
		return r.failed(id, d.Target, start, fmt.Errorf("publish to %s: %w", d.Target, err), broadcast), false
	}
	if err := r.bus.Flush(); err != nil {
		slog.Warn("send flush failed", "message", id, "error", err)
	}
	return DeliveryResult{}, true
}

func (r *Router) failed(id, target string, start time.Time, err error, broadcast bool) DeliveryResult {
	latency := time.Since(start)
	r.monitor.Record(monitor.Outcome{Latency: latency, Delivered: false, Broadcast: broadcast})
	return DeliveryResult{
		MessageID: id,
		Target:    target,
		Latency:   latency,
		Err:       err.Error(),
	}
}
