// Package swarm is the coordinator: it registers agents, routes unicast and
// broadcast messages over the active topology, and reconfigures the topology
// at runtime without losing in-flight messages.
package swarm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/superdisco-agents/moai-flow-sub004/internal/config"
	"github.com/superdisco-agents/moai-flow-sub004/internal/monitor"
	"github.com/superdisco-agents/moai-flow-sub004/internal/natsbus"
	"github.com/superdisco-agents/moai-flow-sub004/internal/registry"
	"github.com/superdisco-agents/moai-flow-sub004/internal/store"
	"github.com/superdisco-agents/moai-flow-sub004/internal/topology"
)

// Coordinator is the public facade over the registry, topology manager,
// message router, performance monitor and reconfiguration engine.
//
// Membership writes and topology transitions share a single writer slot;
// routing reads proceed concurrently against the active strategy.
type Coordinator struct {
	cfg      config.SwarmConfig
	registry *registry.Registry
	manager  *Manager
	engine   *Engine
	router   *Router
	monitor  *monitor.Monitor
	store    *store.Store // optional, nil disables history
	client   *natsbus.Client

	// writeMu is a semaphore so waiters can give up with their context.
	writeMu chan struct{}

	handlesMu sync.Mutex
	handles   map[string]*Handle

	hintMu sync.RWMutex
	hint   WorkloadHint
}

func NewCoordinator(client *natsbus.Client, reg *registry.Registry, mon *monitor.Monitor, st *store.Store, cfg config.SwarmConfig) (*Coordinator, error) {
	t, err := topology.ParseType(cfg.Topology)
	if err != nil {
		return nil, fmt.Errorf("initial topology: %w", err)
	}

	adaptive := t == topology.Adaptive
	initial := t
	if adaptive {
		// Smallest viable default until the first evaluation.
		initial = topology.Mesh
	}
	strategy, err := topology.New(initial)
	if err != nil {
		return nil, err
	}

	manager := NewManager(strategy, adaptive, cfg.FreezePolicy)
	engine := NewEngine(manager, reg, cfg.DrainTimeout)

	return &Coordinator{
		cfg:      cfg,
		registry: reg,
		manager:  manager,
		engine:   engine,
		router:   NewRouter(manager, reg, engine, client, mon),
		monitor:  mon,
		store:    st,
		client:   client,
		writeMu:  make(chan struct{}, 1),
		handles:  make(map[string]*Handle),
		hint:     HintBalanced,
	}, nil
}

// Start runs the periodic adaptive evaluation and sample archiving loops
// until the context is canceled. Callers run it in a goroutine.
func (c *Coordinator) Start(ctx context.Context) {
	evalEvery := c.cfg.EvalInterval
	if evalEvery <= 0 {
		evalEvery = 30 * time.Second
	}
	evalTicker := time.NewTicker(evalEvery)
	defer evalTicker.Stop()

	sampleTicker := time.NewTicker(c.monitor.SampleInterval())
	defer sampleTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-evalTicker.C:
			if err := c.lockWrite(ctx); err != nil {
				continue
			}
			c.evaluateLocked(ctx, "periodic")
			c.unlockWrite()
		case <-sampleTicker.C:
			c.cutSample()
		}
	}
}

// RegisterAgent adds an agent to the swarm, returning the handle its
// messages arrive on.
func (c *Coordinator) RegisterAgent(ctx context.Context, id string, meta registry.Metadata) (*Handle, error) {
	if err := c.lockWrite(ctx); err != nil {
		return nil, err
	}
	defer c.unlockWrite()

	a, err := c.registry.Register(id, meta)
	if err != nil {
		return nil, err
	}

	strategy := c.manager.Active()
	if err := strategy.OnAgentAdded(a); err != nil {
		_ = c.registry.Unregister(id)
		return nil, fmt.Errorf("place agent %s: %w", id, err)
	}

	handle, err := newHandle(id, c.client)
	if err != nil {
		_ = strategy.OnAgentRemoved(id)
		_ = c.registry.Unregister(id)
		return nil, err
	}

	if err := c.registry.Activate(id); err != nil {
		handle.Close()
		_ = strategy.OnAgentRemoved(id)
		return nil, err
	}

	c.handlesMu.Lock()
	c.handles[id] = handle
	c.handlesMu.Unlock()

	c.saveAgentRecord(a, string(registry.StateActive))
	c.publishEvent(natsbus.SubjectEventsMembership(), "agent_registered", map[string]any{
		"agent": id,
		"count": c.registry.CountActive(),
	})
	slog.Info("agent registered", "agent", id, "count", c.registry.CountActive())

	c.evaluateLocked(ctx, "membership change")
	return handle, nil
}

// UnregisterAgent removes an agent. Messages already enqueued toward it are
// not retracted; subsequent deliveries to it fail at the router.
func (c *Coordinator) UnregisterAgent(ctx context.Context, id string) error {
	if err := c.lockWrite(ctx); err != nil {
		return err
	}
	defer c.unlockWrite()

	if err := c.registry.Unregister(id); err != nil {
		return err
	}

	strategy := c.manager.Active()
	wasHealthy := strategy.Describe().Healthy
	if err := strategy.OnAgentRemoved(id); err != nil {
		slog.Warn("strategy removal failed", "agent", id, "error", err)
	}

	c.handlesMu.Lock()
	if h, ok := c.handles[id]; ok {
		h.Close()
		delete(c.handles, id)
	}
	c.handlesMu.Unlock()

	if c.store != nil {
		if err := c.store.SetAgentState(id, string(registry.StateRemoved)); err != nil {
			slog.Warn("store agent state failed", "agent", id, "error", err)
		}
	}

	c.publishEvent(natsbus.SubjectEventsMembership(), "agent_unregistered", map[string]any{
		"agent": id,
		"count": c.registry.CountActive(),
	})
	slog.Info("agent unregistered", "agent", id, "count", c.registry.CountActive())

	// Structural damage (hub loss) is surfaced as a health event, not an
	// error: the removal itself succeeded.
	if desc := strategy.Describe(); wasHealthy && !desc.Healthy {
		c.publishEvent(natsbus.SubjectEventsHealth(), "topology_degraded", map[string]any{
			"topology": string(desc.Type),
			"detail":   desc.Detail,
		})
		slog.Warn("topology degraded", "topology", desc.Type, "detail", desc.Detail)
	} else if desc.Type == topology.Ring {
		c.publishEvent(natsbus.SubjectEventsHealth(), "ring_relinked", map[string]any{
			"count": c.registry.CountActive(),
		})
	}

	c.evaluateLocked(ctx, "membership change")
	return nil
}

// Send routes a unicast message along the active topology.
func (c *Coordinator) Send(ctx context.Context, from, to string, payload []byte) DeliveryResult {
	return c.router.Send(ctx, from, to, payload)
}

// Broadcast routes a message to every live agent in the call-time snapshot.
func (c *Coordinator) Broadcast(ctx context.Context, from string, payload []byte) []DeliveryResult {
	return c.router.Broadcast(ctx, from, payload)
}

// SwitchTopology requests a transition to the given type. Requests issued
// while another transition is running queue behind it; callers whose context
// expires while queued get ErrTransitionInProgress and the request is
// abandoned.
func (c *Coordinator) SwitchTopology(ctx context.Context, t topology.Type) error {
	if _, err := topology.ParseType(string(t)); err != nil {
		return fmt.Errorf("%w: %v", topology.ErrInvalidConfiguration, err)
	}

	if err := c.lockWrite(ctx); err != nil {
		return err
	}
	defer c.unlockWrite()

	if t == topology.Adaptive {
		c.manager.SetAdaptive(true)
		c.evaluateLocked(ctx, "adaptive enabled")
		return nil
	}

	c.manager.SetAdaptive(false)
	if c.manager.Active().Type() == t {
		return nil
	}
	return c.transitionLocked(ctx, t, "explicit switch")
}

// DesignateHub promotes an agent to hub; only meaningful under star.
func (c *Coordinator) DesignateHub(ctx context.Context, id string) error {
	if err := c.lockWrite(ctx); err != nil {
		return err
	}
	defer c.unlockWrite()

	star, ok := c.manager.Active().(*topology.StarStrategy)
	if !ok {
		return fmt.Errorf("designate hub: active topology is %s, not star", c.manager.Active().Type())
	}
	if err := star.DesignateHub(id); err != nil {
		return err
	}

	c.publishEvent(natsbus.SubjectEventsHealth(), "hub_designated", map[string]any{"hub": id})
	slog.Info("hub designated", "hub", id)
	return nil
}

// SetWorkloadHint records the dominant communication pattern and re-runs the
// adaptive evaluation against it.
func (c *Coordinator) SetWorkloadHint(ctx context.Context, h WorkloadHint) error {
	switch h {
	case HintBalanced, HintPipeline, HintFanout:
	default:
		return fmt.Errorf("unknown workload hint %q", h)
	}

	c.hintMu.Lock()
	c.hint = h
	c.hintMu.Unlock()

	if err := c.lockWrite(ctx); err != nil {
		return err
	}
	defer c.unlockWrite()
	c.evaluateLocked(ctx, "workload hint")
	return nil
}

// TopologyInfo reports the current type, agent count and health summary.
func (c *Coordinator) TopologyInfo() Info {
	desc := c.manager.Active().Describe()
	info := Info{
		Type:       desc.Type,
		Adaptive:   c.manager.Adaptive(),
		AgentCount: c.registry.CountActive(),
		Healthy:    desc.Healthy,
		Health:     "ok",
		Detail:     desc.Detail,
		Stats:      c.monitor.Stats(),
	}
	if !desc.Healthy {
		info.Health = "degraded: " + desc.Detail
	}
	return info
}

// Agents returns the live agents in registration order.
func (c *Coordinator) Agents() []registry.Agent {
	return c.registry.ListActive()
}

// Ping round-trips a control message through an agent's handle and reports
// the latency. A live registry entry whose handle stopped answering comes
// back as an error, which is the point of pinging instead of trusting state.
func (c *Coordinator) Ping(id string, timeout time.Duration) (time.Duration, error) {
	if !c.registry.IsLive(id) {
		return 0, fmt.Errorf("ping %s: %w", id, topology.ErrUnknownAgent)
	}
	start := time.Now()
	if _, err := c.client.Request(natsbus.SubjectAgentControl(id), []byte("ping"), timeout); err != nil {
		return 0, fmt.Errorf("ping %s: %w", id, err)
	}
	return time.Since(start), nil
}

// transitionLocked runs one reconfiguration and records its outcome.
// Callers hold the write slot.
func (c *Coordinator) transitionLocked(ctx context.Context, to topology.Type, reason string) error {
	from := c.manager.Active().Type()
	tr := &store.Transition{
		ID:         uuid.New().String(),
		FromType:   string(from),
		ToType:     string(to),
		Status:     "running",
		Reason:     reason,
		AgentCount: c.registry.CountActive(),
	}
	if c.store != nil {
		if err := c.store.SaveTransition(tr); err != nil {
			slog.Warn("save transition failed", "error", err)
		}
	}

	if err := c.engine.Transition(ctx, to); err != nil {
		if c.store != nil {
			_ = c.store.UpdateTransition(tr.ID, "aborted", err.Error())
		}
		c.publishEvent(natsbus.SubjectEventsTopology(), "transition_failed", map[string]any{
			"from":  string(from),
			"to":    string(to),
			"error": err.Error(),
		})
		return err
	}

	if c.store != nil {
		_ = c.store.UpdateTransition(tr.ID, "completed", reason)
	}
	c.publishEvent(natsbus.SubjectEventsTopology(), "topology_switched", map[string]any{
		"from":   string(from),
		"to":     string(to),
		"reason": reason,
		"agents": c.registry.CountActive(),
	})
	return nil
}

// evaluateLocked re-runs the adaptive policy. Callers hold the write slot.
func (c *Coordinator) evaluateLocked(ctx context.Context, reason string) {
	if !c.manager.Adaptive() {
		return
	}
	n := c.registry.CountActive()
	if n == 0 {
		return
	}

	c.hintMu.RLock()
	hint := c.hint
	c.hintMu.RUnlock()

	target := chooseTopology(n, hint, c.monitor.Stats())
	if target == c.manager.Active().Type() {
		return
	}

	slog.Info("adaptive policy selecting topology", "target", target, "agents", n, "hint", hint, "reason", reason)
	if err := c.transitionLocked(ctx, target, "adaptive: "+reason); err != nil {
		slog.Warn("adaptive transition failed", "target", target, "error", err)
	}
}

func (c *Coordinator) cutSample() {
	desc := c.manager.Active().Describe()
	sample := c.monitor.Cut(string(desc.Type), c.registry.CountActive())
	if sample.MessageCount == 0 {
		return
	}
	sample.ID = uuid.New().String()
	if c.store != nil {
		if err := c.store.SaveSample(&sample); err != nil {
			slog.Warn("save sample failed", "error", err)
		}
	}
}

func (c *Coordinator) saveAgentRecord(a registry.Agent, state string) {
	if c.store == nil {
		return
	}
	rec := &store.AgentRecord{
		ID:           a.ID,
		Role:         a.Role,
		Capabilities: a.Capabilities,
		State:        state,
		Seq:          a.Seq,
		RegisteredAt: a.RegisteredAt,
	}
	if err := c.store.SaveAgent(rec); err != nil {
		slog.Warn("save agent record failed", "agent", a.ID, "error", err)
	}
}

func (c *Coordinator) publishEvent(subject, eventType string, data map[string]any) {
	if c.client == nil {
		return
	}
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	if err := c.client.PublishJSON(subject, event); err != nil {
		slog.Warn("publish event failed", "type", eventType, "error", err)
	}
}

func (c *Coordinator) lockWrite(ctx context.Context) error {
	select {
	case c.writeMu <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("coordinator busy: %w", ErrTransitionInProgress)
	}
}

func (c *Coordinator) unlockWrite() {
	<-c.writeMu
}
