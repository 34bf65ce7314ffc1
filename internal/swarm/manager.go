package swarm

import (
	"context"
	"fmt"
	"sync"

	"github.com/superdisco-agents/moai-flow-sub004/internal/config"
	"github.com/superdisco-agents/moai-flow-sub004/internal/topology"
)

// Manager owns the active topology strategy and enforces the freeze/drain
// discipline around reconfigurations: routing acquires the strategy as a
// reader, a transition freezes new acquisitions, waits for in-flight sends
// to finish and swaps the pointer atomically.
type Manager struct {
	policy config.FreezePolicy

	mu            sync.Mutex
	active        topology.Strategy
	adaptive      bool
	reconfiguring bool
	inflight      int
	gate          chan struct{} // created on freeze, closed on resume
	drainDone     chan struct{} // closed when inflight reaches zero during a freeze
}

func NewManager(initial topology.Strategy, adaptive bool, policy config.FreezePolicy) *Manager {
	if policy == "" {
		policy = config.FreezeQueue
	}
	return &Manager{
		policy:   policy,
		active:   initial,
		adaptive: adaptive,
	}
}

// Acquire hands out the active strategy for one routing operation. The
// release func must be called when the operation finishes. While a
// reconfiguration is in flight, Acquire queues or rejects per the configured
// freeze policy; a queued acquisition completes against the incoming
// strategy once the swap lands.
func (m *Manager) Acquire(ctx context.Context) (topology.Strategy, func(), error) {
	for {
		m.mu.Lock()
		if !m.reconfiguring {
			m.inflight++
			s := m.active
			m.mu.Unlock()
			return s, m.release, nil
		}
		if m.policy == config.FreezeReject {
			m.mu.Unlock()
			return nil, nil, fmt.Errorf("send rejected: %w", ErrTransitionInProgress)
		}
		gate := m.gate
		m.mu.Unlock()

		select {
		case <-gate:
		case <-ctx.Done():
			return nil, nil, fmt.Errorf("send queued behind transition: %w", ctx.Err())
		}
	}
}

func (m *Manager) release() {
	m.mu.Lock()
	m.inflight--
	if m.inflight == 0 && m.drainDone != nil {
		close(m.drainDone)
		m.drainDone = nil
	}
	m.mu.Unlock()
}

// Active returns the current strategy without freeze accounting; use it for
// reads that tolerate a concurrent swap (Describe, membership updates made
// under the coordinator's write lock).
func (m *Manager) Active() topology.Strategy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Manager) Adaptive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adaptive
}

func (m *Manager) SetAdaptive(v bool) {
	m.mu.Lock()
	m.adaptive = v
	m.mu.Unlock()
}

// beginFreeze stops new acquisitions and returns a channel that closes once
// every in-flight send has released.
func (m *Manager) beginFreeze() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reconfiguring = true
	m.gate = make(chan struct{})

	done := make(chan struct{})
	if m.inflight == 0 {
		close(done)
	} else {
		m.drainDone = done
	}
	return done
}

// completeSwap installs the incoming strategy and resumes sends.
func (m *Manager) completeSwap(next topology.Strategy) {
	m.mu.Lock()
	m.active = next
	m.resumeLocked()
	m.mu.Unlock()
}

// abortFreeze resumes sends against the outgoing strategy after a failed
// transition.
func (m *Manager) abortFreeze() {
	m.mu.Lock()
	m.resumeLocked()
	m.mu.Unlock()
}

func (m *Manager) resumeLocked() {
	m.reconfiguring = false
	m.drainDone = nil
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}
