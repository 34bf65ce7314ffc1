// Package monitor tracks per-message delivery outcomes in a bounded rolling
// window and aggregates them into samples that feed the adaptive topology
// policy and the operational history store.
package monitor

import (
	"sync"
	"time"

	"github.com/superdisco-agents/moai-flow-sub004/internal/config"
)

// Outcome is one observed delivery attempt.
type Outcome struct {
	At        time.Time
	Latency   time.Duration
	Hops      int
	Delivered bool
	Broadcast bool
}

// Sample is an aggregated measurement window, suitable for archiving.
type Sample struct {
	ID           string        `json:"id"`
	Topology     string        `json:"topology"`
	AgentCount   int           `json:"agent_count"`
	MessageCount int           `json:"message_count"`
	Delivered    int           `json:"delivered"`
	TotalLatency time.Duration `json:"total_latency"`
	WindowStart  time.Time     `json:"window_start"`
	WindowEnd    time.Time     `json:"window_end"`
}

// Stats is the monitor's live view over the rolling window.
type Stats struct {
	MessageCount   int           `json:"message_count"`
	Delivered      int           `json:"delivered"`
	FailureRate    float64       `json:"failure_rate"`
	AvgLatency     time.Duration `json:"avg_latency"`
	AvgHops        float64       `json:"avg_hops"`
	Throughput     float64       `json:"throughput"` // messages per second over the window
	BroadcastRatio float64       `json:"broadcast_ratio"`
}

type Monitor struct {
	mu       sync.Mutex
	cfg      config.MonitorConfig
	window   []Outcome // ring buffer
	head     int
	count    int
	windowAt time.Time // start of the current sample window
	now      func() time.Time
}

func New(cfg config.MonitorConfig) *Monitor {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 512
	}
	return &Monitor{
		cfg:      cfg,
		window:   make([]Outcome, cfg.WindowSize),
		windowAt: time.Now().UTC(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SampleInterval is how often callers should cut and archive a sample.
func (m *Monitor) SampleInterval() time.Duration {
	if m.cfg.SampleInterval <= 0 {
		return 60 * time.Second
	}
	return m.cfg.SampleInterval
}

func (m *Monitor) Record(o Outcome) {
	if o.At.IsZero() {
		o.At = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.window[m.head] = o
	m.head = (m.head + 1) % len(m.window)
	if m.count < len(m.window) {
		m.count++
	}
}

func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statsLocked()
}

func (m *Monitor) statsLocked() Stats {
	s := Stats{MessageCount: m.count}
	if m.count == 0 {
		return s
	}

	var (
		totalLatency time.Duration
		totalHops    int
		broadcasts   int
		oldest       time.Time
		newest       time.Time
	)
	for i := 0; i < m.count; i++ {
		o := m.window[(m.head-1-i+len(m.window))%len(m.window)]
		if o.Delivered {
			s.Delivered++
		}
		if o.Broadcast {
			broadcasts++
		}
		totalLatency += o.Latency
		totalHops += o.Hops
		if oldest.IsZero() || o.At.Before(oldest) {
			oldest = o.At
		}
		if o.At.After(newest) {
			newest = o.At
		}
	}

	s.FailureRate = float64(m.count-s.Delivered) / float64(m.count)
	s.AvgLatency = totalLatency / time.Duration(m.count)
	s.AvgHops = float64(totalHops) / float64(m.count)
	s.BroadcastRatio = float64(broadcasts) / float64(m.count)
	if span := newest.Sub(oldest); span > 0 {
		s.Throughput = float64(m.count) / span.Seconds()
	}
	return s
}

// Cut closes the current sample window and starts a new one. The caller
// stamps topology type and agent count, which the monitor does not know.
func (m *Monitor) Cut(topology string, agentCount int) Sample {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.statsLocked()
	end := m.now()
	sample := Sample{
		Topology:     topology,
		AgentCount:   agentCount,
		MessageCount: stats.MessageCount,
		Delivered:    stats.Delivered,
		TotalLatency: stats.AvgLatency * time.Duration(stats.MessageCount),
		WindowStart:  m.windowAt,
		WindowEnd:    end,
	}
	m.windowAt = end
	m.head = 0
	m.count = 0
	return sample
}
