package swarm

import (
	"errors"
	"time"

	"github.com/superdisco-agents/moai-flow-sub004/internal/monitor"
	"github.com/superdisco-agents/moai-flow-sub004/internal/topology"
)

// ErrTransitionInProgress means a topology switch could not start or a send
// was rejected because a reconfiguration is already in flight.
var ErrTransitionInProgress = errors.New("topology transition in progress")

// Envelope is the wire form of a routed message on the bus. Relay envelopes
// carry the message through intermediate agents; only the final envelope
// surfaces on the recipient's handle.
type Envelope struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Relay     bool      `json:"relay,omitempty"`
	Broadcast bool      `json:"broadcast,omitempty"`
	Hop       int       `json:"hop"`
	Payload   []byte    `json:"payload"`
	SentAt    time.Time `json:"sent_at"`
}

// DeliveryResult is the terminal outcome of one delivery attempt. Retry
// policy, if any, is the caller's responsibility.
type DeliveryResult struct {
	MessageID string        `json:"message_id"`
	Target    string        `json:"target"`
	Delivered bool          `json:"delivered"`
	Hops      int           `json:"hops"`
	Latency   time.Duration `json:"latency"`
	Err       string        `json:"error,omitempty"`
}

// WorkloadHint lets callers describe the dominant communication pattern so
// the adaptive policy can prefer a matching shape.
type WorkloadHint string

const (
	HintBalanced WorkloadHint = "balanced"
	// HintPipeline marks sequential-dependency workloads; the adaptive
	// policy prefers a ring.
	HintPipeline WorkloadHint = "pipeline"
	// HintFanout marks collaborative fan-out workloads; the adaptive policy
	// prefers a mesh while the swarm is small.
	HintFanout WorkloadHint = "fanout"
)

// Info is the coordinator's shape and health summary.
type Info struct {
	Type       topology.Type `json:"type"`
	Adaptive   bool          `json:"adaptive"`
	AgentCount int           `json:"agent_count"`
	Healthy    bool          `json:"healthy"`
	Health     string        `json:"health"`
	Detail     string        `json:"detail,omitempty"`
	Stats      monitor.Stats `json:"stats"`
}

// Event is published on the bus for every coordinator lifecycle change and
// mirrored to websocket subscribers by the web server.
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}
