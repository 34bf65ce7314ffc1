package swarm

import (
	"github.com/superdisco-agents/moai-flow-sub004/internal/monitor"
	"github.com/superdisco-agents/moai-flow-sub004/internal/topology"
)

// Agent-count bands for the adaptive policy. Mesh stays cheap only while the
// swarm is small; star trades hub risk for O(1) membership cost; beyond that
// the tree keeps hop counts logarithmic.
const (
	meshMaxAgents = 4
	starMaxAgents = 9
	ringMinAgents = 3
	ringMaxAgents = 8
)

// chooseTopology picks the concrete shape for the current swarm. Workload
// hints win over size bands when they apply; observed broadcast ratio acts
// as a fan-out signal when no hint is set.
func chooseTopology(agentCount int, hint WorkloadHint, stats monitor.Stats) topology.Type {
	switch hint {
	case HintPipeline:
		if agentCount >= ringMinAgents && agentCount <= ringMaxAgents {
			return topology.Ring
		}
	case HintFanout:
		if agentCount <= meshMaxAgents+1 {
			return topology.Mesh
		}
	}

	if hint == HintBalanced || hint == "" {
		if stats.MessageCount > 0 && stats.BroadcastRatio >= 0.5 && agentCount <= meshMaxAgents+1 {
			return topology.Mesh
		}
	}

	switch {
	case agentCount <= meshMaxAgents:
		return topology.Mesh
	case agentCount <= starMaxAgents:
		return topology.Star
	default:
		return topology.Hierarchical
	}
}
