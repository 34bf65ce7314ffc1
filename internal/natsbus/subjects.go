package natsbus

import "fmt"

// Subject patterns for bus communication. Agent inboxes carry routed message
// envelopes; event subjects carry coordinator lifecycle events.

func SubjectAgentInbox(agentID string) string {
	return fmt.Sprintf("agent.%s.inbox", agentID)
}

func SubjectAgentControl(agentID string) string {
	return fmt.Sprintf("agent.%s.control", agentID)
}

func SubjectEventsTopology() string {
	return "events.swarm.topology"
}

func SubjectEventsMembership() string {
	return "events.swarm.membership"
}

func SubjectEventsHealth() string {
	return "events.swarm.health"
}

const (
	SubjectEventsAll   = "events.>"
	SubjectEventsSwarm = "events.swarm.*"
)
