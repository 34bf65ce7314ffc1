package swarm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/superdisco-agents/moai-flow-sub004/internal/natsbus"
)

const inboxBuffer = 64

// Handle is the caller's receiving end for a registered agent. It owns the
// agent's inbox subscription on the bus; relay envelopes passing through the
// agent are not surfaced, only final deliveries are.
type Handle struct {
	ID string

	inbox chan Envelope
	sub   *nats.Subscription
	ctrl  *nats.Subscription
	once  sync.Once
}

func newHandle(id string, client *natsbus.Client) (*Handle, error) {
	h := &Handle{
		ID:    id,
		inbox: make(chan Envelope, inboxBuffer),
	}

	sub, err := client.Subscribe(natsbus.SubjectAgentInbox(id), func(_ string, data []byte) {
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("invalid inbox envelope", "agent", id, "error", err)
			return
		}
		if env.Relay {
			return
		}
		select {
		case h.inbox <- env:
		default:
			slog.Warn("agent inbox full, dropping message", "agent", id, "message", env.ID)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe inbox for %s: %w", id, err)
	}
	h.sub = sub

	// Control-plane responder: liveness probes round-trip through the same
	// connection the agent's inbox rides on.
	ctrl, err := client.SubscribeReply(natsbus.SubjectAgentControl(id), func(_ []byte) []byte {
		return []byte("pong")
	})
	if err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("subscribe control for %s: %w", id, err)
	}
	h.ctrl = ctrl
	return h, nil
}

// Inbox delivers messages routed to this agent.
func (h *Handle) Inbox() <-chan Envelope {
	return h.inbox
}

// Close drops the bus subscription. The inbox channel is left open so that
// already-enqueued messages stay readable; no further sends occur once the
// subscription is gone.
func (h *Handle) Close() {
	h.once.Do(func() {
		if h.sub != nil {
			_ = h.sub.Unsubscribe()
		}
		if h.ctrl != nil {
			_ = h.ctrl.Unsubscribe()
		}
	})
}
