package broker

import (
	"time"

	"github.com/emedia-lab/hermes/gateway/status"
)

// Snapshot implements status.Provider: a point-in-time view of the
// Broker's own FSM state and every locally-hosted Node's FSM state,
// served at the status gateway's JSON endpoint (spec.md §11 supplemented
// feature).
func (b *Broker) Snapshot() status.Snapshot {
	b.mu.Lock()
	state := b.state
	sessionID := b.session.SessionID
	b.mu.Unlock()

	nodes := make([]status.NodeSnapshot, 0)
	for _, n := range b.nodes.snapshot() {
		nodes = append(nodes, status.NodeSnapshot{
			NodeID:    n.NodeID,
			Role:      n.Role,
			State:     n.State,
			LastError: n.LastError,
		})
	}

	return status.Snapshot{
		BrokerID:    b.cfg.BrokerID,
		BrokerState: state.String(),
		SessionID:   sessionID,
		Nodes:       nodes,
		GeneratedAt: time.Now(),
	}
}
