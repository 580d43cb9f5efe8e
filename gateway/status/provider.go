package status

import "time"

// Snapshot is a point-in-time view of the broker and its nodes, served at
// the JSON status endpoint. It is not pushed over the websocket feed, which
// carries only the relayed status and log subjects.
type Snapshot struct {
	BrokerID    string         `json:"broker_id"`
	BrokerState string         `json:"broker_state"`
	SessionID   string         `json:"session_id,omitempty"`
	Nodes       []NodeSnapshot `json:"nodes"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// NodeSnapshot is one node's FSM state and basic activity counters.
type NodeSnapshot struct {
	NodeID       string    `json:"node_id"`
	Role         string    `json:"role"` // "producer", "consumer", "pipeline"
	State        string    `json:"state"`
	LastError    string    `json:"last_error,omitempty"`
	SamplesTotal uint64    `json:"samples_total"`
	LastActivity time.Time `json:"last_activity"`
}

// Provider is implemented by whatever owns broker/node state (typically the
// broker FSM itself) so the gateway can pull a fresh snapshot on demand
// without the broker depending on the gateway package.
type Provider interface {
	Snapshot() Snapshot
}
