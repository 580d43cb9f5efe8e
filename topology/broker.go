package topology

import "github.com/emedia-lab/hermes/errors"

// Endpoints carries the control-plane and data-plane addresses a Broker
// exposes to peers (spec.md §3).
type Endpoints struct {
	Control string `json:"control"`
	Data    string `json:"data"`
}

// BrokerDescriptor identifies a per-host orchestrator and its current
// topology as seen by itself or a peer.
type BrokerDescriptor struct {
	BrokerID         string           `json:"broker_id"`
	Endpoints        Endpoints        `json:"endpoints"`
	LocalNodes       []NodeDescriptor `json:"local_nodes,omitempty"`
	PeerBrokers      []string         `json:"peer_brokers,omitempty"`
	IsClockReference bool             `json:"is_clock_reference"`
}

// Validate checks that the descriptor is internally consistent.
func (d BrokerDescriptor) Validate() error {
	if d.BrokerID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "BrokerDescriptor", "Validate", "broker_id cannot be empty")
	}
	if d.Endpoints.Control == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "BrokerDescriptor", "Validate", "control endpoint cannot be empty")
	}
	for _, n := range d.LocalNodes {
		if err := n.Validate(); err != nil {
			return errors.Wrap(err, "BrokerDescriptor", "Validate", "local node descriptor")
		}
	}
	return nil
}

// ElectReference picks the reference broker among a set of clock-eligible
// candidates: the lowest lexicographic broker_id, or the sole broker if
// there is only one (spec.md §4.1).
func ElectReference(candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", errors.WrapFatal(errors.ErrSyncAmbiguous, "topology", "ElectReference", "no clock-eligible candidates configured")
	}
	ref := candidates[0]
	for _, c := range candidates[1:] {
		if c < ref {
			ref = c
		}
	}
	return ref, nil
}
