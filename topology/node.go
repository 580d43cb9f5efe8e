package topology

import (
	"fmt"

	"github.com/emedia-lab/hermes/errors"
)

// NodeDescriptor identifies a single Node owned by a Broker.
//
// NodeID is unique within a broker; prefixed with the owning BrokerID it is
// globally unique (see spec.md §3).
type NodeDescriptor struct {
	NodeID        string   `json:"node_id"`
	BrokerID      string   `json:"broker_id"`
	Role          Role     `json:"role"`
	InputStreams  []string `json:"input_streams,omitempty"`
	OutputStreams []string `json:"output_streams,omitempty"`
	Addressing    string   `json:"addressing"`
	Process       bool     `json:"process"` // copied from config; not acted on, every Node runs as a goroutine
}

// GlobalID returns the broker-qualified identifier for this node.
func (d NodeDescriptor) GlobalID() string {
	return fmt.Sprintf("%s/%s", d.BrokerID, d.NodeID)
}

// Validate checks that the descriptor is internally consistent.
func (d NodeDescriptor) Validate() error {
	if d.NodeID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "NodeDescriptor", "Validate", "node_id cannot be empty")
	}
	if d.BrokerID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "NodeDescriptor", "Validate", "broker_id cannot be empty")
	}
	if !d.Role.IsValid() {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "NodeDescriptor", "Validate",
			fmt.Sprintf("invalid role: %d", d.Role))
	}
	switch d.Role {
	case RoleProducer:
		if len(d.OutputStreams) == 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "NodeDescriptor", "Validate", "producer requires at least one output stream")
		}
	case RoleConsumer:
		if len(d.InputStreams) == 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "NodeDescriptor", "Validate", "consumer requires at least one input stream")
		}
	case RolePipeline:
		if len(d.InputStreams) == 0 || len(d.OutputStreams) == 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "NodeDescriptor", "Validate", "pipeline requires both input and output streams")
		}
	}
	return nil
}
