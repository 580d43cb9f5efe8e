package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/emedia-lab/hermes/config"
	"github.com/emedia-lab/hermes/node"
	"github.com/emedia-lab/hermes/topology"
)

func TestSnapshotReportsBrokerAndNodeState(t *testing.T) {
	b := &Broker{
		cfg:   &config.Config{BrokerID: "b1"},
		nodes: newNodeManager(nil),
		state: StateRun,
	}
	b.session.SessionID = "b1-12345"

	desc := topology.NodeDescriptor{NodeID: "n1", BrokerID: "b1", Role: topology.RoleConsumer, InputStreams: []string{"s"}}
	brokerEnd, _ := node.NewChanCoordinationPair(4)
	b.nodes.register(desc, brokerEnd, nil, func(ctx context.Context) error { return nil })

	snap := b.Snapshot()
	assert.Equal(t, "b1", snap.BrokerID)
	assert.Equal(t, "RUN", snap.BrokerState)
	assert.Equal(t, "b1-12345", snap.SessionID)
	assert.Len(t, snap.Nodes, 1)
	assert.Equal(t, "n1", snap.Nodes[0].NodeID)
	assert.Equal(t, topology.RoleConsumer.String(), snap.Nodes[0].Role)
	assert.Empty(t, snap.Nodes[0].State, "nil status source leaves State unset")
}
