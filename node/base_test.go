package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emedia-lab/hermes/topology"
)

type scriptedHandler struct {
	prepared bool
	ran      chan struct{}
	drained  bool
}

func (h *scriptedHandler) Prepare(context.Context) error { h.prepared = true; return nil }

func (h *scriptedHandler) Run(ctx context.Context) error {
	close(h.ran)
	<-ctx.Done()
	return nil
}

func (h *scriptedHandler) Drain(time.Duration) (int, error) { h.drained = true; return 0, nil }

func TestBaseServeDrivesFullLifecycle(t *testing.T) {
	brokerEnd, nodeEnd := NewChanCoordinationPair(4)
	defer brokerEnd.Close()

	handler := &scriptedHandler{ran: make(chan struct{})}
	desc := topology.NodeDescriptor{NodeID: "n1", BrokerID: "b1", Role: topology.RoleConsumer, InputStreams: []string{"s"}}
	base := NewBase(desc, nodeEnd, handler, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- base.Serve(ctx) }()

	require.NoError(t, brokerEnd.Send(ctx, CoordinationMessage{Kind: CoordPrepare}))
	readyMsg, err := brokerEnd.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, CoordStatus, readyMsg.Kind)
	assert.Equal(t, StateReady, base.State())

	require.NoError(t, brokerEnd.Send(ctx, CoordinationMessage{Kind: CoordStart}))
	select {
	case <-handler.ran:
	case <-time.After(time.Second):
		t.Fatal("handler.Run never started")
	}
	assert.Equal(t, StateRunning, base.State())

	require.NoError(t, brokerEnd.Send(ctx, CoordinationMessage{Kind: CoordStop}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, StateDone, base.State())
	assert.True(t, handler.prepared)
	assert.True(t, handler.drained)
}

func TestBaseServeAbortSkipsDrainAndReportsError(t *testing.T) {
	brokerEnd, nodeEnd := NewChanCoordinationPair(4)
	defer brokerEnd.Close()

	handler := &scriptedHandler{ran: make(chan struct{})}
	desc := topology.NodeDescriptor{NodeID: "n1", BrokerID: "b1", Role: topology.RoleConsumer, InputStreams: []string{"s"}}
	base := NewBase(desc, nodeEnd, handler, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- base.Serve(ctx) }()

	require.NoError(t, brokerEnd.Send(ctx, CoordinationMessage{Kind: CoordPrepare}))
	_, err := brokerEnd.Recv(ctx)
	require.NoError(t, err)
	require.NoError(t, brokerEnd.Send(ctx, CoordinationMessage{Kind: CoordStart}))
	<-handler.ran

	require.NoError(t, brokerEnd.Send(ctx, CoordinationMessage{Kind: CoordAbort}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, StateError, base.State())
	assert.False(t, handler.drained)
}

func TestTransitionRejectsInvalidJump(t *testing.T) {
	desc := topology.NodeDescriptor{NodeID: "n1", BrokerID: "b1", Role: topology.RoleConsumer, InputStreams: []string{"s"}}
	_, nodeEnd := NewChanCoordinationPair(1)
	base := NewBase(desc, nodeEnd, &scriptedHandler{ran: make(chan struct{})}, nil)

	err := base.transition(StateDone)
	assert.Error(t, err)
}
