package broker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/emedia-lab/hermes/component"
	"github.com/emedia-lab/hermes/errors"
	"github.com/emedia-lab/hermes/node"
	"github.com/emedia-lab/hermes/topology"
)

// nodeStatus is the subset of Producer/Consumer/Pipeline (via *node.Base)
// the status gateway needs to build a NodeSnapshot without the node
// package depending on gateway/status.
type nodeStatus interface {
	component.Discoverable
	State() node.State
}

// managedNode pairs a locally-hosted Node's Serve loop with the
// broker-side end of its coordination channel. finished is closed exactly
// once, when serve returns; err holds its return value and is safe to
// read by any number of goroutines once finished is closed.
type managedNode struct {
	desc   topology.NodeDescriptor
	coord  node.CoordinationChannel
	status nodeStatus
	serve  func(ctx context.Context) error

	finished chan struct{}
	err      error
}

// nodeManager drives every locally-hosted Node through PREPARE/START/STOP/
// ABORT, mirroring the per-component context+cancel, parallel start/stop
// shape of a managed component set, simplified to the handful of signals
// the Node FSM actually needs.
type nodeManager struct {
	logger *slog.Logger
	nodes  []*managedNode
}

func newNodeManager(logger *slog.Logger) *nodeManager {
	return &nodeManager{logger: logger}
}

// register adds a Node whose Base.Serve will be launched by launchAll.
// status is typically the Producer/Consumer/Pipeline's embedded *node.Base,
// consulted by snapshot() to build the gateway's NodeSnapshot list.
func (m *nodeManager) register(desc topology.NodeDescriptor, coord node.CoordinationChannel, status nodeStatus, serve func(ctx context.Context) error) {
	m.nodes = append(m.nodes, &managedNode{desc: desc, coord: coord, status: status, serve: serve})
}

// snapshot returns the FSM state and health of every registered Node.
func (m *nodeManager) snapshot() []nodeSnapshotInfo {
	out := make([]nodeSnapshotInfo, 0, len(m.nodes))
	for _, n := range m.nodes {
		info := nodeSnapshotInfo{NodeID: n.desc.NodeID, Role: n.desc.Role.String()}
		if n.status != nil {
			info.State = n.status.State().String()
			h := n.status.Health()
			info.LastError = h.LastError
		}
		out = append(out, info)
	}
	return out
}

// nodeSnapshotInfo is the broker package's FSM-facing view of one Node,
// translated into gateway/status's wire shape by broker.Snapshot.
type nodeSnapshotInfo struct {
	NodeID    string
	Role      string
	State     string
	LastError string
}

// launchAll starts every registered Node's Serve loop as a goroutine under
// ctx. Must be called exactly once, before prepareAll.
func (m *nodeManager) launchAll(ctx context.Context) {
	for _, n := range m.nodes {
		n.finished = make(chan struct{})
		go func(n *managedNode) {
			n.err = n.serve(ctx)
			close(n.finished)
		}(n)
	}
}

// firstFailure returns a channel that receives the first non-nil error
// reported by any registered Node's Serve loop exiting early (spec.md
// §4.3/§7): a Node that faults mid-RUN returns an error from Serve well
// before the broker ever sends STOP, and doRun must observe that to drive
// the host into DRAIN instead of waiting on ctx alone.
func (m *nodeManager) firstFailure() <-chan error {
	out := make(chan error, 1)
	for _, n := range m.nodes {
		go func(n *managedNode) {
			<-n.finished
			if n.err != nil {
				select {
				case out <- n.err:
				default:
				}
			}
		}(n)
	}
	return out
}

// prepareAll sends PREPARE to every Node in parallel and waits for each to
// report STATUS (entering READY) within timeout.
func (m *nodeManager) prepareAll(ctx context.Context, timeout time.Duration) error {
	return m.broadcast(ctx, timeout, node.CoordPrepare, true)
}

// startAll sends START to every Node in parallel, without waiting for a
// reply: Nodes only report STATUS again once they reach DONE.
func (m *nodeManager) startAll(ctx context.Context, timeout time.Duration) error {
	return m.broadcast(ctx, timeout, node.CoordStart, false)
}

func (m *nodeManager) broadcast(ctx context.Context, timeout time.Duration, kind node.CoordKind, awaitStatus bool) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, len(m.nodes))
	for i, n := range m.nodes {
		wg.Add(1)
		go func(i int, n *managedNode) {
			defer wg.Done()
			if err := n.coord.Send(ctx, node.CoordinationMessage{Kind: kind, NodeID: n.desc.NodeID}); err != nil {
				errs[i] = err
				return
			}
			if !awaitStatus {
				return
			}
			if _, err := n.coord.Recv(ctx); err != nil {
				errs[i] = err
			}
		}(i, n)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return errors.Wrap(err, "broker", "nodeManager.broadcast", "node "+m.nodes[i].desc.NodeID)
		}
	}
	return nil
}

// stopAll sends STOP to every Node and waits up to deadline for each Serve
// loop to return. Nodes still running past deadline are reported as
// unfinished but not forcibly killed.
func (m *nodeManager) stopAll(ctx context.Context, deadline time.Duration) (unfinished []string) {
	for _, n := range m.nodes {
		_ = n.coord.Send(ctx, node.CoordinationMessage{Kind: node.CoordStop, NodeID: n.desc.NodeID})
	}

	cutoff := time.Now().Add(deadline)
	for _, n := range m.nodes {
		remaining := time.Until(cutoff)
		if remaining < 0 {
			remaining = 0
		}
		select {
		case <-n.finished:
		case <-time.After(remaining):
			unfinished = append(unfinished, n.desc.NodeID)
		}
	}
	return unfinished
}

// abortAll sends ABORT to every Node without waiting for completion, for
// use when the Broker itself is failing and cannot afford an orderly drain.
func (m *nodeManager) abortAll(ctx context.Context) {
	for _, n := range m.nodes {
		_ = n.coord.Send(ctx, node.CoordinationMessage{Kind: node.CoordAbort, NodeID: n.desc.NodeID})
	}
}
