package node

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/emedia-lab/hermes/component"
	"github.com/emedia-lab/hermes/errors"
	"github.com/emedia-lab/hermes/metric"
	"github.com/emedia-lab/hermes/topology"
)

// RoleHandler is the role-specific behavior a Producer, Consumer, or
// Pipeline plugs into Base. Base owns the FSM and coordination protocol;
// RoleHandler owns the data-plane work.
type RoleHandler interface {
	// Prepare runs once in INIT, before the Node reports READY. It opens
	// devices/sockets and performs any self-test.
	Prepare(ctx context.Context) error
	// Run is the production/consumption loop. It must return when ctx is
	// cancelled.
	Run(ctx context.Context) error
	// Drain flushes in-flight work within deadline and returns the
	// number of samples discarded if the deadline was exceeded.
	Drain(deadline time.Duration) (discarded int, err error)
}

// Base implements the Node FSM (spec.md §4.2) and the Broker coordination
// protocol common to every role. Producer, Consumer, and Pipeline embed
// Base and supply a RoleHandler.
type Base struct {
	desc    topology.NodeDescriptor
	coord   CoordinationChannel
	handler RoleHandler
	logger  *slog.Logger
	metrics *metric.MetricsRegistry

	mu        sync.Mutex
	state     State
	startedAt time.Time
	lastErr   error
	errCount  int

	runCancel context.CancelFunc
	runDone   chan struct{}
}

// NewBase constructs the shared FSM plumbing for a Node. desc must already
// be Validate()'d by the caller.
func NewBase(desc topology.NodeDescriptor, coord CoordinationChannel, handler RoleHandler, logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{
		desc:    desc,
		coord:   coord,
		handler: handler,
		logger:  logger.With("node_id", desc.NodeID, "role", desc.Role.String()),
		state:   StateInit,
	}
}

// SetMetrics attaches a registry the Node's FSM-state gauge is reported
// through. Must be called before Serve; a nil registry (the default)
// leaves FSM-state reporting disabled, matching tests that construct a
// Node without a broker.
func (b *Base) SetMetrics(m *metric.MetricsRegistry) {
	b.metrics = m
}

// Meta implements component.Discoverable.
func (b *Base) Meta() component.Metadata {
	return component.Metadata{
		Name: b.desc.GlobalID(),
		Type: "node." + b.desc.Role.String(),
	}
}

// Health implements component.Discoverable.
func (b *Base) Health() component.HealthStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := component.HealthStatus{
		Healthy:    b.state != StateError,
		ErrorCount: b.errCount,
	}
	if b.lastErr != nil {
		h.LastError = b.lastErr.Error()
	}
	if !b.startedAt.IsZero() {
		h.Uptime = time.Since(b.startedAt)
	}
	return h
}

// State returns the Node's current FSM state.
func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Base) transition(to State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !canTransition(b.state, to) {
		return errors.WrapFatal(errors.ErrUndefinedState, "node", "transition",
			b.state.String()+" -> "+to.String())
	}
	b.logger.Debug("node state transition", "from", b.state.String(), "to", to.String())
	b.state = to
	if to == StateRunning {
		b.startedAt = time.Now()
	}
	b.recordState(to)
	return nil
}

func (b *Base) fail(err error) {
	b.mu.Lock()
	b.lastErr = err
	b.errCount++
	b.state = StateError
	b.mu.Unlock()
	b.logger.Error("node failed", "error", err)
	b.recordState(StateError)
}

// recordState exports the Node's FSM state as a gauge (spec.md §3's
// DOMAIN STACK, "FSM-state gauge" supplement) when a registry is
// attached. Node state is reported as a node.Base-scoped service name so
// it never collides with the broker's own FSM-state gauge.
func (b *Base) recordState(s State) {
	if b.metrics == nil {
		return
	}
	b.metrics.CoreMetrics().RecordServiceStatus("node."+b.desc.GlobalID(), int(s))
}

// Serve runs the Node's full lifecycle against its coordination channel:
// await PREPARE, run Prepare(), reply READY; await START, run the role's
// Run() loop; await STOP or ABORT, drain and report DONE. Serve returns
// when the Node reaches DONE or ERROR, or ctx is cancelled.
func (b *Base) Serve(ctx context.Context) error {
	if err := b.awaitCoordination(ctx, CoordPrepare); err != nil {
		return err
	}
	if err := b.handler.Prepare(ctx); err != nil {
		b.fail(err)
		return errors.Wrap(err, "node", "Serve", "prepare")
	}
	if err := b.transition(StateReady); err != nil {
		b.fail(err)
		return err
	}
	b.reportStatus(ctx)

	if err := b.awaitCoordination(ctx, CoordStart); err != nil {
		return err
	}
	if err := b.transition(StateRunning); err != nil {
		b.fail(err)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.runCancel = cancel
	b.runDone = make(chan struct{})
	runErr := make(chan error, 1)
	go func() {
		if err := b.handler.Run(runCtx); err != nil && runCtx.Err() == nil {
			b.fail(err)
			runErr <- err
		}
		close(b.runDone)
	}()

	kind, err := b.waitStopOrAbort(ctx, runErr)
	if err != nil {
		cancel()
		<-b.runDone
		return err
	}
	cancel()
	<-b.runDone

	if kind == CoordAbort {
		b.fail(errors.WrapFatal(errors.ErrShuttingDown, "node", "Serve", "aborted by broker"))
		return nil
	}

	if err := b.transition(StateDraining); err != nil {
		b.fail(err)
		return err
	}
	discarded, err := b.handler.Drain(5 * time.Second)
	if err != nil {
		b.logger.Warn("drain incomplete", "discarded", discarded, "error", err)
	}
	if err := b.transition(StateDone); err != nil {
		b.fail(err)
		return err
	}
	b.reportStatus(ctx)
	return nil
}

func (b *Base) awaitCoordination(ctx context.Context, want CoordKind) error {
	msg, err := b.coord.Recv(ctx)
	if err != nil {
		return errors.Wrap(err, "node", "awaitCoordination", want.String())
	}
	if msg.Kind != want {
		return errors.WrapFatal(errors.ErrUndefinedState, "node", "awaitCoordination",
			"expected "+want.String()+", got "+msg.Kind.String())
	}
	return nil
}

// waitStopOrAbort parks until the broker sends STOP/ABORT or runErr
// reports that the Run loop faulted on its own (a non-transient device or
// publish error, per spec.md §7): either way the Node must stop waiting
// and let Serve unwind, rather than parking forever in StateError while
// the broker's only other view of the failure is the coordination channel
// going silent.
func (b *Base) waitStopOrAbort(ctx context.Context, runErr <-chan error) (CoordKind, error) {
	type recvResult struct {
		msg CoordinationMessage
		err error
	}
	recvCh := make(chan recvResult, 1)
	recv := func() {
		msg, err := b.coord.Recv(ctx)
		recvCh <- recvResult{msg, err}
	}
	go recv()

	for {
		select {
		case err := <-runErr:
			return 0, err
		case res := <-recvCh:
			if res.err != nil {
				return 0, errors.Wrap(res.err, "node", "waitStopOrAbort", "")
			}
			if res.msg.Kind == CoordStop || res.msg.Kind == CoordAbort {
				return res.msg.Kind, nil
			}
			go recv()
		}
	}
}

func (b *Base) reportStatus(ctx context.Context) {
	_ = b.coord.Send(ctx, CoordinationMessage{Kind: CoordStatus, NodeID: b.desc.NodeID})
}

// Descriptor returns the Node's topology descriptor.
func (b *Base) Descriptor() topology.NodeDescriptor {
	return b.desc
}
