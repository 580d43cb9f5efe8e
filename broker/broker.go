package broker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emedia-lab/hermes/clock"
	"github.com/emedia-lab/hermes/config"
	"github.com/emedia-lab/hermes/delay"
	"github.com/emedia-lab/hermes/errors"
	"github.com/emedia-lab/hermes/gateway/status"
	"github.com/emedia-lab/hermes/keyboard"
	"github.com/emedia-lab/hermes/metric"
	"github.com/emedia-lab/hermes/natsclient"
	"github.com/emedia-lab/hermes/node"
	"github.com/emedia-lab/hermes/pkg/buffer"
	"github.com/emedia-lab/hermes/sample"
	"github.com/emedia-lab/hermes/storage"
	"github.com/emedia-lab/hermes/topology"
	"github.com/emedia-lab/hermes/transport"
)

// Broker drives the per-host orchestration FSM (spec.md §4.1): discover
// peers, negotiate a reference clock, launch local Nodes, persist their
// data for the session's lifetime, and bring everything down in order.
type Broker struct {
	cfg    *config.Config
	logger *slog.Logger

	clk        *clock.Clock
	bus        *transport.Bus
	natsClient *natsclient.Client
	relay      *transport.NATSRelay
	delayReg   *delay.Registry
	listener   *transport.Listener
	kb         *keyboard.Reader

	container *storage.Container
	engine    *storage.Engine

	metrics    *metric.MetricsRegistry
	overflowCh chan error

	nodes        *nodeManager
	statusServer *status.Server

	sessionID string

	mu      sync.Mutex
	state   State
	desc    topology.BrokerDescriptor
	session topology.Session
	peers   map[string]*peerLink
	runErr  error
}

// New constructs a Broker from cfg. stdin feeds the keyboard reader; pass
// os.Stdin in production.
func New(cfg *config.Config, stdin io.Reader, logger *slog.Logger) (*Broker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapFatal(err, "broker", "New", "invalid configuration")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("broker_id", cfg.BrokerID)

	store, err := storage.NewLocalFileStore(cfg.Storage.RootDir)
	if err != nil {
		return nil, errors.Wrap(err, "broker", "New", "open file store")
	}
	sessionID := fmt.Sprintf("%s-%s", cfg.BrokerID, uuid.NewString())
	container, err := storage.NewContainer(cfg.Storage.RootDir, sessionID, store)
	if err != nil {
		return nil, errors.Wrap(err, "broker", "New", "open container")
	}

	b := &Broker{
		cfg:        cfg,
		logger:     logger,
		clk:        clock.New(),
		bus:        transport.NewBus(),
		delayReg:   delay.NewRegistry(),
		kb:         keyboard.New(stdin, logger),
		container:  container,
		nodes:      newNodeManager(logger),
		state:      StateBoot,
		peers:      make(map[string]*peerLink),
		sessionID:  sessionID,
		metrics:    metric.NewMetricsRegistry(),
		overflowCh: make(chan error, 1),
	}
	b.engine = storage.NewEngine(container, storage.EngineOptions{
		FlushInterval:   cfg.Storage.FlushInterval(),
		RingCapacity:    cfg.Storage.HighWater * 5 / 4,
		HighWater:       cfg.Storage.HighWater,
		MetricsRegistry: b.metrics,
	}, b.onOverflow)

	if err := b.delayReg.Register("constant", func(p map[string]any) (delay.Estimator, error) {
		ns, _ := p["ns"].(int64)
		return delay.Constant(ns), nil
	}); err != nil {
		return nil, err
	}

	if len(cfg.NATS.URLs) > 0 {
		nc, err := natsclient.NewClient(cfg.NATS.URLs[0],
			natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
			natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
			natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password),
			natsclient.WithToken(cfg.NATS.Token),
		)
		if err != nil {
			return nil, errors.Wrap(err, "broker", "New", "construct NATS client")
		}
		if err := nc.Connect(context.Background()); err != nil {
			return nil, errors.Wrap(err, "broker", "New", "connect NATS client")
		}
		b.natsClient = nc
		if cfg.Transport.Driver == "nats" {
			b.relay = transport.NewNATSRelayFromClient(nc, cfg.BrokerID)
		}
	}

	if cfg.Status.Enabled {
		srv, err := status.NewServer(cfg.Status.Gateway, b, b.natsClient, b.metrics, logger)
		if err != nil {
			return nil, errors.Wrap(err, "broker", "New", "status gateway")
		}
		if err := srv.Setup(); err != nil {
			return nil, errors.Wrap(err, "broker", "New", "status gateway setup")
		}
		b.statusServer = srv
	}

	return b, nil
}

// dataPlane is the data-plane driver a Producer, Consumer, or Pipeline
// publishes to and subscribes through. transport.Bus and transport.NATSRelay
// both satisfy it (spec.md §5.4, config.TransportConfig).
type dataPlane interface {
	Publish(env transport.DataEnvelope) error
	Subscribe(topic string) <-chan transport.DataEnvelope
}

// dataBus returns the configured data-plane driver: the NATS relay when
// transport.driver=nats named a reachable NATS deployment, the in-process
// Bus otherwise.
func (b *Broker) dataBus() dataPlane {
	if b.relay != nil {
		return b.relay
	}
	return b.bus
}

// onOverflow is Engine's backpressure callback (spec.md §4.3, §7): a ring
// at capacity is fatal for the session, so beyond logging it must also
// reach doRun, which otherwise only watches ctx and would never learn the
// session has to abort into DRAIN (scenario E3).
func (b *Broker) onOverflow(streamID string, err error) {
	wrapped := errors.WrapFatal(errors.ErrStorageOverflow, "broker", "onOverflow", "stream "+streamID+": "+err.Error())
	b.logger.Error("storage ring overflow", "stream", streamID, "error", err)
	select {
	case b.overflowCh <- wrapped:
	default:
	}
}

func (b *Broker) transition(to State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !canTransition(b.state, to) {
		return errors.WrapFatal(errors.ErrUndefinedState, "broker", "transition", b.state.String()+" -> "+to.String())
	}
	b.logger.Info("broker state transition", "from", b.state.String(), "to", to.String())
	b.state = to
	if b.metrics != nil {
		b.metrics.CoreMetrics().RecordServiceStatus("broker."+b.cfg.BrokerID, int(to))
	}
	return nil
}

// State returns the Broker's current FSM state.
func (b *Broker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Run drives the Broker through its full FSM: BOOT, DISCOVER, SYNC, READY,
// RUN (blocking until ctx is cancelled or a fatal condition like storage
// overflow cuts RUN short), DRAIN, STOP. It returns nil on a clean
// shutdown, the error that forced FAILED, or — after a normal DRAIN/STOP —
// the fatal condition doRun observed mid-RUN (spec.md §4.3/§7, scenario
// E3), so callers can still map it to an exit code.
func (b *Broker) Run(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"boot", b.doBoot},
		{"discover", b.doDiscover},
		{"sync", b.doSync},
		{"ready", b.doReady},
		{"run", b.doRun},
		{"drain", b.doDrain},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			b.transition(StateFailed)
			b.nodes.abortAll(ctx)
			return errors.Wrap(err, "broker", "Run", step.name)
		}
	}
	if err := b.transition(StateStop); err != nil {
		return err
	}
	if b.runErr != nil {
		return errors.Wrap(b.runErr, "broker", "Run", "run")
	}
	return nil
}

func (b *Broker) doBoot(ctx context.Context) error {
	ln, err := transport.Listen(b.cfg.ControlAddr)
	if err != nil {
		return err
	}
	b.listener = ln

	for _, nc := range b.cfg.Nodes {
		if err := b.buildNode(nc); err != nil {
			return errors.Wrap(err, "broker", "doBoot", "node "+nc.NodeID)
		}
	}
	return b.transition(StateDiscover)
}

func (b *Broker) doDiscover(ctx context.Context) error {
	links, err := discoverPeers(ctx, b.listener, b.cfg.BrokerID, b.cfg.ClockEligible, b.cfg.Peers, b.cfg.Sync.DiscoverTimeout())
	if err != nil {
		return err
	}
	b.peers = links
	return b.transition(StateSync)
}

func (b *Broker) doSync(ctx context.Context) error {
	candidates := []string{}
	if b.cfg.ClockEligible {
		candidates = append(candidates, b.cfg.BrokerID)
	}
	for id, link := range b.peers {
		if link.clockEligible {
			candidates = append(candidates, id)
		}
	}
	reference, err := topology.ElectReference(candidates)
	if err != nil {
		return err
	}

	isReference := reference == b.cfg.BrokerID
	b.desc = topology.BrokerDescriptor{
		BrokerID:         b.cfg.BrokerID,
		Endpoints:        topology.Endpoints{Control: b.cfg.ControlAddr, Data: b.cfg.DataAddr},
		IsClockReference: isReference,
	}

	if isReference {
		var wg sync.WaitGroup
		errs := make(chan error, len(b.peers))
		for _, link := range b.peers {
			wg.Add(1)
			go func(l *peerLink) {
				defer wg.Done()
				if err := serveSyncProbe(l.conn, b.cfg.BrokerID, b.clk); err != nil {
					errs <- err
				}
			}(link)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			return errors.WrapFatal(err, "broker", "doSync", "serving peer sync")
		}
	} else {
		link, ok := b.peers[reference]
		if !ok {
			return errors.WrapFatal(errors.ErrSyncAmbiguous, "broker", "doSync", "reference broker "+reference+" not among discovered peers")
		}
		offsetNS, roundTripNS, err := requestSync(link.conn, b.cfg.BrokerID, b.clk)
		if err != nil {
			return err
		}
		b.logger.Info("clock synced", "reference", reference, "offset_ns", offsetNS, "round_trip_ns", roundTripNS)
	}

	return b.transition(StateReady)
}

func (b *Broker) doReady(ctx context.Context) error {
	streams := make([]sample.Stream, 0, len(b.cfg.Nodes))
	for _, nc := range b.cfg.Nodes {
		for _, id := range append(append([]string{}, nc.OutputStreams...), nc.InputStreams...) {
			if _, exists := findStream(streams, id); !exists {
				streams = append(streams, streamFromNodeConfig(nc, id))
			}
		}
	}

	peerIDs := make([]string, 0, len(b.peers)+1)
	peerIDs = append(peerIDs, b.cfg.BrokerID)
	for id := range b.peers {
		peerIDs = append(peerIDs, id)
	}

	b.session = topology.Session{
		SessionID:            b.sessionID,
		StartedAtReferenceNS: b.clk.ReferenceTime(),
		ParticipatingBrokers: peerIDs,
		Streams:              streams,
	}
	if err := b.session.Validate(); err != nil {
		return err
	}
	if err := b.container.WriteMetadata(ctx, storage.ContainerMetadata{
		SessionID:            b.session.SessionID,
		StartedAtReferenceNS: b.session.StartedAtReferenceNS,
		Brokers:              b.session.ParticipatingBrokers,
		Streams:              b.session.Streams,
	}); err != nil {
		return err
	}

	for _, nc := range b.cfg.Nodes {
		for _, id := range append(append([]string{}, nc.OutputStreams...), nc.InputStreams...) {
			st, _ := findStream(streams, id)
			if err := b.engine.RegisterStream(nc.NodeID, st, b.cfg.Storage.VideoCodec); err != nil {
				return err
			}
		}
	}

	if err := b.nodes.prepareAll(ctx, b.cfg.Sync.SyncTimeout()); err != nil {
		return err
	}
	return b.transition(StateRun)
}

func findStream(streams []sample.Stream, id string) (sample.Stream, bool) {
	for _, s := range streams {
		if s.StreamID == id {
			return s, true
		}
	}
	return sample.Stream{}, false
}

func streamFromNodeConfig(nc config.NodeConfig, streamID string) sample.Stream {
	rate := 100.0
	if r, ok := nc.Params["rate_hz"].(float64); ok && r > 0 {
		rate = r
	}
	isVideo, _ := nc.Params["video"].(bool)
	return sample.Stream{StreamID: streamID, NodeID: nc.NodeID, NominalRate: rate, IsVideo: isVideo}
}

func (b *Broker) doRun(ctx context.Context) error {
	engineCtx, engineCancel := context.WithCancel(ctx)
	defer engineCancel()

	engineDone := make(chan error, 1)
	go func() { engineDone <- b.engine.Run(engineCtx) }()

	kbDone := make(chan error, 1)
	go func() { kbDone <- b.kb.Run(engineCtx) }()
	b.subscribeKeyboard(engineCtx)

	if b.statusServer != nil {
		go func() { _ = b.statusServer.Start(engineCtx, nil) }()
	}

	b.nodes.launchAll(ctx)
	if err := b.nodes.startAll(ctx, b.cfg.Sync.SyncTimeout()); err != nil {
		engineCancel()
		<-engineDone
		<-kbDone
		return err
	}

	// A storage overflow or a Node faulting mid-RUN (spec.md §4.3/§7) must
	// cut RUN short exactly like ctx cancellation does, so the host still
	// walks DRAIN -> STOP instead of hanging on <-ctx.Done() forever.
	select {
	case <-ctx.Done():
	case err := <-b.overflowCh:
		b.runErr = err
	case err := <-b.nodes.firstFailure():
		b.runErr = err
	}
	engineCancel()
	<-engineDone
	<-kbDone
	return b.transition(StateDrain)
}

// subscribeKeyboard registers every locally-hosted Node, Storage, and the
// Broker itself as a keyboard fan-out consumer (spec.md §4.5, invariant
// 6), so operator keystrokes actually reach a live subscriber instead of
// only being broadcast to zero consumers in production. Each subscriber
// runs until it sees the shutdown sentinel or ctx is cancelled.
func (b *Broker) subscribeKeyboard(ctx context.Context) {
	names := make([]string, 0, len(b.nodes.nodes)+2)
	names = append(names, "broker."+b.cfg.BrokerID, "storage")
	for _, n := range b.nodes.nodes {
		names = append(names, "node."+n.desc.NodeID)
	}

	for _, name := range names {
		feed, err := b.kb.Subscribe(name)
		if err != nil {
			b.logger.Warn("keyboard subscribe failed", "subscriber", name, "error", err)
			continue
		}
		go b.consumeKeyboard(ctx, name, feed)
	}
}

// consumeKeyboard drains one subscriber's feed until the shutdown
// sentinel arrives or ctx is cancelled. feed.Read is non-blocking, so a
// short poll interval stands in for the dedicated worker thread each
// local consumer would run in a single-threaded host (spec.md §4.5).
func (b *Broker) consumeKeyboard(ctx context.Context, name string, feed buffer.Buffer[string]) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				line, ok := feed.Read()
				if !ok {
					break
				}
				if keyboard.IsShutdownLine(line) {
					return
				}
				b.logger.Debug("keyboard line delivered", "subscriber", name, "line", line)
			}
		}
	}
}

func (b *Broker) doDrain(ctx context.Context) error {
	b.kb.Shutdown()
	deadline := b.cfg.Storage.DrainDeadline()

	unfinished := b.nodes.stopAll(ctx, deadline)
	for _, id := range unfinished {
		b.logger.Warn("node did not drain within deadline", "node_id", id)
	}

	unflushed, err := b.engine.Drain(deadline)
	if err != nil {
		b.logger.Warn("storage drain incomplete", "unflushed", unflushed, "error", err)
	}
	if err := b.engine.Close(); err != nil {
		return err
	}
	if err := b.container.CloseAll(); err != nil {
		return err
	}
	for _, link := range b.peers {
		link.conn.Close()
	}
	if err := b.listener.Close(); err != nil {
		return err
	}
	return nil
}

// buildNode constructs the Node (Producer, Consumer, or Pipeline) named by
// nc and registers it with the node manager. The "emulator" driver is the
// only built-in Device binding; any other driver name is rejected, since
// HERMES itself never prescribes a concrete device binding (spec.md §4.2).
func (b *Broker) buildNode(nc config.NodeConfig) error {
	role, ok := topology.ParseRole(nc.Role)
	if !ok {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "broker", "buildNode", "unknown role: "+nc.Role)
	}
	desc := topology.NodeDescriptor{
		NodeID: nc.NodeID, BrokerID: b.cfg.BrokerID, Role: role,
		InputStreams: nc.InputStreams, OutputStreams: nc.OutputStreams, Process: nc.Process,
	}
	if err := desc.Validate(); err != nil {
		return err
	}

	estimatorName := nc.DelayEstimator
	if estimatorName == "" {
		estimatorName = b.cfg.DelayEstimator
	}
	estimator := delay.Zero
	if estimatorName != "" {
		if est, err := b.delayReg.Build(estimatorName, nc.Params); err == nil {
			estimator = est
		}
	}

	brokerEnd, nodeEnd := node.NewChanCoordinationPair(8)

	var serve func(ctx context.Context) error
	var status nodeStatus
	switch role {
	case topology.RoleProducer:
		if nc.Driver != "emulator" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "broker", "buildNode", "unknown device driver: "+nc.Driver)
		}
		streamID := nc.OutputStreams[0]
		rate := 100.0
		if r, ok := nc.Params["rate_hz"].(float64); ok && r > 0 {
			rate = r
		}
		payloadLen := 8
		if l, ok := nc.Params["payload_len"].(float64); ok && l > 0 {
			payloadLen = int(l)
		}
		device := node.NewEmulatorDevice(streamID, rate, payloadLen)
		stream := streamFromNodeConfig(nc, streamID)
		p := node.NewProducer(desc, nodeEnd, stream, device, b.clk, estimator, b.dataBus(), b.logger)
		p.SetMetrics(b.metrics)
		serve, status = p.Serve, p
	case topology.RoleConsumer:
		subs := make(map[string]<-chan transport.DataEnvelope, len(nc.InputStreams))
		for _, id := range nc.InputStreams {
			subs[id] = b.dataBus().Subscribe(id)
		}
		sink := func(streamID string, s sample.Sample) error {
			return b.engine.Push(streamID, s)
		}
		c := node.NewConsumer(desc, nodeEnd, subs, sink, b.logger)
		c.SetMetrics(b.metrics)
		serve, status = c.Serve, c
	case topology.RolePipeline:
		subs := make(map[string]<-chan transport.DataEnvelope, len(nc.InputStreams))
		for _, id := range nc.InputStreams {
			subs[id] = b.dataBus().Subscribe(id)
		}
		transform, err := pipelineTransform(nc)
		if err != nil {
			return err
		}
		pl := node.NewPipeline(desc, nodeEnd, subs, transform, b.dataBus(), b.logger)
		pl.SetMetrics(b.metrics)
		serve, status = pl.Serve, pl
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "broker", "buildNode", "unsupported role: "+nc.Role)
	}

	b.nodes.register(desc, brokerEnd, status, serve)
	return nil
}

// pipelineTransform resolves a Pipeline's transform function. Only the
// identity transform is built in; a real deployment supplies one via a
// driver plugin, which HERMES's core deliberately does not prescribe.
func pipelineTransform(nc config.NodeConfig) (node.Transform, error) {
	outputs := nc.OutputStreams
	if len(outputs) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "broker", "pipelineTransform", "pipeline requires output_streams")
	}
	out := outputs[0]
	return func(_ string, s sample.Sample) (map[string]sample.Sample, error) {
		return map[string]sample.Sample{out: sample.New(out, s.HostArrivalTS(), s.Payload())}, nil
	}, nil
}
