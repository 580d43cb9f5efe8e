// Package hermes implements a distributed sensor-fusion framework: a
// per-host Broker discovers peers, negotiates a shared reference clock,
// launches local Nodes (producers, consumers, pipelines) against that
// clock, and persists their samples for the lifetime of a session.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│              Broker                  │  BOOT -> DISCOVER -> SYNC ->
//	│  (broker/)                           │  READY -> RUN -> DRAIN -> STOP
//	└─────────────────────────────────────┘
//	           ↓ coordinates
//	┌─────────────────────────────────────┐
//	│              Nodes                   │  Producer, Consumer, Pipeline
//	│  (node/)                             │  INIT -> READY -> RUNNING ->
//	│                                       │  DRAINING -> DONE
//	└─────────────────────────────────────┘
//	           ↓ exchange samples via
//	┌─────────────────────────────────────┐
//	│       Transport + Storage             │  in-process bus, NATS relay,
//	│  (transport/, storage/, sample/)      │  ring buffers, flush-to-disk
//	└─────────────────────────────────────┘
//
// # Packages
//
// Core:
//   - broker: per-host orchestration FSM and session lifecycle
//   - node: per-role FSM (Producer/Consumer/Pipeline) and coordination
//     protocol between a Broker and its Nodes
//   - topology: descriptors for brokers, nodes, and sessions
//   - sample: the wire-level sample and stream types Nodes exchange
//   - clock: reference clock offset negotiation from one probe exchange
//   - delay: pluggable network-delay estimators
//
// Transport and persistence:
//   - transport: in-process pub/sub bus and the NATS-backed relay driver
//   - natsclient: NATS connection lifecycle, circuit breaker, pub/sub
//   - storage: ring buffers, flush engine, and on-disk session containers
//
// Operator surface:
//   - config: configuration loading, JSON Schema validation, and defaults
//   - gateway/status: read-only HTTP/websocket FSM status snapshot
//   - keyboard: interactive stdin commands for a running Broker
//   - cmd/hermesd: the broker process entry point
//   - cmd/hermes-latencyharness: standalone producer/consumer latency rig
//
// Ambient stack:
//   - errors: structured, classifiable error wrapping (fatal/transient/invalid)
//   - component: discoverable component metadata and health reporting
//   - metric: Prometheus metrics registry
//   - pkg/*: buffer, cache, retry, worker, timestamp, security, tlsutil, acme
//
// # Design principles
//
// Separation of concerns:
//   - Orchestration (Broker FSM) != data movement (transport/storage)
//   - Role behavior (node.RoleHandler) != coordination protocol (node.Base)
//
// Bounded resources:
//   - Storage is a bounded ring buffer with an explicit high-water mark;
//     overflow is a reported condition (spec.md exit code 4), not silent loss.
//
// Testability:
//   - Explicit dependencies, no globals
//   - In-process transport and emulator devices let FSM and protocol tests
//     run without real hardware or a NATS server
package hermes
