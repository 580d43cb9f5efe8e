// Package status serves a read-only view of a running broker: a JSON
// snapshot of the broker and node FSMs at /status, and a websocket feed at
// /ws that relays FSM transitions and component logs as they happen.
//
// The gateway does not participate in the control or data plane. It
// subscribes to the same NATS subjects the broker and component.Logger
// already publish on (hermes.status.> and hermes.logs.>) and relays them
// to connected clients; it never issues commands back into the system.
package status
