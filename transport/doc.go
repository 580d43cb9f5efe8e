// Package transport implements the wire protocol and delivery drivers
// described in spec.md §6: a length-prefixed control plane carrying
// ANNOUNCE/SYNC_PROBE/SYNC_REPLY/SYNC_OK/READY/START/DRAIN/STOP/STATUS/ERROR
// messages, and a data plane carrying topic/publisher_id/seq/
// reference_ts_ns/payload sample envelopes.
//
// Three drivers share the same envelope encoding:
//
//   - wire.go: the primary driver, a raw net.TCP connection per peer,
//     grounded in natsclient/client.go's connection-lifecycle shape
//     (circuit breaker, atomic connection status, health-check goroutine)
//     with nats.Conn replaced by net.Conn.
//   - inproc.go: intra-host fan-out over plain Go channels; Publish holds
//     only a read lock on the subscriber list.
//   - natsrelay.go: an optional secondary driver selected by
//     transport.driver=nats, publishing the same envelope bytes on NATS
//     subjects via natsclient.Client.
package transport
