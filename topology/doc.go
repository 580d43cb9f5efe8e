// Package topology holds the descriptors that identify brokers, nodes, and
// sessions within a HERMES deployment.
//
// Descriptors are plain, immutable-by-convention value types: a Broker
// publishes snapshots of them at state transitions (see package broker)
// rather than handing out live references, matching the "other threads
// read via snapshotted copies" rule for shared broker state.
package topology
