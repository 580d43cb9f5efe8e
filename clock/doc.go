// Package clock implements the per-process reference clock described in
// spec.md §3-§4.1: a scalar offset_ns such that
//
//	reference_time = local_monotonic_time + offset_ns
//
// The reference broker's offset is always zero; every other broker
// computes its offset from a single SYNC_PROBE/SYNC_REPLY round trip with
// the reference broker, using the standard symmetric round-trip estimator
// (PTP handles finer alignment beneath this layer, so one exchange is
// sufficient here). Nodes inherit their owning broker's offset unchanged.
package clock
