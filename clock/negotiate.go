package clock

import (
	"github.com/emedia-lab/hermes/errors"
)

// Probe carries the four timestamps of a single SYNC_PROBE/SYNC_REPLY
// exchange, all in local-clock nanoseconds (spec.md §4.1, §6 wire
// protocol):
//
//	T0: probe sent by the requesting broker
//	T1: probe received by the reference broker
//	T2: reply sent by the reference broker
//	T3: reply received by the requesting broker
//
// The reference broker's own reference_time origin is carried in the
// SYNC_REPLY payload as ReferenceOriginNS. EstimateOffset does not read it:
// the reference broker's offset is zero, so the offset a non-reference
// broker installs is the clock delta derived from T0..T3 alone.
type Probe struct {
	T0               int64
	T1               int64
	T2               int64
	T3               int64
	ReferenceOriginNS int64
}

// EstimateOffset applies the standard symmetric round-trip estimator to a
// single exchange and returns the offset_ns a non-reference broker should
// install, plus the estimated round-trip delay (for sync-tolerance
// diagnostics). PTP handles finer-grained alignment beneath this layer, so
// HERMES needs only one exchange per SYNC phase (spec.md §4.1).
func EstimateOffset(p Probe) (offsetNS int64, roundTripNS int64, err error) {
	if p.T3 < p.T0 {
		return 0, 0, errors.WrapInvalid(errors.ErrInvalidData, "clock", "EstimateOffset", "reply received before probe was sent")
	}
	if p.T2 < p.T1 {
		return 0, 0, errors.WrapInvalid(errors.ErrInvalidData, "clock", "EstimateOffset", "reply sent before probe was received")
	}
	// clockDelta estimates (reference_clock - local_clock) at the midpoint
	// of the exchange, assuming symmetric transit delay.
	clockDelta := ((p.T1 - p.T0) + (p.T2 - p.T3)) / 2
	roundTripNS = (p.T3 - p.T0) - (p.T2 - p.T1)
	// The reference broker's offset is zero by definition, so its
	// reference_time origin already reflects its local clock: a
	// non-reference broker must add clockDelta to reach the same reading.
	return clockDelta, roundTripNS, nil
}

// WithinTolerance reports whether two offsets agree to within eps_ns, the
// configured sync tolerance (spec.md Property 3: "∀ host h:
// |offset_ns(h) - offset_ns(reference_host)| <= eps").
func WithinTolerance(a, b, epsNS int64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= epsNS
}
