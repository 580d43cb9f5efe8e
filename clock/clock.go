package clock

import (
	"sync/atomic"
	"time"
)

// Clock tracks the per-process offset_ns used to convert local wall-clock
// readings into reference time. The zero value is a valid reference clock
// (offset zero), matching the reference broker's own clock.
//
// Clock is safe for concurrent use: Nodes read the offset on every sample
// while the owning Broker's SYNC handler is the sole writer.
type Clock struct {
	offsetNS atomic.Int64
}

// New returns a Clock with a zero offset.
func New() *Clock {
	return &Clock{}
}

// SetOffset installs the offset, in nanoseconds, to add to local wall-clock
// readings to obtain reference time.
func (c *Clock) SetOffset(offsetNS int64) {
	c.offsetNS.Store(offsetNS)
}

// Offset returns the currently installed offset_ns.
func (c *Clock) Offset() int64 {
	return c.offsetNS.Load()
}

// Now returns the current local wall-clock reading in nanoseconds. Exposed
// separately from ReferenceTime so the round-trip negotiator can sample it
// directly.
func (c *Clock) Now() int64 {
	return time.Now().UnixNano()
}

// ReferenceTime returns local_monotonic_time + offset_ns (spec.md §3): the
// process's current estimate of the shared reference-clock origin.
func (c *Clock) ReferenceTime() int64 {
	return c.Now() + c.offsetNS.Load()
}
