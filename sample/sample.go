package sample

import (
	"fmt"

	"github.com/emedia-lab/hermes/errors"
)

// Sample is a single timestamped record on one stream (spec.md §3).
//
// HostArrivalTS is assigned at ingress using the process's negotiated
// reference clock (package clock), corrected by the stream's delay
// estimator. DeviceTS is an opaque secondary timestamp carried through
// unmodified; HERMES never interprets it. Sample is immutable once
// constructed: no setter exists for any field.
type Sample struct {
	streamID      string
	hostArrivalTS int64 // ns, reference_time() at ingress
	deviceTS      int64
	hasDeviceTS   bool
	payload       []byte
}

// New constructs a Sample. hostArrivalTS must already be corrected by the
// stream's delay estimator; Sample itself applies no correction.
func New(streamID string, hostArrivalTS int64, payload []byte) Sample {
	return Sample{streamID: streamID, hostArrivalTS: hostArrivalTS, payload: payload}
}

// WithDeviceTS returns a copy of s carrying the given opaque device
// timestamp.
func (s Sample) WithDeviceTS(ts int64) Sample {
	s.deviceTS = ts
	s.hasDeviceTS = true
	return s
}

// StreamID returns the owning stream's identifier.
func (s Sample) StreamID() string { return s.streamID }

// HostArrivalTS returns the reference-clock timestamp assigned at ingress.
func (s Sample) HostArrivalTS() int64 { return s.hostArrivalTS }

// DeviceTS returns the opaque secondary timestamp and whether one was set.
func (s Sample) DeviceTS() (int64, bool) { return s.deviceTS, s.hasDeviceTS }

// Payload returns the raw tabular tensor bytes or opaque video frame.
func (s Sample) Payload() []byte { return s.payload }

// Validate checks that the sample carries the minimum required fields.
// session-relative invariants (reference_ts_ns >= started_at_reference_ns,
// monotonic seq-ordering) are checked by the caller, which has the session
// and sequence context a bare Sample does not.
func (s Sample) Validate() error {
	if s.streamID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Sample", "Validate", "stream_id cannot be empty")
	}
	if len(s.payload) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "Sample", "Validate", "payload cannot be empty")
	}
	if s.hostArrivalTS < 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "Sample", "Validate",
			fmt.Sprintf("host_arrival_ts cannot be negative, got %d", s.hostArrivalTS))
	}
	return nil
}
