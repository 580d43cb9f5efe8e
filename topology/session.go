package topology

import (
	"github.com/emedia-lab/hermes/errors"
	"github.com/emedia-lab/hermes/sample"
)

// Session is created once when the Broker FSM enters RUN and is immutable
// thereafter (spec.md §3): StartedAtReferenceNS anchors every Sample's
// HostArrivalTS for the lifetime of the run, and Streams is the closed set of
// streams Storage and Transport will accept for this session.
type Session struct {
	SessionID            string          `json:"session_id"`
	StartedAtReferenceNS int64           `json:"started_at_reference_ns"`
	ParticipatingBrokers []string        `json:"participating_brokers"`
	Streams              []sample.Stream `json:"streams"`
}

// Validate checks that the session descriptor is complete enough to open
// for writes.
func (s Session) Validate() error {
	if s.SessionID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Session", "Validate", "session_id cannot be empty")
	}
	if len(s.ParticipatingBrokers) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Session", "Validate", "participating_brokers cannot be empty")
	}
	seen := make(map[string]struct{}, len(s.Streams))
	for _, st := range s.Streams {
		if err := st.Validate(); err != nil {
			return errors.Wrap(err, "Session", "Validate", "stream descriptor")
		}
		if _, dup := seen[st.StreamID]; dup {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Session", "Validate", "duplicate stream_id: "+st.StreamID)
		}
		seen[st.StreamID] = struct{}{}
	}
	return nil
}

// StreamByID looks up a stream descriptor participating in this session.
func (s Session) StreamByID(id string) (sample.Stream, bool) {
	for _, st := range s.Streams {
		if st.StreamID == id {
			return st, true
		}
	}
	return sample.Stream{}, false
}
