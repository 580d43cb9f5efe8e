package storage

import (
	"sync"

	"github.com/emedia-lab/hermes/errors"
	"github.com/emedia-lab/hermes/pkg/buffer"
	"github.com/emedia-lab/hermes/sample"
)

// Ring is the per-stream ingest buffer. Producers and Consumers write
// Samples to a Ring; the flush scheduler drains it. Overflow is always a
// surfaced, fatal error (spec.md §3, §7) — Ring uses buffer.OverflowFail
// rather than any of the teacher's drop policies.
type Ring struct {
	streamID string
	buf      buffer.Buffer[sample.Sample]

	mu        sync.Mutex
	highWater int
	raisedAt  int // occupancy at which the last high-water event fired, 0 if none
}

// NewRing constructs a Ring for streamID with the given capacity and
// backpressure high-water mark (spec.md §4.3).
func NewRing(streamID string, capacity, highWater int) (*Ring, error) {
	buf, err := buffer.NewCircularBuffer[sample.Sample](capacity, buffer.WithOverflowPolicy[sample.Sample](buffer.OverflowFail))
	if err != nil {
		return nil, errors.Wrap(err, "storage", "NewRing", "create ring buffer")
	}
	return &Ring{streamID: streamID, buf: buf, highWater: highWater}, nil
}

// Push appends a Sample to the ring. Returns ErrStorageOverflow (wrapped
// Fatal) if the ring is at capacity.
func (r *Ring) Push(s sample.Sample) error {
	if err := r.buf.Write(s); err != nil {
		return errors.Wrap(err, "storage", "Ring.Push", "stream "+r.streamID)
	}
	return nil
}

// Drain removes up to max queued Samples for flushing, oldest first.
func (r *Ring) Drain(max int) []sample.Sample {
	return r.buf.ReadBatch(max)
}

// Occupancy returns the current queue depth.
func (r *Ring) Occupancy() int {
	return r.buf.Size()
}

// Capacity returns the ring's fixed capacity.
func (r *Ring) Capacity() int {
	return r.buf.Capacity()
}

// CrossedHighWater reports a fresh crossing of the configured high-water
// mark: it returns true on the first call that sees occupancy at or above
// the mark, and false on later calls until occupancy has dropped below it
// again, so the flush scheduler flushes early once per crossing.
func (r *Ring) CrossedHighWater() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	occ := r.buf.Size()
	crossed := occ >= r.highWater
	if crossed && r.raisedAt == 0 {
		r.raisedAt = occ
		return true
	}
	if !crossed {
		r.raisedAt = 0
	}
	return false
}

// StreamID returns the identifier of the stream this ring buffers.
func (r *Ring) StreamID() string {
	return r.streamID
}
