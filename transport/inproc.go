package transport

import (
	"sync"

	"github.com/emedia-lab/hermes/errors"
)

// inprocCapacity bounds how far a slow local subscriber can lag before
// Publish blocks on it.
const inprocCapacity = 1024

// Bus fans data-plane envelopes out to every local subscriber of a topic,
// intra-host, over plain Go channels with no locks on the publish fast
// path once the subscriber list for a topic has been snapshotted
// (spec.md §5).
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]chan DataEnvelope
}

// NewBus constructs an empty intra-host bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]chan DataEnvelope)}
}

// Subscribe returns a channel receiving every envelope subsequently
// published on topic. The returned channel is buffered; a subscriber that
// falls behind by more than inprocCapacity envelopes stalls the
// publisher, matching the rest of HERMES's "overflow is never silent"
// posture rather than silently dropping local fan-out traffic.
func (b *Bus) Subscribe(topic string) <-chan DataEnvelope {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan DataEnvelope, inprocCapacity)
	b.subs[topic] = append(b.subs[topic], ch)
	return ch
}

// Publish delivers env to every current subscriber of env.Topic.
func (b *Bus) Publish(env DataEnvelope) error {
	if env.Topic == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "transport", "Bus.Publish", "topic cannot be empty")
	}

	b.mu.RLock()
	subs := b.subs[env.Topic]
	b.mu.RUnlock()

	for _, ch := range subs {
		ch <- env
	}
	return nil
}

// Close closes every subscriber channel across every topic. Callers must
// stop publishing before calling Close.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.subs = make(map[string][]chan DataEnvelope)
}
