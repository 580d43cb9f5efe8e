package node

import (
	"context"
	"math/rand"
	"time"

	"github.com/emedia-lab/hermes/sample"
)

// EmulatorDevice is a synthetic Device that manufactures samples at a
// fixed rate instead of reading real hardware, grounded on the
// sensor-emulator producer used by the original latency test harness.
// Configuring a Node with driver "emulator" selects this implementation.
type EmulatorDevice struct {
	streamID   string
	interval   time.Duration
	payloadLen int
	rng        *rand.Rand
}

// NewEmulatorDevice constructs an EmulatorDevice producing payloadLen-byte
// samples for streamID at rateHz samples/second.
func NewEmulatorDevice(streamID string, rateHz float64, payloadLen int) *EmulatorDevice {
	if rateHz <= 0 {
		rateHz = 1
	}
	if payloadLen <= 0 {
		payloadLen = 1
	}
	return &EmulatorDevice{
		streamID:   streamID,
		interval:   time.Duration(float64(time.Second) / rateHz),
		payloadLen: payloadLen,
		rng:        rand.New(rand.NewSource(1)),
	}
}

func (d *EmulatorDevice) Open() error { return nil }

func (d *EmulatorDevice) Read(ctx context.Context) (sample.Sample, error) {
	select {
	case <-time.After(d.interval):
	case <-ctx.Done():
		return sample.Sample{}, ctx.Err()
	}
	payload := make([]byte, d.payloadLen)
	d.rng.Read(payload)
	return sample.New(d.streamID, 0, payload), nil
}

func (d *EmulatorDevice) Close() error { return nil }
