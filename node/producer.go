package node

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/emedia-lab/hermes/clock"
	"github.com/emedia-lab/hermes/delay"
	"github.com/emedia-lab/hermes/errors"
	"github.com/emedia-lab/hermes/sample"
	"github.com/emedia-lab/hermes/topology"
	"github.com/emedia-lab/hermes/transport"
)

// Publisher is the data-plane sink a Producer or Pipeline writes to. Both
// transport.Bus and a transport.WireConn adapter satisfy it.
type Publisher interface {
	Publish(env transport.DataEnvelope) error
}

// Producer reads from a Device and publishes samples stamped with the
// negotiated reference clock corrected by the stream's delay estimator
// (spec.md §4.2, §4.4):
//
//	reference_ts = reference_time() - delay_estimate(stream)
type Producer struct {
	*Base

	stream    sample.Stream
	device    Device
	clock     *clock.Clock
	estimator delay.Estimator
	publisher Publisher
	seq       atomic.Uint64
}

// NewProducer constructs a Producer Node and wires it into the FSM via Base.
func NewProducer(
	desc topology.NodeDescriptor,
	coord CoordinationChannel,
	stream sample.Stream,
	device Device,
	clk *clock.Clock,
	estimator delay.Estimator,
	publisher Publisher,
	logger *slog.Logger,
) *Producer {
	p := &Producer{
		stream:    stream,
		device:    device,
		clock:     clk,
		estimator: estimator,
		publisher: publisher,
	}
	p.Base = NewBase(desc, coord, p, logger)
	return p
}

// Prepare opens the device and performs a bounded self-test read, per
// spec.md §4.2's "opens outbound data socket and runs a short self-test."
func (p *Producer) Prepare(ctx context.Context) error {
	if err := p.device.Open(); err != nil {
		return errors.WrapFatal(errors.ErrDeviceOpen, "node.Producer", "Prepare", err.Error())
	}
	testCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := p.device.Read(testCtx); err != nil && testCtx.Err() == nil {
		return errors.WrapFatal(errors.ErrDeviceOpen, "node.Producer", "Prepare", "self-test read failed: "+err.Error())
	}
	return nil
}

// Run is the production loop: it must not block the coordination reply
// path (spec.md §4.2), so it runs on the dedicated goroutine Base.Serve
// spawns for it.
func (p *Producer) Run(ctx context.Context) error {
	for {
		s, err := p.device.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.IsTransient(err) {
				p.logger.Warn("device read failed, dropping sample", "error", err)
				continue
			}
			return errors.WrapFatal(errors.ErrDeviceOpen, "node.Producer", "Run", "non-transient device fault: "+err.Error())
		}

		meta := delay.Metadata{StreamID: p.stream.StreamID, PayloadLen: len(s.Payload())}
		correctedTS := p.clock.ReferenceTime() - p.estimator.Estimate(meta)
		corrected := sample.New(p.stream.StreamID, correctedTS, s.Payload())
		if devTS, ok := s.DeviceTS(); ok {
			corrected = corrected.WithDeviceTS(devTS)
		}

		env := transport.DataEnvelope{
			Topic:         p.stream.StreamID,
			PublisherID:   p.desc.GlobalID(),
			Seq:           p.seq.Add(1) - 1,
			ReferenceTSNS: correctedTS,
			Payload:       corrected.Payload(),
		}
		if err := p.publisher.Publish(env); err != nil {
			p.logger.Error("publish failed", "stream", p.stream.StreamID, "error", err)
			return errors.Wrap(err, "node.Producer", "Run", "publish")
		}
	}
}

// Drain closes the device. Producers hold no internal queue to flush;
// anything already published is Storage's responsibility.
func (p *Producer) Drain(_ time.Duration) (int, error) {
	if err := p.device.Close(); err != nil {
		return 0, errors.Wrap(err, "node.Producer", "Drain", "close device")
	}
	return 0, nil
}
