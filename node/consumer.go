package node

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/emedia-lab/hermes/errors"
	"github.com/emedia-lab/hermes/sample"
	"github.com/emedia-lab/hermes/topology"
	"github.com/emedia-lab/hermes/transport"
)

// Sink receives samples a Consumer or Pipeline has decoded off the wire,
// typically storage.Engine.Push.
type Sink func(streamID string, s sample.Sample) error

// Consumer subscribes to a set of topics and hands every delivered sample
// to a Sink (spec.md §4.2).
type Consumer struct {
	*Base

	subscriptions map[string]<-chan transport.DataEnvelope
	sink          Sink

	seqMu  sync.Mutex
	lastSeq map[string]uint64
	seenSeq map[string]bool
}

// NewConsumer constructs a Consumer Node. subscriptions maps each input
// stream ID to the channel it is delivered on (transport.Bus.Subscribe, or
// an adapter over transport.WireConn.RecvData).
func NewConsumer(
	desc topology.NodeDescriptor,
	coord CoordinationChannel,
	subscriptions map[string]<-chan transport.DataEnvelope,
	sink Sink,
	logger *slog.Logger,
) *Consumer {
	c := &Consumer{
		subscriptions: subscriptions,
		sink:          sink,
		lastSeq:       make(map[string]uint64),
		seenSeq:       make(map[string]bool),
	}
	c.Base = NewBase(desc, coord, c, logger)
	return c
}

// Prepare validates that every declared input stream has a subscription.
func (c *Consumer) Prepare(_ context.Context) error {
	for _, streamID := range c.desc.InputStreams {
		if _, ok := c.subscriptions[streamID]; !ok {
			return errors.WrapFatal(errors.ErrInvalidConfig, "node.Consumer", "Prepare",
				"no subscription registered for input stream "+streamID)
		}
	}
	return nil
}

// Run fans in every subscribed channel and hands each envelope to the Sink.
func (c *Consumer) Run(ctx context.Context) error {
	errs := make(chan error, len(c.subscriptions)+1)

	for streamID, ch := range c.subscriptions {
		go c.consumeOne(ctx, streamID, ch, errs)
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errs:
		return err
	}
}

func (c *Consumer) consumeOne(ctx context.Context, streamID string, ch <-chan transport.DataEnvelope, errs chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			c.checkSequence(streamID, env.Seq)
			s := sample.New(streamID, env.ReferenceTSNS, env.Payload)
			if err := c.sink(streamID, s); err != nil {
				select {
				case errs <- errors.Wrap(err, "node.Consumer", "consumeOne", streamID):
				default:
				}
				return
			}
		}
	}
}

// Drain is a no-op: a Consumer holds no buffered state beyond the Sink's
// own queue, which Storage's Engine.Drain flushes on the Broker's behalf.
func (c *Consumer) Drain(_ time.Duration) (int, error) {
	return 0, nil
}

// checkSequence records a sequence-gap metric when env.Seq does not
// immediately follow the last sequence number seen for streamID, the
// symptom a dropped or reordered envelope leaves on the wire.
func (c *Consumer) checkSequence(streamID string, seq uint64) {
	c.seqMu.Lock()
	prev, seen := c.lastSeq[streamID], c.seenSeq[streamID]
	c.lastSeq[streamID] = seq
	c.seenSeq[streamID] = true
	c.seqMu.Unlock()

	if seen && seq != prev+1 && c.metrics != nil {
		c.metrics.CoreMetrics().RecordSequenceGap(streamID)
	}
}
