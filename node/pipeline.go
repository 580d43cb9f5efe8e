package node

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emedia-lab/hermes/errors"
	"github.com/emedia-lab/hermes/sample"
	"github.com/emedia-lab/hermes/topology"
	"github.com/emedia-lab/hermes/transport"
)

// Transform maps one input sample to zero or more output samples keyed by
// output stream ID. Per spec.md §9's open question, Transform alone
// decides whether to re-apply delay correction to derived reference_ts
// values; the core neither requires nor forbids it.
type Transform func(inputStreamID string, s sample.Sample) (map[string]sample.Sample, error)

// Pipeline both consumes and produces: it reads from a set of input
// streams, applies Transform, and republishes results on its declared
// output streams (spec.md §4.2).
type Pipeline struct {
	*Base

	subscriptions map[string]<-chan transport.DataEnvelope
	transform     Transform
	publisher     Publisher
	seq           atomic.Uint64

	seqMu   sync.Mutex
	lastSeq map[string]uint64
	seenSeq map[string]bool
}

// NewPipeline constructs a Pipeline Node.
func NewPipeline(
	desc topology.NodeDescriptor,
	coord CoordinationChannel,
	subscriptions map[string]<-chan transport.DataEnvelope,
	transform Transform,
	publisher Publisher,
	logger *slog.Logger,
) *Pipeline {
	pl := &Pipeline{
		subscriptions: subscriptions,
		transform:     transform,
		publisher:     publisher,
		lastSeq:       make(map[string]uint64),
		seenSeq:       make(map[string]bool),
	}
	pl.Base = NewBase(desc, coord, pl, logger)
	return pl
}

// Prepare validates that every declared input stream has a subscription.
func (pl *Pipeline) Prepare(_ context.Context) error {
	for _, streamID := range pl.desc.InputStreams {
		if _, ok := pl.subscriptions[streamID]; !ok {
			return errors.WrapFatal(errors.ErrInvalidConfig, "node.Pipeline", "Prepare",
				"no subscription registered for input stream "+streamID)
		}
	}
	return nil
}

// Run fans in every input stream, applies Transform, and republishes.
func (pl *Pipeline) Run(ctx context.Context) error {
	errs := make(chan error, len(pl.subscriptions)+1)

	for streamID, ch := range pl.subscriptions {
		go pl.consumeOne(ctx, streamID, ch, errs)
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errs:
		return err
	}
}

func (pl *Pipeline) consumeOne(ctx context.Context, streamID string, ch <-chan transport.DataEnvelope, errs chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			pl.checkSequence(streamID, env.Seq)
			in := sample.New(streamID, env.ReferenceTSNS, env.Payload)
			outputs, err := pl.transform(streamID, in)
			if err != nil {
				pl.logger.Warn("transform failed, dropping sample", "stream", streamID, "error", err)
				continue
			}
			for outStreamID, out := range outputs {
				if err := pl.publish(outStreamID, out); err != nil {
					select {
					case errs <- errors.Wrap(err, "node.Pipeline", "consumeOne", outStreamID):
					default:
					}
					return
				}
			}
		}
	}
}

func (pl *Pipeline) publish(streamID string, s sample.Sample) error {
	env := transport.DataEnvelope{
		Topic:         streamID,
		PublisherID:   pl.desc.GlobalID(),
		Seq:           pl.seq.Add(1) - 1,
		ReferenceTSNS: s.HostArrivalTS(),
		Payload:       s.Payload(),
	}
	return pl.publisher.Publish(env)
}

// Drain is a no-op: a Pipeline holds no buffered state of its own.
func (pl *Pipeline) Drain(_ time.Duration) (int, error) {
	return 0, nil
}

// checkSequence records a sequence-gap metric when env.Seq does not
// immediately follow the last sequence number seen for streamID.
func (pl *Pipeline) checkSequence(streamID string, seq uint64) {
	pl.seqMu.Lock()
	prev, seen := pl.lastSeq[streamID], pl.seenSeq[streamID]
	pl.lastSeq[streamID] = seq
	pl.seenSeq[streamID] = true
	pl.seqMu.Unlock()

	if seen && seq != prev+1 && pl.metrics != nil {
		pl.metrics.CoreMetrics().RecordSequenceGap(streamID)
	}
}
