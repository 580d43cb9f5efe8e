package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/emedia-lab/hermes/errors"
	"github.com/emedia-lab/hermes/metric"
	"github.com/emedia-lab/hermes/pkg/worker"
	"github.com/emedia-lab/hermes/sample"
)

// streamSink is whatever a stream's flush scheduler drains into: either a
// tabular dataset writer or a video sink, never both.
type streamSink struct {
	nodeID  string
	dataset *DatasetWriter
	video   *VideoSink
	isVideo bool
	claimed atomic.Bool
	ring    *Ring
	flushed atomic.Int64
}

type flushTask struct {
	streamID string
}

// EngineOptions configures an Engine's flush cadence and backpressure
// thresholds (spec.md §4.3, §6's storage config block).
type EngineOptions struct {
	FlushInterval     time.Duration
	HighWaterInterval time.Duration // scheduler wake interval; each wake checks high water, every FlushInterval flushes all
	RingCapacity      int
	HighWater         int
	Workers           int
	MetricsRegistry   *metric.MetricsRegistry
}

// Engine is the flush scheduler: it owns one Ring per stream, drains them
// on a cooperative schedule, and persists drained Samples through the
// Container (tabular streams) or a VideoSink (video streams). Concurrent
// flushes on different streams proceed in parallel; each stream has at
// most one in-flight flusher, enforced by a per-stream atomic claim flag
// (spec.md §4.3).
type Engine struct {
	opts      EngineOptions
	container *Container

	mu      sync.RWMutex
	sinks   map[string]*streamSink
	pool    *worker.Pool[flushTask]
	started bool

	onOverflow func(streamID string, err error)

	ringOccupancy *prometheus.GaugeVec
	flushLatency  *prometheus.HistogramVec
}

// NewEngine constructs an Engine backed by container for tabular streams.
// Video streams open their own VideoSink on registration.
func NewEngine(container *Container, opts EngineOptions, onOverflow func(streamID string, err error)) *Engine {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 100 * time.Millisecond
	}
	if opts.HighWaterInterval <= 0 {
		opts.HighWaterInterval = opts.FlushInterval / 4
		if opts.HighWaterInterval <= 0 {
			opts.HighWaterInterval = time.Millisecond
		}
	}
	if opts.RingCapacity <= 0 {
		opts.RingCapacity = 10000
	}
	if opts.HighWater <= 0 {
		opts.HighWater = opts.RingCapacity * 8 / 10
	}

	e := &Engine{
		opts:       opts,
		container:  container,
		sinks:      make(map[string]*streamSink),
		onOverflow: onOverflow,
	}

	poolOpts := []worker.Option[flushTask]{}
	if opts.MetricsRegistry != nil {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[flushTask](opts.MetricsRegistry, "storage_flush"))
		e.registerDomainMetrics(opts.MetricsRegistry)
	}
	e.pool = worker.NewPool(opts.Workers, 4096, e.flushWorker, poolOpts...)

	return e
}

// registerDomainMetrics wires the ring-occupancy gauge and flush-latency
// histogram into registry. Both are keyed by stream; registration failure
// (e.g. a duplicate Engine in the same registry) is logged nowhere and
// simply leaves the metric unregistered: it is still updated but not
// exported, since a second Engine's metrics aren't this package's concern.
func (e *Engine) registerDomainMetrics(registry *metric.MetricsRegistry) {
	e.ringOccupancy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "hermes",
			Subsystem: "storage",
			Name:      "ring_occupancy",
			Help:      "Number of samples currently buffered in a stream's ring",
		},
		[]string{"stream"},
	)
	e.flushLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hermes",
			Subsystem: "storage",
			Name:      "flush_duration_seconds",
			Help:      "Time taken to flush a batch from a stream's ring to its sink",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stream"},
	)
	_ = registry.RegisterGaugeVec("storage", "ring_occupancy", e.ringOccupancy)
	_ = registry.RegisterHistogramVec("storage", "flush_duration_seconds", e.flushLatency)
}

// RegisterStream opens the Ring and backing sink for one stream. Must be
// called before RUN for every stream this session will carry.
func (e *Engine) RegisterStream(nodeID string, st sample.Stream, codec string) error {
	ring, err := NewRing(st.StreamID, e.opts.RingCapacity, e.opts.HighWater)
	if err != nil {
		return err
	}

	sink := &streamSink{nodeID: nodeID, ring: ring, isVideo: st.IsVideo}
	if st.IsVideo {
		vs, err := NewVideoSink(e.container.SessionDir(), nodeID, st.StreamID, codec)
		if err != nil {
			return err
		}
		sink.video = vs
	} else {
		dw, err := e.container.DatasetWriter(nodeID, st.StreamID)
		if err != nil {
			return err
		}
		sink.dataset = dw
	}

	e.mu.Lock()
	e.sinks[st.StreamID] = sink
	e.mu.Unlock()
	return nil
}

// Push enqueues a Sample on its stream's ring. Overflow is reported to
// onOverflow and returned to the caller (spec.md §3, §7): Producers are
// never blocked by Storage, but they observe the dropped-on-write
// condition the core treats as fatal for the session.
func (e *Engine) Push(streamID string, s sample.Sample) error {
	sink, err := e.sinkFor(streamID)
	if err != nil {
		return err
	}
	if err := sink.ring.Push(s); err != nil {
		if e.onOverflow != nil {
			e.onOverflow(streamID, err)
		}
		return err
	}
	return nil
}

func (e *Engine) sinkFor(streamID string) (*streamSink, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sink, ok := e.sinks[streamID]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "storage", "Engine", "unregistered stream: "+streamID)
	}
	return sink, nil
}

// Run starts the flush scheduler and blocks until ctx is cancelled. Each
// wake, every ring's occupancy is sampled; a ring that has just crossed
// its high-water mark is scheduled immediately, all rings (including ones
// that stay above the mark) on the normal FlushInterval cadence.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.pool.Start(ctx); err != nil {
		return errors.Wrap(err, "storage", "Engine.Run", "start flush pool")
	}
	e.started = true

	ticker := time.NewTicker(e.opts.HighWaterInterval)
	defer ticker.Stop()

	lastFullSweep := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.sweep(time.Since(lastFullSweep) >= e.opts.FlushInterval)
			if time.Since(lastFullSweep) >= e.opts.FlushInterval {
				lastFullSweep = time.Now()
			}
		}
	}
}

// sweep schedules a flush for every stream whose ring has crossed its
// high-water mark, and additionally every stream when full is true (the
// normal-cadence sweep).
func (e *Engine) sweep(full bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for streamID, sink := range e.sinks {
		if e.ringOccupancy != nil {
			e.ringOccupancy.WithLabelValues(streamID).Set(float64(sink.ring.Occupancy()))
		}
		if full || sink.ring.CrossedHighWater() {
			e.scheduleFlush(streamID, sink)
		}
	}
}

func (e *Engine) scheduleFlush(streamID string, sink *streamSink) {
	if !sink.claimed.CompareAndSwap(false, true) {
		return // a flusher for this stream is already in flight
	}
	if err := e.pool.Submit(flushTask{streamID: streamID}); err != nil {
		sink.claimed.Store(false)
	}
}

func (e *Engine) flushWorker(_ context.Context, task flushTask) error {
	e.mu.RLock()
	sink, ok := e.sinks[task.streamID]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	defer sink.claimed.Store(false)

	return e.flushOne(sink)
}

func (e *Engine) flushOne(sink *streamSink) error {
	batch := sink.ring.Drain(1024)
	if len(batch) == 0 {
		return nil
	}

	if e.flushLatency != nil {
		start := time.Now()
		defer func() {
			e.flushLatency.WithLabelValues(sink.ring.StreamID()).Observe(time.Since(start).Seconds())
		}()
	}

	for _, s := range batch {
		if sink.isVideo {
			devicePTS, _ := s.DeviceTS()
			if _, err := sink.video.WriteFrame(s, devicePTS); err != nil {
				return err
			}
		} else {
			if _, err := sink.dataset.WriteSample(s); err != nil {
				return err
			}
		}
		sink.flushed.Add(1)
	}

	if sink.isVideo {
		return sink.video.Sync()
	}
	return sink.dataset.Sync()
}

// Drain performs a final flush of every stream's ring, stopping early if
// deadline elapses. Returns the total number of samples left unflushed
// across all streams (spec.md §4.3's drain_deadline_ms semantics).
func (e *Engine) Drain(deadline time.Duration) (unflushed int, err error) {
	deadlineAt := time.Now().Add(deadline)

	e.mu.RLock()
	sinks := make(map[string]*streamSink, len(e.sinks))
	for k, v := range e.sinks {
		sinks[k] = v
	}
	e.mu.RUnlock()

	var firstErr error
	for _, sink := range sinks {
		for sink.ring.Occupancy() > 0 {
			if time.Now().After(deadlineAt) {
				unflushed += sink.ring.Occupancy()
				break
			}
			if ferr := e.flushOne(sink); ferr != nil {
				if firstErr == nil {
					firstErr = ferr
				}
				unflushed += sink.ring.Occupancy()
				break
			}
		}
	}

	if e.started {
		_ = e.pool.Stop(deadline)
	}

	if firstErr != nil {
		return unflushed, errors.Wrap(firstErr, "storage", "Engine.Drain", "final flush")
	}
	return unflushed, nil
}

// Close closes the Container and every registered VideoSink.
func (e *Engine) Close() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var first error
	for _, sink := range e.sinks {
		if sink.isVideo {
			if err := sink.video.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	if err := e.container.CloseAll(); err != nil && first == nil {
		first = err
	}
	return first
}

// FlushedCount returns the number of samples this Engine has persisted
// for streamID so far.
func (e *Engine) FlushedCount(streamID string) int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sink, ok := e.sinks[streamID]
	if !ok {
		return 0
	}
	return sink.flushed.Load()
}
