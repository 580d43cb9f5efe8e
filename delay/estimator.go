package delay

// Metadata carries whatever a Producer can cheaply observe about a sample
// at ingress time, for estimators that key their correction off it (e.g. a
// payload size-dependent transport delay).
type Metadata struct {
	StreamID   string
	PayloadLen int
}

// Estimator computes the nanosecond correction a Producer subtracts from
// reference_time() at ingress (spec.md §4.4). Implementations must be
// deterministic and side-effect-free: the hook runs on the producer's
// production-loop thread and must never block.
type Estimator interface {
	Estimate(meta Metadata) int64
}

// EstimatorFunc adapts a plain function to the Estimator interface.
type EstimatorFunc func(meta Metadata) int64

// Estimate implements Estimator.
func (f EstimatorFunc) Estimate(meta Metadata) int64 { return f(meta) }

// Zero is the default estimator: no correction (spec.md §4.4 "Default:
// zero").
var Zero Estimator = EstimatorFunc(func(Metadata) int64 { return 0 })

// Constant returns an estimator that always subtracts a fixed delay,
// for sensors with a known, unvarying transport latency.
func Constant(ns int64) Estimator {
	return EstimatorFunc(func(Metadata) int64 { return ns })
}
