// Package delay provides the delay_estimator drivers referenced from
// spec.md §4.4 and §6: a per-stream correction subtracted from
// reference_time() at ingress so that reference_ts approximates the
// instant the physical event occurred, not the instant it was read off the
// device.
//
// Estimators are named and selected through a small registry, following
// the factory-lookup shape of the teacher's component registry
// (component/registry.go) scaled down to this package's single-interface,
// no-instance-tracking needs.
package delay
