// Package cache provides a generic, thread-safe time-to-live cache with
// built-in statistics tracking and optional Prometheus metrics integration.
//
// # Overview
//
// The cache package is built around a single eviction policy, TTL
// (time-to-live), behind a Cache[V] interface. Background cleanup removes
// expired entries on a configurable interval.
//
// # Quick Start
//
//	cache, err := cache.NewTTL[*Session](ctx, 30*time.Minute, 5*time.Minute)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer cache.Close()
//
//	cache.Set("key", session)
//	value, ok := cache.Get("key")
//
// # Observability Architecture
//
// The cache package implements a dual-tracking pattern for comprehensive observability:
//
// Statistics (Always On):
//   - Tracks all operations using atomic counters
//   - Zero configuration required
//   - Available via cache.Stats()
//   - Provides computed metrics (hit ratio, requests/sec)
//   - No external dependencies
//
// Prometheus Metrics (Optional):
//   - Enabled via WithMetrics() option
//   - Exports to Prometheus for time-series monitoring
//   - Includes component labels for instance identification
//   - Standard metric types (Counter, Gauge)
//
// Why track twice? Statistics stay available without a Prometheus dependency
// (useful in tests and minimal deployments) and expose computed values
// (hit ratio, requests/sec) that raw counters don't. Metrics feed dashboards
// and alerting. The overhead of updating both is a few atomic increments per
// operation, negligible next to the value of having either view available.
//
// # Functional Options Pattern
//
//	cache, err := cache.NewTTL[V](ctx, ttl, cleanupInterval,
//		cache.WithMetrics[V](registry, "component"),
//		cache.WithEvictionCallback[V](callback),
//	)
//
// Available options:
//   - WithMetrics: Enable Prometheus metrics export
//   - WithEvictionCallback: Get notified when items are evicted
//   - WithStatsInterval: Record a stats interval (not read by the TTL cache)
//
// # Thread Safety
//
// All cache operations are thread-safe for concurrent use:
//   - Multiple goroutines can read concurrently (RWMutex for reads)
//   - Writes are serialized with mutex protection
//   - Statistics use atomic operations (lock-free)
//   - Cleanup runs in a background goroutine
//   - Eviction callbacks are called outside locks to prevent deadlocks
//
// # Context and Cleanup
//
// NewTTL starts a background cleanup goroutine tied to the context passed
// in. Always pass a context that will be canceled when cleanup should stop,
// or call Close() explicitly:
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//
//	cache, _ := cache.NewTTL[V](ctx, ttl, cleanupInterval)
//
// # Disabled Caches
//
// NewFromConfig returns NewNoop[V]() when Config.Enabled is false, so
// call sites that build a cache from configuration don't need a separate
// disabled-cache branch.
package cache
