// Package storage implements the ring-buffered ingest, flush scheduling,
// and on-disk tabular/video containers described in spec.md §4.3/§6.
package storage

import "context"

// Store is the pluggable backend interface for whole-object persistence.
// Container uses a Store to persist its metadata group; per-stream
// datasets and video side-car files bypass Store for direct incremental
// appends, which Store's key-value contract cannot express.
//
// The Store interface uses a simple key-value pattern where:
//   - Keys are strings (hierarchical paths supported via "/" separators)
//   - Values are binary data ([]byte)
//   - Operations are context-aware for cancellation and timeouts
//
// LocalFileStore is the only implementation HERMES ships; a future
// object-store backend can implement Store without touching the
// ring/flush logic in ring.go or engine.go.
//
// Thread Safety:
// All Store implementations must be safe for concurrent use from multiple goroutines.
type Store interface {
	// Put stores binary data at the specified key.
	// If the key already exists, behavior is implementation-specific:
	//   - Immutable stores (NATS ObjectStore) may append a version/timestamp
	//   - Mutable stores (S3, SQL) will overwrite the existing value
	//
	// The data parameter accepts any binary format:
	//   - JSON-encoded messages
	//   - Video files (MP4, etc.)
	//   - Images (JPEG, PNG, etc.)
	//   - Any []byte data
	Put(ctx context.Context, key string, data []byte) error

	// Get retrieves binary data for the specified key.
	// Returns an error if the key does not exist.
	//
	// The returned []byte should be interpreted by the caller based on
	// their knowledge of what was stored (JSON, video, etc.).
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns all keys matching the specified prefix.
	// The prefix parameter supports hierarchical key patterns:
	//   - "" (empty) lists all keys
	//   - "video/" lists all keys starting with "video/"
	//   - "video/sensor-123/" lists keys for a specific sensor
	//
	// Keys are returned in lexicographic order.
	// Returns an empty slice if no keys match the prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the specified key.
	// Returns nil if the key doesn't exist (idempotent operation).
	//
	// For immutable stores that maintain versions, this may only mark
	// the latest version as deleted rather than removing historical versions.
	Delete(ctx context.Context, key string) error
}
