package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/emedia-lab/hermes/errors"
	"github.com/emedia-lab/hermes/sample"
)

// sanitizeFilename replaces path separators in a stream_id so it can be
// used as a single dataset filename rather than nested directories — a
// stream_id such as "imu/acc" names one dataset, not a sub-group.
func sanitizeFilename(id string) string {
	return strings.ReplaceAll(id, "/", "_")
}

// ContainerMetadata is the metadata group recorded once per session
// (spec.md §4.3): session_id, started_at_reference_ns, every stream's
// schema, and the set of participating brokers.
type ContainerMetadata struct {
	SessionID            string          `json:"session_id"`
	StartedAtReferenceNS int64           `json:"started_at_reference_ns"`
	Brokers              []string        `json:"brokers"`
	Streams              []sample.Stream `json:"streams"`
}

// Container is the local hierarchical tabular container: one group per
// node, one dataset per stream, plus the metadata group (spec.md §4.3).
// On disk a group is a directory and a dataset is an append-only file of
// fixed-format records.
type Container struct {
	rootDir   string
	sessionID string
	store     Store

	mu      sync.Mutex
	writers map[string]*DatasetWriter // nodeID/streamID -> writer
}

// NewContainer creates (or reopens) the on-disk container rooted at
// rootDir/sessionID, using store to persist the metadata group.
func NewContainer(rootDir, sessionID string, store Store) (*Container, error) {
	if sessionID == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "storage", "NewContainer", "session_id cannot be empty")
	}
	dir := filepath.Join(rootDir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapFatal(err, "storage", "NewContainer", "create session directory")
	}
	return &Container{rootDir: rootDir, sessionID: sessionID, store: store, writers: make(map[string]*DatasetWriter)}, nil
}

// SessionDir returns the container's root directory for this session.
func (c *Container) SessionDir() string {
	return filepath.Join(c.rootDir, c.sessionID)
}

// WriteMetadata persists the metadata group through the Container's Store
// under "<session_id>/metadata.json". Called once, at RUN entry.
func (c *Container) WriteMetadata(ctx context.Context, meta ContainerMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.Wrap(err, "storage", "Container.WriteMetadata", "marshal")
	}
	key := c.sessionID + "/metadata.json"
	if err := c.store.Put(ctx, key, data); err != nil {
		return errors.WrapFatal(err, "storage", "Container.WriteMetadata", "put metadata")
	}
	return nil
}

// ReadMetadata retrieves a previously written metadata group.
func (c *Container) ReadMetadata(ctx context.Context) (ContainerMetadata, error) {
	key := c.sessionID + "/metadata.json"
	data, err := c.store.Get(ctx, key)
	if err != nil {
		return ContainerMetadata{}, errors.Wrap(err, "storage", "Container.ReadMetadata", "get metadata")
	}
	var meta ContainerMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return ContainerMetadata{}, errors.WrapInvalid(err, "storage", "Container.ReadMetadata", "unmarshal")
	}
	return meta, nil
}

// DatasetWriter appends fixed-format sample records to one stream's
// dataset file inside its owning node's group directory.
func (c *Container) DatasetWriter(nodeID, streamID string) (*DatasetWriter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := nodeID + "/" + streamID
	if w, ok := c.writers[key]; ok {
		return w, nil
	}

	groupDir := filepath.Join(c.SessionDir(), nodeID)
	if err := os.MkdirAll(groupDir, 0o755); err != nil {
		return nil, errors.WrapFatal(err, "storage", "Container.DatasetWriter", "create node group")
	}

	path := filepath.Join(groupDir, sanitizeFilename(streamID)+".dataset")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.WrapFatal(err, "storage", "Container.DatasetWriter", "open dataset file")
	}

	w := &DatasetWriter{file: f, streamID: streamID}
	c.writers[key] = w
	return w, nil
}

// CloseAll closes every dataset writer opened by this container. Called
// during STOP.
func (c *Container) CloseAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var first error
	for _, w := range c.writers {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// DatasetWriter is a single stream's append-only dataset file. Record
// format: [int64 host_arrival_ts][int64 device_ts][uint8 has_device_ts]
// [uint32 payload_len][payload_bytes].
type DatasetWriter struct {
	mu       sync.Mutex
	file     *os.File
	streamID string
	written  int64
}

// WriteSample appends one Sample record and returns the dataset's new
// record count.
func (w *DatasetWriter) WriteSample(s sample.Sample) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	deviceTS, hasDeviceTS := s.DeviceTS()
	payload := s.Payload()

	record := make([]byte, 8+8+1+4+len(payload))
	binary.BigEndian.PutUint64(record[0:8], uint64(s.HostArrivalTS()))
	binary.BigEndian.PutUint64(record[8:16], uint64(deviceTS))
	if hasDeviceTS {
		record[16] = 1
	}
	binary.BigEndian.PutUint32(record[17:21], uint32(len(payload)))
	copy(record[21:], payload)

	if _, err := w.file.Write(record); err != nil {
		return w.written, errors.WrapTransient(err, "storage", "DatasetWriter.WriteSample", "write record")
	}
	w.written++
	return w.written, nil
}

// Sync flushes buffered writes to stable storage.
func (w *DatasetWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		return errors.WrapTransient(err, "storage", "DatasetWriter.Sync", "fsync")
	}
	return nil
}

// RecordCount returns the number of records written so far.
func (w *DatasetWriter) RecordCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Close closes the underlying file; it does not fsync (Sync does).
func (w *DatasetWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Close(); err != nil {
		return errors.Wrap(err, "storage", "DatasetWriter.Close", "close dataset file")
	}
	return nil
}
