package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emedia-lab/hermes/sample"
)

func newTestContainer(t *testing.T) (*Container, string) {
	t.Helper()
	root := t.TempDir()
	store, err := NewLocalFileStore(root)
	require.NoError(t, err)
	c, err := NewContainer(root, "session-1", store)
	require.NoError(t, err)
	return c, root
}

func TestContainerWriteAndReadMetadata(t *testing.T) {
	c, _ := newTestContainer(t)
	ctx := context.Background()

	meta := ContainerMetadata{
		SessionID:            "session-1",
		StartedAtReferenceNS: 1000,
		Brokers:              []string{"host-a"},
		Streams:              []sample.Stream{{StreamID: "imu/acc", NodeID: "imu01", NominalRate: 100}},
	}
	require.NoError(t, c.WriteMetadata(ctx, meta))

	got, err := c.ReadMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, meta, got)
}

func TestContainerDatasetWriterAppendsRecords(t *testing.T) {
	c, root := newTestContainer(t)

	w, err := c.DatasetWriter("imu01", "imu/acc")
	require.NoError(t, err)

	n, err := w.WriteSample(sample.New("imu/acc", 1, []byte{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = w.WriteSample(sample.New("imu/acc", 2, []byte{4, 5}).WithDeviceTS(99))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, w.Close())

	assert.Equal(t, int64(2), w.RecordCount())

	path := filepath.Join(root, "session-1", "imu01", "imu_acc.dataset")
	info, statErr := os.Stat(path)
	assert.NoError(t, statErr)
	assert.Greater(t, info.Size(), int64(0))
}

func TestContainerDatasetWriterIsReusedForSameStream(t *testing.T) {
	c, _ := newTestContainer(t)

	w1, err := c.DatasetWriter("imu01", "imu/acc")
	require.NoError(t, err)
	w2, err := c.DatasetWriter("imu01", "imu/acc")
	require.NoError(t, err)

	assert.Same(t, w1, w2)
}

func TestContainerCloseAllClosesWriters(t *testing.T) {
	c, _ := newTestContainer(t)

	w, err := c.DatasetWriter("imu01", "imu/acc")
	require.NoError(t, err)
	_, err = w.WriteSample(sample.New("imu/acc", 1, []byte{1}))
	require.NoError(t, err)

	require.NoError(t, c.CloseAll())
}
