package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emedia-lab/hermes/sample"
)

func TestVideoSinkWriteFrameAssignsSequentialFrameNumbers(t *testing.T) {
	dir := t.TempDir()
	v, err := NewVideoSink(dir, "cam01", "camera/front", "mp4")
	require.NoError(t, err)
	defer v.Close()

	n1, err := v.WriteFrame(sample.New("camera/front", 100, []byte{1, 2, 3}), 0)
	require.NoError(t, err)
	n2, err := v.WriteFrame(sample.New("camera/front", 200, []byte{4, 5}), 1)
	require.NoError(t, err)

	assert.Equal(t, int64(0), n1)
	assert.Equal(t, int64(1), n2)
	assert.Equal(t, int64(2), v.FrameCount())
}

func TestVideoSinkReopenResumesOffset(t *testing.T) {
	dir := t.TempDir()
	v, err := NewVideoSink(dir, "cam01", "camera/front", "mp4")
	require.NoError(t, err)
	_, err = v.WriteFrame(sample.New("camera/front", 1, []byte{1, 2, 3, 4}), 0)
	require.NoError(t, err)
	require.NoError(t, v.Close())

	v2, err := NewVideoSink(dir, "cam01", "camera/front", "mp4")
	require.NoError(t, err)
	defer v2.Close()

	n, err := v2.WriteFrame(sample.New("camera/front", 2, []byte{5, 6}), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "frame numbering restarts per process but offset tracking must not overwrite prior bytes")
	assert.Equal(t, int64(6), v2.offset, "offset resumes after the 4 bytes already on disk, then advances by 2")
}
