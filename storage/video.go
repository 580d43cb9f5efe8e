package storage

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"

	"github.com/emedia-lab/hermes/errors"
	"github.com/emedia-lab/hermes/sample"
)

// VideoSink is a side-car video file for one camera stream, paired with a
// parallel index dataset mapping (frame_no, reference_ts_ns, device_pts)
// to byte offsets in the video file (spec.md §4.3). Video streams bypass
// the tabular Container entirely.
type VideoSink struct {
	mu        sync.Mutex
	video     *os.File
	index     *os.File
	codec     string
	nextFrame int64
	offset    int64
}

// NewVideoSink creates (or reopens) the side-car video file and its index
// dataset for streamID within the session directory, named
// "<streamID>.<codec>" and "<streamID>.index" respectively.
func NewVideoSink(sessionDir, nodeID, streamID, codec string) (*VideoSink, error) {
	groupDir := filepath.Join(sessionDir, nodeID)
	if err := os.MkdirAll(groupDir, 0o755); err != nil {
		return nil, errors.WrapFatal(err, "storage", "NewVideoSink", "create node group")
	}

	ext := codec
	if ext == "" {
		ext = "bin"
	}
	name := sanitizeFilename(streamID)
	videoPath := filepath.Join(groupDir, name+"."+ext)
	video, err := os.OpenFile(videoPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.WrapFatal(err, "storage", "NewVideoSink", "open video file")
	}

	indexPath := filepath.Join(groupDir, name+".index")
	index, err := os.OpenFile(indexPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		video.Close()
		return nil, errors.WrapFatal(err, "storage", "NewVideoSink", "open index file")
	}

	info, err := video.Stat()
	var offset int64
	if err == nil {
		offset = info.Size()
	}

	return &VideoSink{video: video, index: index, codec: codec, offset: offset}, nil
}

// WriteFrame appends one raw frame (carried as a Sample's payload) to the
// video file and records its index row. devicePTS is the frame's
// device-native presentation timestamp, opaque to HERMES.
func (v *VideoSink) WriteFrame(s sample.Sample, devicePTS int64) (frameNo int64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	payload := s.Payload()
	n, err := v.video.Write(payload)
	if err != nil {
		return v.nextFrame, errors.WrapTransient(err, "storage", "VideoSink.WriteFrame", "write frame bytes")
	}

	row := make([]byte, 8+8+8+8+8) // frame_no, reference_ts_ns, device_pts, byte_offset, byte_len
	binary.BigEndian.PutUint64(row[0:8], uint64(v.nextFrame))
	binary.BigEndian.PutUint64(row[8:16], uint64(s.HostArrivalTS()))
	binary.BigEndian.PutUint64(row[16:24], uint64(devicePTS))
	binary.BigEndian.PutUint64(row[24:32], uint64(v.offset))
	binary.BigEndian.PutUint64(row[32:40], uint64(n))

	if _, err := v.index.Write(row); err != nil {
		return v.nextFrame, errors.WrapTransient(err, "storage", "VideoSink.WriteFrame", "write index row")
	}

	frameNo = v.nextFrame
	v.nextFrame++
	v.offset += int64(n)
	return frameNo, nil
}

// Sync flushes both the video file and its index to stable storage.
func (v *VideoSink) Sync() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.video.Sync(); err != nil {
		return errors.WrapTransient(err, "storage", "VideoSink.Sync", "fsync video")
	}
	if err := v.index.Sync(); err != nil {
		return errors.WrapTransient(err, "storage", "VideoSink.Sync", "fsync index")
	}
	return nil
}

// FrameCount returns the number of frames written so far.
func (v *VideoSink) FrameCount() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.nextFrame
}

// Close closes both the video file and its index; it does not fsync
// (Sync does).
func (v *VideoSink) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	var first error
	if err := v.video.Close(); err != nil {
		first = errors.Wrap(err, "storage", "VideoSink.Close", "close video file")
	}
	if err := v.index.Close(); err != nil && first == nil {
		first = errors.Wrap(err, "storage", "VideoSink.Close", "close index file")
	}
	return first
}
