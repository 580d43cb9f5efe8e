package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeControlRoundTrip(t *testing.T) {
	msg := ControlMessage{
		Kind:        SyncProbe,
		SenderID:    "host-a",
		MonotonicNS: 123456789,
		Payload:     []byte("probe"),
	}

	frame, err := EncodeControl(msg)
	require.NoError(t, err)

	decoded, err := DecodeControl(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestEncodeControlRejectsEmptySenderID(t *testing.T) {
	_, err := EncodeControl(ControlMessage{Kind: Announce})
	assert.Error(t, err)
}

func TestControlKindString(t *testing.T) {
	assert.Equal(t, "ANNOUNCE", Announce.String())
	assert.Equal(t, "SYNC_OK", SyncOK.String())
	assert.Equal(t, "UNKNOWN", ControlKind(99).String())
}

func TestEncodeDecodeDataRoundTrip(t *testing.T) {
	env := DataEnvelope{
		Topic:         "imu/acc",
		PublisherID:   "node.imu01",
		Seq:           42,
		ReferenceTSNS: 987654321,
		Payload:       []byte{1, 2, 3, 4},
	}

	frame, err := EncodeData(env)
	require.NoError(t, err)

	decoded, err := DecodeData(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, env, decoded)
}

func TestEncodeDataRejectsEmptyTopic(t *testing.T) {
	_, err := EncodeData(DataEnvelope{PublisherID: "node.imu01"})
	assert.Error(t, err)
}

func TestDecodeDataTruncatedFrame(t *testing.T) {
	_, err := DecodeData(bytes.NewReader([]byte{0, 0, 0, 5, 1, 2, 3}))
	assert.Error(t, err)
}

func TestMultipleDataFramesOnOneStream(t *testing.T) {
	var buf bytes.Buffer
	for i := uint64(0); i < 3; i++ {
		frame, err := EncodeData(DataEnvelope{Topic: "imu/acc", PublisherID: "node.imu01", Seq: i})
		require.NoError(t, err)
		buf.Write(frame)
	}

	for i := uint64(0); i < 3; i++ {
		env, err := DecodeData(&buf)
		require.NoError(t, err)
		assert.Equal(t, i, env.Seq)
	}
}
