package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emedia-lab/hermes/sample"
)

func TestRingPushAndDrain(t *testing.T) {
	r, err := NewRing("imu/acc", 4, 3)
	require.NoError(t, err)

	require.NoError(t, r.Push(sample.New("imu/acc", 1, []byte{1})))
	require.NoError(t, r.Push(sample.New("imu/acc", 2, []byte{2})))
	assert.Equal(t, 2, r.Occupancy())

	batch := r.Drain(10)
	assert.Len(t, batch, 2)
	assert.Equal(t, 0, r.Occupancy())
}

func TestRingPushOverflowsAsError(t *testing.T) {
	r, err := NewRing("imu/acc", 2, 2)
	require.NoError(t, err)

	require.NoError(t, r.Push(sample.New("imu/acc", 1, []byte{1})))
	require.NoError(t, r.Push(sample.New("imu/acc", 2, []byte{2})))

	err = r.Push(sample.New("imu/acc", 3, []byte{3}))
	assert.Error(t, err)
	assert.Equal(t, 2, r.Occupancy())
}

func TestRingCrossedHighWaterFiresOnce(t *testing.T) {
	r, err := NewRing("imu/acc", 10, 2)
	require.NoError(t, err)

	require.NoError(t, r.Push(sample.New("imu/acc", 1, []byte{1})))
	assert.False(t, r.CrossedHighWater())

	require.NoError(t, r.Push(sample.New("imu/acc", 2, []byte{2})))
	assert.True(t, r.CrossedHighWater())
	assert.False(t, r.CrossedHighWater(), "should not re-fire until occupancy drops below high water")

	r.Drain(10)
	assert.False(t, r.CrossedHighWater())
}

func TestRingStreamIDAndCapacity(t *testing.T) {
	r, err := NewRing("imu/acc", 5, 3)
	require.NoError(t, err)
	assert.Equal(t, "imu/acc", r.StreamID())
	assert.Equal(t, 5, r.Capacity())
}
