package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateOffsetSymmetricDelay(t *testing.T) {
	// Reference clock is exactly 100ns ahead of the local clock, and
	// transit delay is 10ns each way.
	p := Probe{
		T0: 1000,
		T1: 1000 + 100 + 10,
		T2: 1000 + 100 + 10 + 5, // processing time at reference broker
		T3: 1000 + 10 + 5 + 10,
	}
	offset, rtt, err := EstimateOffset(p)
	assert.NoError(t, err)
	assert.Equal(t, int64(100), offset)
	assert.Equal(t, int64(20), rtt) // two 10ns transit legs, processing time cancels out
}

func TestEstimateOffsetRejectsOutOfOrderTimestamps(t *testing.T) {
	_, _, err := EstimateOffset(Probe{T0: 100, T1: 110, T2: 120, T3: 50})
	assert.Error(t, err)

	_, _, err = EstimateOffset(Probe{T0: 100, T1: 110, T2: 90, T3: 200})
	assert.Error(t, err)
}

func TestWithinTolerance(t *testing.T) {
	assert.True(t, WithinTolerance(100, 105, 10))
	assert.True(t, WithinTolerance(105, 100, 10))
	assert.False(t, WithinTolerance(100, 200, 10))
	assert.True(t, WithinTolerance(100, 100, 0))
}
