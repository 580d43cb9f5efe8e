package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverflowFailReturnsErrorOnFullBuffer(t *testing.T) {
	buf, err := NewCircularBuffer[int](2, WithOverflowPolicy[int](OverflowFail))
	require.NoError(t, err)

	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))

	assert.Error(t, buf.Write(3))
	assert.Equal(t, 2, buf.Size())
}

func TestOverflowFailDoesNotDropExistingItems(t *testing.T) {
	buf, err := NewCircularBuffer[int](1, WithOverflowPolicy[int](OverflowFail))
	require.NoError(t, err)

	require.NoError(t, buf.Write(1))
	assert.Error(t, buf.Write(2))

	item, ok := buf.Read()
	assert.True(t, ok)
	assert.Equal(t, 1, item)
}

func TestOverflowPolicyStringIncludesOverflowFail(t *testing.T) {
	assert.Equal(t, "OverflowFail", OverflowFail.String())
}
