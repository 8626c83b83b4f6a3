// ABOUTME: Tests for the growable pending sample buffer
// ABOUTME: Covers growth, reuse and the configured size limit
package rdpsnd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingBufferGrowsOnly(t *testing.T) {
	var b pendingBuffer
	require.NoError(t, b.ensure(16, 0))
	copy(b.buf, "0123456789abcdef")

	require.NoError(t, b.ensure(8, 0))
	assert.Equal(t, 16, b.size())

	require.NoError(t, b.ensure(32, 64))
	assert.Equal(t, 32, b.size())
	assert.Equal(t, "0123456789abcdef", string(b.buf[:16]))

	assert.ErrorIs(t, b.ensure(128, 64), ErrAllocation)
	assert.Equal(t, 32, b.size())
}
