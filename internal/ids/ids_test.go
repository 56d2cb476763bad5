package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDMonotonic(t *testing.T) {
	a := RequestID()
	b := RequestID()
	require.Len(t, a, 26)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b)
}

func TestIdempotencyKeyStable(t *testing.T) {
	k1 := IdempotencyKey("payment", "42")
	k2 := IdempotencyKey("payment", "42")
	k3 := IdempotencyKey("payment", "43")
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}
