package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("rentdesk-owner")
	require.NoError(t, err)
	assert.NotEqual(t, "rentdesk-owner", hash)

	require.NoError(t, VerifyPassword(hash, "rentdesk-owner"))
	assert.ErrorIs(t, VerifyPassword(hash, "wrong"), ErrBadCredentials)
	assert.ErrorIs(t, VerifyPassword("", "rentdesk-owner"), ErrBadCredentials)
}

func TestHashPasswordRejectsInput(t *testing.T) {
	_, err := HashPassword("")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = HashPassword(strings.Repeat("x", 73))
	assert.ErrorIs(t, err, ErrInvalidInput)
}
