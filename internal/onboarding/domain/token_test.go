package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenIsUniqueAndURLSafe(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		token, err := NewToken()
		require.NoError(t, err)
		assert.False(t, seen[token])
		seen[token] = true

		assert.NotContains(t, token, "+")
		assert.NotContains(t, token, "/")
		assert.NotContains(t, token, "=")
		assert.GreaterOrEqual(t, len(token), 43)
	}
}

func TestHashTokenIsDeterministic(t *testing.T) {
	token, err := NewToken()
	require.NoError(t, err)

	assert.Equal(t, HashToken(token), HashToken(token))
	assert.NotEqual(t, token, HashToken(token))
	assert.Len(t, HashToken(token), 64)
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "******", MaskToken("short"))
	masked := MaskToken("abcdefghij")
	assert.True(t, strings.HasPrefix(masked, "abcdef"))
	assert.NotContains(t, masked, "ghij")
}
