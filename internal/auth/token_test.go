package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLoginToken(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := generateLoginToken()
		require.NoError(t, err)

		// 32 bytes base64url without padding
		assert.Len(t, token, 43)
		assert.NotContains(t, token, "+")
		assert.NotContains(t, token, "/")
		assert.NotContains(t, token, "=")

		assert.False(t, seen[token], "token collision")
		seen[token] = true
	}
}

func TestGenerateLoginCode(t *testing.T) {
	t.Parallel()

	for i := 0; i < 100; i++ {
		code, err := generateLoginCode(6)
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9', "non-digit in code %q", code)
		}
	}
}

func TestGenerateLoginCode_OtherLengths(t *testing.T) {
	t.Parallel()

	for _, length := range []int{4, 8, 10} {
		code, err := generateLoginCode(length)
		require.NoError(t, err)
		assert.Len(t, code, length)
	}
}

func TestHashToken(t *testing.T) {
	t.Parallel()

	a := hashToken("some-token")
	b := hashToken("some-token")
	c := hashToken("other-token")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64) // hex sha-256
	assert.NotContains(t, a, "some-token")
}
