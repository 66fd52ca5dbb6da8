package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("test123456")
	require.NoError(t, err)
	assert.NotEqual(t, "test123456", hash)

	assert.True(t, CheckPassword(hash, "test123456"))
	assert.False(t, CheckPassword(hash, "wrongpassword"))
	assert.False(t, CheckPassword("not-a-bcrypt-hash", "test123456"))
}

func TestGenerateAPIKey(t *testing.T) {
	raw, preview, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(raw, APIKeyPrefix))
	assert.True(t, LooksLikeAPIKey(raw))
	assert.Equal(t, raw[:12]+"...", preview)

	other, _, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, raw, other)
}

func TestHashAPIKeyIsDeterministic(t *testing.T) {
	assert.Equal(t, HashAPIKey("byx_abc"), HashAPIKey("byx_abc"))
	assert.NotEqual(t, HashAPIKey("byx_abc"), HashAPIKey("byx_abd"))
	assert.Len(t, HashAPIKey("byx_abc"), 64)
}

func TestLooksLikeAPIKey(t *testing.T) {
	assert.False(t, LooksLikeAPIKey(""))
	assert.False(t, LooksLikeAPIKey("byx_"))
	assert.False(t, LooksLikeAPIKey("sk_live_123"))
	assert.True(t, LooksLikeAPIKey("byx_x"))
}

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"d@gmail.com", "d****@gmail.com"},
		{"ab@x.com", "a****@x.com"},
		{"dana.smith@example.org", "d****@example.org"},
		{"no-at-sign", "no-at-sign"},
		{"two@@ats.com", "two@@ats.com"},
		{"a@b@c.com", "a@b@c.com"},
		{"@example.com", "@example.com"},
		{"ñu@x.com", "ñ****@x.com"},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskEmail(tt.email))
			assert.Equal(t, MaskEmail(tt.email), MaskEmail(tt.email))
		})
	}
}
