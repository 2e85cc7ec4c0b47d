package token

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFormat(t *testing.T) {
	tok, err := Generate()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(tok, Marker))
	// Marker (11) + 43 base64url chars for 256 bits.
	assert.Len(t, tok, 54)

	body := strings.TrimPrefix(tok, Marker)
	assert.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9_-]+$`), body)
}

func TestGenerateUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		tok, err := Generate()
		require.NoError(t, err)
		require.False(t, seen[tok], "duplicate token generated")
		seen[tok] = true
	}
}

func TestHash(t *testing.T) {
	h := Hash("hdx_ingest_abc")
	assert.Len(t, h, 64)
	assert.Equal(t, strings.ToLower(h), h)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), h)

	// Stable and input-sensitive.
	assert.Equal(t, h, Hash("hdx_ingest_abc"))
	assert.NotEqual(t, h, Hash("hdx_ingest_abd"))
}

func TestPrefix(t *testing.T) {
	tok, err := Generate()
	require.NoError(t, err)

	p := Prefix(tok)
	assert.Len(t, p, PrefixLen)
	assert.True(t, strings.HasPrefix(p, Marker))
	assert.True(t, strings.HasPrefix(tok, p))

	// Degenerate input shorter than the prefix length.
	assert.Equal(t, "abc", Prefix("abc"))
}
