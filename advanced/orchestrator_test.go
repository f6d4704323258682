package advanced

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompilePatterns(t *testing.T) {
	patterns, err := compilePatterns([]string{`/api/v1/.*`, `\.json$`})
	require.NoError(t, err)
	require.Len(t, patterns, 2)

	assert.True(t, matchesAny(patterns, "https://example.com/api/v1/products"))
	assert.True(t, matchesAny(patterns, "https://example.com/data.json"))
	assert.False(t, matchesAny(patterns, "https://example.com/static/app.js"))
}

func TestCompilePatterns_InvalidRegex(t *testing.T) {
	_, err := compilePatterns([]string{"("})
	assert.Error(t, err)
}

func TestMatchesAny_Empty(t *testing.T) {
	assert.False(t, matchesAny(nil, "https://example.com"))
}

func TestTrimTrailingSlash(t *testing.T) {
	assert.Equal(t, "https://sink.example.com", trimTrailingSlash("https://sink.example.com/"))
	assert.Equal(t, "https://sink.example.com", trimTrailingSlash("https://sink.example.com///"))
	assert.Equal(t, "https://sink.example.com", trimTrailingSlash("https://sink.example.com"))
}

func TestExtFromMime(t *testing.T) {
	cases := map[string]string{
		"image/png":  ".png",
		"image/jpeg": ".jpg",
		"image/gif":  ".gif",
		"image/webp": ".webp",
		"text/plain": "",
	}
	for mime, want := range cases {
		assert.Equal(t, want, extFromMime(mime), mime)
	}
}
