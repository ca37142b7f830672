package telegram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkPrefersLineBoundary(t *testing.T) {
	text := strings.Repeat("a", 3000) + "\n\n" + strings.Repeat("b", 2000) + "\n" + strings.Repeat("c", 500)

	parts := chunk(text, messageLimit)
	require.Len(t, parts, 2)
	for _, p := range parts {
		assert.LessOrEqual(t, len([]rune(p)), messageLimit)
	}
	assert.Equal(t, strings.Repeat("a", 3000), parts[0])
	assert.True(t, strings.HasPrefix(parts[1], "b"))
	assert.True(t, strings.HasSuffix(parts[1], strings.Repeat("c", 500)))
}

func TestChunkHardCutWithoutNewlines(t *testing.T) {
	parts := chunk(strings.Repeat("я", 25), 10)
	assert.Equal(t, []string{strings.Repeat("я", 10), strings.Repeat("я", 10), strings.Repeat("я", 5)}, parts)
}

func TestChunkShortAndEmpty(t *testing.T) {
	assert.Equal(t, []string{"hello world"}, chunk("hello world", messageLimit))
	assert.Empty(t, chunk("   \n  ", messageLimit))
}
