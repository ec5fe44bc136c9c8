package streaming

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShouldStreamSkipsShortContent(t *testing.T) {
	require.False(t, ShouldStream("hello", 100))
	require.True(t, ShouldStream(strings.Repeat("a", 201), 100))
}

func TestSliceMonotonicIndexAndFinalFlag(t *testing.T) {
	content := strings.Repeat("word ", 100)
	chunks := Slice(content, 50)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		require.Equal(t, i, c.ChunkIndex)
		require.Equal(t, i == len(chunks)-1, c.IsFinal)
	}

	var rebuilt strings.Builder
	for _, c := range chunks {
		rebuilt.WriteString(c.Content)
	}
	require.Equal(t, content, rebuilt.String())
}

func TestSliceSingleChunkWhenSmaller(t *testing.T) {
	chunks := Slice("short", 100)
	require.Len(t, chunks, 1)
	require.True(t, chunks[0].IsFinal)
}
