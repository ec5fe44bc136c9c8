package bm25

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComposeTextIsPureFunctionOfFields(t *testing.T) {
	f := ChunkFields{
		SectionContext: "In document 'D', section 'P':",
		NounChunks:     []string{"annual report"},
		Entities:       []string{"Acme Corp"},
		SearchAnchors:  []string{"revenue growth"},
		AtomicFacts:    []string{"Revenue grew 12%"},
		ContentRaw:     "Revenue grew 12% year over year.",
	}
	a := ComposeText(f)
	b := ComposeText(f)
	require.Equal(t, a, b)
	require.Contains(t, a, "annual report")
	require.Contains(t, a, "Revenue grew 12% year over year.")
}

func TestComposeTextOmitsEmptyOptionalFields(t *testing.T) {
	f := ChunkFields{SectionContext: "ctx", ContentRaw: "raw text"}
	text := ComposeText(f)
	require.NotContains(t, text, "  ")
}

func TestModelEncodeProducesSortedIndices(t *testing.T) {
	m := NewModel()
	m.Observe("the quick brown fox jumps over the lazy dog")
	sv := m.Encode("the quick brown fox jumps over the lazy dog")
	require.NotEmpty(t, sv.Indices)
	for i := 1; i < len(sv.Indices); i++ {
		require.Less(t, sv.Indices[i-1], sv.Indices[i])
	}
}
