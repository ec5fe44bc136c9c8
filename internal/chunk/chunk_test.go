package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkDocumentFlatFallback(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	params := Params{
		DocumentID: "doc-1", TenantID: "t1", CollectionID: "c1",
		AgentIDs: []string{"a1"}, DocumentName: "doc.txt", ChunkSize: 200, ChunkOverlap: 20,
	}
	chunks := ChunkDocument(text, nil, Enrichment{}, params)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		require.Equal(t, i, c.ChunkIndex)
		require.Contains(t, c.Content, "In document 'doc.txt':")
	}
}

func TestChunkDocumentPreservesWords(t *testing.T) {
	text := "Alpha beta gamma. Delta epsilon zeta. Eta theta iota."
	params := Params{DocumentName: "d", ChunkSize: 30, ChunkOverlap: 5}
	chunks := ChunkDocument(text, nil, Enrichment{}, params)

	var rebuilt strings.Builder
	for _, c := range chunks {
		rebuilt.WriteString(c.ContentRaw)
		rebuilt.WriteString(" ")
	}
	for _, word := range strings.Fields(text) {
		require.Contains(t, rebuilt.String(), strings.Trim(word, ".!"))
	}
}

func TestChunkDocumentSkipsSectionsUnder50Chars(t *testing.T) {
	sections := []Section{
		{Title: "Tiny", Content: "Too short.", StartChar: 0, EndChar: 10},
		{Title: "Big", Content: strings.Repeat("word ", 30), StartChar: 10, EndChar: 200},
	}
	params := Params{DocumentName: "d", ChunkSize: 500, ChunkOverlap: 0}
	chunks := ChunkDocument("", sections, Enrichment{}, params)
	require.Len(t, chunks, 1)
	require.Equal(t, "Big", chunks[0].SectionTitle)
}

func TestNormalizeEntitiesMapping(t *testing.T) {
	ents := []Entity{{Text: "Acme", Label: "ORG"}, {Text: "Paris", Label: "GPE"}, {Text: "2024", Label: "DATE"}}
	out := normalizeEntities(ents)
	require.Equal(t, []string{"Acme"}, out["organization"])
	require.Equal(t, []string{"Paris"}, out["location"])
	require.Equal(t, []string{"2024"}, out["date"])
}

func TestDetectDocumentNature(t *testing.T) {
	require.Equal(t, "other", DetectDocumentNature("pdf"))
	require.Equal(t, "narrative", DetectDocumentNature("txt"))
	require.Equal(t, "technical", DetectDocumentNature("md"))
}
