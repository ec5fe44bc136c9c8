package extractsvc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsSupportedAndTemporary(t *testing.T) {
	require.True(t, IsSupported("report.pdf"))
	require.True(t, IsSupported("notes.md"))
	require.False(t, IsSupported("archive.zip"))
	require.True(t, IsTemporaryFile("~$report.docx"))
	require.True(t, IsTemporaryFile("upload.tmp"))
	require.False(t, IsTemporaryFile("report.pdf"))
}

func TestMarkdownSections(t *testing.T) {
	text := "# Title\nIntro line.\n\n## Sub\nBody text here.\n"
	sections := markdownSections(text)
	require.Len(t, sections, 2)
	require.Equal(t, "Title", sections[0].Title)
	require.Equal(t, 1, sections[0].Level)
	require.Equal(t, "Sub", sections[1].Title)
	require.Equal(t, 2, sections[1].Level)
	require.Equal(t, len(text), sections[1].EndChar)
}

func TestLooksLikeHeading(t *testing.T) {
	require.True(t, looksLikeHeading("Executive Summary"))
	require.False(t, looksLikeHeading("this is a normal sentence."))
	require.False(t, looksLikeHeading(""))
}

func TestHeuristicEnricherDetectsOrgDateMoney(t *testing.T) {
	e := NewHeuristicEnricher()
	out, err := e.Enrich("Acme Corp signed the deal on 2024-05-01 for $1,200,000.")
	require.NoError(t, err)

	var labels []string
	for _, ent := range out.Entities {
		labels = append(labels, ent.Label)
	}
	require.Contains(t, labels, "ORG")
	require.Contains(t, labels, "DATE")
	require.Contains(t, labels, "MONEY")
	require.Equal(t, "unknown", out.Language)
}

func TestDetectLanguageFallsBackToUnknown(t *testing.T) {
	require.Equal(t, "en", DetectLanguage("The quick brown fox is in the house."))
	require.Equal(t, "unknown", DetectLanguage("Lorem ipsum dolor sit amet"))
}

func TestWordCount(t *testing.T) {
	require.Equal(t, 4, wordCount("one two  three\nfour"))
}
