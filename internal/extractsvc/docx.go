// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package extractsvc

import (
	"strings"

	"github.com/nguyenthenguyen/docx"

	"github.com/nooble/rag-platform/internal/domainaction"
	"github.com/nooble/rag-platform/internal/domainerr"
)

// extractDOCX reads the document body via nguyenthenguyen/docx and derives
// sections from ALL-CAPS or short title-cased lines, since this binding
// exposes flattened paragraph text rather than style names (no direct
// "Heading 1" lookup), unlike python-docx's paragraph.style.name that
// original_source's structured extractor used.
func extractDOCX(filePath string) (Result, error) {
	doc, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return Result{}, domainerr.NewExtraction(err, "extract", "failed to open DOCX", false)
	}
	defer doc.Close()

	text := strings.TrimSpace(doc.Editable().GetContent())
	if text == "" {
		return Result{}, domainerr.NewExtraction(nil, "extract", "no text extracted from DOCX", false)
	}

	sections := sectionsFromHeadingLines(text)
	tables := strings.Count(text, "<w:tbl")

	return Result{
		Text:   text,
		Method: "structured",
		Structure: &domainaction.DocumentStructure{
			Sections:  sections,
			Tables:    tables,
			WordCount: wordCount(text),
		},
	}, nil
}

// sectionsFromHeadingLines is the heuristic heading detector of the DOCX
// path: a line of at most 80 characters and 10 words, not ending in '.' or
// ',', whose every word starts with a character unchanged by upper-casing
// reads as a heading.
func sectionsFromHeadingLines(text string) []domainaction.SectionInfo {
	var sections []domainaction.SectionInfo
	lines := strings.Split(text, "\n")
	offset := 0
	var current *domainaction.SectionInfo

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		lineStart := offset
		offset += len(line) + 1

		if looksLikeHeading(trimmed) {
			if current != nil {
				current.EndChar = lineStart
				sections = append(sections, *current)
			}
			current = &domainaction.SectionInfo{Title: trimmed, Level: 1, StartChar: lineStart}
			continue
		}
	}
	if current != nil {
		current.EndChar = len(text)
		sections = append(sections, *current)
	}
	return sections
}

func looksLikeHeading(line string) bool {
	if line == "" || len(line) > 80 {
		return false
	}
	if strings.HasSuffix(line, ".") || strings.HasSuffix(line, ",") {
		return false
	}
	words := strings.Fields(line)
	if len(words) == 0 || len(words) > 10 {
		return false
	}
	capitalized := 0
	for _, w := range words {
		r := []rune(w)
		if len(r) > 0 && strings.ToUpper(string(r[0])) == string(r[0]) {
			capitalized++
		}
	}
	return capitalized == len(words)
}
