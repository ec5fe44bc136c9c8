// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package extractsvc

import (
	"fmt"
	"strings"
	"time"

	"github.com/mnako/letters"

	"github.com/nooble/rag-platform/internal/domainaction"
	"github.com/nooble/rag-platform/internal/domainerr"
)

// extractFlatText is the fallback tier for plain text (§4.6's flat
// fallback extractor): no section recovery, the chunker runs its flat
// path directly on fullText.
func extractFlatText(filePath string) (Result, error) {
	text, err := readFile(filePath)
	if err != nil {
		return Result{}, domainerr.NewExtraction(err, "extract", "failed to read text file", false)
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, domainerr.NewExtraction(nil, "extract", "no content in text file", false)
	}
	return Result{Text: text, Method: "flat", Structure: &domainaction.DocumentStructure{WordCount: wordCount(text)}}, nil
}

// extractMarkdown treats each "#" heading line as a section boundary,
// still in the flat tier since markdown headings are a text convention
// rather than document structure the reader parses for us.
func extractMarkdown(filePath string) (Result, error) {
	text, err := readFile(filePath)
	if err != nil {
		return Result{}, domainerr.NewExtraction(err, "extract", "failed to read markdown file", false)
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, domainerr.NewExtraction(nil, "extract", "no content in markdown file", false)
	}

	sections := markdownSections(text)
	return Result{
		Text:   text,
		Method: "flat",
		Structure: &domainaction.DocumentStructure{
			Sections:  sections,
			WordCount: wordCount(text),
		},
	}, nil
}

func markdownSections(text string) []domainaction.SectionInfo {
	var sections []domainaction.SectionInfo
	lines := strings.Split(text, "\n")
	offset := 0
	var current *domainaction.SectionInfo

	for _, line := range lines {
		lineStart := offset
		offset += len(line) + 1
		trimmed := strings.TrimLeft(line, "#")
		level := len(line) - len(trimmed)
		heading := strings.TrimSpace(trimmed)
		if level > 0 && level <= 6 && heading != "" {
			if current != nil {
				current.EndChar = lineStart
				sections = append(sections, *current)
			}
			current = &domainaction.SectionInfo{Title: heading, Level: level, StartChar: lineStart}
		}
	}
	if current != nil {
		current.EndChar = len(text)
		sections = append(sections, *current)
	}
	return sections
}

// extractEmail parses an EML file via mnako/letters, formatting metadata
// the way the teacher's parser did, and stays in the flat tier: an email
// body has no heading structure to recover.
func extractEmail(filePath string) (Result, error) {
	raw, err := readFile(filePath)
	if err != nil {
		return Result{}, domainerr.NewExtraction(err, "extract", "failed to read EML file", false)
	}

	email, err := letters.ParseEmail(strings.NewReader(raw))
	if err != nil {
		return Result{}, domainerr.NewExtraction(err, "extract", "failed to parse EML file", false)
	}

	var builder strings.Builder
	if email.Headers.Subject != "" {
		fmt.Fprintf(&builder, "Subject: %s\n", email.Headers.Subject)
	}
	if len(email.Headers.From) > 0 {
		from := email.Headers.From[0]
		sender := from.Address
		if from.Name != "" {
			sender = fmt.Sprintf("%s <%s>", from.Name, from.Address)
		}
		fmt.Fprintf(&builder, "Sender: %s\n", sender)
	}
	if !email.Headers.Date.IsZero() {
		fmt.Fprintf(&builder, "Date: %s\n", email.Headers.Date.Format(time.RFC3339))
	}
	builder.WriteString("\n")

	body := email.Text
	if body == "" {
		body = email.HTML
	}
	builder.WriteString(body)

	text := strings.TrimSpace(builder.String())
	if text == "" {
		return Result{}, domainerr.NewExtraction(nil, "extract", "no content extracted from EML", false)
	}

	return Result{Text: text, Method: "flat", Structure: &domainaction.DocumentStructure{WordCount: wordCount(text)}}, nil
}
