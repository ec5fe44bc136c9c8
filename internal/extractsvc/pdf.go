// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package extractsvc

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/nooble/rag-platform/internal/domainaction"
	"github.com/nooble/rag-platform/internal/domainerr"
)

var pageHeadingRe = regexp.MustCompile(`^\s*(?:[A-Z][A-Za-z0-9 ,'&/-]{2,80})\s*$`)

// extractPDF reads every page with go-fitz (MuPDF) and treats each page as
// a section boundary, since MuPDF gives us page breaks for free but no
// outline/bookmark API in this binding (§4.6 step 2's page_count/sections).
func extractPDF(filePath string) (Result, error) {
	doc, err := fitz.New(filePath)
	if err != nil {
		return Result{}, domainerr.NewExtraction(err, "extract", "failed to open PDF", false)
	}
	defer doc.Close()

	numPages := doc.NumPage()
	var full strings.Builder
	var sections []domainaction.SectionInfo
	hasImages := false

	for i := 0; i < numPages; i++ {
		pageText, perr := doc.Text(i)
		if perr != nil {
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		if imgs, ierr := doc.Images(i); ierr == nil && len(imgs) > 0 {
			hasImages = true
		}

		start := full.Len()
		full.WriteString(pageText)
		full.WriteString("\n\n")
		end := full.Len()

		title := firstHeadingLine(pageText)
		if title == "" {
			title = fmt.Sprintf("Page %d", i+1)
		}
		sections = append(sections, domainaction.SectionInfo{
			Title:     title,
			Level:     1,
			StartChar: start,
			EndChar:   end,
		})
	}

	text := strings.TrimSpace(full.String())
	if text == "" {
		return Result{}, domainerr.NewExtraction(nil, "extract", "no text extracted from PDF", false)
	}
	for i := range sections {
		if sections[i].EndChar > len(text) {
			sections[i].EndChar = len(text)
		}
	}

	return Result{
		Text:   text,
		Method: "structured",
		Structure: &domainaction.DocumentStructure{
			Sections:  sections,
			PageCount: numPages,
			WordCount: wordCount(text),
			HasImages: hasImages,
		},
	}, nil
}

// firstHeadingLine takes the first non-empty line of a page as its
// heading candidate when it reads like a title (short, capitalized).
func firstHeadingLine(pageText string) string {
	for _, line := range strings.Split(pageText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) <= 80 && pageHeadingRe.MatchString(line) {
			return line
		}
		return ""
	}
	return ""
}
