// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package extractsvc is the Extraction leaf service's document reader
// (§4.5 E1, §4.6). It generalizes the teacher's internal/parser dispatcher
// (a flat "extension -> raw text" router) into two tiers: a structured
// extractor that recovers heading-delimited sections and table/page counts
// for formats that carry structure (pdf, docx, xlsx, html), and a flat
// fallback extractor for formats that don't (txt, md, eml) — matching
// SPEC_FULL.md's extraction-tiers expansion.
package extractsvc

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nooble/rag-platform/internal/domainaction"
	"github.com/nooble/rag-platform/internal/domainerr"
)

// Result is what extraction.document.process reports back to Ingestion
// (§4.6 step 2's "extracted text + structural metadata").
type Result struct {
	Text      string
	Structure *domainaction.DocumentStructure
	Method    string // "structured" | "flat"
	Language  string
}

// Extract routes filePath to a structured or flat extractor by extension,
// per SPEC_FULL.md's extraction-tiers expansion.
func Extract(filePath, documentType string) (Result, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	if ext == "" && documentType != "" {
		ext = "." + strings.ToLower(documentType)
	}

	switch ext {
	case ".pdf":
		return extractPDF(filePath)
	case ".docx":
		return extractDOCX(filePath)
	case ".xlsx", ".xls":
		return extractExcel(filePath)
	case ".html", ".htm":
		return extractHTML(filePath)
	case ".txt":
		return extractFlatText(filePath)
	case ".md":
		return extractMarkdown(filePath)
	case ".eml":
		return extractEmail(filePath)
	default:
		return Result{}, domainerr.Validation("unsupported document type: %s", ext)
	}
}

// IsSupported mirrors the teacher's IsSupportedFile check, generalized to
// the tiered extension set above.
func IsSupported(filePath string) bool {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf", ".docx", ".xlsx", ".xls", ".html", ".htm", ".txt", ".md", ".eml":
		return true
	}
	return false
}

// IsTemporaryFile carries over the teacher's lock/tempfile skip list
// unchanged: editor lock files ("~$", "._" prefixes) and ".tmp" files.
// No service in this module calls it.
func IsTemporaryFile(filePath string) bool {
	base := filepath.Base(filePath)
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, "._") {
		return true
	}
	return strings.HasSuffix(base, ".tmp")
}

var wordRe = regexp.MustCompile(`\S+`)

func wordCount(s string) int {
	return len(wordRe.FindAllString(s, -1))
}

func readFile(filePath string) (string, error) {
	b, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("extractsvc: read %s: %w", filePath, err)
	}
	return string(b), nil
}
