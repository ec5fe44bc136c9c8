// Package extractsvc also owns document enrichment: entity and noun-chunk
// extraction (§4.5.1, §4.6 step 3). original_source ran spaCy for this;
// no maintained Go spaCy binding exists in the pack, so this is a
// deterministic regex/heuristic stand-in rather than a statistical model
// (documented as the one stdlib-only part of extraction in the design
// notes). It satisfies the same contract: entities tagged with spaCy-style
// labels (PER/ORG/DATE/MONEY), a language code, and a noun-chunk list,
// ready for chunk.Enrichment's per-chunk surface-form filtering.
package extractsvc

import (
	"regexp"
	"strings"

	"github.com/nooble/rag-platform/internal/domainaction"
)

// Enricher produces the entity/noun-chunk bundle a chunker needs per
// document (§4.5.1's "spaCy enrichment" input).
type Enricher interface {
	Enrich(text string) (domainaction.SpacyEnrichment, error)
}

// HeuristicEnricher is the stand-in implementation: no model weights, just
// surface patterns common enough to be useful for search-anchor filtering.
type HeuristicEnricher struct{}

func NewHeuristicEnricher() HeuristicEnricher { return HeuristicEnricher{} }

var (
	orgRe       = regexp.MustCompile(`\b([A-Z][A-Za-z0-9&]*(?:\s+[A-Z][A-Za-z0-9&]*)*\s+(?:Inc|Corp|Corporation|LLC|Ltd|Co|Company|Group|Partners)\.?)\b`)
	personRe    = regexp.MustCompile(`\b([A-Z][a-z]+\s+[A-Z][a-z]+)\b`)
	dateRe      = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}|\d{1,2}/\d{1,2}/\d{2,4})\b`)
	moneyRe     = regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d+)?\s?(?:million|billion|thousand)?`)
	titleCaseRe = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,3}\b`)
)

// Enrich runs every surface-pattern extractor over text and normalizes the
// results into the §4.6 wire shape. It is intentionally conservative: false
// negatives are acceptable (a chunk just carries fewer search anchors),
// false positives are not, since they pollute normalized_entities.
func (HeuristicEnricher) Enrich(text string) (domainaction.SpacyEnrichment, error) {
	var entities []domainaction.SpacyEntity
	seen := make(map[string]bool)

	addAll := func(matches []string, label string) {
		for _, m := range matches {
			m = strings.TrimSpace(m)
			key := label + "|" + m
			if m == "" || seen[key] {
				continue
			}
			seen[key] = true
			entities = append(entities, domainaction.SpacyEntity{Text: m, Label: label})
		}
	}

	addAll(orgRe.FindAllString(text, -1), "ORG")
	addAll(dateRe.FindAllString(text, -1), "DATE")
	addAll(moneyRe.FindAllString(text, -1), "MONEY")
	addAll(filterOutOrgOverlap(personRe.FindAllString(text, -1), entities), "PER")

	nounChunks := dedupeStrings(titleCaseRe.FindAllString(text, -1))

	byType := make(map[string][]string)
	for _, e := range entities {
		byType[strings.ToLower(e.Label)] = append(byType[strings.ToLower(e.Label)], e.Text)
	}

	return domainaction.SpacyEnrichment{
		Entities:       entities,
		NounChunks:     nounChunks,
		EntitiesByType: byType,
		Language:       DetectLanguage(text),
	}, nil
}

// filterOutOrgOverlap drops a PERSON candidate that is a substring of an
// already-matched ORG, so "Acme Corp Partners" doesn't also yield a false
// "Acme Corp" person.
func filterOutOrgOverlap(candidates []string, existing []domainaction.SpacyEntity) []string {
	var out []string
	for _, c := range candidates {
		overlap := false
		for _, e := range existing {
			if e.Label == "ORG" && strings.Contains(e.Text, c) {
				overlap = true
				break
			}
		}
		if !overlap {
			out = append(out, c)
		}
	}
	return out
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

var commonEnglishWords = []string{" the ", " and ", " is ", " of ", " to ", " in ", " a "}

// DetectLanguage is a deliberately minimal stand-in: count common-English
// stopwords and report "en" when at least two different ones appear;
// with fewer, "unknown" is reported rather than guessing wrong.
func DetectLanguage(text string) string {
	lower := " " + strings.ToLower(text) + " "
	hits := 0
	for _, w := range commonEnglishWords {
		if strings.Contains(lower, w) {
			hits++
		}
	}
	if hits >= 2 {
		return "en"
	}
	return "unknown"
}
