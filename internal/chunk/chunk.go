// Package chunk implements the ChunkModel type and the hierarchical
// chunking algorithm (§3, §4.5.1). Grounded on
// original_source/ingestion_service/handler/hierarchical_chunker.py,
// translated from llama_index's SentenceSplitter onto a sentence-boundary
// regex splitter, and from the teacher's naive character-offset
// processor/chunker.go onto section-aware, sentence-aware splitting.
package chunk

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Model is the unit indexed in the vector store (§3's ChunkModel).
type Model struct {
	ChunkID      string   `json:"chunk_id"`
	DocumentID   string   `json:"document_id"`
	TenantID     string   `json:"tenant_id"`
	CollectionID string   `json:"collection_id"`
	AgentIDs     []string `json:"agent_ids"`
	ChunkIndex   int      `json:"chunk_index"`

	Content    string `json:"content"`
	ContentRaw string `json:"content_raw"`

	SectionTitle   string `json:"section_title,omitempty"`
	SectionLevel   int    `json:"section_level,omitempty"`
	SectionContext string `json:"section_context,omitempty"`
	ParentTitle    string `json:"parent_title,omitempty"`

	SpacyEntities    []string `json:"spacy_entities,omitempty"`
	SpacyNounChunks  []string `json:"spacy_noun_chunks,omitempty"`

	SearchAnchors     []string            `json:"search_anchors,omitempty"`
	AtomicFacts       []string            `json:"atomic_facts,omitempty"`
	FactDensity       float64             `json:"fact_density,omitempty"`
	NormalizedEntities map[string][]string `json:"normalized_entities,omitempty"`

	DocumentName     string `json:"document_name"`
	DocumentType     string `json:"document_type"`
	DocumentNature   string `json:"document_nature"`
	Language         string `json:"language"`
	PageCount        int    `json:"page_count"`
	HasTables        bool   `json:"has_tables"`

	Embedding []float32 `json:"embedding,omitempty"`
}

// Section mirrors original_source's Section dataclass: a heading-delimited
// span of the document.
type Section struct {
	Title       string
	Level       int
	StartChar   int
	EndChar     int
	ParentTitle string
	Content     string
}

// Enrichment mirrors original_source's SpacyEnrichmentData: entities and
// noun-chunks available for the whole document, filtered per-chunk.
type Enrichment struct {
	Entities       []Entity
	NounChunks     []string
	EntitiesByType map[string][]string
	Language       string
}

// Entity is one named-entity span.
type Entity struct {
	Text  string
	Label string
}

// Params bundles the chunker's tunables (chunk_size, chunk_overlap) and the
// document identifiers every produced chunk needs.
type Params struct {
	DocumentID     string
	TenantID       string
	CollectionID   string
	AgentIDs       []string
	DocumentName   string
	DocumentType   string
	DocumentNature string
	Language       string
	PageCount      int
	HasTables      bool
	ChunkSize      int
	ChunkOverlap   int
}

var sentenceEnd = regexp.MustCompile(`[.!?][\s"')\]]*\s+`)

// splitSentences splits text into sentence-aware spans, a stand-in for
// llama_index's SentenceSplitter that original_source relies on.
func splitSentences(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	locs := sentenceEnd.FindAllStringIndex(text, -1)
	var out []string
	start := 0
	for _, loc := range locs {
		out = append(out, text[start:loc[1]])
		start = loc[1]
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// splitWithOverlap groups sentences into sub-chunks of approximately
// targetSize characters, with overlap carried from the tail of the
// previous sub-chunk, preserving sentence boundaries (§4.5.1 step 2).
func splitWithOverlap(text string, targetSize, overlap int) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}
	if targetSize <= 0 {
		targetSize = 1000
	}

	var chunks []string
	var cur strings.Builder
	var tailForOverlap string

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		chunks = append(chunks, strings.TrimSpace(cur.String()))
		full := cur.String()
		if overlap <= 0 {
			tailForOverlap = ""
		} else if len(full) > overlap {
			tailForOverlap = full[len(full)-overlap:]
		} else {
			tailForOverlap = full
		}
		cur.Reset()
		cur.WriteString(tailForOverlap)
	}

	for _, s := range sentences {
		if cur.Len() > 0 && cur.Len()+len(s) > targetSize {
			flush()
		}
		cur.WriteString(s)
	}
	if strings.TrimSpace(cur.String()) != "" {
		chunks = append(chunks, strings.TrimSpace(cur.String()))
	}
	return chunks
}

// buildSectionContext composes "In document 'D', section 'P', subsection
// 'T':" omitting levels that don't exist, per §4.5.1 step 2a.
func buildSectionContext(documentName, parentTitle, title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "In document '%s'", documentName)
	if parentTitle != "" {
		fmt.Fprintf(&b, ", section '%s'", parentTitle)
		if title != "" && title != parentTitle {
			fmt.Fprintf(&b, ", subsection '%s'", title)
		}
	} else if title != "" {
		fmt.Fprintf(&b, ", section '%s'", title)
	}
	b.WriteString(":")
	return b.String()
}

// filterBySurfaceForm keeps entries whose lowercase surface form occurs
// case-insensitively in raw, per §4.5.1's
// "spacy_entities/spacy_noun_chunks filtered to those whose surface forms
// occur case-insensitively in raw".
func filterBySurfaceForm(candidates []string, raw string) []string {
	lowerRaw := strings.ToLower(raw)
	var out []string
	for _, c := range candidates {
		if strings.Contains(lowerRaw, strings.ToLower(c)) {
			out = append(out, c)
		}
	}
	return out
}

var entityKeyMap = map[string]string{
	"per": "person", "person": "person",
	"org": "organization",
	"gpe": "location", "loc": "location",
	"date": "date", "time": "date",
	"money": "amount",
}

// normalizeEntities maps spaCy labels onto the platform's normalized
// entity keys (§4.5.1's "Normalized entities" paragraph), concatenating
// multi-valued entries as lists.
func normalizeEntities(entities []Entity) map[string][]string {
	if len(entities) == 0 {
		return nil
	}
	out := make(map[string][]string)
	for _, e := range entities {
		key, ok := entityKeyMap[strings.ToLower(e.Label)]
		if !ok {
			continue
		}
		out[key] = append(out[key], e.Text)
	}
	return out
}

// ChunkDocument runs the full hierarchical chunking algorithm (§4.5.1):
// parse sections (caller-supplied), assign content per section, chunk
// each section with sentence-aware splitting, or fall back to flat
// chunking when no sections exist.
func ChunkDocument(fullText string, sections []Section, enrichment Enrichment, p Params) []Model {
	var out []Model

	if len(sections) == 0 {
		out = chunkFlat(fullText, enrichment, p)
	} else {
		for _, sec := range sections {
			content := sec.Content
			if content == "" && sec.EndChar > sec.StartChar && sec.EndChar <= len(fullText) {
				content = fullText[sec.StartChar:sec.EndChar]
			}
			if len(strings.TrimSpace(content)) < 50 {
				continue // §4.5.1 step 2: sections under 50 chars are skipped
			}
			sectionContext := buildSectionContext(p.DocumentName, sec.ParentTitle, sec.Title)
			subChunks := splitWithOverlap(content, p.ChunkSize, p.ChunkOverlap)
			for _, raw := range subChunks {
				out = append(out, buildChunkModel(raw, sectionContext, sec.Title, sec.Level, sec.ParentTitle, enrichment, p))
			}
		}
	}

	for i := range out {
		out[i].ChunkIndex = i
	}
	return out
}

func chunkFlat(fullText string, enrichment Enrichment, p Params) []Model {
	baseContext := fmt.Sprintf("In document '%s':", p.DocumentName)
	subChunks := splitWithOverlap(fullText, p.ChunkSize, p.ChunkOverlap)
	out := make([]Model, 0, len(subChunks))
	for _, raw := range subChunks {
		out = append(out, buildChunkModel(raw, baseContext, "", 0, "", enrichment, p))
	}
	return out
}

func buildChunkModel(raw, sectionContext, title string, level int, parentTitle string, enrichment Enrichment, p Params) Model {
	var entityTexts []string
	for _, e := range enrichment.Entities {
		entityTexts = append(entityTexts, e.Text)
	}
	filteredEntityTexts := filterBySurfaceForm(entityTexts, raw)

	var filteredEntities []Entity
	keep := make(map[string]bool, len(filteredEntityTexts))
	for _, t := range filteredEntityTexts {
		keep[t] = true
	}
	for _, e := range enrichment.Entities {
		if keep[e.Text] {
			filteredEntities = append(filteredEntities, e)
		}
	}

	return Model{
		ChunkID:            uuid.NewString(),
		DocumentID:         p.DocumentID,
		TenantID:           p.TenantID,
		CollectionID:       p.CollectionID,
		AgentIDs:           p.AgentIDs,
		Content:            sectionContext + "\n\n" + raw,
		ContentRaw:         raw,
		SectionTitle:       title,
		SectionLevel:       level,
		SectionContext:     sectionContext,
		ParentTitle:        parentTitle,
		SpacyEntities:      filteredEntityTexts,
		SpacyNounChunks:    filterBySurfaceForm(enrichment.NounChunks, raw),
		NormalizedEntities: normalizeEntities(filteredEntities),
		DocumentName:       p.DocumentName,
		DocumentType:       p.DocumentType,
		DocumentNature:     p.DocumentNature,
		Language:           enrichment.Language,
		PageCount:          p.PageCount,
		HasTables:          p.HasTables,
	}
}

// DetectDocumentNature maps a document type to its "nature" classification
// (pdf/docx -> other, txt -> narrative, md/markdown -> technical,
// html -> narrative), per original_source's _detect_document_nature.
func DetectDocumentNature(documentType string) string {
	switch strings.ToLower(documentType) {
	case "txt":
		return "narrative"
	case "md", "markdown":
		return "technical"
	case "html", "htm":
		return "narrative"
	default:
		return "other"
	}
}
