// Package bm25 builds the sparse BM25 term-weighted representation used
// alongside dense vectors for hybrid search (§4.4.1, §4.5.2). Composition
// is a pure function of chunk fields (§8 property 7): no network I/O, no
// hidden state, so it is exercised directly by the ingestion pipeline and
// by Query's query-side sparse vector step.
package bm25

import (
	"math"
	"sort"
	"strings"
)

// SparseVector is a Qdrant-compatible sparse vector: parallel index/value
// slices, indices sorted ascending.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// ChunkFields is the subset of ChunkModel that composes bm25_text
// (§4.5.2): section_context x3, noun_chunks x3, entities x2,
// search_anchors x3 (if present), atomic_facts x2, content_raw x1.
type ChunkFields struct {
	SectionContext string
	NounChunks     []string
	Entities       []string
	SearchAnchors  []string
	AtomicFacts    []string
	ContentRaw     string
}

// ComposeText concatenates the weighted fields into the text BM25 is
// computed over. Pure function of its input — no global corpus state.
func ComposeText(f ChunkFields) string {
	var b strings.Builder
	repeat := func(weight int, parts ...string) {
		joined := strings.Join(filterEmpty(parts), " ")
		if joined == "" {
			return
		}
		for i := 0; i < weight; i++ {
			b.WriteString(joined)
			b.WriteByte(' ')
		}
	}
	repeat(3, f.SectionContext)
	repeat(3, f.NounChunks...)
	repeat(2, f.Entities...)
	if len(f.SearchAnchors) > 0 {
		repeat(3, f.SearchAnchors...)
	}
	if len(f.AtomicFacts) > 0 {
		repeat(2, f.AtomicFacts...)
	}
	repeat(1, f.ContentRaw)
	return strings.TrimSpace(b.String())
}

func filterEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// Model is a process-lifetime BM25 scorer: it accumulates document
// frequency statistics as documents are observed (Observe), matching §5's "BM25
// model in Ingestion: lazy singleton per process". Encoding a query
// (EncodeQuery) does not mutate corpus statistics; it uses whatever IDF
// has been observed so far, which is the standard online-IDF approximation
// vector databases expect when sparse vectors are computed client-side.
type Model struct {
	k1, b     float64
	docFreq   map[string]int
	docCount  int
	avgDocLen float64
	totalLen  int
}

// NewModel returns a BM25 scorer with the conventional k1=1.2, b=0.75.
func NewModel() *Model {
	return &Model{k1: 1.2, b: 0.75, docFreq: make(map[string]int)}
}

// Observe folds one document's term set into the corpus statistics; call
// it once per chunk as chunks are produced during ingestion.
func (m *Model) Observe(text string) {
	terms := tokenize(text)
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			m.docFreq[t]++
		}
	}
	m.docCount++
	m.totalLen += len(terms)
	if m.docCount > 0 {
		m.avgDocLen = float64(m.totalLen) / float64(m.docCount)
	}
}

// Encode computes the BM25 sparse vector for text against the corpus
// statistics accumulated so far via Observe. Call Observe(text) before
// Encode(text) when indexing a chunk so its own term frequencies count.
func (m *Model) Encode(text string) SparseVector {
	terms := tokenize(text)
	tf := make(map[string]int)
	for _, t := range terms {
		tf[t]++
	}
	docLen := float64(len(terms))
	avgLen := m.avgDocLen
	if avgLen == 0 {
		avgLen = docLen
		if avgLen == 0 {
			avgLen = 1
		}
	}

	type kv struct {
		idx uint32
		val float32
	}
	entries := make([]kv, 0, len(tf))
	for term, freq := range tf {
		df := m.docFreq[term]
		if df == 0 {
			df = 1
		}
		n := m.docCount
		if n == 0 {
			n = 1
		}
		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
		num := float64(freq) * (m.k1 + 1)
		den := float64(freq) + m.k1*(1-m.b+m.b*docLen/avgLen)
		score := idf * num / den
		if score <= 0 {
			continue
		}
		entries = append(entries, kv{idx: termHash(term), val: float32(score)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].idx < entries[j].idx })

	sv := SparseVector{Indices: make([]uint32, len(entries)), Values: make([]float32, len(entries))}
	for i, e := range entries {
		sv.Indices[i] = e.idx
		sv.Values[i] = e.val
	}
	return sv
}

// EncodeQuery computes a sparse vector for a query string without folding
// it into corpus statistics (§4.4 step 3b: "Generate the BM25 sparse
// vector locally from the query text").
func (m *Model) EncodeQuery(text string) SparseVector {
	return m.Encode(text)
}

func tokenize(text string) []string {
	text = strings.ToLower(text)
	return strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// termHash maps a token to a stable sparse-vector dimension index using
// FNV-1a, the same scheme fastembed-style BM25 sparse encoders use to
// avoid maintaining a persistent vocabulary table.
func termHash(term string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(term); i++ {
		h ^= uint32(term[i])
		h *= 16777619
	}
	return h
}
