package extractsvc

import (
	"github.com/nooble/rag-platform/internal/chunk"
	"github.com/nooble/rag-platform/internal/domainaction"
)

// ToChunkSections adapts the wire-shaped DocumentStructure.Sections into
// chunk.Section, the shape ChunkDocument consumes. cmd/ingestion does not
// call it; its E2 handler builds the chunk.Section list inline.
func ToChunkSections(structure *domainaction.DocumentStructure) []chunk.Section {
	if structure == nil {
		return nil
	}
	out := make([]chunk.Section, 0, len(structure.Sections))
	for _, s := range structure.Sections {
		out = append(out, chunk.Section{
			Title:       s.Title,
			Level:       s.Level,
			StartChar:   s.StartChar,
			EndChar:     s.EndChar,
			ParentTitle: s.ParentTitle,
		})
	}
	return out
}

// ToChunkEnrichment adapts the wire-shaped SpacyEnrichment into
// chunk.Enrichment.
func ToChunkEnrichment(e domainaction.SpacyEnrichment) chunk.Enrichment {
	entities := make([]chunk.Entity, 0, len(e.Entities))
	for _, ent := range e.Entities {
		entities = append(entities, chunk.Entity{Text: ent.Text, Label: ent.Label})
	}
	return chunk.Enrichment{
		Entities:       entities,
		NounChunks:     e.NounChunks,
		EntitiesByType: e.EntitiesByType,
		Language:       e.Language,
	}
}
