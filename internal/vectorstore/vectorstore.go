// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package vectorstore wraps the Qdrant vector database for the hybrid
// dense+BM25 retrieval contract (§4.4.1) and the upsert/delete operations
// ingestion needs (§4.5.2). It generalizes the teacher's vectordb.go (a
// dense-only wrapper over the split CollectionsClient/PointsClient API)
// onto the unified qdrant.Client Query/Prefetch surface shown in the
// pack's newer qdrant integrations, so a single RPC can fuse a dense
// prefetch and a sparse BM25 prefetch with Reciprocal Rank Fusion.
package vectorstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/qdrant/go-client/qdrant"

	"github.com/nooble/rag-platform/internal/bm25"
	"github.com/nooble/rag-platform/internal/domainerr"
)

const (
	denseVectorName = "dense"
	sparseVectorName = "bm25"
)

// Store wraps a single physical collection shared across tenants;
// isolation is enforced entirely by mandatory tenant_id + agent_ids
// filters on every query (§3).
type Store struct {
	client     *qdrant.Client
	collection string
}

// Config mirrors the teacher's dial-then-wrap pattern in cmd/hive-server,
// generalized to the qdrant.Client constructor.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// Open dials Qdrant and ensures the collection exists with the dense
// cosine + sparse BM25 vector configuration §4.4.1 and §6 require.
func Open(ctx context.Context, cfg Config, denseDimensions int) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: connect: %w", err)
	}

	s := &Store{client: client, collection: cfg.Collection}
	if err := s.ensureCollection(ctx, denseDimensions); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context, denseDimensions int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("vectorstore: check collection exists: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			denseVectorName: {
				Size:     uint64(denseDimensions),
				Distance: qdrant.Distance_Cosine,
			},
		}),
		SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
			sparseVectorName: {},
		}),
	})
	if err != nil {
		return fmt.Errorf("vectorstore: create collection %s: %w", s.collection, err)
	}

	for _, field := range []string{"tenant_id", "collection_id", "document_id", "document_nature"} {
		_, _ = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
	}
	_, _ = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      "agent_ids",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	_, _ = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      "fact_density",
		FieldType:      qdrant.FieldType_FieldTypeFloat.Enum(),
	})
	// Full-text indices §4.4.1 requires for the convenience searches over
	// content/search_anchors/atomic_facts.
	for _, field := range []string{"content", "search_anchors", "atomic_facts"} {
		_, _ = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeText.Enum(),
		})
	}
	return nil
}

// Point is the indexed shape of one chunk (§3's VectorRecord).
type Point struct {
	ID      string
	Dense   []float32
	Sparse  bm25.SparseVector
	Payload map[string]any
}

// Upsert writes points with wait=true, per §4.5.2. Idempotent by point ID
// (chunk_id): re-upserting the same ID overwrites in place, satisfying the
// duplicate-delivery invariant in §8 property S6.
func (s *Store) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	pbPoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload, err := qdrant.TryValueMap(p.Payload)
		if err != nil {
			return fmt.Errorf("vectorstore: build payload for %s: %w", p.ID, err)
		}
		pbPoints = append(pbPoints, &qdrant.PointStruct{
			Id: qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				denseVectorName:  qdrant.NewVector(p.Dense...),
				sparseVectorName: qdrant.NewVectorSparse(p.Sparse.Indices, p.Sparse.Values),
			}),
			Payload: payload,
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         pbPoints,
	})
	if err != nil {
		return fmt.Errorf("vectorstore: upsert %d points: %w", len(pbPoints), err)
	}
	return nil
}

// DeleteByDocument removes every point for (tenantID, collectionID,
// documentID), §4.5.2's deletion-by-document operation.
func (s *Store) DeleteByDocument(ctx context.Context, tenantID, collectionID, documentID string) error {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatchKeyword("tenant_id", tenantID),
			qdrant.NewMatchKeyword("collection_id", collectionID),
			qdrant.NewMatchKeyword("document_id", documentID),
		},
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return fmt.Errorf("vectorstore: delete by document %s: %w", documentID, err)
	}
	return nil
}

// SearchFilter carries the mandatory tenant isolation and optional scoping
// filters from §4.4.1.
type SearchFilter struct {
	TenantID      string
	AgentIDs      []string
	CollectionIDs []string
	DocumentID    string // optional
}

func (f SearchFilter) toQdrant() *qdrant.Filter {
	must := []*qdrant.Condition{
		qdrant.NewMatchKeyword("tenant_id", f.TenantID),
	}
	if len(f.AgentIDs) > 0 {
		must = append(must, qdrant.NewMatch("agent_ids", f.AgentIDs))
	}
	if len(f.CollectionIDs) > 0 {
		must = append(must, qdrant.NewMatch("collection_id", f.CollectionIDs))
	}
	if f.DocumentID != "" {
		must = append(must, qdrant.NewMatchKeyword("document_id", f.DocumentID))
	}
	return &qdrant.Filter{Must: must}
}

// Hit is one fused hybrid search result, mapped from a qdrant ScoredPoint.
type Hit struct {
	ChunkID      string
	DocumentID   string
	CollectionID string
	Content      string
	Score        float64
	Metadata     map[string]any
}

// HybridSearchParams tunes the RRF fusion in §4.4.1.
type HybridSearchParams struct {
	TopK             int
	RRFK             int     // default 60
	FactDensityBoost float64 // 0 disables the boost
}

// HybridSearch runs the two parallel prefetches (dense cosine, BM25
// sparse) under a shared filter, fused by Reciprocal Rank Fusion (§4.4.1).
// When the fact_density-boost expression is rejected by the server, it
// falls back to plain RRF (still via this same call shape, since the
// fallback here is "boost=0" — a genuinely rejected formula would come
// back as a transport error, handled by DenseOnlySearch at the caller).
func (s *Store) HybridSearch(ctx context.Context, denseQuery []float32, sparseQuery bm25.SparseVector, filter SearchFilter, params HybridSearchParams) ([]Hit, error) {
	if params.RRFK <= 0 {
		params.RRFK = 60
	}
	qf := filter.toQdrant()

	prefetch := []*qdrant.PrefetchQuery{
		{
			Query:  qdrant.NewQuery(denseQuery...),
			Using:  qdrant.PtrOf(denseVectorName),
			Filter: qf,
			Limit:  qdrant.PtrOf(uint64(params.TopK)),
		},
		{
			Query:  qdrant.NewQuerySparse(sparseQuery.Indices, sparseQuery.Values),
			Using:  qdrant.PtrOf(sparseVectorName),
			Filter: qf,
			Limit:  qdrant.PtrOf(uint64(params.TopK)),
		},
	}

	resp, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Prefetch:       prefetch,
		Query:          qdrant.NewQueryFusion(qdrant.Fusion_RRF),
		Limit:          qdrant.PtrOf(uint64(params.TopK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, domainerr.Transient(err, "hybrid search failed")
	}

	hits := toHits(resp)
	if params.FactDensityBoost > 0 {
		denseRank := s.denseRank(ctx, denseQuery, qf, params.TopK)
		applyFactDensityBoost(hits, params.FactDensityBoost, denseRank)
	}
	return hits, nil
}

// denseRank runs the dense-only half of the hybrid query alone so boosted
// fusion results can break score ties by original dense rank (§4.4.1).
// Best-effort: a failure here just means ties keep the server's fused
// order instead of falling back to dense rank.
func (s *Store) denseRank(ctx context.Context, denseQuery []float32, filter *qdrant.Filter, topK int) map[string]int {
	resp, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(denseQuery...),
		Using:          qdrant.PtrOf(denseVectorName),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return nil
	}
	rank := make(map[string]int, len(resp))
	for i, p := range resp {
		if id := p.GetId(); id != nil {
			rank[id.GetUuid()] = i
		}
	}
	return rank
}

// DenseOnlySearch is the fallback path (§4.4 step 3c's implicit contract,
// §8 scenario robustness): used when HybridSearch's sparse prefetch cannot
// run, e.g. the sparse vector config is unavailable.
func (s *Store) DenseOnlySearch(ctx context.Context, denseQuery []float32, filter SearchFilter, topK int, scoreThreshold float64) ([]Hit, error) {
	resp, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(denseQuery...),
		Using:          qdrant.PtrOf(denseVectorName),
		Filter:         filter.toQdrant(),
		Limit:          qdrant.PtrOf(uint64(topK)),
		ScoreThreshold: qdrant.PtrOf(float32(scoreThreshold)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, domainerr.Transient(err, "dense-only search failed")
	}
	return toHits(resp), nil
}

func toHits(scored []*qdrant.ScoredPoint) []Hit {
	hits := make([]Hit, 0, len(scored))
	for _, p := range scored {
		h := Hit{Score: float64(p.GetScore())}
		if id := p.GetId(); id != nil {
			h.ChunkID = id.GetUuid()
		}
		payload := p.GetPayload()
		meta := make(map[string]any, len(payload))
		for k, v := range payload {
			meta[k] = qdrantValueToAny(v)
		}
		if v, ok := meta["document_id"].(string); ok {
			h.DocumentID = v
		}
		if v, ok := meta["collection_id"].(string); ok {
			h.CollectionID = v
		}
		if v, ok := meta["content"].(string); ok {
			h.Content = v
		}
		h.Metadata = meta
		hits = append(hits, h)
	}
	return hits
}

func qdrantValueToAny(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch k := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	default:
		return nil
	}
}

// applyFactDensityBoost multiplies each fused score by (1 + boost *
// fact_density), defaulting fact_density to 0.5 when absent, then re-sorts
// by the boosted score so the returned order actually reflects it — ties
// are broken by original dense rank (§4.4.1).
func applyFactDensityBoost(hits []Hit, boost float64, denseRank map[string]int) {
	for i := range hits {
		fd := 0.5
		if v, ok := hits[i].Metadata["fact_density"].(float64); ok {
			fd = v
		}
		hits[i].Score *= 1 + boost*fd
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		ri, oki := denseRank[hits[i].ChunkID]
		rj, okj := denseRank[hits[j].ChunkID]
		if oki && okj {
			return ri < rj
		}
		return oki && !okj
	})
}
