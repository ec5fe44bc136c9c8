// Package metadatastore is the relational metadata store client (§6):
// tables agents_with_prompt (view), documents_rag, conversations, messages.
// Grounded on jackc/pgx/v5 pooled access, the way intelligencedev-manifold
// and codeready-toolchain-tarsy talk to Postgres. Only one client tier
// exists here: the admin Store below, used for reads and writes alike.
// There is no public client bound to a per-request JWT; public-agent
// lookups run on the same admin pool with an is_public filter.
package metadatastore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nooble/rag-platform/internal/domainerr"
)

// Store is the admin-privileged relational client: writes and
// RLS-bypassing lookups (collection_ids, ingestion metadata inserts, per
// §5's "Metadata store: two clients").
type Store struct {
	pool *pgxpool.Pool
}

// Open connects an admin Store using dsn (service-role credentials).
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("metadatastore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("metadatastore: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

// AgentRow is the joined agents_with_prompt view row (§4.7, §6).
type AgentRow struct {
	AgentID         string
	TenantID        string
	AgentName       string
	IsPublic        bool
	SystemPrompt    string
	ExecutionConfig []byte // raw JSON, decoded by caller into domainaction.ExecutionConfig
	QueryConfig     []byte
	RAGConfig       []byte
}

// GetPublicAgentConfig reads agents_with_prompt filtered to is_public=true,
// the "public-first" lookup in §4.7's ConfigHandler resolution order.
func (s *Store) GetPublicAgentConfig(ctx context.Context, agentID string) (*AgentRow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT agent_id, tenant_id, agent_name, is_public, system_prompt,
		       execution_config, query_config, rag_config
		FROM agents_with_prompt
		WHERE agent_id = $1 AND is_public = true`, agentID)
	return scanAgentRow(row)
}

// GetAgentConfig reads agents_with_prompt without the is_public filter —
// the privileged fallback lookup in §4.7.
func (s *Store) GetAgentConfig(ctx context.Context, agentID string) (*AgentRow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT agent_id, tenant_id, agent_name, is_public, system_prompt,
		       execution_config, query_config, rag_config
		FROM agents_with_prompt
		WHERE agent_id = $1`, agentID)
	return scanAgentRow(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgentRow(row rowScanner) (*AgentRow, error) {
	var r AgentRow
	if err := row.Scan(&r.AgentID, &r.TenantID, &r.AgentName, &r.IsPublic, &r.SystemPrompt,
		&r.ExecutionConfig, &r.QueryConfig, &r.RAGConfig); err != nil {
		return nil, domainerr.NotFound("agent %s: %v", "unknown", err)
	}
	return &r, nil
}

// GetCollectionIDs returns the set of real collection_ids holding
// completed documents for tenant, or nil if none — the source the
// ConfigHandler rewrite in §4.7 consults.
func (s *Store) GetCollectionIDs(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT collection_id FROM documents_rag
		WHERE tenant_id = $1 AND status = 'completed'`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("metadatastore: collection_ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DocumentModelInfo is what the collection-consistency check (§4.5.3) needs
// about the existing documents in a (tenant_id, collection_id).
type DocumentModelInfo struct {
	EmbeddingModel      string
	EmbeddingDimensions int
}

// CheckCollectionConsistency returns the (model, dimensions) already in use
// for (tenantID, collectionID), or ok=false if the collection is empty.
func (s *Store) CheckCollectionConsistency(ctx context.Context, tenantID, collectionID string) (info DocumentModelInfo, ok bool, err error) {
	row := s.pool.QueryRow(ctx, `
		SELECT embedding_model, embedding_dimensions FROM documents_rag
		WHERE tenant_id = $1 AND collection_id = $2
		LIMIT 1`, tenantID, collectionID)
	err = row.Scan(&info.EmbeddingModel, &info.EmbeddingDimensions)
	if err != nil {
		return DocumentModelInfo{}, false, nil // no rows -> empty collection, not an error
	}
	return info, true, nil
}

// DocumentRecord is one documents_rag row, written at the end of the
// ingestion pipeline (§4.5 E3).
type DocumentRecord struct {
	TenantID            string
	CollectionID        string
	DocumentID          string
	DocumentName        string
	DocumentType        string
	EmbeddingModel      string
	EmbeddingDimensions int
	ChunkSize           int
	ChunkOverlap        int
	Status              string
	TotalChunks         int
	ProcessedChunks     int
	AgentIDs            []string
	Metadata            []byte
}

// UpsertDocument inserts or, on a duplicate document_id (idempotent retry
// per §8 property S6), updates the documents_rag row.
func (s *Store) UpsertDocument(ctx context.Context, d DocumentRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents_rag
			(tenant_id, collection_id, document_id, document_name, document_type,
			 embedding_model, embedding_dimensions, chunk_size, chunk_overlap,
			 status, total_chunks, processed_chunks, agent_ids, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (document_id) DO UPDATE SET
			status = EXCLUDED.status,
			total_chunks = EXCLUDED.total_chunks,
			processed_chunks = EXCLUDED.processed_chunks,
			agent_ids = EXCLUDED.agent_ids,
			metadata = EXCLUDED.metadata`,
		d.TenantID, d.CollectionID, d.DocumentID, d.DocumentName, d.DocumentType,
		d.EmbeddingModel, d.EmbeddingDimensions, d.ChunkSize, d.ChunkOverlap,
		d.Status, d.TotalChunks, d.ProcessedChunks, d.AgentIDs, d.Metadata)
	if err != nil {
		return fmt.Errorf("metadatastore: upsert document: %w", err)
	}
	return nil
}

// DeleteDocument removes the documents_rag row for (tenantID, collectionID,
// documentID), used alongside the vector-store filter-delete in §4.5.2.
func (s *Store) DeleteDocument(ctx context.Context, tenantID, collectionID, documentID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM documents_rag
		WHERE tenant_id = $1 AND collection_id = $2 AND document_id = $3`,
		tenantID, collectionID, documentID)
	return err
}

// UpdateDocumentAgents implements the update_document_agents RPC (§6) with
// operation ∈ {set, add, remove} over the stored agent_ids array.
func (s *Store) UpdateDocumentAgents(ctx context.Context, documentID string, agentIDs []string, operation string) error {
	switch operation {
	case "set":
		_, err := s.pool.Exec(ctx, `UPDATE documents_rag SET agent_ids = $2 WHERE document_id = $1`, documentID, agentIDs)
		return err
	case "add":
		_, err := s.pool.Exec(ctx, `
			UPDATE documents_rag SET agent_ids = (
				SELECT array_agg(DISTINCT x) FROM unnest(agent_ids || $2::text[]) AS x
			) WHERE document_id = $1`, documentID, agentIDs)
		return err
	case "remove":
		_, err := s.pool.Exec(ctx, `
			UPDATE documents_rag SET agent_ids = (
				SELECT array_agg(x) FROM unnest(agent_ids) AS x WHERE x <> ALL($2::text[])
			) WHERE document_id = $1`, documentID, agentIDs)
		return err
	default:
		return domainerr.Validation("unknown operation %q, want set|add|remove", operation)
	}
}

// InsertMessage persists one conversation turn (§4.3 step 7, conversation
// worker's fire-and-forget handler).
func (s *Store) InsertMessage(ctx context.Context, conversationID, role, content string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, now())`, conversationID, role, content)
	return err
}

// EnsureConversation creates the conversations row if absent, returning its
// id — conversation_id in the spec is stable per (tenant_id, session_id,
// agent_id).
func (s *Store) EnsureConversation(ctx context.Context, tenantID, sessionID, agentID string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (tenant_id, session_id, agent_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, session_id, agent_id) DO UPDATE SET tenant_id = EXCLUDED.tenant_id
		RETURNING id`, tenantID, sessionID, agentID).Scan(&id)
	return id, err
}

// CloseConversation marks a conversation closed on session teardown
// (conversation_service.session.closed, §4.3 step 7).
func (s *Store) CloseConversation(ctx context.Context, conversationID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE conversations SET closed_at = now() WHERE id = $1`, conversationID)
	return err
}
