// Package agentconfig implements the ConfigHandler resolution chain from
// §4.7: in-process map -> Redis -> metadata store (public-first, then
// privileged), populating both cache tiers on a store hit, and rewriting
// rag_config.collection_ids to the tenant's real collections.
//
// Grounded on original_source/orchestrator_service/handlers/config_handler.py's
// get_agent_configs, translated onto the teacher's two-client (public/admin)
// metadata-store split and a sync.Map in-process tier.
package agentconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nooble/rag-platform/internal/domainaction"
	"github.com/nooble/rag-platform/internal/domainerr"
	"github.com/nooble/rag-platform/internal/metadatastore"
)

// AgentConfig is the read-only fan-in resolved for an agent_id (§3).
type AgentConfig struct {
	AgentID         string                        `json:"agent_id"`
	AgentName       string                        `json:"agent_name"`
	TenantID        string                        `json:"tenant_id"`
	ExecutionConfig *domainaction.ExecutionConfig `json:"execution_config"`
	QueryConfig     *domainaction.QueryConfig     `json:"query_config"`
	RAGConfig       *domainaction.RAGConfig       `json:"rag_config"`
}

type cacheEntry struct {
	config    AgentConfig
	expiresAt time.Time
}

// Handler is the ConfigHandler: two-level cache in front of the metadata
// store.
type Handler struct {
	rdb   *redis.Client
	store *metadatastore.Store
	ttl   time.Duration

	mu    sync.RWMutex
	local map[string]cacheEntry

	storeReads int // test/debug hook for §8 property 6 (<=1 store read per TTL window)
}

func New(rdb *redis.Client, store *metadatastore.Store, ttl time.Duration) *Handler {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Handler{rdb: rdb, store: store, ttl: ttl, local: make(map[string]cacheEntry)}
}

func redisKey(agentID string) string { return "agentconfig:" + agentID }

// GetAgentConfig resolves agent_id -> AgentConfig via the three-tier chain,
// rewriting collection_ids per §4.7's final step. When neither the public
// nor the full agent lookup finds the agent it returns a NotFound
// domainerr ("agent not found / not public"); there is no default-config
// fallback.
func (h *Handler) GetAgentConfig(ctx context.Context, agentID string) (*AgentConfig, error) {
	if cfg, ok := h.readLocal(agentID); ok {
		return cfg, nil
	}
	if cfg, ok := h.readRedis(ctx, agentID); ok {
		h.writeLocal(agentID, *cfg)
		return cfg, nil
	}

	row, err := h.store.GetPublicAgentConfig(ctx, agentID)
	if err != nil {
		row, err = h.store.GetAgentConfig(ctx, agentID)
		if err != nil {
			return nil, domainerr.NotFound("agent %s not found or not public", agentID)
		}
	}
	h.storeReads++

	cfg, err := decodeAgentRow(row)
	if err != nil {
		return nil, domainerr.Internal(err, "decode agent row for %s", agentID)
	}

	ids, err := h.store.GetCollectionIDs(ctx, cfg.TenantID)
	if err != nil {
		return nil, domainerr.Internal(err, "resolve collection_ids for tenant %s", cfg.TenantID)
	}
	if len(ids) == 0 {
		ids = []string{domainaction.NoDocumentsSentinel}
	}
	if cfg.RAGConfig != nil {
		cfg.RAGConfig.CollectionIDs = ids
	}

	h.writeLocal(agentID, *cfg)
	h.writeRedis(ctx, agentID, *cfg)
	return cfg, nil
}

// Invalidate clears both cache tiers for agentID, per §4.7's explicit
// invalidation operation.
func (h *Handler) Invalidate(ctx context.Context, agentID string) {
	h.mu.Lock()
	delete(h.local, agentID)
	h.mu.Unlock()
	h.rdb.Del(ctx, redisKey(agentID))
}

func (h *Handler) readLocal(agentID string) (*AgentConfig, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.local[agentID]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	cfg := e.config
	return &cfg, true
}

func (h *Handler) writeLocal(agentID string, cfg AgentConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.local[agentID] = cacheEntry{config: cfg, expiresAt: time.Now().Add(h.ttl)}
}

func (h *Handler) readRedis(ctx context.Context, agentID string) (*AgentConfig, bool) {
	raw, err := h.rdb.Get(ctx, redisKey(agentID)).Bytes()
	if err != nil {
		return nil, false
	}
	var cfg AgentConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, false
	}
	return &cfg, true
}

func (h *Handler) writeRedis(ctx context.Context, agentID string, cfg AgentConfig) {
	body, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	h.rdb.Set(ctx, redisKey(agentID), body, h.ttl)
}

func decodeAgentRow(row *metadatastore.AgentRow) (*AgentConfig, error) {
	cfg := &AgentConfig{
		AgentID:   row.AgentID,
		AgentName: row.AgentName,
		TenantID:  row.TenantID,
	}
	if len(row.ExecutionConfig) > 0 {
		cfg.ExecutionConfig = &domainaction.ExecutionConfig{}
		if err := json.Unmarshal(row.ExecutionConfig, cfg.ExecutionConfig); err != nil {
			return nil, fmt.Errorf("execution_config: %w", err)
		}
	}
	if len(row.QueryConfig) > 0 {
		cfg.QueryConfig = &domainaction.QueryConfig{}
		if err := json.Unmarshal(row.QueryConfig, cfg.QueryConfig); err != nil {
			return nil, fmt.Errorf("query_config: %w", err)
		}
	}
	if len(row.RAGConfig) > 0 {
		cfg.RAGConfig = &domainaction.RAGConfig{}
		if err := json.Unmarshal(row.RAGConfig, cfg.RAGConfig); err != nil {
			return nil, fmt.Errorf("rag_config: %w", err)
		}
	}
	return cfg, nil
}
