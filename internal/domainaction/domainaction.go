// Package domainaction defines the uniform inter-service message envelope
// and the typed configs it carries. It is the only shape that crosses a
// Redis stream boundary between services.
package domainaction

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nooble/rag-platform/internal/domainerr"
)

// Action is the DomainAction envelope (§3). origin_service +
// callback_action_type jointly determine the reply stream; context IDs
// flow unchanged through every hop of a causally related chain.
type Action struct {
	ActionID           string `json:"action_id"`
	ActionType         string `json:"action_type"`
	OriginService      string `json:"origin_service"`
	CallbackActionType string `json:"callback_action_type,omitempty"`

	TenantID  string `json:"tenant_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`

	ExecutionConfig *ExecutionConfig `json:"execution_config,omitempty"`
	QueryConfig     *QueryConfig     `json:"query_config,omitempty"`
	RAGConfig       *RAGConfig       `json:"rag_config,omitempty"`

	Data        json.RawMessage `json:"data,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	TraceID       string        `json:"trace_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// New mints a fresh Action with a random action_id and created_at stamped
// to now, for the given origin service and dotted action type.
func New(origin, actionType string) *Action {
	return &Action{
		ActionID:      uuid.NewString(),
		ActionType:    actionType,
		OriginService: origin,
		CreatedAt:     time.Now().UTC(),
	}
}

// WithCallback sets CallbackActionType to "<origin>.<event>" so the
// destination handler knows where to publish its reply.
func (a *Action) WithCallback(event string) *Action {
	a.CallbackActionType = a.OriginService + "." + event
	return a
}

// DestinationService derives the target service from action_type's first
// dotted segment, e.g. "embedding.batch_process" -> "embedding".
func DestinationService(actionType string) string {
	if i := strings.IndexByte(actionType, '.'); i >= 0 {
		return actionType[:i]
	}
	return actionType
}

// ExecutionConfig governs Execution's history handling (§4.3).
type ExecutionConfig struct {
	MaxHistoryLength int `json:"max_history_length"`
	HistoryTTLSeconds int `json:"history_ttl_seconds"`
}

// QueryConfig governs the LLM call in Query (§4.4).
type QueryConfig struct {
	Model                string  `json:"model"`
	Temperature          float64 `json:"temperature"`
	MaxTokens            int     `json:"max_tokens"`
	TopP                 float64 `json:"top_p"`
	FrequencyPenalty     float64 `json:"frequency_penalty"`
	PresencePenalty      float64 `json:"presence_penalty"`
	SystemPromptTemplate string  `json:"system_prompt_template"`
	TimeoutSeconds       int     `json:"timeout_seconds"`
	MaxRetries           int     `json:"max_retries"`
}

// Validate checks the numeric bounds named in §4.4 step 1.
func (c *QueryConfig) Validate() error {
	switch {
	case c.Model == "":
		return domainerr.Validation("query_config.model is required")
	case c.Temperature < 0 || c.Temperature > 1:
		return domainerr.Validation("query_config.temperature must be in [0,1]")
	case c.MaxTokens <= 0:
		return domainerr.Validation("query_config.max_tokens must be > 0")
	case c.TopP < 0 || c.TopP > 1:
		return domainerr.Validation("query_config.top_p must be in [0,1]")
	case c.FrequencyPenalty < 0 || c.FrequencyPenalty > 1:
		return domainerr.Validation("query_config.frequency_penalty must be in [0,1]")
	case c.PresencePenalty < 0 || c.PresencePenalty > 1:
		return domainerr.Validation("query_config.presence_penalty must be in [0,1]")
	}
	return nil
}

// RAGConfig governs retrieval in Query and embedding provider calls (§4.4, §4.6).
type RAGConfig struct {
	TopK                int      `json:"top_k"`
	SimilarityThreshold float64  `json:"similarity_threshold"`
	CollectionIDs       []string `json:"collection_ids"`
	FactDensityBoost    float64  `json:"fact_density_boost"`
	RRFK                int      `json:"rrf_k"`
	EmbeddingModel      string   `json:"embedding_model"`
	EmbeddingDimensions int      `json:"embedding_dimensions"`
	MaxRetries          int      `json:"max_retries"`
	MaxTextLength       int      `json:"max_text_length"`
}

// NoDocumentsSentinel is the collection_ids value meaning "this agent has
// no indexed documents"; retrieval is skipped entirely when present.
const NoDocumentsSentinel = "no_documents_available"

// HasDocuments reports whether retrieval should run at all.
func (c *RAGConfig) HasDocuments() bool {
	if c == nil || len(c.CollectionIDs) == 0 {
		return false
	}
	return !(len(c.CollectionIDs) == 1 && c.CollectionIDs[0] == NoDocumentsSentinel)
}

// Validate checks the bounds named in §4.4 step 1.
func (c *RAGConfig) Validate() error {
	switch {
	case c.TopK < 1:
		return domainerr.Validation("rag_config.top_k must be >= 1")
	case c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1:
		return domainerr.Validation("rag_config.similarity_threshold must be in [0,1]")
	case len(c.CollectionIDs) == 0:
		return domainerr.Validation("rag_config.collection_ids must be non-empty")
	}
	return nil
}
