package domainaction

import (
	"encoding/json"
	"time"
)

// Message is a single chat turn, shared by Session, ConversationHistory,
// and the execution/query payloads below.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRequestPayload is the data carried by execution.chat.simple /
// execution.chat.advance (§4.2 step 5, §4.3). Tools is forwarded verbatim
// from the inbound chat_message frame — it is also what §4.2 step 3 uses
// to decide mode (advance if non-empty, else simple).
type ChatRequestPayload struct {
	Messages []Message        `json:"messages"`
	Tools    []json.RawMessage `json:"tools,omitempty"`
}

// ChatResponsePayload is the data carried back on orchestrator.chat.response
// (§4.3 step 5, §4.2 callback handling).
type ChatResponsePayload struct {
	Message          Message  `json:"message"`
	Usage            Usage    `json:"usage"`
	ConversationID   string   `json:"conversation_id"`
	Sources          []string `json:"sources"`
	ExecutionTimeMs  int64    `json:"execution_time_ms"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// ChatErrorPayload is the data carried on orchestrator.chat.error.
type ChatErrorPayload struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
}

// Usage mirrors a typical LLM token-accounting block.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// QueryGeneratePayload is the data carried by query.generate.simple
// (§4.4), dispatched by Execution with the integrated message list.
type QueryGeneratePayload struct {
	Messages []Message `json:"messages"`
}

// QueryResultPayload is the reply to a query.generate.* dispatch. Error is
// set instead of AssistantContent on failure (validation, retrieval, or LLM
// call) — mirrors EmbeddingQueryResultPayload's Error field so a failed
// query is never mistaken for an empty-but-successful one (spec.md:123).
type QueryResultPayload struct {
	AssistantContent string   `json:"assistant_content,omitempty"`
	Usage            Usage    `json:"usage"`
	Sources          []string `json:"sources"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
	Error            string   `json:"error,omitempty"`
}

// EmbeddingBatchRequestPayload is the data carried by embedding.batch_process
// (§4.5 E2, §4.6).
type EmbeddingBatchRequestPayload struct {
	Texts      []string `json:"texts"`
	ChunkIDs   []string `json:"chunk_ids"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
	TenantID   string   `json:"tenant_id"`
}

// EmbeddingResult is one element of an EmbeddingBatchResultPayload — either
// Embedding or Error is set, never both (§7 partial-failure semantics).
type EmbeddingResult struct {
	ChunkID   string    `json:"chunk_id"`
	Embedding []float32 `json:"embedding,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// EmbeddingBatchResultPayload is the reply to embedding.batch_process.
type EmbeddingBatchResultPayload struct {
	Embeddings       []EmbeddingResult `json:"embeddings"`
	Model            string            `json:"model"`
	Dimensions       int               `json:"dimensions"`
	Usage            Usage             `json:"usage"`
	ProcessingTimeMs int64             `json:"processing_time_ms"`
}

// EmbeddingQueryRequestPayload is the data carried by embedding.generate_query
// (§4.4 step 3a): a single string to embed for retrieval.
type EmbeddingQueryRequestPayload struct {
	Text       string `json:"text"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	TenantID   string `json:"tenant_id"`
}

// EmbeddingQueryResultPayload is the reply to embedding.generate_query.
type EmbeddingQueryResultPayload struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

// ExtractionRequestPayload is the data carried by extraction.document.process
// (§4.5 E1, §4.6).
type ExtractionRequestPayload struct {
	FilePath        string `json:"file_path"`
	DocumentType    string `json:"document_type"`
	ProcessingMode  string `json:"processing_mode"`
	SpacyModelSize  string `json:"spacy_model_size"`
	MaxPages        int    `json:"max_pages,omitempty"`
}

// SectionInfo is one heading-delimited span of extracted text (§4.5.1).
type SectionInfo struct {
	Title      string `json:"title"`
	Level      int    `json:"level"`
	StartChar  int    `json:"start_char"`
	EndChar    int    `json:"end_char"`
	ParentTitle string `json:"parent_title,omitempty"`
}

// DocumentStructure is the structural metadata extraction reports (§4.6 step 2).
type DocumentStructure struct {
	Sections  []SectionInfo `json:"sections"`
	Tables    int           `json:"tables"`
	PageCount int           `json:"page_count"`
	WordCount int           `json:"word_count"`
	HasTOC    bool          `json:"has_toc"`
	HasImages bool          `json:"has_images"`
}

// SpacyEnrichment mirrors the enrichment bundle original_source's
// hierarchical_chunker.py expects (entities, noun chunks, lemmas, language).
type SpacyEnrichment struct {
	Entities      []SpacyEntity `json:"entities"`
	NounChunks    []string      `json:"noun_chunks"`
	EntitiesByType map[string][]string `json:"entities_by_type"`
	Lemmas        []string      `json:"lemmas"`
	Language      string        `json:"language"`
}

// SpacyEntity is one named-entity span.
type SpacyEntity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// ExtractionResultPayload is the reply to extraction.document.process,
// delivered on ingestion.extraction_callback (§4.5 E2, §4.6 step 4).
type ExtractionResultPayload struct {
	Status          string           `json:"status"` // "completed" | "failed"
	ExtractedText   string           `json:"extracted_text,omitempty"`
	Structure       *DocumentStructure `json:"structure,omitempty"`
	SpacyEnrichment *SpacyEnrichment `json:"spacy_enrichment,omitempty"`
	ExtractionMethod string          `json:"extraction_method,omitempty"`
	Language        string           `json:"language,omitempty"`
	Error           *ExtractionErrorPayload `json:"error,omitempty"`
}

// ExtractionErrorPayload mirrors domainerr.ExtractionError on the wire.
type ExtractionErrorPayload struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Stage       string `json:"stage"`
	Recoverable bool   `json:"recoverable"`
}

// ConversationCreatePayload is the fire-and-forget data for
// conversation_service.message.create (§4.3 step 7).
type ConversationCreatePayload struct {
	ConversationID string         `json:"conversation_id"`
	UserMessage    Message        `json:"user_message"`
	AgentMessage   Message        `json:"agent_message"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ConversationSessionClosedPayload is the fire-and-forget data for
// conversation_service.session.closed.
type ConversationSessionClosedPayload struct {
	ConversationID string `json:"conversation_id"`
	SessionID      string `json:"session_id"`
}
