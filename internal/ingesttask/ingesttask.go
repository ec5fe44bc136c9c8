// Package ingesttask owns Ingestion's per-task pipeline state (§3, §4.5):
// a cache-backed record keyed ingestion:task:{task_id}, transitioned
// exclusively by the three inbound actions named in §4.5 (the initial
// ingest request, the extraction callback, the embedding callback).
// Grounded on sessionstore's Redis write-through pattern, generalized from
// an in-process+Redis two-tier cache to Redis-only, since a task's chunk
// payload can be too large to duplicate safely across every Ingestion
// replica's local map.
package ingesttask

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nooble/rag-platform/internal/chunk"
	"github.com/nooble/rag-platform/internal/domainaction"
	"github.com/nooble/rag-platform/internal/domainerr"
)

// Status is the task's position in the four-stage pipeline (§3).
type Status string

const (
	StatusPending    Status = "pending"
	StatusExtracting Status = "extracting"
	StatusChunking   Status = "chunking"
	StatusEmbedding  Status = "embedding"
	StatusStoring    Status = "storing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// forwardOrder encodes the allowed forward-only transition sequence; any
// status may transition to StatusFailed regardless of position (§3's
// "transitions are forward-only except to failed").
var forwardOrder = map[Status]int{
	StatusPending:    0,
	StatusExtracting: 1,
	StatusChunking:   2,
	StatusEmbedding:  3,
	StatusStoring:    4,
	StatusCompleted:  5,
	StatusFailed:     6,
}

// Task is the IngestionTask record (§3).
type Task struct {
	TaskID          string                 `json:"task_id"`
	DocumentID      string                 `json:"document_id"`
	TenantID        string                 `json:"tenant_id"`
	UserID          string                 `json:"user_id,omitempty"`
	CollectionID    string                 `json:"collection_id"`
	AgentIDs        []string               `json:"agent_ids"`
	RAGConfig       *domainaction.RAGConfig `json:"rag_config,omitempty"`
	Status          Status                 `json:"status"`
	FilePath        string                 `json:"file_path"`
	DocumentName    string                 `json:"document_name,omitempty"`
	DocumentType    string                 `json:"document_type,omitempty"`
	EmbeddingModel  string                 `json:"embedding_model,omitempty"`
	EmbeddingDimensions int                `json:"embedding_dimensions,omitempty"`
	ChunkSize       int                    `json:"chunk_size,omitempty"`
	ChunkOverlap    int                    `json:"chunk_overlap,omitempty"`
	Chunks          []chunk.Model          `json:"chunks,omitempty"`
	TotalChunks     int                    `json:"total_chunks"`
	ProcessedChunks int                    `json:"processed_chunks"`
	FailedIDs       []string               `json:"failed_ids,omitempty"`
	Error           *domainaction.ExtractionErrorPayload `json:"error,omitempty"`
	StartedAt       time.Time              `json:"started_at"`
}

// Percentage maps status onto the progress value §4.5 emits alongside
// each WS ingestion_progress frame.
func (t *Task) Percentage() int {
	switch t.Status {
	case StatusPending:
		return 0
	case StatusExtracting:
		return 15
	case StatusChunking:
		return 30
	case StatusEmbedding:
		return 40
	case StatusStoring:
		return 85
	case StatusCompleted:
		return 100
	case StatusFailed:
		return 0
	default:
		return 0
	}
}

// TTL is the minimum cache lifetime §4.5 requires ("TTL >= one hour").
const TTL = time.Hour

// Store is the Redis-backed task state table.
type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func redisKey(taskID string) string { return "ingestion:task:" + taskID }

// Create installs a brand-new task at StatusPending.
func (s *Store) Create(ctx context.Context, t *Task) error {
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.StartedAt.IsZero() {
		t.StartedAt = time.Now().UTC()
	}
	return s.save(ctx, t)
}

// Get loads a task by ID, or domainerr.NotFound if absent/expired.
func (s *Store) Get(ctx context.Context, taskID string) (*Task, error) {
	raw, err := s.rdb.Get(ctx, redisKey(taskID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, domainerr.NotFound("ingestion task %s not found", taskID)
		}
		return nil, fmt.Errorf("ingesttask: get %s: %w", taskID, err)
	}
	var t Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("ingesttask: decode %s: %w", taskID, err)
	}
	return &t, nil
}

// Transition advances t.Status, enforcing the forward-only invariant
// (§3): any status may move to StatusFailed; otherwise the new status
// must come strictly after the current one in forwardOrder.
func (s *Store) Transition(ctx context.Context, t *Task, next Status) error {
	if next != StatusFailed {
		if forwardOrder[next] <= forwardOrder[t.Status] {
			return domainerr.Integrity("illegal transition %s -> %s for task %s", t.Status, next, t.TaskID)
		}
	}
	t.Status = next
	return s.save(ctx, t)
}

// Fail transitions t to StatusFailed and records the error payload.
func (s *Store) Fail(ctx context.Context, t *Task, errPayload *domainaction.ExtractionErrorPayload) error {
	t.Status = StatusFailed
	t.Error = errPayload
	return s.save(ctx, t)
}

// Complete transitions t to StatusCompleted and drops the in-flight chunk
// payload from the cache (§4.5 E3's "clear in-flight chunk payload").
func (s *Store) Complete(ctx context.Context, t *Task) error {
	if forwardOrder[StatusCompleted] <= forwardOrder[t.Status] && t.Status != StatusStoring {
		return domainerr.Integrity("illegal transition %s -> completed for task %s", t.Status, t.TaskID)
	}
	t.Status = StatusCompleted
	t.Chunks = nil
	return s.save(ctx, t)
}

func (s *Store) save(ctx context.Context, t *Task) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("ingesttask: encode %s: %w", t.TaskID, err)
	}
	if err := s.rdb.Set(ctx, redisKey(t.TaskID), body, TTL).Err(); err != nil {
		return fmt.Errorf("ingesttask: save %s: %w", t.TaskID, err)
	}
	return nil
}
