// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// cmd/ingestion is the Ingestion pipeline controller (§4.5): the hardest
// state machine in the platform. It exposes the HTTP surface (/ingest,
// /upload, /document/{id}, /status/{task_id}, the ingestion WebSocket) and
// drives the three DomainAction entry points (E1 the initial request, E2
// the extraction callback, E3 the embedding callback) against a single
// ingesttask.Store so HTTP polling and the WS observe identical state.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/nooble/rag-platform/internal/bm25"
	"github.com/nooble/rag-platform/internal/chunk"
	"github.com/nooble/rag-platform/internal/domainaction"
	"github.com/nooble/rag-platform/internal/domainerr"
	"github.com/nooble/rag-platform/internal/ingesttask"
	"github.com/nooble/rag-platform/internal/metadatastore"
	"github.com/nooble/rag-platform/internal/obslog"
	"github.com/nooble/rag-platform/internal/platform"
	"github.com/nooble/rag-platform/internal/svcconfig"
	"github.com/nooble/rag-platform/internal/transport"
	"github.com/nooble/rag-platform/internal/vectorstore"
	"github.com/nooble/rag-platform/internal/wsconn"
)

const serviceName = "ingestion"

func main() {
	_ = godotenv.Load()

	cfg, err := svcconfig.Load(serviceName)
	if err != nil {
		panic(err)
	}
	log := obslog.New(serviceName, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := platform.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Error().Err(err).Msg("ingestion: redis connect failed")
		return
	}

	store, err := metadatastore.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error().Err(err).Msg("ingestion: metadata store connect failed")
		return
	}
	defer store.Close()

	qdrantHost, qdrantPort := splitHostPort(cfg.QdrantURL)
	vstore, err := vectorstore.Open(ctx, vectorstore.Config{
		Host: qdrantHost, Port: qdrantPort, APIKey: cfg.QdrantAPIKey, Collection: "rag_chunks",
	}, 1536)
	if err != nil {
		log.Error().Err(err).Msg("ingestion: vector store connect failed")
		return
	}

	tasks := ingesttask.New(rdb)
	bmModel := bm25.NewModel()
	ws := wsconn.NewManager(wsconn.RedisAdapter{Client: rdb}, log)
	tx := transport.New(rdb, cfg.Environment, log)

	svc := &service{
		tx: tx, tasks: tasks, store: store, vstore: vstore, bm: bmModel, ws: ws, log: log,
		uploadDir: os.TempDir(),
	}

	handler := func(ctx context.Context, action *domainaction.Action) error {
		switch action.ActionType {
		case "ingestion.extraction_callback":
			return svc.handleExtractionCallback(ctx, action)
		case "ingestion.embedding_callback":
			return svc.handleEmbeddingCallback(ctx, action)
		default:
			log.Warn().Str("action_type", action.ActionType).Msg("ingestion: unrecognized action_type")
			return nil
		}
	}

	go func() {
		opts := transport.ConsumeOptions{
			Service: serviceName, Callback: true, Group: "ingestion-callback-workers",
			ConsumerPrefix: "ingestion-cb", WorkerCount: cfg.WorkerCount,
		}
		if err := tx.StartWorkers(ctx, opts, handler); err != nil {
			log.Error().Err(err).Msg("ingestion: callback worker pool exited")
		}
	}()

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: svc.routes()}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("ingestion: http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("ingestion: http server exited")
		}
	}()

	platform.WaitForShutdown(cancel, func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
		ws.Close()
	})
}

type service struct {
	tx        *transport.Client
	tasks     *ingesttask.Store
	store     *metadatastore.Store
	vstore    *vectorstore.Store
	bm        *bm25.Model
	ws        *wsconn.Manager
	log       *obslog.Logger
	uploadDir string
}

func (s *service) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ingest", s.handleIngest)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("DELETE /document/{document_id}", s.handleDeleteDocument)
	mux.HandleFunc("PUT /document/{document_id}/agents", s.handleUpdateAgents)
	mux.HandleFunc("GET /status/{task_id}", s.handleStatus)
	mux.HandleFunc("GET /ws/ingestion/{task_id}", s.handleWS)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return mux
}

// ingestRequest mirrors §6's DocumentIngestionRequest.
type ingestRequest struct {
	FilePath            string                 `json:"file_path"`
	DocumentName        string                 `json:"document_name"`
	DocumentType        string                 `json:"document_type"`
	CollectionID        string                 `json:"collection_id,omitempty"`
	AgentIDs            []string               `json:"agent_ids"`
	EmbeddingModel      string                 `json:"embedding_model"`
	EmbeddingDimensions int                    `json:"embedding_dimensions"`
	ChunkSize           int                    `json:"chunk_size"`
	ChunkOverlap        int                    `json:"chunk_overlap"`
	RAGConfig           *domainaction.RAGConfig `json:"rag_config,omitempty"`
}

type ingestionResponse struct {
	TaskID       string   `json:"task_id"`
	DocumentID   string   `json:"document_id"`
	CollectionID string   `json:"collection_id"`
	AgentIDs     []string `json:"agent_ids"`
	Status       string   `json:"status"`
	WebsocketURL string   `json:"websocket_url,omitempty"`
}

// handleIngest is E1 for a file already on disk (§4.5's "POST /ingest").
func (s *service) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerr.Validation("malformed request body: %v", err))
		return
	}
	tenantID, userID := requestContext(r)
	resp, err := s.startIngestion(r.Context(), tenantID, userID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUpload is E1's multipart variant (§6's "POST /upload").
func (s *service) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, domainerr.Validation("malformed multipart body: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, domainerr.Validation("missing file field: %v", err))
		return
	}
	defer file.Close()

	destPath := filepath.Join(s.uploadDir, uuid.NewString()+filepath.Ext(header.Filename))
	dest, err := os.Create(destPath)
	if err != nil {
		writeError(w, domainerr.Internal(err, "create temp upload file"))
		return
	}
	if _, err := io.Copy(dest, file); err != nil {
		dest.Close()
		writeError(w, domainerr.Internal(err, "write temp upload file"))
		return
	}
	dest.Close()

	req := ingestRequest{
		FilePath:       destPath,
		DocumentName:   header.Filename,
		DocumentType:   strings.TrimPrefix(filepath.Ext(header.Filename), "."),
		CollectionID:   r.FormValue("collection_id"),
		AgentIDs:       r.Form["agent_ids"],
		EmbeddingModel: firstNonEmpty(r.FormValue("embedding_model"), "text-embedding-3-small"),
		ChunkSize:      atoiOr(r.FormValue("chunk_size"), 1000),
		ChunkOverlap:   atoiOr(r.FormValue("chunk_overlap"), 200),
	}

	tenantID, userID := requestContext(r)
	resp, err := s.startIngestion(r.Context(), tenantID, userID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// startIngestion runs §4.5 E1: consistency check, task-state creation,
// and the extraction dispatch, returning immediately per "Return
// {task_id, document_id, collection_id, agent_ids, status: processing}
// immediately."
func (s *service) startIngestion(ctx context.Context, tenantID, userID string, req ingestRequest) (*ingestionResponse, error) {
	collectionID := req.CollectionID
	if collectionID == "" {
		collectionID = uuid.NewString() // §4.5's "ensure collection_id (generate one if absent)"
	}

	if info, ok, err := s.store.CheckCollectionConsistency(ctx, tenantID, collectionID); err != nil {
		return nil, domainerr.Internal(err, "collection consistency check")
	} else if ok {
		if info.EmbeddingModel != req.EmbeddingModel || info.EmbeddingDimensions != req.EmbeddingDimensions {
			return nil, domainerr.Validation(
				"collection %s already uses %s/%d, cannot mix with %s/%d",
				collectionID, info.EmbeddingModel, info.EmbeddingDimensions, req.EmbeddingModel, req.EmbeddingDimensions)
		}
	}

	documentID := uuid.NewString()
	taskID := uuid.NewString()

	task := &ingesttask.Task{
		TaskID: taskID, DocumentID: documentID, TenantID: tenantID, UserID: userID,
		CollectionID: collectionID, AgentIDs: req.AgentIDs, RAGConfig: req.RAGConfig,
		FilePath: req.FilePath, DocumentName: req.DocumentName, DocumentType: req.DocumentType,
		EmbeddingModel: req.EmbeddingModel, EmbeddingDimensions: req.EmbeddingDimensions,
		ChunkSize: req.ChunkSize, ChunkOverlap: req.ChunkOverlap,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, domainerr.Internal(err, "create task state")
	}
	if err := s.tasks.Transition(ctx, task, ingesttask.StatusExtracting); err != nil {
		return nil, err
	}

	dispatch := domainaction.New(serviceName, "extraction.document.process")
	dispatch.TenantID, dispatch.TaskID = tenantID, taskID
	dispatch.WithCallback("extraction_callback")
	body, err := json.Marshal(domainaction.ExtractionRequestPayload{
		FilePath: req.FilePath, DocumentType: req.DocumentType,
	})
	if err != nil {
		return nil, domainerr.Internal(err, "encode extraction request")
	}
	dispatch.Data = body
	if err := s.tx.Publish(ctx, dispatch); err != nil {
		return nil, domainerr.Transient(err, "publish extraction.document.process")
	}

	s.emitProgress(ctx, task, "")

	return &ingestionResponse{
		TaskID: taskID, DocumentID: documentID, CollectionID: collectionID,
		AgentIDs: req.AgentIDs, Status: "processing",
		WebsocketURL: "/ws/ingestion/" + taskID,
	}, nil
}

// handleExtractionCallback is E2 (§4.5): chunk the extracted text, then
// dispatch embedding.batch_process.
func (s *service) handleExtractionCallback(ctx context.Context, action *domainaction.Action) error {
	task, err := s.tasks.Get(ctx, action.TaskID)
	if err != nil {
		s.log.Warn().Err(err).Str("task_id", action.TaskID).Msg("ingestion: extraction callback for unknown task")
		return err
	}

	var payload domainaction.ExtractionResultPayload
	if err := json.Unmarshal(action.Data, &payload); err != nil {
		return s.failTask(ctx, task, "request_parsing", err.Error(), false)
	}
	if payload.Status == "failed" {
		msg, stage, recoverable := "extraction failed", "extract", false
		if payload.Error != nil {
			msg, stage, recoverable = payload.Error.Message, payload.Error.Stage, payload.Error.Recoverable
		}
		return s.failTask(ctx, task, stage, msg, recoverable)
	}

	if err := s.tasks.Transition(ctx, task, ingesttask.StatusChunking); err != nil {
		return err
	}

	var sections []chunk.Section
	var enrichment chunk.Enrichment
	if payload.Structure != nil {
		for _, sec := range payload.Structure.Sections {
			sections = append(sections, chunk.Section{Title: sec.Title, Level: sec.Level, StartChar: sec.StartChar, EndChar: sec.EndChar, ParentTitle: sec.ParentTitle})
		}
	}
	if payload.SpacyEnrichment != nil {
		var entities []chunk.Entity
		for _, e := range payload.SpacyEnrichment.Entities {
			entities = append(entities, chunk.Entity{Text: e.Text, Label: e.Label})
		}
		enrichment = chunk.Enrichment{
			Entities: entities, NounChunks: payload.SpacyEnrichment.NounChunks,
			EntitiesByType: payload.SpacyEnrichment.EntitiesByType, Language: payload.SpacyEnrichment.Language,
		}
	}

	pageCount, hasTables := 0, false
	if payload.Structure != nil {
		pageCount = payload.Structure.PageCount
		hasTables = payload.Structure.Tables > 0
	}

	chunks := chunk.ChunkDocument(payload.ExtractedText, sections, enrichment, chunk.Params{
		DocumentID: task.DocumentID, TenantID: task.TenantID, CollectionID: task.CollectionID,
		AgentIDs: task.AgentIDs, DocumentName: task.DocumentName, DocumentType: task.DocumentType,
		DocumentNature: chunk.DetectDocumentNature(task.DocumentType), Language: payload.Language,
		PageCount: pageCount, HasTables: hasTables,
		ChunkSize: task.ChunkSize, ChunkOverlap: task.ChunkOverlap,
	})
	if len(chunks) == 0 {
		return s.failTask(ctx, task, "chunking", "no chunks produced from extracted text", false)
	}

	task.Chunks = chunks
	task.TotalChunks = len(chunks)
	if err := s.tasks.Transition(ctx, task, ingesttask.StatusEmbedding); err != nil {
		return err
	}
	s.emitProgress(ctx, task, "")

	texts := make([]string, len(chunks))
	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
		chunkIDs[i] = c.ChunkID
	}

	dispatch := domainaction.New(serviceName, "embedding.batch_process")
	dispatch.TenantID, dispatch.TaskID = task.TenantID, task.TaskID
	dispatch.WithCallback("embedding_callback")
	body, err := json.Marshal(domainaction.EmbeddingBatchRequestPayload{
		Texts: texts, ChunkIDs: chunkIDs, Model: task.EmbeddingModel, Dimensions: task.EmbeddingDimensions, TenantID: task.TenantID,
	})
	if err != nil {
		return s.failTask(ctx, task, "embedding_dispatch", err.Error(), false)
	}
	dispatch.Data = body
	if err := s.tx.Publish(ctx, dispatch); err != nil {
		return s.failTask(ctx, task, "embedding_dispatch", err.Error(), true)
	}
	return nil
}

// handleEmbeddingCallback is E3 (§4.5): match embeddings to chunks, upsert
// the vector store, persist document metadata, complete the task.
func (s *service) handleEmbeddingCallback(ctx context.Context, action *domainaction.Action) error {
	task, err := s.tasks.Get(ctx, action.TaskID)
	if err != nil {
		s.log.Warn().Err(err).Str("task_id", action.TaskID).Msg("ingestion: embedding callback for unknown task")
		return err
	}

	var payload domainaction.EmbeddingBatchResultPayload
	if err := json.Unmarshal(action.Data, &payload); err != nil {
		return s.failTask(ctx, task, "request_parsing", err.Error(), false)
	}

	byChunkID := make(map[string]domainaction.EmbeddingResult, len(payload.Embeddings))
	for _, e := range payload.Embeddings {
		byChunkID[e.ChunkID] = e
	}

	var embedded []chunk.Model
	var failedIDs []string
	for _, c := range task.Chunks {
		r, ok := byChunkID[c.ChunkID]
		if !ok || r.Error != "" || len(r.Embedding) == 0 {
			failedIDs = append(failedIDs, c.ChunkID)
			continue
		}
		c.Embedding = r.Embedding
		embedded = append(embedded, c)
	}
	if len(embedded) == 0 {
		return s.failTask(ctx, task, "embedding", "batch failed entirely: no chunk received an embedding", false)
	}
	task.FailedIDs = failedIDs

	if err := s.tasks.Transition(ctx, task, ingesttask.StatusStoring); err != nil {
		return err
	}
	s.emitProgress(ctx, task, "")

	points := make([]vectorstore.Point, 0, len(embedded))
	for _, c := range embedded {
		s.bm.Observe(c.ContentRaw)
		sparse := s.bm.Encode(bm25.ComposeText(bm25.ChunkFields{
			SectionContext: c.SectionContext, NounChunks: c.SpacyNounChunks, Entities: c.SpacyEntities,
			SearchAnchors: c.SearchAnchors, AtomicFacts: c.AtomicFacts, ContentRaw: c.ContentRaw,
		}))
		points = append(points, vectorstore.Point{
			ID: c.ChunkID, Dense: c.Embedding, Sparse: sparse,
			Payload: chunkPayload(c),
		})
	}

	if err := s.vstore.Upsert(ctx, points); err != nil {
		task.FailedIDs = append(task.FailedIDs, chunkIDsOf(embedded)...)
		return s.failTask(ctx, task, "vector_upsert", err.Error(), true)
	}

	task.ProcessedChunks = len(embedded)
	if err := s.store.UpsertDocument(ctx, metadatastore.DocumentRecord{
		TenantID: task.TenantID, CollectionID: task.CollectionID, DocumentID: task.DocumentID,
		DocumentName: task.DocumentName, DocumentType: task.DocumentType,
		EmbeddingModel: task.EmbeddingModel, EmbeddingDimensions: task.EmbeddingDimensions,
		ChunkSize: task.ChunkSize, ChunkOverlap: task.ChunkOverlap,
		Status: "completed", TotalChunks: task.TotalChunks, ProcessedChunks: task.ProcessedChunks,
		AgentIDs: task.AgentIDs,
	}); err != nil {
		return s.failTask(ctx, task, "metadata_persist", err.Error(), true)
	}

	if err := s.tasks.Complete(ctx, task); err != nil {
		return err
	}
	s.emitProgress(ctx, task, "")
	return nil
}

func (s *service) failTask(ctx context.Context, task *ingesttask.Task, stage, message string, recoverable bool) error {
	errPayload := &domainaction.ExtractionErrorPayload{Type: "extraction_error", Stage: stage, Message: message, Recoverable: recoverable}
	if err := s.tasks.Fail(ctx, task, errPayload); err != nil {
		return err
	}
	s.emitProgress(ctx, task, message)
	return fmt.Errorf("ingestion: task %s failed at %s: %s", task.TaskID, stage, message)
}

// emitProgress pushes an ingestion_progress WS frame (§6), best-effort —
// a disconnected client falls back to the mailbox, a truly gone one just
// misses the frame; /status polling remains authoritative.
func (s *service) emitProgress(ctx context.Context, task *ingesttask.Task, errMsg string) {
	frame := wsconn.Frame{Type: "ingestion_progress", Data: map[string]any{
		"task_id": task.TaskID, "status": string(task.Status), "message": errMsg,
		"percentage": task.Percentage(), "total_chunks": task.TotalChunks, "processed_chunks": task.ProcessedChunks,
	}}
	if err := s.ws.Send(ctx, task.TaskID, frame); err != nil {
		s.log.Debug().Err(err).Str("task_id", task.TaskID).Msg("ingestion: progress frame not delivered")
	}
}

func (s *service) handleStatus(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.Get(r.Context(), r.PathValue("task_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task_id": task.TaskID, "status": task.Status, "percentage": task.Percentage(),
		"total_chunks": task.TotalChunks, "processed_chunks": task.ProcessedChunks,
		"error": task.Error,
	})
}

func (s *service) handleWS(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	conn, err := s.ws.Upgrade(w, r, taskID)
	if err != nil {
		s.log.Warn().Err(err).Str("task_id", taskID).Msg("ingestion: ws upgrade failed")
		return
	}
	defer s.ws.Disconnect(taskID)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *service) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("document_id")
	var body struct {
		CollectionID string `json:"collection_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, domainerr.Validation("malformed request body: %v", err))
		return
	}
	tenantID, _ := requestContext(r)

	if err := s.vstore.DeleteByDocument(r.Context(), tenantID, body.CollectionID, documentID); err != nil {
		writeError(w, domainerr.Internal(err, "delete vectors for document %s", documentID))
		return
	}
	if err := s.store.DeleteDocument(r.Context(), tenantID, body.CollectionID, documentID); err != nil {
		writeError(w, domainerr.Internal(err, "delete metadata for document %s", documentID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpdateAgents implements the update_document_agents RPC surface
// (agent-scoped document tagging in SPEC_FULL.md's supplemental features).
func (s *service) handleUpdateAgents(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("document_id")
	var body struct {
		AgentIDs  []string `json:"agent_ids"`
		Operation string   `json:"operation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, domainerr.Validation("malformed request body: %v", err))
		return
	}
	if err := s.store.UpdateDocumentAgents(r.Context(), documentID, body.AgentIDs, body.Operation); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// chunkPayload carries every §3 ChunkModel field the vector store's
// mandatory and full-text indices (§4.4.1) need to filter and search on.
func chunkPayload(c chunk.Model) map[string]any {
	return map[string]any{
		"document_id": c.DocumentID, "collection_id": c.CollectionID, "tenant_id": c.TenantID,
		"agent_ids": c.AgentIDs, "chunk_index": c.ChunkIndex,
		"content": c.Content, "content_raw": c.ContentRaw,
		"section_title": c.SectionTitle, "section_level": c.SectionLevel,
		"section_context": c.SectionContext, "parent_title": c.ParentTitle,
		"spacy_entities": c.SpacyEntities, "spacy_noun_chunks": c.SpacyNounChunks,
		"search_anchors": c.SearchAnchors, "atomic_facts": c.AtomicFacts,
		"fact_density": c.FactDensity, "normalized_entities": c.NormalizedEntities,
		"document_name": c.DocumentName, "document_type": c.DocumentType, "document_nature": c.DocumentNature,
		"language": c.Language, "page_count": c.PageCount, "has_tables": c.HasTables,
	}
}

func chunkIDsOf(chunks []chunk.Model) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ChunkID
	}
	return ids
}

// requestContext pulls tenant/user identity off the request — JWT
// verification itself is glue, out of scope per spec.md §1, so this reads
// whatever a fronting auth layer has already attached as headers.
func requestContext(r *http.Request) (tenantID, userID string) {
	return r.Header.Get("X-Tenant-Id"), r.Header.Get("X-User-Id")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := domainerr.KindInternal
	if de, ok := err.(*domainerr.Error); ok {
		kind = de.Kind
	}
	writeJSON(w, domainerr.HTTPStatus(kind), map[string]string{"error": err.Error()})
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6334
	}
	return host, atoiOr(portStr, 6334)
}
