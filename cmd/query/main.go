// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// cmd/query is the Query service (§4.4): RAG retrieval (query embedding,
// BM25 sparse encode, hybrid vector search) and the final LLM call, behind
// query.generate.simple. It dispatches a nested request to Embedding and
// blocks on a Correlator for that reply, while a second worker pool drains
// its own callback stream to resolve those waits — so the handler looks
// synchronous even though both hops are async pub/sub (§4.1).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/nooble/rag-platform/internal/bm25"
	"github.com/nooble/rag-platform/internal/chathistory"
	"github.com/nooble/rag-platform/internal/chatprovider"
	"github.com/nooble/rag-platform/internal/domainaction"
	"github.com/nooble/rag-platform/internal/domainerr"
	"github.com/nooble/rag-platform/internal/obslog"
	"github.com/nooble/rag-platform/internal/platform"
	"github.com/nooble/rag-platform/internal/svcconfig"
	"github.com/nooble/rag-platform/internal/transport"
	"github.com/nooble/rag-platform/internal/vectorstore"
)

const serviceName = "query"
const embeddingCallbackEvent = "embedding_callback"

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
		log.Error().Err(err).Msg("query: redis connect failed")
		return
	}

	qdrantHost, qdrantPort := splitHostPort(cfg.QdrantURL)
	vstore, err := vectorstore.Open(ctx, vectorstore.Config{
		Host: qdrantHost, Port: qdrantPort, APIKey: cfg.QdrantAPIKey, Collection: "rag_chunks",
	}, 1536)
	if err != nil {
		log.Error().Err(err).Msg("query: vector store connect failed")
		return
	}

	bmModel := bm25.NewModel()
	chatProvider := chatprovider.NewOpenAI(cfg.OpenAIAPIKey)
	tx := transport.New(rdb, cfg.Environment, log)
	correlator := transport.NewCorrelator()

	svc := &service{tx: tx, vstore: vstore, bm: bmModel, chat: chatProvider, correlator: correlator, log: log}

	go func() {
		opts := transport.ConsumeOptions{
			Service: serviceName, Group: "query-workers",
			ConsumerPrefix: "query", WorkerCount: cfg.WorkerCount,
		}
		if err := tx.StartWorkers(ctx, opts, svc.handleRequest); err != nil {
			log.Error().Err(err).Msg("query: request worker pool exited")
		}
	}()

	go func() {
		opts := transport.ConsumeOptions{
			Service: serviceName, Callback: true, Group: "query-callback-workers",
			ConsumerPrefix: "query-cb", WorkerCount: cfg.WorkerCount,
		}
		if err := tx.StartWorkers(ctx, opts, svc.handleCallback); err != nil {
			log.Error().Err(err).Msg("query: callback worker pool exited")
		}
	}()

	log.Info().Int("workers", cfg.WorkerCount).Msg("query: service started")
	platform.WaitForShutdown(cancel)
}

type service struct {
	tx         *transport.Client
	vstore     *vectorstore.Store
	bm         *bm25.Model
	chat       *chatprovider.Provider
	correlator *transport.Correlator
	log        *obslog.Logger
}

// handleCallback resolves a pending embedding-query wait (§4.4 step 3a).
func (s *service) handleCallback(ctx context.Context, action *domainaction.Action) error {
	if action.ActionType != "query."+embeddingCallbackEvent {
		return nil
	}
	s.correlator.Resolve(action)
	return nil
}

// handleRequest runs §4.4's six steps for query.generate.simple. Any other
// query.generate.<mode> is recognized (so Execution gets a reply instead of
// a 60s correlator timeout) but explicitly rejected — §4.4 only specifies
// the tool-free path.
func (s *service) handleRequest(ctx context.Context, action *domainaction.Action) error {
	mode, ok := queryMode(action.ActionType)
	if !ok {
		s.log.Warn().Str("action_type", action.ActionType).Msg("query: unrecognized action_type")
		return nil
	}
	if mode != "simple" {
		return s.tx.ReplyTo(ctx, action, serviceName, s.errorResult(domainerr.Validation("query mode %q not supported", mode)))
	}

	start := time.Now()
	if err := action.QueryConfig.Validate(); err != nil {
		return s.tx.ReplyTo(ctx, action, serviceName, s.errorResult(err))
	}
	if action.RAGConfig != nil {
		if err := action.RAGConfig.Validate(); err != nil {
			return s.tx.ReplyTo(ctx, action, serviceName, s.errorResult(err))
		}
	}

	var payload domainaction.QueryGeneratePayload
	if err := json.Unmarshal(action.Data, &payload); err != nil {
		return s.tx.ReplyTo(ctx, action, serviceName, s.errorResult(err))
	}

	lastUser, ok := chathistory.LastUserMessage(payload.Messages)
	if !ok {
		return s.tx.ReplyTo(ctx, action, serviceName, s.errorResult(domainerr.Validation("no user message to answer")))
	}

	var hits []vectorstore.Hit
	if action.RAGConfig.HasDocuments() {
		var err error
		hits, err = s.retrieve(ctx, action, lastUser.Content)
		if err != nil {
			s.log.Warn().Err(err).Msg("query: retrieval failed, answering without context")
			hits = nil
		}
	}

	messages := assemblePrompt(payload.Messages, action.QueryConfig, hits)

	content, usage, err := s.chat.Complete(ctx, messages, action.QueryConfig)
	if err != nil {
		return s.tx.ReplyTo(ctx, action, serviceName, s.errorResult(err))
	}

	reply := domainaction.QueryResultPayload{
		AssistantContent: content,
		Usage:            usage,
		Sources:          sourceIDs(hits),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
	return s.tx.ReplyTo(ctx, action, serviceName, reply)
}

// retrieve runs §4.4 step 3: embed the query (via Embedding, across the
// stream boundary), encode its BM25 sparse form locally, then hybrid
// search.
func (s *service) retrieve(ctx context.Context, action *domainaction.Action, queryText string) ([]vectorstore.Hit, error) {
	dense, err := s.requestQueryEmbedding(ctx, action, queryText)
	if err != nil {
		return nil, err
	}
	sparse := s.bm.EncodeQuery(queryText)

	filter := vectorstore.SearchFilter{
		TenantID: action.TenantID,
		AgentIDs: []string{action.AgentID},
		CollectionIDs: action.RAGConfig.CollectionIDs,
	}
	params := vectorstore.HybridSearchParams{
		TopK: action.RAGConfig.TopK, RRFK: action.RAGConfig.RRFK,
		FactDensityBoost: action.RAGConfig.FactDensityBoost,
	}
	if params.RRFK <= 0 {
		params.RRFK = 60
	}

	hits, err := s.vstore.HybridSearch(ctx, dense, sparse, filter, params)
	if err != nil {
		return s.vstore.DenseOnlySearch(ctx, dense, filter, params.TopK, action.RAGConfig.SimilarityThreshold)
	}
	return hits, nil
}

// requestQueryEmbedding publishes embedding.generate_query and blocks on
// the Correlator until the reply worker resolves it — the async-hop
// made to look synchronous (§4.1, §4.4 step 3a).
func (s *service) requestQueryEmbedding(ctx context.Context, action *domainaction.Action, text string) ([]float32, error) {
	req := domainaction.New(serviceName, "embedding.generate_query")
	req.TenantID, req.SessionID, req.TaskID, req.AgentID = action.TenantID, action.SessionID, action.TaskID, action.AgentID
	req.RAGConfig = action.RAGConfig
	req.WithCallback(embeddingCallbackEvent)

	body, err := json.Marshal(domainaction.EmbeddingQueryRequestPayload{
		Text: text, Model: action.RAGConfig.EmbeddingModel, Dimensions: action.RAGConfig.EmbeddingDimensions,
		TenantID: action.TenantID,
	})
	if err != nil {
		return nil, err
	}
	req.Data = body

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if err := s.tx.Publish(ctx, req); err != nil {
		return nil, domainerr.Transient(err, "publish embedding.generate_query")
	}
	reply, err := s.correlator.Await(waitCtx, req.ActionID)
	if err != nil {
		return nil, domainerr.Transient(err, "awaiting query embedding reply")
	}

	var result domainaction.EmbeddingQueryResultPayload
	if err := json.Unmarshal(reply.Data, &result); err != nil {
		return nil, domainerr.Internal(err, "decode embedding query reply")
	}
	if result.Error != "" {
		return nil, domainerr.Permanent(nil, "query embedding failed: %s", result.Error)
	}
	return result.Embedding, nil
}

// assemblePrompt builds §4.4 step 4's system message: the configured
// template, with a "Knowledge Chunks:" block appended when retrieval
// returned anything, replacing any prior system message in the list.
func assemblePrompt(messages []domainaction.Message, cfg *domainaction.QueryConfig, hits []vectorstore.Hit) []domainaction.Message {
	var b strings.Builder
	b.WriteString(cfg.SystemPromptTemplate)
	if len(hits) > 0 {
		b.WriteString("\n\nKnowledge Chunks:\n")
		for i, h := range hits {
			fmt.Fprintf(&b, "[Source %d: %s/%s, Score: %.4f]\n%s\n\n", i+1, h.CollectionID, h.DocumentID, h.Score, h.Content)
		}
	}
	system := domainaction.Message{Role: "system", Content: b.String(), Timestamp: time.Now().UTC()}

	out := make([]domainaction.Message, 0, len(messages)+1)
	out = append(out, system)
	for _, m := range messages {
		if m.Role != "system" {
			out = append(out, m)
		}
	}
	return out
}

func sourceIDs(hits []vectorstore.Hit) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.ChunkID != "" {
			out = append(out, h.ChunkID)
		}
	}
	return out
}

// errorResult logs a validation/transient failure and reports it back to
// Execution with Error set, so dispatchQuery can distinguish it from a
// genuine empty-content answer and surface orchestrator.chat.error
// (spec.md:123) instead of silently completing the turn.
func (s *service) errorResult(err error) domainaction.QueryResultPayload {
	s.log.Warn().Err(err).Msg("query: request failed")
	return domainaction.QueryResultPayload{Error: err.Error()}
}

// queryMode splits "query.generate.<mode>" into mode, reporting ok=false
// for any action_type outside the query.generate.* family entirely.
func queryMode(actionType string) (string, bool) {
	const prefix = "query.generate."
	if !strings.HasPrefix(actionType, prefix) {
		return "", false
	}
	return strings.TrimPrefix(actionType, prefix), true
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6334
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6334
	}
	return host, port
}
