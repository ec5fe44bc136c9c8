// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// cmd/embedding is the Embedding leaf service (§4.6): it handles
// embedding.batch_process and embedding.generate_query, calling out to the
// configured embedding provider and replying on each request's callback
// stream. A composition root with no package-level mutable state (§9):
// every collaborator is built here and threaded through closures.
package main

import (
	"context"
	"encoding/json"

	"github.com/joho/godotenv"

	"github.com/nooble/rag-platform/internal/domainaction"
	"github.com/nooble/rag-platform/internal/embedsvc"
	"github.com/nooble/rag-platform/internal/obslog"
	"github.com/nooble/rag-platform/internal/platform"
	"github.com/nooble/rag-platform/internal/svcconfig"
	"github.com/nooble/rag-platform/internal/transport"
)

const serviceName = "embedding"

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
		log.Error().Err(err).Msg("embedding: redis connect failed")
		return
	}

	provider := embedsvc.New(cfg.OpenAIAPIKey, 3)
	tx := transport.New(rdb, cfg.Environment, log)

	handler := func(ctx context.Context, action *domainaction.Action) error {
		switch action.ActionType {
		case "embedding.batch_process":
			return handleBatch(ctx, tx, provider, action)
		case "embedding.generate_query":
			return handleQuery(ctx, tx, provider, action)
		default:
			log.Warn().Str("action_type", action.ActionType).Msg("embedding: unrecognized action_type")
			return nil
		}
	}

	go func() {
		opts := transport.ConsumeOptions{
			Service: serviceName, Group: "embedding-workers",
			ConsumerPrefix: "embedding", WorkerCount: cfg.WorkerCount,
		}
		if err := tx.StartWorkers(ctx, opts, handler); err != nil {
			log.Error().Err(err).Msg("embedding: worker pool exited")
		}
	}()

	log.Info().Int("workers", cfg.WorkerCount).Msg("embedding: service started")
	platform.WaitForShutdown(cancel)
}

func handleBatch(ctx context.Context, tx *transport.Client, provider *embedsvc.Provider, action *domainaction.Action) error {
	var payload domainaction.EmbeddingBatchRequestPayload
	if err := json.Unmarshal(action.Data, &payload); err != nil {
		return replyBatchError(ctx, tx, action, err.Error())
	}

	results, usage, dur, err := provider.Batch(ctx, payload.Texts, payload.ChunkIDs, payload.Model, payload.Dimensions, payload.TenantID, action.RAGConfig)
	if err != nil {
		return replyBatchError(ctx, tx, action, err.Error())
	}

	out := make([]domainaction.EmbeddingResult, 0, len(results))
	for _, r := range results {
		er := domainaction.EmbeddingResult{ChunkID: r.ChunkID}
		if r.Err != nil {
			er.Error = r.Err.Error()
		} else {
			er.Embedding = r.Embedding
		}
		out = append(out, er)
	}

	reply := domainaction.EmbeddingBatchResultPayload{
		Embeddings: out, Model: payload.Model, Dimensions: payload.Dimensions,
		Usage: usage, ProcessingTimeMs: dur.Milliseconds(),
	}
	return tx.ReplyTo(ctx, action, serviceName, reply)
}

func replyBatchError(ctx context.Context, tx *transport.Client, action *domainaction.Action, msg string) error {
	reply := domainaction.EmbeddingBatchResultPayload{
		Embeddings: []domainaction.EmbeddingResult{{Error: msg}},
	}
	return tx.ReplyTo(ctx, action, serviceName, reply)
}

func handleQuery(ctx context.Context, tx *transport.Client, provider *embedsvc.Provider, action *domainaction.Action) error {
	var payload domainaction.EmbeddingQueryRequestPayload
	if err := json.Unmarshal(action.Data, &payload); err != nil {
		return tx.ReplyTo(ctx, action, serviceName, domainaction.EmbeddingQueryResultPayload{Error: err.Error()})
	}

	vec, err := provider.Query(ctx, payload.Text, payload.Model, payload.Dimensions, payload.TenantID)
	if err != nil {
		return tx.ReplyTo(ctx, action, serviceName, domainaction.EmbeddingQueryResultPayload{Error: err.Error()})
	}
	return tx.ReplyTo(ctx, action, serviceName, domainaction.EmbeddingQueryResultPayload{Embedding: vec})
}

