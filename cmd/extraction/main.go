// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// cmd/extraction is the Extraction leaf service (§4.6): it handles
// extraction.document.process, running the structured-or-flat extractor
// tier and the heuristic enrichment stand-in, then replies on
// ingestion.extraction_callback.
package main

import (
	"context"
	"encoding/json"

	"github.com/joho/godotenv"

	"github.com/nooble/rag-platform/internal/domainaction"
	"github.com/nooble/rag-platform/internal/domainerr"
	"github.com/nooble/rag-platform/internal/extractsvc"
	"github.com/nooble/rag-platform/internal/obslog"
	"github.com/nooble/rag-platform/internal/platform"
	"github.com/nooble/rag-platform/internal/svcconfig"
	"github.com/nooble/rag-platform/internal/transport"
)

const serviceName = "extraction"

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
		log.Error().Err(err).Msg("extraction: redis connect failed")
		return
	}

	enricher := extractsvc.NewHeuristicEnricher()
	tx := transport.New(rdb, cfg.Environment, log)

	handler := func(ctx context.Context, action *domainaction.Action) error {
		if action.ActionType != "extraction.document.process" {
			log.Warn().Str("action_type", action.ActionType).Msg("extraction: unrecognized action_type")
			return nil
		}
		return handleExtract(ctx, tx, enricher, action)
	}

	go func() {
		opts := transport.ConsumeOptions{
			Service: serviceName, Group: "extraction-workers",
			ConsumerPrefix: "extraction", WorkerCount: cfg.WorkerCount,
		}
		if err := tx.StartWorkers(ctx, opts, handler); err != nil {
			log.Error().Err(err).Msg("extraction: worker pool exited")
		}
	}()

	log.Info().Int("workers", cfg.WorkerCount).Msg("extraction: service started")
	platform.WaitForShutdown(cancel)
}

// handleExtract runs §4.6's four steps: open + read, extract structure,
// enrich, reply. A typed domainerr.ExtractionError is reported on the
// callback rather than returned bare, since a parse failure here is a
// document-level outcome the ingestion state machine must see, not a
// transport-level handler error.
func handleExtract(ctx context.Context, tx *transport.Client, enricher extractsvc.Enricher, action *domainaction.Action) error {
	var payload domainaction.ExtractionRequestPayload
	if err := json.Unmarshal(action.Data, &payload); err != nil {
		return tx.ReplyTo(ctx, action, serviceName, failurePayload("request_parsing", err.Error(), false))
	}

	result, err := extractsvc.Extract(payload.FilePath, payload.DocumentType)
	if err != nil {
		stage, recoverable := "extract", false
		if de, ok := err.(*domainerr.ExtractionError); ok {
			stage, recoverable = de.Stage, de.Recoverable
		}
		return tx.ReplyTo(ctx, action, serviceName, failurePayload(stage, err.Error(), recoverable))
	}

	var spacy *domainaction.SpacyEnrichment
	if enrichment, eerr := enricher.Enrich(result.Text); eerr == nil {
		spacy = &enrichment
	}

	reply := domainaction.ExtractionResultPayload{
		Status:           "completed",
		ExtractedText:    result.Text,
		Structure:        result.Structure,
		SpacyEnrichment:  spacy,
		ExtractionMethod: result.Method,
		Language:         extractsvc.DetectLanguage(result.Text),
	}
	return tx.ReplyTo(ctx, action, serviceName, reply)
}

func failurePayload(stage, message string, recoverable bool) domainaction.ExtractionResultPayload {
	return domainaction.ExtractionResultPayload{
		Status: "failed",
		Error: &domainaction.ExtractionErrorPayload{
			Type: "extraction_error", Message: message, Stage: stage, Recoverable: recoverable,
		},
	}
}
