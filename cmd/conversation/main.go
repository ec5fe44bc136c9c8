// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// cmd/conversation is the Conversation service (§4.3 step 7): it persists
// chat turns fire-and-forget, never replying on a callback stream. Errors
// here are logged and swallowed per §7's "fire-and-forget writes ... log
// and swallow errors" policy.
package main

import (
	"context"
	"encoding/json"

	"github.com/joho/godotenv"

	"github.com/nooble/rag-platform/internal/domainaction"
	"github.com/nooble/rag-platform/internal/metadatastore"
	"github.com/nooble/rag-platform/internal/obslog"
	"github.com/nooble/rag-platform/internal/platform"
	"github.com/nooble/rag-platform/internal/svcconfig"
	"github.com/nooble/rag-platform/internal/transport"
)

const serviceName = "conversation_service"

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
		log.Error().Err(err).Msg("conversation: redis connect failed")
		return
	}

	store, err := metadatastore.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error().Err(err).Msg("conversation: metadata store connect failed")
		return
	}
	defer store.Close()

	tx := transport.New(rdb, cfg.Environment, log)

	handler := func(ctx context.Context, action *domainaction.Action) error {
		switch action.ActionType {
		case "conversation_service.message.create":
			return handleMessageCreate(ctx, store, action)
		case "conversation_service.session.closed":
			return handleSessionClosed(ctx, store, action)
		default:
			log.Warn().Str("action_type", action.ActionType).Msg("conversation: unrecognized action_type")
			return nil
		}
	}

	go func() {
		opts := transport.ConsumeOptions{
			Service: serviceName, Group: "conversation-workers",
			ConsumerPrefix: "conversation", WorkerCount: cfg.WorkerCount,
		}
		if err := tx.StartWorkers(ctx, opts, handler); err != nil {
			log.Error().Err(err).Msg("conversation: worker pool exited")
		}
	}()

	log.Info().Int("workers", cfg.WorkerCount).Msg("conversation: service started")
	platform.WaitForShutdown(cancel)
}

func handleMessageCreate(ctx context.Context, store *metadatastore.Store, action *domainaction.Action) error {
	var payload domainaction.ConversationCreatePayload
	if err := json.Unmarshal(action.Data, &payload); err != nil {
		return err // logged by transport, not retried: fire-and-forget
	}
	if err := store.InsertMessage(ctx, payload.ConversationID, payload.UserMessage.Role, payload.UserMessage.Content); err != nil {
		return err
	}
	return store.InsertMessage(ctx, payload.ConversationID, payload.AgentMessage.Role, payload.AgentMessage.Content)
}

func handleSessionClosed(ctx context.Context, store *metadatastore.Store, action *domainaction.Action) error {
	var payload domainaction.ConversationSessionClosedPayload
	if err := json.Unmarshal(action.Data, &payload); err != nil {
		return err
	}
	return store.CloseConversation(ctx, payload.ConversationID)
}
