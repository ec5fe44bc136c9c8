// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// cmd/execution is the Execution service (§4.3): it integrates a session's
// ConversationHistory with an inbound message set, dispatches the merged
// list to Query (awaiting its reply across the stream boundary, same
// Correlator pattern as Query's own Embedding dispatch), persists the turn,
// and fires a fire-and-forget write to Conversation before replying to
// whichever caller (the Orchestrator) is waiting on its own callback
// stream.
package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/joho/godotenv"

	"github.com/nooble/rag-platform/internal/chathistory"
	"github.com/nooble/rag-platform/internal/domainaction"
	"github.com/nooble/rag-platform/internal/domainerr"
	"github.com/nooble/rag-platform/internal/obslog"
	"github.com/nooble/rag-platform/internal/platform"
	"github.com/nooble/rag-platform/internal/svcconfig"
	"github.com/nooble/rag-platform/internal/transport"
)

const serviceName = "execution"
const queryCallbackEvent = "query_callback"

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
		log.Error().Err(err).Msg("execution: redis connect failed")
		return
	}

	history := chathistory.New(rdb)
	tx := transport.New(rdb, cfg.Environment, log)
	correlator := transport.NewCorrelator()

	svc := &service{tx: tx, history: history, correlator: correlator, log: log}

	go func() {
		opts := transport.ConsumeOptions{
			Service: serviceName, Group: "execution-workers",
			ConsumerPrefix: "execution", WorkerCount: cfg.WorkerCount,
		}
		if err := tx.StartWorkers(ctx, opts, svc.handleRequest); err != nil {
			log.Error().Err(err).Msg("execution: request worker pool exited")
		}
	}()

	go func() {
		opts := transport.ConsumeOptions{
			Service: serviceName, Callback: true, Group: "execution-callback-workers",
			ConsumerPrefix: "execution-cb", WorkerCount: cfg.WorkerCount,
		}
		if err := tx.StartWorkers(ctx, opts, svc.handleCallback); err != nil {
			log.Error().Err(err).Msg("execution: callback worker pool exited")
		}
	}()

	log.Info().Int("workers", cfg.WorkerCount).Msg("execution: service started")
	platform.WaitForShutdown(cancel)
}

type service struct {
	tx         *transport.Client
	history    *chathistory.Store
	correlator *transport.Correlator
	log        *obslog.Logger
}

// handleCallback resolves a pending Query dispatch wait (§4.3 step 4).
func (s *service) handleCallback(ctx context.Context, action *domainaction.Action) error {
	if action.ActionType != "execution."+queryCallbackEvent {
		return nil
	}
	s.correlator.Resolve(action)
	return nil
}

// handleRequest runs §4.3's eight steps for execution.chat.simple /
// execution.chat.advance. mode (the dotted suffix after "execution.chat.")
// is forwarded to Query unchanged.
func (s *service) handleRequest(ctx context.Context, action *domainaction.Action) error {
	mode, ok := chatMode(action.ActionType)
	if !ok {
		s.log.Warn().Str("action_type", action.ActionType).Msg("execution: unrecognized action_type")
		return nil
	}

	start := time.Now()
	var payload domainaction.ChatRequestPayload
	if err := json.Unmarshal(action.Data, &payload); err != nil {
		return s.replyError(ctx, action, "request_parsing", err)
	}

	history, err := s.history.GetOrCreate(ctx, action.TenantID, action.SessionID, action.AgentID)
	if err != nil {
		return s.replyError(ctx, action, "history_lookup", err)
	}

	maxHistory := 0
	ttl := 30 * time.Minute
	if action.ExecutionConfig != nil {
		maxHistory = action.ExecutionConfig.MaxHistoryLength
		if action.ExecutionConfig.HistoryTTLSeconds > 0 {
			ttl = time.Duration(action.ExecutionConfig.HistoryTTLSeconds) * time.Second
		}
	}
	integrated := chathistory.Integrate(history, payload.Messages, maxHistory)

	lastUser, ok := chathistory.LastUserMessage(payload.Messages)
	if !ok {
		return s.replyError(ctx, action, "validation", domainerr.Validation("no user message in request"))
	}

	assistant, usage, sources, err := s.dispatchQuery(ctx, action, mode, integrated)
	if err != nil {
		return s.replyError(ctx, action, "query_dispatch", err)
	}

	if err := s.history.Append(ctx, action.TenantID, action.SessionID, action.AgentID, []domainaction.Message{lastUser, assistant}, ttl); err != nil {
		s.log.Warn().Err(err).Msg("execution: history append failed, continuing")
	}

	s.fireConversationCreate(ctx, action, lastUser, assistant)

	reply := domainaction.ChatResponsePayload{
		Message:         assistant,
		Usage:           usage,
		ConversationID:  action.SessionID,
		Sources:         sources,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}
	return s.tx.ReplyEvent(ctx, action, serviceName, "chat.response", reply)
}

// dispatchQuery publishes query.generate.<mode> and blocks on the
// Correlator for its reply (§4.3 step 4).
func (s *service) dispatchQuery(ctx context.Context, action *domainaction.Action, mode string, messages []domainaction.Message) (domainaction.Message, domainaction.Usage, []string, error) {
	req := domainaction.New(serviceName, "query.generate."+mode)
	req.TenantID, req.SessionID, req.TaskID, req.AgentID = action.TenantID, action.SessionID, action.TaskID, action.AgentID
	req.QueryConfig = action.QueryConfig
	req.RAGConfig = action.RAGConfig
	req.WithCallback(queryCallbackEvent)

	body, err := json.Marshal(domainaction.QueryGeneratePayload{Messages: messages})
	if err != nil {
		return domainaction.Message{}, domainaction.Usage{}, nil, err
	}
	req.Data = body

	waitCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if err := s.tx.Publish(ctx, req); err != nil {
		return domainaction.Message{}, domainaction.Usage{}, nil, domainerr.Transient(err, "publish query.generate.%s", mode)
	}
	reply, err := s.correlator.Await(waitCtx, req.ActionID)
	if err != nil {
		return domainaction.Message{}, domainaction.Usage{}, nil, domainerr.Transient(err, "awaiting query reply")
	}

	var result domainaction.QueryResultPayload
	if err := json.Unmarshal(reply.Data, &result); err != nil {
		return domainaction.Message{}, domainaction.Usage{}, nil, domainerr.Internal(err, "decode query reply")
	}
	if result.Error != "" {
		return domainaction.Message{}, domainaction.Usage{}, nil, domainerr.Permanent(nil, "query failed: %s", result.Error)
	}

	assistant := domainaction.Message{Role: "assistant", Content: result.AssistantContent, Timestamp: time.Now().UTC()}
	return assistant, result.Usage, result.Sources, nil
}

// fireConversationCreate dispatches conversation_service.message.create
// fire-and-forget (§4.3 step 7, §7's "log and swallow" policy).
func (s *service) fireConversationCreate(ctx context.Context, action *domainaction.Action, user, assistant domainaction.Message) {
	event := domainaction.New(serviceName, "conversation_service.message.create")
	event.TenantID, event.SessionID, event.TaskID, event.AgentID = action.TenantID, action.SessionID, action.TaskID, action.AgentID

	body, err := json.Marshal(domainaction.ConversationCreatePayload{
		ConversationID: action.SessionID, UserMessage: user, AgentMessage: assistant,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("execution: encode conversation create failed")
		return
	}
	event.Data = body
	if err := s.tx.Publish(ctx, event); err != nil {
		s.log.Warn().Err(err).Msg("execution: fire-and-forget conversation create failed")
	}
}

// replyError reports a step-4-or-earlier failure as orchestrator.chat.error
// (§4.3's "failure at step 4 ... produces a chat.error callback").
func (s *service) replyError(ctx context.Context, action *domainaction.Action, stage string, cause error) error {
	s.log.Warn().Err(cause).Str("stage", stage).Msg("execution: request failed")
	return s.tx.ReplyEvent(ctx, action, serviceName, "chat.error", domainaction.ChatErrorPayload{
		ErrorType: stage,
		Message:   cause.Error(),
	})
}

func chatMode(actionType string) (string, bool) {
	switch actionType {
	case "execution.chat.simple":
		return "simple", true
	case "execution.chat.advance":
		return "advance", true
	default:
		return "", false
	}
}
