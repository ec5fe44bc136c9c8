// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// cmd/orchestrator is the platform's public front door (§4.2): the HTTP/WS
// surface, session lifecycle, agent-config resolution, and the dispatch of
// one chat turn to Execution — with a callback worker resolving
// orchestrator.chat.response/orchestrator.chat.error against the matching
// session, and a pseudo-streaming pass over the WebSocket before the final
// frame lands.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/nooble/rag-platform/internal/agentconfig"
	"github.com/nooble/rag-platform/internal/domainaction"
	"github.com/nooble/rag-platform/internal/domainerr"
	"github.com/nooble/rag-platform/internal/metadatastore"
	"github.com/nooble/rag-platform/internal/obslog"
	"github.com/nooble/rag-platform/internal/platform"
	"github.com/nooble/rag-platform/internal/sessionstore"
	"github.com/nooble/rag-platform/internal/streaming"
	"github.com/nooble/rag-platform/internal/svcconfig"
	"github.com/nooble/rag-platform/internal/transport"
	"github.com/nooble/rag-platform/internal/wsconn"
)

const serviceName = "orchestrator"
const executionCallbackEvent = "execution_callback" // unused for routing (ReplyEvent names chat.response/chat.error directly); kept for protocol-shape symmetry with the other dispatch->await hops

const pseudoStreamChunkSize = 80
const pseudoStreamDelay = 60 * time.Millisecond
const sessionIdleTimeout = 30 * time.Minute
const sessionGCInterval = 5 * time.Minute

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
		log.Error().Err(err).Msg("orchestrator: redis connect failed")
		return
	}

	store, err := metadatastore.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error().Err(err).Msg("orchestrator: metadata store connect failed")
		return
	}
	defer store.Close()

	sessions := sessionstore.New(rdb, sessionIdleTimeout)
	configs := agentconfig.New(rdb, store, 5*time.Minute)
	ws := wsconn.NewManager(wsconn.RedisAdapter{Client: rdb}, log)
	tx := transport.New(rdb, cfg.Environment, log)

	svc := &service{tx: tx, sessions: sessions, configs: configs, ws: ws, log: log}

	go sessions.RunGC(ctx, sessionGCInterval)

	handler := func(ctx context.Context, action *domainaction.Action) error {
		switch action.ActionType {
		case "orchestrator.chat.response":
			return svc.handleChatResponse(ctx, action)
		case "orchestrator.chat.error":
			return svc.handleChatError(ctx, action)
		default:
			log.Warn().Str("action_type", action.ActionType).Msg("orchestrator: unrecognized action_type")
			return nil
		}
	}

	go func() {
		opts := transport.ConsumeOptions{
			Service: serviceName, Callback: true, Group: "orchestrator-callback-workers",
			ConsumerPrefix: "orchestrator-cb", WorkerCount: cfg.WorkerCount,
		}
		if err := tx.StartWorkers(ctx, opts, handler); err != nil {
			log.Error().Err(err).Msg("orchestrator: callback worker pool exited")
		}
	}()

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: svc.routes()}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("orchestrator: http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("orchestrator: http server exited")
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
	tx       *transport.Client
	sessions *sessionstore.Store
	configs  *agentconfig.Handler
	ws       *wsconn.Manager
	log      *obslog.Logger
}

func (s *service) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat/init", s.handleChatInit)
	mux.HandleFunc("GET /api/v1/chat/session/{id}/status", s.handleSessionStatus)
	mux.HandleFunc("POST /api/v1/chat/session/{id}/task", s.handleChatTask)
	mux.HandleFunc("DELETE /api/v1/chat/session/{id}", s.handleSessionClose)
	mux.HandleFunc("GET /ws/chat/{session_id}", s.handleWS)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("GET /health/detailed", s.handleHealthDetailed)
	mux.HandleFunc("GET /health/metrics", s.handleHealthMetrics)
	return mux
}

type chatInitRequest struct {
	AgentID     string `json:"agent_id"`
	SessionType string `json:"session_type"`
}

type chatInitResponse struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Status    string `json:"status"`
}

// handleChatInit opens a new Session (§4.2's "open a session bound to one
// agent_id") after resolving the agent config once, failing fast if the
// agent cannot be resolved.
func (s *service) handleChatInit(w http.ResponseWriter, r *http.Request) {
	var req chatInitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerr.Validation("malformed request body: %v", err))
		return
	}
	cfg, err := s.configs.GetAgentConfig(r.Context(), req.AgentID)
	if err != nil {
		writeError(w, err)
		return
	}

	tenantID, userID := requestContext(r)
	sess := &sessionstore.Session{
		SessionID: uuid.NewString(), TenantID: tenantID, AgentID: cfg.AgentID,
		UserID: userID, SessionType: firstNonEmpty(req.SessionType, "chat"),
	}
	if err := s.sessions.Create(r.Context(), sess); err != nil {
		writeError(w, domainerr.Internal(err, "create session"))
		return
	}

	writeJSON(w, http.StatusOK, chatInitResponse{SessionID: sess.SessionID, AgentID: cfg.AgentID, Status: "open"})
}

type chatTaskRequest struct {
	Messages []domainaction.Message `json:"messages"`
	Mode     string                 `json:"mode"` // "simple" | "advance"
	Tools    []json.RawMessage      `json:"tools,omitempty"`
}

// handleChatTask is §4.2 step 5: resolve config, mint a task_id as the
// session's sole active task, dispatch execution.chat.<mode>, and return
// {task_id, status: processing} immediately — the reply arrives later on
// the callback stream (and over the WebSocket, pseudo-streamed).
func (s *service) handleChatTask(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	sess, ok := s.sessions.Get(r.Context(), sessionID)
	if !ok {
		writeError(w, domainerr.NotFound("session %s not found", sessionID))
		return
	}

	var req chatTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerr.Validation("malformed request body: %v", err))
		return
	}

	cfg, err := s.configs.GetAgentConfig(r.Context(), sess.AgentID)
	if err != nil {
		writeError(w, err)
		return
	}

	taskID := uuid.NewString()
	sess.SetActiveTask(taskID)
	_ = s.sessions.Persist(r.Context(), sess)

	mode := firstNonEmpty(req.Mode, modeFromTools(req.Tools))
	if err := s.dispatchChat(r.Context(), sess, taskID, cfg, mode, req.Messages, req.Tools); err != nil {
		sess.ClearActiveTask(taskID)
		_ = s.sessions.Persist(r.Context(), sess)
		writeError(w, domainerr.Transient(err, "dispatch chat task"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"task_id": taskID, "status": "processing"})
}

// dispatchChat builds and publishes execution.chat.<mode> (§4.2 step 5).
func (s *service) dispatchChat(ctx context.Context, sess *sessionstore.Session, taskID string, cfg *agentconfig.AgentConfig, mode string, messages []domainaction.Message, tools []json.RawMessage) error {
	req := domainaction.New(serviceName, "execution.chat."+mode)
	req.TenantID, req.SessionID, req.TaskID, req.AgentID, req.UserID = sess.TenantID, sess.SessionID, taskID, sess.AgentID, sess.UserID
	req.ExecutionConfig = cfg.ExecutionConfig
	req.QueryConfig = cfg.QueryConfig
	req.RAGConfig = cfg.RAGConfig

	body, err := json.Marshal(domainaction.ChatRequestPayload{Messages: messages, Tools: tools})
	if err != nil {
		return err
	}
	req.Data = body
	return s.tx.Publish(ctx, req)
}

// modeFromTools is §4.2 step 3: a request that declares tools runs in
// "advance" mode, otherwise "simple".
func modeFromTools(tools []json.RawMessage) string {
	if len(tools) > 0 {
		return "advance"
	}
	return "simple"
}

// handleChatResponse is the success half of §4.2's callback handling:
// clear the session's active task, pseudo-stream the answer over the
// WebSocket, then push the terminal chat_response frame.
func (s *service) handleChatResponse(ctx context.Context, action *domainaction.Action) error {
	sess, ok := s.sessions.Get(ctx, action.SessionID)
	if !ok {
		s.log.Warn().Str("session_id", action.SessionID).Msg("orchestrator: chat.response for unknown session")
		return nil
	}
	if !sess.IsActiveTask(action.TaskID) {
		s.log.Debug().Str("task_id", action.TaskID).Msg("orchestrator: discarding stale chat.response")
		return nil
	}

	var payload domainaction.ChatResponsePayload
	if err := json.Unmarshal(action.Data, &payload); err != nil {
		return err
	}

	sess.ClearActiveTask(action.TaskID)
	_ = s.sessions.Persist(ctx, sess)

	if streaming.ShouldStream(payload.Message.Content, pseudoStreamChunkSize) {
		_ = streaming.Emit(ctx, payload.Message.Content, pseudoStreamChunkSize, pseudoStreamDelay, func(c streaming.Chunk) error {
			return s.ws.Send(ctx, sess.SessionID, wsconn.Frame{Type: "chat_streaming", Data: c})
		})
	}

	return s.ws.Send(ctx, sess.SessionID, wsconn.Frame{Type: "chat_response", Data: payload})
}

// handleChatError is §4.3's "failure ... produces a chat.error callback".
func (s *service) handleChatError(ctx context.Context, action *domainaction.Action) error {
	sess, ok := s.sessions.Get(ctx, action.SessionID)
	if !ok {
		s.log.Warn().Str("session_id", action.SessionID).Msg("orchestrator: chat.error for unknown session")
		return nil
	}
	if !sess.IsActiveTask(action.TaskID) {
		return nil
	}

	var payload domainaction.ChatErrorPayload
	if err := json.Unmarshal(action.Data, &payload); err != nil {
		return err
	}

	sess.ClearActiveTask(action.TaskID)
	sess.SetError(payload.Message)
	_ = s.sessions.Persist(ctx, sess)

	return s.ws.Send(ctx, sess.SessionID, wsconn.Frame{Type: "chat_error", Data: payload})
}

func (s *service) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Get(r.Context(), r.PathValue("id"))
	if !ok {
		writeError(w, domainerr.NotFound("session %s not found", r.PathValue("id")))
		return
	}
	snap := sess.Clone()
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": snap.SessionID, "agent_id": snap.AgentID,
		"active_task_id": snap.ActiveTaskID, "total_tasks": snap.TotalTasks,
		"websocket_connected": snap.WebSocketConnected, "last_activity": snap.LastActivity,
		"last_error": snap.LastError,
	})
}

// handleSessionClose implements §4.2's explicit close: evict the session
// and fire conversation_service.session.closed, fire-and-forget.
func (s *service) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	sess, ok := s.sessions.Get(r.Context(), sessionID)
	if ok {
		event := domainaction.New(serviceName, "conversation_service.session.closed")
		event.TenantID, event.SessionID, event.AgentID = sess.TenantID, sess.SessionID, sess.AgentID
		body, err := json.Marshal(domainaction.ConversationSessionClosedPayload{ConversationID: sess.SessionID, SessionID: sess.SessionID})
		if err == nil {
			event.Data = body
			if err := s.tx.Publish(r.Context(), event); err != nil {
				s.log.Warn().Err(err).Msg("orchestrator: fire-and-forget session closed failed")
			}
		}
	}
	s.sessions.Delete(r.Context(), sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// wsInboundFrame is the envelope for every client->server WebSocket message.
// Only "chat_message" is currently handled; other types are ignored.
type wsInboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// wsChatMessageData is wsInboundFrame.Data for type "chat_message" — the WS
// equivalent of chatTaskRequest, minus the client-supplied Mode: §4.2 step 3
// derives mode from Tools instead of trusting the client.
type wsChatMessageData struct {
	Messages []domainaction.Message `json:"messages"`
	Tools    []json.RawMessage      `json:"tools,omitempty"`
}

func (s *service) handleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	sess, ok := s.sessions.Get(r.Context(), sessionID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := s.ws.Upgrade(w, r, sessionID)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("orchestrator: ws upgrade failed")
		return
	}
	sess.SetConnected(true, sessionID)
	defer func() {
		sess.SetConnected(false, "")
		s.ws.Disconnect(sessionID)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame wsInboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.log.Warn().Err(err).Str("session_id", sessionID).Msg("orchestrator: malformed ws frame")
			continue
		}
		switch frame.Type {
		case "chat_message":
			s.handleChatMessage(r.Context(), sess, frame.Data)
		default:
			s.log.Debug().Str("frame_type", frame.Type).Msg("orchestrator: unrecognized ws frame type")
		}
	}
}

// handleChatMessage runs §4.2 steps 1-5 for an inbound "chat_message" WS
// frame: mint a task_id, resolve the session's agent config, derive mode
// from whether the request declares tools, emit "chat_processing" carrying
// the new task_id, and dispatch execution.chat.<mode>. Unlike handleChatTask
// (the REST equivalent), mode is never client-supplied.
func (s *service) handleChatMessage(ctx context.Context, sess *sessionstore.Session, raw json.RawMessage) {
	var data wsChatMessageData
	if err := json.Unmarshal(raw, &data); err != nil {
		_ = s.ws.Send(ctx, sess.SessionID, wsconn.Frame{Type: "chat_error", Data: domainaction.ChatErrorPayload{
			ErrorType: "request_parsing", Message: err.Error(),
		}})
		return
	}

	cfg, err := s.configs.GetAgentConfig(ctx, sess.AgentID)
	if err != nil {
		_ = s.ws.Send(ctx, sess.SessionID, wsconn.Frame{Type: "chat_error", Data: domainaction.ChatErrorPayload{
			ErrorType: "agent_config", Message: err.Error(),
		}})
		return
	}

	taskID := uuid.NewString()
	sess.SetActiveTask(taskID)
	_ = s.sessions.Persist(ctx, sess)

	mode := modeFromTools(data.Tools)
	if err := s.ws.Send(ctx, sess.SessionID, wsconn.Frame{Type: "chat_processing", Data: map[string]string{"task_id": taskID}}); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.SessionID).Msg("orchestrator: chat_processing send failed")
	}

	if err := s.dispatchChat(ctx, sess, taskID, cfg, mode, data.Messages, data.Tools); err != nil {
		sess.ClearActiveTask(taskID)
		_ = s.sessions.Persist(ctx, sess)
		_ = s.ws.Send(ctx, sess.SessionID, wsconn.Frame{Type: "chat_error", Data: domainaction.ChatErrorPayload{
			ErrorType: "dispatch", Message: err.Error(),
		}})
	}
}

func (s *service) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": serviceName})
}

func (s *service) handleHealthMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"service": serviceName})
}

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
