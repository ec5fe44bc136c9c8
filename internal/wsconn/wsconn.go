// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package wsconn manages live WebSocket connections for both the
// Orchestrator's chat socket and the Ingestion progress socket, with a
// Redis-mailbox fallback for clients that are momentarily disconnected.
// Generalizes the teacher's WebSocketManager (single client_id namespace,
// ping/pong keepalive, mailbox fallback) onto the frame types named in §6.
package wsconn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nooble/rag-platform/internal/obslog"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	mailboxTTL   = 7 * 24 * time.Hour
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Frame is the envelope for every server->client message named in §6:
// chat_processing, chat_streaming, chat_response, chat_error, pong,
// ingestion_progress.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Manager tracks live connections by client_id (session_id or task_id
// depending on the socket) and falls back to a Redis mailbox when a send
// target is not currently connected.
type Manager struct {
	clientsMu sync.RWMutex
	clients   map[string]*websocket.Conn

	redis RedisOps
	log   *obslog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// RedisOps is the minimal surface wsconn needs from go-redis, kept narrow
// so this package doesn't import redis.Client directly and stays testable
// with a fake.
type RedisOps interface {
	LPush(ctx context.Context, key string, values ...any) error
	RPop(ctx context.Context, key string) (string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

func NewManager(redis RedisOps, log *obslog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		clients: make(map[string]*websocket.Conn),
		redis:   redis,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	go m.pingLoop()
	return m
}

func (m *Manager) Close() { m.cancel() }

// Upgrade upgrades an HTTP request to a WebSocket and registers it under
// clientID, draining any pending mailbox messages on reconnect.
func (m *Manager) Upgrade(w http.ResponseWriter, r *http.Request, clientID string) (*websocket.Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("wsconn: upgrade: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	m.clientsMu.Lock()
	m.clients[clientID] = conn
	m.clientsMu.Unlock()

	m.drainMailbox(context.Background(), clientID)
	return conn, nil
}

// Disconnect unregisters clientID, e.g. on read-loop exit.
func (m *Manager) Disconnect(clientID string) {
	m.clientsMu.Lock()
	delete(m.clients, clientID)
	m.clientsMu.Unlock()
}

func (m *Manager) pingLoop() {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-t.C:
			m.pingAll()
		}
	}
}

func (m *Manager) pingAll() {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	for id, conn := range m.clients {
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
			if m.log != nil {
				m.log.Warn().Str("client_id", id).Err(err).Msg("wsconn: ping failed")
			}
		}
	}
}

// Send writes frame to clientID if connected; otherwise queues it in the
// Redis mailbox for delivery on reconnect (teacher's fallback pattern).
func (m *Manager) Send(ctx context.Context, clientID string, frame Frame) error {
	m.clientsMu.RLock()
	conn, connected := m.clients[clientID]
	m.clientsMu.RUnlock()

	body, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("wsconn: marshal frame: %w", err)
	}

	if connected {
		if err := conn.WriteMessage(websocket.TextMessage, body); err == nil {
			return nil
		}
		// fall through to mailbox on write failure
	}

	if m.redis == nil {
		return fmt.Errorf("wsconn: client %s not connected and no mailbox configured", clientID)
	}
	key := mailboxKey(clientID)
	if err := m.redis.LPush(ctx, key, string(body)); err != nil {
		return fmt.Errorf("wsconn: mailbox push: %w", err)
	}
	return m.redis.Expire(ctx, key, mailboxTTL)
}

func (m *Manager) drainMailbox(ctx context.Context, clientID string) {
	if m.redis == nil {
		return
	}
	key := mailboxKey(clientID)
	for {
		raw, err := m.redis.RPop(ctx, key)
		if err != nil || raw == "" {
			return
		}
		m.clientsMu.RLock()
		conn, ok := m.clients[clientID]
		m.clientsMu.RUnlock()
		if !ok {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			return
		}
	}
}

func mailboxKey(clientID string) string { return "mailbox:" + clientID }
