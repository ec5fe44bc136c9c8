// Package sessionstore owns the Orchestrator's Session type (§3) and its
// in-process map guarded by a per-session mutex with write-through to
// Redis (§5). Grounded on codeready-toolchain-tarsy's pkg/session/types.go
// locking discipline: the mutex is held only across O(1) field updates,
// never across network I/O.
package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Session is the chat session owned by the Orchestrator (§3).
type Session struct {
	SessionID          string    `json:"session_id"`
	TenantID           string    `json:"tenant_id"`
	AgentID            string    `json:"agent_id"`
	UserID             string    `json:"user_id,omitempty"`
	SessionType        string    `json:"session_type"`
	ActiveTaskID       string    `json:"active_task_id,omitempty"`
	TotalTasks         int       `json:"total_tasks"`
	ConnectionID       string    `json:"connection_id,omitempty"`
	WebSocketConnected bool      `json:"websocket_connected"`
	LastActivity       time.Time `json:"last_activity"`
	LastError          string    `json:"last_error,omitempty"`

	mu sync.Mutex `json:"-"`
}

// Clone deep-copies the session's scalar state under its own lock,
// mirroring tarsy's Session.Clone pattern so callers can read a consistent
// snapshot without holding the lock across I/O.
func (s *Session) Clone() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s
	cp.mu = sync.Mutex{}
	return cp
}

// SetActiveTask mints a new active_task_id, enforcing the "at most one
// active_task_id per session" invariant (§3, §8 property 1) by simply
// overwriting — the prior task's eventual callback is still delivered to
// the session (it's looked up by session_id, not task_id) but its reply is
// ignored if active_task_id has since changed (§5 cancellation semantics).
func (s *Session) SetActiveTask(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ActiveTaskID = taskID
	s.TotalTasks++
	s.LastActivity = time.Now().UTC()
}

// ClearActiveTask is called once a callback for the current task lands.
func (s *Session) ClearActiveTask(taskID string) (matched bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ActiveTaskID != taskID {
		return false
	}
	s.ActiveTaskID = ""
	s.LastActivity = time.Now().UTC()
	return true
}

// IsActiveTask reports whether taskID is still the session's current task
// — used to discard a stale/duplicate callback.
func (s *Session) IsActiveTask(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ActiveTaskID == taskID
}

func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActivity = time.Now().UTC()
}

func (s *Session) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastError = msg
}

func (s *Session) SetConnected(connected bool, connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WebSocketConnected = connected
	s.ConnectionID = connectionID
}

// Store is the per-process session map with Redis write-through.
type Store struct {
	rdb *redis.Client

	mu       sync.RWMutex
	sessions map[string]*Session

	idleTimeout time.Duration
}

func New(rdb *redis.Client, idleTimeout time.Duration) *Store {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	return &Store{rdb: rdb, sessions: make(map[string]*Session), idleTimeout: idleTimeout}
}

func redisKey(id string) string { return "session:" + id }

// Create installs a new session locally and write-through to Redis.
func (st *Store) Create(ctx context.Context, s *Session) error {
	s.LastActivity = time.Now().UTC()
	st.mu.Lock()
	st.sessions[s.SessionID] = s
	st.mu.Unlock()
	return st.persist(ctx, s)
}

// Get returns the in-process Session, falling back to Redis (e.g. after a
// process restart) and re-hydrating the local map.
func (st *Store) Get(ctx context.Context, sessionID string) (*Session, bool) {
	st.mu.RLock()
	s, ok := st.sessions[sessionID]
	st.mu.RUnlock()
	if ok {
		return s, true
	}

	raw, err := st.rdb.Get(ctx, redisKey(sessionID)).Bytes()
	if err != nil {
		return nil, false
	}
	var loaded Session
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return nil, false
	}
	st.mu.Lock()
	st.sessions[sessionID] = &loaded
	st.mu.Unlock()
	return &loaded, true
}

// Persist snapshots the session to Redis; call after any mutation that
// must survive a restart or be visible to other processes.
func (st *Store) Persist(ctx context.Context, s *Session) error { return st.persist(ctx, s) }

func (st *Store) persist(ctx context.Context, s *Session) error {
	snap := s.Clone()
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("sessionstore: encode: %w", err)
	}
	return st.rdb.Set(ctx, redisKey(s.SessionID), body, st.idleTimeout).Err()
}

// Delete evicts a session from both tiers, on idle-timeout or explicit
// close (§3).
func (st *Store) Delete(ctx context.Context, sessionID string) {
	st.mu.Lock()
	delete(st.sessions, sessionID)
	st.mu.Unlock()
	st.rdb.Del(ctx, redisKey(sessionID))
}

// GC evicts every local session whose LastActivity predates the idle
// timeout — the periodic sweep named in §4.2.
func (st *Store) GC(ctx context.Context) int {
	cutoff := time.Now().Add(-st.idleTimeout)
	var evicted []string

	st.mu.RLock()
	for id, s := range st.sessions {
		snap := s.Clone()
		if snap.LastActivity.Before(cutoff) {
			evicted = append(evicted, id)
		}
	}
	st.mu.RUnlock()

	for _, id := range evicted {
		st.Delete(ctx, id)
	}
	return len(evicted)
}

// RunGC runs GC on interval until ctx is cancelled, per §4.2's "periodic
// sweep (interval configurable)".
func (st *Store) RunGC(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			st.GC(ctx)
		}
	}
}
