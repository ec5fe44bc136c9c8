// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package obslog adapts the platform's structured logging onto zerolog.
// It keeps the shape of a single shared logger with a broadcast channel
// for log tailing, but every entry carries per-action fields instead of
// a flat printf string.
package obslog

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger and adds a tailing broadcast for operators.
type Logger struct {
	zl        zerolog.Logger
	mu        sync.RWMutex
	subs      map[chan string]bool
	subsMu    sync.RWMutex
}

// New builds a Logger writing structured JSON to stdout at the given level.
// levelName is one of "debug", "info", "warn", "error"; unknown values
// default to "info".
func New(service, levelName string) *Logger {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	base := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger()

	return &Logger{
		zl:   base,
		subs: make(map[chan string]bool),
	}
}

// ActionFields carries the per-action context every log line should include
// when it is available (§9 design note).
type ActionFields struct {
	ActionID   string
	ActionType string
	TenantID   string
	SessionID  string
	TaskID     string
	AgentID    string
}

// WithAction returns a derived Logger seeded with the action's context
// fields, omitting any that are empty.
func (l *Logger) WithAction(f ActionFields) *Logger {
	ctx := l.zl.With()
	if f.ActionID != "" {
		ctx = ctx.Str("action_id", f.ActionID)
	}
	if f.ActionType != "" {
		ctx = ctx.Str("action_type", f.ActionType)
	}
	if f.TenantID != "" {
		ctx = ctx.Str("tenant_id", f.TenantID)
	}
	if f.SessionID != "" {
		ctx = ctx.Str("session_id", f.SessionID)
	}
	if f.TaskID != "" {
		ctx = ctx.Str("task_id", f.TaskID)
	}
	if f.AgentID != "" {
		ctx = ctx.Str("agent_id", f.AgentID)
	}
	return &Logger{zl: ctx.Logger(), subs: l.subs}
}

func (l *Logger) Info() *zerolog.Event  { return l.tee(l.zl.Info()) }
func (l *Logger) Warn() *zerolog.Event  { return l.tee(l.zl.Warn()) }
func (l *Logger) Error() *zerolog.Event { return l.tee(l.zl.Error()) }
func (l *Logger) Debug() *zerolog.Event { return l.tee(l.zl.Debug()) }

// tee is a no-op hook point kept symmetric with Tail/broadcast; zerolog
// events are value types so fan-out to subscribers happens via Raw() in
// Tail subscribers reading the same stdout stream in production. Here we
// simply return the event unchanged — broadcast wiring lives in Printf.
func (l *Logger) tee(e *zerolog.Event) *zerolog.Event { return e }

// Printf is a narrow escape hatch for call sites migrating from the
// teacher's printf-style logger; new code should prefer Info()/Error().
func (l *Logger) Printf(format string, v ...interface{}) {
	l.zl.Info().Msgf(format, v...)
	l.broadcast(fmt.Sprintf(format, v...))
}

func (l *Logger) broadcast(line string) {
	l.subsMu.RLock()
	defer l.subsMu.RUnlock()
	for ch := range l.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

// Tail subscribes to a best-effort feed of log lines, for an operator-facing
// log viewer. Only lines written through Printf reach it; events built
// with Info/Warn/Error/Debug are not broadcast. The returned channel is
// never closed by the caller; call Untail to stop receiving.
func (l *Logger) Tail() chan string {
	ch := make(chan string, 32)
	l.subsMu.Lock()
	l.subs[ch] = true
	l.subsMu.Unlock()
	return ch
}

func (l *Logger) Untail(ch chan string) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	if l.subs[ch] {
		delete(l.subs, ch)
		close(ch)
	}
}
