// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package transport implements the DomainAction transport contract (§4.1):
// publish, publish_with_callback, consume, and fire-and-forget, layered on
// Redis streams with named consumer groups. It generalizes the teacher's
// RedisQueue (a single RPUSH/BLPOP list) into XADD/XREADGROUP/XACK against
// one stream per logical service queue.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nooble/rag-platform/internal/domainaction"
	"github.com/nooble/rag-platform/internal/obslog"
)

// field name under which the JSON-serialized DomainAction is stored in the
// stream entry. Streams are multi-field; we only ever use one field.
const payloadField = "action"

// Client publishes and consumes DomainActions against Redis streams.
type Client struct {
	rdb         *redis.Client
	environment string
	log         *obslog.Logger
}

// New wraps an existing *redis.Client. environment is the deploy tier
// ("development", "staging", "production") used in stream-name composition.
func New(rdb *redis.Client, environment string, log *obslog.Logger) *Client {
	return &Client{rdb: rdb, environment: environment, log: log}
}

func (c *Client) streamName(service string, callback bool) string {
	if callback {
		return fmt.Sprintf("nooble:%s:%s-callbacks:streams:main", c.environment, service)
	}
	return fmt.Sprintf("nooble:%s:%s:streams:main", c.environment, service)
}

// Publish appends action to the destination service's main stream, derived
// from action_type's first dotted segment.
func (c *Client) Publish(ctx context.Context, action *domainaction.Action) error {
	svc := domainaction.DestinationService(action.ActionType)
	return c.publishTo(ctx, c.streamName(svc, false), action)
}

// PublishCallback appends action to originService's callback stream (used
// by a handler replying to a publish_with_callback request).
func (c *Client) PublishCallback(ctx context.Context, originService string, action *domainaction.Action) error {
	return c.publishTo(ctx, c.streamName(originService, true), action)
}

// PublishWithCallback sets callback_action_type to "<origin>.<event>" and
// publishes to the destination stream, per §4.1.
func (c *Client) PublishWithCallback(ctx context.Context, action *domainaction.Action, callbackEvent string) error {
	action.WithCallback(callbackEvent)
	return c.Publish(ctx, action)
}

func (c *Client) publishTo(ctx context.Context, stream string, action *domainaction.Action) error {
	body, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("transport: marshal action: %w", err)
	}
	return c.retryTransient(ctx, func() error {
		return c.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			Values: map[string]any{payloadField: body},
		}).Err()
	})
}

// retryTransient retries connection-level failures with bounded exponential
// backoff, per §4.1's "transient transport errors ... retried with
// exponential backoff bounded by a max-retries setting".
func (c *Client) retryTransient(ctx context.Context, op func() error) error {
	const maxRetries = 5
	backoff := 50 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := op(); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}
		return nil
	}
	return fmt.Errorf("transport: exhausted retries: %w", lastErr)
}

// ReplyTo answers request on its callback_action_type (§4.1's
// publish_with_callback contract), stamping correlation_id and the
// context IDs every reply must carry forward unchanged. serviceName is
// the replying service's own name (the reply's origin_service). Returns
// nil without publishing if request carried no callback address — a
// fire-and-forget dispatch has nothing to reply to.
func (c *Client) ReplyTo(ctx context.Context, request *domainaction.Action, serviceName string, payload any) error {
	if request.CallbackActionType == "" {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("transport: marshal reply payload: %w", err)
	}
	reply := domainaction.New(serviceName, request.CallbackActionType)
	reply.CorrelationID = request.ActionID
	reply.TenantID, reply.SessionID, reply.TaskID, reply.AgentID = request.TenantID, request.SessionID, request.TaskID, request.AgentID
	reply.Data = body
	return c.PublishCallback(ctx, request.OriginService, reply)
}

// ReplyEvent answers request on a caller-chosen "<origin>.<event>" action
// type instead of request.CallbackActionType verbatim. Needed where a
// handler's outcome determines which of several callback action types the
// origin service listens for (§4.2's orchestrator.chat.response vs
// orchestrator.chat.error, both valid replies to one execution.chat.*
// dispatch). Unlike ReplyTo, this always publishes — callers only reach
// for it when they have already decided a reply is owed.
func (c *Client) ReplyEvent(ctx context.Context, request *domainaction.Action, serviceName, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("transport: marshal reply payload: %w", err)
	}
	reply := domainaction.New(serviceName, request.OriginService+"."+event)
	reply.CorrelationID = request.ActionID
	reply.TenantID, reply.SessionID, reply.TaskID, reply.AgentID = request.TenantID, request.SessionID, request.TaskID, request.AgentID
	reply.Data = body
	return c.PublishCallback(ctx, request.OriginService, reply)
}

// EnsureGroup creates the consumer group on the service's main or callback
// stream if it does not already exist. StartWorkers calls it before it
// starts reading.
func (c *Client) EnsureGroup(ctx context.Context, service string, callback bool, group string) error {
	stream := c.streamName(service, callback)
	err := c.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return fmt.Errorf("transport: create group %s on %s: %w", group, stream, err)
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && (errorContains(err, "BUSYGROUP"))
}

func errorContains(err error, substr string) bool {
	var s string
	if err != nil {
		s = err.Error()
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// HandlerFunc processes one delivered action. A returned error is logged
// and the action is NOT re-queued automatically — the owning state machine
// (§4.5's IngestionTask, or the session for chat) is the source of truth;
// the delivery is still ACKed so the stream does not grow unbounded.
type HandlerFunc func(ctx context.Context, action *domainaction.Action) error

// ConsumeOptions configures a worker pool reading one (stream, group).
type ConsumeOptions struct {
	Service      string // logical stream owner, e.g. "ingestion"
	Callback     bool   // read the "-callbacks" stream instead of main
	Group        string // consumer group name
	ConsumerPrefix string // per-worker consumer IDs are "<prefix>-<n>"
	WorkerCount  int
	BlockInterval time.Duration // XREADGROUP BLOCK duration
}

// StartWorkers launches opts.WorkerCount goroutines consuming from one
// consumer group, generalizing the teacher's worker.StartWorkers (N
// goroutines draining one queue) onto XREADGROUP+XACK semantics. It
// returns once ctx is cancelled and every worker has exited.
func (c *Client) StartWorkers(ctx context.Context, opts ConsumeOptions, handler HandlerFunc) error {
	if opts.BlockInterval == 0 {
		opts.BlockInterval = 2 * time.Second
	}
	if err := c.EnsureGroup(ctx, opts.Service, opts.Callback, opts.Group); err != nil {
		return err
	}
	stream := c.streamName(opts.Service, opts.Callback)

	done := make(chan struct{}, opts.WorkerCount)
	for i := 0; i < opts.WorkerCount; i++ {
		consumer := fmt.Sprintf("%s-%d", opts.ConsumerPrefix, i)
		go func(consumer string) {
			defer func() { done <- struct{}{} }()
			c.workerLoop(ctx, stream, opts.Group, consumer, opts.BlockInterval, handler)
		}(consumer)
	}
	for i := 0; i < opts.WorkerCount; i++ {
		<-done
	}
	return nil
}

func (c *Client) workerLoop(ctx context.Context, stream, group, consumer string, blockInterval time.Duration, handler HandlerFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    10,
			Block:    blockInterval,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			if c.log != nil {
				c.log.Error().Err(err).Str("stream", stream).Msg("transport: xreadgroup failed")
			}
			time.Sleep(200 * time.Millisecond)
			continue
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				c.handleOne(ctx, stream, group, msg, handler)
			}
		}
	}
}

func (c *Client) handleOne(ctx context.Context, stream, group string, msg redis.XMessage, handler HandlerFunc) {
	raw, _ := msg.Values[payloadField].(string)
	var action domainaction.Action
	if err := json.Unmarshal([]byte(raw), &action); err != nil {
		if c.log != nil {
			c.log.Error().Err(err).Str("entry_id", msg.ID).Msg("transport: malformed action, acking to drop")
		}
		c.rdb.XAck(ctx, stream, group, msg.ID)
		return
	}

	fields := obslog.ActionFields{
		ActionID: action.ActionID, ActionType: action.ActionType,
		TenantID: action.TenantID, SessionID: action.SessionID,
		TaskID: action.TaskID, AgentID: action.AgentID,
	}
	var log *obslog.Logger
	if c.log != nil {
		log = c.log.WithAction(fields)
	}

	if err := handler(ctx, &action); err != nil && log != nil {
		log.Error().Err(err).Msg("transport: handler returned error")
	}
	// Delivery is ACKed regardless of handler outcome: §4.1 states a
	// failing handler is logged and NOT re-queued by the transport — the
	// owning state machine is the source of truth for retry decisions.
	c.rdb.XAck(ctx, stream, group, msg.ID)
}
