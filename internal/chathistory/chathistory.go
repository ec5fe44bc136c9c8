// Package chathistory owns ConversationHistory (§3): an ordered message
// sequence keyed by (tenant_id, session_id, agent_id), cached under TTL and
// persisted asynchronously by the Conversation worker. Grounded on the
// teacher's Redis-backed caching idiom in internal/config/redis.go.
package chathistory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nooble/rag-platform/internal/domainaction"
)

// Store caches ConversationHistory entries.
type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func key(tenantID, sessionID, agentID string) string {
	return fmt.Sprintf("history:%s:%s:%s", tenantID, sessionID, agentID)
}

// GetOrCreate returns the cached history, or an empty one if absent —
// "Get-or-create a ConversationHistory" (§4.3 step 1).
func (s *Store) GetOrCreate(ctx context.Context, tenantID, sessionID, agentID string) ([]domainaction.Message, error) {
	raw, err := s.rdb.Get(ctx, key(tenantID, sessionID, agentID)).Bytes()
	if err != nil {
		return nil, nil // cache miss: empty history
	}
	var msgs []domainaction.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("chathistory: decode: %w", err)
	}
	return msgs, nil
}

// Append adds a (user, assistant) turn and refreshes the TTL — §4.3 step 6.
func (s *Store) Append(ctx context.Context, tenantID, sessionID, agentID string, turn []domainaction.Message, ttl time.Duration) error {
	existing, err := s.GetOrCreate(ctx, tenantID, sessionID, agentID)
	if err != nil {
		return err
	}
	existing = append(existing, turn...)
	body, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("chathistory: encode: %w", err)
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return s.rdb.Set(ctx, key(tenantID, sessionID, agentID), body, ttl).Err()
}

// Integrate builds the message list for a Query dispatch (§4.3 step 3):
// history (truncated to maxHistory, system messages collapsed into one
// prefix) ++ new system messages ++ new user messages.
func Integrate(history []domainaction.Message, incoming []domainaction.Message, maxHistory int) []domainaction.Message {
	truncated := history
	if maxHistory > 0 && len(truncated) > maxHistory {
		truncated = truncated[len(truncated)-maxHistory:]
	}

	var systemPrefix string
	var nonSystem []domainaction.Message
	for _, m := range truncated {
		if m.Role == "system" {
			if systemPrefix != "" {
				systemPrefix += "\n"
			}
			systemPrefix += m.Content
		} else {
			nonSystem = append(nonSystem, m)
		}
	}

	var newSystem, newUser []domainaction.Message
	for _, m := range incoming {
		switch m.Role {
		case "system":
			newSystem = append(newSystem, m)
		default:
			newUser = append(newUser, m)
		}
	}

	result := make([]domainaction.Message, 0, len(nonSystem)+len(newSystem)+len(newUser)+1)
	if systemPrefix != "" {
		result = append(result, domainaction.Message{Role: "system", Content: systemPrefix, Timestamp: time.Now().UTC()})
	}
	result = append(result, nonSystem...)
	result = append(result, newSystem...)
	result = append(result, newUser...)
	return result
}

// LastUserMessage scans from the end for the most recent user message
// (§4.4 step 2); ok is false if none exists.
func LastUserMessage(messages []domainaction.Message) (domainaction.Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i], true
		}
	}
	return domainaction.Message{}, false
}
