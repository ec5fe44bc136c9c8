package transport

import (
	"context"
	"sync"

	"github.com/nooble/rag-platform/internal/domainaction"
)

// Correlator lets a service synchronously "wait (via callback stream) for
// the reply" (§4.3 step 4) to a request it just published, even though the
// reply physically arrives on a separately-consumed callback stream. The
// callback worker goroutine calls Resolve when a reply lands; the
// publishing goroutine calls Await to block until its specific reply
// arrives or the context is done.
//
// Correlation key is the request's action_id, which every reply must echo
// back as correlation_id.
type Correlator struct {
	mu      sync.Mutex
	waiters map[string]chan *domainaction.Action
}

func NewCorrelator() *Correlator {
	return &Correlator{waiters: make(map[string]chan *domainaction.Action)}
}

// Await registers requestActionID as awaited and blocks until Resolve is
// called with a matching reply, or ctx is done.
func (c *Correlator) Await(ctx context.Context, requestActionID string) (*domainaction.Action, error) {
	ch := make(chan *domainaction.Action, 1)
	c.mu.Lock()
	c.waiters[requestActionID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.waiters, requestActionID)
		c.mu.Unlock()
	}()

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolve delivers reply to whoever is awaiting reply.CorrelationID, if
// anyone. Returns false if nobody was waiting (e.g. process restarted
// between request and reply — caller should treat as a dropped reply).
func (c *Correlator) Resolve(reply *domainaction.Action) bool {
	c.mu.Lock()
	ch, ok := c.waiters[reply.CorrelationID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- reply:
		return true
	default:
		return false
	}
}
