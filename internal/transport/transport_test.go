package transport

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/nooble/rag-platform/internal/domainaction"
)

func newTestClient(t *testing.T) (*Client, *redis.Client) {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	return New(rdb, "test", nil), rdb
}

func TestPublishAndConsume(t *testing.T) {
	c, rdb := newTestClient(t)
	stream := c.streamName("embedding", false)
	defer rdb.Del(context.Background(), stream)

	action := domainaction.New("execution", "embedding.generate_query")
	action.TenantID = "tenant-1"
	require.NoError(t, c.Publish(context.Background(), action))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan *domainaction.Action, 1)
	go c.StartWorkers(ctx, ConsumeOptions{
		Service: "embedding", Group: "test-group", ConsumerPrefix: "w", WorkerCount: 1,
	}, func(_ context.Context, a *domainaction.Action) error {
		select {
		case received <- a:
		default:
		}
		return nil
	})

	select {
	case a := <-received:
		require.Equal(t, action.ActionID, a.ActionID)
		require.Equal(t, "tenant-1", a.TenantID)
	case <-time.After(4 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestDestinationServiceRouting(t *testing.T) {
	require.Equal(t, "embedding", domainaction.DestinationService("embedding.batch_process"))
	require.Equal(t, "ingestion", domainaction.DestinationService("ingestion.document.ingest"))
}
