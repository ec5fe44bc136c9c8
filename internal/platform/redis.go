// Package platform holds the small pieces of startup glue shared by every
// cmd/* composition root: dialing Redis from svcconfig.Config.RedisURL and
// waiting for an interrupt/SIGTERM to begin graceful shutdown. Adapted from
// the teacher's cmd/hive-server main.go (config.NewRedisClient +
// waitForShutdown), generalized off a single addr/db/password triple onto
// the redis:// URL form every service's RedisURL now uses.
package platform

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
)

// OpenRedis dials Redis from a redis:// URL and verifies the connection,
// mirroring the teacher's connect-then-ping sequence.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("platform: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("platform: ping redis: %w", err)
	}
	return client, nil
}

// WaitForShutdown blocks until SIGINT/SIGTERM, then runs cleanup in order.
// Each service's main calls this last, after every worker/server goroutine
// has been started.
func WaitForShutdown(cleanup ...func()) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	for _, fn := range cleanup {
		if fn != nil {
			fn()
		}
	}
}
