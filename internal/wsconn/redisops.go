package wsconn

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAdapter adapts *redis.Client to the narrow RedisOps surface this
// package depends on.
type RedisAdapter struct{ Client *redis.Client }

func (a RedisAdapter) LPush(ctx context.Context, key string, values ...any) error {
	return a.Client.LPush(ctx, key, values...).Err()
}

func (a RedisAdapter) RPop(ctx context.Context, key string) (string, error) {
	v, err := a.Client.RPop(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

func (a RedisAdapter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return a.Client.Expire(ctx, key, ttl).Err()
}
