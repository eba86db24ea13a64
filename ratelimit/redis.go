package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "visit:"

// RedisCounter shares windows between processes through redis.
type RedisCounter struct {
	client redis.UniversalClient
}

func NewRedisCounter(client redis.UniversalClient) (*RedisCounter, error) {
	if client == nil {
		return nil, errors.New("[NewRedisCounter] client is required")
	}
	return &RedisCounter{client: client}, nil
}

// Incr increments the window and sets its expiry on the first hit only, so
// later hits never extend it.
func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	k := redisKeyPrefix + key

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, window)
		ttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return incr.Val(), ttl.Val(), nil
}
