package storage

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

const defaultIdempotencyTTL = 24 * time.Hour

// RedisAdapter keeps cart slots as plain string keys without expiry, so a
// cart survives until its owner changes it.
type RedisAdapter struct {
	client         *redis.Client
	idempotencyTTL time.Duration
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client, idempotencyTTL: defaultIdempotencyTTL}
}

// WithIdempotencyTTL changes how long checkout request keys are remembered.
func (r *RedisAdapter) WithIdempotencyTTL(ttl time.Duration) *RedisAdapter {
	if ttl > 0 {
		r.idempotencyTTL = ttl
	}
	return r
}

func (r *RedisAdapter) LoadSlot(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get slot %s", key)
	}
	return data, nil
}

func (r *RedisAdapter) SaveSlot(ctx context.Context, key string, payload []byte) error {
	if err := r.client.Set(ctx, key, payload, 0).Err(); err != nil {
		return errors.Wrapf(err, "set slot %s", key)
	}
	return nil
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, r.idempotencyTTL).Result()
	if err != nil {
		return false, errors.Wrap(err, "setnx")
	}

	return ok, nil
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
