package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is used when NewRedisStore receives an empty key.
const DefaultRedisKey = "lkc:user_display"

// RedisStore keeps the record under a single Redis key. A positive TTL bounds how
// long a stale record can trigger silent refresh attempts.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisStore returns a RedisStore. ttl <= 0 stores the record without expiry.
func NewRedisStore(client redis.UniversalClient, key string, ttl time.Duration) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{client: client, key: key, ttl: ttl}
}

// Key returns the Redis key the record is stored under.
func (r *RedisStore) Key() string {
	return r.key
}

func (r *RedisStore) Save(ctx context.Context, rec Record) error {
	if r.client == nil {
		return ErrUnavailable
	}
	data, err := encode(rec)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context) (*Record, error) {
	if r.client == nil {
		return nil, ErrUnavailable
	}
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return decode(data)
}

func (r *RedisStore) Remove(ctx context.Context) error {
	if r.client == nil {
		return ErrUnavailable
	}
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
