package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisJournal is the pluggable replicated-store alternative named in §1
// ("may be in-memory, on-disk, or replicated"), grounded on the compozy
// corpus entry's use of redis/go-redis/v9.
type RedisJournal struct {
	client *redis.Client
	prefix string
}

func NewRedisJournal(client *redis.Client, prefix string) *RedisJournal {
	return &RedisJournal{client: client, prefix: prefix}
}

func (r *RedisJournal) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+key, value, ttl).Err()
}

func (r *RedisJournal) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}
