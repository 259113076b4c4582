package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "kalamitra:idem:"

// RedisStore shares entries across API instances. Expiry is left to Redis.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Claim(ctx context.Context, key, fingerprint string, ttl time.Duration) (Entry, bool, error) {
	data, err := json.Marshal(Entry{Fingerprint: fingerprint})
	if err != nil {
		return Entry{}, false, err
	}
	ok, err := s.client.SetNX(ctx, redisKeyPrefix+key, data, ttlOrDefault(ttl)).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("idempotency: claim: %w", err)
	}
	if ok {
		return Entry{}, true, nil
	}

	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; report it as in flight so the client retries.
		return Entry{Fingerprint: fingerprint}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("idempotency: load: %w", err)
	}
	var existing Entry
	if err := json.Unmarshal(raw, &existing); err != nil {
		return Entry{}, false, fmt.Errorf("idempotency: decode: %w", err)
	}
	return existing, false, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, data, ttlOrDefault(ttl)).Err(); err != nil {
		return fmt.Errorf("idempotency: complete: %w", err)
	}
	return nil
}

func (s *RedisStore) Forget(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("idempotency: forget: %w", err)
	}
	return nil
}
