// Package ratelimit throttles API requests per client using fixed one-minute windows.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultWindow = time.Minute

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests for a key against a per-window limit.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) (Decision, error)
}

func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

func decide(count int64, limit int, reset time.Time) Decision {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: count <= int64(limit), Limit: limit, Remaining: remaining, ResetAt: reset}
}

// MemoryLimiter keeps counters in process. Counters are not shared across instances.
type MemoryLimiter struct {
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	count int64
	reset time.Time
}

// NewMemoryLimiter builds an in-process limiter. A nil clock uses time.Now.
func NewMemoryLimiter(clock func() time.Time) *MemoryLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryLimiter{window: defaultWindow, clock: clock, entries: make(map[string]memoryEntry)}
}

// Allow increments the counter for key.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int) (Decision, error) {
	now := l.clock()
	key = normalizeKey(key)

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok || !now.Before(entry.reset) {
		entry = memoryEntry{reset: windowStart(now, l.window).Add(l.window)}
		l.pruneLocked(now)
	}
	entry.count++
	l.entries[key] = entry
	return decide(entry.count, limit, entry.reset), nil
}

func (l *MemoryLimiter) pruneLocked(now time.Time) {
	for key, entry := range l.entries {
		if !now.Before(entry.reset) {
			delete(l.entries, key)
		}
	}
}

// RedisLimiter shares counters across instances through INCR on a per-window key.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	window time.Duration
	clock  func() time.Time
}

// NewRedisLimiter builds a limiter on an existing client.
func NewRedisLimiter(client redis.UniversalClient, clock func() time.Time) *RedisLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &RedisLimiter{client: client, prefix: "ratelimit", window: defaultWindow, clock: clock}
}

// Allow increments the window counter and sets its expiry in one round trip.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int) (Decision, error) {
	start := windowStart(l.clock(), l.window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, normalizeKey(key), start.Unix())

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, l.window+time.Second)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis incr: %w", err)
	}
	return decide(incr.Val(), limit, start.Add(l.window)), nil
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "anonymous"
	}
	return key
}
