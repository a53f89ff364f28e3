package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// FailureTracker counts consecutive job failures per entity so a record that
// keeps failing can be skipped and flagged instead of retried forever.
type FailureTracker interface {
	Failures(ctx context.Context, job, entityID string) (int64, error)
	RecordFailure(ctx context.Context, job, entityID string) (int64, error)
	Reset(ctx context.Context, job, entityID string) error
}

type RedisFailureTracker struct {
	client    RedisClient
	keyPrefix string
	window    time.Duration
}

// NewRedisFailureTracker forgets a failure streak after window of inactivity.
func NewRedisFailureTracker(client RedisClient, keyPrefix string, window time.Duration) *RedisFailureTracker {
	return &RedisFailureTracker{client: client, keyPrefix: keyPrefix, window: window}
}

func (t *RedisFailureTracker) key(job, entityID string) string {
	return fmt.Sprintf("%sfailures:%s:%s", t.keyPrefix, job, entityID)
}

func (t *RedisFailureTracker) Failures(ctx context.Context, job, entityID string) (int64, error) {
	n, err := t.client.Get(ctx, t.key(job, entityID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read failure count: %w", err)
	}
	return n, nil
}

func (t *RedisFailureTracker) RecordFailure(ctx context.Context, job, entityID string) (int64, error) {
	key := t.key(job, entityID)
	n, err := t.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to record failure: %w", err)
	}
	if err := t.client.Expire(ctx, key, t.window).Err(); err != nil {
		return n, fmt.Errorf("failed to set failure expiry: %w", err)
	}
	return n, nil
}

func (t *RedisFailureTracker) Reset(ctx context.Context, job, entityID string) error {
	if err := t.client.Del(ctx, t.key(job, entityID)).Err(); err != nil {
		return fmt.Errorf("failed to reset failure count: %w", err)
	}
	return nil
}

var _ FailureTracker = (*RedisFailureTracker)(nil)

// MemoryFailureTracker keeps counts in process. The window is not enforced.
type MemoryFailureTracker struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemoryFailureTracker() *MemoryFailureTracker {
	return &MemoryFailureTracker{counts: make(map[string]int64)}
}

func (t *MemoryFailureTracker) Failures(_ context.Context, job, entityID string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[job+":"+entityID], nil
}

func (t *MemoryFailureTracker) RecordFailure(_ context.Context, job, entityID string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := job + ":" + entityID
	t.counts[k]++
	return t.counts[k], nil
}

func (t *MemoryFailureTracker) Reset(_ context.Context, job, entityID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, job+":"+entityID)
	return nil
}

var _ FailureTracker = (*MemoryFailureTracker)(nil)
