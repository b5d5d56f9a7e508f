package freshness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

// Tracker remembers when an owner last completed a successful pull.
type Tracker interface {
	MarkFresh(ctx context.Context, owner models.Owner) error
	IsFresh(ctx context.Context, owner models.Owner) (bool, error)
	Invalidate(ctx context.Context, owner models.Owner) error
}

type MemoryTracker struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	marks map[models.Owner]time.Time
}

func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	return &MemoryTracker{ttl: ttl, now: time.Now, marks: map[models.Owner]time.Time{}}
}

// WithClock is for tests.
func (m *MemoryTracker) WithClock(now func() time.Time) *MemoryTracker {
	m.now = now
	return m
}

func (m *MemoryTracker) MarkFresh(_ context.Context, owner models.Owner) error {
	m.mu.Lock()
	m.marks[owner] = m.now()
	m.mu.Unlock()
	return nil
}

func (m *MemoryTracker) IsFresh(_ context.Context, owner models.Owner) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.marks[owner]
	return ok && m.now().Sub(at) < m.ttl, nil
}

func (m *MemoryTracker) Invalidate(_ context.Context, owner models.Owner) error {
	m.mu.Lock()
	delete(m.marks, owner)
	m.mu.Unlock()
	return nil
}

// RedisTracker shares marks between processes through key expiry.
type RedisTracker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisTracker(rdb *redis.Client, ttl time.Duration) *RedisTracker {
	return &RedisTracker{rdb: rdb, ttl: ttl}
}

// NewRedisTrackerFromURL parses a redis:// URL.
func NewRedisTrackerFromURL(url string, ttl time.Duration) (*RedisTracker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisTracker(redis.NewClient(opts), ttl), nil
}

func key(owner models.Owner) string {
	return "clinic-sync:fresh:" + owner.String()
}

func (r *RedisTracker) MarkFresh(ctx context.Context, owner models.Owner) error {
	return r.rdb.Set(ctx, key(owner), time.Now().UTC().Format(time.RFC3339), r.ttl).Err()
}

func (r *RedisTracker) IsFresh(ctx context.Context, owner models.Owner) (bool, error) {
	n, err := r.rdb.Exists(ctx, key(owner)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisTracker) Invalidate(ctx context.Context, owner models.Owner) error {
	return r.rdb.Del(ctx, key(owner)).Err()
}

func (r *RedisTracker) Close() error {
	return r.rdb.Close()
}
