package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

// Cache stores JSON documents with a TTL. Callers treat every error as a miss.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Kind() string
	Close() error
}

type redisCache struct {
	rdb *goredis.Client
	log *logger.Logger
}

// NewRedis connects and pings with a 5s budget.
func NewRedis(addr string, baseLog *logger.Logger) (Cache, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisCache{rdb: rdb, log: baseLog.With("service", "RedisCache")}, nil
}

func (c *redisCache) Kind() string { return "redis" }

func (c *redisCache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

func (c *redisCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

func (c *redisCache) Close() error { return c.rdb.Close() }

type nopCache struct{}

// NewNop never hits. Used when Redis is not configured.
func NewNop() Cache { return nopCache{} }

func (nopCache) Kind() string { return "none" }

func (nopCache) GetJSON(context.Context, string, any) (bool, error) { return false, nil }

func (nopCache) SetJSON(context.Context, string, any, time.Duration) error { return nil }

func (nopCache) Close() error { return nil }

type memoryEntry struct {
	raw       []byte
	expiresAt time.Time
}

type MemoryCache struct {
	mu   sync.Mutex
	now  func() time.Time
	data map[string]memoryEntry
}

func NewMemory() *MemoryCache {
	return &MemoryCache{now: time.Now, data: map[string]memoryEntry{}}
}

func (m *MemoryCache) Kind() string { return "memory" }

func (m *MemoryCache) Close() error { return nil }

func (m *MemoryCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	e, ok := m.data[key]
	if ok && !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.data, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(e.raw, dst)
}

func (m *MemoryCache) SetJSON(_ context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e := memoryEntry{raw: raw}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.data[key] = e
	m.mu.Unlock()
	return nil
}
