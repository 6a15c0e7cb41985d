package enrichment

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/notipushq/notipus/internal/clock"
	redis "github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "enrich:domain:"

// Cache stores company info per domain for a bounded lifetime.
type Cache interface {
	Get(ctx context.Context, domain string) (*CompanyInfo, bool)
	Put(ctx context.Context, domain string, info *CompanyInfo)
}

// RedisCache shares enrichment results across instances. Errors are treated
// as cache misses; the resolver will simply look the domain up again.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if client == nil {
		return nil
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, domain string) (*CompanyInfo, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, cacheKeyPrefix+domain).Bytes()
	if err != nil {
		return nil, false
	}
	var info CompanyInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, false
	}
	return &info, true
}

func (c *RedisCache) Put(ctx context.Context, domain string, info *CompanyInfo) {
	if c == nil || info == nil {
		return
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, cacheKeyPrefix+domain, raw, c.ttl).Err()
}

type localEntry struct {
	info      *CompanyInfo
	expiresAt time.Time
}

// LocalCache is the in-process fallback used when no Redis is configured.
type LocalCache struct {
	mu      sync.Mutex
	entries map[string]localEntry
	ttl     time.Duration
	clk     clock.Clock
}

func NewLocalCache(ttl time.Duration, clk clock.Clock) *LocalCache {
	return &LocalCache{
		entries: map[string]localEntry{},
		ttl:     ttl,
		clk:     clk,
	}
}

func (c *LocalCache) Get(_ context.Context, domain string) (*CompanyInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[domain]
	if !ok {
		return nil, false
	}
	if c.clk.Now().After(e.expiresAt) {
		delete(c.entries, domain)
		return nil, false
	}
	return e.info, true
}

func (c *LocalCache) Put(_ context.Context, domain string, info *CompanyInfo) {
	if info == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[domain] = localEntry{info: info, expiresAt: c.clk.Now().Add(c.ttl)}
}
