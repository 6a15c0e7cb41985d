package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/notipushq/notipus/internal/clock"
	redis "github.com/redis/go-redis/v9"
)

// CounterStore is a windowed usage counter. Incr returns the counter value
// after incrementing; the TTL is only applied when the key is created.
type CounterStore interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

var incrWithExpireScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisCounter shares usage counts across instances. The INCR and the
// first-write PEXPIRE run in one script so a crash between them cannot
// leave a counter that never expires.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	if client == nil {
		return nil
	}
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if c == nil || c.client == nil {
		return 0, errors.New("counter store not configured")
	}
	count, err := incrWithExpireScript.Run(ctx, c.client, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, err
	}
	return count, nil
}

type localCount struct {
	count     int64
	expiresAt time.Time
}

// LocalCounter is the in-process fallback. Counts are per instance, so a
// multi-instance deployment running on the fallback over-admits; that is
// the accepted fail-open trade. Expired windows are reaped opportunistically
// so rolled-over keys do not accumulate.
type LocalCounter struct {
	mu        sync.Mutex
	counts    map[string]*localCount
	clk       clock.Clock
	nextSweep time.Time
}

const sweepInterval = time.Minute

func NewLocalCounter(clk clock.Clock) *LocalCounter {
	return &LocalCounter{
		counts:    map[string]*localCount{},
		clk:       clk,
		nextSweep: clk.Now().Add(sweepInterval),
	}
}

func (c *LocalCounter) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	c.sweep(now)
	entry, ok := c.counts[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &localCount{expiresAt: now.Add(ttl)}
		c.counts[key] = entry
	}
	entry.count++
	return entry.count, nil
}

// sweep drops expired windows at most once per sweepInterval. Caller holds mu.
func (c *LocalCounter) sweep(now time.Time) {
	if now.Before(c.nextSweep) {
		return
	}
	for key, entry := range c.counts {
		if now.After(entry.expiresAt) {
			delete(c.counts, key)
		}
	}
	c.nextSweep = now.Add(sweepInterval)
}
