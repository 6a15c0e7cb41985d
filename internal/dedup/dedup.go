// Package dedup suppresses replays of already-processed webhook events.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/notipushq/notipus/internal/clock"
	"github.com/notipushq/notipus/internal/config"
)

var Module = fx.Module("dedup",
	fx.Provide(NewFromConfig),
)

// Store answers "have we seen this key in the window" and marks it seen in
// the same step.
type Store interface {
	SeenOrMark(ctx context.Context, key string, window time.Duration) (bool, error)
}

// Deduper tracks (tenant, provider, event id) keys. Store errors fail open:
// a duplicate notification beats a dropped one.
type Deduper struct {
	store    Store
	fallback Store
	window   time.Duration
	log      *zap.Logger
}

func New(store, fallback Store, window time.Duration, log *zap.Logger) *Deduper {
	return &Deduper{store: store, fallback: fallback, window: window, log: log.Named("dedup")}
}

// Seen reports whether the event was already processed within the window,
// marking it as processed otherwise.
func (d *Deduper) Seen(ctx context.Context, tenantID snowflake.ID, idempotencyKey string) bool {
	key := fmt.Sprintf("dedup:%s:%s", tenantID, idempotencyKey)

	if d.store != nil {
		seen, err := d.store.SeenOrMark(ctx, key, d.window)
		if err == nil {
			return seen
		}
		d.log.Warn("dedup store failed, using local fallback", zap.Error(err))
	}
	if d.fallback != nil {
		seen, err := d.fallback.SeenOrMark(ctx, key, d.window)
		if err == nil {
			return seen
		}
	}
	return false
}

// RedisStore marks keys with SETNX so the check and the mark are one
// round trip.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		return nil
	}
	return &RedisStore{client: client}
}

func (s *RedisStore) SeenOrMark(ctx context.Context, key string, window time.Duration) (bool, error) {
	set, err := s.client.SetNX(ctx, key, 1, window).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}

// LocalStore is the in-process fallback. Expired keys are reaped
// opportunistically so the map does not grow without bound.
type LocalStore struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	clk       clock.Clock
	nextSweep time.Time
}

const sweepInterval = time.Minute

func NewLocalStore(clk clock.Clock) *LocalStore {
	return &LocalStore{
		seen:      map[string]time.Time{},
		clk:       clk,
		nextSweep: clk.Now().Add(sweepInterval),
	}
}

func (s *LocalStore) SeenOrMark(_ context.Context, key string, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	s.sweep(now)
	if expiresAt, ok := s.seen[key]; ok && now.Before(expiresAt) {
		return true, nil
	}
	s.seen[key] = now.Add(window)
	return false, nil
}

// sweep drops expired entries at most once per sweepInterval. Caller holds mu.
func (s *LocalStore) sweep(now time.Time) {
	if now.Before(s.nextSweep) {
		return
	}
	for key, expiresAt := range s.seen {
		if !now.Before(expiresAt) {
			delete(s.seen, key)
		}
	}
	s.nextSweep = now.Add(sweepInterval)
}

type Params struct {
	fx.In

	Config config.Config
	Clock  clock.Clock
	Logger *zap.Logger
	Redis  *redis.Client `optional:"true"`
}

func NewFromConfig(p Params) *Deduper {
	local := NewLocalStore(p.Clock)

	var store Store
	if p.Redis != nil {
		store = NewRedisStore(p.Redis)
	}
	return New(store, local, p.Config.DedupWindow, p.Logger)
}
