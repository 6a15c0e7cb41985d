package breaker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MemoryStore keeps circuit state in process. It is the fallback when no
// Redis is configured; each instance then trips its own circuits.
type MemoryStore struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: map[string]Snapshot{}}
}

func (s *MemoryStore) Update(_ context.Context, key string, fn func(Snapshot) Snapshot) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := fn(s.snaps[key])
	s.snaps[key] = next
	return next, nil
}

// FallbackStore uses the primary store until it errors, then retries the
// update against the in-memory store so the breaker keeps some state
// through a Redis outage.
type FallbackStore struct {
	primary  Store
	fallback *MemoryStore
	log      *zap.Logger
}

func NewFallbackStore(primary Store, fallback *MemoryStore, log *zap.Logger) *FallbackStore {
	return &FallbackStore{primary: primary, fallback: fallback, log: log.Named("breaker.store")}
}

func (s *FallbackStore) Update(ctx context.Context, key string, fn func(Snapshot) Snapshot) (Snapshot, error) {
	if s.primary != nil {
		snap, err := s.primary.Update(ctx, key, fn)
		if err == nil {
			return snap, nil
		}
		s.log.Warn("breaker primary store failed, using memory", zap.Error(err))
	}
	return s.fallback.Update(ctx, key, fn)
}
