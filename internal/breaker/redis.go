package breaker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const updateMaxRetries = 5

// RedisStore shares circuit state across instances. Updates run under
// WATCH so two instances recording outcomes for the same circuit cannot
// lose each other's writes.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		return nil
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Update(ctx context.Context, key string, fn func(Snapshot) Snapshot) (Snapshot, error) {
	if s == nil || s.client == nil {
		return Snapshot{}, errors.New("breaker store not configured")
	}

	var result Snapshot
	txf := func(tx *redis.Tx) error {
		var snap Snapshot
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			if err := json.Unmarshal(raw, &snap); err != nil {
				// Unreadable state is treated as a fresh circuit.
				snap = Snapshot{}
			}
		}

		next := fn(snap)
		buf, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, buf, s.ttl)
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}

	for i := 0; i < updateMaxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return Snapshot{}, err
	}
	return Snapshot{}, errors.New("breaker update lost the key too many times")
}
