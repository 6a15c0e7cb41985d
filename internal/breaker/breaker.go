// Package breaker implements a per (tenant, destination) circuit breaker
// for outbound notification delivery.
package breaker

import (
	"context"
	"time"

	"github.com/notipushq/notipus/internal/clock"
	"github.com/notipushq/notipus/internal/event"
	"go.uber.org/zap"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Snapshot is the persisted breaker state for one circuit key.
type Snapshot struct {
	State       State     `json:"state"`
	Failures    int       `json:"failures"`
	WindowStart time.Time `json:"window_start"`
	OpenedAt    time.Time `json:"opened_at"`
	Probing     bool      `json:"probing"`
}

// Store persists snapshots. Update applies fn atomically with respect to
// concurrent updates of the same key; implementations may retry fn.
type Store interface {
	Update(ctx context.Context, key string, fn func(Snapshot) Snapshot) (Snapshot, error)
}

// Breaker gates delivery attempts. Failures within the window trip the
// circuit; after the cooldown a single probe is let through, and its
// outcome decides between closing again and another cooldown.
//
// Store errors never block delivery: an unreachable store means the
// breaker allows the attempt, since refusing would turn a store outage
// into a total notification outage.
type Breaker struct {
	store     Store
	threshold int
	window    time.Duration
	cooldown  time.Duration
	clk       clock.Clock
	log       *zap.Logger

	onTransition func(from, to State)
}

func New(store Store, threshold int, window, cooldown time.Duration, clk clock.Clock, log *zap.Logger) *Breaker {
	return &Breaker{
		store:     store,
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
		clk:       clk,
		log:       log.Named("breaker"),
	}
}

// OnTransition registers an observer for state changes. Set once during
// wiring, before the breaker sees traffic.
func (b *Breaker) OnTransition(fn func(from, to State)) {
	b.onTransition = fn
}

func (b *Breaker) notify(from, to State) {
	if b.onTransition == nil {
		return
	}
	// The zero snapshot has an empty state; it behaves as closed.
	if from == "" {
		from = StateClosed
	}
	if to == "" {
		to = StateClosed
	}
	if from != to {
		b.onTransition(from, to)
	}
}

// Allow reports whether a delivery attempt may proceed for the circuit key.
// Returns event.ErrCircuitOpen when the circuit refuses the attempt.
func (b *Breaker) Allow(ctx context.Context, key string) error {
	now := b.clk.Now()
	allowed := true
	var prev State

	snap, err := b.store.Update(ctx, key, func(s Snapshot) Snapshot {
		allowed = true
		prev = s.State
		switch s.State {
		case StateOpen:
			if now.Sub(s.OpenedAt) < b.cooldown {
				allowed = false
				return s
			}
			// Cooldown elapsed; this caller becomes the probe.
			s.State = StateHalfOpen
			s.Probing = true
		case StateHalfOpen:
			if s.Probing {
				// A probe is already in flight; only one at a time.
				allowed = false
				return s
			}
			s.Probing = true
		}
		return s
	})
	if err != nil {
		b.log.Warn("breaker store unavailable, allowing delivery",
			zap.String("key", key), zap.Error(err))
		return nil
	}
	b.notify(prev, snap.State)
	if !allowed {
		return event.ErrCircuitOpen
	}
	return nil
}

// RecordSuccess closes the circuit and clears the failure window.
func (b *Breaker) RecordSuccess(ctx context.Context, key string) {
	var prev State
	snap, err := b.store.Update(ctx, key, func(s Snapshot) Snapshot {
		prev = s.State
		return Snapshot{State: StateClosed}
	})
	if err != nil {
		b.log.Warn("breaker store unavailable on success", zap.String("key", key), zap.Error(err))
		return
	}
	b.notify(prev, snap.State)
}

// RecordFailure counts a delivery failure. Reaching the threshold within the
// failure window opens the circuit; a failed half-open probe reopens it for
// another full cooldown.
func (b *Breaker) RecordFailure(ctx context.Context, key string) {
	now := b.clk.Now()
	var prev State
	snap, err := b.store.Update(ctx, key, func(s Snapshot) Snapshot {
		prev = s.State
		if s.State == StateHalfOpen {
			return Snapshot{State: StateOpen, OpenedAt: now}
		}
		if s.WindowStart.IsZero() || now.Sub(s.WindowStart) > b.window {
			s.WindowStart = now
			s.Failures = 0
		}
		s.Failures++
		if s.Failures >= b.threshold {
			return Snapshot{State: StateOpen, OpenedAt: now}
		}
		return s
	})
	if err != nil {
		b.log.Warn("breaker store unavailable on failure", zap.String("key", key), zap.Error(err))
		return
	}
	b.notify(prev, snap.State)
	if snap.State == StateOpen && prev != StateOpen {
		b.log.Warn("circuit opened", zap.String("key", key))
	}
}

// Key builds the circuit key for a tenant and destination pair.
func Key(tenant, destination string) string {
	return "breaker:" + tenant + ":" + destination
}
