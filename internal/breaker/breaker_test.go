package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/notipushq/notipus/internal/clock"
	"github.com/notipushq/notipus/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testKey = "breaker:42:slack"

func newTestBreaker(t *testing.T) (*Breaker, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	b := New(NewMemoryStore(), 3, 10*time.Minute, 5*time.Minute, clk, zap.NewNop())
	return b, clk
}

func trip(t *testing.T, b *Breaker) {
	t.Helper()
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Allow(context.Background(), testKey))
		b.RecordFailure(context.Background(), testKey)
	}
}

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)

	b.RecordFailure(context.Background(), testKey)
	b.RecordFailure(context.Background(), testKey)
	assert.NoError(t, b.Allow(context.Background(), testKey))
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)

	trip(t, b)
	err := b.Allow(context.Background(), testKey)
	assert.ErrorIs(t, err, event.ErrCircuitOpen)
}

func TestBreakerWindowExpiryResetsCount(t *testing.T) {
	b, clk := newTestBreaker(t)

	b.RecordFailure(context.Background(), testKey)
	b.RecordFailure(context.Background(), testKey)

	// Old failures age out of the window before the third arrives.
	clk.Advance(11 * time.Minute)
	b.RecordFailure(context.Background(), testKey)
	assert.NoError(t, b.Allow(context.Background(), testKey))
}

func TestBreakerSingleProbeAfterCooldown(t *testing.T) {
	b, clk := newTestBreaker(t)
	trip(t, b)

	clk.Advance(5 * time.Minute)

	// First caller through becomes the probe; the next is still refused.
	require.NoError(t, b.Allow(context.Background(), testKey))
	assert.ErrorIs(t, b.Allow(context.Background(), testKey), event.ErrCircuitOpen)
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	b, clk := newTestBreaker(t)
	trip(t, b)

	clk.Advance(5 * time.Minute)
	require.NoError(t, b.Allow(context.Background(), testKey))
	b.RecordSuccess(context.Background(), testKey)

	assert.NoError(t, b.Allow(context.Background(), testKey))
	assert.NoError(t, b.Allow(context.Background(), testKey))
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b, clk := newTestBreaker(t)
	trip(t, b)

	clk.Advance(5 * time.Minute)
	require.NoError(t, b.Allow(context.Background(), testKey))
	b.RecordFailure(context.Background(), testKey)

	assert.ErrorIs(t, b.Allow(context.Background(), testKey), event.ErrCircuitOpen)

	// A fresh full cooldown applies before the next probe.
	clk.Advance(4 * time.Minute)
	assert.ErrorIs(t, b.Allow(context.Background(), testKey), event.ErrCircuitOpen)
	clk.Advance(time.Minute)
	assert.NoError(t, b.Allow(context.Background(), testKey))
}

func TestBreakerCircuitsAreIndependent(t *testing.T) {
	b, _ := newTestBreaker(t)
	trip(t, b)

	assert.ErrorIs(t, b.Allow(context.Background(), testKey), event.ErrCircuitOpen)
	assert.NoError(t, b.Allow(context.Background(), Key("99", "slack")))
}

func TestBreakerReportsTransitions(t *testing.T) {
	b, clk := newTestBreaker(t)

	var transitions []State
	b.OnTransition(func(_, to State) {
		transitions = append(transitions, to)
	})

	// Healthy traffic and sub-threshold failures are not transitions.
	require.NoError(t, b.Allow(context.Background(), testKey))
	b.RecordFailure(context.Background(), testKey)
	b.RecordSuccess(context.Background(), testKey)
	assert.Empty(t, transitions)

	trip(t, b)
	clk.Advance(5 * time.Minute)
	require.NoError(t, b.Allow(context.Background(), testKey))
	b.RecordSuccess(context.Background(), testKey)

	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

type downStore struct{}

func (downStore) Update(context.Context, string, func(Snapshot) Snapshot) (Snapshot, error) {
	return Snapshot{}, errors.New("connection refused")
}

func TestBreakerFailsOpenOnStoreError(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	b := New(downStore{}, 3, 10*time.Minute, 5*time.Minute, clk, zap.NewNop())

	assert.NoError(t, b.Allow(context.Background(), testKey))
	b.RecordFailure(context.Background(), testKey)
	assert.NoError(t, b.Allow(context.Background(), testKey))
}

func TestFallbackStoreUsesMemoryWhenPrimaryFails(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	store := NewFallbackStore(downStore{}, NewMemoryStore(), zap.NewNop())
	b := New(store, 3, 10*time.Minute, 5*time.Minute, clk, zap.NewNop())

	trip(t, b)
	assert.ErrorIs(t, b.Allow(context.Background(), testKey), event.ErrCircuitOpen)
}
