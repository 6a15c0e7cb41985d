package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/notipushq/notipus/internal/clock"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSeenMarksAndDetects(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	d := New(NewLocalStore(clk), nil, 24*time.Hour, zap.NewNop())

	assert.False(t, d.Seen(context.Background(), snowflake.ID(1), "shopify:820982911946154508"))
	assert.True(t, d.Seen(context.Background(), snowflake.ID(1), "shopify:820982911946154508"))

	// Same event id, different tenant: not a duplicate.
	assert.False(t, d.Seen(context.Background(), snowflake.ID(2), "shopify:820982911946154508"))
}

func TestSeenWindowExpiry(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	d := New(NewLocalStore(clk), nil, 24*time.Hour, zap.NewNop())

	assert.False(t, d.Seen(context.Background(), snowflake.ID(1), "stripe:evt_1"))
	clk.Advance(23 * time.Hour)
	assert.True(t, d.Seen(context.Background(), snowflake.ID(1), "stripe:evt_1"))
	clk.Advance(2 * time.Hour)
	assert.False(t, d.Seen(context.Background(), snowflake.ID(1), "stripe:evt_1"))
}

func TestLocalStoreSweepsExpiredKeys(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	s := NewLocalStore(clk)

	for _, key := range []string{"dedup:1:evt_1", "dedup:1:evt_2", "dedup:2:evt_1"} {
		seen, err := s.SeenOrMark(context.Background(), key, time.Hour)
		assert.NoError(t, err)
		assert.False(t, seen)
	}
	assert.Len(t, s.seen, 3)

	// Past the window, a touch on an unrelated key reaps the dead ones.
	clk.Advance(2 * time.Hour)
	_, err := s.SeenOrMark(context.Background(), "dedup:3:evt_9", time.Hour)
	assert.NoError(t, err)
	assert.Len(t, s.seen, 1)
}

type downStore struct{}

func (downStore) SeenOrMark(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func TestSeenFallsBackThenFailsOpen(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))

	d := New(downStore{}, NewLocalStore(clk), 24*time.Hour, zap.NewNop())
	assert.False(t, d.Seen(context.Background(), snowflake.ID(1), "stripe:evt_1"))
	assert.True(t, d.Seen(context.Background(), snowflake.ID(1), "stripe:evt_1"))

	// No working store at all: treat everything as unseen.
	d = New(downStore{}, downStore{}, 24*time.Hour, zap.NewNop())
	assert.False(t, d.Seen(context.Background(), snowflake.ID(1), "stripe:evt_1"))
	assert.False(t, d.Seen(context.Background(), snowflake.ID(1), "stripe:evt_1"))
}
