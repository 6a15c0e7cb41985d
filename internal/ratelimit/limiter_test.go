package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/notipushq/notipus/internal/clock"
	"github.com/notipushq/notipus/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingCounter struct{}

func (failingCounter) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func newTestLimiter(t *testing.T, window string) (*QuotaLimiter, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	limiter := NewQuotaLimiter(NewLocalCounter(clk), nil, window, clk, zap.NewNop())
	return limiter, clk
}

func TestAdmitWithinQuota(t *testing.T) {
	limiter, _ := newTestLimiter(t, config.QuotaWindowCalendarMonth)
	tenantID := snowflake.ID(42)

	for i := int64(1); i <= 3; i++ {
		d := limiter.Admit(context.Background(), tenantID, 3)
		assert.True(t, d.Allowed)
		assert.Equal(t, i, d.Used)
		assert.Equal(t, int64(3-i), d.Remaining)
	}

	d := limiter.Admit(context.Background(), tenantID, 3)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(4), d.Used)
	assert.Equal(t, int64(0), d.Remaining)
}

func TestAdmitCalendarMonthReset(t *testing.T) {
	limiter, clk := newTestLimiter(t, config.QuotaWindowCalendarMonth)
	tenantID := snowflake.ID(42)

	d := limiter.Admit(context.Background(), tenantID, 1)
	require.True(t, d.Allowed)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), d.ResetAt)

	d = limiter.Admit(context.Background(), tenantID, 1)
	require.False(t, d.Allowed)

	// Crossing the month boundary starts a fresh counter.
	clk.Advance(30 * 24 * time.Hour)
	d = limiter.Admit(context.Background(), tenantID, 1)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Used)
}

func TestAdmitRolling30dReset(t *testing.T) {
	limiter, clk := newTestLimiter(t, config.QuotaWindowRolling30d)
	tenantID := snowflake.ID(7)

	d := limiter.Admit(context.Background(), tenantID, 1)
	require.True(t, d.Allowed)

	d = limiter.Admit(context.Background(), tenantID, 1)
	require.False(t, d.Allowed)

	clk.Advance(31 * 24 * time.Hour)
	d = limiter.Admit(context.Background(), tenantID, 1)
	assert.True(t, d.Allowed)
}

func TestAdmitTenantsAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, config.QuotaWindowCalendarMonth)

	d := limiter.Admit(context.Background(), snowflake.ID(1), 1)
	require.True(t, d.Allowed)
	d = limiter.Admit(context.Background(), snowflake.ID(1), 1)
	require.False(t, d.Allowed)

	d = limiter.Admit(context.Background(), snowflake.ID(2), 1)
	assert.True(t, d.Allowed)
}

func TestLocalCounterSweepsExpiredWindows(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	c := NewLocalCounter(clk)

	for _, key := range []string{"quota:1:2025-03", "quota:2:2025-03"} {
		_, err := c.Incr(context.Background(), key, time.Hour)
		assert.NoError(t, err)
	}
	assert.Len(t, c.counts, 2)

	// A rolled-over window leaves no dead key behind once anything increments.
	clk.Advance(2 * time.Hour)
	_, err := c.Incr(context.Background(), "quota:1:2025-04", time.Hour)
	assert.NoError(t, err)
	assert.Len(t, c.counts, 1)
}

func TestAdmitFallsBackToLocalCounter(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	limiter := NewQuotaLimiter(failingCounter{}, NewLocalCounter(clk), config.QuotaWindowCalendarMonth, clk, zap.NewNop())

	d := limiter.Admit(context.Background(), snowflake.ID(9), 1)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Used)

	d = limiter.Admit(context.Background(), snowflake.ID(9), 1)
	assert.False(t, d.Allowed)
}

func TestAdmitFailsOpenWhenAllStoresDown(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	limiter := NewQuotaLimiter(failingCounter{}, nil, config.QuotaWindowCalendarMonth, clk, zap.NewNop())

	for i := 0; i < 5; i++ {
		d := limiter.Admit(context.Background(), snowflake.ID(9), 1)
		assert.True(t, d.Allowed)
		assert.Zero(t, d.Used)
	}
}
