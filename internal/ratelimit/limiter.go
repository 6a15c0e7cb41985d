package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/notipushq/notipus/internal/clock"
	"github.com/notipushq/notipus/internal/config"
	"go.uber.org/zap"
)

// Decision is the outcome of a quota check for one notification.
type Decision struct {
	Allowed   bool
	Limit     int64
	Used      int64
	Remaining int64
	ResetAt   time.Time
}

// QuotaLimiter admits notifications against the tenant's plan quota. The
// window policy (calendar month or rolling 30 days) is fixed at startup.
//
// The limiter fails open: if the primary store is unreachable it falls back
// to the local counter, and if that fails too the notification is admitted.
// A store outage must never silence every tenant at once.
type QuotaLimiter struct {
	store    CounterStore
	fallback CounterStore
	window   string
	clk      clock.Clock
	log      *zap.Logger
}

func NewQuotaLimiter(store, fallback CounterStore, window string, clk clock.Clock, log *zap.Logger) *QuotaLimiter {
	return &QuotaLimiter{
		store:    store,
		fallback: fallback,
		window:   window,
		clk:      clk,
		log:      log.Named("ratelimit"),
	}
}

// Admit counts one notification against the tenant's quota and reports
// whether delivery may proceed. The count is consumed even when the answer
// is no; suppressed notifications still appear in usage.
func (l *QuotaLimiter) Admit(ctx context.Context, tenantID snowflake.ID, limit int64) Decision {
	key, resetAt := l.windowKey(tenantID)
	ttl := resetAt.Sub(l.clk.Now())

	used, err := l.incr(ctx, key, ttl)
	if err != nil {
		l.log.Warn("quota store unavailable, admitting",
			zap.String("tenant", tenantID.String()),
			zap.Error(err))
		return Decision{Allowed: true, Limit: limit, ResetAt: resetAt}
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   used <= limit,
		Limit:     limit,
		Used:      used,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

func (l *QuotaLimiter) incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if l.store != nil {
		used, err := l.store.Incr(ctx, key, ttl)
		if err == nil {
			return used, nil
		}
		if l.fallback == nil {
			return 0, err
		}
		l.log.Warn("quota store failed, using local fallback", zap.Error(err))
	}
	if l.fallback == nil {
		return 0, fmt.Errorf("no counter store configured")
	}
	return l.fallback.Incr(ctx, key, ttl)
}

// windowKey returns the counter key for the current window plus the instant
// the window resets.
func (l *QuotaLimiter) windowKey(tenantID snowflake.ID) (string, time.Time) {
	now := l.clk.Now()
	if l.window == config.QuotaWindowRolling30d {
		// The window starts at the tenant's first event and runs 30 days;
		// ResetAt here is the worst case seen by this event.
		return fmt.Sprintf("quota:%s:r30", tenantID), now.Add(30 * 24 * time.Hour)
	}
	resetAt := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return fmt.Sprintf("quota:%s:%s", tenantID, now.Format("2006-01")), resetAt
}
