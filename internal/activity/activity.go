// Package activity keeps a short-lived log of processed webhooks for the
// dashboard read surface.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/notipushq/notipus/internal/clock"
	"github.com/notipushq/notipus/pkg/db/pagination"
)

// Outcomes. Exactly one is recorded per accepted webhook.
const (
	OutcomeDelivered         = "delivered"
	OutcomeSuppressedQuota   = "suppressed_quota"
	OutcomeSuppressedBreaker = "suppressed_breaker"
	OutcomeDuplicate         = "duplicate"
	OutcomeFailed            = "failed"
)

// Record is one processed webhook. Amount fields are denormalized so the
// dashboard never needs the original payload, which is not stored.
type Record struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID       snowflake.ID `gorm:"not null;index:ix_activity_tenant_time,priority:1" json:"tenant_id"`
	Provider       string       `gorm:"type:text;not null" json:"provider"`
	EventType      string       `gorm:"type:text;not null" json:"event_type"`
	IdempotencyKey string       `gorm:"type:text;not null" json:"idempotency_key"`
	AmountMinor    int64        `gorm:"column:amount_minor" json:"amount_minor"`
	Currency       string       `gorm:"type:text" json:"currency"`
	Outcome        string       `gorm:"type:text;not null" json:"outcome"`
	Detail         string       `gorm:"type:text" json:"detail,omitempty"`
	ProcessedAt    time.Time    `gorm:"not null;index:ix_activity_tenant_time,priority:2,sort:desc" json:"processed_at"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "activity_records" }

// Recorder persists records and serves the recent-activity listing.
type Recorder struct {
	db   *gorm.DB
	node *snowflake.Node
	clk  clock.Clock
	log  *zap.Logger
}

func NewRecorder(db *gorm.DB, node *snowflake.Node, clk clock.Clock, log *zap.Logger) *Recorder {
	return &Recorder{db: db, node: node, clk: clk, log: log.Named("activity")}
}

// Record writes one activity row. Failures are logged, never propagated;
// bookkeeping must not fail the pipeline.
func (r *Recorder) Record(ctx context.Context, rec Record) {
	if rec.ID == 0 {
		rec.ID = r.node.Generate()
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = r.clk.Now()
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		r.log.Warn("failed to record activity",
			zap.String("tenant", rec.TenantID.String()),
			zap.String("outcome", rec.Outcome),
			zap.Error(err))
	}
}

// List returns the tenant's most recent records, newest first.
func (r *Recorder) List(ctx context.Context, tenantID snowflake.ID, limit int) ([]Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var records []Record
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("processed_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ListPage is the cursor-paged variant backing the dashboard API. Record
// IDs are snowflakes, so keyset pagination on id preserves insertion
// order without an offset scan.
func (r *Recorder) ListPage(ctx context.Context, tenantID snowflake.ID, page pagination.Pagination) ([]Record, *pagination.PageInfo, error) {
	limit := page.PageSize
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("id DESC").
		Limit(limit + 1)

	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, nil, err
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
		}
		q = q.Where("id < ?", afterID)
	}

	var records []Record
	if err := q.Find(&records).Error; err != nil {
		return nil, nil, err
	}

	records, info := pagination.BuildPageInfo(records, limit, func(rec Record) string {
		return rec.ID.String()
	})
	return records, info, nil
}

// Purge deletes records older than the retention period and returns how
// many went.
func (r *Recorder) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := r.clk.Now().Add(-retention)
	res := r.db.WithContext(ctx).
		Where("processed_at < ?", cutoff).
		Delete(&Record{})
	return res.RowsAffected, res.Error
}
