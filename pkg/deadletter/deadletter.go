// Package deadletter provides read-only access to outbox/inbox records
// that were marked Failed (spec §7 "Permanent failure ... surfaced via DLQ
// view"). It deliberately uses GORM rather than the raw pgx path
// pkg/coordination/postgres uses: this is an operator-facing read path,
// not a hot-path coordination call, so the ergonomics of a query builder
// outweigh the cost of a second connection pool.
package deadletter

import (
	"context"
	"time"

	"github.com/relaymesh/workcoordinator/pkg/coordination"
	"github.com/relaymesh/workcoordinator/pkg/errors"
	"gorm.io/gorm"
)

// FailedRecord is one dead-lettered outbox or inbox row (§3 "visible to
// DLQ").
type FailedRecord struct {
	Source          coordination.WorkSource
	MessageID       string    `gorm:"column:message_id"`
	Attempts        int       `gorm:"column:attempts"`
	Error           string    `gorm:"column:error"`
	FailureReason   int32     `gorm:"column:failure_reason"`
	StreamID        string    `gorm:"column:stream_id"`
	PartitionNumber *int32    `gorm:"column:partition_number"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

func (FailedRecord) TableName() string { return "" } // queries set the table explicitly per source

// Reader queries the dead-letter view across both outbox and inbox tables.
type Reader struct {
	db     *gorm.DB
	schema string
}

// New wraps db, scoping every query to schema (matching the coordination
// function's own schema qualification, §6).
func New(db *gorm.DB, schema string) *Reader {
	if schema == "" {
		schema = "coordination"
	}
	return &Reader{db: db, schema: schema}
}

const statusFailed = 0x8000

func (r *Reader) table(name string) string {
	return r.schema + "." + name
}

// ListOutboxFailures returns up to limit Failed outbox records, newest
// first.
func (r *Reader) ListOutboxFailures(ctx context.Context, limit int) ([]FailedRecord, error) {
	var rows []FailedRecord
	err := r.db.WithContext(ctx).
		Table(r.table("outbox")).
		Select("message_id", "attempts", "error", "failure_reason", "stream_id", "partition_number", "created_at").
		Where("status & ? != 0", statusFailed).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list outbox dead letters")
	}
	for i := range rows {
		rows[i].Source = coordination.SourceOutbox
	}
	return rows, nil
}

// ListInboxFailures returns up to limit Failed inbox records, newest
// first.
func (r *Reader) ListInboxFailures(ctx context.Context, limit int) ([]FailedRecord, error) {
	var rows []FailedRecord
	err := r.db.WithContext(ctx).
		Table(r.table("inbox")).
		Select("message_id", "attempts", "error", "failure_reason", "stream_id", "partition_number", "received_at AS created_at").
		Where("status & ? != 0", statusFailed).
		Order("received_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list inbox dead letters")
	}
	for i := range rows {
		rows[i].Source = coordination.SourceInbox
	}
	return rows, nil
}

// CountByFailureReason groups Failed outbox records by their classified
// reason, for dashboards tracking §7's error taxonomy.
func (r *Reader) CountByFailureReason(ctx context.Context) (map[int32]int64, error) {
	type row struct {
		FailureReason int32
		Count         int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Table(r.table("outbox")).
		Select("failure_reason, count(*) as count").
		Where("status & ? != 0", statusFailed).
		Group("failure_reason").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to count dead letters by reason")
	}

	out := make(map[int32]int64, len(rows))
	for _, rr := range rows {
		out[rr.FailureReason] = rr.Count
	}
	return out, nil
}
