package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paysync/internal/payment/domain"
	"gorm.io/gorm"
)

const eventColumns = `id, provider, source, event_id, event_type, provider_order_ref,
	provider_payment_ref, payload, received_at, processed_at, apply_attempts, last_error`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ExistsEvent(ctx context.Context, db *gorm.DB, source domain.Source, eventID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM payment_events
		 WHERE source = ? AND event_id = ?`,
		string(source),
		eventID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, source domain.Source, eventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+eventColumns+`
		 FROM payment_events
		 WHERE source = ? AND event_id = ?
		 LIMIT 1`,
		string(source),
		eventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// InsertEvent reports whether this call created the row. A conflicting
// (source, event_id) pair is absorbed by the unique index and returns false.
func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		insertEventSQL(db.Dialector.Name()),
		event.ID,
		event.Provider,
		string(event.Source),
		event.EventID,
		event.EventType,
		event.ProviderOrderRef,
		event.ProviderPaymentRef,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
		event.ApplyAttempts,
		event.LastError,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func insertEventSQL(dialect string) string {
	if dialect == "mysql" {
		return `INSERT IGNORE INTO payment_events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	}
	return `INSERT INTO payment_events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, event_id) DO NOTHING`
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed_at = ?, last_error = ''
		 WHERE id = ? AND processed_at IS NULL`,
		processedAt,
		id,
	).Error
}

func (r *repo) RecordAttempt(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET apply_attempts = apply_attempts + 1, last_error = ?
		 WHERE id = ?`,
		reason,
		id,
	).Error
}

func (r *repo) ListPending(ctx context.Context, db *gorm.DB, receivedBefore time.Time, maxAttempts int, limit int) ([]domain.EventRecord, error) {
	var items []domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+eventColumns+`
		 FROM payment_events
		 WHERE source = ?
		   AND processed_at IS NULL
		   AND received_at <= ?
		   AND apply_attempts < ?
		 ORDER BY received_at ASC, id ASC
		 LIMIT ?`,
		string(domain.SourceProviderWebhook),
		receivedBefore,
		maxAttempts,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListEventsFilter) ([]domain.EventRecord, error) {
	stmt := db.WithContext(ctx).Model(&domain.EventRecord{})
	if filter.Source != "" {
		stmt = stmt.Where("source = ?", string(filter.Source))
	}
	if filter.OrderRef != "" {
		stmt = stmt.Where("provider_order_ref = ?", filter.OrderRef)
	}
	if filter.Pending {
		stmt = stmt.Where("processed_at IS NULL")
	}
	if filter.AfterID != 0 {
		stmt = stmt.Where("id < ?", filter.AfterID)
	}

	var items []domain.EventRecord
	if err := stmt.Order("id DESC").Limit(filter.PageSize).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
