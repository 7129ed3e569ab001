package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/quoteflow/internal/payment/domain"
	pkgdb "github.com/smallbiznis/quoteflow/pkg/db"
	"gorm.io/gorm"
)

const recordColumns = `id, quote_id, type, amount, currency, status, provider, processor_reference,
	processor_payment_ref, checkout_url, idempotency_key, expires_at, failure_reason, paid_at,
	created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertRecord(ctx context.Context, db *gorm.DB, record *domain.PaymentRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_records (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.QuoteID,
		record.Type,
		record.Amount,
		record.Currency,
		record.Status,
		record.Provider,
		record.ProcessorReference,
		record.ProcessorPaymentRef,
		record.CheckoutURL,
		record.IdempotencyKey,
		record.ExpiresAt,
		record.FailureReason,
		record.PaidAt,
		record.CreatedAt,
		record.UpdatedAt,
	).Error
}

func (r *repo) FindRecordByProcessorReference(ctx context.Context, db *gorm.DB, ref string) (*domain.PaymentRecord, error) {
	if ref == "" {
		return nil, nil
	}
	return r.findOne(ctx, db, `processor_reference = ?`, ref)
}

func (r *repo) FindRecordByPaymentRef(ctx context.Context, db *gorm.DB, ref string) (*domain.PaymentRecord, error) {
	if ref == "" {
		return nil, nil
	}
	return r.findOne(ctx, db, `processor_payment_ref = ?`, ref)
}

func (r *repo) FindPendingDeposit(ctx context.Context, db *gorm.DB, quoteID snowflake.ID, amount decimal.Decimal) (*domain.PaymentRecord, error) {
	var records []domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+`
		 FROM payment_records
		 WHERE quote_id = ? AND type = ? AND status = ?
		 ORDER BY id DESC`,
		quoteID,
		domain.PaymentTypeDeposit,
		domain.PaymentStatusPending,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	// Compared as decimals, stored text may differ in scale.
	for i := range records {
		if records[i].Amount.Equal(amount) {
			return &records[i], nil
		}
	}
	return nil, nil
}

func (r *repo) FindLatestDeposit(ctx context.Context, db *gorm.DB, quoteID snowflake.ID) (*domain.PaymentRecord, error) {
	return r.findOne(ctx, db, `quote_id = ? AND type = ?`, quoteID, domain.PaymentTypeDeposit)
}

func (r *repo) ListRecordsByQuote(ctx context.Context, db *gorm.DB, quoteID snowflake.ID) ([]domain.PaymentRecord, error) {
	var records []domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+`
		 FROM payment_records
		 WHERE quote_id = ?
		 ORDER BY id ASC`,
		quoteID,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) MarkRecordSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentRef *string, paidAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_records
		 SET status = ?,
			processor_payment_ref = COALESCE(?, processor_payment_ref),
			failure_reason = NULL,
			paid_at = ?,
			updated_at = ?
		 WHERE id = ? AND status <> ?`,
		domain.PaymentStatusSucceeded,
		paymentRef,
		paidAt,
		paidAt,
		id,
		domain.PaymentStatusSucceeded,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkRecordFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_records
		 SET status = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.PaymentStatusFailed,
		reason,
		at,
		id,
		domain.PaymentStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) AttachPaymentRef(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentRef string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_records
		 SET processor_payment_ref = ?, updated_at = ?
		 WHERE id = ? AND processor_payment_ref IS NULL`,
		paymentRef,
		at,
		id,
	).Error
}

func (r *repo) ExpirePendingRecords(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_records
		 SET status = ?, failure_reason = ?, updated_at = ?
		 WHERE status = ? AND id IN (
			SELECT id FROM (
				SELECT id FROM payment_records
				WHERE status = ? AND expires_at IS NOT NULL AND expires_at < ?
				ORDER BY id
				LIMIT ?
			) AS expired
		 )`,
		domain.PaymentStatusFailed,
		domain.FailureReasonSessionExpired,
		now,
		domain.PaymentStatusPending,
		domain.PaymentStatusPending,
		now,
		limit,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, payload, received_at,
			processed_at, processing_error
		 FROM payment_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, provider, provider_event_id, event_type, payload, received_at, processed_at, processing_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
		event.ProcessingError,
	)
	if res.Error != nil {
		// ux_payment_events_provider_event: redelivered event.
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time, note *string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed_at = ?, processing_error = ?
		 WHERE id = ?`,
		processedAt,
		note,
		id,
	).Error
}

func (r *repo) MarkEventFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, processingErr string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processing_error = ?
		 WHERE id = ? AND processed_at IS NULL`,
		processingErr,
		id,
	).Error
}

func (r *repo) ListOpenEvents(ctx context.Context, db *gorm.DB, receivedAfter, receivedBefore time.Time, limit int) ([]domain.EventRecord, error) {
	var items []domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, payload, received_at,
			processed_at, processing_error
		 FROM payment_events
		 WHERE processed_at IS NULL AND received_at > ? AND received_at < ?
		 ORDER BY received_at, id
		 LIMIT ?`,
		receivedAfter,
		receivedBefore,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.PaymentRecord, error) {
	var record domain.PaymentRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+` FROM payment_records WHERE `+where+` ORDER BY id DESC LIMIT 1`,
		args...,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}
