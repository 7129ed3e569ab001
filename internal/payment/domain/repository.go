package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	InsertRecord(ctx context.Context, db *gorm.DB, record *PaymentRecord) error
	FindRecordByProcessorReference(ctx context.Context, db *gorm.DB, ref string) (*PaymentRecord, error)
	FindRecordByPaymentRef(ctx context.Context, db *gorm.DB, ref string) (*PaymentRecord, error)
	FindPendingDeposit(ctx context.Context, db *gorm.DB, quoteID snowflake.ID, amount decimal.Decimal) (*PaymentRecord, error)
	FindLatestDeposit(ctx context.Context, db *gorm.DB, quoteID snowflake.ID) (*PaymentRecord, error)
	ListRecordsByQuote(ctx context.Context, db *gorm.DB, quoteID snowflake.ID) ([]PaymentRecord, error)
	MarkRecordSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentRef *string, paidAt time.Time) (bool, error)
	MarkRecordFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, at time.Time) (bool, error)
	AttachPaymentRef(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentRef string, at time.Time) error
	// ExpirePendingRecords fails pending records whose checkout session ended before now.
	ExpirePendingRecords(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error)

	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	// MarkEventProcessed closes the event; note carries anything flagged for follow-up.
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time, note *string) error
	// MarkEventFailed keeps the event open so a redelivery applies it again.
	MarkEventFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, processingErr string) error
	ListOpenEvents(ctx context.Context, db *gorm.DB, receivedAfter, receivedBefore time.Time, limit int) ([]EventRecord, error)
}
