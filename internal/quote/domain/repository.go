package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quoteflow/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListQuoteFilter struct {
	Status QuoteStatus
}

// MarkDepositPaidParams describes a conditional deposit settlement. The
// update only applies while deposit_status is not paid and the current
// status is one of AllowedStatuses. A signed quote also moves to
// deposit_paid in the same statement.
type MarkDepositPaidParams struct {
	QuoteID         snowflake.ID
	Method          *DepositMethod
	PaidAt          time.Time
	AllowedStatuses []QuoteStatus
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, quote *Quote) error
	FindByID(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*Quote, error)
	// FindByIDUnscoped serves trusted internal callers such as the webhook reconciler.
	FindByIDUnscoped(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Quote, error)
	List(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, filter ListQuoteFilter, page pagination.Pagination) ([]*Quote, error)

	UpdateDraft(ctx context.Context, db *gorm.DB, quote *Quote) (bool, error)
	ReplaceLines(ctx context.Context, db *gorm.DB, quoteID snowflake.ID, lines []QuoteLine) error
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to QuoteStatus, at time.Time) (bool, error)
	MarkSigned(ctx context.Context, db *gorm.DB, id snowflake.ID, from QuoteStatus, signatureRef string, signedAt time.Time) (bool, error)
	MarkDepositPaid(ctx context.Context, db *gorm.DB, params MarkDepositPaidParams) (bool, error)
	SetPaymentLink(ctx context.Context, db *gorm.DB, id snowflake.ID, url string, at time.Time) (bool, error)
}
