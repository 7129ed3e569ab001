package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quoteflow/internal/quote/domain"
	"github.com/smallbiznis/quoteflow/pkg/db/pagination"
	"gorm.io/gorm"
)

const quoteColumns = `id, owner_id, client_id, number, title, client_name, client_email, currency, status,
	total_ht, total_vat, total_ttc, deposit_percent, deposit_amount, deposit_status,
	deposit_paid_at, deposit_method, signature_ref, signed_at, payment_link_url, expires_at,
	sent_at, completed_at, canceled_at, created_at, updated_at`

// Columns stamped when a quote enters the given status.
var statusTimestampColumn = map[domain.QuoteStatus]string{
	domain.StatusSent:      "sent_at",
	domain.StatusCompleted: "completed_at",
	domain.StatusCanceled:  "canceled_at",
}

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, quote *domain.Quote) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Exec(
			`INSERT INTO quotes (`+quoteColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			quote.ID,
			quote.OwnerID,
			quote.ClientID,
			quote.Number,
			quote.Title,
			quote.ClientName,
			quote.ClientEmail,
			quote.Currency,
			quote.Status,
			quote.TotalHT,
			quote.TotalVAT,
			quote.TotalTTC,
			quote.DepositPercent,
			quote.DepositAmount,
			quote.DepositStatus,
			quote.DepositPaidAt,
			quote.DepositMethod,
			quote.SignatureRef,
			quote.SignedAt,
			quote.PaymentLinkURL,
			quote.ExpiresAt,
			quote.SentAt,
			quote.CompletedAt,
			quote.CanceledAt,
			quote.CreatedAt,
			quote.UpdatedAt,
		).Error
		if err != nil {
			return err
		}
		return insertLines(ctx, tx, quote.Lines)
	})
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, ownerID, id snowflake.ID) (*domain.Quote, error) {
	var quote domain.Quote
	err := db.WithContext(ctx).Raw(
		`SELECT `+quoteColumns+`
		 FROM quotes
		 WHERE owner_id = ? AND id = ?`,
		ownerID,
		id,
	).Scan(&quote).Error
	if err != nil {
		return nil, err
	}
	if quote.ID == 0 {
		return nil, nil
	}
	if err := r.attachLines(ctx, db, []*domain.Quote{&quote}); err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *repo) FindByIDUnscoped(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Quote, error) {
	var quote domain.Quote
	err := db.WithContext(ctx).Raw(
		`SELECT `+quoteColumns+`
		 FROM quotes
		 WHERE id = ?`,
		id,
	).Scan(&quote).Error
	if err != nil {
		return nil, err
	}
	if quote.ID == 0 {
		return nil, nil
	}
	return &quote, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, filter domain.ListQuoteFilter, page pagination.Pagination) ([]*domain.Quote, error) {
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE owner_id = ?`
	args := []any{ownerID}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		cursorID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		query += ` AND id < ?`
		args = append(args, cursorID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, page.PageSize+1)

	var quotes []*domain.Quote
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&quotes).Error; err != nil {
		return nil, err
	}
	if err := r.attachLines(ctx, db, quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

func (r *repo) UpdateDraft(ctx context.Context, db *gorm.DB, quote *domain.Quote) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE quotes
		 SET total_ht = ?, total_vat = ?, total_ttc = ?,
			deposit_percent = ?, deposit_amount = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		quote.TotalHT,
		quote.TotalVAT,
		quote.TotalTTC,
		quote.DepositPercent,
		quote.DepositAmount,
		quote.UpdatedAt,
		quote.ID,
		domain.StatusDraft,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ReplaceLines(ctx context.Context, db *gorm.DB, quoteID snowflake.ID, lines []domain.QuoteLine) error {
	if err := db.WithContext(ctx).Exec(`DELETE FROM quote_lines WHERE quote_id = ?`, quoteID).Error; err != nil {
		return err
	}
	return insertLines(ctx, db, lines)
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.QuoteStatus, at time.Time) (bool, error) {
	set := `status = ?, updated_at = ?`
	args := []any{to, at}
	if column, ok := statusTimestampColumn[to]; ok {
		set += fmt.Sprintf(`, %s = ?`, column)
		args = append(args, at)
	}
	args = append(args, id, from)

	res := db.WithContext(ctx).Exec(
		`UPDATE quotes SET `+set+` WHERE id = ? AND status = ?`,
		args...,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkSigned(ctx context.Context, db *gorm.DB, id snowflake.ID, from domain.QuoteStatus, signatureRef string, signedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE quotes
		 SET status = CASE WHEN deposit_status = ? THEN ? ELSE ? END,
			signature_ref = ?, signed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.DepositPaid,
		domain.StatusDepositPaid,
		domain.StatusSigned,
		signatureRef,
		signedAt,
		signedAt,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkDepositPaid(ctx context.Context, db *gorm.DB, params domain.MarkDepositPaidParams) (bool, error) {
	if len(params.AllowedStatuses) == 0 {
		return false, nil
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE quotes
		 SET deposit_status = ?,
			deposit_paid_at = ?,
			deposit_method = ?,
			status = CASE WHEN status = ? THEN ? ELSE status END,
			updated_at = ?
		 WHERE id = ? AND deposit_status <> ? AND status IN ?`,
		domain.DepositPaid,
		params.PaidAt,
		params.Method,
		domain.StatusSigned,
		domain.StatusDepositPaid,
		params.PaidAt,
		params.QuoteID,
		domain.DepositPaid,
		domain.StatusStrings(params.AllowedStatuses),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetPaymentLink(ctx context.Context, db *gorm.DB, id snowflake.ID, url string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE quotes
		 SET payment_link_url = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND deposit_status <> ?`,
		url,
		at,
		id,
		domain.StatusSigned,
		domain.DepositPaid,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) attachLines(ctx context.Context, db *gorm.DB, quotes []*domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(quotes))
	byID := make(map[snowflake.ID]*domain.Quote, len(quotes))
	for _, quote := range quotes {
		ids = append(ids, quote.ID.Int64())
		byID[quote.ID] = quote
		quote.Lines = []domain.QuoteLine{}
	}

	var lines []domain.QuoteLine
	err := db.WithContext(ctx).Raw(
		`SELECT id, quote_id, position, description, quantity, unit_price_ht, vat_rate, created_at
		 FROM quote_lines
		 WHERE quote_id IN ?
		 ORDER BY quote_id, position`,
		ids,
	).Scan(&lines).Error
	if err != nil {
		return err
	}
	for _, line := range lines {
		if quote, ok := byID[line.QuoteID]; ok {
			quote.Lines = append(quote.Lines, line)
		}
	}
	return nil
}

func insertLines(ctx context.Context, db *gorm.DB, lines []domain.QuoteLine) error {
	for _, line := range lines {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO quote_lines (id, quote_id, position, description, quantity, unit_price_ht, vat_rate, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			line.ID,
			line.QuoteID,
			line.Position,
			line.Description,
			line.Quantity,
			line.UnitPriceHT,
			line.VATRate,
			line.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}
