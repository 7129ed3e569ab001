package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/quoteflow/internal/quote/calculator"
	"github.com/smallbiznis/quoteflow/pkg/db/pagination"
)

type CreateQuoteRequest struct {
	ClientID       string
	ClientName     string
	ClientEmail    string
	Title          string
	Lines          []LineInput
	DepositPercent *decimal.Decimal
}

type UpdateLinesRequest struct {
	ID    string
	Lines []LineInput
}

type UpdateDepositPercentRequest struct {
	ID             string
	DepositPercent decimal.Decimal
}

type ListQuoteRequest struct {
	PageToken string
	PageSize  int
	Status    string
}

type ListQuoteResponse struct {
	pagination.PageInfo
	Quotes []Quote `json:"quotes"`
}

// QuoteView is a quote with its display-only breakdowns.
type QuoteView struct {
	Quote
	LineTotals   []LineTotal            `json:"line_totals"`
	VATBreakdown []calculator.VATBucket `json:"vat_breakdown"`
}

type LineTotal struct {
	Position int             `json:"position"`
	HT       decimal.Decimal `json:"total_ht"`
	VAT      decimal.Decimal `json:"total_vat"`
	TTC      decimal.Decimal `json:"total_ttc"`
}

type Service interface {
	Create(ctx context.Context, req CreateQuoteRequest) (Quote, error)
	Get(ctx context.Context, id string) (QuoteView, error)
	List(ctx context.Context, req ListQuoteRequest) (ListQuoteResponse, error)
	UpdateLines(ctx context.Context, req UpdateLinesRequest) (Quote, error)
	UpdateDepositPercent(ctx context.Context, req UpdateDepositPercentRequest) (Quote, error)
	Send(ctx context.Context, id string) (Quote, error)
	Complete(ctx context.Context, id string) (Quote, error)
	Cancel(ctx context.Context, id string) (Quote, error)
}

var (
	ErrInvalidOwner          = errors.New("invalid_owner")
	ErrInvalidID             = errors.New("invalid_id")
	ErrInvalidClient         = errors.New("invalid_client")
	ErrInvalidStatus         = errors.New("invalid_status")
	ErrInvalidLines          = errors.New("invalid_lines")
	ErrInvalidQuantity       = errors.New("invalid_quantity")
	ErrInvalidUnitPrice      = errors.New("invalid_unit_price")
	ErrInvalidVATRate        = errors.New("invalid_vat_rate")
	ErrInvalidDepositPercent = errors.New("invalid_deposit_percent")
	ErrInvalidDepositMethod  = errors.New("invalid_deposit_method")
	ErrNotFound              = errors.New("not_found")

	ErrInvalidTransition = errors.New("invalid_transition")
	ErrQuoteNotEditable  = errors.New("quote_not_editable")
	ErrQuoteNotSigned    = errors.New("quote_not_signed")
	ErrAlreadySettled    = errors.New("deposit_already_settled")
	ErrSignatureRejected = fmt.Errorf("signature_rejected: %w", ErrInvalidTransition)
	ErrQuoteExpired      = fmt.Errorf("quote_expired: %w", ErrSignatureRejected)
)
