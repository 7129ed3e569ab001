package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/quoteflow/internal/quote/calculator"
)

type LineInput struct {
	Description string
	Quantity    decimal.Decimal
	UnitPriceHT decimal.Decimal
	VATRate     decimal.Decimal
}

type NewQuoteParams struct {
	ID              snowflake.ID
	OwnerID         snowflake.ID
	ClientID        snowflake.ID
	ClientName      string
	ClientEmail     string
	Title           string
	Currency        string
	Lines           []LineInput
	LineIDs         func() snowflake.ID
	DepositPercent  decimal.Decimal
	AllowedVATRates []decimal.Decimal
	ValidityDays    int
	Now             time.Time
}

// NewQuote is the only way to build a persistable quote: totals and the
// deposit amount always come from the lines.
func NewQuote(p NewQuoteParams) (*Quote, error) {
	if p.ID == 0 || p.OwnerID == 0 {
		return nil, ErrInvalidID
	}
	if p.ClientID == 0 {
		return nil, ErrInvalidClient
	}
	if err := ValidateDepositPercent(p.DepositPercent); err != nil {
		return nil, err
	}

	now := p.Now.UTC()
	validity := p.ValidityDays
	if validity <= 0 {
		validity = 30
	}

	quote := &Quote{
		ID:             p.ID,
		OwnerID:        p.OwnerID,
		ClientID:       p.ClientID,
		Number:         QuoteNumber(p.ID, now),
		Title:          strings.TrimSpace(p.Title),
		ClientName:     strings.TrimSpace(p.ClientName),
		ClientEmail:    strings.TrimSpace(p.ClientEmail),
		Currency:       strings.ToUpper(strings.TrimSpace(p.Currency)),
		Status:         StatusDraft,
		DepositPercent: p.DepositPercent,
		DepositStatus:  DepositPending,
		ExpiresAt:      now.AddDate(0, 0, validity),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := quote.ReplaceLines(p.Lines, p.AllowedVATRates, p.LineIDs, now); err != nil {
		return nil, err
	}
	return quote, nil
}

// ReplaceLines validates and installs new lines, then recomputes totals.
// The quote is left untouched on error.
func (q *Quote) ReplaceLines(inputs []LineInput, allowedVATRates []decimal.Decimal, ids func() snowflake.ID, now time.Time) error {
	if !q.Status.Editable() {
		return ErrQuoteNotEditable
	}
	if err := ValidateLines(inputs, allowedVATRates); err != nil {
		return err
	}

	lines := make([]QuoteLine, 0, len(inputs))
	for i, input := range inputs {
		var id snowflake.ID
		if ids != nil {
			id = ids()
		}
		lines = append(lines, QuoteLine{
			ID:          id,
			QuoteID:     q.ID,
			Position:    i + 1,
			Description: strings.TrimSpace(input.Description),
			Quantity:    input.Quantity,
			UnitPriceHT: input.UnitPriceHT,
			VATRate:     input.VATRate,
			CreatedAt:   now,
		})
	}

	q.Lines = lines
	q.recompute()
	q.UpdatedAt = now
	return nil
}

func (q *Quote) SetDepositPercent(percent decimal.Decimal, now time.Time) error {
	if !q.Status.Editable() {
		return ErrQuoteNotEditable
	}
	if err := ValidateDepositPercent(percent); err != nil {
		return err
	}
	q.DepositPercent = percent
	q.recompute()
	q.UpdatedAt = now
	return nil
}

func (q *Quote) Totals() calculator.Totals {
	return calculator.Totals{HT: q.TotalHT, VAT: q.TotalVAT, TTC: q.TotalTTC}
}

func (q *Quote) recompute() {
	totals := calculator.ComputeTotals(CalculatorLines(q.Lines))
	q.TotalHT = totals.HT
	q.TotalVAT = totals.VAT
	q.TotalTTC = totals.TTC
	q.DepositAmount = calculator.ComputeDepositAmount(totals.TTC, q.DepositPercent)
}

func ValidateLines(inputs []LineInput, allowedVATRates []decimal.Decimal) error {
	if len(inputs) == 0 {
		return ErrInvalidLines
	}
	for _, input := range inputs {
		if strings.TrimSpace(input.Description) == "" {
			return ErrInvalidLines
		}
		if !input.Quantity.IsPositive() || !fitsScale(input.Quantity, lineScale) {
			return ErrInvalidQuantity
		}
		if input.UnitPriceHT.IsNegative() || !fitsScale(input.UnitPriceHT, lineScale) {
			return ErrInvalidUnitPrice
		}
		if !vatRateAllowed(input.VATRate, allowedVATRates) {
			return ErrInvalidVATRate
		}
	}
	return nil
}

func ValidateDepositPercent(percent decimal.Decimal) error {
	if percent.IsNegative() || percent.GreaterThan(decimal.NewFromInt(100)) || !fitsScale(percent, percentScale) {
		return ErrInvalidDepositPercent
	}
	return nil
}

// Column scales of quote_lines.quantity/unit_price_ht and quotes.deposit_percent.
// Totals are computed from the inputs, so anything the column would round is refused.
const (
	lineScale    = 4
	percentScale = 2
)

func fitsScale(d decimal.Decimal, places int32) bool {
	return d.Truncate(places).Equal(d)
}

func vatRateAllowed(rate decimal.Decimal, allowed []decimal.Decimal) bool {
	if len(allowed) == 0 {
		allowed = DefaultVATRates()
	}
	for _, candidate := range allowed {
		if candidate.Equal(rate) {
			return true
		}
	}
	return false
}

func DefaultVATRates() []decimal.Decimal {
	return []decimal.Decimal{
		decimal.Zero,
		decimal.RequireFromString("5.5"),
		decimal.NewFromInt(10),
		decimal.NewFromInt(20),
	}
}

// QuoteNumber renders the human reference Q-YYYYMMDD-<base36 id>.
func QuoteNumber(id snowflake.ID, at time.Time) string {
	return fmt.Sprintf("Q-%s-%s", at.UTC().Format("20060102"), strings.ToUpper(id.Base36()))
}
