package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lineInput(desc, qty, price, rate string) LineInput {
	return LineInput{
		Description: desc,
		Quantity:    decimal.RequireFromString(qty),
		UnitPriceHT: decimal.RequireFromString(price),
		VATRate:     decimal.RequireFromString(rate),
	}
}

func newParams() NewQuoteParams {
	next := snowflake.ID(1000)
	return NewQuoteParams{
		ID:       42,
		OwnerID:  7,
		ClientID: 9,
		Currency: "eur",
		Lines: []LineInput{
			lineInput("Install", "2", "100", "20"),
			lineInput("Parts", "1", "50", "10"),
		},
		LineIDs: func() snowflake.ID {
			next++
			return next
		},
		DepositPercent: decimal.NewFromInt(30),
		ValidityDays:   30,
		Now:            time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestNewQuoteComputesTotalsFromLines(t *testing.T) {
	quote, err := NewQuote(newParams())
	require.NoError(t, err)

	assert.Equal(t, StatusDraft, quote.Status)
	assert.Equal(t, DepositPending, quote.DepositStatus)
	assert.Equal(t, "EUR", quote.Currency)
	assert.Equal(t, "250.00", quote.TotalHT.StringFixed(2))
	assert.Equal(t, "45.00", quote.TotalVAT.StringFixed(2))
	assert.Equal(t, "295.00", quote.TotalTTC.StringFixed(2))
	assert.Equal(t, "88.50", quote.DepositAmount.StringFixed(2))
	assert.Equal(t, time.Date(2026, 3, 31, 9, 0, 0, 0, time.UTC), quote.ExpiresAt)
	require.Len(t, quote.Lines, 2)
	assert.Equal(t, 1, quote.Lines[0].Position)
	assert.Equal(t, snowflake.ID(1001), quote.Lines[0].ID)
	assert.Equal(t, "Q-20260301-16", quote.Number)
}

func TestNewQuoteRejectsInvalidLines(t *testing.T) {
	cases := []struct {
		name  string
		lines []LineInput
		want  error
	}{
		{name: "empty", lines: nil, want: ErrInvalidLines},
		{name: "blank description", lines: []LineInput{lineInput(" ", "1", "1", "20")}, want: ErrInvalidLines},
		{name: "zero quantity", lines: []LineInput{lineInput("a", "0", "1", "20")}, want: ErrInvalidQuantity},
		{name: "negative price", lines: []LineInput{lineInput("a", "1", "-1", "20")}, want: ErrInvalidUnitPrice},
		{name: "unknown vat", lines: []LineInput{lineInput("a", "1", "1", "7")}, want: ErrInvalidVATRate},
		{name: "quantity beyond 4 places", lines: []LineInput{lineInput("a", "1.23456", "1", "20")}, want: ErrInvalidQuantity},
		{name: "price beyond 4 places", lines: []LineInput{lineInput("a", "1", "10.00001", "20")}, want: ErrInvalidUnitPrice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := newParams()
			params.Lines = tc.lines
			_, err := NewQuote(params)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestReplaceLinesRequiresDraft(t *testing.T) {
	quote, err := NewQuote(newParams())
	require.NoError(t, err)
	quote.Status = StatusSigned
	before := quote.TotalTTC

	err = quote.ReplaceLines([]LineInput{lineInput("x", "1", "1", "0")}, nil, nil, time.Now())
	assert.ErrorIs(t, err, ErrQuoteNotEditable)
	assert.True(t, before.Equal(quote.TotalTTC))
}

func TestSetDepositPercentRecomputesAmount(t *testing.T) {
	quote, err := NewQuote(newParams())
	require.NoError(t, err)

	require.NoError(t, quote.SetDepositPercent(decimal.NewFromInt(50), time.Now()))
	assert.Equal(t, "147.50", quote.DepositAmount.StringFixed(2))

	assert.ErrorIs(t, quote.SetDepositPercent(decimal.NewFromInt(101), time.Now()), ErrInvalidDepositPercent)
	assert.Equal(t, "147.50", quote.DepositAmount.StringFixed(2))
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from QuoteStatus
		to   QuoteStatus
		want bool
	}{
		{StatusDraft, StatusSent, true},
		{StatusDraft, StatusSigned, true},
		{StatusSent, StatusSigned, true},
		{StatusSigned, StatusSigned, false},
		{StatusSigned, StatusDepositPaid, true},
		{StatusDepositPaid, StatusCompleted, true},
		{StatusSigned, StatusCompleted, false},
		{StatusCompleted, StatusCanceled, false},
		{StatusCanceled, StatusDraft, false},
		{StatusDepositPaid, StatusCanceled, true},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStateErrorsWrap(t *testing.T) {
	assert.True(t, errors.Is(ErrQuoteExpired, ErrSignatureRejected))
	assert.True(t, errors.Is(ErrSignatureRejected, ErrInvalidTransition))
}

func TestDepositMethodValid(t *testing.T) {
	assert.True(t, DepositMethodCheck.Valid())
	assert.False(t, DepositMethod("card").Valid())
}

func TestScaleLimitsMatchColumns(t *testing.T) {
	params := newParams()
	params.Lines = []LineInput{lineInput("a", "1.2345", "19.9900", "20")}
	params.DepositPercent = decimal.RequireFromString("33.30")
	quote, err := NewQuote(params)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("33.3").Equal(quote.DepositPercent))

	assert.ErrorIs(t, ValidateDepositPercent(decimal.RequireFromString("33.333")), ErrInvalidDepositPercent)
	assert.ErrorIs(t, quote.SetDepositPercent(decimal.RequireFromString("12.345"), time.Now()), ErrInvalidDepositPercent)
	assert.NoError(t, ValidateDepositPercent(decimal.RequireFromString("12.50")))
}
