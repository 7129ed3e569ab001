package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/quoteflow/internal/quote/domain"
	"github.com/smallbiznis/quoteflow/internal/testsupport"
	"github.com/smallbiznis/quoteflow/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func buildQuote(t *testing.T, id, ownerID snowflake.ID) *domain.Quote {
	t.Helper()
	next := id * 100
	quote, err := domain.NewQuote(domain.NewQuoteParams{
		ID:       id,
		OwnerID:  ownerID,
		ClientID: 9,
		Currency: "EUR",
		Lines: []domain.LineInput{
			{Description: "Install", Quantity: decimal.NewFromInt(2), UnitPriceHT: decimal.NewFromInt(100), VATRate: decimal.NewFromInt(20)},
			{Description: "Parts", Quantity: decimal.NewFromInt(1), UnitPriceHT: decimal.NewFromInt(50), VATRate: decimal.NewFromInt(10)},
		},
		LineIDs: func() snowflake.ID {
			next++
			return next
		},
		DepositPercent: decimal.NewFromInt(30),
		Now:            testNow,
	})
	require.NoError(t, err)
	return quote
}

func TestInsertAndFindRoundTripsMoney(t *testing.T) {
	db := testsupport.OpenDB(t)
	r := Provide()
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, db, buildQuote(t, 1, 7)))

	got, err := r.FindByID(ctx, db, 7, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "295.00", got.TotalTTC.StringFixed(2))
	assert.Equal(t, "88.50", got.DepositAmount.StringFixed(2))
	assert.Equal(t, domain.StatusDraft, got.Status)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, "Install", got.Lines[0].Description)
	assert.Nil(t, got.DepositMethod)

	other, err := r.FindByID(ctx, db, 8, 1)
	require.NoError(t, err)
	assert.Nil(t, other, "quote must be invisible to other owners")
}

func TestUpdateStatusIsConditional(t *testing.T) {
	db := testsupport.OpenDB(t)
	r := Provide()
	ctx := context.Background()
	require.NoError(t, r.Insert(ctx, db, buildQuote(t, 1, 7)))

	ok, err := r.UpdateStatus(ctx, db, 1, domain.StatusDraft, domain.StatusSent, testNow)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.UpdateStatus(ctx, db, 1, domain.StatusDraft, domain.StatusSent, testNow)
	require.NoError(t, err)
	assert.False(t, ok, "second update must observe stale status")

	got, err := r.FindByID(ctx, db, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, got.Status)
	require.NotNil(t, got.SentAt)
}

func TestMarkDepositPaidAdvancesSignedQuote(t *testing.T) {
	db := testsupport.OpenDB(t)
	r := Provide()
	ctx := context.Background()
	require.NoError(t, r.Insert(ctx, db, buildQuote(t, 1, 7)))

	ok, err := r.MarkSigned(ctx, db, 1, domain.StatusDraft, "sig_1", testNow)
	require.NoError(t, err)
	require.True(t, ok)

	method := domain.DepositMethodCash
	ok, err = r.MarkDepositPaid(ctx, db, domain.MarkDepositPaidParams{
		QuoteID:         1,
		Method:          &method,
		PaidAt:          testNow,
		AllowedStatuses: domain.NonTerminalStatuses,
	})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := r.FindByID(ctx, db, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDepositPaid, got.Status)
	assert.Equal(t, domain.DepositPaid, got.DepositStatus)
	require.NotNil(t, got.DepositMethod)
	assert.Equal(t, domain.DepositMethodCash, *got.DepositMethod)

	ok, err = r.MarkDepositPaid(ctx, db, domain.MarkDepositPaidParams{
		QuoteID:         1,
		PaidAt:          testNow.Add(time.Hour),
		AllowedStatuses: domain.NonTerminalStatuses,
	})
	require.NoError(t, err)
	assert.False(t, ok, "already paid deposit must not be overwritten")
}

func TestMarkDepositPaidKeepsDraftStatus(t *testing.T) {
	db := testsupport.OpenDB(t)
	r := Provide()
	ctx := context.Background()
	require.NoError(t, r.Insert(ctx, db, buildQuote(t, 1, 7)))

	ok, err := r.MarkDepositPaid(ctx, db, domain.MarkDepositPaidParams{
		QuoteID:         1,
		PaidAt:          testNow,
		AllowedStatuses: domain.NonTerminalStatuses,
	})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := r.FindByID(ctx, db, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, got.Status)
	assert.Equal(t, domain.DepositPaid, got.DepositStatus)
}

func TestListPagesByIDDescending(t *testing.T) {
	db := testsupport.OpenDB(t)
	r := Provide()
	ctx := context.Background()
	for id := snowflake.ID(1); id <= 3; id++ {
		require.NoError(t, r.Insert(ctx, db, buildQuote(t, id, 7)))
	}
	require.NoError(t, r.Insert(ctx, db, buildQuote(t, 4, 8)))

	items, err := r.List(ctx, db, 7, domain.ListQuoteFilter{}, pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, items, 3, "repository returns one extra row")
	assert.Equal(t, snowflake.ID(3), items[0].ID)
	assert.Len(t, items[0].Lines, 2)

	token, err := pagination.EncodeCursor(pagination.Cursor{ID: "2"})
	require.NoError(t, err)
	items, err = r.List(ctx, db, 7, domain.ListQuoteFilter{}, pagination.Pagination{PageSize: 2, PageToken: token})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, snowflake.ID(1), items[0].ID)
}

func TestReplaceLinesAndUpdateDraft(t *testing.T) {
	db := testsupport.OpenDB(t)
	r := Provide()
	ctx := context.Background()
	quote := buildQuote(t, 1, 7)
	require.NoError(t, r.Insert(ctx, db, quote))

	require.NoError(t, quote.ReplaceLines([]domain.LineInput{
		{Description: "Audit", Quantity: decimal.NewFromInt(1), UnitPriceHT: decimal.NewFromInt(1000), VATRate: decimal.NewFromInt(20)},
	}, nil, func() snowflake.ID { return 555 }, testNow))

	ok, err := r.UpdateDraft(ctx, db, quote)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, r.ReplaceLines(ctx, db, quote.ID, quote.Lines))

	got, err := r.FindByID(ctx, db, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, "1200.00", got.TotalTTC.StringFixed(2))
	assert.Equal(t, "360.00", got.DepositAmount.StringFixed(2))
	require.Len(t, got.Lines, 1)
	assert.Equal(t, int64(1), testsupport.Count(t, db, "quote_lines", "quote_id = ?", 1))
}
