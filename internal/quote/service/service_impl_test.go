package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/quoteflow/internal/clock"
	"github.com/smallbiznis/quoteflow/internal/config"
	"github.com/smallbiznis/quoteflow/internal/ownercontext"
	"github.com/smallbiznis/quoteflow/internal/providers/email"
	"github.com/smallbiznis/quoteflow/internal/quote/domain"
	"github.com/smallbiznis/quoteflow/internal/quote/repository"
	"github.com/smallbiznis/quoteflow/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockEmail struct {
	mock.Mock
}

func (m *mockEmail) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return m.Called(to, subject).Error(0)
}

func (m *mockEmail) SendTemplate(ctx context.Context, to []string, templateName string, data email.TemplateData) error {
	return m.Called(to, templateName).Error(0)
}

type fixture struct {
	svc   domain.Service
	db    *gorm.DB
	clock *clock.FakeClock
	email *mockEmail
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testsupport.OpenDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	mailer := &mockEmail{}

	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   repository.Provide(),
		Clock:  fake,
		Cfg:    config.Config{Currency: "EUR"},
		Policy: config.NewStaticPolicyHolder(config.DefaultQuotePolicy()),
		Email:  mailer,
	})
	return fixture{svc: svc, db: db, clock: fake, email: mailer}
}

func ownerCtx(id snowflake.ID) context.Context {
	return ownercontext.WithOwnerID(context.Background(), id)
}

func createRequest() domain.CreateQuoteRequest {
	return domain.CreateQuoteRequest{
		ClientID:    "900",
		ClientName:  "Ada",
		ClientEmail: "ada@example.com",
		Title:       "Kitchen",
		Lines: []domain.LineInput{
			{Description: "Install", Quantity: decimal.NewFromInt(2), UnitPriceHT: decimal.NewFromInt(100), VATRate: decimal.NewFromInt(20)},
			{Description: "Parts", Quantity: decimal.NewFromInt(1), UnitPriceHT: decimal.NewFromInt(50), VATRate: decimal.NewFromInt(10)},
		},
	}
}

func TestCreateUsesPolicyDefaults(t *testing.T) {
	f := newFixture(t)
	quote, err := f.svc.Create(ownerCtx(7), createRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusDraft, quote.Status)
	assert.Equal(t, "295.00", quote.TotalTTC.StringFixed(2))
	assert.Equal(t, "88.50", quote.DepositAmount.StringFixed(2))
	assert.Equal(t, "EUR", quote.Currency)
	assert.Equal(t, int64(2), testsupport.Count(t, f.db, "quote_lines", "quote_id = ?", quote.ID))
}

func TestCreateRequiresOwner(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), createRequest())
	assert.ErrorIs(t, err, domain.ErrInvalidOwner)
}

func TestCreateRejectsUnknownVATRate(t *testing.T) {
	f := newFixture(t)
	req := createRequest()
	req.Lines[0].VATRate = decimal.NewFromInt(19)
	_, err := f.svc.Create(ownerCtx(7), req)
	assert.ErrorIs(t, err, domain.ErrInvalidVATRate)
	assert.Equal(t, int64(0), testsupport.Count(t, f.db, "quotes", ""))
}

func TestGetIsOwnerScoped(t *testing.T) {
	f := newFixture(t)
	quote, err := f.svc.Create(ownerCtx(7), createRequest())
	require.NoError(t, err)

	view, err := f.svc.Get(ownerCtx(7), quote.ID.String())
	require.NoError(t, err)
	require.Len(t, view.LineTotals, 2)
	assert.Equal(t, "240.00", view.LineTotals[0].TTC.StringFixed(2))
	require.Len(t, view.VATBreakdown, 2)

	_, err = f.svc.Get(ownerCtx(8), quote.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateLinesOnlyInDraft(t *testing.T) {
	f := newFixture(t)
	ctx := ownerCtx(7)
	quote, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)

	updated, err := f.svc.UpdateLines(ctx, domain.UpdateLinesRequest{
		ID: quote.ID.String(),
		Lines: []domain.LineInput{
			{Description: "Audit", Quantity: decimal.NewFromInt(1), UnitPriceHT: decimal.NewFromInt(1000), VATRate: decimal.NewFromInt(20)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "1200.00", updated.TotalTTC.StringFixed(2))
	assert.Equal(t, "360.00", updated.DepositAmount.StringFixed(2))

	f.email.On("SendTemplate", []string{"ada@example.com"}, email.TemplateQuoteSent).Return(nil).Once()
	_, err = f.svc.Send(ctx, quote.ID.String())
	require.NoError(t, err)

	_, err = f.svc.UpdateLines(ctx, domain.UpdateLinesRequest{ID: quote.ID.String(), Lines: createRequest().Lines})
	assert.ErrorIs(t, err, domain.ErrQuoteNotEditable)

	view, err := f.svc.Get(ctx, quote.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "1200.00", view.TotalTTC.StringFixed(2))
}

func TestSendNotifiesClientAndToleratesMailFailure(t *testing.T) {
	f := newFixture(t)
	ctx := ownerCtx(7)
	quote, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)

	f.email.On("SendTemplate", []string{"ada@example.com"}, email.TemplateQuoteSent).Return(errors.New("smtp down")).Once()
	sent, err := f.svc.Send(ctx, quote.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)
	f.email.AssertExpectations(t)

	_, err = f.svc.Send(ctx, quote.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCompleteRequiresDepositPaid(t *testing.T) {
	f := newFixture(t)
	ctx := ownerCtx(7)
	quote, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, quote.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, f.db.Exec(`UPDATE quotes SET status = 'deposit_paid', deposit_status = 'paid' WHERE id = ?`, quote.ID).Error)
	completed, err := f.svc.Complete(ctx, quote.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)

	_, err = f.svc.Cancel(ctx, quote.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancelIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := ownerCtx(7)
	quote, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)

	canceled, err := f.svc.Cancel(ctx, quote.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, canceled.Status)

	again, err := f.svc.Cancel(ctx, quote.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, again.Status)
}

func TestListFiltersAndPages(t *testing.T) {
	f := newFixture(t)
	ctx := ownerCtx(7)
	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, createRequest())
		require.NoError(t, err)
	}
	_, err := f.svc.Create(ownerCtx(8), createRequest())
	require.NoError(t, err)

	page, err := f.svc.List(ctx, domain.ListQuoteRequest{PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page.Quotes, 2)
	assert.True(t, page.HasMore)

	next, err := f.svc.List(ctx, domain.ListQuoteRequest{PageSize: 2, PageToken: page.NextPageToken})
	require.NoError(t, err)
	assert.Len(t, next.Quotes, 1)
	assert.False(t, next.HasMore)

	_, err = f.svc.List(ctx, domain.ListQuoteRequest{Status: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestUpdateDepositPercent(t *testing.T) {
	f := newFixture(t)
	ctx := ownerCtx(7)
	quote, err := f.svc.Create(ctx, createRequest())
	require.NoError(t, err)

	updated, err := f.svc.UpdateDepositPercent(ctx, domain.UpdateDepositPercentRequest{
		ID:             quote.ID.String(),
		DepositPercent: decimal.NewFromInt(40),
	})
	require.NoError(t, err)
	assert.Equal(t, "118.00", updated.DepositAmount.StringFixed(2))

	_, err = f.svc.UpdateDepositPercent(ctx, domain.UpdateDepositPercentRequest{
		ID:             quote.ID.String(),
		DepositPercent: decimal.NewFromInt(-1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDepositPercent)
}
