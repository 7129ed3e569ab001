package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/quoteflow/internal/payment/domain"
	"github.com/smallbiznis/quoteflow/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func record(id snowflake.ID, amount string, ref string) *domain.PaymentRecord {
	return &domain.PaymentRecord{
		ID:                 id,
		QuoteID:            42,
		Type:               domain.PaymentTypeDeposit,
		Amount:             decimal.RequireFromString(amount),
		Currency:           "EUR",
		Status:             domain.PaymentStatusPending,
		Provider:           domain.ProviderStripe,
		ProcessorReference: ref,
		CheckoutURL:        "https://checkout.stripe.test/" + ref,
		IdempotencyKey:     "key_" + ref,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func TestRecordLookups(t *testing.T) {
	ctx := context.Background()
	db := testsupport.OpenDB(t)
	r := Provide()

	require.NoError(t, r.InsertRecord(ctx, db, record(1, "88.50", "cs_1")))
	require.NoError(t, r.InsertRecord(ctx, db, record(2, "90.00", "cs_2")))

	found, err := r.FindRecordByProcessorReference(ctx, db, "cs_2")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, snowflake.ID(2), found.ID)
	assert.True(t, decimal.RequireFromString("90").Equal(found.Amount))

	missing, err := r.FindRecordByProcessorReference(ctx, db, "cs_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	empty, err := r.FindRecordByPaymentRef(ctx, db, "")
	require.NoError(t, err)
	assert.Nil(t, empty)

	pending, err := r.FindPendingDeposit(ctx, db, 42, decimal.RequireFromString("88.5"))
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, snowflake.ID(1), pending.ID)

	latest, err := r.FindLatestDeposit(ctx, db, 42)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, snowflake.ID(2), latest.ID)

	list, err := r.ListRecordsByQuote(ctx, db, 42)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, snowflake.ID(1), list[0].ID)
}

func TestRecordStatusUpdatesAreConditional(t *testing.T) {
	ctx := context.Background()
	db := testsupport.OpenDB(t)
	r := Provide()
	require.NoError(t, r.InsertRecord(ctx, db, record(1, "88.50", "cs_1")))

	ref := "pi_1"
	ok, err := r.MarkRecordSucceeded(ctx, db, 1, &ref, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.MarkRecordSucceeded(ctx, db, 1, nil, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.MarkRecordFailed(ctx, db, 1, "card_declined", now)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := r.FindRecordByPaymentRef(ctx, db, "pi_1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.PaymentStatusSucceeded, stored.Status)
	assert.True(t, now.Equal(*stored.PaidAt))

	pending, err := r.FindPendingDeposit(ctx, db, 42, decimal.RequireFromString("88.50"))
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestInsertEventDeduplicates(t *testing.T) {
	ctx := context.Background()
	db := testsupport.OpenDB(t)
	r := Provide()

	event := &domain.EventRecord{
		ID:              1,
		Provider:        domain.ProviderStripe,
		ProviderEventID: "evt_1",
		EventType:       domain.EventKindCheckoutCompleted,
		Payload:         datatypes.JSON(`{"id":"evt_1"}`),
		ReceivedAt:      now,
	}
	inserted, err := r.InsertEvent(ctx, db, event)
	require.NoError(t, err)
	assert.True(t, inserted)

	event.ID = 2
	inserted, err = r.InsertEvent(ctx, db, event)
	require.NoError(t, err)
	assert.False(t, inserted)

	require.NoError(t, r.MarkEventFailed(ctx, db, 1, "boom"))
	stored, err := r.FindEvent(ctx, db, domain.ProviderStripe, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Nil(t, stored.ProcessedAt)
	assert.Equal(t, "boom", *stored.ProcessingError)

	require.NoError(t, r.MarkEventProcessed(ctx, db, 1, now, nil))
	stored, err = r.FindEvent(ctx, db, domain.ProviderStripe, "evt_1")
	require.NoError(t, err)
	assert.NotNil(t, stored.ProcessedAt)
	assert.Nil(t, stored.ProcessingError)
	assert.Equal(t, int64(1), testsupport.Count(t, db, "payment_events", ""))
}

func TestReusable(t *testing.T) {
	expires := now.Add(time.Hour)
	rec := record(1, "88.50", "cs_1")
	rec.ExpiresAt = &expires

	assert.True(t, rec.Reusable(decimal.RequireFromString("88.5"), now))
	assert.False(t, rec.Reusable(decimal.RequireFromString("90"), now))
	assert.False(t, rec.Reusable(decimal.RequireFromString("88.50"), expires))

	rec.Status = domain.PaymentStatusFailed
	assert.False(t, rec.Reusable(decimal.RequireFromString("88.50"), now))
}

func TestExpirePendingRecords(t *testing.T) {
	ctx := context.Background()
	db := testsupport.OpenDB(t)
	r := Provide()

	expired := record(1, "88.50", "cs_1")
	past := now.Add(-time.Minute)
	expired.ExpiresAt = &past

	live := record(2, "88.50", "cs_2")
	future := now.Add(time.Hour)
	live.ExpiresAt = &future

	paid := record(3, "88.50", "cs_3")
	paid.ExpiresAt = &past
	paid.Status = domain.PaymentStatusSucceeded

	noExpiry := record(4, "88.50", "cs_4")

	for _, rec := range []*domain.PaymentRecord{expired, live, paid, noExpiry} {
		require.NoError(t, r.InsertRecord(ctx, db, rec))
	}

	n, err := r.ExpirePendingRecords(ctx, db, now, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stored, err := r.FindRecordByProcessorReference(ctx, db, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, domain.FailureReasonSessionExpired, *stored.FailureReason)

	for id, want := range map[snowflake.ID]domain.PaymentStatus{
		2: domain.PaymentStatusPending,
		3: domain.PaymentStatusSucceeded,
		4: domain.PaymentStatusPending,
	} {
		stored, err := r.FindRecordByProcessorReference(ctx, db, "cs_"+id.String())
		require.NoError(t, err)
		assert.Equal(t, want, stored.Status, "record %d", id)
	}

	n, err = r.ExpirePendingRecords(ctx, db, now, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListOpenEvents(t *testing.T) {
	ctx := context.Background()
	db := testsupport.OpenDB(t)
	r := Provide()

	insert := func(id snowflake.ID, eventID string, receivedAt time.Time) {
		_, err := r.InsertEvent(ctx, db, &domain.EventRecord{
			ID:              id,
			Provider:        domain.ProviderStripe,
			ProviderEventID: eventID,
			EventType:       domain.EventKindCheckoutCompleted,
			Payload:         datatypes.JSON(`{}`),
			ReceivedAt:      receivedAt,
		})
		require.NoError(t, err)
	}
	insert(1, "evt_old", now.Add(-48*time.Hour))
	insert(2, "evt_open", now.Add(-time.Hour))
	insert(3, "evt_done", now.Add(-time.Hour))
	insert(4, "evt_fresh", now.Add(-time.Second))
	require.NoError(t, r.MarkEventProcessed(ctx, db, 3, now, nil))

	events, err := r.ListOpenEvents(ctx, db, now.Add(-24*time.Hour), now.Add(-5*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt_open", events[0].ProviderEventID)
}
