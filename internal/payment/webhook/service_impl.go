package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quoteflow/internal/clock"
	obsmetrics "github.com/smallbiznis/quoteflow/internal/observability/metrics"
	"github.com/smallbiznis/quoteflow/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/quoteflow/internal/payment/domain"
	quotedomain "github.com/smallbiznis/quoteflow/internal/quote/domain"
	pkgdb "github.com/smallbiznis/quoteflow/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	noteRecordNotFound = "payment_record_not_found"
	noteQuoteNotFound  = "needs_review: quote_not_found"
	noteQuoteCanceled  = "needs_review: payment received for canceled quote, refund required"
	noteDoublePayment  = "needs_review: deposit already settled, possible double payment"
)

const settleAttempts = 3

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Repo             paymentdomain.Repository
	QuoteRepo        quotedomain.Repository
	Adapters         *adapters.Registry
	ReconcileMetrics *obsmetrics.ReconcileMetrics `optional:"true"`
	ObsMetrics       *obsmetrics.Metrics          `optional:"true"`
}

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	genID            *snowflake.Node
	clock            clock.Clock
	repo             paymentdomain.Repository
	quoteRepo        quotedomain.Repository
	adapters         *adapters.Registry
	reconcileMetrics *obsmetrics.ReconcileMetrics
	obsMetrics       *obsmetrics.Metrics
}

// outcome of applying one event. note is persisted on the event row for
// anything an operator should look at.
type outcome struct {
	label   string
	note    string
	settled bool
	quoteID snowflake.ID
}

type recordLookup struct {
	sessionID  string
	paymentRef string
	quoteID    *snowflake.ID
	// unbound limits the quote fallback to a pending record no processor
	// payment was attached to yet.
	unbound bool
}

func NewService(p Params) paymentdomain.Reconciler {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("payment.webhook"),
		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		quoteRepo:        p.QuoteRepo,
		adapters:         p.Adapters,
		reconcileMetrics: p.ReconcileMetrics,
		obsMetrics:       p.ObsMetrics,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if !s.adapters.Supports(provider) {
		return paymentdomain.ErrProviderNotFound
	}

	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		// Without a secret nothing can be verified, so nothing is trusted.
		s.log.Error("payment webhook adapter unavailable", zap.String("provider", provider), zap.Error(err))
		s.reconcileMetrics.IncEvent(provider, "unverified", obsmetrics.ReconcileOutcomeRejected)
		return paymentdomain.ErrInvalidSignature
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("payment webhook signature rejected", zap.String("provider", provider))
		s.reconcileMetrics.IncEvent(provider, "unverified", obsmetrics.ReconcileOutcomeRejected)
		return paymentdomain.ErrInvalidSignature
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		s.log.Error("verified payment webhook could not be parsed",
			zap.String("provider", provider),
			zap.Int("payload_bytes", len(payload)),
			zap.Error(err),
		)
		s.reconcileMetrics.IncProcessingError(provider, "unparsed")
		return nil
	}

	// Reconcile logs and records its own failures; the delivery is acknowledged.
	_ = s.Reconcile(ctx, event)
	return nil
}

func (s *Service) Replay(ctx context.Context, record paymentdomain.EventRecord) error {
	if record.ProcessedAt != nil {
		return nil
	}
	adapter, err := s.adapters.Adapter(record.Provider)
	if err != nil {
		return err
	}
	event, err := adapter.Parse(ctx, record.Payload)
	if err != nil {
		return err
	}
	return s.Reconcile(ctx, event)
}

func (s *Service) Reconcile(ctx context.Context, event paymentdomain.Event) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	meta := event.Meta()
	if meta.Provider == "" || strings.TrimSpace(meta.ProviderEventID) == "" {
		return paymentdomain.ErrInvalidEvent
	}
	log := s.log.With(
		zap.String("provider", meta.Provider),
		zap.String("provider_event_id", meta.ProviderEventID),
		zap.String("event_type", event.Kind()),
	)

	record := &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        meta.Provider,
		ProviderEventID: meta.ProviderEventID,
		EventType:       event.Kind(),
		Payload:         eventPayload(event),
		ReceivedAt:      s.clock.Now(),
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		log.Error("failed to record payment event", zap.Error(err))
		s.reconcileMetrics.IncProcessingError(meta.Provider, event.Kind())
		return fmt.Errorf("record payment event: %w", err)
	}
	if !inserted {
		existing, err := s.repo.FindEvent(ctx, s.db, meta.Provider, meta.ProviderEventID)
		if err != nil {
			log.Error("failed to load payment event", zap.Error(err))
			s.reconcileMetrics.IncProcessingError(meta.Provider, event.Kind())
			return fmt.Errorf("load payment event: %w", err)
		}
		if existing != nil && existing.ProcessedAt != nil {
			log.Debug("payment event already processed")
			s.reconcileMetrics.IncEvent(meta.Provider, event.Kind(), obsmetrics.ReconcileOutcomeDuplicate)
			return nil
		}
		if existing != nil {
			record = existing
		}
	}

	result, applyErr := s.apply(ctx, event)
	if applyErr != nil {
		log.Error("payment event processing failed", zap.Error(applyErr))
		s.reconcileMetrics.IncEvent(meta.Provider, event.Kind(), obsmetrics.ReconcileOutcomeFailed)
		s.reconcileMetrics.IncProcessingError(meta.Provider, event.Kind())
		if err := s.repo.MarkEventFailed(ctx, s.db, record.ID, applyErr.Error()); err != nil {
			log.Error("failed to store processing error", zap.Error(err))
		}
		return applyErr
	}

	var note *string
	if result.note != "" {
		note = &result.note
		log.Warn("payment event flagged", zap.String("note", result.note), zap.String("quote_id", result.quoteID.String()))
	}
	if err := s.repo.MarkEventProcessed(ctx, s.db, record.ID, s.clock.Now(), note); err != nil {
		log.Error("failed to mark payment event processed", zap.Error(err))
	}

	if result.settled {
		s.obsMetrics.RecordDepositSettled(ctx, "processor")
		s.obsMetrics.RecordQuoteTransition(ctx, string(quotedomain.StatusSigned), string(quotedomain.StatusDepositPaid))
		log.Info("deposit settled by processor", zap.String("quote_id", result.quoteID.String()))
	}
	s.reconcileMetrics.IncEvent(meta.Provider, event.Kind(), result.label)
	return nil
}

func (s *Service) apply(ctx context.Context, event paymentdomain.Event) (outcome, error) {
	switch e := event.(type) {
	case paymentdomain.CheckoutCompleted:
		return s.applySucceeded(ctx, recordLookup{
			sessionID:  e.SessionID,
			paymentRef: e.PaymentIntentID,
			quoteID:    e.QuoteID,
		})
	case paymentdomain.PaymentSucceeded:
		return s.applySucceeded(ctx, recordLookup{
			paymentRef: e.PaymentIntentID,
			quoteID:    e.QuoteID,
		})
	case paymentdomain.PaymentFailed:
		return s.applyFailed(ctx, recordLookup{
			paymentRef: e.PaymentIntentID,
			quoteID:    e.QuoteID,
			unbound:    true,
		}, e.Reason)
	case paymentdomain.Unhandled:
		return outcome{label: obsmetrics.ReconcileOutcomeIgnored}, nil
	default:
		return outcome{}, paymentdomain.ErrInvalidEvent
	}
}

// applySucceeded reruns the settlement when the transaction loses a
// serialization race against a concurrent delivery.
func (s *Service) applySucceeded(ctx context.Context, lookup recordLookup) (outcome, error) {
	var err error
	for attempt := 1; attempt <= settleAttempts; attempt++ {
		var result outcome
		result, err = s.settle(ctx, lookup)
		if err == nil || !pkgdb.IsRetryableErr(err) {
			return result, err
		}
		if ctx.Err() != nil {
			return outcome{}, err
		}
		s.log.Warn("deposit settlement conflicted",
			zap.Int("attempt", attempt),
			zap.String("session_id", lookup.sessionID),
			zap.Error(err),
		)
	}
	return outcome{}, err
}

func (s *Service) settle(ctx context.Context, lookup recordLookup) (outcome, error) {
	var result outcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.findRecord(ctx, tx, lookup)
		if err != nil {
			return err
		}
		if record == nil {
			result = outcome{label: obsmetrics.ReconcileOutcomeUnmatched, note: noteRecordNotFound}
			return nil
		}
		result.quoteID = record.QuoteID

		now := s.clock.Now()
		if record.Status == paymentdomain.PaymentStatusSucceeded {
			if lookup.paymentRef != "" && record.ProcessorPaymentRef == nil {
				if err := s.repo.AttachPaymentRef(ctx, tx, record.ID, lookup.paymentRef, now); err != nil {
					return err
				}
			}
			result.label = obsmetrics.ReconcileOutcomeDuplicate
			return nil
		}

		var paymentRef *string
		if lookup.paymentRef != "" {
			paymentRef = &lookup.paymentRef
		}
		updated, err := s.repo.MarkRecordSucceeded(ctx, tx, record.ID, paymentRef, now)
		if err != nil {
			return err
		}
		if !updated {
			result.label = obsmetrics.ReconcileOutcomeDuplicate
			return nil
		}
		if record.Type != paymentdomain.PaymentTypeDeposit {
			result.label = obsmetrics.ReconcileOutcomeApplied
			return nil
		}

		settled, err := s.quoteRepo.MarkDepositPaid(ctx, tx, quotedomain.MarkDepositPaidParams{
			QuoteID:         record.QuoteID,
			PaidAt:          now,
			AllowedStatuses: []quotedomain.QuoteStatus{quotedomain.StatusSigned},
		})
		if err != nil {
			return err
		}
		if settled {
			result.label = obsmetrics.ReconcileOutcomeApplied
			result.settled = true
			return nil
		}

		// The payment stays recorded; the quote needs a human decision.
		quote, err := s.quoteRepo.FindByIDUnscoped(ctx, tx, record.QuoteID)
		if err != nil {
			return err
		}
		result.label = obsmetrics.ReconcileOutcomeNeedsReview
		switch {
		case quote == nil:
			result.note = noteQuoteNotFound
		case quote.Status == quotedomain.StatusCanceled:
			result.note = noteQuoteCanceled
		case quote.DepositStatus == quotedomain.DepositPaid:
			result.note = noteDoublePayment
		default:
			result.note = fmt.Sprintf("needs_review: quote in status %s", quote.Status)
		}
		return nil
	})
	if err != nil {
		return outcome{}, err
	}
	return result, nil
}

func (s *Service) applyFailed(ctx context.Context, lookup recordLookup, reason string) (outcome, error) {
	record, err := s.findRecord(ctx, s.db, lookup)
	if err != nil {
		return outcome{}, err
	}
	if record == nil {
		return outcome{label: obsmetrics.ReconcileOutcomeUnmatched, note: noteRecordNotFound}, nil
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "payment_failed"
	}
	updated, err := s.repo.MarkRecordFailed(ctx, s.db, record.ID, reason, s.clock.Now())
	if err != nil {
		return outcome{}, err
	}
	if !updated {
		return outcome{label: obsmetrics.ReconcileOutcomeDuplicate, quoteID: record.QuoteID}, nil
	}
	return outcome{label: obsmetrics.ReconcileOutcomeApplied, quoteID: record.QuoteID}, nil
}

// findRecord tries the checkout session, then the processor payment, then
// the latest deposit of the quote named in the session metadata.
func (s *Service) findRecord(ctx context.Context, db *gorm.DB, lookup recordLookup) (*paymentdomain.PaymentRecord, error) {
	record, err := s.repo.FindRecordByProcessorReference(ctx, db, lookup.sessionID)
	if err != nil || record != nil {
		return record, err
	}
	record, err = s.repo.FindRecordByPaymentRef(ctx, db, lookup.paymentRef)
	if err != nil || record != nil {
		return record, err
	}
	if lookup.quoteID == nil {
		return nil, nil
	}
	record, err = s.repo.FindLatestDeposit(ctx, db, *lookup.quoteID)
	if err != nil {
		return nil, err
	}
	if record != nil && lookup.unbound &&
		(record.Status != paymentdomain.PaymentStatusPending || record.ProcessorPaymentRef != nil) {
		return nil, nil
	}
	return record, nil
}

func eventPayload(event paymentdomain.Event) datatypes.JSON {
	if raw := event.Meta().RawPayload; len(raw) > 0 && json.Valid(raw) {
		return datatypes.JSON(raw)
	}
	synthetic, err := json.Marshal(map[string]string{
		"kind":              event.Kind(),
		"provider_event_id": event.Meta().ProviderEventID,
	})
	if err != nil {
		return datatypes.JSON(`{}`)
	}
	return datatypes.JSON(synthetic)
}
