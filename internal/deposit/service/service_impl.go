package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quoteflow/internal/clock"
	"github.com/smallbiznis/quoteflow/internal/config"
	"github.com/smallbiznis/quoteflow/internal/deposit/domain"
	obsmetrics "github.com/smallbiznis/quoteflow/internal/observability/metrics"
	"github.com/smallbiznis/quoteflow/internal/ownercontext"
	paymentdomain "github.com/smallbiznis/quoteflow/internal/payment/domain"
	"github.com/smallbiznis/quoteflow/internal/quote/calculator"
	quotedomain "github.com/smallbiznis/quoteflow/internal/quote/domain"
	quoteservice "github.com/smallbiznis/quoteflow/internal/quote/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Policy      *config.PolicyHolder
	QuoteRepo   quotedomain.Repository
	PaymentRepo paymentdomain.Repository
	Gateway     paymentdomain.Gateway
	Guard       domain.CheckoutGuard `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics  `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	policy      *config.PolicyHolder
	quoteRepo   quotedomain.Repository
	paymentRepo paymentdomain.Repository
	gateway     paymentdomain.Gateway
	guard       domain.CheckoutGuard
	obsMetrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("deposit.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		policy:      p.Policy,
		quoteRepo:   p.QuoteRepo,
		paymentRepo: p.PaymentRepo,
		gateway:     p.Gateway,
		guard:       p.Guard,
		obsMetrics:  p.ObsMetrics,
	}
}

// MarkDepositPaid records a deposit the owner collected outside the processor.
func (s *Service) MarkDepositPaid(ctx context.Context, req domain.MarkDepositPaidRequest) (quotedomain.Quote, error) {
	method := quotedomain.DepositMethod(strings.ToLower(strings.TrimSpace(req.Method)))
	if !method.Valid() {
		return quotedomain.Quote{}, quotedomain.ErrInvalidDepositMethod
	}
	quote, err := s.load(ctx, req.QuoteID)
	if err != nil {
		return quotedomain.Quote{}, err
	}
	if quote.DepositStatus == quotedomain.DepositPaid {
		return quotedomain.Quote{}, quotedomain.ErrAlreadySettled
	}
	if quote.Status.Terminal() {
		return quotedomain.Quote{}, quotedomain.ErrInvalidTransition
	}

	allowed := quotedomain.NonTerminalStatuses
	if s.policy.Get().ManualDepositRequiresSignature {
		if quote.Status != quotedomain.StatusSigned {
			return quotedomain.Quote{}, quotedomain.ErrQuoteNotSigned
		}
		allowed = []quotedomain.QuoteStatus{quotedomain.StatusSigned}
	}

	now := s.clock.Now()
	settled, err := s.quoteRepo.MarkDepositPaid(ctx, s.db, quotedomain.MarkDepositPaidParams{
		QuoteID:         quote.ID,
		Method:          &method,
		PaidAt:          now,
		AllowedStatuses: allowed,
	})
	if err != nil {
		return quotedomain.Quote{}, fmt.Errorf("mark deposit paid: %w", err)
	}

	current, err := s.quoteRepo.FindByID(ctx, s.db, quote.OwnerID, quote.ID)
	if err != nil {
		return quotedomain.Quote{}, err
	}
	if current == nil {
		return quotedomain.Quote{}, quotedomain.ErrNotFound
	}
	if !settled {
		if current.DepositStatus == quotedomain.DepositPaid {
			return quotedomain.Quote{}, quotedomain.ErrAlreadySettled
		}
		return quotedomain.Quote{}, quotedomain.ErrInvalidTransition
	}

	s.obsMetrics.RecordDepositSettled(ctx, "manual")
	if current.Status != quote.Status {
		s.obsMetrics.RecordQuoteTransition(ctx, string(quote.Status), string(current.Status))
	}
	s.log.Info("deposit marked paid",
		zap.String("quote_id", quote.ID.String()),
		zap.String("method", string(method)),
		zap.String("status", string(current.Status)),
	)
	return *current, nil
}

// RequestCheckout returns a hosted payment link for the deposit of a signed
// quote. A pending unexpired link for the same amount is handed out again.
func (s *Service) RequestCheckout(ctx context.Context, id string) (domain.CheckoutResponse, error) {
	quote, err := s.load(ctx, id)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	if quote.DepositStatus == quotedomain.DepositPaid {
		return domain.CheckoutResponse{}, quotedomain.ErrAlreadySettled
	}
	if quote.Status != quotedomain.StatusSigned {
		return domain.CheckoutResponse{}, quotedomain.ErrQuoteNotSigned
	}
	amount := quote.DepositAmount
	if !amount.IsPositive() {
		return domain.CheckoutResponse{}, paymentdomain.ErrInvalidAmount
	}

	if s.guard != nil {
		allowed, err := s.guard.AllowOwner(ctx, quote.OwnerID.String())
		if err != nil {
			s.log.Warn("checkout rate limit unavailable", zap.Error(err))
		} else if !allowed {
			return domain.CheckoutResponse{}, domain.ErrCheckoutRateLimited
		}

		token, locked, err := s.guard.TryLockQuote(ctx, quote.ID.String())
		switch {
		case err != nil:
			s.log.Warn("checkout lock unavailable", zap.String("quote_id", quote.ID.String()), zap.Error(err))
		case !locked:
			return domain.CheckoutResponse{}, domain.ErrCheckoutInProgress
		default:
			defer func() {
				if err := s.guard.ReleaseQuote(context.WithoutCancel(ctx), quote.ID.String(), token); err != nil {
					s.log.Warn("checkout lock release failed", zap.String("quote_id", quote.ID.String()), zap.Error(err))
				}
			}()
		}
	}

	now := s.clock.Now()
	existing, err := s.paymentRepo.FindPendingDeposit(ctx, s.db, quote.ID, amount)
	if err != nil {
		return domain.CheckoutResponse{}, fmt.Errorf("find pending deposit: %w", err)
	}
	if existing != nil && existing.Reusable(amount, now) {
		s.obsMetrics.RecordCheckoutSession(ctx, existing.Provider, "reused")
		return domain.CheckoutResponse{
			PaymentURL: existing.CheckoutURL,
			SessionID:  existing.ProcessorReference,
			Provider:   existing.Provider,
			Reused:     true,
		}, nil
	}

	idempotencyKey := fmt.Sprintf("quote_%s_deposit_%d", quote.ID, calculator.MinorUnits(amount))
	session, err := s.gateway.CreateCheckoutSession(ctx, paymentdomain.CheckoutRequest{
		QuoteID:       quote.ID,
		Amount:        amount,
		Currency:      quote.Currency,
		CustomerEmail: quote.ClientEmail,
		Description:   checkoutDescription(*quote),
		Metadata: map[string]string{
			"quote_id":     quote.ID.String(),
			"quote_number": quote.Number,
			"payment_type": string(paymentdomain.PaymentTypeDeposit),
		},
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, paymentdomain.ErrGatewayTimeout) {
			// The session may exist; a retry with the same key returns it.
			outcome = "timeout"
		}
		s.obsMetrics.RecordCheckoutSession(ctx, s.gateway.Provider(), outcome)
		return domain.CheckoutResponse{}, err
	}

	record := &paymentdomain.PaymentRecord{
		ID:                 s.genID.Generate(),
		QuoteID:            quote.ID,
		Type:               paymentdomain.PaymentTypeDeposit,
		Amount:             amount,
		Currency:           quote.Currency,
		Status:             paymentdomain.PaymentStatusPending,
		Provider:           s.gateway.Provider(),
		ProcessorReference: session.SessionID,
		CheckoutURL:        session.URL,
		IdempotencyKey:     idempotencyKey,
		ExpiresAt:          session.ExpiresAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	var linked bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The record is kept even when the quote moved on, so a late
		// payment on this session can still be matched.
		if err := s.paymentRepo.InsertRecord(ctx, tx, record); err != nil {
			return err
		}
		linked, err = s.quoteRepo.SetPaymentLink(ctx, tx, quote.ID, session.URL, now)
		return err
	})
	if err != nil {
		return domain.CheckoutResponse{}, fmt.Errorf("store checkout: %w", err)
	}
	if !linked {
		s.log.Warn("quote changed during checkout creation",
			zap.String("quote_id", quote.ID.String()),
			zap.String("session_id", session.SessionID),
		)
		current, err := s.quoteRepo.FindByID(ctx, s.db, quote.OwnerID, quote.ID)
		if err != nil {
			return domain.CheckoutResponse{}, err
		}
		if current != nil && current.DepositStatus == quotedomain.DepositPaid {
			return domain.CheckoutResponse{}, quotedomain.ErrAlreadySettled
		}
		return domain.CheckoutResponse{}, quotedomain.ErrQuoteNotSigned
	}

	s.obsMetrics.RecordCheckoutSession(ctx, s.gateway.Provider(), "created")
	s.log.Info("deposit checkout created",
		zap.String("quote_id", quote.ID.String()),
		zap.String("payment_record_id", record.ID.String()),
		zap.String("session_id", session.SessionID),
		zap.String("amount", amount.StringFixed(2)),
		zap.Bool("live", s.gateway.Configured()),
	)
	return domain.CheckoutResponse{
		PaymentURL: session.URL,
		SessionID:  session.SessionID,
		Provider:   s.gateway.Provider(),
	}, nil
}

func (s *Service) ListPayments(ctx context.Context, id string) ([]paymentdomain.PaymentRecord, error) {
	quote, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	records, err := s.paymentRepo.ListRecordsByQuote(ctx, s.db, quote.ID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	if records == nil {
		records = []paymentdomain.PaymentRecord{}
	}
	return records, nil
}

func (s *Service) load(ctx context.Context, id string) (*quotedomain.Quote, error) {
	ownerID, ok := ownercontext.OwnerIDFromContext(ctx)
	if !ok {
		return nil, quotedomain.ErrInvalidOwner
	}
	quoteID, err := quoteservice.ParseID(id)
	if err != nil {
		return nil, err
	}
	quote, err := s.quoteRepo.FindByID(ctx, s.db, ownerID, quoteID)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, quotedomain.ErrNotFound
	}
	return quote, nil
}

func checkoutDescription(quote quotedomain.Quote) string {
	if title := strings.TrimSpace(quote.Title); title != "" {
		return fmt.Sprintf("Deposit %s - %s", quote.Number, title)
	}
	return "Deposit " + quote.Number
}
