package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/quoteflow/internal/clock"
	obsmetrics "github.com/smallbiznis/quoteflow/internal/observability/metrics"
	"github.com/smallbiznis/quoteflow/internal/ownercontext"
	quotedomain "github.com/smallbiznis/quoteflow/internal/quote/domain"
	quoteservice "github.com/smallbiznis/quoteflow/internal/quote/service"
	"github.com/smallbiznis/quoteflow/internal/signature/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxSignerNameLength = 200

var errSignRaceLost = errors.New("sign_race_lost")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       domain.Repository
	QuoteRepo  quotedomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       domain.Repository
	quoteRepo  quotedomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("signature.service"),
		clock:      p.Clock,
		repo:       p.Repo,
		quoteRepo:  p.QuoteRepo,
		obsMetrics: p.ObsMetrics,
	}
}

// Sign stores the artifact and moves the quote to signed. It never creates
// a payment or checkout.
func (s *Service) Sign(ctx context.Context, req domain.SignRequest) (quotedomain.Quote, error) {
	ownerID, ok := ownercontext.OwnerIDFromContext(ctx)
	if !ok {
		return quotedomain.Quote{}, quotedomain.ErrInvalidOwner
	}
	quoteID, err := quoteservice.ParseID(req.QuoteID)
	if err != nil {
		return quotedomain.Quote{}, err
	}

	signer := strings.TrimSpace(req.SignerName)
	if signer == "" || len(signer) > maxSignerNameLength {
		return quotedomain.Quote{}, domain.ErrInvalidSigner
	}
	if err := validateArtifact(req.Artifact); err != nil {
		return quotedomain.Quote{}, err
	}

	quote, err := s.quoteRepo.FindByID(ctx, s.db, ownerID, quoteID)
	if err != nil {
		return quotedomain.Quote{}, err
	}
	if quote == nil {
		return quotedomain.Quote{}, quotedomain.ErrNotFound
	}
	if !quote.Status.Signable() {
		return quotedomain.Quote{}, quotedomain.ErrSignatureRejected
	}

	now := s.clock.Now()
	if quote.Expired(now) {
		return quotedomain.Quote{}, quotedomain.ErrQuoteExpired
	}

	artifact := domain.StoredArtifact{
		Ref:         "sig_" + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		QuoteID:     quote.ID,
		OwnerID:     ownerID,
		ContentType: normalizeContentType(req.Artifact.ContentType),
		Content:     req.Artifact.Content,
		Digest:      digest(req.Artifact.Content),
		SignerName:  signer,
		CreatedAt:   now,
	}

	from := quote.Status
	var signed *quotedomain.Quote
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &artifact); err != nil {
			return fmt.Errorf("store signature artifact: %w", err)
		}
		ok, err := s.quoteRepo.MarkSigned(ctx, tx, quote.ID, from, artifact.Ref, now)
		if err != nil {
			return fmt.Errorf("mark quote signed: %w", err)
		}
		if !ok {
			return errSignRaceLost
		}
		// a deposit settled manually before signing promotes straight to deposit_paid
		signed, err = s.quoteRepo.FindByID(ctx, tx, ownerID, quote.ID)
		if err != nil {
			return fmt.Errorf("reload signed quote: %w", err)
		}
		if signed == nil {
			return errSignRaceLost
		}
		return nil
	})
	if errors.Is(err, errSignRaceLost) {
		s.log.Warn("quote changed while signing",
			zap.String("quote_id", quote.ID.String()),
			zap.String("observed_status", string(from)),
		)
		return quotedomain.Quote{}, quotedomain.ErrSignatureRejected
	}
	if err != nil {
		return quotedomain.Quote{}, err
	}

	s.obsMetrics.RecordQuoteTransition(ctx, string(from), string(signed.Status))
	s.log.Info("quote signed",
		zap.String("quote_id", signed.ID.String()),
		zap.String("status", string(signed.Status)),
		zap.String("signature_ref", artifact.Ref),
		zap.String("digest", artifact.Digest),
	)
	return *signed, nil
}
