package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quoteflow/internal/clock"
	"github.com/smallbiznis/quoteflow/internal/config"
	obsmetrics "github.com/smallbiznis/quoteflow/internal/observability/metrics"
	"github.com/smallbiznis/quoteflow/internal/ownercontext"
	"github.com/smallbiznis/quoteflow/internal/providers/email"
	"github.com/smallbiznis/quoteflow/internal/quote/calculator"
	"github.com/smallbiznis/quoteflow/internal/quote/domain"
	"github.com/smallbiznis/quoteflow/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Clock      clock.Clock
	Cfg        config.Config
	Policy     *config.PolicyHolder
	Email      email.Provider      `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	clock      clock.Clock
	currency   string
	policy     *config.PolicyHolder
	email      email.Provider
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("quote.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      p.Clock,
		currency:   p.Cfg.Currency,
		policy:     p.Policy,
		email:      p.Email,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateQuoteRequest) (domain.Quote, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return domain.Quote{}, err
	}

	clientID, err := snowflake.ParseString(strings.TrimSpace(req.ClientID))
	if err != nil || clientID == 0 {
		return domain.Quote{}, domain.ErrInvalidClient
	}

	policy := s.policy.Get()
	depositPercent := policy.DefaultDeposit()
	if req.DepositPercent != nil {
		depositPercent = *req.DepositPercent
	}

	quote, err := domain.NewQuote(domain.NewQuoteParams{
		ID:              s.genID.Generate(),
		OwnerID:         ownerID,
		ClientID:        clientID,
		ClientName:      req.ClientName,
		ClientEmail:     req.ClientEmail,
		Title:           req.Title,
		Currency:        s.currency,
		Lines:           req.Lines,
		LineIDs:         s.genID.Generate,
		DepositPercent:  depositPercent,
		AllowedVATRates: policy.VATRates(),
		ValidityDays:    policy.ValidityDays,
		Now:             s.clock.Now(),
	})
	if err != nil {
		return domain.Quote{}, err
	}

	if err := s.repo.Insert(ctx, s.db, quote); err != nil {
		return domain.Quote{}, fmt.Errorf("insert quote: %w", err)
	}

	s.log.Info("quote created",
		zap.String("quote_id", quote.ID.String()),
		zap.String("number", quote.Number),
		zap.String("total_ttc", quote.TotalTTC.StringFixed(2)),
	)
	return *quote, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.QuoteView, error) {
	quote, err := s.load(ctx, id)
	if err != nil {
		return domain.QuoteView{}, err
	}
	return buildView(*quote), nil
}

func (s *Service) List(ctx context.Context, req domain.ListQuoteRequest) (domain.ListQuoteResponse, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return domain.ListQuoteResponse{}, err
	}

	filter := domain.ListQuoteFilter{}
	if status := strings.TrimSpace(req.Status); status != "" {
		filter.Status = domain.QuoteStatus(strings.ToLower(status))
		if !filter.Status.Valid() {
			return domain.ListQuoteResponse{}, domain.ErrInvalidStatus
		}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	items, err := s.repo.List(ctx, s.db, ownerID, filter, pagination.Pagination{
		PageToken: strings.TrimSpace(req.PageToken),
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListQuoteResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(quote *domain.Quote) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: quote.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})

	quotes := make([]domain.Quote, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		quotes = append(quotes, *item)
	}

	return domain.ListQuoteResponse{PageInfo: *pageInfo, Quotes: quotes}, nil
}

func (s *Service) UpdateLines(ctx context.Context, req domain.UpdateLinesRequest) (domain.Quote, error) {
	quote, err := s.load(ctx, req.ID)
	if err != nil {
		return domain.Quote{}, err
	}

	if err := quote.ReplaceLines(req.Lines, s.policy.Get().VATRates(), s.genID.Generate, s.clock.Now()); err != nil {
		return domain.Quote{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.UpdateDraft(ctx, tx, quote)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrQuoteNotEditable
		}
		return s.repo.ReplaceLines(ctx, tx, quote.ID, quote.Lines)
	})
	if err != nil {
		if errors.Is(err, domain.ErrQuoteNotEditable) {
			return domain.Quote{}, err
		}
		return domain.Quote{}, fmt.Errorf("update quote lines: %w", err)
	}

	return *quote, nil
}

func (s *Service) UpdateDepositPercent(ctx context.Context, req domain.UpdateDepositPercentRequest) (domain.Quote, error) {
	quote, err := s.load(ctx, req.ID)
	if err != nil {
		return domain.Quote{}, err
	}

	if err := quote.SetDepositPercent(req.DepositPercent, s.clock.Now()); err != nil {
		return domain.Quote{}, err
	}

	ok, err := s.repo.UpdateDraft(ctx, s.db, quote)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("update deposit percent: %w", err)
	}
	if !ok {
		return domain.Quote{}, domain.ErrQuoteNotEditable
	}
	return *quote, nil
}

func (s *Service) Send(ctx context.Context, id string) (domain.Quote, error) {
	quote, err := s.transition(ctx, id, domain.StatusSent)
	if err != nil {
		return domain.Quote{}, err
	}
	s.notifyClient(ctx, quote)
	return quote, nil
}

func (s *Service) Complete(ctx context.Context, id string) (domain.Quote, error) {
	return s.transition(ctx, id, domain.StatusCompleted)
}

func (s *Service) Cancel(ctx context.Context, id string) (domain.Quote, error) {
	quote, err := s.load(ctx, id)
	if err != nil {
		return domain.Quote{}, err
	}
	if quote.Status == domain.StatusCanceled {
		return *quote, nil
	}
	return s.apply(ctx, quote, domain.StatusCanceled)
}

func (s *Service) transition(ctx context.Context, id string, to domain.QuoteStatus) (domain.Quote, error) {
	quote, err := s.load(ctx, id)
	if err != nil {
		return domain.Quote{}, err
	}
	return s.apply(ctx, quote, to)
}

// apply performs a conditional status write against the observed status.
// Losing a race re-reads the quote so the caller sees the real state error.
func (s *Service) apply(ctx context.Context, quote *domain.Quote, to domain.QuoteStatus) (domain.Quote, error) {
	from := quote.Status
	if !domain.CanTransition(from, to) {
		return domain.Quote{}, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	ok, err := s.repo.UpdateStatus(ctx, s.db, quote.ID, from, to, now)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("update quote status: %w", err)
	}
	if !ok {
		current, err := s.repo.FindByID(ctx, s.db, quote.OwnerID, quote.ID)
		if err != nil {
			return domain.Quote{}, err
		}
		if current == nil {
			return domain.Quote{}, domain.ErrNotFound
		}
		if to == domain.StatusCanceled && current.Status == domain.StatusCanceled {
			return *current, nil
		}
		return domain.Quote{}, domain.ErrInvalidTransition
	}

	quote.Status = to
	quote.UpdatedAt = now
	switch to {
	case domain.StatusSent:
		quote.SentAt = &now
	case domain.StatusCompleted:
		quote.CompletedAt = &now
	case domain.StatusCanceled:
		quote.CanceledAt = &now
	}

	s.obsMetrics.RecordQuoteTransition(ctx, string(from), string(to))
	s.log.Info("quote transitioned",
		zap.String("quote_id", quote.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return *quote, nil
}

func (s *Service) notifyClient(ctx context.Context, quote domain.Quote) {
	if s.email == nil || quote.ClientEmail == "" {
		return
	}
	err := s.email.SendTemplate(ctx, []string{quote.ClientEmail}, email.TemplateQuoteSent, email.TemplateData{
		Values: map[string]any{
			"client_name":    quote.ClientName,
			"number":         quote.Number,
			"title":          quote.Title,
			"currency":       quote.Currency,
			"total_ht":       quote.TotalHT.StringFixed(2),
			"total_vat":      quote.TotalVAT.StringFixed(2),
			"total_ttc":      quote.TotalTTC.StringFixed(2),
			"deposit_amount": quote.DepositAmount.StringFixed(2),
			"expires_at":     quote.ExpiresAt.Format("2006-01-02"),
		},
	})
	if err != nil {
		s.log.Warn("quote notification failed",
			zap.String("quote_id", quote.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) load(ctx context.Context, id string) (*domain.Quote, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return nil, err
	}
	quoteID, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	quote, err := s.repo.FindByID(ctx, s.db, ownerID, quoteID)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, domain.ErrNotFound
	}
	return quote, nil
}

func buildView(quote domain.Quote) domain.QuoteView {
	lines := domain.CalculatorLines(quote.Lines)
	lineTotals := make([]domain.LineTotal, 0, len(quote.Lines))
	for i, line := range quote.Lines {
		ht, vat, ttc := calculator.LineAmounts(lines[i])
		lineTotals = append(lineTotals, domain.LineTotal{Position: line.Position, HT: ht, VAT: vat, TTC: ttc})
	}
	return domain.QuoteView{
		Quote:        quote,
		LineTotals:   lineTotals,
		VATBreakdown: calculator.VATBreakdown(lines),
	}
}

func ownerFromContext(ctx context.Context) (snowflake.ID, error) {
	ownerID, ok := ownercontext.OwnerIDFromContext(ctx)
	if !ok {
		return 0, domain.ErrInvalidOwner
	}
	return ownerID, nil
}

// ParseID parses a quote identifier from a path parameter.
func ParseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
