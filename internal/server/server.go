package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/quoteflow/internal/config"
	"github.com/smallbiznis/quoteflow/internal/deposit"
	depositdomain "github.com/smallbiznis/quoteflow/internal/deposit/domain"
	"github.com/smallbiznis/quoteflow/internal/observability"
	obsmiddleware "github.com/smallbiznis/quoteflow/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/quoteflow/internal/observability/metrics"
	obstracing "github.com/smallbiznis/quoteflow/internal/observability/tracing"
	"github.com/smallbiznis/quoteflow/internal/payment"
	paymentdomain "github.com/smallbiznis/quoteflow/internal/payment/domain"
	"github.com/smallbiznis/quoteflow/internal/providers/email"
	"github.com/smallbiznis/quoteflow/internal/quote"
	quotedomain "github.com/smallbiznis/quoteflow/internal/quote/domain"
	"github.com/smallbiznis/quoteflow/internal/ratelimit"
	"github.com/smallbiznis/quoteflow/internal/signature"
	signaturedomain "github.com/smallbiznis/quoteflow/internal/signature/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	email.Module,
	ratelimit.Module,
	quote.Module,
	signature.Module,
	payment.Module,
	deposit.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(obstracing.MiddlewareConfig{
		SkipPaths: []string{"/health", "/metrics"},
	}))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	quoteSvc     quotedomain.Service
	signatureSvc signaturedomain.Service
	depositSvc   depositdomain.Service
	reconciler   paymentdomain.Reconciler
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	QuoteSvc     quotedomain.Service
	SignatureSvc signaturedomain.Service
	DepositSvc   depositdomain.Service
	Reconciler   paymentdomain.Reconciler
}

func NewServer(p ServerParams) *Server {
	useJSONFieldNames()

	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		quoteSvc:     p.QuoteSvc,
		signatureSvc: p.SignatureSvc,
		depositSvc:   p.DepositSvc,
		reconciler:   p.Reconciler,
	}

	svc.registerAPIRoutes()
	if svc.cfg.Environment != config.EnvironmentProduction {
		svc.registerDevRoutes()
	}

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Quotes --------
	quotes := api.Group("/quotes", OwnerRequired())
	{
		quotes.POST("", s.CreateQuote)
		quotes.GET("", s.ListQuotes)
		quotes.GET("/:id", s.GetQuoteByID)
		quotes.PUT("/:id/lines", s.ReplaceQuoteLines)
		quotes.PUT("/:id/deposit_percent", s.UpdateDepositPercent)
		quotes.POST("/:id/send", s.SendQuote)
		quotes.POST("/:id/complete", s.CompleteQuote)
		quotes.POST("/:id/cancel", s.CancelQuote)

		quotes.POST("/:id/sign", s.SignQuote)

		quotes.POST("/:id/deposit", s.MarkDepositPaid)
		quotes.POST("/:id/checkout", s.RequestCheckout)
		quotes.GET("/:id/payments", s.ListQuotePayments)
	}

	// -------- Payment Webhooks --------
	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerDevRoutes() {
	dev := s.engine.Group("/dev")
	dev.POST("/payments/placeholder/:session_id/complete", s.CompletePlaceholderCheckout)
}
