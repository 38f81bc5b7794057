package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	agingdomain "github.com/smallbiznis/bursar/internal/aging/domain"
	"github.com/smallbiznis/bursar/internal/config"
	feedomain "github.com/smallbiznis/bursar/internal/fee/domain"
	invoicedomain "github.com/smallbiznis/bursar/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/bursar/internal/ledger/domain"
	mobilemoneydomain "github.com/smallbiznis/bursar/internal/mobilemoney/domain"
	"github.com/smallbiznis/bursar/internal/observability"
	obsmiddleware "github.com/smallbiznis/bursar/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/bursar/internal/observability/metrics"
	obstracing "github.com/smallbiznis/bursar/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/bursar/internal/payment/domain"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http.server.start", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http.server.failed", zap.Error(err))
				}
			}()
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
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	studentSvc     studentdomain.Service
	feeSvc         feedomain.Service
	invoiceSvc     invoicedomain.Service
	ledgerSvc      ledgerdomain.Service
	paymentSvc     paymentdomain.Service
	mobileMoneySvc mobilemoneydomain.Service
	agingSvc       agingdomain.Service
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	StudentSvc     studentdomain.Service
	FeeSvc         feedomain.Service
	InvoiceSvc     invoicedomain.Service
	LedgerSvc      ledgerdomain.Service
	PaymentSvc     paymentdomain.Service
	MobileMoneySvc mobilemoneydomain.Service
	AgingSvc       agingdomain.Service
}

func NewServer(p ServerParams) *Server {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            log.Named("http"),
		studentSvc:     p.StudentSvc,
		feeSvc:         p.FeeSvc,
		invoiceSvc:     p.InvoiceSvc,
		ledgerSvc:      p.LedgerSvc,
		paymentSvc:     p.PaymentSvc,
		mobileMoneySvc: p.MobileMoneySvc,
		agingSvc:       p.AgingSvc,
	}

	svc.registerProviderRoutes()
	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerProviderRoutes exposes provider webhooks. Providers do not send a
// school header; the school is taken from the matched transaction.
func (s *Server) registerProviderRoutes() {
	s.engine.POST("/api/mobile-money/callbacks/:provider", s.HandleProviderCallback)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.SchoolContext())

	// -------- Students --------
	api.POST("/students", s.CreateStudent)
	api.GET("/students", s.ListStudents)
	api.GET("/students/:id", s.GetStudent)
	api.GET("/students/:id/ledger", s.GetStudentLedger)
	api.GET("/students/:id/fee-breakdown", s.GetStudentFeeBreakdown)

	// -------- Fees --------
	api.POST("/fee-structures", s.CreateFeeStructure)
	api.GET("/fee-structures", s.ListFeeStructures)
	api.PUT("/fee-overrides", s.UpsertFeeOverride)
	api.DELETE("/fee-overrides/:id", s.DeactivateFeeOverride)

	// -------- Invoices --------
	api.POST("/invoices/generate", s.GenerateInvoices)
	api.POST("/invoices", s.CreateInvoice)
	api.GET("/invoices", s.ListInvoices)
	api.GET("/invoices/:id", s.GetInvoice)

	// -------- Payments --------
	api.POST("/payments", s.RecordPayment)
	api.POST("/payments/pending", s.ReservePayment)
	api.GET("/payments", s.ListPayments)
	api.POST("/payment-plans", s.CreatePaymentPlan)
	api.GET("/payment-plans/:id", s.GetPaymentPlan)
	api.POST("/installments/:id/payments", s.PayInstallment)

	// -------- Mobile money --------
	api.POST("/mobile-money/payments", s.InitiateMobileMoney)
	api.GET("/mobile-money/payments/:id", s.GetMobileMoneyTransaction)
	api.POST("/mobile-money/payments/:id/callback", s.HandleMobileMoneyCallback)

	// -------- Reports --------
	api.GET("/debtors", s.GetDebtors)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
