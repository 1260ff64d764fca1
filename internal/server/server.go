// Package server exposes the billing core over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/communityhq/billingcore/internal/community"
	communitydomain "github.com/communityhq/billingcore/internal/community/domain"
	"github.com/communityhq/billingcore/internal/config"
	"github.com/communityhq/billingcore/internal/observability"
	obsmiddleware "github.com/communityhq/billingcore/internal/observability/logger"
	obsmetrics "github.com/communityhq/billingcore/internal/observability/metrics"
	obstracing "github.com/communityhq/billingcore/internal/observability/tracing"
	"github.com/communityhq/billingcore/internal/reconcile"
	reconciledomain "github.com/communityhq/billingcore/internal/reconcile/domain"
	"github.com/communityhq/billingcore/internal/subscription"
	subscriptiondomain "github.com/communityhq/billingcore/internal/subscription/domain"
	"github.com/communityhq/billingcore/internal/transaction"
	transactiondomain "github.com/communityhq/billingcore/internal/transaction/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	community.Module,
	subscription.Module,
	transaction.Module,
	reconcile.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log.Named("http"), obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())
	r.Use(CallerContext())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB

	communitySvc    communitydomain.Service
	subscriptionSvc subscriptiondomain.Service
	reconcileSvc    reconciledomain.Service
	txnRepo         transactiondomain.Repository
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	CommunitySvc    communitydomain.Service
	SubscriptionSvc subscriptiondomain.Service
	ReconcileSvc    reconciledomain.Service
	TxnRepo         transactiondomain.Repository
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		communitySvc:    p.CommunitySvc,
		subscriptionSvc: p.SubscriptionSvc,
		reconcileSvc:    p.ReconcileSvc,
		txnRepo:         p.TxnRepo,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	api.POST("/communities", s.CreateCommunity)
	api.GET("/communities/:slug/billing", s.GetBillingStatus)
	api.POST("/communities/:slug/trial", s.StartTrial)

	api.GET("/communities/:slug/conflicts", s.AnalyzeConflicts)
	api.POST("/communities/:slug/conflicts/resolve", s.ResolveConflicts)

	api.POST("/communities/:slug/subscription/cancel", s.CancelSubscription)
	api.GET("/communities/:slug/subscription/events", s.ListSubscriptionEvents)
	api.GET("/communities/:slug/transactions", s.ListTransactions)

	api.POST("/payments/verify", s.VerifyPayment)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
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
