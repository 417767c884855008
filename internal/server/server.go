// Package server mounts the HTTP surface: webhook ingestion, read
// endpoints, health and metrics.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/billing/internal/config"
	"github.com/smallbiznis/billing/internal/credit"
	"github.com/smallbiznis/billing/internal/customer"
	"github.com/smallbiznis/billing/internal/discount"
	"github.com/smallbiznis/billing/internal/events"
	"github.com/smallbiznis/billing/internal/invoice"
	invoicedomain "github.com/smallbiznis/billing/internal/invoice/domain"
	"github.com/smallbiznis/billing/internal/observability"
	obsmiddleware "github.com/smallbiznis/billing/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/billing/internal/observability/metrics"
	obstracing "github.com/smallbiznis/billing/internal/observability/tracing"
	"github.com/smallbiznis/billing/internal/payment"
	paymentdomain "github.com/smallbiznis/billing/internal/payment/domain"
	"github.com/smallbiznis/billing/internal/plan"
	"github.com/smallbiznis/billing/internal/quota"
	"github.com/smallbiznis/billing/internal/refund"
	"github.com/smallbiznis/billing/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/billing/internal/subscription/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	events.Module,
	plan.Module,
	customer.Module,
	discount.Module,
	credit.Module,
	invoice.Module,
	refund.Module,
	subscription.Module,
	quota.Module,
	payment.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, metrics *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, metrics *obsmetrics.Metrics) *gin.Engine {
	return NewEngine(obsCfg, metrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine          *gin.Engine
	billingCfg      *config.BillingConfigHolder
	webhookSvc      paymentdomain.Service
	subscriptionSvc subscriptiondomain.Service
	invoiceSvc      invoicedomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	BillingCfg      *config.BillingConfigHolder
	WebhookSvc      paymentdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	InvoiceSvc      invoicedomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		billingCfg:      p.BillingCfg,
		webhookSvc:      p.WebhookSvc,
		subscriptionSvc: p.SubscriptionSvc,
		invoiceSvc:      p.InvoiceSvc,
	}

	svc.registerRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/webhooks/:provider", s.HandleWebhook)
	v1.GET("/subscriptions/:id", s.GetSubscriptionByID)
	v1.GET("/invoices/:id", s.GetInvoiceByID)
}
