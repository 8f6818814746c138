package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/paysync/internal/admintoken"
	"github.com/smallbiznis/paysync/internal/config"
	"github.com/smallbiznis/paysync/internal/observability"
	obsmiddleware "github.com/smallbiznis/paysync/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/paysync/internal/observability/metrics"
	obstracing "github.com/smallbiznis/paysync/internal/observability/tracing"
	"github.com/smallbiznis/paysync/internal/order/live"
	"github.com/smallbiznis/paysync/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
	"github.com/smallbiznis/paysync/internal/payment/reconcile"
	"github.com/smallbiznis/paysync/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(run),
)

type Params struct {
	fx.In

	Engine          *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Adapters        *adapters.Registry
	WebhookSvc      paymentdomain.WebhookService
	VerificationSvc paymentdomain.VerificationService
	Events          paymentdomain.EventStore
	Reconciler      *reconcile.Reconciler
	Live            *live.Handler             `optional:"true"`
	Limiter         *ratelimit.WebhookLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics       `optional:"true"`
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	adapters        *adapters.Registry
	webhookSvc      paymentdomain.WebhookService
	verificationSvc paymentdomain.VerificationService
	events          paymentdomain.EventStore
	reconciler      *reconcile.Reconciler
	live            *live.Handler
	limiter         clientLimiter
	adminTokens     *admintoken.Checker
	obsMetrics      *obsmetrics.Metrics
}

func NewServer(p Params) (*Server, error) {
	checker, err := admintoken.NewChecker(p.Cfg.Admin.APIToken, p.Cfg.Admin.APITokenHash)
	if err != nil {
		return nil, err
	}
	return &Server{
		engine:          p.Engine,
		cfg:             p.Cfg,
		log:             p.Log.Named("http"),
		adapters:        p.Adapters,
		webhookSvc:      p.WebhookSvc,
		verificationSvc: p.VerificationSvc,
		events:          p.Events,
		reconciler:      p.Reconciler,
		live:            p.Live,
		limiter:         p.Limiter,
		adminTokens:     checker,
		obsMetrics:      p.ObsMetrics,
	}, nil
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, registry *adapters.Registry) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(CORS(registry.SignatureHeaders()))
	r.Use(ErrorHandlingMiddleware())

	r.NoMethod(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, errorResponse{Error: errorPayload{
			Type:    "method_not_allowed",
			Message: "method not allowed",
		}})
	})
	r.NoRoute(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Error: errorPayload{
			Type:    "not_found",
			Message: "not found",
		}})
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, registry *adapters.Registry) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics, registry)
}

func (s *Server) RegisterRoutes() {
	timeout := RequestTimeout(s.cfg.Payment.RequestTimeout)

	payments := s.engine.Group("/", timeout)
	payments.POST("/webhook", s.WebhookRateLimit(), s.HandleDefaultWebhook)
	payments.POST("/webhooks/:provider", s.WebhookRateLimit(), s.HandlePaymentWebhook)
	payments.POST("/verify-payment", s.HandleVerifyPayment)

	if s.live != nil {
		s.engine.GET("/orders/:order_ref/live", s.HandleOrderLive)
	}

	if s.adminTokens != nil {
		admin := s.engine.Group("/admin", AdminAuth(s.adminTokens), timeout)
		admin.GET("/payment-events", s.ListPaymentEvents)
		admin.POST("/reconcile", s.TriggerReconcile)
	}
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger, shutdowner fx.Shutdowner) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
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
