package server

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/paysync/internal/clock"
	"github.com/smallbiznis/paysync/internal/config"
	"github.com/smallbiznis/paysync/internal/observability"
	orderrepo "github.com/smallbiznis/paysync/internal/order/repository"
	orderservice "github.com/smallbiznis/paysync/internal/order/service"
	"github.com/smallbiznis/paysync/internal/outbox"
	"github.com/smallbiznis/paysync/internal/payment/adapters"
	"github.com/smallbiznis/paysync/internal/payment/adapters/razorpay"
	"github.com/smallbiznis/paysync/internal/payment/eventstore"
	"github.com/smallbiznis/paysync/internal/payment/reconcile"
	"github.com/smallbiznis/paysync/internal/payment/repository"
	"github.com/smallbiznis/paysync/internal/payment/verification"
	"github.com/smallbiznis/paysync/internal/payment/webhook"
	"github.com/smallbiznis/paysync/internal/ratelimit"
	"github.com/smallbiznis/paysync/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testWebhookSecret = "whsec_test"
	testKeySecret     = "key_secret_test"
	testAdminToken    = "admin-token"
)

type testServer struct {
	server *Server
	engine *gin.Engine
	db     *gorm.DB
	clock  *clock.FakeClock
}

type serverOption func(*config.Config, map[string]config.ProviderSecrets)

func withAdminTokenHash(hash string) serverOption {
	return func(cfg *config.Config, _ map[string]config.ProviderSecrets) {
		cfg.Admin.APIToken = ""
		cfg.Admin.APITokenHash = hash
	}
}

func withoutSecrets() serverOption {
	return func(_ *config.Config, secrets map[string]config.ProviderSecrets) {
		delete(secrets, "razorpay")
	}
}

func withMaxBody(n int64) serverOption {
	return func(cfg *config.Config, _ map[string]config.ProviderSecrets) {
		cfg.Payment.WebhookMaxBodyBytes = n
	}
}

func newTestServer(t *testing.T, opts ...serverOption) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.OpenDB(t)
	node, err := snowflake.NewNode(11)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))

	var cfg config.Config
	cfg.Payment = config.PaymentConfig{
		DefaultProvider:     "razorpay",
		Providers:           []string{"razorpay"},
		WebhookMaxBodyBytes: 1 << 20,
		RequestTimeout:      5 * time.Second,
	}
	cfg.Reconcile = config.ReconcileConfig{
		Interval: time.Minute, Grace: 30 * time.Second, BatchSize: 10, MaxAttempts: 3, LockTTL: time.Minute,
	}
	cfg.Admin.APIToken = testAdminToken
	secrets := map[string]config.ProviderSecrets{
		"razorpay": {WebhookSecret: testWebhookSecret, KeySecret: testKeySecret},
	}
	for _, opt := range opts {
		opt(&cfg, secrets)
	}

	log := zap.NewNop()
	registry := adapters.NewRegistry(razorpay.New())
	holder := config.NewStaticSecrets(secrets)
	store := eventstore.New(eventstore.Params{
		DB: db, Log: log, GenID: node, Clock: fake, Repo: repository.Provide(), Cfg: cfg,
	})
	orders := orderservice.NewService(orderservice.Params{
		DB:     db,
		Log:    log,
		Clock:  fake,
		Repo:   orderrepo.Provide(),
		Outbox: outbox.NewWriter(outbox.WriterParams{GenID: node, Clock: fake}),
	})

	engine := NewEngine(observability.Config{}, nil, registry)
	srv, err := NewServer(Params{
		Engine:   engine,
		Cfg:      cfg,
		Log:      log,
		Adapters: registry,
		WebhookSvc: webhook.NewService(webhook.Params{
			Log: log, Adapters: registry, Secrets: holder, Events: store, Orders: orders,
		}),
		VerificationSvc: verification.NewService(verification.Params{
			Cfg: cfg, Log: log, Secrets: holder, Events: store, Orders: orders,
		}),
		Events: store,
		Reconciler: reconcile.New(reconcile.Params{
			Cfg: cfg, Log: log, Clock: fake, Events: store, Orders: orders,
		}),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv.RegisterRoutes()

	return testServer{server: srv, engine: engine, db: db, clock: fake}
}

func (ts testServer) do(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

type stubLimiter struct {
	allowed bool
}

func (s stubLimiter) Enabled() bool { return true }

func (s stubLimiter) AllowClient(context.Context, string) *ratelimit.RateLimitResult {
	return &ratelimit.RateLimitResult{Allowed: s.allowed, Limit: 1, RetryAfter: 2 * time.Second}
}
