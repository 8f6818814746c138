package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/paysync/internal/config"
	"go.uber.org/zap"
)

const keyWebhookClient = "paysync:webhook:ip:%s"

type bucket interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error)
}

// WebhookLimiter throttles push deliveries per client IP before any
// verification work is done. Limits are shared through redis when it is
// configured and kept per process otherwise.
type WebhookLimiter struct {
	bucket bucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewWebhookLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *WebhookLimiter {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil
	}
	if limitCfg.WebhookRate <= 0 || limitCfg.WebhookBurst <= 0 {
		log.Warn("webhook rate limit disabled, rate and burst must be positive")
		return nil
	}

	var b bucket = NewMemoryBucket()
	if client != nil {
		b = NewTokenBucket(client)
	}
	return &WebhookLimiter{
		bucket: b,
		rate:   limitCfg.WebhookRate,
		burst:  limitCfg.WebhookBurst,
		log:    log.Named("ratelimit.webhook"),
	}
}

func (l *WebhookLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowClient fails open: a limiter error admits the request, since
// signature verification still guards the payment core.
func (l *WebhookLimiter) AllowClient(ctx context.Context, clientIP string) *RateLimitResult {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}
	}
	key := fmt.Sprintf(keyWebhookClient, strings.TrimSpace(clientIP))
	res, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		l.log.Warn("webhook rate limit check failed", zap.Error(err))
		return &RateLimitResult{Allowed: true, Limit: l.burst}
	}
	return res
}
