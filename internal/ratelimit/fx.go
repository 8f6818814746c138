package ratelimit

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module shares one redis client between the webhook limiter and the
// reconcile lease.
var Module = fx.Module("ratelimit",
	fx.Provide(
		NewRedisClient,
		NewLocker,
		NewWebhookLimiter,
	),
	fx.Invoke(logMode),
)

func logMode(limiter *WebhookLimiter, locker *Locker, log *zap.Logger) {
	mode := "off"
	if limiter.Enabled() {
		mode = "memory"
		if _, shared := limiter.bucket.(*TokenBucket); shared {
			mode = "redis"
		}
	}
	log.Info("webhook rate limiting", zap.String("mode", mode), zap.Bool("reconcile_lease", locker.Enabled()))
}
