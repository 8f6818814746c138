package metricsexport

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/paysync/internal/config"
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("metrics.export",
	fx.Provide(NewPusher),
	fx.Invoke(startExporter),
)

var pendingEvents = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "paysync_payment_events_unprocessed",
	Help: "Webhook events recorded but not yet applied to their order.",
})

func registerPendingGauge(registerer prometheus.Registerer) error {
	if err := registerer.Register(pendingEvents); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return err
		}
	}
	return nil
}

func startExporter(lc fx.Lifecycle, cfg config.Config, pusher Pusher, db *gorm.DB, log *zap.Logger) error {
	if pusher == nil {
		return nil
	}
	if err := registerPendingGauge(prometheus.DefaultRegisterer); err != nil {
		return err
	}
	interval := cfg.Export.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	log = log.Named("metrics.export")

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					exportOnce(ctx, pusher, db, log)
					select {
					case <-ticker.C:
					case <-ctx.Done():
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	return nil
}

func exportOnce(ctx context.Context, pusher Pusher, db *gorm.DB, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()

	refreshPending(ctx, db)
	if err := pusher.Push(ctx, prometheus.DefaultGatherer); err != nil && ctx.Err() == nil {
		log.Warn("metrics push failed", zap.Error(err))
	}
}

func refreshPending(ctx context.Context, db *gorm.DB) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM payment_events WHERE source = ? AND processed_at IS NULL`,
		string(paymentdomain.SourceProviderWebhook),
	).Scan(&count).Error
	if err != nil {
		return
	}
	pendingEvents.Set(float64(count))
}
