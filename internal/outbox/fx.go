package outbox

import (
	"context"

	"github.com/smallbiznis/paysync/internal/config"
	orderdomain "github.com/smallbiznis/paysync/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("outbox",
	fx.Provide(
		NewWriter,
		func(w *Writer) orderdomain.OutboxWriter { return w },
		providePublisher,
		NewDispatcher,
	),
	fx.Invoke(startDispatcher),
)

// providePublisher yields a nil Publisher when no broker is configured; the
// dispatcher is then never started and rows accumulate until one is.
func providePublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Publisher, error) {
	if cfg.Outbox.RabbitURL == "" {
		log.Info("outbox publisher disabled, RABBITMQ_URL not set")
		return nil, nil
	}

	pub, err := NewRabbitPublisher(cfg.Outbox.RabbitURL, cfg.Outbox.Exchange)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return pub.Close()
		},
	})
	return pub, nil
}

// startDispatcher registers a single hook so fx unwinds it on stop. Hooks
// appended while the lifecycle is starting are never stopped.
func startDispatcher(lc fx.Lifecycle, d *Dispatcher) {
	if !d.Enabled() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				d.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
