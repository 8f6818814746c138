package live

import (
	"context"

	"go.uber.org/fx"
)

func runHub(lc fx.Lifecycle, hub *Hub) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go hub.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

var Module = fx.Module("order.live",
	fx.Provide(NewHub, NewHandler),
	fx.Invoke(runHub),
)
