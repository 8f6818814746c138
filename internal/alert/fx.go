package alert

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/paysync/internal/clock"
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
	"go.uber.org/fx"
)

func NewCounter(client *redis.Client, clk clock.Clock) FailureCounter {
	if client == nil {
		return NewMemoryCounter(clk)
	}
	return NewRedisCounter(client)
}

var Module = fx.Module("alert",
	fx.Provide(NewCounter),
	fx.Provide(NewTracker),
	fx.Provide(func(t *Tracker) paymentdomain.FailureRecorder { return t }),
)
