package order

import (
	"github.com/smallbiznis/paysync/internal/order/domain"
	"github.com/smallbiznis/paysync/internal/order/live"
	"github.com/smallbiznis/paysync/internal/order/repository"
	"github.com/smallbiznis/paysync/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(h *live.Hub) domain.StatusListener { return h }),
	live.Module,
)
