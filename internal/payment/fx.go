package payment

import (
	"github.com/smallbiznis/paysync/internal/payment/adapters"
	"github.com/smallbiznis/paysync/internal/payment/adapters/razorpay"
	"github.com/smallbiznis/paysync/internal/payment/domain"
	"github.com/smallbiznis/paysync/internal/payment/eventstore"
	"github.com/smallbiznis/paysync/internal/payment/reconcile"
	"github.com/smallbiznis/paysync/internal/payment/repository"
	"github.com/smallbiznis/paysync/internal/payment/verification"
	"github.com/smallbiznis/paysync/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(eventstore.New),
	fx.Provide(func(s *eventstore.Store) domain.EventStore { return s }),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			razorpay.New(),
		)
	}),
	fx.Provide(webhook.NewService),
	fx.Provide(verification.NewService),
	reconcile.Module,
)
