package service

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/paysync/internal/clock"
	obsmetrics "github.com/smallbiznis/paysync/internal/observability/metrics"
	"github.com/smallbiznis/paysync/internal/order/domain"
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       domain.Repository
	Outbox     domain.OutboxWriter   `optional:"true"`
	Listener   domain.StatusListener `optional:"true"`
	ObsMetrics *obsmetrics.Metrics   `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       domain.Repository
	outbox     domain.OutboxWriter
	listener   domain.StatusListener
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("order.service"),
		clock:      p.Clock,
		repo:       p.Repo,
		outbox:     p.Outbox,
		listener:   p.Listener,
		obsMetrics: p.ObsMetrics,
	}
}

// Apply moves a pending order according to a provider event type. An order
// that has already left pending is returned unchanged with a nil error.
func (s *Service) Apply(ctx context.Context, providerOrderRef, eventType, paymentRef string) (*domain.Order, error) {
	t, ok := domain.TransitionFor(eventType)
	if !ok || eventType == paymentdomain.EventTypePaymentConfirmed {
		return nil, domain.ErrUnsupportedEvent
	}
	return s.transition(ctx, providerOrderRef, t, strings.TrimSpace(paymentRef), nil)
}

// ApplyConfirmed marks a pending order paid after a verified client confirmation
// and stamps the presented signature for audit.
func (s *Service) ApplyConfirmed(ctx context.Context, providerOrderRef, paymentRef, signature string) (*domain.Order, error) {
	t, _ := domain.TransitionFor(paymentdomain.EventTypePaymentConfirmed)
	sig := strings.TrimSpace(signature)
	return s.transition(ctx, providerOrderRef, t, strings.TrimSpace(paymentRef), &sig)
}

func (s *Service) Get(ctx context.Context, providerOrderRef string) (*domain.Order, error) {
	providerOrderRef = strings.TrimSpace(providerOrderRef)
	if providerOrderRef == "" {
		return nil, domain.ErrMissingOrderRef
	}
	order, err := s.repo.FindByProviderRef(ctx, s.db, providerOrderRef)
	if err != nil {
		return nil, paymentdomain.Wrap(paymentdomain.ErrStorageUnavailable, err)
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) transition(
	ctx context.Context,
	providerOrderRef string,
	t domain.Transition,
	paymentRef string,
	signature *string,
) (*domain.Order, error) {
	providerOrderRef = strings.TrimSpace(providerOrderRef)
	if providerOrderRef == "" {
		return nil, domain.ErrMissingOrderRef
	}

	now := s.clock.Now()
	var result *domain.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affected, err := s.repo.ApplyTransition(ctx, tx, providerOrderRef, t, paymentRef, signature, now)
		if err != nil {
			return err
		}

		order, err := s.repo.FindByProviderRef(ctx, tx, providerOrderRef)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}
		if affected == 0 {
			result = order
			return nil
		}

		order.Transitioned = true
		if s.outbox != nil {
			if err := s.outbox.Enqueue(ctx, tx, domain.EventTypeOrderPaymentUpdated, domain.NewStatusUpdate(order, now)); err != nil {
				return err
			}
		}
		result = order
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, err
		}
		return nil, paymentdomain.Wrap(paymentdomain.ErrStorageUnavailable, err)
	}

	if !result.Transitioned {
		s.log.Debug("order already past pending",
			zap.String("provider_order_ref", providerOrderRef),
			zap.String("status", string(result.Status)),
			zap.Bool("terminal", domain.IsTerminal(result.Status, result.PaymentStatus)),
		)
		return result, nil
	}

	s.log.Info("order transitioned",
		zap.String("provider_order_ref", providerOrderRef),
		zap.String("order_number", result.OrderNumber),
		zap.String("status", string(result.Status)),
		zap.String("payment_status", string(result.PaymentStatus)),
	)
	s.obsMetrics.RecordOrderTransition(ctx, string(result.Status))
	if s.listener != nil {
		s.listener.Publish(domain.NewStatusUpdate(result, now))
	}
	return result, nil
}
