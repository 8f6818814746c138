package webhook

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/paysync/internal/config"
	"github.com/smallbiznis/paysync/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/paysync/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/paysync/internal/order/domain"
	"github.com/smallbiznis/paysync/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
	"github.com/smallbiznis/paysync/internal/payment/signature"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	outcomeApplied   = "applied"
	outcomeDuplicate = "duplicate"
	outcomeIgnored   = "ignored"
	outcomeDeferred  = "deferred"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Adapters   *adapters.Registry
	Secrets    *config.SecretsHolder
	Events     paymentdomain.EventStore
	Orders     orderdomain.Service
	Failures   paymentdomain.FailureRecorder `optional:"true"`
	ObsMetrics *obsmetrics.Metrics           `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	adapters   *adapters.Registry
	secrets    *config.SecretsHolder
	events     paymentdomain.EventStore
	orders     orderdomain.Service
	failures   paymentdomain.FailureRecorder
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		adapters:   p.Adapters,
		secrets:    p.Secrets,
		events:     p.Events,
		orders:     p.Orders,
		failures:   p.Failures,
		obsMetrics: p.ObsMetrics,
	}
}

// IngestWebhook authenticates payload against the provider's webhook secret,
// records it once per event id and drives the order state machine. Nothing
// is written before the signature has been verified.
//
// Errors from the state machine are not returned: the event is already
// durable and the reconciler re-applies it.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*paymentdomain.WebhookResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		return nil, err
	}

	secret := s.secrets.WebhookSecret(provider)
	if secret == "" {
		return nil, paymentdomain.ErrSecretNotConfigured
	}
	sig := strings.TrimSpace(headers.Get(adapter.SignatureHeader()))
	if sig == "" {
		return nil, paymentdomain.ErrMissingSignature
	}

	log := logger.WithContext(ctx, s.log).With(zap.String("provider", provider))
	if err := signature.VerifyWebhook(payload, secret, sig); err != nil {
		log.Warn("webhook signature rejected", zap.String("signature", logger.MaskSignature(sig)))
		if s.failures != nil {
			s.failures.RecordFailure(ctx, provider, string(paymentdomain.SourceProviderWebhook))
		}
		return nil, err
	}

	event, err := adapter.Parse(payload)
	if err != nil {
		return nil, err
	}
	result := &paymentdomain.WebhookResult{EventID: event.EventID, EventType: event.EventType}
	log = log.With(zap.String("event_id", event.EventID), zap.String("event_type", event.EventType))

	seen, err := s.events.HasProcessed(ctx, paymentdomain.SourceProviderWebhook, event.EventID)
	if err != nil {
		return nil, err
	}
	if seen {
		result.Duplicate = true
		s.obsMetrics.RecordWebhookEvent(ctx, provider, event.EventType, outcomeDuplicate)
		return result, nil
	}

	record := &paymentdomain.EventRecord{
		Provider:           provider,
		Source:             paymentdomain.SourceProviderWebhook,
		EventID:            event.EventID,
		EventType:          event.EventType,
		ProviderOrderRef:   event.ProviderOrderRef,
		ProviderPaymentRef: event.ProviderPaymentRef,
		Payload:            datatypes.JSON(payload),
	}
	inserted, err := s.events.Record(ctx, record)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Lost the race to a concurrent delivery of the same event.
		result.Duplicate = true
		s.obsMetrics.RecordWebhookEvent(ctx, provider, event.EventType, outcomeDuplicate)
		return result, nil
	}

	if !adapter.Supports(event.EventType) {
		result.Ignored = true
		if err := s.events.MarkProcessed(ctx, record.ID); err != nil {
			log.Warn("mark ignored event processed", zap.Error(err))
		}
		s.obsMetrics.RecordWebhookEvent(ctx, provider, event.EventType, outcomeIgnored)
		return result, nil
	}

	order, err := s.orders.Apply(ctx, event.ProviderOrderRef, event.EventType, event.ProviderPaymentRef)
	if err != nil {
		log.Error("apply webhook event",
			zap.String("order_ref", event.ProviderOrderRef),
			zap.Error(err),
		)
		if markErr := s.events.MarkFailed(ctx, record.ID, failureReason(err)); markErr != nil {
			log.Warn("record failed apply attempt", zap.Error(markErr))
		}
		s.obsMetrics.RecordWebhookEvent(ctx, provider, event.EventType, outcomeDeferred)
		return result, nil
	}

	result.Applied = order.Transitioned
	if err := s.events.MarkProcessed(ctx, record.ID); err != nil {
		log.Warn("mark webhook event processed", zap.Error(err))
	}
	s.obsMetrics.RecordWebhookEvent(ctx, provider, event.EventType, outcomeApplied)
	return result, nil
}

func failureReason(err error) string {
	if msg := paymentdomain.MessageOf(err); msg != "" {
		return msg
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "apply failed"
}
