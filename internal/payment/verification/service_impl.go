package verification

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/smallbiznis/paysync/internal/config"
	"github.com/smallbiznis/paysync/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/paysync/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/paysync/internal/order/domain"
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
	"github.com/smallbiznis/paysync/internal/payment/signature"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	Secrets    *config.SecretsHolder
	Events     paymentdomain.EventStore
	Orders     orderdomain.Service
	Failures   paymentdomain.FailureRecorder `optional:"true"`
	ObsMetrics *obsmetrics.Metrics           `optional:"true"`
}

type Service struct {
	log             *zap.Logger
	defaultProvider string
	secrets         *config.SecretsHolder
	events          paymentdomain.EventStore
	orders          orderdomain.Service
	failures        paymentdomain.FailureRecorder
	obsMetrics      *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.VerificationService {
	return &Service{
		log:             p.Log.Named("payment.verification"),
		defaultProvider: strings.ToLower(strings.TrimSpace(p.Cfg.Payment.DefaultProvider)),
		secrets:         p.Secrets,
		events:          p.Events,
		orders:          p.Orders,
		failures:        p.Failures,
		obsMetrics:      p.ObsMetrics,
	}
}

type auditPayload struct {
	OrderRef   string `json:"order_ref"`
	PaymentRef string `json:"payment_ref"`
}

// VerifyPayment checks a client confirmation against the provider key secret
// and marks the order paid. The confirmation is then kept in the event log
// for audit; failing to record it does not fail the request.
func (s *Service) VerifyPayment(ctx context.Context, req paymentdomain.Confirmation) error {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = s.defaultProvider
	}
	orderRef := strings.TrimSpace(req.OrderRef)
	paymentRef := strings.TrimSpace(req.PaymentRef)
	sig := strings.TrimSpace(req.Signature)

	err := s.verify(ctx, provider, orderRef, paymentRef, sig)
	s.obsMetrics.RecordConfirmation(ctx, provider, outcome(err))
	return err
}

func (s *Service) verify(ctx context.Context, provider, orderRef, paymentRef, sig string) error {
	if orderRef == "" || paymentRef == "" || sig == "" {
		return paymentdomain.ErrMissingFields
	}

	secret := s.secrets.KeySecret(provider)
	if secret == "" {
		return paymentdomain.ErrSecretNotConfigured
	}

	log := logger.WithContext(ctx, s.log).With(
		zap.String("provider", provider),
		zap.String("order_ref", orderRef),
	)
	if err := signature.VerifyPayment(orderRef, paymentRef, secret, sig); err != nil {
		log.Warn("payment confirmation signature rejected", zap.String("signature", logger.MaskSignature(sig)))
		if s.failures != nil {
			s.failures.RecordFailure(ctx, provider, string(paymentdomain.SourceProviderConfirm))
		}
		return err
	}

	order, err := s.orders.ApplyConfirmed(ctx, orderRef, paymentRef, sig)
	if err != nil {
		log.Warn("apply payment confirmation", zap.Error(err))
		return err
	}
	log.Info("payment confirmed",
		zap.String("payment_ref", paymentRef),
		zap.Bool("transitioned", order.Transitioned),
	)

	s.audit(ctx, log, provider, orderRef, paymentRef)
	return nil
}

func (s *Service) audit(ctx context.Context, log *zap.Logger, provider, orderRef, paymentRef string) {
	payload, err := json.Marshal(auditPayload{OrderRef: orderRef, PaymentRef: paymentRef})
	if err != nil {
		log.Warn("encode confirmation audit", zap.Error(err))
		return
	}
	record := &paymentdomain.EventRecord{
		Provider:           provider,
		Source:             paymentdomain.SourceProviderConfirm,
		EventID:            paymentRef,
		EventType:          paymentdomain.EventTypePaymentConfirmed,
		ProviderOrderRef:   orderRef,
		ProviderPaymentRef: paymentRef,
		Payload:            datatypes.JSON(payload),
	}
	inserted, err := s.events.Record(ctx, record)
	if err != nil {
		log.Warn("record confirmation audit", zap.Error(err))
		return
	}
	if !inserted {
		return
	}
	if err := s.events.MarkProcessed(ctx, record.ID); err != nil {
		log.Warn("mark confirmation audit processed", zap.Error(err))
	}
}

func outcome(err error) string {
	if err == nil {
		return "verified"
	}
	kind, ok := paymentdomain.KindOf(err)
	if !ok {
		return "error"
	}
	return kind.String()
}
