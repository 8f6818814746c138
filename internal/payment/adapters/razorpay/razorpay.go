package razorpay

import (
	"encoding/json"
	"strings"

	"github.com/smallbiznis/paysync/internal/payment/domain"
)

const (
	ProviderName    = "razorpay"
	SignatureHeader = "X-Razorpay-Signature"
)

type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Provider() string { return ProviderName }

func (a *Adapter) SignatureHeader() string { return SignatureHeader }

func (a *Adapter) Supports(eventType string) bool {
	switch eventType {
	case domain.EventTypePaymentCaptured, domain.EventTypePaymentFailed:
		return true
	default:
		return false
	}
}

// Parse extracts the dedup id and references from a webhook envelope. The
// outer envelope id is the event identifier; the payment entity id is only
// the payment reference stamped on the order.
func (a *Adapter) Parse(payload []byte) (*domain.PaymentEvent, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, domain.Wrap(domain.ErrInvalidPayload, err)
	}

	eventID := strings.TrimSpace(env.ID)
	eventType := strings.TrimSpace(env.Event)
	if eventID == "" || eventType == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.PaymentEvent{
		Provider:           ProviderName,
		EventID:            eventID,
		EventType:          eventType,
		ProviderOrderRef:   strings.TrimSpace(env.Payload.Payment.Entity.OrderID),
		ProviderPaymentRef: strings.TrimSpace(env.Payload.Payment.Entity.ID),
		RawPayload:         payload,
	}, nil
}

type envelope struct {
	ID      string          `json:"id"`
	Event   string          `json:"event"`
	Payload envelopePayload `json:"payload"`
}

type envelopePayload struct {
	Payment struct {
		Entity paymentEntity `json:"entity"`
	} `json:"payment"`
}

type paymentEntity struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}
