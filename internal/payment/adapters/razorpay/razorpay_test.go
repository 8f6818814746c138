package razorpay

import (
	"testing"

	"github.com/smallbiznis/paysync/internal/payment/domain"
)

func TestParseUsesOuterEventID(t *testing.T) {
	payload := []byte(`{"id":"evt_1","event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_abc"}}}}`)

	event, err := New().Parse(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.EventID != "evt_1" {
		t.Fatalf("expected event id evt_1, got %q", event.EventID)
	}
	if event.ProviderPaymentRef != "pay_1" {
		t.Fatalf("expected payment ref pay_1, got %q", event.ProviderPaymentRef)
	}
	if event.ProviderOrderRef != "order_abc" {
		t.Fatalf("expected order ref order_abc, got %q", event.ProviderOrderRef)
	}
	if string(event.RawPayload) != string(payload) {
		t.Fatalf("expected raw payload to be kept verbatim")
	}
}

func TestParseRejectsMalformedEnvelope(t *testing.T) {
	cases := map[string][]byte{
		"not_json":   []byte(`not-json`),
		"missing_id": []byte(`{"event":"payment.captured"}`),
		"blank_type": []byte(`{"id":"evt_1","event":"  "}`),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New().Parse(payload)
			kind, ok := domain.KindOf(err)
			if !ok || kind != domain.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestParseKeepsUnsupportedTypes(t *testing.T) {
	adapter := New()
	event, err := adapter.Parse([]byte(`{"id":"evt_2","event":"refund.created"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if adapter.Supports(event.EventType) {
		t.Fatalf("expected refund.created to be unsupported")
	}
	if !adapter.Supports(domain.EventTypePaymentFailed) {
		t.Fatalf("expected payment.failed to be supported")
	}
}
