package signature

import (
	"errors"
	"strings"
	"testing"

	"github.com/smallbiznis/paysync/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyWebhookAcceptsExactBody(t *testing.T) {
	body := []byte(`{"id":"evt_1","event":"payment.captured"}`)
	sig := SignWebhook(body, "whsec")

	require.NoError(t, VerifyWebhook(body, "whsec", sig))
	require.NoError(t, VerifyWebhook(body, "whsec", strings.ToUpper(sig)))
}

func TestVerifyWebhookRejectsReencodedBody(t *testing.T) {
	body := []byte(`{"id":"evt_1","event":"payment.captured"}`)
	sig := SignWebhook(body, "whsec")

	reencoded := []byte(`{"id": "evt_1", "event": "payment.captured"}`)
	err := VerifyWebhook(reencoded, "whsec", sig)
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestVerifyWebhookFailsClosed(t *testing.T) {
	body := []byte(`{}`)
	valid := SignWebhook(body, "whsec")

	cases := []struct {
		name      string
		secret    string
		signature string
		kind      domain.ErrorKind
	}{
		{name: "missing_secret", secret: "", signature: valid, kind: domain.KindConfiguration},
		{name: "blank_secret", secret: "   ", signature: valid, kind: domain.KindConfiguration},
		{name: "missing_signature", secret: "whsec", signature: "", kind: domain.KindValidation},
		{name: "not_hex", secret: "whsec", signature: "zz-not-hex", kind: domain.KindAuthentication},
		{name: "wrong_secret", secret: "other", signature: valid, kind: domain.KindAuthentication},
		{name: "truncated", secret: "whsec", signature: valid[:10], kind: domain.KindAuthentication},
		{name: "deadbeef", secret: "whsec", signature: "deadbeef", kind: domain.KindAuthentication},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := VerifyWebhook(body, tc.secret, tc.signature)
			require.Error(t, err)
			kind, ok := domain.KindOf(err)
			require.True(t, ok)
			assert.Equal(t, tc.kind, kind)
		})
	}
}

func TestVerifyPaymentUsesPipeSeparatedRefs(t *testing.T) {
	sig := SignPayment("order_abc", "pay_1", "key_secret")
	require.NoError(t, VerifyPayment("order_abc", "pay_1", "key_secret", sig))

	assert.ErrorIs(t, VerifyPayment("order_abd", "pay_1", "key_secret", sig), domain.ErrInvalidSignature)
	assert.ErrorIs(t, VerifyPayment("order_abc", "pay_2", "key_secret", sig), domain.ErrInvalidSignature)
	assert.ErrorIs(t, VerifyPayment("order_abc|", "pay_1", "key_secret", sig), domain.ErrInvalidSignature)

	// "order_abc" + "|" + "pay_1" is the only accepted message layout.
	assert.Equal(t, SignWebhook([]byte("order_abc|pay_1"), "key_secret"), sig)
	assert.NotEqual(t, SignWebhook([]byte("order_abc | pay_1"), "key_secret"), sig)
}

func TestVerifyPaymentDoesNotAcceptWebhookSecret(t *testing.T) {
	sig := SignPayment("order_abc", "pay_1", "whsec")
	assert.ErrorIs(t, VerifyPayment("order_abc", "pay_1", "key_secret", sig), domain.ErrInvalidSignature)
}

func TestVerifyPaymentErrorNeverContainsSecret(t *testing.T) {
	err := VerifyPayment("order_abc", "pay_1", "super-secret-value", "deadbeef")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "super-secret-value")
}
