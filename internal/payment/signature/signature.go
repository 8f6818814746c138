// Package signature verifies provider-issued HMAC-SHA256 signatures.
//
// Two schemes are supported. Push deliveries are signed over the exact raw
// request body with the webhook secret. Client confirmations are signed over
// "<order_ref>|<payment_ref>" with the API key secret.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/smallbiznis/paysync/internal/payment/domain"
)

const confirmSeparator = "|"

func SignWebhook(payload []byte, secret string) string {
	return hex.EncodeToString(digest([]byte(secret), payload))
}

func SignPayment(orderRef, paymentRef, secret string) string {
	return hex.EncodeToString(digest([]byte(secret), confirmMessage(orderRef, paymentRef)))
}

// VerifyWebhook checks a hex digest computed over payload. The payload must be
// the bytes read off the wire, not a re-encoded form.
func VerifyWebhook(payload []byte, secret, signature string) error {
	return verify(payload, secret, signature)
}

func VerifyPayment(orderRef, paymentRef, secret, signature string) error {
	return verify(confirmMessage(orderRef, paymentRef), secret, signature)
}

func verify(message []byte, secret, signature string) error {
	if strings.TrimSpace(secret) == "" {
		return domain.ErrSecretNotConfigured
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return domain.ErrMissingSignature
	}

	presented, err := hex.DecodeString(signature)
	if err != nil {
		return domain.ErrInvalidSignature
	}
	if !hmac.Equal(presented, digest([]byte(secret), message)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func confirmMessage(orderRef, paymentRef string) []byte {
	return []byte(orderRef + confirmSeparator + paymentRef)
}

func digest(key, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(message)
	return mac.Sum(nil)
}
