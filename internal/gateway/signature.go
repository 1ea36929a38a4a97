package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"booking-service/internal/fault"
)

// VerifyPaymentSignature checks the signature the customer's browser submits
// after checkout: HMAC-SHA256 over "orderID|paymentID" with the order secret.
func VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature, orderSecret string) error {
	expected := signPayload([]byte(gatewayOrderID+"|"+gatewayPaymentID), orderSecret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fault.New(fault.KindSignatureMismatch,
			"payment signature mismatch for order %s", gatewayOrderID)
	}
	return nil
}

// VerifyWebhookSignature checks a webhook delivery against the raw, unparsed
// body. The webhook secret is distinct from the order secret.
func VerifyWebhookSignature(rawBody []byte, signature, webhookSecret string) error {
	expected := signPayload(rawBody, webhookSecret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fault.New(fault.KindSignatureMismatch, "webhook signature mismatch")
	}
	return nil
}

func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
