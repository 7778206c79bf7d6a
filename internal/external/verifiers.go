package external

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"

	stripe "github.com/stripe/stripe-go/v82"

	"huddle/internal/types"
)

// PaystackVerifier implements WebhookVerifier for Paystack. Paystack signs
// the raw request body with HMAC-SHA512 under the account's secret key and
// sends the hex digest in the X-Paystack-Signature header.
type PaystackVerifier struct{}

// Verify recomputes the HMAC-SHA512 digest of the payload and compares it to
// the header in constant time.
func (v *PaystackVerifier) Verify(payload []byte, header string, secret string) error {
	if header == "" {
		return types.NewAppError(
			types.ErrCodeAuthInvalidSignature,
			"missing Paystack signature header",
			nil,
		)
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(header)) {
		return types.NewAppError(
			types.ErrCodeAuthInvalidSignature,
			"Paystack webhook signature mismatch",
			nil,
		)
	}
	return nil
}

// StripeVerifier implements WebhookVerifier using stripe-go's webhook
// signature verification: HMAC-SHA256 with timestamp tolerance against the
// Stripe-Signature header.
type StripeVerifier struct{}

// Verify validates a Stripe webhook payload against the signature header and
// signing secret.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	if err := stripe.ValidatePayload(payload, header, secret); err != nil {
		return types.NewAppError(
			types.ErrCodeAuthInvalidSignature,
			"Stripe webhook signature mismatch",
			err,
		)
	}
	return nil
}
