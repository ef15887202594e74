// Package payments implements payment-webhook verification and the matching
// of payment notifications to pending conversation sessions.
package payments

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
)

// SignatureHeader is the HTTP header carrying the provider signature.
const SignatureHeader = "x-openpix-signature"

// ComputeSignature computes the base64 HMAC-SHA1 signature of a raw webhook
// body. This matches the provider's signing scheme; exported for tests and
// local tooling.
func ComputeSignature(secret string, rawBody []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(rawBody)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook signature against the exact raw request
// body using a constant-time comparison. A missing secret, body or signature
// fails verification.
func VerifySignature(secret string, rawBody []byte, signature string) bool {
	if secret == "" || len(rawBody) == 0 || signature == "" {
		return false
	}
	expected := ComputeSignature(secret, rawBody)
	return hmac.Equal([]byte(expected), []byte(signature))
}
