// Package webhook delivers signed event payloads to tenant-configured HTTP
// endpoints. Each payload gets exactly one delivery attempt. Outcomes are
// handed to a StatusRecorder and are never retried automatically.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	SignatureHeader = "X-Signature"
	TimestampHeader = "X-Timestamp"
	UserAgent       = "IntakeWidget-Webhook/1.0"

	signaturePrefix = "sha256="
)

// SignPayload returns the hex HMAC-SHA256 of payload keyed by secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureValue is the X-Signature header value for payload.
func SignatureValue(payload []byte, secret string) string {
	return signaturePrefix + SignPayload(payload, secret)
}

// VerifySignature reports whether signature, with or without the "sha256="
// prefix, matches payload under secret. Receivers use it to authenticate
// deliveries.
func VerifySignature(payload []byte, secret, signature string) bool {
	signature = strings.TrimPrefix(signature, signaturePrefix)
	return hmac.Equal([]byte(SignPayload(payload, secret)), []byte(signature))
}
