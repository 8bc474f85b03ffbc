package dispatchjob

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

const (
	// SignatureHeader is the HTTP header name for the webhook signature
	SignatureHeader = "X-FLOWCATALYST-SIGNATURE"

	// TimestampHeader is the HTTP header name for the webhook timestamp
	TimestampHeader = "X-FLOWCATALYST-TIMESTAMP"

	// TimestampTolerance is how far a webhook timestamp may drift from
	// the receiver's clock before verification rejects it.
	TimestampTolerance = 5 * time.Minute
)

// SignedWebhookRequest contains all the data needed to send a signed webhook request
type SignedWebhookRequest struct {
	Payload     string
	Signature   string
	Timestamp   string
	BearerToken string
}

// WebhookSigner generates HMAC-SHA256 signatures for outbound webhook
// requests. The signature covers the epoch-millisecond timestamp
// concatenated with the raw payload, so the receiver can reproduce it and
// reject replays outside the timestamp tolerance.
type WebhookSigner struct {
	now func() time.Time
}

// NewWebhookSigner creates a new webhook signer
func NewWebhookSigner() *WebhookSigner {
	return &WebhookSigner{now: time.Now}
}

// Sign signs a webhook payload with the provided credentials.
//
// The signature is computed as: HMAC-SHA256(signingSecret, timestamp + payload)
// where timestamp is the current time in epoch milliseconds.
func (s *WebhookSigner) Sign(payload, authToken, signingSecret string) *SignedWebhookRequest {
	timestamp := strconv.FormatInt(s.now().UnixMilli(), 10)
	return s.SignAt(payload, authToken, signingSecret, timestamp)
}

// SignAt signs a webhook payload with an explicit timestamp string.
func (s *WebhookSigner) SignAt(payload, authToken, signingSecret, timestamp string) *SignedWebhookRequest {
	signature := hmacSHA256Hex(timestamp+payload, signingSecret)

	return &SignedWebhookRequest{
		Payload:     payload,
		Signature:   signature,
		Timestamp:   timestamp,
		BearerToken: authToken,
	}
}

// Verify verifies a webhook signature and checks that the timestamp is
// within the tolerance window. The signature comparison is constant-time.
func (s *WebhookSigner) Verify(payload, timestamp, signature, signingSecret string) bool {
	millis, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	drift := s.now().Sub(time.UnixMilli(millis))
	if drift < 0 {
		drift = -drift
	}
	if drift > TimestampTolerance {
		return false
	}

	expected := hmacSHA256Hex(timestamp+payload, signingSecret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// hmacSHA256Hex computes HMAC-SHA256 and returns lowercase hex
func hmacSHA256Hex(data, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
