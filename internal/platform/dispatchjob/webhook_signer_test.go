package dispatchjob

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestWebhookSigner_Sign(t *testing.T) {
	signer := NewWebhookSigner()

	payload := `{"event":"test","data":{"id":"123"}}`
	authToken := "test-bearer-token"
	signingSecret := "my-secret-key"

	result := signer.Sign(payload, authToken, signingSecret)

	if result.Payload != payload {
		t.Errorf("expected payload %q, got %q", payload, result.Payload)
	}
	if result.BearerToken != authToken {
		t.Errorf("expected bearer token %q, got %q", authToken, result.BearerToken)
	}
	if result.Signature == "" {
		t.Error("expected signature to be set")
	}

	// Timestamp is epoch milliseconds
	millis, err := strconv.ParseInt(result.Timestamp, 10, 64)
	if err != nil {
		t.Fatalf("expected epoch-millis timestamp, got %q: %v", result.Timestamp, err)
	}
	if drift := time.Since(time.UnixMilli(millis)); drift < 0 || drift > time.Minute {
		t.Errorf("timestamp drift too large: %v", drift)
	}

	// Signature is lowercase hex
	if strings.ToLower(result.Signature) != result.Signature {
		t.Error("expected signature to be lowercase hex")
	}
	if len(result.Signature) != 64 { // SHA256 produces 32 bytes = 64 hex chars
		t.Errorf("expected 64-char hex signature, got %d chars", len(result.Signature))
	}
}

// TestWebhookSigner_KnownVector pins the signature for a fixed timestamp
// so the wire format cannot drift silently.
func TestWebhookSigner_KnownVector(t *testing.T) {
	signer := NewWebhookSigner()

	payload := `{"test":true}`
	secret := "my-secret"
	timestamp := "1704067200000"

	signed := signer.SignAt(payload, "", secret, timestamp)

	want := "ad52538fff8f88408eaffba2a18b1a1dc4c32fd28af7faf0f4bc75784071804a"
	if signed.Signature != want {
		t.Errorf("signature = %s, want %s", signed.Signature, want)
	}
}

func TestWebhookSigner_Verify(t *testing.T) {
	signer := NewWebhookSigner()

	payload := `{"event":"test"}`
	signingSecret := "my-secret-key"

	signed := signer.Sign(payload, "token", signingSecret)

	if !signer.Verify(payload, signed.Timestamp, signed.Signature, signingSecret) {
		t.Error("expected valid signature to verify")
	}

	if signer.Verify(payload, signed.Timestamp, signed.Signature, "wrong-secret") {
		t.Error("expected verification to fail with wrong secret")
	}

	if signer.Verify("tampered", signed.Timestamp, signed.Signature, signingSecret) {
		t.Error("expected verification to fail with tampered payload")
	}

	if signer.Verify(payload, "1704067200000", signed.Signature, signingSecret) {
		t.Error("expected verification to fail with tampered timestamp")
	}

	if signer.Verify(payload, signed.Timestamp, "invalidsignature", signingSecret) {
		t.Error("expected verification to fail with tampered signature")
	}
}

// TestWebhookSigner_TimestampWindow verifies stale timestamps are rejected
// even when the signature itself is valid.
func TestWebhookSigner_TimestampWindow(t *testing.T) {
	signer := NewWebhookSigner()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return base }

	payload := `{"event":"test"}`
	secret := "my-secret-key"
	signed := signer.Sign(payload, "", secret)

	// Within tolerance
	signer.now = func() time.Time { return base.Add(4 * time.Minute) }
	if !signer.Verify(payload, signed.Timestamp, signed.Signature, secret) {
		t.Error("expected signature within tolerance to verify")
	}

	// Outside tolerance
	signer.now = func() time.Time { return base.Add(6 * time.Minute) }
	if signer.Verify(payload, signed.Timestamp, signed.Signature, secret) {
		t.Error("expected stale timestamp to be rejected")
	}

	// Future timestamps outside tolerance are also rejected
	signer.now = func() time.Time { return base.Add(-6 * time.Minute) }
	if signer.Verify(payload, signed.Timestamp, signed.Signature, secret) {
		t.Error("expected future timestamp to be rejected")
	}
}

func TestSignatureHeader_Constants(t *testing.T) {
	if SignatureHeader != "X-FLOWCATALYST-SIGNATURE" {
		t.Errorf("expected SignatureHeader %q, got %q", "X-FLOWCATALYST-SIGNATURE", SignatureHeader)
	}
	if TimestampHeader != "X-FLOWCATALYST-TIMESTAMP" {
		t.Errorf("expected TimestampHeader %q, got %q", "X-FLOWCATALYST-TIMESTAMP", TimestampHeader)
	}
}
