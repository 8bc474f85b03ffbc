package mediator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowcatalyst/messagerouter/internal/router/breaker"
	"github.com/flowcatalyst/messagerouter/internal/router/pool"
)

func newTestMediator(cfg *HTTPMediatorConfig) *HTTPMediator {
	m := NewHTTPMediator(cfg)
	m.sleep = func(time.Duration) {} // no real backoff waits in tests
	return m
}

func testConfig() *HTTPMediatorConfig {
	return &HTTPMediatorConfig{
		ConnectTimeout: time.Second,
		HeadersTimeout: 2 * time.Second,
		RequestTimeout: 5 * time.Second,
		MaxRetries:     3,
		RetryDelay:     10 * time.Millisecond,
		Breaker:        breaker.DefaultConfig(),
	}
}

func TestNewHTTPMediator(t *testing.T) {
	mediator := NewHTTPMediator(nil)

	if mediator == nil {
		t.Fatal("NewHTTPMediator returned nil")
	}
	if mediator.client == nil {
		t.Error("HTTP client is nil")
	}
	if mediator.maxRetries != 3 {
		t.Errorf("Expected maxRetries 3, got %d", mediator.maxRetries)
	}
}

func TestHTTPMediatorProcess_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]bool{"ack": true})
	}))
	defer server.Close()

	mediator := newTestMediator(testConfig())

	msg := &pool.MessagePointer{
		ID:              "test-1",
		MediationTarget: server.URL,
		Payload:         []byte(`{"test": true}`),
	}

	outcome := mediator.Process(msg)

	if outcome.Result != pool.MediationResultSuccess {
		t.Errorf("Expected Success, got %v", outcome.Result)
	}
}

func TestHTTPMediatorProcess_AckFalseDefers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ack":          false,
			"delaySeconds": 30,
		})
	}))
	defer server.Close()

	mediator := newTestMediator(testConfig())

	msg := &pool.MessagePointer{
		ID:              "test-1",
		MediationTarget: server.URL,
		Payload:         []byte(`{"test": true}`),
	}

	outcome := mediator.Process(msg)

	if outcome.Result != pool.MediationResultDeferred {
		t.Errorf("Expected Deferred for ack=false, got %v", outcome.Result)
	}
	if outcome.Delay == nil {
		t.Fatal("Expected delay to be set")
	}
	if *outcome.Delay != 30*time.Second {
		t.Errorf("Expected 30s delay, got %v", *outcome.Delay)
	}
}

func TestHTTPMediatorProcess_ClientErrorNotRetried(t *testing.T) {
	var callCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	mediator := newTestMediator(testConfig())

	msg := &pool.MessagePointer{
		ID:              "test-1",
		MediationTarget: server.URL,
		Payload:         []byte(`{"test": true}`),
	}

	outcome := mediator.Process(msg)

	if outcome.Result != pool.MediationResultErrorConfig {
		t.Errorf("Expected ErrorConfig for 400, got %v", outcome.Result)
	}
	if outcome.StatusCode != 400 {
		t.Errorf("Expected status code 400, got %d", outcome.StatusCode)
	}
	if callCount.Load() != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", callCount.Load())
	}
}

func TestHTTPMediatorProcess_ServerErrorRetried(t *testing.T) {
	var callCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	mediator := newTestMediator(testConfig())

	msg := &pool.MessagePointer{
		ID:              "test-1",
		MediationTarget: server.URL,
		Payload:         []byte(`{"test": true}`),
	}

	outcome := mediator.Process(msg)

	if outcome.Result != pool.MediationResultErrorProcess {
		t.Errorf("Expected ErrorProcess for 503, got %v", outcome.Result)
	}
	if callCount.Load() != 3 {
		t.Errorf("Expected 3 attempts with retries=3, got %d", callCount.Load())
	}
}

func TestHTTPMediatorProcess_RetryThenSuccess(t *testing.T) {
	var callCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if callCount.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]bool{"ack": true})
	}))
	defer server.Close()

	mediator := newTestMediator(testConfig())

	msg := &pool.MessagePointer{
		ID:              "test-1",
		MediationTarget: server.URL,
		Payload:         []byte(`{"test": true}`),
	}

	outcome := mediator.Process(msg)

	if outcome.Result != pool.MediationResultSuccess {
		t.Errorf("Expected Success after retry, got %v", outcome.Result)
	}
	if callCount.Load() != 2 {
		t.Errorf("Expected 2 attempts, got %d", callCount.Load())
	}
}

func TestHTTPMediatorProcess_ExponentialBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	mediator := NewHTTPMediator(testConfig())
	var backoffs []time.Duration
	mediator.sleep = func(d time.Duration) { backoffs = append(backoffs, d) }

	msg := &pool.MessagePointer{
		ID:              "test-1",
		MediationTarget: server.URL,
		Payload:         []byte(`{"test": true}`),
	}
	mediator.Process(msg)

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
	if len(backoffs) != len(want) {
		t.Fatalf("Backoff count = %d, want %d", len(backoffs), len(want))
	}
	for i := range want {
		if backoffs[i] != want[i] {
			t.Errorf("Backoff %d = %v, want %v", i, backoffs[i], want[i])
		}
	}
}

func TestHTTPMediatorProcess_NilMessage(t *testing.T) {
	mediator := newTestMediator(nil)

	outcome := mediator.Process(nil)

	if outcome.Result != pool.MediationResultErrorConfig {
		t.Errorf("Expected ErrorConfig for nil message, got %v", outcome.Result)
	}
}

func TestHTTPMediatorProcess_NoTargetURL(t *testing.T) {
	mediator := newTestMediator(nil)

	msg := &pool.MessagePointer{
		ID:              "test-1",
		MediationTarget: "",
		Payload:         []byte(`{"test": true}`),
	}

	outcome := mediator.Process(msg)

	if outcome.Result != pool.MediationResultErrorConfig {
		t.Errorf("Expected ErrorConfig for empty target URL, got %v", outcome.Result)
	}
}

func TestHTTPMediatorProcess_ConnectionRefused(t *testing.T) {
	mediator := newTestMediator(testConfig())

	msg := &pool.MessagePointer{
		ID:              "test-1",
		MediationTarget: "http://localhost:59999", // Unlikely to be in use
		Payload:         []byte(`{"test": true}`),
	}

	outcome := mediator.Process(msg)

	if outcome.Result != pool.MediationResultErrorConnection {
		t.Errorf("Expected ErrorConnection for connection refused, got %v", outcome.Result)
	}
}

func TestHTTPMediatorProcess_SignatureAndTracingHeaders(t *testing.T) {
	var receivedHeaders http.Header
	var receivedBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedHeaders = r.Header.Clone()
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		receivedBody = buf
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.SigningSecret = "test-signing-secret"
	mediator := newTestMediator(cfg)

	msg := &pool.MessagePointer{
		ID:              "test-1",
		MediationTarget: server.URL,
		Payload:         []byte(`{"test": true}`),
		AuthToken:       "token123",
		CorrelationID:   "corr-1",
		CausationID:     "cause-1",
		Headers: map[string]string{
			"X-Custom-Header": "test-value",
		},
	}

	mediator.Process(msg)

	if receivedHeaders.Get("X-Correlation-ID") != "corr-1" {
		t.Errorf("X-Correlation-ID = %q, want corr-1", receivedHeaders.Get("X-Correlation-ID"))
	}
	if receivedHeaders.Get("X-Causation-ID") != "cause-1" {
		t.Errorf("X-Causation-ID = %q, want cause-1", receivedHeaders.Get("X-Causation-ID"))
	}
	if receivedHeaders.Get("Authorization") != "Bearer token123" {
		t.Errorf("Authorization = %q", receivedHeaders.Get("Authorization"))
	}
	if receivedHeaders.Get("X-Custom-Header") != "test-value" {
		t.Errorf("X-Custom-Header = %q", receivedHeaders.Get("X-Custom-Header"))
	}
	if receivedHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", receivedHeaders.Get("Content-Type"))
	}

	timestamp := receivedHeaders.Get("X-FLOWCATALYST-TIMESTAMP")
	if timestamp == "" {
		t.Fatal("Missing timestamp header")
	}
	if _, err := time.Parse(time.RFC3339Nano, timestamp); err != nil {
		t.Errorf("Timestamp not ISO-8601: %q", timestamp)
	}

	signature := receivedHeaders.Get("X-FLOWCATALYST-SIGNATURE")
	expected := signBody("test-signing-secret", timestamp, receivedBody)
	if signature != expected {
		t.Errorf("Signature = %s, want %s", signature, expected)
	}
}

func TestHTTPMediatorProcess_CircuitOpenRejects(t *testing.T) {
	var callCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.Breaker = breaker.Config{
		FailureRateThreshold:     0.5,
		MinimumCalls:             3,
		WaitDuration:             time.Minute,
		PermittedCallsInHalfOpen: 1,
		SlidingWindowSize:        10,
	}
	mediator := newTestMediator(cfg)

	msg := &pool.MessagePointer{
		ID:              "test-1",
		MediationTarget: server.URL,
		Payload:         []byte(`{"test": true}`),
	}

	// Three failures trip the per-target breaker
	for i := 0; i < 3; i++ {
		mediator.Process(msg)
	}
	tripped := callCount.Load()

	outcome := mediator.Process(msg)
	if outcome.Result != pool.MediationResultErrorConnection {
		t.Errorf("Expected ErrorConnection while circuit open, got %v", outcome.Result)
	}
	if callCount.Load() != tripped {
		t.Error("Open circuit must not invoke the target")
	}

	stats := mediator.BreakerStats()
	if len(stats) != 1 {
		t.Fatalf("Expected 1 breaker, got %d", len(stats))
	}
	if stats[0].State != "OPEN" {
		t.Errorf("Breaker state = %s, want OPEN", stats[0].State)
	}
	if stats[0].RejectedCalls != 1 {
		t.Errorf("RejectedCalls = %d, want 1", stats[0].RejectedCalls)
	}
}

func BenchmarkHTTPMediatorProcess(b *testing.B) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	mediator := newTestMediator(testConfig())

	msg := &pool.MessagePointer{
		ID:              "bench",
		MediationTarget: server.URL,
		Payload:         []byte(`{"test": true}`),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mediator.Process(msg)
	}
}
