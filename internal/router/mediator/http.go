// Package mediator provides HTTP webhook mediation
package mediator

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flowcatalyst/messagerouter/internal/common/metrics"
	"github.com/flowcatalyst/messagerouter/internal/router/breaker"
	"github.com/flowcatalyst/messagerouter/internal/router/pool"
)

const (
	signatureHeader   = "X-FLOWCATALYST-SIGNATURE"
	timestampHeader   = "X-FLOWCATALYST-TIMESTAMP"
	correlationHeader = "X-Correlation-ID"
	causationHeader   = "X-Causation-ID"
)

// HTTPVersion represents the HTTP protocol version to use
type HTTPVersion string

const (
	// HTTPVersion1 forces HTTP/1.1
	HTTPVersion1 HTTPVersion = "HTTP_1_1"
	// HTTPVersion2 enables HTTP/2 (default for production)
	HTTPVersion2 HTTPVersion = "HTTP_2"
)

// HTTPMediatorConfig configures the HTTP mediator
type HTTPMediatorConfig struct {
	// ConnectTimeout bounds TCP connection establishment
	ConnectTimeout time.Duration

	// HeadersTimeout bounds the wait for response headers
	HeadersTimeout time.Duration

	// RequestTimeout bounds the whole request including the body
	RequestTimeout time.Duration

	// HTTPVersion controls which HTTP version to use
	// HTTP_2 (default for production) or HTTP_1_1 (recommended for dev)
	HTTPVersion HTTPVersion

	// MaxRetries for timeouts and 5xx responses
	MaxRetries int

	// RetryDelay is the base backoff; attempt n waits RetryDelay * 2^n
	RetryDelay time.Duration

	// SigningSecret signs outbound request bodies; empty disables signing
	SigningSecret string

	// Breaker configures the per-target circuit breakers
	Breaker breaker.Config
}

// DefaultHTTPMediatorConfig returns sensible defaults for production.
// The request timeout is 15 minutes to support long-running webhooks.
func DefaultHTTPMediatorConfig() *HTTPMediatorConfig {
	return &HTTPMediatorConfig{
		ConnectTimeout: 5 * time.Second,
		HeadersTimeout: 30 * time.Second,
		RequestTimeout: 900 * time.Second,
		HTTPVersion:    HTTPVersion2,
		MaxRetries:     3,
		RetryDelay:     time.Second,
		Breaker:        breaker.DefaultConfig(),
	}
}

// DevHTTPMediatorConfig returns config suitable for development
func DevHTTPMediatorConfig() *HTTPMediatorConfig {
	cfg := DefaultHTTPMediatorConfig()
	cfg.HTTPVersion = HTTPVersion1
	return cfg
}

// HTTPMediator mediates messages via HTTP webhooks. Each mediation target
// URL gets its own circuit breaker; a rejection by an open circuit maps to
// ERROR_CONNECTION without touching the target.
type HTTPMediator struct {
	client        *http.Client
	breakers      *breaker.Registry
	maxRetries    int
	retryDelay    time.Duration
	signingSecret string
	sleep         func(time.Duration)
	now           func() time.Time
}

// NewHTTPMediator creates a new HTTP mediator
func NewHTTPMediator(cfg *HTTPMediatorConfig) *HTTPMediator {
	if cfg == nil {
		cfg = DefaultHTTPMediatorConfig()
	}

	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: cfg.HeadersTimeout,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	if cfg.HTTPVersion == HTTPVersion1 {
		// Force HTTP/1.1 by disabling HTTP/2
		transport.ForceAttemptHTTP2 = false
		transport.TLSNextProto = make(map[string]func(authority string, c *tls.Conn) http.RoundTripper)
		slog.Info("HTTP mediator configured", "version", "HTTP/1.1")
	} else {
		transport.ForceAttemptHTTP2 = true
		slog.Info("HTTP mediator configured", "version", "HTTP/2")
	}

	return &HTTPMediator{
		client: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
		},
		breakers:      breaker.NewRegistry(cfg.Breaker),
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		signingSecret: cfg.SigningSecret,
		sleep:         time.Sleep,
		now:           time.Now,
	}
}

// BreakerStats returns stats for every per-target circuit breaker.
func (m *HTTPMediator) BreakerStats() []breaker.Stats {
	return m.breakers.Snapshots()
}

// Breakers returns the per-target circuit breaker registry for
// monitoring and manual reset operations.
func (m *HTTPMediator) Breakers() *breaker.Registry {
	return m.breakers
}

// Process processes a message through HTTP mediation
func (m *HTTPMediator) Process(msg *pool.MessagePointer) *pool.MediationOutcome {
	if msg == nil {
		return &pool.MediationOutcome{
			Result: pool.MediationResultErrorConfig,
			Error:  errors.New("nil message"),
		}
	}

	targetURL := msg.MediationTarget
	if targetURL == "" {
		return &pool.MediationOutcome{
			Result: pool.MediationResultErrorConfig,
			Error:  errors.New("no target URL"),
		}
	}

	cb := m.breakers.Get(targetURL)
	if err := cb.Allow(); err != nil {
		slog.Warn("Circuit breaker open",
			"messageId", msg.ID,
			"target", targetURL)
		metrics.MediatorCircuitBreakerState.WithLabelValues(targetURL).Set(float64(metrics.CircuitBreakerOpen))
		return &pool.MediationOutcome{
			Result: pool.MediationResultErrorConnection,
			Error:  err,
		}
	}

	outcome := m.executeWithRetry(msg)
	m.recordBreakerOutcome(cb, targetURL, outcome)
	return outcome
}

// recordBreakerOutcome feeds the mediation result into the target's breaker.
// Config errors count as successful calls: the target answered, the request
// was just wrong.
func (m *HTTPMediator) recordBreakerOutcome(cb *breaker.Breaker, targetURL string, outcome *pool.MediationOutcome) {
	switch outcome.Result {
	case pool.MediationResultErrorProcess, pool.MediationResultErrorConnection:
		cb.RecordFailure()
	default:
		cb.RecordSuccess()
	}

	var stateValue float64
	switch cb.State() {
	case breaker.StateClosed:
		stateValue = float64(metrics.CircuitBreakerClosed)
	case breaker.StateOpen:
		stateValue = float64(metrics.CircuitBreakerOpen)
		metrics.MediatorCircuitBreakerTrips.WithLabelValues(targetURL).Inc()
	case breaker.StateHalfOpen:
		stateValue = float64(metrics.CircuitBreakerHalfOpen)
	}
	metrics.MediatorCircuitBreakerState.WithLabelValues(targetURL).Set(stateValue)
}

// executeWithRetry executes the HTTP request, retrying only timeouts and
// 5xx responses with exponential backoff.
func (m *HTTPMediator) executeWithRetry(msg *pool.MessagePointer) *pool.MediationOutcome {
	var lastOutcome *pool.MediationOutcome

	attempts := m.maxRetries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		outcome := m.executeOnce(msg, attempt)
		lastOutcome = outcome

		if outcome.Result != pool.MediationResultErrorProcess {
			return outcome
		}

		if attempt < attempts-1 {
			backoff := m.retryDelay * time.Duration(1<<uint(attempt))
			slog.Info("Retrying after backoff",
				"messageId", msg.ID,
				"attempt", attempt+1,
				"backoff", backoff)
			m.sleep(backoff)
		}
	}

	return lastOutcome
}

// executeOnce executes a single HTTP request
func (m *HTTPMediator) executeOnce(msg *pool.MessagePointer, attempt int) *pool.MediationOutcome {
	targetURL := msg.MediationTarget

	timeout := m.client.Timeout
	if msg.TimeoutSeconds > 0 {
		timeout = time.Duration(msg.TimeoutSeconds) * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	body := msg.Payload
	if len(body) == 0 {
		body = []byte(fmt.Sprintf(`{"messageId":%q}`, msg.ID))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, strings.NewReader(string(body)))
	if err != nil {
		return &pool.MediationOutcome{
			Result: pool.MediationResultErrorConfig,
			Error:  fmt.Errorf("failed to create request: %w", err),
		}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if m.signingSecret != "" {
		timestamp := m.now().UTC().Truncate(time.Millisecond).Format(time.RFC3339Nano)
		req.Header.Set(timestampHeader, timestamp)
		req.Header.Set(signatureHeader, signBody(m.signingSecret, timestamp, body))
	}

	if msg.CorrelationID != "" {
		req.Header.Set(correlationHeader, msg.CorrelationID)
	}
	if msg.CausationID != "" {
		req.Header.Set(causationHeader, msg.CausationID)
	}

	if msg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+msg.AuthToken)
	}

	for k, v := range msg.Headers {
		req.Header.Set(k, v)
	}

	slog.Debug("Executing HTTP request",
		"messageId", msg.ID,
		"target", targetURL,
		"attempt", attempt)

	startTime := time.Now()
	resp, err := m.client.Do(req)
	duration := time.Since(startTime)

	metrics.MediatorHTTPDuration.WithLabelValues(targetURL).Observe(duration.Seconds())

	if err != nil {
		metrics.MediatorHTTPRequests.WithLabelValues("error", "POST").Inc()
		return m.handleError(msg, err)
	}
	defer resp.Body.Close()

	metrics.MediatorHTTPRequests.WithLabelValues(strconv.Itoa(resp.StatusCode), "POST").Inc()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024)) // Limit to 64KB

	slog.Debug("HTTP response received",
		"messageId", msg.ID,
		"statusCode", resp.StatusCode,
		"bodyLen", len(respBody),
		"duration", duration)

	return m.handleResponse(msg, resp.StatusCode, respBody)
}

// signBody computes the hex HMAC-SHA256 of timestamp + body.
func signBody(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// handleError maps transport errors: timeouts are retryable process
// errors, everything else at the network layer is a connection error.
func (m *HTTPMediator) handleError(msg *pool.MessagePointer, err error) *pool.MediationOutcome {
	if errors.Is(err, context.DeadlineExceeded) {
		slog.Warn("Request timeout",
			"messageId", msg.ID,
			"error", err)
		return &pool.MediationOutcome{
			Result: pool.MediationResultErrorProcess,
			Error:  err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		slog.Warn("Network timeout",
			"messageId", msg.ID,
			"error", err)
		return &pool.MediationOutcome{
			Result: pool.MediationResultErrorProcess,
			Error:  err,
		}
	}

	slog.Warn("Connection error",
		"messageId", msg.ID,
		"error", err)
	return &pool.MediationOutcome{
		Result: pool.MediationResultErrorConnection,
		Error:  err,
	}
}

// handleResponse maps the HTTP status and body to a mediation outcome
func (m *HTTPMediator) handleResponse(msg *pool.MessagePointer, statusCode int, body []byte) *pool.MediationOutcome {
	// 2xx responses
	if statusCode >= 200 && statusCode < 300 {
		ack, delay := parseAckResponse(body)

		if ack != nil && !*ack {
			// ack=false: accepted but not ready, defer via nack delay
			slog.Info("Response ack=false, deferring",
				"messageId", msg.ID,
				"statusCode", statusCode)
			return &pool.MediationOutcome{
				Result:      pool.MediationResultDeferred,
				StatusCode:  statusCode,
				ResponseAck: ack,
				Delay:       delay,
			}
		}

		return &pool.MediationOutcome{
			Result:     pool.MediationResultSuccess,
			StatusCode: statusCode,
		}
	}

	// 4xx client errors - configuration issue, never retried
	if statusCode >= 400 && statusCode < 500 {
		slog.Warn("Client error - will not retry",
			"messageId", msg.ID,
			"statusCode", statusCode)
		return &pool.MediationOutcome{
			Result:     pool.MediationResultErrorConfig,
			StatusCode: statusCode,
		}
	}

	// 5xx server errors - transient, retryable
	slog.Warn("Server error - will retry",
		"messageId", msg.ID,
		"statusCode", statusCode)
	return &pool.MediationOutcome{
		Result:     pool.MediationResultErrorProcess,
		StatusCode: statusCode,
	}
}

// parseAckResponse parses the ack and delaySeconds fields from a JSON body
func parseAckResponse(body []byte) (*bool, *time.Duration) {
	if len(body) == 0 {
		return nil, nil
	}

	var response struct {
		Ack          *bool `json:"ack"`
		DelaySeconds *int  `json:"delaySeconds"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, nil
	}

	var delay *time.Duration
	if response.DelaySeconds != nil && *response.DelaySeconds > 0 {
		d := time.Duration(*response.DelaySeconds) * time.Second
		delay = &d
	}
	return response.Ack, delay
}
