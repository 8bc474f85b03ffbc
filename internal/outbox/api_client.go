package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// BatchSender sends batches of outbox items to the platform API.
// Satisfied by APIClient; tests substitute their own implementation.
type BatchSender interface {
	SendEventBatch(ctx context.Context, items []*OutboxItem) (*BatchResult, error)
	SendDispatchJobBatch(ctx context.Context, items []*OutboxItem) (*BatchResult, error)
	SendAuditLogBatch(ctx context.Context, items []*OutboxItem) (*BatchResult, error)
}

// APIClient sends batches of outbox items to the FlowCatalyst API.
// All calls go through a circuit breaker so a dead platform endpoint fails
// fast instead of burning the request timeout on every batch.
type APIClient struct {
	baseURL        string
	authToken      string
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
}

// APIClientConfig holds configuration for the API client
type APIClientConfig struct {
	// BaseURL is the FlowCatalyst API base URL (required)
	BaseURL string

	// AuthToken is the optional Bearer token for authentication
	AuthToken string

	// ConnectionTimeout is the connection timeout
	ConnectionTimeout time.Duration

	// RequestTimeout is the request timeout
	RequestTimeout time.Duration
}

// DefaultAPIClientConfig returns sensible defaults
func DefaultAPIClientConfig() *APIClientConfig {
	return &APIClientConfig{
		ConnectionTimeout: 10 * time.Second,
		RequestTimeout:    30 * time.Second,
	}
}

// NewAPIClient creates a new API client
func NewAPIClient(config *APIClientConfig) *APIClient {
	if config == nil {
		config = DefaultAPIClientConfig()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: config.ConnectionTimeout,
		}).DialContext,
	}

	client := &APIClient{
		baseURL:   config.BaseURL,
		authToken: config.AuthToken,
		httpClient: &http.Client{
			Timeout:   config.RequestTimeout,
			Transport: transport,
		},
	}

	client.circuitBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "outbox-api",
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("Outbox API circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	return client
}

// SendEventBatch sends a batch of events to the API
// POST /api/events/batch
func (c *APIClient) SendEventBatch(ctx context.Context, items []*OutboxItem) (*BatchResult, error) {
	return c.sendBatch(ctx, "/api/events/batch", items)
}

// SendDispatchJobBatch sends a batch of dispatch jobs to the API
// POST /api/dispatch/jobs/batch
func (c *APIClient) SendDispatchJobBatch(ctx context.Context, items []*OutboxItem) (*BatchResult, error) {
	return c.sendBatch(ctx, "/api/dispatch/jobs/batch", items)
}

// SendAuditLogBatch sends a batch of audit log entries to the API
// POST /api/audit-logs/batch
func (c *APIClient) SendAuditLogBatch(ctx context.Context, items []*OutboxItem) (*BatchResult, error) {
	return c.sendBatch(ctx, "/api/audit-logs/batch", items)
}

// batchEnvelope is the request body for the batch endpoints
type batchEnvelope struct {
	Items []json.RawMessage `json:"items"`
}

// httpStatusError carries a non-2xx response through the circuit breaker
type httpStatusError struct {
	statusCode int
	body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.statusCode, e.body)
}

// sendBatch sends a batch of items to the specified endpoint.
// On failure the returned BatchResult carries a per-item status so the
// caller can decide retry vs terminal, alongside the error itself.
func (c *APIClient) sendBatch(ctx context.Context, endpoint string, items []*OutboxItem) (*BatchResult, error) {
	if len(items) == 0 {
		return &BatchResult{}, nil
	}

	payloads := make([]json.RawMessage, len(items))
	for i, item := range items {
		payloads[i] = json.RawMessage(item.Payload)
	}

	body, err := json.Marshal(batchEnvelope{Items: payloads})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch: %w", err)
	}

	slog.Debug("Sending batch to API",
		"endpoint", endpoint,
		"batchSize", len(items))

	_, err = c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, c.doRequest(ctx, endpoint, body)
	})
	if err != nil {
		return c.failedResult(endpoint, items, err), err
	}

	slog.Debug("Batch sent successfully",
		"endpoint", endpoint,
		"batchSize", len(items))

	result := NewBatchResult()
	result.SuccessIDs = extractIDs(items)
	return result, nil
}

// doRequest performs a single batch POST. Non-2xx responses and transport
// errors are returned as errors so the circuit breaker counts them.
func (c *APIClient) doRequest(ctx context.Context, endpoint string, body []byte) error {
	url := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode >= 400 {
		return &httpStatusError{statusCode: resp.StatusCode, body: string(respBody)}
	}
	return nil
}

// failedResult builds a BatchResult marking every item with the status
// implied by the error.
func (c *APIClient) failedResult(endpoint string, items []*OutboxItem, err error) *BatchResult {
	status := classifyError(err)

	slog.Error("API batch request failed",
		"endpoint", endpoint,
		"batchSize", len(items),
		"status", status.String(),
		"error", err)

	result := NewBatchResult()
	result.Error = err
	for _, item := range items {
		result.FailedItems[item.ID] = status
	}
	return result
}

// classifyError maps a request error to an outbox status.
func classifyError(err error) OutboxStatus {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return StatusFromHTTPCode(statusErr.statusCode)
	}

	// Timeouts, connection failures, DNS errors, open breaker: the request
	// never completed, treat all of them as a gateway-level failure.
	return StatusGatewayError
}

// extractIDs extracts IDs from a slice of items
func extractIDs(items []*OutboxItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}

var _ BatchSender = (*APIClient)(nil)
