package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// TestEndpointsHandler serves deterministic mediation targets under
// /api/test/* for integration and load testing. Every endpoint accepts
// both GET and POST so it can be hit from a browser or used as a
// mediation callback.
//
// The faulty endpoint cycles through a fixed 10-request pattern: 6
// successes, 2 client errors, 2 server errors. Using a counter instead
// of a random source keeps runs reproducible.
type TestEndpointsHandler struct {
	mu           sync.Mutex
	counts       map[string]int64
	faultyCursor int64
	slowDelay    time.Duration
}

// NewTestEndpointsHandler creates the test endpoints handler
func NewTestEndpointsHandler() *TestEndpointsHandler {
	return &TestEndpointsHandler{
		counts:    make(map[string]int64),
		slowDelay: 2 * time.Second,
	}
}

// RegisterRoutes registers all test endpoints on a mux
func (h *TestEndpointsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/test/fast", h.Fast)
	mux.HandleFunc("/api/test/slow", h.Slow)
	mux.HandleFunc("/api/test/faulty", h.Faulty)
	mux.HandleFunc("/api/test/fail", h.Fail)
	mux.HandleFunc("/api/test/success", h.Success)
	mux.HandleFunc("/api/test/pending", h.Pending)
	mux.HandleFunc("/api/test/client-error", h.ClientError)
	mux.HandleFunc("/api/test/server-error", h.ServerError)
	mux.HandleFunc("/api/test/stats", h.Stats)
	mux.HandleFunc("/api/test/stats/reset", h.StatsReset)
}

// Fast responds 200 immediately. GET/POST /api/test/fast
func (h *TestEndpointsHandler) Fast(w http.ResponseWriter, r *http.Request) {
	h.record("fast")
	writeAck(w, http.StatusOK, true, "fast response")
}

// Slow responds 200 after a delay (default 2s, override with ?delayMs=N).
// GET/POST /api/test/slow
func (h *TestEndpointsHandler) Slow(w http.ResponseWriter, r *http.Request) {
	h.record("slow")

	delay := h.slowDelay
	if param := r.URL.Query().Get("delayMs"); param != "" {
		if ms, err := strconv.Atoi(param); err == nil && ms > 0 {
			delay = time.Duration(ms) * time.Millisecond
		}
	}

	select {
	case <-r.Context().Done():
		return
	case <-time.After(delay):
	}

	writeAck(w, http.StatusOK, true, "slow response")
}

// Faulty cycles a fixed 60/20/20 pattern of success, client error and
// server error. GET/POST /api/test/faulty
func (h *TestEndpointsHandler) Faulty(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	cursor := h.faultyCursor
	h.faultyCursor++
	h.counts["faulty"]++
	h.mu.Unlock()

	switch pos := cursor % 10; {
	case pos < 6:
		writeAck(w, http.StatusOK, true, "faulty: success")
	case pos < 8:
		writeTestError(w, http.StatusBadRequest, "faulty: client error")
	default:
		writeTestError(w, http.StatusInternalServerError, "faulty: server error")
	}
}

// Fail always responds 500. GET/POST /api/test/fail
func (h *TestEndpointsHandler) Fail(w http.ResponseWriter, r *http.Request) {
	h.record("fail")
	writeTestError(w, http.StatusInternalServerError, "always fails")
}

// Success always responds 200 with ack=true. GET/POST /api/test/success
func (h *TestEndpointsHandler) Success(w http.ResponseWriter, r *http.Request) {
	h.record("success")
	writeAck(w, http.StatusOK, true, "always succeeds")
}

// Pending responds 200 with ack=false so the caller defers the message.
// GET/POST /api/test/pending
func (h *TestEndpointsHandler) Pending(w http.ResponseWriter, r *http.Request) {
	h.record("pending")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"ack":          false,
		"message":      "not ready yet",
		"delaySeconds": 5,
	})
}

// ClientError always responds 400. GET/POST /api/test/client-error
func (h *TestEndpointsHandler) ClientError(w http.ResponseWriter, r *http.Request) {
	h.record("client-error")
	writeTestError(w, http.StatusBadRequest, "always a client error")
}

// ServerError always responds 500. GET/POST /api/test/server-error
func (h *TestEndpointsHandler) ServerError(w http.ResponseWriter, r *http.Request) {
	h.record("server-error")
	writeTestError(w, http.StatusInternalServerError, "always a server error")
}

// Stats returns per-endpoint hit counts. GET /api/test/stats
func (h *TestEndpointsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.mu.Lock()
	snapshot := make(map[string]int64, len(h.counts))
	for endpoint, count := range h.counts {
		snapshot[endpoint] = count
	}
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)
}

// StatsReset clears all hit counts and the faulty cycle position.
// POST /api/test/stats/reset
func (h *TestEndpointsHandler) StatsReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.mu.Lock()
	h.counts = make(map[string]int64)
	h.faultyCursor = 0
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "success"})
}

func (h *TestEndpointsHandler) record(endpoint string) {
	h.mu.Lock()
	h.counts[endpoint]++
	h.mu.Unlock()
}

func writeAck(w http.ResponseWriter, code int, ack bool, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"ack":     ack,
		"message": message,
	})
}

func writeTestError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
