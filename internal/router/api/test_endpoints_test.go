package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func hitEndpoint(h http.HandlerFunc, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestFixedOutcomeEndpoints(t *testing.T) {
	handler := NewTestEndpointsHandler()

	tests := []struct {
		name     string
		endpoint http.HandlerFunc
		wantCode int
	}{
		{"fast", handler.Fast, http.StatusOK},
		{"success", handler.Success, http.StatusOK},
		{"fail", handler.Fail, http.StatusInternalServerError},
		{"client-error", handler.ClientError, http.StatusBadRequest},
		{"server-error", handler.ServerError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, method := range []string{http.MethodGet, http.MethodPost} {
				w := hitEndpoint(tt.endpoint, method, "/api/test/"+tt.name)
				if w.Code != tt.wantCode {
					t.Errorf("%s %s = %d, want %d", method, tt.name, w.Code, tt.wantCode)
				}
			}
		})
	}
}

func TestFaultyCycle(t *testing.T) {
	handler := NewTestEndpointsHandler()

	// Two full cycles: positions 0-5 succeed, 6-7 client error, 8-9 server error
	var codes []int
	for i := 0; i < 20; i++ {
		w := hitEndpoint(handler.Faulty, http.MethodPost, "/api/test/faulty")
		codes = append(codes, w.Code)
	}

	counts := map[int]int{}
	for _, code := range codes {
		counts[code]++
	}
	if counts[http.StatusOK] != 12 || counts[http.StatusBadRequest] != 4 || counts[http.StatusInternalServerError] != 4 {
		t.Errorf("outcome distribution = %v, want 12/4/4", counts)
	}

	// The pattern must be position-exact, not merely proportional
	for i, code := range codes {
		var want int
		switch pos := i % 10; {
		case pos < 6:
			want = http.StatusOK
		case pos < 8:
			want = http.StatusBadRequest
		default:
			want = http.StatusInternalServerError
		}
		if code != want {
			t.Fatalf("request %d = %d, want %d", i, code, want)
		}
	}
}

func TestPendingReturnsNackResponse(t *testing.T) {
	handler := NewTestEndpointsHandler()

	w := hitEndpoint(handler.Pending, http.MethodPost, "/api/test/pending")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Ack          *bool `json:"ack"`
		DelaySeconds int   `json:"delaySeconds"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Ack == nil || *resp.Ack {
		t.Error("pending must respond ack=false")
	}
	if resp.DelaySeconds != 5 {
		t.Errorf("delaySeconds = %d, want 5", resp.DelaySeconds)
	}
}

func TestSlowHonorsDelayParam(t *testing.T) {
	handler := NewTestEndpointsHandler()

	start := time.Now()
	w := hitEndpoint(handler.Slow, http.MethodGet, "/api/test/slow?delayMs=20")
	elapsed := time.Since(start)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if elapsed < 20*time.Millisecond {
		t.Errorf("responded after %v, want at least 20ms", elapsed)
	}
}

func TestStatsTrackAndReset(t *testing.T) {
	handler := NewTestEndpointsHandler()

	hitEndpoint(handler.Fast, http.MethodGet, "/api/test/fast")
	hitEndpoint(handler.Fast, http.MethodGet, "/api/test/fast")
	hitEndpoint(handler.Fail, http.MethodGet, "/api/test/fail")
	hitEndpoint(handler.Faulty, http.MethodGet, "/api/test/faulty")

	w := hitEndpoint(handler.Stats, http.MethodGet, "/api/test/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d", w.Code)
	}

	var stats map[string]int64
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats["fast"] != 2 || stats["fail"] != 1 || stats["faulty"] != 1 {
		t.Errorf("stats = %v", stats)
	}

	if w := hitEndpoint(handler.StatsReset, http.MethodPost, "/api/test/stats/reset"); w.Code != http.StatusOK {
		t.Fatalf("reset status = %d", w.Code)
	}

	w = hitEndpoint(handler.Stats, http.MethodGet, "/api/test/stats")
	stats = nil
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if len(stats) != 0 {
		t.Errorf("stats after reset = %v, want empty", stats)
	}

	// Reset also rewinds the faulty cycle to position 0
	if w := hitEndpoint(handler.Faulty, http.MethodGet, "/api/test/faulty"); w.Code != http.StatusOK {
		t.Errorf("first faulty request after reset = %d, want 200", w.Code)
	}
}

func TestStatsMethodRestrictions(t *testing.T) {
	handler := NewTestEndpointsHandler()

	if w := hitEndpoint(handler.Stats, http.MethodPost, "/api/test/stats"); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST stats = %d, want 405", w.Code)
	}
	if w := hitEndpoint(handler.StatsReset, http.MethodGet, "/api/test/stats/reset"); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET stats/reset = %d, want 405", w.Code)
	}
}
