package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowcatalyst/messagerouter/internal/router/model"
)

type mockSeedPublisher struct {
	published []publishedMessage
	failAfter int // fail once this many messages have been published; 0 means never
}

type publishedMessage struct {
	subject string
	data    []byte
	group   string
}

func (m *mockSeedPublisher) PublishWithGroup(ctx context.Context, subject string, data []byte, messageGroup string) error {
	if m.failAfter > 0 && len(m.published) >= m.failAfter {
		return errors.New("broker unavailable")
	}
	m.published = append(m.published, publishedMessage{subject, data, messageGroup})
	return nil
}

func postSeed(t *testing.T, handler *SeedHandler, req SeedRequest) (*httptest.ResponseRecorder, SeedResponse) {
	t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/seed/messages", bytes.NewReader(body))
	handler.ServeHTTP(w, r)

	var resp SeedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return w, resp
}

func TestSeedPublishesRequestedCount(t *testing.T) {
	publisher := &mockSeedPublisher{}
	handler := NewSeedHandler(publisher, "")

	w, resp := postSeed(t, handler, SeedRequest{
		Count:    5,
		Queue:    "dispatch-queue",
		Endpoint: "http://localhost:8080/api/test/fast",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if resp.Status != "success" || resp.MessagesSent != 5 || resp.TotalRequested != 5 {
		t.Errorf("response = %+v", resp)
	}
	if len(publisher.published) != 5 {
		t.Fatalf("published %d messages, want 5", len(publisher.published))
	}

	var pointer model.MessagePointer
	if err := json.Unmarshal(publisher.published[0].data, &pointer); err != nil {
		t.Fatalf("published message is not a pointer: %v", err)
	}
	if pointer.MediationTarget != "http://localhost:8080/api/test/fast" {
		t.Errorf("MediationTarget = %s", pointer.MediationTarget)
	}
	if pointer.PoolCode != "DEFAULT-POOL" {
		t.Errorf("PoolCode = %s, want DEFAULT-POOL", pointer.PoolCode)
	}
	if pointer.ID == "" {
		t.Error("pointer ID must be set")
	}
}

func TestSeedGroupModes(t *testing.T) {
	tests := []struct {
		mode  string
		check func(t *testing.T, groups []string)
	}{
		{GroupModeNone, func(t *testing.T, groups []string) {
			for _, g := range groups {
				if g != "" {
					t.Errorf("NONE mode assigned group %q", g)
				}
			}
		}},
		{GroupModeSingle, func(t *testing.T, groups []string) {
			for _, g := range groups {
				if g != "seed-group" {
					t.Errorf("SINGLE mode assigned group %q", g)
				}
			}
		}},
		{GroupModeRandom, func(t *testing.T, groups []string) {
			if groups[0] != "seed-group-0" || groups[10] != "seed-group-0" || groups[3] != "seed-group-3" {
				t.Errorf("RANDOM mode should cycle ten fixed groups, got %v", groups[:4])
			}
		}},
		{GroupModeUnique, func(t *testing.T, groups []string) {
			seen := make(map[string]bool)
			for _, g := range groups {
				if g == "" || seen[g] {
					t.Errorf("UNIQUE mode produced duplicate or empty group %q", g)
				}
				seen[g] = true
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			publisher := &mockSeedPublisher{}
			handler := NewSeedHandler(publisher, "")

			_, resp := postSeed(t, handler, SeedRequest{
				Count:            12,
				Queue:            "q",
				Endpoint:         "http://example.com",
				MessageGroupMode: tt.mode,
			})
			if resp.MessagesSent != 12 {
				t.Fatalf("sent %d, want 12", resp.MessagesSent)
			}

			groups := make([]string, 0, 12)
			for _, p := range publisher.published {
				groups = append(groups, p.group)
			}
			tt.check(t, groups)
		})
	}
}

func TestSeedValidation(t *testing.T) {
	tests := []struct {
		name string
		req  SeedRequest
	}{
		{"zero count", SeedRequest{Count: 0, Queue: "q", Endpoint: "e"}},
		{"count too large", SeedRequest{Count: maxSeedCount + 1, Queue: "q", Endpoint: "e"}},
		{"missing queue", SeedRequest{Count: 1, Endpoint: "e"}},
		{"missing endpoint", SeedRequest{Count: 1, Queue: "q"}},
		{"bad group mode", SeedRequest{Count: 1, Queue: "q", Endpoint: "e", MessageGroupMode: "SHUFFLE"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &mockSeedPublisher{}
			handler := NewSeedHandler(publisher, "")

			w, resp := postSeed(t, handler, tt.req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if resp.Status != "error" || resp.Error == "" {
				t.Errorf("response = %+v", resp)
			}
			if len(publisher.published) != 0 {
				t.Errorf("invalid request published %d messages", len(publisher.published))
			}
		})
	}
}

func TestSeedPartialOnPublishFailure(t *testing.T) {
	publisher := &mockSeedPublisher{failAfter: 3}
	handler := NewSeedHandler(publisher, "")

	w, resp := postSeed(t, handler, SeedRequest{
		Count:    10,
		Queue:    "q",
		Endpoint: "http://example.com",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if resp.Status != "partial" || resp.MessagesSent != 3 || resp.TotalRequested != 10 {
		t.Errorf("response = %+v", resp)
	}
}

func TestSeedRejectsGet(t *testing.T) {
	handler := NewSeedHandler(&mockSeedPublisher{}, "")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/seed/messages", nil)
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}
