package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/flowcatalyst/messagerouter/internal/router/model"
)

// Message group modes for seeding
const (
	GroupModeNone   = "NONE"   // no message group, messages process independently
	GroupModeSingle = "SINGLE" // one shared group, strict FIFO over the whole batch
	GroupModeRandom = "RANDOM" // one of ten fixed groups per message
	GroupModeUnique = "UNIQUE" // fresh group per message
)

const maxSeedCount = 10_000

// SeedPublisher publishes seed messages to a queue
type SeedPublisher interface {
	PublishWithGroup(ctx context.Context, subject string, data []byte, messageGroup string) error
}

// SeedRequest is the body of POST /api/seed/messages
type SeedRequest struct {
	// Count is the number of messages to publish (1..10000)
	Count int `json:"count"`

	// Queue is the target queue name or subject
	Queue string `json:"queue"`

	// Endpoint is the mediation target URL each message will be routed to
	Endpoint string `json:"endpoint"`

	// MessageGroupMode controls group assignment: NONE, SINGLE, RANDOM, UNIQUE
	MessageGroupMode string `json:"messageGroupMode"`

	// PoolCode optionally overrides the processing pool
	PoolCode string `json:"poolCode,omitempty"`
}

// SeedResponse is the result of a seed run
type SeedResponse struct {
	Status         string `json:"status"`
	MessagesSent   int    `json:"messagesSent"`
	TotalRequested int    `json:"totalRequested"`
	Error          string `json:"error,omitempty"`
}

// SeedHandler publishes batches of synthetic messages for load and
// integration testing. POST /api/seed/messages
type SeedHandler struct {
	publisher       SeedPublisher
	defaultPoolCode string
}

// NewSeedHandler creates a seed handler
func NewSeedHandler(publisher SeedPublisher, defaultPoolCode string) *SeedHandler {
	if defaultPoolCode == "" {
		defaultPoolCode = "DEFAULT-POOL"
	}
	return &SeedHandler{
		publisher:       publisher,
		defaultPoolCode: defaultPoolCode,
	}
}

// ServeHTTP handles POST /api/seed/messages
func (h *SeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeSeedError(w, http.StatusBadRequest, req, "invalid request body: "+err.Error())
		return
	}

	if err := validateSeedRequest(&req); err != nil {
		writeSeedError(w, http.StatusBadRequest, req, err.Error())
		return
	}

	if h.publisher == nil {
		writeSeedError(w, http.StatusServiceUnavailable, req, "no publisher configured")
		return
	}

	poolCode := req.PoolCode
	if poolCode == "" {
		poolCode = h.defaultPoolCode
	}

	sent := 0
	for i := 0; i < req.Count; i++ {
		pointer := &model.MessagePointer{
			ID:              uuid.New().String(),
			PoolCode:        poolCode,
			MediationType:   model.MediationTypeHTTP,
			MediationTarget: req.Endpoint,
			MessageGroupID:  seedGroup(req.MessageGroupMode, i),
		}

		data, err := json.Marshal(pointer)
		if err != nil {
			break
		}

		if err := h.publisher.PublishWithGroup(r.Context(), req.Queue, data, pointer.MessageGroupID); err != nil {
			slog.Error("Seed publish failed",
				"queue", req.Queue,
				"sent", sent,
				"requested", req.Count,
				"error", err)
			break
		}
		sent++
	}

	slog.Info("Seeded messages",
		"queue", req.Queue,
		"sent", sent,
		"requested", req.Count,
		"groupMode", req.MessageGroupMode)

	status := "success"
	if sent < req.Count {
		status = "partial"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SeedResponse{
		Status:         status,
		MessagesSent:   sent,
		TotalRequested: req.Count,
	})
}

func validateSeedRequest(req *SeedRequest) error {
	if req.Count < 1 || req.Count > maxSeedCount {
		return fmt.Errorf("count must be between 1 and %d", maxSeedCount)
	}
	if req.Queue == "" {
		return fmt.Errorf("queue is required")
	}
	if req.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if req.MessageGroupMode == "" {
		req.MessageGroupMode = GroupModeNone
	}
	switch req.MessageGroupMode {
	case GroupModeNone, GroupModeSingle, GroupModeRandom, GroupModeUnique:
		return nil
	default:
		return fmt.Errorf("unknown messageGroupMode %q", req.MessageGroupMode)
	}
}

// seedGroup assigns a message group per the requested mode. RANDOM cycles
// through ten fixed groups so runs are reproducible.
func seedGroup(mode string, index int) string {
	switch mode {
	case GroupModeSingle:
		return "seed-group"
	case GroupModeRandom:
		return fmt.Sprintf("seed-group-%d", index%10)
	case GroupModeUnique:
		return uuid.New().String()
	default:
		return ""
	}
}

func writeSeedError(w http.ResponseWriter, code int, req SeedRequest, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(SeedResponse{
		Status:         "error",
		MessagesSent:   0,
		TotalRequested: req.Count,
		Error:          message,
	})
}
