package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"log/slog"

	"github.com/flowcatalyst/messagerouter/internal/common/tsid"
	"github.com/flowcatalyst/messagerouter/internal/platform/dispatchjob"
)

// DispatchJobHandler handles dispatch job endpoints
type DispatchJobHandler struct {
	repo dispatchjob.Repository
}

// NewDispatchJobHandler creates a new dispatch job handler
func NewDispatchJobHandler(repo dispatchjob.Repository) *DispatchJobHandler {
	return &DispatchJobHandler{repo: repo}
}

// Routes returns the router for dispatch job endpoints
func (h *DispatchJobHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Post("/batch", h.CreateBatch)
	r.Get("/", h.Search)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/attempts", h.GetAttempts)

	return r
}

// CreateDispatchJobRequest represents a request to create a dispatch job
type CreateDispatchJobRequest struct {
	Source             string            `json:"source"`
	Kind               string            `json:"kind,omitempty"`
	Code               string            `json:"code"`
	Subject            string            `json:"subject,omitempty"`
	EventID            string            `json:"eventId,omitempty"`
	CorrelationID      string            `json:"correlationId,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	TargetURL          string            `json:"targetUrl"`
	Protocol           string            `json:"protocol,omitempty"`
	Headers            map[string]string `json:"headers,omitempty"`
	Payload            string            `json:"payload"`
	PayloadContentType string            `json:"payloadContentType,omitempty"`
	DataOnly           bool              `json:"dataOnly,omitempty"`
	ServiceAccountID   string            `json:"serviceAccountId"`
	ClientID           string            `json:"clientId,omitempty"`
	SubscriptionID     string            `json:"subscriptionId,omitempty"`
	Mode               string            `json:"mode,omitempty"`
	DispatchPoolID     string            `json:"dispatchPoolId,omitempty"`
	MessageGroup       string            `json:"messageGroup,omitempty"`
	Sequence           int               `json:"sequence,omitempty"`
	TimeoutSeconds     int               `json:"timeoutSeconds,omitempty"`
	SchemaID           string            `json:"schemaId,omitempty"`
	MaxRetries         int               `json:"maxRetries,omitempty"`
	RetryStrategy      string            `json:"retryStrategy,omitempty"`
	ScheduledFor       string            `json:"scheduledFor,omitempty"`
	ExpiresAt          string            `json:"expiresAt,omitempty"`
	IdempotencyKey     string            `json:"idempotencyKey,omitempty"`
	ExternalID         string            `json:"externalId,omitempty"`
	QueueURL           string            `json:"queueUrl,omitempty"`
}

// BatchDispatchJobRequest represents a batch intake request.
// This is the body shape produced by the outbox processor.
type BatchDispatchJobRequest struct {
	Items []CreateDispatchJobRequest `json:"items"`
}

// DispatchJobDTO represents a dispatch job for API responses
type DispatchJobDTO struct {
	ID                 string            `json:"id"`
	ExternalID         string            `json:"externalId,omitempty"`
	Source             string            `json:"source"`
	Kind               string            `json:"kind"`
	Code               string            `json:"code"`
	Subject            string            `json:"subject,omitempty"`
	EventID            string            `json:"eventId,omitempty"`
	CorrelationID      string            `json:"correlationId,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	TargetURL          string            `json:"targetUrl"`
	Protocol           string            `json:"protocol"`
	Headers            map[string]string `json:"headers,omitempty"`
	PayloadContentType string            `json:"payloadContentType,omitempty"`
	DataOnly           bool              `json:"dataOnly"`
	ServiceAccountID   string            `json:"serviceAccountId,omitempty"`
	ClientID           string            `json:"clientId,omitempty"`
	SubscriptionID     string            `json:"subscriptionId,omitempty"`
	Mode               string            `json:"mode,omitempty"`
	DispatchPoolID     string            `json:"dispatchPoolId,omitempty"`
	MessageGroup       string            `json:"messageGroup,omitempty"`
	Sequence           int               `json:"sequence"`
	TimeoutSeconds     int               `json:"timeoutSeconds"`
	SchemaID           string            `json:"schemaId,omitempty"`
	Status             string            `json:"status"`
	MaxRetries         int               `json:"maxRetries"`
	RetryStrategy      string            `json:"retryStrategy,omitempty"`
	ScheduledFor       string            `json:"scheduledFor,omitempty"`
	ExpiresAt          string            `json:"expiresAt,omitempty"`
	AttemptCount       int               `json:"attemptCount"`
	LastAttemptAt      string            `json:"lastAttemptAt,omitempty"`
	CompletedAt        string            `json:"completedAt,omitempty"`
	DurationMillis     int64             `json:"durationMillis,omitempty"`
	LastError          string            `json:"lastError,omitempty"`
	IdempotencyKey     string            `json:"idempotencyKey,omitempty"`
	CreatedAt          string            `json:"createdAt"`
	UpdatedAt          string            `json:"updatedAt"`
}

// DispatchAttemptDTO represents a dispatch attempt for API responses
type DispatchAttemptDTO struct {
	ID              string `json:"id"`
	AttemptNumber   int    `json:"attemptNumber"`
	AttemptedAt     string `json:"attemptedAt"`
	CompletedAt     string `json:"completedAt,omitempty"`
	DurationMillis  int64  `json:"durationMillis,omitempty"`
	Status          string `json:"status"`
	ResponseCode    int    `json:"responseCode,omitempty"`
	ResponseBody    string `json:"responseBody,omitempty"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
	ErrorStackTrace string `json:"errorStackTrace,omitempty"`
	ErrorType       string `json:"errorType,omitempty"`
	CreatedAt       string `json:"createdAt"`
}

// PagedDispatchJobDTOResponse represents a paginated dispatch job response
type PagedDispatchJobDTOResponse struct {
	Items      []DispatchJobDTO `json:"items"`
	Page       int              `json:"page"`
	Size       int              `json:"size"`
	TotalItems int64            `json:"totalItems"`
	TotalPages int              `json:"totalPages"`
}

// Create handles POST /api/dispatch/jobs
func (h *DispatchJobHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateDispatchJobRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	if msg := validateDispatchJobRequest(&req); msg != "" {
		WriteBadRequest(w, msg)
		return
	}

	// Check for idempotency
	if req.IdempotencyKey != "" {
		existing, err := h.repo.FindByIdempotencyKey(r.Context(), req.IdempotencyKey)
		if err == nil && existing != nil {
			WriteJSON(w, http.StatusOK, toDispatchJobDTO(existing))
			return
		}
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = r.Header.Get("X-Client-ID")
	}

	job := requestToDispatchJob(&req, clientID)

	if err := h.repo.Insert(r.Context(), job); err != nil {
		if err == dispatchjob.ErrDuplicateJob {
			WriteJSON(w, http.StatusOK, toDispatchJobDTO(job))
			return
		}
		slog.Error("Failed to create dispatch job", "error", err)
		WriteInternalError(w, "Failed to create dispatch job")
		return
	}

	WriteJSON(w, http.StatusCreated, toDispatchJobDTO(job))
}

// CreateBatch handles POST /api/dispatch/jobs/batch
func (h *DispatchJobHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchDispatchJobRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	if len(req.Items) == 0 {
		WriteBadRequest(w, "At least one dispatch job is required")
		return
	}
	if len(req.Items) > 500 {
		WriteBadRequest(w, "Maximum 500 dispatch jobs per batch")
		return
	}

	clientID := r.Header.Get("X-Client-ID")

	jobs := make([]*dispatchjob.DispatchJob, len(req.Items))
	for i, jr := range req.Items {
		if msg := validateDispatchJobRequest(&jr); msg != "" {
			WriteBadRequest(w, msg)
			return
		}

		jobClientID := jr.ClientID
		if jobClientID == "" {
			jobClientID = clientID
		}
		jobs[i] = requestToDispatchJob(&jr, jobClientID)
	}

	if err := h.repo.InsertMany(r.Context(), jobs); err != nil {
		slog.Error("Failed to create dispatch jobs batch", "error", err)
		WriteInternalError(w, "Failed to create dispatch jobs")
		return
	}

	ids := make([]string, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
	}

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"count": len(ids),
		"ids":   ids,
	})
}

// Search handles GET /api/dispatch/jobs
func (h *DispatchJobHandler) Search(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 0 {
		page = 0
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if size <= 0 || size > 100 {
		size = 20
	}

	jobs, err := h.repo.FindPending(r.Context(), int64(size))
	if err != nil {
		slog.Error("Failed to search dispatch jobs", "error", err)
		WriteInternalError(w, "Failed to search dispatch jobs")
		return
	}

	dtos := make([]DispatchJobDTO, len(jobs))
	for i, job := range jobs {
		dtos[i] = toDispatchJobDTO(job)
	}

	WriteJSON(w, http.StatusOK, PagedDispatchJobDTOResponse{
		Items:      dtos,
		Page:       page,
		Size:       size,
		TotalItems: int64(len(dtos)),
		TotalPages: 1,
	})
}

// Get handles GET /api/dispatch/jobs/{id}
func (h *DispatchJobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		if err == dispatchjob.ErrNotFound {
			WriteNotFound(w, "Dispatch job not found")
			return
		}
		slog.Error("Failed to get dispatch job", "error", err, "id", id)
		WriteInternalError(w, "Failed to get dispatch job")
		return
	}

	WriteJSON(w, http.StatusOK, toDispatchJobDTO(job))
}

// GetAttempts handles GET /api/dispatch/jobs/{id}/attempts
func (h *DispatchJobHandler) GetAttempts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		if err == dispatchjob.ErrNotFound {
			WriteNotFound(w, "Dispatch job not found")
			return
		}
		slog.Error("Failed to get dispatch job", "error", err, "id", id)
		WriteInternalError(w, "Failed to get dispatch job")
		return
	}

	attempts := make([]DispatchAttemptDTO, len(job.Attempts))
	for i, a := range job.Attempts {
		attempts[i] = DispatchAttemptDTO{
			ID:              a.ID,
			AttemptNumber:   a.AttemptNumber,
			AttemptedAt:     a.AttemptedAt.Format(time.RFC3339),
			CompletedAt:     formatTimeIfNotZero(a.CompletedAt),
			DurationMillis:  a.DurationMillis,
			Status:          string(a.Status),
			ResponseCode:    a.ResponseCode,
			ResponseBody:    a.ResponseBody,
			ErrorMessage:    a.ErrorMessage,
			ErrorStackTrace: a.ErrorStackTrace,
			ErrorType:       string(a.ErrorType),
			CreatedAt:       a.CreatedAt.Format(time.RFC3339),
		}
	}

	WriteJSON(w, http.StatusOK, attempts)
}

// validateDispatchJobRequest returns an error message for a bad request, or ""
func validateDispatchJobRequest(req *CreateDispatchJobRequest) string {
	if req.Source == "" {
		return "source is required"
	}
	if req.Code == "" {
		return "code is required"
	}
	if req.TargetURL == "" {
		return "targetUrl is required"
	}
	if req.Payload == "" {
		return "payload is required"
	}
	if req.ServiceAccountID == "" {
		return "serviceAccountId is required"
	}
	return ""
}

// requestToDispatchJob converts a create request to a DispatchJob
func requestToDispatchJob(req *CreateDispatchJobRequest, clientID string) *dispatchjob.DispatchJob {
	job := &dispatchjob.DispatchJob{
		ID:                 tsid.Generate(),
		ExternalID:         req.ExternalID,
		Source:             req.Source,
		Code:               req.Code,
		Subject:            req.Subject,
		EventID:            req.EventID,
		CorrelationID:      req.CorrelationID,
		TargetURL:          req.TargetURL,
		Headers:            req.Headers,
		Payload:            req.Payload,
		PayloadContentType: req.PayloadContentType,
		DataOnly:           req.DataOnly,
		ServiceAccountID:   req.ServiceAccountID,
		ClientID:           clientID,
		SubscriptionID:     req.SubscriptionID,
		DispatchPoolID:     req.DispatchPoolID,
		MessageGroup:       req.MessageGroup,
		Sequence:           req.Sequence,
		TimeoutSeconds:     req.TimeoutSeconds,
		SchemaID:           req.SchemaID,
		MaxRetries:         req.MaxRetries,
		RetryStrategy:      req.RetryStrategy,
		IdempotencyKey:     req.IdempotencyKey,
		Status:             dispatchjob.DispatchStatusPending,
	}

	if req.Kind != "" {
		job.Kind = dispatchjob.DispatchKind(req.Kind)
	} else {
		job.Kind = dispatchjob.DispatchKindEvent
	}

	if req.Protocol != "" {
		job.Protocol = dispatchjob.DispatchProtocol(req.Protocol)
	} else {
		job.Protocol = dispatchjob.DispatchProtocolHTTPWebhook
	}

	if req.Mode != "" {
		job.Mode = dispatchjob.DispatchMode(req.Mode)
	}

	if req.Metadata != nil {
		job.Metadata = make([]dispatchjob.DispatchJobMetadata, 0, len(req.Metadata))
		for k, v := range req.Metadata {
			job.Metadata = append(job.Metadata, dispatchjob.DispatchJobMetadata{
				ID:    tsid.Generate(),
				Key:   k,
				Value: v,
			})
		}
	}

	if req.ScheduledFor != "" {
		if t, err := time.Parse(time.RFC3339, req.ScheduledFor); err == nil {
			job.ScheduledFor = t
		}
	}

	if req.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, req.ExpiresAt); err == nil {
			job.ExpiresAt = t
		}
	}

	if job.MaxRetries == 0 {
		job.MaxRetries = 3
	}
	if job.TimeoutSeconds == 0 {
		job.TimeoutSeconds = 30
	}
	if job.PayloadContentType == "" {
		job.PayloadContentType = "application/json"
	}

	return job
}

// toDispatchJobDTO converts a DispatchJob to DispatchJobDTO
func toDispatchJobDTO(job *dispatchjob.DispatchJob) DispatchJobDTO {
	dto := DispatchJobDTO{
		ID:                 job.ID,
		ExternalID:         job.ExternalID,
		Source:             job.Source,
		Kind:               string(job.Kind),
		Code:               job.Code,
		Subject:            job.Subject,
		EventID:            job.EventID,
		CorrelationID:      job.CorrelationID,
		TargetURL:          job.TargetURL,
		Protocol:           string(job.Protocol),
		Headers:            job.Headers,
		PayloadContentType: job.PayloadContentType,
		DataOnly:           job.DataOnly,
		ServiceAccountID:   job.ServiceAccountID,
		ClientID:           job.ClientID,
		SubscriptionID:     job.SubscriptionID,
		Mode:               string(job.Mode),
		DispatchPoolID:     job.DispatchPoolID,
		MessageGroup:       job.MessageGroup,
		Sequence:           job.Sequence,
		TimeoutSeconds:     job.TimeoutSeconds,
		SchemaID:           job.SchemaID,
		Status:             string(job.Status),
		MaxRetries:         job.MaxRetries,
		RetryStrategy:      job.RetryStrategy,
		AttemptCount:       job.AttemptCount,
		DurationMillis:     job.DurationMillis,
		LastError:          job.LastError,
		IdempotencyKey:     job.IdempotencyKey,
		CreatedAt:          job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          job.UpdatedAt.Format(time.RFC3339),
	}

	if job.Metadata != nil {
		dto.Metadata = make(map[string]string)
		for _, m := range job.Metadata {
			dto.Metadata[m.Key] = m.Value
		}
	}

	if !job.ScheduledFor.IsZero() {
		dto.ScheduledFor = job.ScheduledFor.Format(time.RFC3339)
	}
	if !job.ExpiresAt.IsZero() {
		dto.ExpiresAt = job.ExpiresAt.Format(time.RFC3339)
	}
	if !job.LastAttemptAt.IsZero() {
		dto.LastAttemptAt = job.LastAttemptAt.Format(time.RFC3339)
	}
	if !job.CompletedAt.IsZero() {
		dto.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}

	return dto
}

// formatTimeIfNotZero formats a time or returns empty string if zero
func formatTimeIfNotZero(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
