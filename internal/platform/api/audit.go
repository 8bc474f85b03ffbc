package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"log/slog"

	"github.com/flowcatalyst/messagerouter/internal/common/tsid"
	"github.com/flowcatalyst/messagerouter/internal/platform/audit"
)

// AuditLogHandler handles audit log intake and query endpoints
type AuditLogHandler struct {
	auditRepo *audit.Repository
}

// NewAuditLogHandler creates a new audit log handler
func NewAuditLogHandler(auditRepo *audit.Repository) *AuditLogHandler {
	return &AuditLogHandler{auditRepo: auditRepo}
}

// Routes returns the router for audit log endpoints
func (h *AuditLogHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/batch", h.CreateBatch)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/entity/{entityType}/{entityId}", h.GetForEntity)

	return r
}

// CreateAuditLogRequest represents a single audit log intake item
type CreateAuditLogRequest struct {
	EntityType    string `json:"entityType"`
	EntityID      string `json:"entityId,omitempty"`
	Operation     string `json:"operation"`
	OperationJSON string `json:"operationJson,omitempty"`
	PrincipalID   string `json:"principalId,omitempty"`
	PerformedAt   string `json:"performedAt,omitempty"`
}

// BatchAuditLogRequest represents a batch intake request.
// This is the body shape produced by the outbox processor.
type BatchAuditLogRequest struct {
	Items []CreateAuditLogRequest `json:"items"`
}

// CreateBatch handles POST /api/audit-logs/batch
func (h *AuditLogHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchAuditLogRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	if len(req.Items) == 0 {
		WriteBadRequest(w, "At least one audit log is required")
		return
	}
	if len(req.Items) > 500 {
		WriteBadRequest(w, "Maximum 500 audit logs per batch")
		return
	}

	logs := make([]*audit.AuditLog, len(req.Items))
	for i, item := range req.Items {
		if item.EntityType == "" {
			WriteBadRequest(w, "entityType is required for all audit logs")
			return
		}
		if item.Operation == "" {
			WriteBadRequest(w, "operation is required for all audit logs")
			return
		}

		log := &audit.AuditLog{
			ID:            tsid.Generate(),
			EntityType:    item.EntityType,
			EntityID:      item.EntityID,
			Operation:     item.Operation,
			OperationJSON: item.OperationJSON,
			PrincipalID:   item.PrincipalID,
			PerformedAt:   time.Now(),
		}
		if item.PerformedAt != "" {
			if t, err := time.Parse(time.RFC3339, item.PerformedAt); err == nil {
				log.PerformedAt = t
			}
		}
		logs[i] = log
	}

	if err := h.auditRepo.InsertMany(r.Context(), logs); err != nil {
		slog.Error("Failed to create audit logs batch", "error", err)
		WriteInternalError(w, "Failed to create audit logs")
		return
	}

	ids := make([]string, len(logs))
	for i, log := range logs {
		ids[i] = log.ID
	}

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"count": len(ids),
		"ids":   ids,
	})
}

// List handles GET /api/audit-logs
func (h *AuditLogHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entityType := r.URL.Query().Get("entityType")
	entityID := r.URL.Query().Get("entityId")
	operation := r.URL.Query().Get("operation")

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 0 {
		page = 0
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 100 {
		pageSize = 100
	}

	var logs []*audit.AuditLog
	var total int64
	var err error

	if entityType != "" && entityID != "" {
		logs, err = h.auditRepo.FindByEntity(ctx, entityType, entityID)
		if err == nil {
			total = int64(len(logs))
		}
	} else if entityType != "" {
		logs, err = h.auditRepo.FindByEntityTypePaged(ctx, entityType, page, pageSize)
		if err == nil {
			total, _ = h.auditRepo.CountByEntityType(ctx, entityType)
		}
	} else if operation != "" {
		logs, err = h.auditRepo.FindByOperation(ctx, operation)
		if err == nil {
			total = int64(len(logs))
		}
	} else {
		logs, err = h.auditRepo.FindPaged(ctx, page, pageSize)
		if err == nil {
			total, _ = h.auditRepo.Count(ctx)
		}
	}

	if err != nil {
		WriteInternalError(w, "Failed to fetch audit logs")
		return
	}

	dtos := make([]audit.AuditLogDTO, len(logs))
	for i, log := range logs {
		dtos[i] = log.ToDTO("")
	}

	WriteJSON(w, http.StatusOK, audit.AuditLogListResponse{
		AuditLogs: dtos,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
	})
}

// Get handles GET /api/audit-logs/{id}
func (h *AuditLogHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	log, err := h.auditRepo.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			WriteNotFound(w, "Audit log not found")
			return
		}
		WriteInternalError(w, "Failed to fetch audit log")
		return
	}

	WriteJSON(w, http.StatusOK, log.ToDetailDTO(""))
}

// GetForEntity handles GET /api/audit-logs/entity/{entityType}/{entityId}
func (h *AuditLogHandler) GetForEntity(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	entityID := chi.URLParam(r, "entityId")

	logs, err := h.auditRepo.FindByEntity(r.Context(), entityType, entityID)
	if err != nil {
		WriteInternalError(w, "Failed to fetch audit logs")
		return
	}

	dtos := make([]audit.AuditLogDTO, len(logs))
	for i, log := range logs {
		dtos[i] = log.ToDTO("")
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"auditLogs":  dtos,
		"total":      len(logs),
		"entityType": entityType,
		"entityId":   entityID,
	})
}
