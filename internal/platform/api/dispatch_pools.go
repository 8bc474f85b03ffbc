package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"log/slog"

	"github.com/flowcatalyst/messagerouter/internal/platform/common"
	"github.com/flowcatalyst/messagerouter/internal/platform/dispatchpool"
	"github.com/flowcatalyst/messagerouter/internal/platform/dispatchpool/operations"
)

// DispatchPoolHandler handles dispatch pool admin endpoints
type DispatchPoolHandler struct {
	repo dispatchpool.Repository

	createUseCase  *operations.CreateDispatchPoolUseCase
	updateUseCase  *operations.UpdateDispatchPoolUseCase
	suspendUseCase *operations.SuspendDispatchPoolUseCase
	archiveUseCase *operations.ArchiveDispatchPoolUseCase
}

// NewDispatchPoolHandler creates a new dispatch pool handler
func NewDispatchPoolHandler(repo dispatchpool.Repository, uow common.UnitOfWork) *DispatchPoolHandler {
	return &DispatchPoolHandler{
		repo:           repo,
		createUseCase:  operations.NewCreateDispatchPoolUseCase(repo, uow),
		updateUseCase:  operations.NewUpdateDispatchPoolUseCase(repo, uow),
		suspendUseCase: operations.NewSuspendDispatchPoolUseCase(repo, uow),
		archiveUseCase: operations.NewArchiveDispatchPoolUseCase(repo, uow),
	}
}

// Routes returns the router for dispatch pool endpoints
func (h *DispatchPoolHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Post("/{id}/suspend", h.Suspend)
	r.Post("/{id}/archive", h.Archive)
	r.Post("/{id}/activate", h.Activate)

	return r
}

// List handles GET /api/dispatch-pools
func (h *DispatchPoolHandler) List(w http.ResponseWriter, r *http.Request) {
	pools, err := h.repo.FindAllNonArchived(r.Context())
	if err != nil {
		slog.Error("Failed to list dispatch pools", "error", err)
		WriteInternalError(w, "Failed to list dispatch pools")
		return
	}
	WriteJSON(w, http.StatusOK, pools)
}

// Create handles POST /api/dispatch-pools
func (h *DispatchPoolHandler) Create(w http.ResponseWriter, r *http.Request) {
	var cmd operations.CreateDispatchPoolCommand
	if err := DecodeJSON(r, &cmd); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	execCtx := common.ExecutionContextFromRequest(r, systemPrincipal(r))
	result := h.createUseCase.Execute(r.Context(), cmd, execCtx)
	WriteUseCaseResult(w, result, http.StatusCreated)
}

// Get handles GET /api/dispatch-pools/{id}
func (h *DispatchPoolHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	pool, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		if err == dispatchpool.ErrNotFound {
			WriteNotFound(w, "Dispatch pool not found")
			return
		}
		slog.Error("Failed to get dispatch pool", "error", err, "id", id)
		WriteInternalError(w, "Failed to get dispatch pool")
		return
	}
	WriteJSON(w, http.StatusOK, pool)
}

// Update handles PUT /api/dispatch-pools/{id}
func (h *DispatchPoolHandler) Update(w http.ResponseWriter, r *http.Request) {
	var cmd operations.UpdateDispatchPoolCommand
	if err := DecodeJSON(r, &cmd); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	cmd.ID = chi.URLParam(r, "id")

	execCtx := common.ExecutionContextFromRequest(r, systemPrincipal(r))
	result := h.updateUseCase.Execute(r.Context(), cmd, execCtx)
	WriteUseCaseResult(w, result, http.StatusOK)
}

// Suspend handles POST /api/dispatch-pools/{id}/suspend
func (h *DispatchPoolHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	cmd := operations.SuspendDispatchPoolCommand{ID: chi.URLParam(r, "id")}

	execCtx := common.ExecutionContextFromRequest(r, systemPrincipal(r))
	result := h.suspendUseCase.Execute(r.Context(), cmd, execCtx)
	WriteUseCaseResult(w, result, http.StatusOK)
}

// Archive handles POST /api/dispatch-pools/{id}/archive
func (h *DispatchPoolHandler) Archive(w http.ResponseWriter, r *http.Request) {
	cmd := operations.ArchiveDispatchPoolCommand{ID: chi.URLParam(r, "id")}

	execCtx := common.ExecutionContextFromRequest(r, systemPrincipal(r))
	result := h.archiveUseCase.Execute(r.Context(), cmd, execCtx)
	WriteUseCaseResult(w, result, http.StatusOK)
}

// Activate handles POST /api/dispatch-pools/{id}/activate
func (h *DispatchPoolHandler) Activate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	pool, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		if err == dispatchpool.ErrNotFound {
			WriteNotFound(w, "Dispatch pool not found")
			return
		}
		WriteInternalError(w, "Failed to get dispatch pool")
		return
	}

	if pool.IsArchived() {
		WriteConflict(w, "Archived dispatch pools cannot be activated")
		return
	}

	if err := h.repo.SetStatus(r.Context(), id, dispatchpool.DispatchPoolStatusActive); err != nil {
		slog.Error("Failed to activate dispatch pool", "error", err, "id", id)
		WriteInternalError(w, "Failed to activate dispatch pool")
		return
	}

	pool.Status = dispatchpool.DispatchPoolStatusActive
	WriteJSON(w, http.StatusOK, pool)
}

// systemPrincipal resolves the acting principal for admin calls. Operator
// identity is delegated to the fronting gateway; the header is trusted here.
func systemPrincipal(r *http.Request) string {
	if p := r.Header.Get("X-Principal-ID"); p != "" {
		return p
	}
	return "SYSTEM"
}
