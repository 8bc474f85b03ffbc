package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"log/slog"

	"github.com/flowcatalyst/messagerouter/internal/platform/dispatchjob"
	dispatchjobread "github.com/flowcatalyst/messagerouter/internal/platform/dispatchjob/read"
	eventread "github.com/flowcatalyst/messagerouter/internal/platform/event/read"
)

// ProjectionHandler serves the read-model projections maintained by the
// change stream watchers. Queries follow the cascading filter shape of the
// projection indexes: client scope first, then application/subdomain/
// aggregate prefixes of the event type code.
type ProjectionHandler struct {
	events       *eventread.Repository
	dispatchJobs *dispatchjobread.Repository
}

// NewProjectionHandler creates a new projection query handler
func NewProjectionHandler(events *eventread.Repository, dispatchJobs *dispatchjobread.Repository) *ProjectionHandler {
	return &ProjectionHandler{
		events:       events,
		dispatchJobs: dispatchJobs,
	}
}

// Routes returns the router for projection query endpoints
func (h *ProjectionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/events", h.ListEvents)
	r.Get("/events/{id}", h.GetEvent)
	r.Get("/dispatch-jobs", h.ListDispatchJobs)
	r.Get("/dispatch-jobs/stats", h.GetDispatchJobStats)
	r.Get("/dispatch-jobs/{id}", h.GetDispatchJob)

	return r
}

// ListEvents handles GET /api/projections/events
func (h *ProjectionHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// Correlation lookups return the full causal chain unpaged
	if correlationID := q.Get("correlationId"); correlationID != "" {
		events, err := h.events.FindByCorrelationID(r.Context(), correlationID)
		if err != nil {
			slog.Error("Failed to query events projection", "error", err)
			WriteInternalError(w, "Failed to query events")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"count": len(events),
			"items": events,
		})
		return
	}

	page, size := pagination(r)
	filter := eventread.Filter{
		ClientID:    q.Get("clientId"),
		Application: q.Get("application"),
		Subdomain:   q.Get("subdomain"),
		Aggregate:   q.Get("aggregate"),
		Type:        q.Get("type"),
		Subject:     q.Get("subject"),
		Skip:        int64(page * size),
		Limit:       int64(size),
	}

	events, err := h.events.List(r.Context(), filter)
	if err != nil {
		slog.Error("Failed to query events projection", "error", err)
		WriteInternalError(w, "Failed to query events")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"page":  page,
		"size":  size,
		"count": len(events),
		"items": events,
	})
}

// GetEvent handles GET /api/projections/events/{id}
func (h *ProjectionHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	e, err := h.events.FindByID(r.Context(), id)
	if err != nil {
		if err == eventread.ErrNotFound {
			WriteNotFound(w, "Event not found")
			return
		}
		slog.Error("Failed to get projected event", "error", err, "id", id)
		WriteInternalError(w, "Failed to get event")
		return
	}

	WriteJSON(w, http.StatusOK, e)
}

// ListDispatchJobs handles GET /api/projections/dispatch-jobs
func (h *ProjectionHandler) ListDispatchJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if correlationID := q.Get("correlationId"); correlationID != "" {
		jobs, err := h.dispatchJobs.FindByCorrelationID(r.Context(), correlationID)
		if err != nil {
			slog.Error("Failed to query dispatch jobs projection", "error", err)
			WriteInternalError(w, "Failed to query dispatch jobs")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"count": len(jobs),
			"items": jobs,
		})
		return
	}

	page, size := pagination(r)
	filter := dispatchjobread.Filter{
		ClientID:        q.Get("clientId"),
		ApplicationCode: q.Get("applicationCode"),
		DispatchPoolID:  q.Get("dispatchPoolId"),
		SubscriptionID:  q.Get("subscriptionId"),
		EventID:         q.Get("eventId"),
		Status:          dispatchjob.DispatchStatus(q.Get("status")),
		Skip:            int64(page * size),
		Limit:           int64(size),
	}

	jobs, err := h.dispatchJobs.List(r.Context(), filter)
	if err != nil {
		slog.Error("Failed to query dispatch jobs projection", "error", err)
		WriteInternalError(w, "Failed to query dispatch jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"page":  page,
		"size":  size,
		"count": len(jobs),
		"items": jobs,
	})
}

// GetDispatchJob handles GET /api/projections/dispatch-jobs/{id}
func (h *ProjectionHandler) GetDispatchJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := h.dispatchJobs.FindByID(r.Context(), id)
	if err != nil {
		if err == dispatchjobread.ErrNotFound {
			WriteNotFound(w, "Dispatch job not found")
			return
		}
		slog.Error("Failed to get projected dispatch job", "error", err, "id", id)
		WriteInternalError(w, "Failed to get dispatch job")
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// GetDispatchJobStats handles GET /api/projections/dispatch-jobs/stats
func (h *ProjectionHandler) GetDispatchJobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dispatchJobs.GetStats(r.Context(), r.URL.Query().Get("clientId"))
	if err != nil {
		slog.Error("Failed to aggregate dispatch job stats", "error", err)
		WriteInternalError(w, "Failed to aggregate stats")
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}

// pagination reads page/size query parameters with the API's bounds
func pagination(r *http.Request) (page, size int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 0 {
		page = 0
	}
	size, _ = strconv.Atoi(r.URL.Query().Get("size"))
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
