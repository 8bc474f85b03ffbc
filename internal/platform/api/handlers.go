package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/flowcatalyst/messagerouter/internal/config"
	"github.com/flowcatalyst/messagerouter/internal/platform/audit"
	"github.com/flowcatalyst/messagerouter/internal/platform/common"
	"github.com/flowcatalyst/messagerouter/internal/platform/dispatchjob"
	dispatchjobread "github.com/flowcatalyst/messagerouter/internal/platform/dispatchjob/read"
	"github.com/flowcatalyst/messagerouter/internal/platform/dispatchpool"
	"github.com/flowcatalyst/messagerouter/internal/platform/event"
	eventread "github.com/flowcatalyst/messagerouter/internal/platform/event/read"
)

// Handlers wires the platform ingest API: batch intake for events, dispatch
// jobs and audit logs, dispatch pool administration, and the internal
// dispatch processing endpoint called back by the message router.
type Handlers struct {
	db     *mongo.Database
	config *config.Config

	unitOfWork common.UnitOfWork

	eventRepo        event.Repository
	dispatchJobRepo  dispatchjob.Repository
	dispatchPoolRepo dispatchpool.Repository
	auditRepo        *audit.Repository

	eventReadRepo       *eventread.Repository
	dispatchJobReadRepo *dispatchjobread.Repository

	auditService *audit.Service

	eventHandler        *EventHandler
	dispatchJobHandler  *DispatchJobHandler
	dispatchPoolHandler *DispatchPoolHandler
	auditLogHandler     *AuditLogHandler
	processingHandler   *DispatchProcessingHandler
	projectionHandler   *ProjectionHandler
}

// NewHandlers creates all platform API handlers
func NewHandlers(mongoClient *mongo.Client, db *mongo.Database, cfg *config.Config) *Handlers {
	h := &Handlers{
		db:     db,
		config: cfg,
	}

	h.unitOfWork = common.NewMongoUnitOfWork(mongoClient, db)

	h.eventRepo = event.NewRepository(db)
	h.dispatchJobRepo = dispatchjob.NewRepository(db)
	h.dispatchPoolRepo = dispatchpool.NewRepository(db)
	h.auditRepo = audit.NewRepository(db)

	h.eventReadRepo = eventread.NewRepository(db)
	h.dispatchJobReadRepo = dispatchjobread.NewRepository(db)

	h.auditService = audit.NewService(h.auditRepo)

	authService := dispatchjob.NewDispatchAuthService(cfg.Platform.AppKey, nil)

	h.eventHandler = NewEventHandler(h.eventRepo)
	h.dispatchJobHandler = NewDispatchJobHandler(h.dispatchJobRepo)
	h.dispatchPoolHandler = NewDispatchPoolHandler(h.dispatchPoolRepo, h.unitOfWork)
	h.auditLogHandler = NewAuditLogHandler(h.auditRepo)
	h.processingHandler = NewDispatchProcessingHandler(h.dispatchJobRepo, authService)
	h.projectionHandler = NewProjectionHandler(h.eventReadRepo, h.dispatchJobReadRepo)

	return h
}

// Router builds the chi router for the platform API
func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Client-ID"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Mount("/events", h.eventHandler.Routes())
		r.Mount("/dispatch/jobs", h.dispatchJobHandler.Routes())
		r.Mount("/dispatch/process", h.processingHandler.Routes())
		r.Mount("/dispatch-pools", h.dispatchPoolHandler.Routes())
		r.Mount("/audit-logs", h.auditLogHandler.Routes())
		r.Mount("/projections", h.projectionHandler.Routes())
	})

	return r
}

// GetAuditService returns the audit service for use in other handlers
func (h *Handlers) GetAuditService() *audit.Service {
	return h.auditService
}
