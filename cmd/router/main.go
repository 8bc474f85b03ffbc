// FlowCatalyst Message Router
//
// Standalone message router binary for production deployments.
// Consumes dispatch messages from the configured queue (embedded,
// NATS, SQS or STOMP) and delivers them via HTTP mediation, with
// monitoring, warning and health endpoints for the dashboard.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	commonhealth "github.com/flowcatalyst/messagerouter/internal/common/health"
	"github.com/flowcatalyst/messagerouter/internal/common/lifecycle"
	"github.com/flowcatalyst/messagerouter/internal/config"
	"github.com/flowcatalyst/messagerouter/internal/queue"
	"github.com/flowcatalyst/messagerouter/internal/queue/embedded"
	natsqueue "github.com/flowcatalyst/messagerouter/internal/queue/nats"
	sqsqueue "github.com/flowcatalyst/messagerouter/internal/queue/sqs"
	stompqueue "github.com/flowcatalyst/messagerouter/internal/queue/stomp"
	"github.com/flowcatalyst/messagerouter/internal/router/api"
	"github.com/flowcatalyst/messagerouter/internal/router/health"
	"github.com/flowcatalyst/messagerouter/internal/router/manager"
	"github.com/flowcatalyst/messagerouter/internal/router/mediator"
	"github.com/flowcatalyst/messagerouter/internal/router/metrics"
	"github.com/flowcatalyst/messagerouter/internal/router/notification"
	"github.com/flowcatalyst/messagerouter/internal/router/standby"
	"github.com/flowcatalyst/messagerouter/internal/router/traffic"
	"github.com/flowcatalyst/messagerouter/internal/router/warning"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// defaultQueueName is the dispatch queue consumed by the router and
// used as the stats key for queue-level metrics.
const defaultQueueName = "dispatch"

func main() {
	setupLogging()

	slog.Info("Starting FlowCatalyst Message Router",
		"version", version,
		"build_time", buildTime,
		"component", "router")

	ctx := context.Background()

	// ========================================
	// 1. INFRASTRUCTURE INITIALIZATION
	// ========================================
	// MongoDB holds the dispatch pool configuration the router syncs
	app, cleanup, err := lifecycle.Initialize(ctx, lifecycle.AppOptions{
		NeedsMongoDB: true,
	})
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer cleanup()
	cfg := app.Config

	// ========================================
	// 2. QUEUE SETUP
	// ========================================
	q, err := setupQueue(ctx, app)
	if err != nil {
		slog.Error("Failed to setup queue", "error", err)
		os.Exit(1)
	}

	// ========================================
	// 3. COMPONENT WIRING
	// ========================================

	// Warning and metrics collection
	warningService := warning.NewInMemoryService()
	setupNotifications(ctx, app, warningService)
	warningHandler := warning.NewHandler(warningService)
	poolMetrics := metrics.NewInMemoryPoolMetricsService()
	queueMetrics := metrics.NewInMemoryQueueMetricsService()

	warnings := api.NewWarningAdapter(warningService)
	queueStats := api.NewQueueStatsAdapter(queueMetrics)
	poolStats := api.NewPoolStatsAdapter(poolMetrics)

	// Message router
	messageRouter := manager.NewRouter(q.consumer, mediatorConfig(cfg)).
		WithConsumerHealthConfig(manager.DefaultConsumerHealthConfig()).
		WithWarningService(warningService)

	syncCfg := manager.DefaultConfigSyncConfig()
	syncCfg.Interval = cfg.Router.ConfigSyncInterval

	mgr := messageRouter.Manager().
		WithVisibilityExtender(manager.DefaultVisibilityExtenderConfig()).
		WithPipelineCleanup(manager.DefaultPipelineCleanupConfig()).
		WithLeakDetection(manager.DefaultLeakDetectionConfig()).
		WithConfigSync(app.DB, syncCfg).
		WithWarningService(warningService).
		WithPoolMetrics(poolMetrics).
		WithQueueMetrics(queueMetrics, defaultQueueName)

	routerService := manager.NewRouterService(messageRouter)

	// Traffic controller is the single control path for the consumer:
	// PRIMARY resumes processing, STANDBY pauses it
	trafficService := traffic.NewService(traffic.DefaultConfig())
	trafficController := traffic.NewController(trafficService)
	trafficController.AddListener(traffic.ListenerFuncs{
		BecomePrimary: routerService.Resume,
		BecomeStandby: routerService.Pause,
	})
	mgr.WithStandbyChecker(trafficController)

	// Standby service for leader election drives the traffic controller
	standbyService := setupStandbyService(cfg, trafficController)

	// Health services
	brokerHealth := health.NewBrokerHealthService(true, q.queueType, q.checker)
	brokerHealth.SetWarningSink(warningService, cfg.Router.HealthCheck.FailureThreshold)
	brokerHealth.StartMonitoring(cfg.Router.HealthCheck.Interval)
	app.AddCleanup(func() error {
		brokerHealth.StopMonitoring()
		return nil
	})

	infraHealth := health.NewInfrastructureHealthService(true, poolStats)
	infraHealth.SetQueueManagerStatus(true)

	breakers := api.NewBreakerAdapter(mgr.Mediator().Breakers())

	healthStatus := health.NewHealthStatusService(infraHealth, brokerHealth, poolStats)
	healthStatus.SetCircuitBreakerGetter(breakers)
	healthStatus.SetWarningGetter(warnings)
	healthStatus.SetQueueStatsGetter(queueStats)

	queueMonitor := health.NewQueueHealthMonitor(&health.QueueMonitorConfig{
		CheckInterval:    cfg.Router.HealthCheck.Interval,
		BacklogThreshold: cfg.Router.QueueHealth.BacklogThreshold,
		GrowthThreshold:  cfg.Router.QueueHealth.GrowthThreshold,
		GrowthPeriods:    cfg.Router.QueueHealth.GrowthPeriods,
	}, queueStats, warningService)
	queueMonitor.Start()
	app.AddCleanup(func() error {
		queueMonitor.Stop()
		return nil
	})

	// The embedded engine can report queue depths directly; brokers
	// with external depth sources feed metrics via consume/ack only
	if q.engine != nil {
		stopPolling := startDepthPolling(q.engine, queueMetrics)
		app.AddCleanup(func() error {
			stopPolling()
			return nil
		})
	}

	// Readiness checker
	healthChecker := commonhealth.NewChecker()
	healthChecker.AddReadinessCheck(q.healthCheck)

	// HTTP Router
	httpRouter := setupHTTPRouter(httpDeps{
		cfg:               cfg,
		healthChecker:     healthChecker,
		warningHandler:    warningHandler,
		healthStatus:      healthStatus,
		infraHealth:       infraHealth,
		brokerHealth:      brokerHealth,
		warnings:          warnings,
		queueStats:        queueStats,
		poolStats:         poolStats,
		breakers:          breakers,
		manager:           mgr,
		messageRouter:     messageRouter,
		standbyService:    standbyService,
		trafficService:    trafficService,
		trafficController: trafficController,
		publisher:         q.publisher,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      httpRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ========================================
	// 4. SERVICE STARTUP
	// ========================================
	var services []lifecycle.Service
	services = append(services, lifecycle.NewHTTPService("http-server", httpServer))

	if cfg.Leader.Enabled {
		// Leader election decides when this instance becomes PRIMARY
		services = append(services, newStandbyServiceWrapper(standbyService, trafficController))
	} else {
		// No election - become PRIMARY immediately
		services = append(services, lifecycle.NewServiceFunc("message-router",
			func(ctx context.Context) error {
				trafficController.BecomePrimary()
				<-ctx.Done()
				return nil
			},
			func(ctx context.Context) error {
				trafficController.BecomeStandby()
				return nil
			}))
	}

	slog.Info("Router ready",
		"port", cfg.HTTP.Port,
		"queueType", cfg.Queue.Type,
		"leaderElection", cfg.Leader.Enabled)

	// ========================================
	// 5. RUN UNTIL SHUTDOWN
	// ========================================
	if err := lifecycle.Run(ctx, services...); err != nil {
		slog.Error("Service error", "error", err)
		os.Exit(1)
	}

	slog.Info("FlowCatalyst Message Router stopped")
}

// setupLogging configures the slog default logger.
func setupLogging() {
	logLevel := slog.LevelInfo
	if os.Getenv("FLOWCATALYST_DEV") == "true" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// mediatorConfig builds the mediator configuration from app config.
func mediatorConfig(cfg *config.Config) *mediator.HTTPMediatorConfig {
	var mc *mediator.HTTPMediatorConfig
	if cfg.DevMode {
		mc = mediator.DevHTTPMediatorConfig()
	} else {
		mc = mediator.DefaultHTTPMediatorConfig()
	}

	m := cfg.Router.Mediation
	if m.ConnectTimeout > 0 {
		mc.ConnectTimeout = m.ConnectTimeout
	}
	if m.HeadersTimeout > 0 {
		mc.HeadersTimeout = m.HeadersTimeout
	}
	if m.RequestTimeout > 0 {
		mc.RequestTimeout = m.RequestTimeout
	}
	if m.Retries > 0 {
		mc.MaxRetries = m.Retries
	}
	if m.RetryDelay > 0 {
		mc.RetryDelay = m.RetryDelay
	}
	mc.SigningSecret = m.SigningSecret
	return mc
}

// queueSetup bundles everything the wiring needs from the queue layer.
type queueSetup struct {
	consumer    queue.Consumer
	publisher   queue.Publisher
	healthCheck commonhealth.CheckFunc
	queueType   health.QueueType
	checker     health.BrokerConnectivityChecker

	// engine is set only for the embedded queue, which reports its
	// own depths
	engine *embedded.Engine
}

// setupQueue initializes the queue consumer and publisher based on
// configuration.
func setupQueue(ctx context.Context, app *lifecycle.App) (*queueSetup, error) {
	factory := queue.NewFactory(queueConfigFrom(app.Config))
	switch {
	case factory.IsEmbedded():
		return setupEmbeddedQueue(app)
	case factory.IsNATS():
		return setupNATSQueue(ctx, app, factory.Config())
	case factory.IsSQS():
		return setupSQSQueue(ctx, app, factory.Config())
	case factory.IsSTOMP():
		return setupSTOMPQueue(app, factory.Config())
	default:
		return nil, fmt.Errorf("unknown queue type: %s (use 'embedded', 'nats', 'sqs' or 'stomp')", factory.Type())
	}
}

// queueConfigFrom maps application configuration onto the queue config,
// keeping defaults for anything unset.
func queueConfigFrom(cfg *config.Config) *queue.Config {
	qc := queue.DefaultConfig()
	qc.Type = cfg.Queue.Type
	if cfg.Queue.NATS.URL != "" {
		qc.NATS.URL = cfg.Queue.NATS.URL
	}
	if cfg.Queue.NATS.DataDir != "" {
		qc.DataDir = cfg.Queue.NATS.DataDir
	}
	qc.SQS.QueueURL = cfg.Queue.SQS.QueueURL
	qc.SQS.Region = cfg.Queue.SQS.Region
	if cfg.Queue.SQS.WaitTimeSeconds > 0 {
		qc.SQS.WaitTimeSeconds = int32(cfg.Queue.SQS.WaitTimeSeconds)
	}
	if cfg.Queue.SQS.VisibilityTimeout > 0 {
		qc.SQS.VisibilityTimeout = int32(cfg.Queue.SQS.VisibilityTimeout)
	}
	qc.STOMP = queue.STOMPConfig{
		Address:     cfg.Queue.STOMP.Address,
		Login:       cfg.Queue.STOMP.Login,
		Passcode:    cfg.Queue.STOMP.Passcode,
		Destination: cfg.Queue.STOMP.Destination,
		PoolSize:    cfg.Queue.STOMP.PoolSize,
	}
	return qc
}

func setupEmbeddedQueue(app *lifecycle.App) (*queueSetup, error) {
	ec := app.Config.Queue.Embedded

	snapshotPath := ec.DBPath
	if ec.InMemory {
		snapshotPath = ""
	}

	slog.Info("Starting embedded queue engine",
		"snapshotPath", snapshotPath,
		"visibilityTimeout", ec.VisibilityTimeout)

	engine, err := embedded.NewEngine(embedded.Options{
		VisibilityTimeout: ec.VisibilityTimeout,
		DedupWindow:       ec.DedupWindow,
		SnapshotPath:      snapshotPath,
		SnapshotInterval:  ec.SnapshotInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start embedded queue engine: %w", err)
	}

	app.AddCleanup(func() error {
		slog.Info("Closing embedded queue engine")
		return engine.Close()
	})

	return &queueSetup{
		consumer:    embedded.NewConsumer(engine, defaultQueueName, 10),
		publisher:   embedded.NewPublisher(engine, defaultQueueName),
		healthCheck: func() commonhealth.Check { return commonhealth.Check{Name: "embedded-queue", Status: commonhealth.StatusUp} },
		queueType:   health.QueueTypeEmbedded,
		checker: health.CheckerFunc(func(ctx context.Context) error {
			// In-process engine, always reachable
			return nil
		}),
		engine: engine,
	}, nil
}

func setupNATSQueue(ctx context.Context, app *lifecycle.App, qc *queue.Config) (*queueSetup, error) {
	slog.Info("Connecting to NATS server", "url", qc.NATS.URL)

	natsClient, err := natsqueue.NewClient(&qc.NATS)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	app.AddCleanup(func() error {
		slog.Info("Disconnecting from NATS")
		return natsClient.Close()
	})

	consumer, err := natsClient.CreateConsumer(ctx, qc.NATS.ConsumerName, qc.NATS.Subjects[0])
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS consumer: %w", err)
	}

	slog.Info("Connected to NATS server")
	return &queueSetup{
		consumer:  consumer,
		publisher: natsClient.Publisher(),
		healthCheck: commonhealth.NATSCheck(func() bool {
			// The client reconnects indefinitely on its own
			return true
		}),
		queueType: health.QueueTypeNATS,
		checker: health.CheckerFunc(func(ctx context.Context) error {
			return nil
		}),
	}, nil
}

func setupSQSQueue(ctx context.Context, app *lifecycle.App, qc *queue.Config) (*queueSetup, error) {
	slog.Info("Connecting to AWS SQS",
		"region", qc.SQS.Region,
		"queueURL", qc.SQS.QueueURL)

	sqsClient, err := sqsqueue.NewClient(ctx, &qc.SQS)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQS client: %w", err)
	}

	app.AddCleanup(func() error {
		slog.Info("Disconnecting from SQS")
		return sqsClient.Close()
	})

	consumer, err := sqsClient.CreateConsumer(ctx, "router-consumer", "")
	if err != nil {
		return nil, fmt.Errorf("failed to create SQS consumer: %w", err)
	}

	probe := func(ctx context.Context) error {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return sqsClient.HealthCheck(checkCtx)
	}

	slog.Info("Connected to AWS SQS")
	return &queueSetup{
		consumer:  consumer,
		publisher: sqsClient.Publisher(),
		healthCheck: commonhealth.SQSCheck(func() error {
			return probe(context.Background())
		}),
		queueType: health.QueueTypeSQS,
		checker:   health.CheckerFunc(probe),
	}, nil
}

func setupSTOMPQueue(app *lifecycle.App, qc *queue.Config) (*queueSetup, error) {
	slog.Info("Connecting to STOMP broker",
		"address", qc.STOMP.Address,
		"destination", qc.STOMP.Destination)

	stompCfg := stompqueue.Config{
		Address:     qc.STOMP.Address,
		Login:       qc.STOMP.Login,
		Passcode:    qc.STOMP.Passcode,
		Destination: qc.STOMP.Destination,
		PoolSize:    qc.STOMP.PoolSize,
	}

	publisher := stompqueue.NewPublisher(stompCfg)
	consumer := stompqueue.NewConsumer(stompCfg)

	app.AddCleanup(func() error {
		slog.Info("Disconnecting from STOMP broker")
		return publisher.Close()
	})

	return &queueSetup{
		consumer:  consumer,
		publisher: publisher,
		healthCheck: func() commonhealth.Check {
			return commonhealth.Check{Name: "stomp", Status: commonhealth.StatusUp}
		},
		queueType: health.QueueTypeActiveMQ,
		checker: health.CheckerFunc(func(ctx context.Context) error {
			// Connections are re-established lazily by the clients
			return nil
		}),
	}, nil
}

// startDepthPolling samples embedded engine depths into queue metrics.
// Returns a stop function.
func startDepthPolling(engine *embedded.Engine, queueMetrics *metrics.InMemoryQueueMetricsService) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				for _, name := range engine.QueueNames() {
					queueMetrics.RecordQueueMetrics(name, engine.Depth(name), engine.InFlight(name))
				}
			}
		}
	}()
	return func() { close(done) }
}

// setupNotifications bridges warnings into the batching notification
// service when an email or Teams channel is configured.
func setupNotifications(ctx context.Context, app *lifecycle.App, warningService *warning.InMemoryService) {
	batcher := notification.FromConfig(app.Config.Notifications)
	if batcher == nil {
		return
	}

	notifyCtx, cancel := context.WithCancel(ctx)
	app.AddCleanup(func() error {
		// Cancellation triggers a final flush
		cancel()
		return nil
	})
	batcher.Start(notifyCtx)

	warningService.WithNotifier(func(w warning.Warning) {
		batcher.NotifyWarning(&notification.Warning{
			ID:        w.ID,
			Category:  w.Category,
			Severity:  w.Severity,
			Message:   w.Message,
			Timestamp: w.Timestamp,
			Source:    w.Source,
		})
	})
}

// setupStandbyService configures leader election. Role transitions go
// through the traffic controller so load balancer registration and
// consumer pause/resume stay in sync.
func setupStandbyService(cfg *config.Config, controller *traffic.Controller) *standby.Service {
	standbyCfg := &standby.Config{
		Enabled:         cfg.Leader.Enabled,
		InstanceID:      cfg.Leader.InstanceID,
		LockKey:         "flowcatalyst:router:leader",
		LockTTL:         cfg.Leader.TTL,
		RefreshInterval: cfg.Leader.RefreshInterval,
	}

	callbacks := &standby.Callbacks{
		OnBecomePrimary: controller.BecomePrimary,
		OnBecomeStandby: controller.BecomeStandby,
	}

	svc := standby.NewService(standbyCfg, callbacks)

	if cfg.Leader.Enabled && cfg.Standby.RedisURL != "" {
		provider, err := standby.NewRedisLockProvider(cfg.Standby.RedisURL)
		if err != nil {
			slog.Error("Failed to create Redis lock provider, falling back to single-instance mode",
				"error", err)
		} else {
			svc.SetLockProvider(provider)
		}
	}

	return svc
}

// httpDeps carries the wired components the HTTP layer exposes.
type httpDeps struct {
	cfg               *config.Config
	healthChecker     *commonhealth.Checker
	warningHandler    *warning.Handler
	healthStatus      *health.HealthStatusService
	infraHealth       *health.InfrastructureHealthService
	brokerHealth      *health.BrokerHealthService
	warnings          *api.WarningAdapter
	queueStats        *api.QueueStatsAdapter
	poolStats         *api.PoolStatsAdapter
	breakers          *api.BreakerAdapter
	manager           *manager.QueueManager
	messageRouter     *manager.Router
	standbyService    *standby.Service
	trafficService    *traffic.Service
	trafficController *traffic.Controller
	publisher         queue.Publisher
}

// setupHTTPRouter creates the HTTP router with monitoring, health and
// test endpoints.
func setupHTTPRouter(deps httpDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Aggregate health endpoints
	r.Get("/q/health", deps.healthChecker.HandleHealth)
	r.Get("/q/health/live", deps.healthChecker.HandleLive)
	r.Get("/q/health/ready", deps.healthChecker.HandleReady)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/q/metrics", promhttp.Handler())

	// Warning endpoints
	deps.warningHandler.RegisterRoutes(r)

	// Monitoring dashboard API
	mon := api.NewMonitoringHandler(deps.healthStatus, deps.poolStats)
	mon.SetQueueMetrics(deps.queueStats)
	mon.SetWarningService(deps.warnings, deps.warnings)
	mon.SetCircuitBreakerService(deps.breakers, deps.breakers)
	mon.SetInFlightGetter(deps.manager)
	mon.SetStandbyService(deps.standbyService)
	mon.SetTrafficService(api.NewTrafficStatusAdapter(deps.trafficService))
	mon.SetTrafficController(deps.trafficController)
	mon.SetConsumerHealthGetter(deps.messageRouter)
	mon.SetInfrastructureHealth(deps.infraHealth)

	mux := http.NewServeMux()
	mon.RegisterRoutes(mux)
	api.NewKubernetesHealthHandler(deps.infraHealth, deps.brokerHealth).RegisterRoutes(mux)

	// Load-test helpers, only useful against a dev instance
	if deps.cfg.DevMode {
		api.NewTestEndpointsHandler().RegisterRoutes(mux)
		mux.Handle("/api/seed/messages", api.NewSeedHandler(deps.publisher, ""))
	}

	r.Mount("/", mux)

	return r
}

// standbyServiceWrapper wraps standby.Service to implement
// lifecycle.Service. On shutdown it forces a STANDBY transition so the
// consumer drains before the queue connections close.
type standbyServiceWrapper struct {
	service    *standby.Service
	controller *traffic.Controller
}

func newStandbyServiceWrapper(svc *standby.Service, controller *traffic.Controller) *standbyServiceWrapper {
	return &standbyServiceWrapper{service: svc, controller: controller}
}

func (s *standbyServiceWrapper) Name() string { return "standby-service" }

func (s *standbyServiceWrapper) Start(ctx context.Context) error {
	if err := s.service.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (s *standbyServiceWrapper) Stop(ctx context.Context) error {
	s.service.Stop()
	s.controller.BecomeStandby()
	return nil
}

func (s *standbyServiceWrapper) Health() error {
	return nil
}
