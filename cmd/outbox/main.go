// FlowCatalyst Outbox Processor
//
// Standalone outbox processor binary for production deployments.
// Polls a customer-side outbox database (PostgreSQL, MySQL or MongoDB)
// for pending items and forwards them in batches to the FlowCatalyst
// platform API, preserving per-group FIFO ordering.

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flowcatalyst/messagerouter/internal/common/health"
	"github.com/flowcatalyst/messagerouter/internal/config"
	"github.com/flowcatalyst/messagerouter/internal/outbox"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("FLOWCATALYST_DEV") == "true" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting FlowCatalyst Outbox Processor",
		"version", version,
		"build_time", buildTime,
		"component", "outbox")

	cfg, err := config.LoadWithFile()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthChecker := health.NewChecker()

	// Customer-side outbox repository
	repo, closeRepo, err := setupRepository(ctx, cfg, healthChecker)
	if err != nil {
		slog.Error("Failed to set up outbox repository", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeRepo(); err != nil {
			slog.Error("Error closing outbox database", "error", err)
		}
	}()

	if err := repo.CreateSchema(ctx); err != nil {
		slog.Warn("Failed to create outbox schema", "error", err)
	}

	// Platform API client
	apiClient := outbox.NewAPIClient(&outbox.APIClientConfig{
		BaseURL:           cfg.Platform.BaseURL,
		AuthToken:         cfg.Platform.AuthToken,
		ConnectionTimeout: 10 * time.Second,
		RequestTimeout:    30 * time.Second,
	})

	processorConfig := processorConfigFrom(cfg)
	processor := outbox.NewProcessor(repo, apiClient, processorConfig)

	// Redis leader election for multi-instance deployments. Without it
	// this instance polls unconditionally.
	var redisClient *redis.Client
	if processorConfig.LeaderElection.Enabled && processorConfig.LeaderElection.RedisURL != "" {
		opts, err := redis.ParseURL(processorConfig.LeaderElection.RedisURL)
		if err != nil {
			slog.Error("Invalid Redis URL for leader election", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		processor.WithRedisLeaderElection(redisClient)
	}

	processor.Start()
	defer processor.Stop()

	slog.Info("Outbox processor started",
		"driver", cfg.Outbox.Database.Driver,
		"apiBaseURL", cfg.Platform.BaseURL,
		"pollInterval", processorConfig.PollInterval,
		"batchSize", processorConfig.PollBatchSize,
		"leaderElection", processorConfig.LeaderElection.Enabled)

	// HTTP surface: health, metrics and processor status only
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/q/health", healthChecker.HandleHealth)
	r.Get("/q/health/live", healthChecker.HandleLive)
	r.Get("/q/health/ready", healthChecker.HandleReady)

	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/q/metrics", promhttp.Handler())

	r.Get("/outbox/status", func(w http.ResponseWriter, req *http.Request) {
		stats := processor.GetStats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":                stats.Status,
			"healthy":               stats.Healthy,
			"primary":               processor.IsPrimary(),
			"lastPollTime":          stats.LastPollTime,
			"activeMessageGroups":   stats.ActiveMessageGroups,
			"inFlightPermits":       stats.InFlightPermits,
			"totalInFlightCapacity": stats.TotalInFlightCapacity,
			"bufferedItems":         stats.BufferedItems,
			"driver":                cfg.Outbox.Database.Driver,
			"pollInterval":          processorConfig.PollInterval.String(),
			"batchSize":             processorConfig.PollBatchSize,
		})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("HTTP server starting", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced to shutdown", "error", err)
	}

	slog.Info("FlowCatalyst Outbox Processor stopped")
}

// setupRepository opens the configured outbox database and returns the
// matching repository plus a close function for the connection.
func setupRepository(ctx context.Context, cfg *config.Config, healthChecker *health.Checker) (outbox.Repository, func() error, error) {
	repoConfig := repositoryConfigFrom(cfg)

	switch strings.ToLower(cfg.Outbox.Database.Driver) {
	case "postgres", "postgresql":
		repoConfig.DatabaseType = outbox.DatabaseTypePostgreSQL
		db, err := openSQL(ctx, "postgres", cfg.Outbox.Database.DSN, healthChecker)
		if err != nil {
			return nil, nil, err
		}
		return outbox.NewPostgresRepository(db, repoConfig), db.Close, nil

	case "mysql":
		repoConfig.DatabaseType = outbox.DatabaseTypeMySQL
		db, err := openSQL(ctx, "mysql", cfg.Outbox.Database.DSN, healthChecker)
		if err != nil {
			return nil, nil, err
		}
		return outbox.NewMySQLRepository(db, repoConfig), db.Close, nil

	case "mongodb", "mongo":
		repoConfig.DatabaseType = outbox.DatabaseTypeMongoDB
		slog.Info("Connecting to MongoDB", "uri", maskURI(cfg.MongoDB.URI))
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDB.URI))
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to MongoDB: %w", err)
		}
		if err := mongoClient.Ping(ctx, nil); err != nil {
			mongoClient.Disconnect(ctx)
			return nil, nil, fmt.Errorf("pinging MongoDB: %w", err)
		}
		healthChecker.AddReadinessCheck(health.MongoDBCheck(func() error {
			return mongoClient.Ping(ctx, nil)
		}))
		db := mongoClient.Database(cfg.MongoDB.Database)
		closeFn := func() error { return mongoClient.Disconnect(context.Background()) }
		return outbox.NewMongoRepository(db, repoConfig), closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unsupported outbox database driver %q (expected postgres, mysql or mongodb)", cfg.Outbox.Database.Driver)
	}
}

// openSQL opens and pings a SQL database and registers a readiness check.
func openSQL(ctx context.Context, driver, dsn string, healthChecker *health.Checker) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%s driver requires OUTBOX_DB_DSN", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s database: %w", driver, err)
	}

	healthChecker.AddReadinessCheck(func() health.Check {
		check := health.Check{Name: driver + "-outbox", Status: health.StatusUp}
		if err := db.Ping(); err != nil {
			check.Status = health.StatusDown
			check.Data = map[string]interface{}{"error": err.Error()}
		}
		return check
	})

	slog.Info("Connected to outbox database", "driver", driver)
	return db, nil
}

// repositoryConfigFrom derives the outbox table names from the
// configured prefix.
func repositoryConfigFrom(cfg *config.Config) *outbox.RepositoryConfig {
	repoConfig := outbox.DefaultRepositoryConfig()
	if prefix := cfg.Outbox.Database.TablePrefix; prefix != "" {
		repoConfig.EventsTable = prefix + "_events"
		repoConfig.DispatchJobsTable = prefix + "_dispatch_jobs"
		repoConfig.AuditLogsTable = prefix + "_audit_logs"
	}
	return repoConfig
}

// processorConfigFrom maps application configuration onto the processor
// config, keeping defaults for anything unset.
func processorConfigFrom(cfg *config.Config) *outbox.ProcessorConfig {
	pc := outbox.DefaultProcessorConfig()
	pc.Enabled = true

	if cfg.Outbox.PollInterval > 0 {
		pc.PollInterval = cfg.Outbox.PollInterval
	}
	if cfg.Outbox.PollBatchSize > 0 {
		pc.PollBatchSize = cfg.Outbox.PollBatchSize
	}
	if cfg.Outbox.APIBatchSize > 0 {
		pc.APIBatchSize = cfg.Outbox.APIBatchSize
	}
	if cfg.Outbox.MaxConcurrentGroups > 0 {
		pc.MaxConcurrentGroups = cfg.Outbox.MaxConcurrentGroups
	}
	if cfg.Outbox.GlobalBufferSize > 0 {
		pc.GlobalBufferSize = cfg.Outbox.GlobalBufferSize
	}
	if cfg.Outbox.MaxInFlight > 0 {
		pc.MaxInFlight = cfg.Outbox.MaxInFlight
	}
	if cfg.Outbox.MaxRetries > 0 {
		pc.MaxRetries = cfg.Outbox.MaxRetries
	}
	if cfg.Outbox.RecoveryInterval > 0 {
		pc.RecoveryInterval = cfg.Outbox.RecoveryInterval
	}
	if cfg.Outbox.ProcessingTimeout > 0 {
		pc.ProcessingTimeoutSeconds = int(cfg.Outbox.ProcessingTimeout.Seconds())
	}

	pc.LeaderElection = outbox.LeaderElectionConfig{
		Enabled:         cfg.Leader.Enabled,
		LockName:        "flowcatalyst:outbox:leader",
		LeaseDuration:   cfg.Leader.TTL,
		RefreshInterval: cfg.Leader.RefreshInterval,
		RedisURL:        cfg.Standby.RedisURL,
	}

	return pc
}

// maskURI masks sensitive parts of a MongoDB URI for logging
func maskURI(uri string) string {
	if len(uri) > 20 {
		return uri[:20] + "..."
	}
	return uri
}
