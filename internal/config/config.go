package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/flowcatalyst/messagerouter/internal/common/secrets"
)

// Config holds all configuration for FlowCatalyst
type Config struct {
	// HTTP server configuration
	HTTP HTTPConfig

	// MongoDB configuration
	MongoDB MongoDBConfig

	// Queue configuration (embedded, NATS, SQS or STOMP)
	Queue QueueConfig

	// Router configuration
	Router RouterConfig

	// Outbox processor configuration
	Outbox OutboxConfig

	// Platform API configuration
	Platform PlatformConfig

	// Standby (PRIMARY/STANDBY) configuration
	Standby StandbyConfig

	// Stream projection configuration
	Stream StreamConfig

	// Leader election configuration
	Leader LeaderConfig

	// Secrets provider used to resolve secret:// references
	Secrets secrets.Config

	// Notifications holds warning notification settings
	Notifications NotificationsConfig

	// Data directory for embedded services
	DataDir string

	// Development mode
	DevMode bool
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port        int
	CORSOrigins []string
}

// MongoDBConfig holds MongoDB connection configuration
type MongoDBConfig struct {
	URI      string
	Database string
}

// QueueConfig holds queue configuration
type QueueConfig struct {
	Type string // "embedded", "nats", "sqs", "stomp"

	NATS     NATSConfig
	SQS      SQSConfig
	STOMP    STOMPConfig
	Embedded EmbeddedConfig
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL     string
	DataDir string
}

// SQSConfig holds AWS SQS configuration
type SQSConfig struct {
	QueueURL          string
	Region            string
	WaitTimeSeconds   int
	VisibilityTimeout int
}

// STOMPConfig holds STOMP broker configuration
type STOMPConfig struct {
	Address     string
	Login       string
	Passcode    string
	Destination string
	// PoolSize is the number of pooled publisher connections
	PoolSize int
}

// EmbeddedConfig holds embedded queue engine configuration
type EmbeddedConfig struct {
	// DBPath is the snapshot file path; empty selects in-memory mode
	DBPath string

	// InMemory disables persistence even when DBPath is set
	InMemory bool

	// VisibilityTimeout is how long dequeued messages stay invisible
	VisibilityTimeout time.Duration

	// SnapshotInterval is how often state is flushed to disk
	SnapshotInterval time.Duration

	// DedupWindow is the deduplication window for publishes
	DedupWindow time.Duration
}

// RouterConfig holds message router configuration
type RouterConfig struct {
	// MaxPools caps the number of per-group handlers per pool
	MaxPools int

	// PoolWarningThreshold triggers a warning when exceeded
	PoolWarningThreshold int

	// DefaultConnections is the default pool concurrency
	DefaultConnections int

	Mediation   MediationConfig
	HealthCheck HealthCheckConfig
	QueueHealth QueueHealthConfig

	// ConfigSyncInterval is how often dispatch pool config is re-read
	ConfigSyncInterval time.Duration
}

// MediationConfig holds HTTP mediation configuration
type MediationConfig struct {
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	HeadersTimeout time.Duration
	Retries        int
	RetryDelay     time.Duration

	// SigningSecret signs outbound mediation requests
	SigningSecret string
}

// HealthCheckConfig holds broker health check configuration
type HealthCheckConfig struct {
	Interval         time.Duration
	FailureThreshold int
}

// QueueHealthConfig holds queue backlog monitoring configuration
type QueueHealthConfig struct {
	BacklogThreshold int64
	GrowthThreshold  int64
	GrowthPeriods    int
}

// OutboxConfig holds outbox processor configuration
type OutboxConfig struct {
	PollInterval        time.Duration
	PollBatchSize       int
	APIBatchSize        int
	MaxConcurrentGroups int
	GlobalBufferSize    int
	MaxInFlight         int
	MaxRetries          int
	ProcessingTimeout   time.Duration
	RecoveryInterval    time.Duration

	// Database holds the customer outbox database settings
	Database OutboxDatabaseConfig
}

// OutboxDatabaseConfig holds customer-side outbox database configuration
type OutboxDatabaseConfig struct {
	// Driver is "postgres", "mysql" or "mongodb"
	Driver string
	DSN    string

	// TablePrefix names the outbox tables: <prefix>_events,
	// <prefix>_dispatch_jobs and <prefix>_audit_logs
	TablePrefix string
}

// PlatformConfig holds platform API configuration
type PlatformConfig struct {
	// BaseURL is the platform API base URL used by the outbox processor
	BaseURL string

	// AuthToken is the optional Bearer token for platform API calls
	AuthToken string

	// AppKey signs dispatch job auth tokens
	AppKey string
}

// StandbyConfig holds standby mode configuration
type StandbyConfig struct {
	Enabled  bool
	RedisURL string
}

// StreamConfig holds stream projection configuration
type StreamConfig struct {
	// PostgresDSN is the change-log database for the projection pump
	PostgresDSN string

	// BatchSize is the number of change-log rows drained per statement
	BatchSize int

	// CheckpointRedisURL moves change-stream resume tokens to Redis.
	// Empty keeps them in the stream_checkpoints Mongo collection.
	CheckpointRedisURL string
}

// NotificationsConfig holds warning notification settings. Warnings at
// or above MinSeverity are batched over BatchWindow and delivered as a
// single summary to each enabled channel.
type NotificationsConfig struct {
	MinSeverity string
	BatchWindow time.Duration

	Email EmailNotificationConfig
	Teams TeamsNotificationConfig
}

// EmailNotificationConfig holds SMTP notification settings
type EmailNotificationConfig struct {
	Enabled     bool
	SMTPHost    string
	SMTPPort    int
	Username    string
	Password    string
	FromAddress string
	ToAddress   string
}

// TeamsNotificationConfig holds Teams webhook notification settings
type TeamsNotificationConfig struct {
	Enabled    bool
	WebhookURL string
}

// LeaderConfig holds leader election configuration
type LeaderConfig struct {
	// Enabled controls whether leader election is active
	Enabled bool

	// InstanceID uniquely identifies this instance (defaults to HOSTNAME)
	InstanceID string

	// TTL is how long the lock is valid before expiring
	TTL time.Duration

	// RefreshInterval is how often to refresh the lock while primary
	RefreshInterval time.Duration
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Port:        getEnvInt("HTTP_PORT", 8080),
			CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:4200"}),
		},

		MongoDB: MongoDBConfig{
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017/?replicaSet=rs0&directConnection=true"),
			Database: getEnv("MONGODB_DATABASE", "flowcatalyst"),
		},

		Queue: QueueConfig{
			Type: getEnv("QUEUE_TYPE", "embedded"),
			NATS: NATSConfig{
				URL:     getEnv("NATS_URL", "nats://localhost:4222"),
				DataDir: getEnv("NATS_DATA_DIR", "./data/nats"),
			},
			SQS: SQSConfig{
				QueueURL:          getEnv("SQS_QUEUE_URL", ""),
				Region:            getEnv("AWS_REGION", "us-east-1"),
				WaitTimeSeconds:   getEnvInt("SQS_WAIT_TIME_SECONDS", 20),
				VisibilityTimeout: getEnvInt("SQS_VISIBILITY_TIMEOUT", 120),
			},
			STOMP: STOMPConfig{
				Address:     getEnv("STOMP_ADDRESS", ""),
				Login:       getEnv("STOMP_LOGIN", ""),
				Passcode:    getEnv("STOMP_PASSCODE", ""),
				Destination: getEnv("STOMP_DESTINATION", "/queue/flowcatalyst"),
				PoolSize:    getEnvInt("STOMP_POOL_SIZE", 4),
			},
			Embedded: EmbeddedConfig{
				DBPath:            getEnv("EMBEDDED_DB_PATH", "./data/queue.json"),
				InMemory:          getEnvBool("EMBEDDED_IN_MEMORY", false),
				VisibilityTimeout: getEnvMillis("EMBEDDED_VISIBILITY_TIMEOUT_MS", 120_000),
				SnapshotInterval:  getEnvMillis("EMBEDDED_SNAPSHOT_INTERVAL_MS", 10_000),
				DedupWindow:       getEnvMillis("EMBEDDED_DEDUP_WINDOW_MS", 300_000),
			},
		},

		Router: RouterConfig{
			MaxPools:             getEnvInt("MAX_POOLS", 2000),
			PoolWarningThreshold: getEnvInt("POOL_WARNING_THRESHOLD", 1000),
			DefaultConnections:   getEnvInt("DEFAULT_CONNECTIONS", 1),
			Mediation: MediationConfig{
				ConnectTimeout: getEnvMillis("MEDIATION_CONNECT_TIMEOUT_MS", 5_000),
				RequestTimeout: getEnvMillis("MEDIATION_REQUEST_TIMEOUT_MS", 900_000),
				HeadersTimeout: getEnvMillis("MEDIATION_HEADERS_TIMEOUT_MS", 30_000),
				Retries:        getEnvInt("MEDIATION_RETRIES", 3),
				RetryDelay:     getEnvMillis("MEDIATION_RETRY_DELAY_MS", 1_000),
				SigningSecret:  getEnv("MEDIATION_SIGNING_SECRET", ""),
			},
			HealthCheck: HealthCheckConfig{
				Interval:         getEnvMillis("HEALTH_CHECK_INTERVAL_MS", 60_000),
				FailureThreshold: getEnvInt("HEALTH_CHECK_FAILURE_THRESHOLD", 3),
			},
			QueueHealth: QueueHealthConfig{
				BacklogThreshold: int64(getEnvInt("QUEUE_HEALTH_BACKLOG_THRESHOLD", 1000)),
				GrowthThreshold:  int64(getEnvInt("QUEUE_HEALTH_GROWTH_THRESHOLD", 100)),
				GrowthPeriods:    getEnvInt("QUEUE_HEALTH_GROWTH_PERIODS", 3),
			},
			ConfigSyncInterval: getEnvMillis("CONFIG_SYNC_INTERVAL_MS", 60_000),
		},

		Outbox: OutboxConfig{
			PollInterval:        getEnvMillis("OUTBOX_POLL_INTERVAL_MS", 1_000),
			PollBatchSize:       getEnvInt("OUTBOX_POLL_BATCH_SIZE", 500),
			APIBatchSize:        getEnvInt("OUTBOX_API_BATCH_SIZE", 100),
			MaxConcurrentGroups: getEnvInt("OUTBOX_MAX_CONCURRENT_GROUPS", 10),
			GlobalBufferSize:    getEnvInt("OUTBOX_GLOBAL_BUFFER_SIZE", 5_000),
			MaxInFlight:         getEnvInt("OUTBOX_MAX_IN_FLIGHT", 2_500),
			MaxRetries:          getEnvInt("OUTBOX_MAX_RETRIES", 3),
			ProcessingTimeout:   getEnvSeconds("OUTBOX_PROCESSING_TIMEOUT_SECONDS", 300),
			RecoveryInterval:    getEnvMillis("OUTBOX_RECOVERY_INTERVAL_MS", 60_000),
			Database: OutboxDatabaseConfig{
				Driver:      getEnv("OUTBOX_DB_DRIVER", "postgres"),
				DSN:         getEnv("OUTBOX_DB_DSN", ""),
				TablePrefix: getEnv("OUTBOX_DB_TABLE_PREFIX", "outbox"),
			},
		},

		Platform: PlatformConfig{
			BaseURL:   getEnv("PLATFORM_API_BASE_URL", "http://localhost:8080"),
			AuthToken: getEnv("PLATFORM_API_AUTH_TOKEN", ""),
			AppKey:    getEnv("PLATFORM_APP_KEY", ""),
		},

		Standby: StandbyConfig{
			Enabled:  getEnvBool("STANDBY_ENABLED", false),
			RedisURL: getEnv("STANDBY_REDIS_URL", "redis://localhost:6379"),
		},

		Stream: StreamConfig{
			PostgresDSN:        getEnv("STREAM_POSTGRES_DSN", ""),
			BatchSize:          getEnvInt("STREAM_BATCH_SIZE", 200),
			CheckpointRedisURL: getEnv("STREAM_CHECKPOINT_REDIS_URL", ""),
		},

		Leader: LeaderConfig{
			Enabled:         getEnvBool("LEADER_ELECTION_ENABLED", false),
			InstanceID:      getEnv("HOSTNAME", ""),
			TTL:             getEnvDuration("LEADER_TTL", 30*time.Second),
			RefreshInterval: getEnvDuration("LEADER_REFRESH_INTERVAL", 10*time.Second),
		},

		Secrets: *secrets.LoadConfigFromEnv(),

		Notifications: NotificationsConfig{
			MinSeverity: getEnv("NOTIFY_MIN_SEVERITY", "WARNING"),
			BatchWindow: getEnvDuration("NOTIFY_BATCH_WINDOW", 5*time.Minute),
			Email: EmailNotificationConfig{
				Enabled:     getEnvBool("NOTIFY_EMAIL_ENABLED", false),
				SMTPHost:    getEnv("NOTIFY_SMTP_HOST", ""),
				SMTPPort:    getEnvInt("NOTIFY_SMTP_PORT", 587),
				Username:    getEnv("NOTIFY_SMTP_USERNAME", ""),
				Password:    getEnv("NOTIFY_SMTP_PASSWORD", ""),
				FromAddress: getEnv("NOTIFY_EMAIL_FROM", ""),
				ToAddress:   getEnv("NOTIFY_EMAIL_TO", ""),
			},
			Teams: TeamsNotificationConfig{
				Enabled:    getEnvBool("NOTIFY_TEAMS_ENABLED", false),
				WebhookURL: getEnv("NOTIFY_TEAMS_WEBHOOK_URL", ""),
			},
		},

		DataDir: getEnv("DATA_DIR", "./data"),
		DevMode: getEnvBool("FLOWCATALYST_DEV", false),
	}

	return cfg, cfg.Validate()
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	switch c.Queue.Type {
	case "embedded", "nats", "sqs", "stomp":
	default:
		return fmt.Errorf("invalid QUEUE_TYPE %q (expected embedded, nats, sqs or stomp)", c.Queue.Type)
	}

	if c.Queue.Type == "sqs" && c.Queue.SQS.QueueURL == "" {
		return fmt.Errorf("SQS_QUEUE_URL is required when QUEUE_TYPE=sqs")
	}
	if c.Queue.Type == "stomp" && c.Queue.STOMP.Address == "" {
		return fmt.Errorf("STOMP_ADDRESS is required when QUEUE_TYPE=stomp")
	}

	if c.Router.MaxPools < 1 {
		return fmt.Errorf("MAX_POOLS must be at least 1")
	}
	if c.Router.Mediation.Retries < 0 {
		return fmt.Errorf("MEDIATION_RETRIES must not be negative")
	}

	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvMillis reads an integer env var expressed in milliseconds
func getEnvMillis(key string, defaultMillis int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMillis)) * time.Millisecond
}

// getEnvSeconds reads an integer env var expressed in seconds
func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.Split(value, ",")
	}
	return defaultValue
}
