package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/flowcatalyst/messagerouter/internal/common/secrets"
)

// TOMLConfig represents the TOML configuration file structure
type TOMLConfig struct {
	DataDir  string             `toml:"data_dir"`
	DevMode  bool               `toml:"dev_mode"`
	HTTP     TOMLHTTPConfig     `toml:"http"`
	MongoDB  TOMLMongoDBConfig  `toml:"mongodb"`
	Queue    TOMLQueueConfig    `toml:"queue"`
	Router   TOMLRouterConfig   `toml:"router"`
	Outbox   TOMLOutboxConfig   `toml:"outbox"`
	Platform TOMLPlatformConfig `toml:"platform"`
	Standby  TOMLStandbyConfig  `toml:"standby"`
	Stream   TOMLStreamConfig   `toml:"stream"`
	Leader   TOMLLeaderConfig   `toml:"leader"`
	Secrets  TOMLSecretsConfig  `toml:"secrets"`

	Notifications TOMLNotificationsConfig `toml:"notifications"`
}

// TOMLHTTPConfig represents HTTP configuration in TOML
type TOMLHTTPConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// TOMLMongoDBConfig represents MongoDB configuration in TOML
type TOMLMongoDBConfig struct {
	URI      string `toml:"uri"`
	Database string `toml:"database"`
}

// TOMLQueueConfig represents queue configuration in TOML
type TOMLQueueConfig struct {
	Type     string             `toml:"type"`
	NATS     TOMLNATSConfig     `toml:"nats"`
	SQS      TOMLSQSConfig      `toml:"sqs"`
	STOMP    TOMLSTOMPConfig    `toml:"stomp"`
	Embedded TOMLEmbeddedConfig `toml:"embedded"`
}

// TOMLNATSConfig represents NATS configuration in TOML
type TOMLNATSConfig struct {
	URL     string `toml:"url"`
	DataDir string `toml:"data_dir"`
}

// TOMLSQSConfig represents SQS configuration in TOML
type TOMLSQSConfig struct {
	QueueURL          string `toml:"queue_url"`
	Region            string `toml:"region"`
	WaitTimeSeconds   int    `toml:"wait_time_seconds"`
	VisibilityTimeout int    `toml:"visibility_timeout"`
}

// TOMLSTOMPConfig represents STOMP broker configuration in TOML
type TOMLSTOMPConfig struct {
	Address     string `toml:"address"`
	Login       string `toml:"login"`
	Passcode    string `toml:"passcode"`
	Destination string `toml:"destination"`
	PoolSize    int    `toml:"pool_size"`
}

// TOMLEmbeddedConfig represents embedded queue configuration in TOML
type TOMLEmbeddedConfig struct {
	DBPath              string `toml:"db_path"`
	InMemory            bool   `toml:"in_memory"`
	VisibilityTimeoutMs int    `toml:"visibility_timeout_ms"`
	SnapshotIntervalMs  int    `toml:"snapshot_interval_ms"`
	DedupWindowMs       int    `toml:"dedup_window_ms"`
}

// TOMLRouterConfig represents message router configuration in TOML
type TOMLRouterConfig struct {
	MaxPools             int                   `toml:"max_pools"`
	PoolWarningThreshold int                   `toml:"pool_warning_threshold"`
	DefaultConnections   int                   `toml:"default_connections"`
	ConfigSyncIntervalMs int                   `toml:"config_sync_interval_ms"`
	Mediation            TOMLMediationConfig   `toml:"mediation"`
	HealthCheck          TOMLHealthCheckConfig `toml:"health_check"`
	QueueHealth          TOMLQueueHealthConfig `toml:"queue_health"`
}

// TOMLMediationConfig represents mediation configuration in TOML
type TOMLMediationConfig struct {
	ConnectTimeoutMs int    `toml:"connect_timeout_ms"`
	RequestTimeoutMs int    `toml:"request_timeout_ms"`
	HeadersTimeoutMs int    `toml:"headers_timeout_ms"`
	Retries          int    `toml:"retries"`
	RetryDelayMs     int    `toml:"retry_delay_ms"`
	SigningSecret    string `toml:"signing_secret"`
}

// TOMLHealthCheckConfig represents health check configuration in TOML
type TOMLHealthCheckConfig struct {
	IntervalMs       int `toml:"interval_ms"`
	FailureThreshold int `toml:"failure_threshold"`
}

// TOMLQueueHealthConfig represents queue health configuration in TOML
type TOMLQueueHealthConfig struct {
	BacklogThreshold int64 `toml:"backlog_threshold"`
	GrowthThreshold  int64 `toml:"growth_threshold"`
	GrowthPeriods    int   `toml:"growth_periods"`
}

// TOMLOutboxConfig represents outbox processor configuration in TOML
type TOMLOutboxConfig struct {
	PollIntervalMs           int                `toml:"poll_interval_ms"`
	PollBatchSize            int                `toml:"poll_batch_size"`
	APIBatchSize             int                `toml:"api_batch_size"`
	MaxConcurrentGroups      int                `toml:"max_concurrent_groups"`
	GlobalBufferSize         int                `toml:"global_buffer_size"`
	MaxInFlight              int                `toml:"max_in_flight"`
	MaxRetries               int                `toml:"max_retries"`
	ProcessingTimeoutSeconds int                `toml:"processing_timeout_seconds"`
	RecoveryIntervalMs       int                `toml:"recovery_interval_ms"`
	Database                 TOMLOutboxDatabase `toml:"database"`
}

// TOMLOutboxDatabase represents outbox database configuration in TOML
type TOMLOutboxDatabase struct {
	Driver      string `toml:"driver"`
	DSN         string `toml:"dsn"`
	TablePrefix string `toml:"table_prefix"`
}

// TOMLPlatformConfig represents platform API configuration in TOML
type TOMLPlatformConfig struct {
	BaseURL   string `toml:"base_url"`
	AuthToken string `toml:"auth_token"`
	AppKey    string `toml:"app_key"`
}

// TOMLStandbyConfig represents standby configuration in TOML
type TOMLStandbyConfig struct {
	Enabled  bool   `toml:"enabled"`
	RedisURL string `toml:"redis_url"`
}

// TOMLStreamConfig represents stream projection configuration in TOML
type TOMLStreamConfig struct {
	PostgresDSN        string `toml:"postgres_dsn"`
	BatchSize          int    `toml:"batch_size"`
	CheckpointRedisURL string `toml:"checkpoint_redis_url"`
}

// TOMLLeaderConfig represents leader election configuration in TOML
type TOMLLeaderConfig struct {
	Enabled         bool   `toml:"enabled"`
	InstanceID      string `toml:"instance_id"`
	TTL             string `toml:"ttl"`
	RefreshInterval string `toml:"refresh_interval"`
}

// TOMLSecretsConfig represents secrets provider configuration in TOML
type TOMLSecretsConfig struct {
	Provider      string `toml:"provider"`
	EncryptionKey string `toml:"encryption_key"`
	DataDir       string `toml:"data_dir"`

	// AWS
	AWSRegion   string `toml:"aws_region"`
	AWSPrefix   string `toml:"aws_prefix"`
	AWSEndpoint string `toml:"aws_endpoint"`

	// Vault
	VaultAddr      string `toml:"vault_addr"`
	VaultPath      string `toml:"vault_path"`
	VaultNamespace string `toml:"vault_namespace"`

	// GCP
	GCPProject string `toml:"gcp_project"`
	GCPPrefix  string `toml:"gcp_prefix"`
}

// TOMLNotificationsConfig represents warning notification settings in TOML
type TOMLNotificationsConfig struct {
	MinSeverity string `toml:"min_severity"`
	BatchWindow string `toml:"batch_window"`

	Email TOMLEmailNotificationConfig `toml:"email"`
	Teams TOMLTeamsNotificationConfig `toml:"teams"`
}

// TOMLEmailNotificationConfig represents SMTP notification settings in TOML
type TOMLEmailNotificationConfig struct {
	Enabled     bool   `toml:"enabled"`
	SMTPHost    string `toml:"smtp_host"`
	SMTPPort    int    `toml:"smtp_port"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	FromAddress string `toml:"from_address"`
	ToAddress   string `toml:"to_address"`
}

// TOMLTeamsNotificationConfig represents Teams webhook settings in TOML
type TOMLTeamsNotificationConfig struct {
	Enabled    bool   `toml:"enabled"`
	WebhookURL string `toml:"webhook_url"`
}

// ConfigPaths lists the paths to search for config files
var ConfigPaths = []string{
	"config.toml",
	"application.toml",
	"flowcatalyst.toml",
	"./config/config.toml",
	"./config/application.toml",
	"/etc/flowcatalyst/config.toml",
}

// LoadFromFile loads configuration from a TOML file
func LoadFromFile(path string) (*Config, error) {
	var tomlCfg TOMLConfig

	if _, err := toml.DecodeFile(path, &tomlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return tomlConfigToConfig(&tomlCfg)
}

// LoadWithFile loads configuration from file first, then overrides with env vars
func LoadWithFile() (*Config, error) {
	// Start with defaults from environment
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	// Check for explicit config file path
	configPath := os.Getenv("FLOWCATALYST_CONFIG")
	if configPath == "" {
		// Search for config file in standard locations
		for _, path := range ConfigPaths {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}
	}

	// If no config file found, just use env vars
	if configPath == "" {
		return cfg, resolveSecrets(cfg)
	}

	// Load from file
	fileCfg, err := LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	// Merge: file config as base, env vars override
	merged := mergeConfigs(fileCfg, cfg)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, resolveSecrets(merged)
}

// tomlConfigToConfig converts TOML config to the internal Config struct
func tomlConfigToConfig(tc *TOMLConfig) (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Port:        tc.HTTP.Port,
			CORSOrigins: tc.HTTP.CORSOrigins,
		},
		MongoDB: MongoDBConfig{
			URI:      tc.MongoDB.URI,
			Database: tc.MongoDB.Database,
		},
		Queue: QueueConfig{
			Type: tc.Queue.Type,
			NATS: NATSConfig{
				URL:     tc.Queue.NATS.URL,
				DataDir: tc.Queue.NATS.DataDir,
			},
			SQS: SQSConfig{
				QueueURL:          tc.Queue.SQS.QueueURL,
				Region:            tc.Queue.SQS.Region,
				WaitTimeSeconds:   tc.Queue.SQS.WaitTimeSeconds,
				VisibilityTimeout: tc.Queue.SQS.VisibilityTimeout,
			},
			STOMP: STOMPConfig{
				Address:     tc.Queue.STOMP.Address,
				Login:       tc.Queue.STOMP.Login,
				Passcode:    tc.Queue.STOMP.Passcode,
				Destination: tc.Queue.STOMP.Destination,
				PoolSize:    tc.Queue.STOMP.PoolSize,
			},
			Embedded: EmbeddedConfig{
				DBPath:            tc.Queue.Embedded.DBPath,
				InMemory:          tc.Queue.Embedded.InMemory,
				VisibilityTimeout: millis(tc.Queue.Embedded.VisibilityTimeoutMs),
				SnapshotInterval:  millis(tc.Queue.Embedded.SnapshotIntervalMs),
				DedupWindow:       millis(tc.Queue.Embedded.DedupWindowMs),
			},
		},
		Router: RouterConfig{
			MaxPools:             tc.Router.MaxPools,
			PoolWarningThreshold: tc.Router.PoolWarningThreshold,
			DefaultConnections:   tc.Router.DefaultConnections,
			ConfigSyncInterval:   millis(tc.Router.ConfigSyncIntervalMs),
			Mediation: MediationConfig{
				ConnectTimeout: millis(tc.Router.Mediation.ConnectTimeoutMs),
				RequestTimeout: millis(tc.Router.Mediation.RequestTimeoutMs),
				HeadersTimeout: millis(tc.Router.Mediation.HeadersTimeoutMs),
				Retries:        tc.Router.Mediation.Retries,
				RetryDelay:     millis(tc.Router.Mediation.RetryDelayMs),
				SigningSecret:  tc.Router.Mediation.SigningSecret,
			},
			HealthCheck: HealthCheckConfig{
				Interval:         millis(tc.Router.HealthCheck.IntervalMs),
				FailureThreshold: tc.Router.HealthCheck.FailureThreshold,
			},
			QueueHealth: QueueHealthConfig{
				BacklogThreshold: tc.Router.QueueHealth.BacklogThreshold,
				GrowthThreshold:  tc.Router.QueueHealth.GrowthThreshold,
				GrowthPeriods:    tc.Router.QueueHealth.GrowthPeriods,
			},
		},
		Outbox: OutboxConfig{
			PollInterval:        millis(tc.Outbox.PollIntervalMs),
			PollBatchSize:       tc.Outbox.PollBatchSize,
			APIBatchSize:        tc.Outbox.APIBatchSize,
			MaxConcurrentGroups: tc.Outbox.MaxConcurrentGroups,
			GlobalBufferSize:    tc.Outbox.GlobalBufferSize,
			MaxInFlight:         tc.Outbox.MaxInFlight,
			MaxRetries:          tc.Outbox.MaxRetries,
			ProcessingTimeout:   time.Duration(tc.Outbox.ProcessingTimeoutSeconds) * time.Second,
			RecoveryInterval:    millis(tc.Outbox.RecoveryIntervalMs),
			Database: OutboxDatabaseConfig{
				Driver:      tc.Outbox.Database.Driver,
				DSN:         tc.Outbox.Database.DSN,
				TablePrefix: tc.Outbox.Database.TablePrefix,
			},
		},
		Platform: PlatformConfig{
			BaseURL:   tc.Platform.BaseURL,
			AuthToken: tc.Platform.AuthToken,
			AppKey:    tc.Platform.AppKey,
		},
		Standby: StandbyConfig{
			Enabled:  tc.Standby.Enabled,
			RedisURL: tc.Standby.RedisURL,
		},
		Stream: StreamConfig{
			PostgresDSN:        tc.Stream.PostgresDSN,
			BatchSize:          tc.Stream.BatchSize,
			CheckpointRedisURL: tc.Stream.CheckpointRedisURL,
		},
		Leader: LeaderConfig{
			Enabled:    tc.Leader.Enabled,
			InstanceID: tc.Leader.InstanceID,
		},
		Secrets: secretsConfigFromTOML(&tc.Secrets),
		Notifications: NotificationsConfig{
			MinSeverity: tc.Notifications.MinSeverity,
			Email: EmailNotificationConfig{
				Enabled:     tc.Notifications.Email.Enabled,
				SMTPHost:    tc.Notifications.Email.SMTPHost,
				SMTPPort:    tc.Notifications.Email.SMTPPort,
				Username:    tc.Notifications.Email.Username,
				Password:    tc.Notifications.Email.Password,
				FromAddress: tc.Notifications.Email.FromAddress,
				ToAddress:   tc.Notifications.Email.ToAddress,
			},
			Teams: TeamsNotificationConfig{
				Enabled:    tc.Notifications.Teams.Enabled,
				WebhookURL: tc.Notifications.Teams.WebhookURL,
			},
		},
		DataDir: tc.DataDir,
		DevMode: tc.DevMode,
	}

	// Parse durations
	if tc.Leader.TTL != "" {
		if d, err := time.ParseDuration(tc.Leader.TTL); err == nil {
			cfg.Leader.TTL = d
		}
	}
	if tc.Leader.RefreshInterval != "" {
		if d, err := time.ParseDuration(tc.Leader.RefreshInterval); err == nil {
			cfg.Leader.RefreshInterval = d
		}
	}
	if tc.Notifications.BatchWindow != "" {
		if d, err := time.ParseDuration(tc.Notifications.BatchWindow); err == nil {
			cfg.Notifications.BatchWindow = d
		}
	}

	return cfg, nil
}

// secretsConfigFromTOML overlays file values on the provider defaults.
func secretsConfigFromTOML(ts *TOMLSecretsConfig) secrets.Config {
	sc := *secrets.DefaultConfig()
	if ts.Provider != "" {
		sc.Provider = secrets.ProviderType(ts.Provider)
	}
	if ts.EncryptionKey != "" {
		sc.EncryptionKey = ts.EncryptionKey
	}
	if ts.DataDir != "" {
		sc.DataDir = ts.DataDir
	}
	if ts.AWSRegion != "" {
		sc.AWSRegion = ts.AWSRegion
	}
	if ts.AWSPrefix != "" {
		sc.AWSPrefix = ts.AWSPrefix
	}
	if ts.AWSEndpoint != "" {
		sc.AWSEndpoint = ts.AWSEndpoint
	}
	if ts.VaultAddr != "" {
		sc.VaultAddr = ts.VaultAddr
	}
	if ts.VaultPath != "" {
		sc.VaultPath = ts.VaultPath
	}
	if ts.VaultNamespace != "" {
		sc.VaultNamespace = ts.VaultNamespace
	}
	if ts.GCPProject != "" {
		sc.GCPProject = ts.GCPProject
	}
	if ts.GCPPrefix != "" {
		sc.GCPPrefix = ts.GCPPrefix
	}
	return sc
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// mergeConfigs merges two configs, with override taking precedence for values
// that differ from their environment defaults.
func mergeConfigs(base, override *Config) *Config {
	result := *base
	defaults, _ := defaultsSnapshot()

	// HTTP
	if override.HTTP.Port != 0 && override.HTTP.Port != defaults.HTTP.Port {
		result.HTTP.Port = override.HTTP.Port
	}
	if result.HTTP.Port == 0 {
		result.HTTP.Port = defaults.HTTP.Port
	}
	if len(override.HTTP.CORSOrigins) > 0 {
		result.HTTP.CORSOrigins = override.HTTP.CORSOrigins
	}

	// MongoDB
	if override.MongoDB.URI != "" && override.MongoDB.URI != defaults.MongoDB.URI {
		result.MongoDB.URI = override.MongoDB.URI
	}
	if override.MongoDB.Database != "" && override.MongoDB.Database != defaults.MongoDB.Database {
		result.MongoDB.Database = override.MongoDB.Database
	}

	// Queue
	if override.Queue.Type != "" && override.Queue.Type != defaults.Queue.Type {
		result.Queue.Type = override.Queue.Type
	}
	if result.Queue.Type == "" {
		result.Queue.Type = defaults.Queue.Type
	}
	if override.Queue.NATS.URL != "" && override.Queue.NATS.URL != defaults.Queue.NATS.URL {
		result.Queue.NATS.URL = override.Queue.NATS.URL
	}
	if override.Queue.SQS.QueueURL != "" {
		result.Queue.SQS.QueueURL = override.Queue.SQS.QueueURL
	}
	if override.Queue.STOMP.Address != "" {
		result.Queue.STOMP.Address = override.Queue.STOMP.Address
	}
	if override.Queue.Embedded.DBPath != "" && override.Queue.Embedded.DBPath != defaults.Queue.Embedded.DBPath {
		result.Queue.Embedded.DBPath = override.Queue.Embedded.DBPath
	}
	fillEmbeddedDefaults(&result.Queue.Embedded, &defaults.Queue.Embedded)

	// Router
	fillRouterDefaults(&result.Router, &override.Router, &defaults.Router)

	// Outbox
	fillOutboxDefaults(&result.Outbox, &override.Outbox, &defaults.Outbox)

	// Platform
	if override.Platform.BaseURL != "" && override.Platform.BaseURL != defaults.Platform.BaseURL {
		result.Platform.BaseURL = override.Platform.BaseURL
	}
	if override.Platform.AuthToken != "" {
		result.Platform.AuthToken = override.Platform.AuthToken
	}
	if override.Platform.AppKey != "" {
		result.Platform.AppKey = override.Platform.AppKey
	}

	// Standby
	if override.Standby.Enabled {
		result.Standby.Enabled = true
	}
	if override.Standby.RedisURL != "" && override.Standby.RedisURL != defaults.Standby.RedisURL {
		result.Standby.RedisURL = override.Standby.RedisURL
	}

	// Stream
	if override.Stream.PostgresDSN != "" {
		result.Stream.PostgresDSN = override.Stream.PostgresDSN
	}
	if result.Stream.BatchSize == 0 {
		result.Stream.BatchSize = defaults.Stream.BatchSize
	}
	if override.Stream.CheckpointRedisURL != "" {
		result.Stream.CheckpointRedisURL = override.Stream.CheckpointRedisURL
	}

	// Leader
	if override.Leader.Enabled {
		result.Leader.Enabled = true
	}
	if override.Leader.InstanceID != "" {
		result.Leader.InstanceID = override.Leader.InstanceID
	}
	if result.Leader.TTL == 0 {
		result.Leader.TTL = defaults.Leader.TTL
	}
	if result.Leader.RefreshInterval == 0 {
		result.Leader.RefreshInterval = defaults.Leader.RefreshInterval
	}

	// Secrets
	fillSecretsDefaults(&result.Secrets, &override.Secrets, &defaults.Secrets)

	// Notifications
	fillNotificationDefaults(&result.Notifications, &override.Notifications, &defaults.Notifications)

	// General
	if override.DataDir != "" && override.DataDir != defaults.DataDir {
		result.DataDir = override.DataDir
	}
	if result.DataDir == "" {
		result.DataDir = defaults.DataDir
	}
	if override.DevMode {
		result.DevMode = true
	}

	return &result
}

func fillEmbeddedDefaults(dst, def *EmbeddedConfig) {
	if dst.VisibilityTimeout == 0 {
		dst.VisibilityTimeout = def.VisibilityTimeout
	}
	if dst.SnapshotInterval == 0 {
		dst.SnapshotInterval = def.SnapshotInterval
	}
	if dst.DedupWindow == 0 {
		dst.DedupWindow = def.DedupWindow
	}
	if dst.DBPath == "" {
		dst.DBPath = def.DBPath
	}
}

func fillRouterDefaults(dst, override, def *RouterConfig) {
	if override.MaxPools != 0 && override.MaxPools != def.MaxPools {
		dst.MaxPools = override.MaxPools
	}
	if dst.MaxPools == 0 {
		dst.MaxPools = def.MaxPools
	}
	if override.PoolWarningThreshold != 0 && override.PoolWarningThreshold != def.PoolWarningThreshold {
		dst.PoolWarningThreshold = override.PoolWarningThreshold
	}
	if dst.PoolWarningThreshold == 0 {
		dst.PoolWarningThreshold = def.PoolWarningThreshold
	}
	if override.DefaultConnections != 0 && override.DefaultConnections != def.DefaultConnections {
		dst.DefaultConnections = override.DefaultConnections
	}
	if dst.DefaultConnections == 0 {
		dst.DefaultConnections = def.DefaultConnections
	}
	if dst.ConfigSyncInterval == 0 {
		dst.ConfigSyncInterval = def.ConfigSyncInterval
	}

	m := &dst.Mediation
	om := &override.Mediation
	dm := &def.Mediation
	if om.ConnectTimeout != 0 && om.ConnectTimeout != dm.ConnectTimeout {
		m.ConnectTimeout = om.ConnectTimeout
	}
	if m.ConnectTimeout == 0 {
		m.ConnectTimeout = dm.ConnectTimeout
	}
	if om.RequestTimeout != 0 && om.RequestTimeout != dm.RequestTimeout {
		m.RequestTimeout = om.RequestTimeout
	}
	if m.RequestTimeout == 0 {
		m.RequestTimeout = dm.RequestTimeout
	}
	if om.HeadersTimeout != 0 && om.HeadersTimeout != dm.HeadersTimeout {
		m.HeadersTimeout = om.HeadersTimeout
	}
	if m.HeadersTimeout == 0 {
		m.HeadersTimeout = dm.HeadersTimeout
	}
	if om.Retries != 0 && om.Retries != dm.Retries {
		m.Retries = om.Retries
	}
	if m.Retries == 0 {
		m.Retries = dm.Retries
	}
	if om.RetryDelay != 0 && om.RetryDelay != dm.RetryDelay {
		m.RetryDelay = om.RetryDelay
	}
	if m.RetryDelay == 0 {
		m.RetryDelay = dm.RetryDelay
	}
	if om.SigningSecret != "" {
		m.SigningSecret = om.SigningSecret
	}

	if dst.HealthCheck.Interval == 0 {
		dst.HealthCheck.Interval = def.HealthCheck.Interval
	}
	if dst.HealthCheck.FailureThreshold == 0 {
		dst.HealthCheck.FailureThreshold = def.HealthCheck.FailureThreshold
	}
	if override.HealthCheck.Interval != 0 && override.HealthCheck.Interval != def.HealthCheck.Interval {
		dst.HealthCheck.Interval = override.HealthCheck.Interval
	}
	if override.HealthCheck.FailureThreshold != 0 && override.HealthCheck.FailureThreshold != def.HealthCheck.FailureThreshold {
		dst.HealthCheck.FailureThreshold = override.HealthCheck.FailureThreshold
	}

	if dst.QueueHealth.BacklogThreshold == 0 {
		dst.QueueHealth.BacklogThreshold = def.QueueHealth.BacklogThreshold
	}
	if dst.QueueHealth.GrowthThreshold == 0 {
		dst.QueueHealth.GrowthThreshold = def.QueueHealth.GrowthThreshold
	}
	if dst.QueueHealth.GrowthPeriods == 0 {
		dst.QueueHealth.GrowthPeriods = def.QueueHealth.GrowthPeriods
	}
	if override.QueueHealth.BacklogThreshold != 0 && override.QueueHealth.BacklogThreshold != def.QueueHealth.BacklogThreshold {
		dst.QueueHealth.BacklogThreshold = override.QueueHealth.BacklogThreshold
	}
	if override.QueueHealth.GrowthThreshold != 0 && override.QueueHealth.GrowthThreshold != def.QueueHealth.GrowthThreshold {
		dst.QueueHealth.GrowthThreshold = override.QueueHealth.GrowthThreshold
	}
	if override.QueueHealth.GrowthPeriods != 0 && override.QueueHealth.GrowthPeriods != def.QueueHealth.GrowthPeriods {
		dst.QueueHealth.GrowthPeriods = override.QueueHealth.GrowthPeriods
	}
}

func fillOutboxDefaults(dst, override, def *OutboxConfig) {
	if override.Database.DSN != "" {
		dst.Database.DSN = override.Database.DSN
	}
	if override.Database.Driver != "" && override.Database.Driver != def.Database.Driver {
		dst.Database.Driver = override.Database.Driver
	}
	if dst.Database.Driver == "" {
		dst.Database.Driver = def.Database.Driver
	}
	if dst.Database.TablePrefix == "" {
		dst.Database.TablePrefix = def.Database.TablePrefix
	}

	if dst.PollInterval == 0 {
		dst.PollInterval = def.PollInterval
	}
	if dst.PollBatchSize == 0 {
		dst.PollBatchSize = def.PollBatchSize
	}
	if dst.APIBatchSize == 0 {
		dst.APIBatchSize = def.APIBatchSize
	}
	if dst.MaxConcurrentGroups == 0 {
		dst.MaxConcurrentGroups = def.MaxConcurrentGroups
	}
	if dst.GlobalBufferSize == 0 {
		dst.GlobalBufferSize = def.GlobalBufferSize
	}
	if dst.MaxInFlight == 0 {
		dst.MaxInFlight = def.MaxInFlight
	}
	if dst.MaxRetries == 0 {
		dst.MaxRetries = def.MaxRetries
	}
	if dst.ProcessingTimeout == 0 {
		dst.ProcessingTimeout = def.ProcessingTimeout
	}
	if dst.RecoveryInterval == 0 {
		dst.RecoveryInterval = def.RecoveryInterval
	}

	if override.PollInterval != 0 && override.PollInterval != def.PollInterval {
		dst.PollInterval = override.PollInterval
	}
	if override.PollBatchSize != 0 && override.PollBatchSize != def.PollBatchSize {
		dst.PollBatchSize = override.PollBatchSize
	}
	if override.APIBatchSize != 0 && override.APIBatchSize != def.APIBatchSize {
		dst.APIBatchSize = override.APIBatchSize
	}
	if override.MaxConcurrentGroups != 0 && override.MaxConcurrentGroups != def.MaxConcurrentGroups {
		dst.MaxConcurrentGroups = override.MaxConcurrentGroups
	}
	if override.MaxInFlight != 0 && override.MaxInFlight != def.MaxInFlight {
		dst.MaxInFlight = override.MaxInFlight
	}
	if override.MaxRetries != 0 && override.MaxRetries != def.MaxRetries {
		dst.MaxRetries = override.MaxRetries
	}
	if override.ProcessingTimeout != 0 && override.ProcessingTimeout != def.ProcessingTimeout {
		dst.ProcessingTimeout = override.ProcessingTimeout
	}
	if override.RecoveryInterval != 0 && override.RecoveryInterval != def.RecoveryInterval {
		dst.RecoveryInterval = override.RecoveryInterval
	}
}

func fillSecretsDefaults(dst, override, def *secrets.Config) {
	if override.Provider != "" && override.Provider != def.Provider {
		dst.Provider = override.Provider
	}
	if dst.Provider == "" {
		dst.Provider = def.Provider
	}
	if override.EncryptionKey != "" {
		dst.EncryptionKey = override.EncryptionKey
	}
	if override.DataDir != "" && override.DataDir != def.DataDir {
		dst.DataDir = override.DataDir
	}
	if dst.DataDir == "" {
		dst.DataDir = def.DataDir
	}
	if override.AWSRegion != "" {
		dst.AWSRegion = override.AWSRegion
	}
	if override.AWSPrefix != "" && override.AWSPrefix != def.AWSPrefix {
		dst.AWSPrefix = override.AWSPrefix
	}
	if dst.AWSPrefix == "" {
		dst.AWSPrefix = def.AWSPrefix
	}
	if override.AWSEndpoint != "" {
		dst.AWSEndpoint = override.AWSEndpoint
	}
	if override.AWSAccessKey != "" {
		dst.AWSAccessKey = override.AWSAccessKey
	}
	if override.AWSSecretKey != "" {
		dst.AWSSecretKey = override.AWSSecretKey
	}
	if override.VaultAddr != "" {
		dst.VaultAddr = override.VaultAddr
	}
	if override.VaultToken != "" {
		dst.VaultToken = override.VaultToken
	}
	if override.VaultPath != "" && override.VaultPath != def.VaultPath {
		dst.VaultPath = override.VaultPath
	}
	if dst.VaultPath == "" {
		dst.VaultPath = def.VaultPath
	}
	if override.VaultNamespace != "" {
		dst.VaultNamespace = override.VaultNamespace
	}
	if override.GCPProject != "" {
		dst.GCPProject = override.GCPProject
	}
	if override.GCPPrefix != "" && override.GCPPrefix != def.GCPPrefix {
		dst.GCPPrefix = override.GCPPrefix
	}
	if dst.GCPPrefix == "" {
		dst.GCPPrefix = def.GCPPrefix
	}
}

func fillNotificationDefaults(dst, override, def *NotificationsConfig) {
	if override.MinSeverity != "" && override.MinSeverity != def.MinSeverity {
		dst.MinSeverity = override.MinSeverity
	}
	if dst.MinSeverity == "" {
		dst.MinSeverity = def.MinSeverity
	}
	if override.BatchWindow != 0 && override.BatchWindow != def.BatchWindow {
		dst.BatchWindow = override.BatchWindow
	}
	if dst.BatchWindow == 0 {
		dst.BatchWindow = def.BatchWindow
	}

	if override.Email.Enabled {
		dst.Email.Enabled = true
	}
	if override.Email.SMTPHost != "" {
		dst.Email.SMTPHost = override.Email.SMTPHost
	}
	if override.Email.SMTPPort != 0 && override.Email.SMTPPort != def.Email.SMTPPort {
		dst.Email.SMTPPort = override.Email.SMTPPort
	}
	if dst.Email.SMTPPort == 0 {
		dst.Email.SMTPPort = def.Email.SMTPPort
	}
	if override.Email.Username != "" {
		dst.Email.Username = override.Email.Username
	}
	if override.Email.Password != "" {
		dst.Email.Password = override.Email.Password
	}
	if override.Email.FromAddress != "" {
		dst.Email.FromAddress = override.Email.FromAddress
	}
	if override.Email.ToAddress != "" {
		dst.Email.ToAddress = override.Email.ToAddress
	}

	if override.Teams.Enabled {
		dst.Teams.Enabled = true
	}
	if override.Teams.WebhookURL != "" {
		dst.Teams.WebhookURL = override.Teams.WebhookURL
	}
}

// defaultsSnapshot builds the default config with the environment cleared out
// of the comparison, so merge can tell "explicitly set" from "defaulted".
func defaultsSnapshot() (*Config, error) {
	return &Config{
		HTTP: HTTPConfig{Port: 8080},
		MongoDB: MongoDBConfig{
			URI:      "mongodb://localhost:27017/?replicaSet=rs0&directConnection=true",
			Database: "flowcatalyst",
		},
		Queue: QueueConfig{
			Type: "embedded",
			NATS: NATSConfig{URL: "nats://localhost:4222"},
			Embedded: EmbeddedConfig{
				DBPath:            "./data/queue.json",
				VisibilityTimeout: 120 * time.Second,
				SnapshotInterval:  10 * time.Second,
				DedupWindow:       5 * time.Minute,
			},
		},
		Router: RouterConfig{
			MaxPools:             2000,
			PoolWarningThreshold: 1000,
			DefaultConnections:   1,
			ConfigSyncInterval:   time.Minute,
			Mediation: MediationConfig{
				ConnectTimeout: 5 * time.Second,
				RequestTimeout: 900 * time.Second,
				HeadersTimeout: 30 * time.Second,
				Retries:        3,
				RetryDelay:     time.Second,
			},
			HealthCheck: HealthCheckConfig{
				Interval:         time.Minute,
				FailureThreshold: 3,
			},
			QueueHealth: QueueHealthConfig{
				BacklogThreshold: 1000,
				GrowthThreshold:  100,
				GrowthPeriods:    3,
			},
		},
		Outbox: OutboxConfig{
			PollInterval:        time.Second,
			PollBatchSize:       500,
			APIBatchSize:        100,
			MaxConcurrentGroups: 10,
			GlobalBufferSize:    5000,
			MaxInFlight:         2500,
			MaxRetries:          3,
			ProcessingTimeout:   300 * time.Second,
			RecoveryInterval:    time.Minute,
			Database: OutboxDatabaseConfig{
				Driver:      "postgres",
				TablePrefix: "outbox",
			},
		},
		Platform: PlatformConfig{BaseURL: "http://localhost:8080"},
		Standby:  StandbyConfig{RedisURL: "redis://localhost:6379"},
		Stream:   StreamConfig{BatchSize: 200},
		Leader: LeaderConfig{
			TTL:             30 * time.Second,
			RefreshInterval: 10 * time.Second,
		},
		Secrets: *secrets.DefaultConfig(),
		Notifications: NotificationsConfig{
			MinSeverity: "WARNING",
			BatchWindow: 5 * time.Minute,
			Email:       EmailNotificationConfig{SMTPPort: 587},
		},
		DataDir: "./data",
	}, nil
}

// WriteExampleConfig writes an example configuration file
func WriteExampleConfig(path string) error {
	example := `# FlowCatalyst Configuration
# Environment variables override these settings

data_dir = "./data"
dev_mode = false

[http]
port = 8080
cors_origins = ["http://localhost:4200"]

[mongodb]
uri = "mongodb://localhost:27017/?replicaSet=rs0&directConnection=true"
database = "flowcatalyst"

[queue]
type = "embedded"  # embedded, nats, sqs, or stomp

[queue.nats]
url = "nats://localhost:4222"
data_dir = "./data/nats"

[queue.sqs]
queue_url = ""
region = "us-east-1"
wait_time_seconds = 20
visibility_timeout = 120

[queue.stomp]
address = ""
login = ""
passcode = ""
destination = "/queue/flowcatalyst"
pool_size = 4

[queue.embedded]
db_path = "./data/queue.json"
in_memory = false
visibility_timeout_ms = 120000
snapshot_interval_ms = 10000
dedup_window_ms = 300000

[router]
max_pools = 2000
pool_warning_threshold = 1000
default_connections = 1
config_sync_interval_ms = 60000

[router.mediation]
connect_timeout_ms = 5000
request_timeout_ms = 900000
headers_timeout_ms = 30000
retries = 3
retry_delay_ms = 1000
signing_secret = ""

[router.health_check]
interval_ms = 60000
failure_threshold = 3

[router.queue_health]
backlog_threshold = 1000
growth_threshold = 100
growth_periods = 3

[outbox]
poll_interval_ms = 1000
poll_batch_size = 500
api_batch_size = 100
max_concurrent_groups = 10
global_buffer_size = 5000
max_in_flight = 2500
max_retries = 3
processing_timeout_seconds = 300
recovery_interval_ms = 60000

[outbox.database]
driver = "postgres"  # postgres, mysql, or mongodb
dsn = ""
table_prefix = "outbox"

[platform]
base_url = "http://localhost:8080"
auth_token = ""
app_key = ""

[standby]
enabled = false
redis_url = "redis://localhost:6379"

[stream]
postgres_dsn = ""
batch_size = 200
checkpoint_redis_url = ""

[leader]
enabled = false
instance_id = ""
ttl = "30s"
refresh_interval = "10s"

[secrets]
provider = "env"  # env, encrypted, aws-sm, vault, gcp-sm

# Encrypted provider
encryption_key = ""
data_dir = "./data/secrets"

# AWS Secrets Manager
aws_region = ""
aws_prefix = "/flowcatalyst/"
aws_endpoint = ""

# HashiCorp Vault
vault_addr = ""
vault_path = "secret/data/flowcatalyst"
vault_namespace = ""

# GCP Secret Manager
gcp_project = ""
gcp_prefix = "flowcatalyst-"

[notifications]
min_severity = "WARNING"
batch_window = "5m"

[notifications.email]
enabled = false
smtp_host = ""
smtp_port = 587
username = ""
password = ""
from_address = ""
to_address = ""

[notifications.teams]
enabled = false
webhook_url = ""
`

	// Ensure directory exists
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	return os.WriteFile(path, []byte(example), 0644)
}
