package config

import "time"

// Config is the root configuration structure for the scan worker.
// Serialised to ~/.devsecwatch/config.json.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"   json:"database"`
	Redis      RedisConfig      `mapstructure:"redis"      json:"redis"`
	Queue      QueueConfig      `mapstructure:"queue"      json:"queue"`
	Worker     WorkerConfig     `mapstructure:"worker"     json:"worker"`
	Workspace  WorkspaceConfig  `mapstructure:"workspace"  json:"workspace"`
	Catalog    CatalogConfig    `mapstructure:"catalog"    json:"catalog"`
	Analyzer   AnalyzerConfig   `mapstructure:"analyzer"   json:"analyzer"`
	AI         AIConfig         `mapstructure:"ai"         json:"ai"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment" json:"enrichment"`
	Notify     NotifyConfig     `mapstructure:"notify"     json:"notify"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    json:"metrics"`
	Janitor    JanitorConfig    `mapstructure:"janitor"    json:"janitor"`
	Logging    LoggingConfig    `mapstructure:"logging"    json:"logging"`
}

// DatabaseConfig controls the storage backend.
type DatabaseConfig struct {
	// Driver is "sqlite" (default), "mysql" or "postgres".
	Driver string `mapstructure:"driver" json:"driver"`
	// Path is the SQLite file path (expanded at runtime).
	Path string `mapstructure:"path"   json:"path"`
	// DSN is the data source name for mysql and postgres.
	DSN string `mapstructure:"dsn"    json:"dsn"`
	// MaxOpenConns caps the pool for mysql and postgres. SQLite always uses one.
	MaxOpenConns    int           `mapstructure:"max_open_conns"    json:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// RedisConfig is shared by the job queue and the enrichment cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"     json:"addr"`
	Password string `mapstructure:"password" json:"password"`
	DB       int    `mapstructure:"db"       json:"db"`
}

// QueueConfig names the queues and the broker-side retry policy.
type QueueConfig struct {
	ScanQueue         string        `mapstructure:"scan_queue"         json:"scan_queue"`
	NotificationQueue string        `mapstructure:"notification_queue" json:"notification_queue"`
	MaxRetry          int           `mapstructure:"max_retry"          json:"max_retry"`
	TaskTimeout       time.Duration `mapstructure:"task_timeout"       json:"task_timeout"`
}

// WorkerConfig controls the consumer pool.
type WorkerConfig struct {
	// Concurrency is the number of worker slots (clamped to 1..3).
	Concurrency int `mapstructure:"concurrency" json:"concurrency"`
	// ShutdownTimeout bounds how long in-flight jobs may run after a stop signal.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
}

// WorkspaceConfig controls where repositories are cloned.
type WorkspaceConfig struct {
	// Root is the parent directory for per-job workspaces (default: os.TempDir()).
	Root         string        `mapstructure:"root"          json:"root"`
	CloneTimeout time.Duration `mapstructure:"clone_timeout" json:"clone_timeout"`
	// GitToken is sent as HTTPS basic auth for private repositories.
	GitToken string `mapstructure:"git_token" json:"git_token"`
}

// CatalogConfig tunes source file selection.
type CatalogConfig struct {
	// ExtraExcludes are doublestar globs applied on top of the built-in
	// excluded directories (e.g. "**/vendor/**").
	ExtraExcludes []string `mapstructure:"extra_excludes" json:"extra_excludes"`
}

// AnalyzerConfig controls the static analysis engine.
type AnalyzerConfig struct {
	// Engine is "semgrep" (default) or "opengrep".
	Engine  string        `mapstructure:"engine"  json:"engine"`
	Rules   string        `mapstructure:"rules"   json:"rules"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
	// BinDir is searched before PATH for the engine binary.
	BinDir string `mapstructure:"bin_dir" json:"bin_dir"`
	// PreferDocker forces docker execution even when a local binary is present.
	PreferDocker bool   `mapstructure:"prefer_docker" json:"prefer_docker"`
	DockerImage  string `mapstructure:"docker_image"  json:"docker_image"`
}

// AIConfig points at the explanation service.
type AIConfig struct {
	// ServiceURL is the base URL; empty disables AI explanations.
	ServiceURL string        `mapstructure:"service_url" json:"service_url"`
	Timeout    time.Duration `mapstructure:"timeout"     json:"timeout"`
	// FailureThreshold consecutive failures open the circuit for Cooldown.
	FailureThreshold int           `mapstructure:"failure_threshold" json:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"          json:"cooldown"`
}

// EnrichmentConfig controls the explanation cache and fan-out.
type EnrichmentConfig struct {
	CacheTTL    time.Duration `mapstructure:"cache_ttl"    json:"cache_ttl"`
	CachePrefix string        `mapstructure:"cache_prefix" json:"cache_prefix"`
	// Parallelism bounds concurrent enrichment within one job; 1 is sequential.
	Parallelism int `mapstructure:"parallelism" json:"parallelism"`
	// TemplatesFile replaces the built-in fallback templates when set.
	TemplatesFile string `mapstructure:"templates_file" json:"templates_file"`
}

// NotifyConfig controls completion notifications.
type NotifyConfig struct {
	// DestinationPrefix is joined with the lowercased username.
	DestinationPrefix string        `mapstructure:"destination_prefix" json:"destination_prefix"`
	Webhook           WebhookConfig `mapstructure:"webhook"            json:"webhook"`
	Slack             SlackConfig   `mapstructure:"slack"              json:"slack"`
}

// WebhookConfig posts signed JSON to an arbitrary endpoint.
type WebhookConfig struct {
	URL    string `mapstructure:"url"    json:"url"`
	Secret string `mapstructure:"secret" json:"secret"`
}

// SlackConfig posts to a Slack incoming webhook.
type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url" json:"webhook_url"`
}

// MetricsConfig controls the health and metrics listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Addr    string `mapstructure:"addr"    json:"addr"`
}

// JanitorConfig controls the stale PROCESSING job sweep.
type JanitorConfig struct {
	Schedule   string        `mapstructure:"schedule"    json:"schedule"`
	StaleAfter time.Duration `mapstructure:"stale_after" json:"stale_after"`
	// FailStale marks stale jobs FAILED instead of only reporting them.
	FailStale bool `mapstructure:"fail_stale" json:"fail_stale"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	// Format is "text" (default) or "json".
	Format string `mapstructure:"format" json:"format"`
}
