package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultConfigDir  = ".devsecwatch"
	DefaultConfigFile = "config.json"
	DefaultDBFile     = ".devsecwatch/devsecwatch.db"
	EnvPrefix         = "DEVSECWATCH"
)

// Load reads the config file (if any), overlays DEVSECWATCH_* environment
// variables and returns a populated Config. configPath overrides the default
// location.
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
	}

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	expandPaths(&cfg, home)
	normalise(&cfg)
	return &cfg, nil
}

// Save writes the config to disk as JSON.
func Save(cfg *Config, configPath string) error {
	path, err := ConfigPath(configPath)
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("serialising config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// ConfigPath returns the effective config file path.
func ConfigPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// setDefaults populates viper with out-of-the-box values. Every key needs a
// default so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", filepath.Join(home, DefaultDBFile))
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("queue.scan_queue", "scans")
	v.SetDefault("queue.notification_queue", "notifications")
	v.SetDefault("queue.max_retry", 3)
	v.SetDefault("queue.task_timeout", 10*time.Minute)

	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.shutdown_timeout", 30*time.Second)

	v.SetDefault("workspace.root", "")
	v.SetDefault("workspace.clone_timeout", 60*time.Second)
	v.SetDefault("workspace.git_token", "")

	v.SetDefault("catalog.extra_excludes", []string{})

	v.SetDefault("analyzer.engine", "semgrep")
	v.SetDefault("analyzer.rules", "auto")
	v.SetDefault("analyzer.timeout", 180*time.Second)
	v.SetDefault("analyzer.bin_dir", "")
	v.SetDefault("analyzer.prefer_docker", false)
	v.SetDefault("analyzer.docker_image", "")

	v.SetDefault("ai.service_url", "")
	v.SetDefault("ai.timeout", 30*time.Second)
	v.SetDefault("ai.failure_threshold", 3)
	v.SetDefault("ai.cooldown", 2*time.Minute)

	v.SetDefault("enrichment.cache_ttl", 24*time.Hour)
	v.SetDefault("enrichment.cache_prefix", "explanation_v3")
	v.SetDefault("enrichment.parallelism", 1)
	v.SetDefault("enrichment.templates_file", "")

	v.SetDefault("notify.destination_prefix", "/queue/notifications/")
	v.SetDefault("notify.webhook.url", "")
	v.SetDefault("notify.webhook.secret", "")
	v.SetDefault("notify.slack.webhook_url", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("janitor.schedule", "@every 5m")
	v.SetDefault("janitor.stale_after", 30*time.Minute)
	v.SetDefault("janitor.fail_stale", false)

	v.SetDefault("logging.format", "text")
}

// normalise clamps values that would otherwise break the pipeline.
func normalise(cfg *Config) {
	switch {
	case cfg.Worker.Concurrency < 1:
		cfg.Worker.Concurrency = 1
	case cfg.Worker.Concurrency > 3:
		cfg.Worker.Concurrency = 3
	}
	if cfg.Enrichment.Parallelism < 1 {
		cfg.Enrichment.Parallelism = 1
	}
	if cfg.Workspace.Root == "" {
		cfg.Workspace.Root = os.TempDir()
	}
	cfg.Analyzer.Engine = strings.ToLower(strings.TrimSpace(cfg.Analyzer.Engine))
}

// expandPaths resolves ~ in configured paths.
func expandPaths(cfg *Config, home string) {
	cfg.Database.Path = expandHome(cfg.Database.Path, home)
	cfg.Analyzer.BinDir = expandHome(cfg.Analyzer.BinDir, home)
	cfg.Workspace.Root = expandHome(cfg.Workspace.Root, home)
	cfg.Enrichment.TemplatesFile = expandHome(cfg.Enrichment.TemplatesFile, home)
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file")
}

const redactedValue = "***"

// Redacted returns a copy of cfg with credentials masked, for display.
func (c Config) Redacted() Config {
	mask := func(s *string) {
		if *s != "" {
			*s = redactedValue
		}
	}
	mask(&c.Database.DSN)
	mask(&c.Redis.Password)
	mask(&c.Workspace.GitToken)
	mask(&c.Notify.Webhook.Secret)
	mask(&c.Notify.Slack.WebhookURL)
	return c
}
