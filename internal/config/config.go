package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

// Config represents the complete clusterscaler configuration
type Config struct {
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Defaults   scaling.Defaults `mapstructure:"defaults"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	History    HistoryConfig    `mapstructure:"history"`
	Mongo      MongoConfig      `mapstructure:"mongo"`
	LoadSource LoadSourceConfig `mapstructure:"loadsource"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Server     ServerConfig     `mapstructure:"server"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SchedulerConfig controls the evaluation cadence and its time budgets
type SchedulerConfig struct {
	// Interval is the time between cycle starts (default: 5s)
	Interval time.Duration `mapstructure:"interval"`
	// WorkerPoolSize bounds concurrent cluster evaluations in a cycle (default: 8)
	WorkerPoolSize int `mapstructure:"worker_pool_size"`
	// LoadTimeout bounds one load source fetch
	LoadTimeout time.Duration `mapstructure:"load_timeout"`
	// AdminTimeout bounds one resize call
	AdminTimeout time.Duration `mapstructure:"admin_timeout"`
	// HistoryTimeout bounds each history read, and all attempts of one append
	HistoryTimeout time.Duration `mapstructure:"history_timeout"`
	// RegistryTimeout bounds the cluster listing at the start of a cycle
	RegistryTimeout time.Duration `mapstructure:"registry_timeout"`
	// DrainTimeout is how long shutdown waits for in-flight evaluations
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
	// SampleWindow is the lookback window passed to the load source
	SampleWindow time.Duration `mapstructure:"sample_window"`
	// MaxSampleAge is the age beyond which a sample is ignored (0 = never stale)
	MaxSampleAge time.Duration `mapstructure:"max_sample_age"`
	// DryRun records resize decisions without applying them
	DryRun bool `mapstructure:"dry_run"`
	// FailureBackoff holds clusters that keep failing
	FailureBackoff FailureBackoffConfig `mapstructure:"failure_backoff"`
}

// FailureBackoffConfig controls the hold applied after repeated failures
type FailureBackoffConfig struct {
	// Threshold is the number of consecutive failures before holding (0 = disabled)
	Threshold int `mapstructure:"threshold"`
	// Base is the hold after the first failure past the threshold
	Base time.Duration `mapstructure:"base"`
	// Max caps the hold
	Max time.Duration `mapstructure:"max"`
}

// RegistryConfig selects where cluster configurations live
type RegistryConfig struct {
	// Backend is "file" or "mongo" (default: "file")
	Backend string `mapstructure:"backend"`
	// File is the YAML cluster list, reloaded on change
	File string `mapstructure:"file"`
	// MongoCollection holds one document per cluster
	MongoCollection string `mapstructure:"mongo_collection"`
}

// HistoryConfig selects where scaling events are persisted
type HistoryConfig struct {
	// Backend is "memory", "file" or "mongo" (default: "file")
	Backend string `mapstructure:"backend"`
	// Dir holds one JSONL file per cluster for the file backend
	Dir string `mapstructure:"dir"`
	// MongoCollection holds scaling events for the mongo backend
	MongoCollection string `mapstructure:"mongo_collection"`
	// Retention expires events via a TTL index (mongo only, 0 = keep forever)
	Retention time.Duration `mapstructure:"retention"`
	// MemoryLimit caps events kept per cluster by the memory backend
	MemoryLimit int `mapstructure:"memory_limit"`
}

// MongoConfig is shared by the mongo registry and history backends
type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// LoadSourceConfig configures where load samples come from
type LoadSourceConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig configures the Prometheus load source. Queries are Go
// templates rendered with .ClusterID and .Window.
type PrometheusConfig struct {
	Address          string `mapstructure:"address"`
	UtilizationQuery string `mapstructure:"utilization_query"`
	NodesQuery       string `mapstructure:"nodes_query"`
	// FreshnessQuery returns the unix time of the newest raw sample behind
	// the utilization query. Empty means samples are stamped with the
	// query evaluation time and staleness is left to Prometheus lookback.
	FreshnessQuery string `mapstructure:"freshness_query"`
}

// AdminConfig configures the cluster admin client
type AdminConfig struct {
	// Backend is "eks" or "dryrun" (default: "eks")
	Backend string `mapstructure:"backend"`
	// Region is the AWS region for the eks backend
	Region string `mapstructure:"region"`
	// MaxRPS limits resize calls per second across all clusters (0 = unlimited)
	MaxRPS float64 `mapstructure:"max_rps"`
	// Burst is the rate limiter bucket size
	Burst int `mapstructure:"burst"`
}

// ServerConfig controls the HTTP health and metrics surface
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// TracingConfig controls OpenTelemetry tracing
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	ServiceName string  `mapstructure:"service_name"`
}

// NotifyConfig controls alerting
type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig configures the Telegram alerter
type TelegramConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	BotToken string  `mapstructure:"bot_token"`
	ChatIDs  []int64 `mapstructure:"chat_ids"`
	// RepeatInterval suppresses repeat alerts for the same cluster
	RepeatInterval time.Duration `mapstructure:"repeat_interval"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// File is the log file path; empty logs to stderr
	File string `mapstructure:"file"`
	// MaxSizeMB is the size at which the log file rotates (default: 100)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep (default: 5)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated files
	Compress bool `mapstructure:"compress"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			Interval:        5 * time.Second,
			WorkerPoolSize:  8,
			LoadTimeout:     3 * time.Second,
			AdminTimeout:    10 * time.Second,
			HistoryTimeout:  2 * time.Second,
			RegistryTimeout: 2 * time.Second,
			DrainTimeout:    5 * time.Second,
			SampleWindow:    5 * time.Minute,
			MaxSampleAge:    5 * time.Minute,
			DryRun:          false,
			FailureBackoff: FailureBackoffConfig{
				Threshold: 3,
				Base:      time.Minute,
				Max:       30 * time.Minute,
			},
		},
		Defaults: scaling.Defaults{
			MinNodes:          1,
			MaxNodes:          10,
			TargetUtilization: 0.6,
			ScaleUpCooldown:   5 * time.Minute,
			ScaleDownCooldown: 20 * time.Minute,
		},
		Registry: RegistryConfig{
			Backend:         "file",
			File:            filepath.Join(ConfigDir(), "clusters.yaml"),
			MongoCollection: "clusters",
		},
		History: HistoryConfig{
			Backend:         "file",
			Dir:             filepath.Join(ConfigDir(), "history"),
			MongoCollection: "scaling_events",
			Retention:       30 * 24 * time.Hour,
			MemoryLimit:     1000,
		},
		Mongo: MongoConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "clusterscaler",
			ConnectTimeout: 10 * time.Second,
		},
		LoadSource: LoadSourceConfig{
			Prometheus: PrometheusConfig{
				Address:          "http://localhost:9090",
				UtilizationQuery: `avg(avg_over_time(cluster_cpu_utilization{cluster="{{.ClusterID}}"}[{{.Window}}]))`,
				NodesQuery:       `max(cluster_node_count{cluster="{{.ClusterID}}"})`,
				FreshnessQuery:   `min(timestamp(cluster_cpu_utilization{cluster="{{.ClusterID}}"}))`,
			},
		},
		Admin: AdminConfig{
			Backend: "eks",
			Region:  "",
			MaxRPS:  5,
			Burst:   5,
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    ":9102",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			Insecure:    true,
			SampleRatio: 1.0,
			ServiceName: "clusterscaler",
		},
		Notify: NotifyConfig{
			Telegram: TelegramConfig{
				Enabled:        false,
				ChatIDs:        []int64{},
				RepeatInterval: 30 * time.Minute,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSizeMB:  100,
			MaxBackups: 5,
			Compress:   true,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	d := Default()

	viper.SetDefault("scheduler.interval", d.Scheduler.Interval)
	viper.SetDefault("scheduler.worker_pool_size", d.Scheduler.WorkerPoolSize)
	viper.SetDefault("scheduler.load_timeout", d.Scheduler.LoadTimeout)
	viper.SetDefault("scheduler.admin_timeout", d.Scheduler.AdminTimeout)
	viper.SetDefault("scheduler.history_timeout", d.Scheduler.HistoryTimeout)
	viper.SetDefault("scheduler.registry_timeout", d.Scheduler.RegistryTimeout)
	viper.SetDefault("scheduler.drain_timeout", d.Scheduler.DrainTimeout)
	viper.SetDefault("scheduler.sample_window", d.Scheduler.SampleWindow)
	viper.SetDefault("scheduler.max_sample_age", d.Scheduler.MaxSampleAge)
	viper.SetDefault("scheduler.dry_run", d.Scheduler.DryRun)
	viper.SetDefault("scheduler.failure_backoff.threshold", d.Scheduler.FailureBackoff.Threshold)
	viper.SetDefault("scheduler.failure_backoff.base", d.Scheduler.FailureBackoff.Base)
	viper.SetDefault("scheduler.failure_backoff.max", d.Scheduler.FailureBackoff.Max)

	viper.SetDefault("defaults.min_nodes", d.Defaults.MinNodes)
	viper.SetDefault("defaults.max_nodes", d.Defaults.MaxNodes)
	viper.SetDefault("defaults.target_utilization", d.Defaults.TargetUtilization)
	viper.SetDefault("defaults.scale_up_cooldown", d.Defaults.ScaleUpCooldown)
	viper.SetDefault("defaults.scale_down_cooldown", d.Defaults.ScaleDownCooldown)

	viper.SetDefault("registry.backend", d.Registry.Backend)
	viper.SetDefault("registry.file", d.Registry.File)
	viper.SetDefault("registry.mongo_collection", d.Registry.MongoCollection)

	viper.SetDefault("history.backend", d.History.Backend)
	viper.SetDefault("history.dir", d.History.Dir)
	viper.SetDefault("history.mongo_collection", d.History.MongoCollection)
	viper.SetDefault("history.retention", d.History.Retention)
	viper.SetDefault("history.memory_limit", d.History.MemoryLimit)

	viper.SetDefault("mongo.uri", d.Mongo.URI)
	viper.SetDefault("mongo.database", d.Mongo.Database)
	viper.SetDefault("mongo.connect_timeout", d.Mongo.ConnectTimeout)

	viper.SetDefault("loadsource.prometheus.address", d.LoadSource.Prometheus.Address)
	viper.SetDefault("loadsource.prometheus.utilization_query", d.LoadSource.Prometheus.UtilizationQuery)
	viper.SetDefault("loadsource.prometheus.nodes_query", d.LoadSource.Prometheus.NodesQuery)
	viper.SetDefault("loadsource.prometheus.freshness_query", d.LoadSource.Prometheus.FreshnessQuery)

	viper.SetDefault("admin.backend", d.Admin.Backend)
	viper.SetDefault("admin.region", d.Admin.Region)
	viper.SetDefault("admin.max_rps", d.Admin.MaxRPS)
	viper.SetDefault("admin.burst", d.Admin.Burst)

	viper.SetDefault("server.enabled", d.Server.Enabled)
	viper.SetDefault("server.addr", d.Server.Addr)

	viper.SetDefault("tracing.enabled", d.Tracing.Enabled)
	viper.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	viper.SetDefault("tracing.insecure", d.Tracing.Insecure)
	viper.SetDefault("tracing.sample_ratio", d.Tracing.SampleRatio)
	viper.SetDefault("tracing.service_name", d.Tracing.ServiceName)

	viper.SetDefault("notify.telegram.enabled", d.Notify.Telegram.Enabled)
	viper.SetDefault("notify.telegram.bot_token", d.Notify.Telegram.BotToken)
	viper.SetDefault("notify.telegram.chat_ids", d.Notify.Telegram.ChatIDs)
	viper.SetDefault("notify.telegram.repeat_interval", d.Notify.Telegram.RepeatInterval)

	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.file", d.Logging.File)
	viper.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	viper.SetDefault("logging.compress", d.Logging.Compress)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "clusterscaler")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".clusterscaler"
	}
	return filepath.Join(home, ".config", "clusterscaler")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
