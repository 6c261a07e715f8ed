package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "scheduler.worker_pool_size")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidRegistryBackends returns the list of valid registry backends
func ValidRegistryBackends() []string {
	return []string{"file", "mongo"}
}

// ValidHistoryBackends returns the list of valid history backends
func ValidHistoryBackends() []string {
	return []string{"memory", "file", "mongo"}
}

// ValidAdminBackends returns the list of valid admin backends
func ValidAdminBackends() []string {
	return []string{"eks", "dryrun"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateScheduler()...)
	errors = append(errors, c.validateDefaults()...)
	errors = append(errors, c.validateRegistry()...)
	errors = append(errors, c.validateHistory()...)
	errors = append(errors, c.validateLoadSource()...)
	errors = append(errors, c.validateAdmin()...)
	errors = append(errors, c.validateTracing()...)
	errors = append(errors, c.validateNotify()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func positiveDuration(field string, d time.Duration) []ValidationError {
	if d <= 0 {
		return []ValidationError{{Field: field, Value: d, Message: "must be positive"}}
	}
	return nil
}

func nonNegativeDuration(field string, d time.Duration) []ValidationError {
	if d < 0 {
		return []ValidationError{{Field: field, Value: d, Message: "must be non-negative"}}
	}
	return nil
}

func oneOf(field, value string, valid []string) []ValidationError {
	if !slices.Contains(valid, value) {
		return []ValidationError{{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(valid, ", ")),
		}}
	}
	return nil
}

// validateScheduler validates the SchedulerConfig
func (c *Config) validateScheduler() []ValidationError {
	var errors []ValidationError
	s := c.Scheduler

	errors = append(errors, positiveDuration("scheduler.interval", s.Interval)...)
	errors = append(errors, positiveDuration("scheduler.load_timeout", s.LoadTimeout)...)
	errors = append(errors, positiveDuration("scheduler.admin_timeout", s.AdminTimeout)...)
	errors = append(errors, positiveDuration("scheduler.history_timeout", s.HistoryTimeout)...)
	errors = append(errors, positiveDuration("scheduler.registry_timeout", s.RegistryTimeout)...)
	errors = append(errors, nonNegativeDuration("scheduler.drain_timeout", s.DrainTimeout)...)
	errors = append(errors, positiveDuration("scheduler.sample_window", s.SampleWindow)...)
	errors = append(errors, nonNegativeDuration("scheduler.max_sample_age", s.MaxSampleAge)...)

	if s.WorkerPoolSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.worker_pool_size",
			Value:   s.WorkerPoolSize,
			Message: "must be at least 1",
		})
	}

	// Reasonable upper bound to protect the admin API
	const maxWorkers = 256
	if s.WorkerPoolSize > maxWorkers {
		errors = append(errors, ValidationError{
			Field:   "scheduler.worker_pool_size",
			Value:   s.WorkerPoolSize,
			Message: fmt.Sprintf("exceeds maximum of %d", maxWorkers),
		})
	}

	fb := s.FailureBackoff
	if fb.Threshold < 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.failure_backoff.threshold",
			Value:   fb.Threshold,
			Message: "must be non-negative",
		})
	}
	if fb.Threshold > 0 {
		errors = append(errors, positiveDuration("scheduler.failure_backoff.base", fb.Base)...)
		if fb.Max < fb.Base {
			errors = append(errors, ValidationError{
				Field:   "scheduler.failure_backoff.max",
				Value:   fb.Max,
				Message: "must be >= scheduler.failure_backoff.base",
			})
		}
	}

	return errors
}

// validateDefaults validates the per-cluster defaults
func (c *Config) validateDefaults() []ValidationError {
	var errors []ValidationError
	d := c.Defaults

	if d.MinNodes < 1 {
		errors = append(errors, ValidationError{Field: "defaults.min_nodes", Value: d.MinNodes, Message: "must be at least 1"})
	}
	if d.MaxNodes < d.MinNodes {
		errors = append(errors, ValidationError{Field: "defaults.max_nodes", Value: d.MaxNodes, Message: "must be >= defaults.min_nodes"})
	}
	if d.MaxNodes > scaling.MaxNodesLimit {
		errors = append(errors, ValidationError{Field: "defaults.max_nodes", Value: d.MaxNodes, Message: fmt.Sprintf("must be <= %d", scaling.MaxNodesLimit)})
	}
	if d.TargetUtilization <= 0 || d.TargetUtilization >= 1 {
		errors = append(errors, ValidationError{Field: "defaults.target_utilization", Value: d.TargetUtilization, Message: "must be between 0 and 1 (exclusive)"})
	}
	errors = append(errors, nonNegativeDuration("defaults.scale_up_cooldown", d.ScaleUpCooldown)...)
	errors = append(errors, nonNegativeDuration("defaults.scale_down_cooldown", d.ScaleDownCooldown)...)

	return errors
}

// validateRegistry validates the RegistryConfig
func (c *Config) validateRegistry() []ValidationError {
	errors := oneOf("registry.backend", c.Registry.Backend, ValidRegistryBackends())

	switch c.Registry.Backend {
	case "file":
		if c.Registry.File == "" {
			errors = append(errors, ValidationError{Field: "registry.file", Value: c.Registry.File, Message: "is required for the file backend"})
		}
	case "mongo":
		if c.Registry.MongoCollection == "" {
			errors = append(errors, ValidationError{Field: "registry.mongo_collection", Value: c.Registry.MongoCollection, Message: "is required for the mongo backend"})
		}
		errors = append(errors, c.validateMongo()...)
	}

	return errors
}

// validateHistory validates the HistoryConfig
func (c *Config) validateHistory() []ValidationError {
	errors := oneOf("history.backend", c.History.Backend, ValidHistoryBackends())

	switch c.History.Backend {
	case "memory":
		if c.History.MemoryLimit < 1 {
			errors = append(errors, ValidationError{Field: "history.memory_limit", Value: c.History.MemoryLimit, Message: "must be at least 1"})
		}
	case "file":
		if c.History.Dir == "" {
			errors = append(errors, ValidationError{Field: "history.dir", Value: c.History.Dir, Message: "is required for the file backend"})
		}
	case "mongo":
		if c.History.MongoCollection == "" {
			errors = append(errors, ValidationError{Field: "history.mongo_collection", Value: c.History.MongoCollection, Message: "is required for the mongo backend"})
		}
		errors = append(errors, nonNegativeDuration("history.retention", c.History.Retention)...)
		// Registry already reported mongo problems when it shares the connection.
		if c.Registry.Backend != "mongo" {
			errors = append(errors, c.validateMongo()...)
		}
	}

	return errors
}

func (c *Config) validateMongo() []ValidationError {
	var errors []ValidationError
	if !strings.HasPrefix(c.Mongo.URI, "mongodb://") && !strings.HasPrefix(c.Mongo.URI, "mongodb+srv://") {
		errors = append(errors, ValidationError{Field: "mongo.uri", Value: c.Mongo.URI, Message: "must start with mongodb:// or mongodb+srv://"})
	}
	if c.Mongo.Database == "" {
		errors = append(errors, ValidationError{Field: "mongo.database", Value: c.Mongo.Database, Message: "is required"})
	}
	errors = append(errors, positiveDuration("mongo.connect_timeout", c.Mongo.ConnectTimeout)...)
	return errors
}

// validateLoadSource validates the Prometheus load source
func (c *Config) validateLoadSource() []ValidationError {
	var errors []ValidationError
	p := c.LoadSource.Prometheus

	if u, err := url.Parse(p.Address); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{Field: "loadsource.prometheus.address", Value: p.Address, Message: "must be an absolute URL"})
	}

	for field, q := range map[string]string{
		"loadsource.prometheus.utilization_query": p.UtilizationQuery,
		"loadsource.prometheus.nodes_query":       p.NodesQuery,
	} {
		if q == "" {
			errors = append(errors, ValidationError{Field: field, Value: q, Message: "is required"})
			continue
		}
		if _, err := template.New(field).Parse(q); err != nil {
			errors = append(errors, ValidationError{Field: field, Value: q, Message: fmt.Sprintf("invalid template: %v", err)})
		}
	}
	if p.FreshnessQuery != "" {
		if _, err := template.New("freshness").Parse(p.FreshnessQuery); err != nil {
			errors = append(errors, ValidationError{Field: "loadsource.prometheus.freshness_query", Value: p.FreshnessQuery, Message: fmt.Sprintf("invalid template: %v", err)})
		}
	}

	slices.SortFunc(errors, func(a, b ValidationError) int { return strings.Compare(a.Field, b.Field) })
	return errors
}

// validateAdmin validates the AdminConfig
func (c *Config) validateAdmin() []ValidationError {
	errors := oneOf("admin.backend", c.Admin.Backend, ValidAdminBackends())

	if c.Admin.MaxRPS < 0 {
		errors = append(errors, ValidationError{Field: "admin.max_rps", Value: c.Admin.MaxRPS, Message: "must be non-negative"})
	}
	if c.Admin.MaxRPS > 0 && c.Admin.Burst < 1 {
		errors = append(errors, ValidationError{Field: "admin.burst", Value: c.Admin.Burst, Message: "must be at least 1 when max_rps is set"})
	}

	return errors
}

// validateTracing validates the TracingConfig
func (c *Config) validateTracing() []ValidationError {
	var errors []ValidationError
	if !c.Tracing.Enabled {
		return errors
	}
	if c.Tracing.Endpoint == "" {
		errors = append(errors, ValidationError{Field: "tracing.endpoint", Value: c.Tracing.Endpoint, Message: "is required when tracing is enabled"})
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errors = append(errors, ValidationError{Field: "tracing.sample_ratio", Value: c.Tracing.SampleRatio, Message: "must be between 0 and 1"})
	}
	return errors
}

// validateNotify validates the NotifyConfig
func (c *Config) validateNotify() []ValidationError {
	var errors []ValidationError
	tg := c.Notify.Telegram
	if !tg.Enabled {
		return errors
	}
	if tg.BotToken == "" {
		errors = append(errors, ValidationError{Field: "notify.telegram.bot_token", Value: "", Message: "is required when telegram is enabled"})
	}
	if len(tg.ChatIDs) == 0 {
		errors = append(errors, ValidationError{Field: "notify.telegram.chat_ids", Value: tg.ChatIDs, Message: "must list at least one chat"})
	}
	errors = append(errors, nonNegativeDuration("notify.telegram.repeat_interval", tg.RepeatInterval)...)
	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
