package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/clusterscaler/internal/errors"
	"github.com/Iron-Ham/clusterscaler/internal/event"
	"github.com/Iron-Ham/clusterscaler/internal/logging"
	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

const defaultDebounce = 100 * time.Millisecond

// fileDocument is the on-disk layout of the registry file.
type fileDocument struct {
	Clusters []fileCluster `yaml:"clusters"`
}

// fileCluster mirrors scaling.ClusterConfig with optional fields so that
// unset values can be told apart from explicit zeros.
type fileCluster struct {
	ID                string  `yaml:"id"`
	MinNodes          int     `yaml:"min_nodes"`
	MaxNodes          int     `yaml:"max_nodes"`
	TargetUtilization float64 `yaml:"target_utilization"`
	ScaleUpCooldown   *string `yaml:"scale_up_cooldown"`
	ScaleDownCooldown *string `yaml:"scale_down_cooldown"`
	Enabled           *bool   `yaml:"enabled"`
}

func (c fileCluster) toConfig(defaults scaling.Defaults) (scaling.ClusterConfig, error) {
	cfg := scaling.ClusterConfig{
		ID:                c.ID,
		MinNodes:          c.MinNodes,
		MaxNodes:          c.MaxNodes,
		TargetUtilization: c.TargetUtilization,
		Enabled:           c.Enabled == nil || *c.Enabled,
	}

	var err error
	if c.ScaleUpCooldown != nil {
		if cfg.ScaleUpCooldown, err = time.ParseDuration(*c.ScaleUpCooldown); err != nil {
			return cfg, fmt.Errorf("cluster %q: scale_up_cooldown: %w", c.ID, err)
		}
	}
	if c.ScaleDownCooldown != nil {
		if cfg.ScaleDownCooldown, err = time.ParseDuration(*c.ScaleDownCooldown); err != nil {
			return cfg, fmt.Errorf("cluster %q: scale_down_cooldown: %w", c.ID, err)
		}
	}

	return defaults.ApplyTo(cfg, c.ScaleUpCooldown != nil, c.ScaleDownCooldown != nil), nil
}

// ParseFile decodes registry YAML into cluster configurations, applying
// defaults. It returns every cluster, enabled or not, in file order.
func ParseFile(data []byte, defaults scaling.Defaults) ([]scaling.ClusterConfig, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse registry file: %w", err)
	}

	clusters := make([]scaling.ClusterConfig, 0, len(doc.Clusters))
	for _, c := range doc.Clusters {
		cfg, err := c.toConfig(defaults)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, cfg)
	}
	return clusters, nil
}

// FileOption configures a FileRegistry.
type FileOption func(*FileRegistry)

// WithBus publishes a RegistryReloadedEvent after every reload attempt.
func WithBus(bus *event.Bus) FileOption {
	return func(r *FileRegistry) { r.bus = bus }
}

// WithLogger sets the registry logger.
func WithLogger(l *logging.Logger) FileOption {
	return func(r *FileRegistry) { r.logger = l }
}

// WithDebounce sets how long Watch waits for a burst of writes to settle.
func WithDebounce(d time.Duration) FileOption {
	return func(r *FileRegistry) { r.debounce = d }
}

// FileRegistry serves clusters from a YAML file. A reload that fails to
// parse keeps the previously loaded set.
type FileRegistry struct {
	path     string
	defaults scaling.Defaults
	bus      *event.Bus
	logger   *logging.Logger
	debounce time.Duration

	mu       sync.RWMutex
	clusters []scaling.ClusterConfig
	loaded   bool
	lastErr  error
}

// NewFileRegistry creates a registry for path and performs the first load.
// A missing or unparsable file at startup is an error.
func NewFileRegistry(path string, defaults scaling.Defaults, opts ...FileOption) (*FileRegistry, error) {
	r := &FileRegistry{
		path:     path,
		defaults: defaults,
		logger:   logging.NopLogger(),
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("registry")

	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the file.
func (r *FileRegistry) Reload() error {
	clusters, err := r.read()

	r.mu.Lock()
	if err == nil {
		r.clusters = clusters
		r.loaded = true
	}
	r.lastErr = err
	count := len(enabledSorted(r.clusters))
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("registry reload rejected", "path", r.path, "error", err.Error())
	} else {
		r.logger.Info("registry loaded", "path", r.path, "enabled_clusters", count)
	}
	if r.bus != nil {
		r.bus.Publish(event.NewRegistryReloadedEvent(r.path, count, err))
	}
	return err
}

func (r *FileRegistry) read() ([]scaling.ClusterConfig, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}
	return ParseFile(data, r.defaults)
}

// ListEnabledClusters returns the enabled clusters ordered by ID.
func (r *FileRegistry) ListEnabledClusters(ctx context.Context) ([]scaling.ClusterConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewRegistryUnavailableError("list clusters", err).WithBackend("file")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.loaded {
		return nil, errors.NewRegistryUnavailableError("registry never loaded", r.lastErr).WithBackend("file")
	}
	return enabledSorted(r.clusters), nil
}

// LastError returns the error of the most recent reload, nil if it succeeded.
func (r *FileRegistry) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

// Watch reloads the registry whenever the file changes, until ctx is done.
// The parent directory is watched so that editors which replace the file
// by rename are picked up.
func (r *FileRegistry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	target := filepath.Clean(r.path)

	debounceTimer := time.NewTimer(r.debounce)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	defer debounceTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounceTimer.Reset(r.debounce)

		case <-debounceTimer.C:
			_ = r.Reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("registry watcher error", "error", err.Error())
		}
	}
}

func enabledSorted(all []scaling.ClusterConfig) []scaling.ClusterConfig {
	out := make([]scaling.ClusterConfig, 0, len(all))
	for _, c := range all {
		if c.Enabled {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
