package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Iron-Ham/clusterscaler/internal/errors"
	"github.com/Iron-Ham/clusterscaler/internal/event"
	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

var testDefaults = scaling.Defaults{
	MinNodes:          1,
	MaxNodes:          10,
	TargetUtilization: 0.6,
	ScaleUpCooldown:   5 * time.Minute,
	ScaleDownCooldown: 20 * time.Minute,
}

const sampleRegistry = `
clusters:
  - id: prod/bt-2
    min_nodes: 3
    max_nodes: 30
    target_utilization: 0.5
    scale_up_cooldown: 1m
    scale_down_cooldown: 0s
  - id: prod/bt-1
  - id: staging/bt-1
    enabled: false
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestParseFile(t *testing.T) {
	clusters, err := ParseFile([]byte(sampleRegistry), testDefaults)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}

	want := []scaling.ClusterConfig{
		{ID: "prod/bt-2", MinNodes: 3, MaxNodes: 30, TargetUtilization: 0.5, ScaleUpCooldown: time.Minute, ScaleDownCooldown: 0, Enabled: true},
		{ID: "prod/bt-1", MinNodes: 1, MaxNodes: 10, TargetUtilization: 0.6, ScaleUpCooldown: 5 * time.Minute, ScaleDownCooldown: 20 * time.Minute, Enabled: true},
		{ID: "staging/bt-1", MinNodes: 1, MaxNodes: 10, TargetUtilization: 0.6, ScaleUpCooldown: 5 * time.Minute, ScaleDownCooldown: 20 * time.Minute, Enabled: false},
	}
	if diff := cmp.Diff(want, clusters); diff != "" {
		t.Errorf("ParseFile() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "clusters: [\n"},
		{"bad duration", "clusters:\n  - id: a\n    scale_up_cooldown: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFile([]byte(tt.content), testDefaults); err == nil {
				t.Error("ParseFile should fail")
			}
		})
	}
}

func TestParseFile_PassesMalformedClustersThrough(t *testing.T) {
	clusters, err := ParseFile([]byte("clusters:\n  - id: a\n    min_nodes: 5\n    max_nodes: 2\n"), testDefaults)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if len(clusters) != 1 || clusters[0].Validate() == nil {
		t.Errorf("expected one invalid cluster, got %+v", clusters)
	}
}

func TestFileRegistry_ListEnabledClusters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clusters.yaml")
	writeFile(t, path, sampleRegistry)

	r, err := NewFileRegistry(path, testDefaults)
	if err != nil {
		t.Fatalf("NewFileRegistry failed: %v", err)
	}

	clusters, err := r.ListEnabledClusters(context.Background())
	if err != nil {
		t.Fatalf("ListEnabledClusters failed: %v", err)
	}
	var ids []string
	for _, c := range clusters {
		ids = append(ids, c.ID)
	}
	if diff := cmp.Diff([]string{"prod/bt-1", "prod/bt-2"}, ids); diff != "" {
		t.Errorf("cluster IDs mismatch (-want +got):\n%s", diff)
	}
}

func TestFileRegistry_MissingFile(t *testing.T) {
	_, err := NewFileRegistry(filepath.Join(t.TempDir(), "missing.yaml"), testDefaults)
	if err == nil {
		t.Fatal("NewFileRegistry should fail for a missing file")
	}
}

func TestFileRegistry_CanceledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clusters.yaml")
	writeFile(t, path, sampleRegistry)
	r, err := NewFileRegistry(path, testDefaults)
	if err != nil {
		t.Fatalf("NewFileRegistry failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.ListEnabledClusters(ctx)
	if !errors.Is(err, errors.ErrRegistryUnavailable) {
		t.Errorf("ListEnabledClusters() error = %v, want ErrRegistryUnavailable", err)
	}
}

func TestFileRegistry_ReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clusters.yaml")
	writeFile(t, path, sampleRegistry)

	bus := event.NewBus()
	var reloads []event.RegistryReloadedEvent
	bus.Subscribe(event.TypeRegistryReloaded, func(e event.Event) {
		reloads = append(reloads, e.(event.RegistryReloadedEvent))
	})

	r, err := NewFileRegistry(path, testDefaults, WithBus(bus))
	if err != nil {
		t.Fatalf("NewFileRegistry failed: %v", err)
	}

	writeFile(t, path, "clusters: [\n")
	if err := r.Reload(); err == nil {
		t.Fatal("Reload should fail on bad YAML")
	}
	if r.LastError() == nil {
		t.Error("LastError() should report the failed reload")
	}

	clusters, err := r.ListEnabledClusters(context.Background())
	if err != nil {
		t.Fatalf("ListEnabledClusters failed: %v", err)
	}
	if len(clusters) != 2 {
		t.Errorf("got %d clusters, want previous 2", len(clusters))
	}

	if len(reloads) != 2 || reloads[0].Err != nil || reloads[1].Err == nil {
		t.Errorf("unexpected reload events: %+v", reloads)
	}
	if reloads[0].Clusters != 2 {
		t.Errorf("initial reload should count enabled clusters only, got %d", reloads[0].Clusters)
	}
	if reloads[1].Clusters != 2 {
		t.Errorf("failed reload should report the kept count, got %d", reloads[1].Clusters)
	}
}

func TestFileRegistry_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clusters.yaml")
	writeFile(t, path, "clusters:\n  - id: a\n")

	reloaded := make(chan struct{}, 8)
	bus := event.NewBus()
	bus.Subscribe(event.TypeRegistryReloaded, func(e event.Event) {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})

	r, err := NewFileRegistry(path, testDefaults, WithBus(bus), WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewFileRegistry failed: %v", err)
	}
	<-reloaded // initial load

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Watch returned %v", err)
		}
	}()

	// The watcher may not be registered yet, so keep rewriting until a reload lands.
	deadline := time.After(5 * time.Second)
	for {
		writeFile(t, path, "clusters:\n  - id: a\n  - id: b\n")
		select {
		case <-reloaded:
			clusters, err := r.ListEnabledClusters(context.Background())
			if err != nil {
				t.Fatalf("ListEnabledClusters failed: %v", err)
			}
			if len(clusters) == 2 {
				return
			}
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("registry was not reloaded after the file changed")
		}
	}
}
