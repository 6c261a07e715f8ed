// Package internal holds tests that exercise several packages together: a
// real file registry, memory history and dry-run admin client driven by the
// orchestrator, observed through the event bus by metrics and the HTTP
// surface.
package internal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/clusterscaler/internal/admin"
	"github.com/Iron-Ham/clusterscaler/internal/event"
	"github.com/Iron-Ham/clusterscaler/internal/history"
	"github.com/Iron-Ham/clusterscaler/internal/lifecycle"
	"github.com/Iron-Ham/clusterscaler/internal/logging"
	"github.com/Iron-Ham/clusterscaler/internal/metrics"
	"github.com/Iron-Ham/clusterscaler/internal/orchestrator"
	"github.com/Iron-Ham/clusterscaler/internal/orchestrator/status"
	"github.com/Iron-Ham/clusterscaler/internal/registry"
	"github.com/Iron-Ham/clusterscaler/internal/scaling"
	"github.com/Iron-Ham/clusterscaler/internal/server"
)

// staticSource returns fixed samples keyed by cluster ID.
type staticSource struct {
	mu      sync.Mutex
	samples map[string]scaling.LoadSample
}

func (s *staticSource) FetchSample(_ context.Context, clusterID string, _ time.Duration) (*scaling.LoadSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sample, ok := s.samples[clusterID]
	if !ok {
		return nil, nil
	}
	sample.ObservedAt = time.Now()
	return &sample, nil
}

func (s *staticSource) set(clusterID string, nodes int, utilization float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[clusterID] = scaling.LoadSample{Nodes: nodes, Utilization: utilization}
}

const registryYAML = `
clusters:
  - id: bt-hot
    min_nodes: 2
    max_nodes: 20
    target_utilization: 0.5
    scale_up_cooldown: 1h
  - id: bt-idle
    min_nodes: 2
    max_nodes: 20
    target_utilization: 0.5
  - id: bt-off
    enabled: false
`

func TestDaemonWiring(t *testing.T) {
	dir := t.TempDir()
	regPath := filepath.Join(dir, "clusters.yaml")
	if err := os.WriteFile(regPath, []byte(registryYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	bus := event.NewBus()
	reg, err := registry.NewFileRegistry(regPath, scaling.Defaults{
		MinNodes: 1, MaxNodes: 10, TargetUtilization: 0.6,
	}, registry.WithBus(bus))
	if err != nil {
		t.Fatalf("NewFileRegistry: %v", err)
	}

	source := &staticSource{samples: map[string]scaling.LoadSample{}}
	source.set("bt-hot", 4, 0.9)
	source.set("bt-idle", 4, 0.5)

	store := history.NewMemoryStore(100)
	dryRun := admin.NewDryRun(logging.NopLogger())
	collector := metrics.New()
	collector.Attach(bus)
	defer collector.Detach()

	tracker := status.NewTracker()
	orch := orchestrator.New(reg, source, store, dryRun,
		orchestrator.WithBus(bus),
		orchestrator.WithTracker(tracker))

	mgr := lifecycle.NewManager(lifecycle.WithBus(bus))
	srv := server.New(":0", mgr, tracker,
		server.WithMetrics(collector.Handler()),
		server.WithHistory(store))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	if code := getStatus(t, ts.URL+"/readyz"); code != http.StatusServiceUnavailable {
		t.Errorf("/readyz before start = %d, want 503", code)
	}

	err = mgr.Run(context.Background(), func(ctx context.Context) error {
		if code := getStatus(t, ts.URL+"/readyz"); code != http.StatusOK {
			t.Errorf("/readyz while running = %d, want 200", code)
		}

		for cycle := 0; cycle < 2; cycle++ {
			report, err := orch.RunCycle(ctx)
			if err != nil {
				return err
			}
			if len(report.Results) != 2 {
				t.Errorf("cycle %d evaluated %d clusters, want 2", cycle, len(report.Results))
			}
			// The applied resize takes effect before the next cycle.
			source.set("bt-hot", 8, 0.9)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Only the first cycle may resize bt-hot; the second is inside its cooldown.
	reqs := dryRun.Requests()
	if len(reqs) != 1 || reqs[0].ClusterID != "bt-hot" || reqs[0].TargetNodes != 8 {
		t.Errorf("resize requests = %+v, want one bt-hot -> 8", reqs)
	}

	body := getBody(t, ts.URL+"/metrics")
	for _, want := range []string{
		`clusterscaler_resizes_total{cluster="bt-hot",direction="UP"} 1`,
		`clusterscaler_cycles_total{result="completed"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics missing %q", want)
		}
	}

	var snap status.Snapshot
	if err := json.Unmarshal([]byte(getBody(t, ts.URL+"/status")), &snap); err != nil {
		t.Fatalf("decode /status: %v", err)
	}
	if snap.LastCycle == nil || snap.LastCycle.Clusters != 2 {
		t.Errorf("last cycle = %+v, want 2 clusters", snap.LastCycle)
	}

	var events []scaling.ScalingEvent
	if err := json.Unmarshal([]byte(getBody(t, ts.URL+"/history/bt-hot")), &events); err != nil {
		t.Fatalf("decode /history: %v", err)
	}
	if len(events) != 2 || events[0].Outcome != scaling.OutcomeSkipped || events[1].Outcome != scaling.OutcomeSuccess {
		t.Errorf("bt-hot history = %+v, want SKIPPED then SUCCESS (newest first)", events)
	}
}

func getStatus(t *testing.T, url string) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func getBody(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}
