package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Iron-Ham/clusterscaler/internal/config"
	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

// executeCommand runs rootCmd with args and returns captured output. Flag
// values left over from earlier runs are reset first.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// fakePrometheus reports 90% utilization on 4 nodes for every cluster.
func fakePrometheus(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		value := "0.9"
		switch q := r.Form.Get("query"); {
		case strings.Contains(q, "timestamp("):
			value = fmt.Sprintf("%d", time.Now().Unix())
		case strings.Contains(q, "cluster_node_count"):
			value = "4"
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[%d,%q]}]}}`,
			time.Now().Unix(), value)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// writeTestConfig writes a config using file-backed registry and history,
// the dry-run admin backend and the given Prometheus address.
func writeTestConfig(t *testing.T, promAddr string) (configPath, dir string) {
	t.Helper()
	dir = t.TempDir()

	registry := `
clusters:
  - id: bt-1
    min_nodes: 1
    max_nodes: 10
    target_utilization: 0.5
  - id: bt-off
    enabled: false
`
	if err := os.WriteFile(filepath.Join(dir, "clusters.yaml"), []byte(registry), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := fmt.Sprintf(`
registry:
  backend: file
  file: %s
history:
  backend: file
  dir: %s
loadsource:
  prometheus:
    address: %s
admin:
  backend: dryrun
  max_rps: 0
server:
  enabled: false
logging:
  level: error
`, filepath.Join(dir, "clusters.yaml"), filepath.Join(dir, "history"), promAddr)

	configPath = filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return configPath, dir
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "clusterscaler" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "clusterscaler")
	}

	cmds := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		cmds[c.Name()] = true
	}
	for _, want := range []string{"serve", "evaluate", "clusters", "history", "config"} {
		if !cmds[want] {
			t.Errorf("missing subcommand %q", want)
		}
	}
}

func TestClustersCommand(t *testing.T) {
	configPath, _ := writeTestConfig(t, fakePrometheus(t))

	out, err := executeCommand(t, "--config", configPath, "clusters", "--json")
	if err != nil {
		t.Fatalf("clusters failed: %v\n%s", err, out)
	}
	var clusters []scaling.ClusterConfig
	if err := json.Unmarshal([]byte(out), &clusters); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(clusters) != 1 || clusters[0].ID != "bt-1" {
		t.Errorf("clusters = %+v, want only bt-1", clusters)
	}
}

func TestEvaluateThenHistory(t *testing.T) {
	configPath, _ := writeTestConfig(t, fakePrometheus(t))

	out, err := executeCommand(t, "--config", configPath, "evaluate")
	if err != nil {
		t.Fatalf("evaluate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "bt-1") || !strings.Contains(out, "(dry run)") {
		t.Errorf("evaluate output missing cluster or mode:\n%s", out)
	}
	if !strings.Contains(out, "1 skipped") {
		t.Errorf("dry run should be recorded as skipped:\n%s", out)
	}

	// The dryrun admin backend cannot resize, so --apply is still a dry run.
	out, err = executeCommand(t, "--config", configPath, "evaluate", "--apply")
	if err != nil {
		t.Fatalf("evaluate --apply failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "(dry run)") || !strings.Contains(out, "1 skipped") {
		t.Errorf("apply against the dryrun backend should stay a dry run:\n%s", out)
	}

	out, err = executeCommand(t, "--config", configPath, "history", "bt-1", "--json")
	if err != nil {
		t.Fatalf("history failed: %v\n%s", err, out)
	}
	var events []scaling.ScalingEvent
	if err := json.Unmarshal([]byte(out), &events); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(events) != 2 {
		t.Fatalf("history has %d events, want 2", len(events))
	}
	for i, ev := range events {
		if !ev.DryRun || ev.Outcome != scaling.OutcomeSkipped || ev.NewNodes != ev.PreviousNodes {
			t.Errorf("event %d = %+v, want dry-run SKIPPED with unchanged node count", i, ev)
		}
	}
}

func TestStackDryRun(t *testing.T) {
	tests := []struct {
		name      string
		backend   string
		cfgDryRun bool
		requested bool
		want      bool
	}{
		{"eks applies", "eks", false, false, false},
		{"eks with flag", "eks", false, true, true},
		{"eks with config", "eks", true, false, true},
		{"dryrun backend", "dryrun", false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Admin.Backend = tt.backend
			cfg.Scheduler.DryRun = tt.cfgDryRun
			s := &stack{cfg: cfg}
			if got := s.dryRun(tt.requested); got != tt.want {
				t.Errorf("dryRun(%v) = %v, want %v", tt.requested, got, tt.want)
			}
		})
	}
}

func TestHistoryCommand_Limit(t *testing.T) {
	configPath, _ := writeTestConfig(t, fakePrometheus(t))

	if _, err := executeCommand(t, "--config", configPath, "history", "bt-1", "--limit", "0"); err == nil {
		t.Error("history --limit 0 should fail")
	}
	out, err := executeCommand(t, "--config", configPath, "history", "bt-1")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, "No scaling events for bt-1") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigValidate(t *testing.T) {
	configPath, dir := writeTestConfig(t, fakePrometheus(t))

	out, err := executeCommand(t, "--config", configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 clusters") || !strings.Contains(out, "Configuration is valid") {
		t.Errorf("output should report the registry size:\n%s", out)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("scheduler:\n  worker_pool_size: 0\nadmin:\n  backend: gce\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err = executeCommand(t, "--config", bad, "config", "validate")
	if err == nil {
		t.Fatalf("config validate should fail:\n%s", out)
	}
	if !strings.Contains(out, "admin.backend") {
		t.Errorf("output should name the bad field:\n%s", out)
	}
}
