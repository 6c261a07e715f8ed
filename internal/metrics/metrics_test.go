package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Iron-Ham/clusterscaler/internal/event"
	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

func evaluated(id string, outcome scaling.Outcome, dir scaling.Direction, prev, next int) event.ClusterEvaluatedEvent {
	rec := scaling.NewEvent(id, time.Now())
	rec.Outcome = outcome
	rec.Direction = dir
	rec.PreviousNodes = prev
	rec.NewNodes = next
	rec.Utilization = 0.8
	action := scaling.ActionHold
	if dir != scaling.DirectionNone {
		action = scaling.ActionResize
	}
	return event.NewClusterEvaluatedEvent("cyc-1", rec, action, nil, 20*time.Millisecond)
}

func TestCollector_Evaluations(t *testing.T) {
	bus := event.NewBus()
	c := New()
	c.Attach(bus)

	bus.Publish(evaluated("bt-1", scaling.OutcomeSuccess, scaling.DirectionUp, 10, 16))
	bus.Publish(evaluated("bt-1", scaling.OutcomeSkipped, scaling.DirectionNone, 16, 16))
	bus.Publish(evaluated("bt-2", scaling.OutcomeFailure, scaling.DirectionDown, 8, 6))

	if got := testutil.ToFloat64(c.evaluations.WithLabelValues("bt-1", "resize", "SUCCESS")); got != 1 {
		t.Errorf("bt-1 resize/SUCCESS = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.evaluations.WithLabelValues("bt-1", "hold", "SKIPPED")); got != 1 {
		t.Errorf("bt-1 hold/SKIPPED = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.resizes.WithLabelValues("bt-1", "UP")); got != 1 {
		t.Errorf("bt-1 UP resizes = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c.resizes); got != 1 {
		t.Errorf("resize series = %d, want 1 (failed resize must not count)", got)
	}
	if got := testutil.ToFloat64(c.currentNodes.WithLabelValues("bt-1")); got != 16 {
		t.Errorf("bt-1 nodes = %v, want 16", got)
	}
	if got := testutil.ToFloat64(c.targetNodes.WithLabelValues("bt-2")); got != 6 {
		t.Errorf("bt-2 target = %v, want 6", got)
	}
	if got := testutil.ToFloat64(c.currentNodes.WithLabelValues("bt-2")); got != 6 {
		t.Errorf("bt-2 nodes = %v, want 6", got)
	}
	if got := testutil.CollectAndCount(c.evaluationDuration); got != 1 {
		t.Errorf("evaluation duration series = %d, want 1", got)
	}
}

func TestCollector_NodeGaugesFollowOutcome(t *testing.T) {
	tests := []struct {
		name       string
		outcome    scaling.Outcome
		target     int
		wantNodes  float64
		wantTarget float64
	}{
		{"applied resize", scaling.OutcomeSuccess, 16, 16, 16},
		{"failed resize", scaling.OutcomeFailure, 16, 10, 16},
		{"dry run", scaling.OutcomeSkipped, 16, 10, 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := event.NewBus()
			c := New()
			c.Attach(bus)

			rec := scaling.NewEvent("bt-1", time.Now())
			rec.Outcome = tt.outcome
			rec.Direction = scaling.DirectionUp
			rec.PreviousNodes = 10
			rec.NewNodes = 10
			if tt.outcome == scaling.OutcomeSuccess {
				rec.NewNodes = tt.target
			}
			ev := event.NewClusterEvaluatedEvent("cyc-1", rec, scaling.ActionResize, nil, time.Millisecond)
			ev.Target = tt.target
			bus.Publish(ev)

			if got := testutil.ToFloat64(c.currentNodes.WithLabelValues("bt-1")); got != tt.wantNodes {
				t.Errorf("nodes = %v, want %v", got, tt.wantNodes)
			}
			if got := testutil.ToFloat64(c.targetNodes.WithLabelValues("bt-1")); got != tt.wantTarget {
				t.Errorf("target = %v, want %v", got, tt.wantTarget)
			}
		})
	}
}

func TestCollector_HoldWithoutSampleLeavesGauges(t *testing.T) {
	bus := event.NewBus()
	c := New()
	c.Attach(bus)

	bus.Publish(evaluated("bt-1", scaling.OutcomeSkipped, scaling.DirectionNone, 0, 0))

	if got := testutil.CollectAndCount(c.currentNodes); got != 0 {
		t.Errorf("node gauge series = %d, want 0", got)
	}
}

func TestCollector_CycleEvents(t *testing.T) {
	bus := event.NewBus()
	c := New()
	c.Attach(bus)

	bus.Publish(event.NewCycleCompletedEvent("cyc-1", time.Now(), time.Second, 3, 2, 1, 0))
	bus.Publish(event.NewCycleSkippedEvent("cycle in progress"))
	bus.Publish(event.NewCycleSkippedEvent("cycle in progress"))
	bus.Publish(event.NewRegistryUnavailableEvent("cyc-2", errors.New("down")))
	bus.Publish(event.NewHistoryWriteFailedEvent("bt-1", "evt-1", errors.New("disk full")))
	bus.Publish(event.NewRegistryReloadedEvent("clusters.yaml", 2, nil))
	bus.Publish(event.NewRegistryReloadedEvent("clusters.yaml", 0, errors.New("bad yaml")))

	tests := []struct {
		name  string
		value float64
		want  float64
	}{
		{"completed", testutil.ToFloat64(c.cycles.WithLabelValues("completed")), 1},
		{"skipped", testutil.ToFloat64(c.cycles.WithLabelValues("skipped")), 2},
		{"registry unavailable", testutil.ToFloat64(c.cycles.WithLabelValues("registry_unavailable")), 1},
		{"history write failures", testutil.ToFloat64(c.historyWriteFailures.WithLabelValues("bt-1")), 1},
		{"reload success", testutil.ToFloat64(c.registryReloads.WithLabelValues("success")), 1},
		{"reload error", testutil.ToFloat64(c.registryReloads.WithLabelValues("error")), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != tt.want {
				t.Errorf("got %v, want %v", tt.value, tt.want)
			}
		})
	}
}

func TestCollector_Detach(t *testing.T) {
	bus := event.NewBus()
	c := New()
	c.Attach(bus)
	c.Detach()

	if got := bus.SubscriptionCount(); got != 0 {
		t.Fatalf("SubscriptionCount() = %d, want 0", got)
	}
	bus.Publish(event.NewCycleSkippedEvent("x"))
	if got := testutil.ToFloat64(c.cycles.WithLabelValues("skipped")); got != 0 {
		t.Errorf("skipped = %v after Detach, want 0", got)
	}

	// Detach without Attach is a no-op.
	New().Detach()
}

func TestCollector_Handler(t *testing.T) {
	bus := event.NewBus()
	c := New()
	c.Attach(bus)
	bus.Publish(evaluated("bt-1", scaling.OutcomeSuccess, scaling.DirectionUp, 10, 16))

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`clusterscaler_evaluations_total{action="resize",cluster="bt-1",outcome="SUCCESS"} 1`,
		`clusterscaler_cluster_nodes{cluster="bt-1"} 16`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
