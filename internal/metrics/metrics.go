// Package metrics exposes scaling activity as Prometheus metrics.
//
// A Collector subscribes to the event bus and turns evaluation, cycle and
// infrastructure events into counters, gauges and histograms on its own
// registry, which the HTTP server serves at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Iron-Ham/clusterscaler/internal/event"
)

const namespace = "clusterscaler"

// Collector owns the clusterscaler metrics.
type Collector struct {
	registry *prometheus.Registry

	evaluations          *prometheus.CounterVec
	resizes              *prometheus.CounterVec
	currentNodes         *prometheus.GaugeVec
	targetNodes          *prometheus.GaugeVec
	utilization          *prometheus.GaugeVec
	evaluationDuration   prometheus.Histogram
	cycles               *prometheus.CounterVec
	cycleDuration        prometheus.Histogram
	historyWriteFailures *prometheus.CounterVec
	registryReloads      *prometheus.CounterVec

	bus    *event.Bus
	subIDs []string
}

// New creates a Collector with its own registry, including the Go runtime
// and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Cluster evaluations by decision action and recorded outcome.",
		}, []string{"cluster", "action", "outcome"}),
		resizes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resizes_total",
			Help:      "Successfully applied resizes by direction.",
		}, []string{"cluster", "direction"}),
		currentNodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cluster_nodes",
			Help:      "Node count after the last evaluation.",
		}, []string{"cluster"}),
		targetNodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cluster_target_nodes",
			Help:      "Node count the last evaluation decided on, applied or not.",
		}, []string{"cluster"}),
		utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cluster_utilization",
			Help:      "Utilization observed at the last evaluation.",
		}, []string{"cluster"}),
		evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Wall time of one cluster evaluation.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Scheduler cycles by result.",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one complete cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		historyWriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_write_failures_total",
			Help:      "Scaling events that could not be persisted.",
		}, []string{"cluster"}),
		registryReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_reloads_total",
			Help:      "Registry reloads by result.",
		}, []string{"result"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.evaluations,
		c.resizes,
		c.currentNodes,
		c.targetNodes,
		c.utilization,
		c.evaluationDuration,
		c.cycles,
		c.cycleDuration,
		c.historyWriteFailures,
		c.registryReloads,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Attach subscribes the collector to bus. Call Detach to unsubscribe.
func (c *Collector) Attach(bus *event.Bus) {
	c.bus = bus
	c.subIDs = append(c.subIDs,
		bus.Subscribe(event.TypeClusterEvaluated, c.handleEvaluated),
		bus.Subscribe(event.TypeCycleCompleted, c.handleCycleCompleted),
		bus.Subscribe(event.TypeCycleSkipped, func(event.Event) { c.cycles.WithLabelValues("skipped").Inc() }),
		bus.Subscribe(event.TypeRegistryUnavailable, func(event.Event) { c.cycles.WithLabelValues("registry_unavailable").Inc() }),
		bus.Subscribe(event.TypeHistoryWriteFailed, c.handleHistoryWriteFailed),
		bus.Subscribe(event.TypeRegistryReloaded, c.handleRegistryReloaded),
	)
}

// Detach removes all subscriptions made by Attach.
func (c *Collector) Detach() {
	if c.bus == nil {
		return
	}
	for _, id := range c.subIDs {
		c.bus.Unsubscribe(id)
	}
	c.subIDs = nil
}

func (c *Collector) handleEvaluated(e event.Event) {
	ev, ok := e.(event.ClusterEvaluatedEvent)
	if !ok {
		return
	}
	rec := ev.Record
	c.evaluations.WithLabelValues(rec.ClusterID, ev.Action.String(), rec.Outcome.String()).Inc()
	c.evaluationDuration.Observe(ev.Duration.Seconds())

	if rec.IsSuccessfulResize() {
		c.resizes.WithLabelValues(rec.ClusterID, rec.Direction.String()).Inc()
	}
	// Holds without a sample carry no node count.
	if rec.PreviousNodes > 0 {
		c.currentNodes.WithLabelValues(rec.ClusterID).Set(float64(rec.NewNodes))
		c.targetNodes.WithLabelValues(rec.ClusterID).Set(float64(ev.Target))
		c.utilization.WithLabelValues(rec.ClusterID).Set(rec.Utilization)
	}
}

func (c *Collector) handleCycleCompleted(e event.Event) {
	ev, ok := e.(event.CycleCompletedEvent)
	if !ok {
		return
	}
	c.cycles.WithLabelValues("completed").Inc()
	c.cycleDuration.Observe(ev.Duration.Seconds())
}

func (c *Collector) handleHistoryWriteFailed(e event.Event) {
	ev, ok := e.(event.HistoryWriteFailedEvent)
	if !ok {
		return
	}
	c.historyWriteFailures.WithLabelValues(ev.ClusterID).Inc()
}

func (c *Collector) handleRegistryReloaded(e event.Event) {
	ev, ok := e.(event.RegistryReloadedEvent)
	if !ok {
		return
	}
	result := "success"
	if ev.Err != nil {
		result = "error"
	}
	c.registryReloads.WithLabelValues(result).Inc()
}
