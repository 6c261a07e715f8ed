package orchestrator

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/clusterscaler/internal/config"
	"github.com/Iron-Ham/clusterscaler/internal/event"
	"github.com/Iron-Ham/clusterscaler/internal/logging"
	"github.com/Iron-Ham/clusterscaler/internal/orchestrator/status"
	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

const (
	defaultWorkerPoolSize  = 8
	defaultLoadTimeout     = 3 * time.Second
	defaultAdminTimeout    = 10 * time.Second
	defaultHistoryTimeout  = 2 * time.Second
	defaultRegistryTimeout = 2 * time.Second
	defaultSampleWindow    = 5 * time.Minute
)

// Timeouts bounds each external call made during a cycle.
type Timeouts struct {
	Load     time.Duration
	Admin    time.Duration
	History  time.Duration
	Registry time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l.WithComponent("orchestrator") }
}

// WithBus sets the bus evaluation and cycle events are published on.
func WithBus(b *event.Bus) Option {
	return func(o *Orchestrator) { o.bus = b }
}

// WithTracer sets the tracer used for per-cluster spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithTracker sets the status tracker. The tracker also drives failure
// backoff.
func WithTracker(t *status.Tracker) Option {
	return func(o *Orchestrator) { o.tracker = t }
}

// WithPolicy sets the decision policy.
func WithPolicy(p *scaling.Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithWorkerPoolSize bounds concurrent evaluations within a cycle.
func WithWorkerPoolSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.poolSize = n
		}
	}
}

// WithTimeouts sets per-call timeouts. Zero fields keep their defaults.
func WithTimeouts(t Timeouts) Option {
	return func(o *Orchestrator) {
		if t.Load > 0 {
			o.timeouts.Load = t.Load
		}
		if t.Admin > 0 {
			o.timeouts.Admin = t.Admin
		}
		if t.History > 0 {
			o.timeouts.History = t.History
		}
		if t.Registry > 0 {
			o.timeouts.Registry = t.Registry
		}
	}
}

// WithSampleWindow sets the lookback window passed to the load source.
func WithSampleWindow(d time.Duration) Option {
	return func(o *Orchestrator) { o.sampleWindow = d }
}

// WithDryRun records resize decisions without applying them.
func WithDryRun(dryRun bool) Option {
	return func(o *Orchestrator) { o.dryRun = dryRun }
}

// WithFailureBackoff holds a cluster after threshold consecutive failures.
// A threshold of zero disables backoff.
func WithFailureBackoff(threshold int, base, maxDelay time.Duration) Option {
	return func(o *Orchestrator) {
		o.backoff = failureBackoff{threshold: threshold, base: base, max: maxDelay}
	}
}

// WithClock overrides the clock used for decisions and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSchedulerConfig applies every orchestrator setting in c.
func WithSchedulerConfig(c config.SchedulerConfig) Option {
	return func(o *Orchestrator) {
		WithWorkerPoolSize(c.WorkerPoolSize)(o)
		WithTimeouts(Timeouts{
			Load:     c.LoadTimeout,
			Admin:    c.AdminTimeout,
			History:  c.HistoryTimeout,
			Registry: c.RegistryTimeout,
		})(o)
		if c.SampleWindow > 0 {
			o.sampleWindow = c.SampleWindow
		}
		o.policy = scaling.NewPolicy(scaling.WithMaxSampleAge(c.MaxSampleAge))
		o.dryRun = c.DryRun
		WithFailureBackoff(c.FailureBackoff.Threshold, c.FailureBackoff.Base, c.FailureBackoff.Max)(o)
	}
}
