package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/clusterscaler/internal/errors"
	"github.com/Iron-Ham/clusterscaler/internal/event"
	"github.com/Iron-Ham/clusterscaler/internal/logging"
	"github.com/Iron-Ham/clusterscaler/internal/orchestrator/status"
	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

const tracerName = "github.com/Iron-Ham/clusterscaler/internal/orchestrator"

// Result is the outcome of evaluating one cluster.
type Result struct {
	ClusterID string
	Decision  scaling.Decision
	// Event is the audit record. Zero when the evaluation was skipped
	// because another evaluation of the cluster was in flight.
	Event scaling.ScalingEvent
	// Trail lists the states the evaluation passed through.
	Trail []State
	// Err is the failure or fetch error surfaced by the evaluation, if any.
	Err error
	// RecordErr is set when the audit record could not be persisted.
	RecordErr error
	Duration  time.Duration
}

// Recorded reports whether the evaluation produced an audit record.
func (r Result) Recorded() bool {
	return r.Event.ID != ""
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	CycleID   string
	StartedAt time.Time
	Duration  time.Duration
	Results   []Result
	Succeeded int
	Failed    int
	Skipped   int
}

// Orchestrator evaluates all enabled clusters once per RunCycle call.
type Orchestrator struct {
	registry Registry
	source   LoadSource
	history  HistoryStore
	admin    AdminClient

	logger   *logging.Logger
	bus      *event.Bus
	tracer   trace.Tracer
	tracker  *status.Tracker
	policy   *scaling.Policy
	now      func() time.Time
	backoff  failureBackoff
	timeouts Timeouts

	poolSize     int
	sampleWindow time.Duration
	dryRun       bool

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates an Orchestrator. Unset options fall back to no-op
// collaborators and default timeouts.
func New(registry Registry, source LoadSource, history HistoryStore, admin AdminClient, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		source:   source,
		history:  history,
		admin:    admin,
		logger:   logging.NopLogger(),
		bus:      event.NewBus(),
		tracer:   otel.Tracer(tracerName),
		tracker:  status.NewTracker(),
		policy:   scaling.NewPolicy(),
		now:      time.Now,
		timeouts: Timeouts{
			Load:     defaultLoadTimeout,
			Admin:    defaultAdminTimeout,
			History:  defaultHistoryTimeout,
			Registry: defaultRegistryTimeout,
		},
		poolSize:     defaultWorkerPoolSize,
		sampleWindow: defaultSampleWindow,
		inFlight:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Tracker returns the status tracker.
func (o *Orchestrator) Tracker() *status.Tracker {
	return o.tracker
}

// History returns the history store.
func (o *Orchestrator) History() HistoryStore {
	return o.history
}

// RunCycle lists enabled clusters and evaluates each of them. It returns a
// RegistryUnavailableError when the registry cannot be listed; per-cluster
// failures are reported in the CycleReport, never as an error.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleReport, error) {
	cycleID := uuid.NewString()[:8]
	logger := o.logger.WithCycle(cycleID)
	started := o.now()

	clusters, err := o.listClusters(ctx)
	if err != nil {
		logger.Warn("registry unavailable, skipping cycle", "error", err)
		o.bus.Publish(event.NewRegistryUnavailableEvent(cycleID, err))
		return nil, err
	}
	clusters = dedupe(clusters, logger)

	p := pool.NewWithResults[Result]().WithMaxGoroutines(o.poolSize)
	for _, cfg := range clusters {
		p.Go(func() Result {
			return o.evaluateOnce(ctx, cycleID, cfg)
		})
	}
	results := p.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].ClusterID < results[j].ClusterID })

	report := &CycleReport{
		CycleID:   cycleID,
		StartedAt: started,
		Duration:  o.now().Sub(started),
		Results:   results,
	}
	for _, r := range results {
		switch {
		case !r.Recorded():
			report.Skipped++
		case r.Event.Outcome == scaling.OutcomeSuccess:
			report.Succeeded++
		case r.Event.Outcome == scaling.OutcomeFailure:
			report.Failed++
		default:
			report.Skipped++
		}
	}

	o.tracker.RecordCycle(status.CycleStatus{
		CycleID:   cycleID,
		StartedAt: started,
		Duration:  report.Duration,
		Clusters:  len(results),
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
		Skipped:   report.Skipped,
	})
	o.bus.Publish(event.NewCycleCompletedEvent(cycleID, started, report.Duration,
		len(results), report.Succeeded, report.Failed, report.Skipped))

	logger.Info("cycle completed",
		"clusters", len(results),
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"duration", report.Duration,
	)
	return report, nil
}

func (o *Orchestrator) listClusters(ctx context.Context) ([]scaling.ClusterConfig, error) {
	listCtx, cancel := context.WithTimeout(ctx, o.timeouts.Registry)
	defer cancel()

	clusters, err := o.registry.ListEnabledClusters(listCtx)
	if err == nil {
		return clusters, nil
	}
	if errors.Is(err, errors.ErrRegistryUnavailable) {
		return nil, err
	}
	return nil, errors.NewRegistryUnavailableError("list enabled clusters", err)
}

// dedupe drops repeated cluster IDs, keeping the first occurrence.
func dedupe(clusters []scaling.ClusterConfig, logger *logging.Logger) []scaling.ClusterConfig {
	seen := make(map[string]struct{}, len(clusters))
	out := clusters[:0:0]
	for _, c := range clusters {
		if _, ok := seen[c.ID]; ok {
			logger.Warn("duplicate cluster in registry, ignoring", "cluster_id", c.ID)
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// acquire marks clusterID as in flight. It reports false when an
// evaluation of the cluster is already running.
func (o *Orchestrator) acquire(clusterID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[clusterID]; busy {
		return false
	}
	o.inFlight[clusterID] = struct{}{}
	return true
}

func (o *Orchestrator) release(clusterID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, clusterID)
}

// evaluateOnce runs an evaluation unless one is already in flight for the
// cluster.
func (o *Orchestrator) evaluateOnce(ctx context.Context, cycleID string, cfg scaling.ClusterConfig) Result {
	if !o.acquire(cfg.ID) {
		o.logger.WithCluster(cfg.ID).Warn("evaluation already in flight, skipping")
		return Result{
			ClusterID: cfg.ID,
			Decision: scaling.Decision{
				Action:    scaling.ActionHold,
				Direction: scaling.DirectionNone,
				Reason:    scaling.ReasonInFlight,
			},
			Err: errors.ErrEvaluationInFlight,
		}
	}
	defer o.release(cfg.ID)
	return o.evaluate(ctx, cycleID, cfg)
}
