package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/clusterscaler/internal/errors"
	"github.com/Iron-Ham/clusterscaler/internal/event"
	"github.com/Iron-Ham/clusterscaler/internal/history"
	"github.com/Iron-Ham/clusterscaler/internal/logging"
	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

// evaluation carries the state of one cluster evaluation through its steps.
type evaluation struct {
	cfg      scaling.ClusterConfig
	logger   *logging.Logger
	started  time.Time
	trail    []State
	sample   *scaling.LoadSample
	decision scaling.Decision
	outcome  scaling.Outcome
	dryRun   bool
	err      error
	decided  bool
}

func (e *evaluation) enter(s State) {
	e.trail = append(e.trail, s)
}

// fail replaces the decision with an Error decision for err.
func (e *evaluation) fail(err error) {
	e.err = err
	e.outcome = scaling.OutcomeFailure
	current := 0
	if e.sample != nil {
		current = e.sample.Nodes
	}
	e.decision = scaling.Decision{
		Action:    scaling.ActionError,
		Current:   current,
		Target:    current,
		Direction: scaling.DirectionNone,
		Reason:    err.Error(),
		Err:       err,
	}
	e.decided = true
}

// evaluate runs the per-cluster state machine. The deferred step records
// the evaluation on every path, including a panic in any step.
func (o *Orchestrator) evaluate(ctx context.Context, cycleID string, cfg scaling.ClusterConfig) (res Result) {
	ctx, span := o.tracer.Start(ctx, "cluster.evaluate",
		trace.WithAttributes(
			attribute.String("cluster.id", cfg.ID),
			attribute.String("cycle.id", cycleID),
		),
	)
	defer span.End()

	ev := &evaluation{
		cfg:     cfg,
		logger:  o.logger.WithCycle(cycleID).WithCluster(cfg.ID),
		started: o.now(),
	}
	ev.enter(StatePending)

	defer func() {
		if r := recover(); r != nil {
			ev.logger.Error("evaluation panicked", "panic", r)
			ev.fail(fmt.Errorf("evaluation panicked: %v", r))
		}
		res = o.finish(ctx, cycleID, ev)

		span.SetAttributes(
			attribute.String("decision.action", res.Decision.Action.String()),
			attribute.String("outcome", res.Event.Outcome.String()),
			attribute.Int("nodes.current", res.Event.PreviousNodes),
			attribute.Int("nodes.target", res.Event.NewNodes),
		)
		if res.Event.Outcome == scaling.OutcomeFailure {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Event.Reason)
		}
	}()

	o.run(ctx, ev)
	return res
}

// run walks the evaluation from FETCHING_LOAD up to, but not including,
// RECORDING.
func (o *Orchestrator) run(ctx context.Context, ev *evaluation) {
	ev.enter(StateFetchingLoad)
	sample, fetchErr := o.fetchSample(ctx, ev.cfg.ID)
	ev.sample = sample
	if fetchErr != nil {
		ev.logger.Warn("load sample unavailable", "error", fetchErr)
	}

	ev.enter(StateFetchingHistory)
	histCtx, cancel := context.WithTimeout(ctx, o.timeouts.History)
	h, err := history.Read(histCtx, o.history, ev.cfg.ID)
	cancel()
	if err != nil {
		ev.logger.Error("history read failed", "error", err)
		ev.fail(err)
		return
	}

	ev.enter(StateDeciding)
	now := o.now()
	d := o.policy.Evaluate(ev.cfg, sample, h, now)
	if sample == nil && fetchErr != nil {
		d.Reason = fmt.Sprintf("%s: %v", scaling.ReasonSampleUnavailable, fetchErr)
		ev.err = fetchErr
	}
	if d.IsResize() && !d.BoundViolation {
		if until, held := o.backoffUntil(ev.cfg.ID, now); held {
			d = holdDecision(d, fmt.Sprintf("%s until %s", scaling.ReasonFailureBackoff, until.UTC().Format(time.RFC3339)))
		}
	}
	ev.decision = d
	ev.decided = true

	switch {
	case d.Action == scaling.ActionError:
		ev.err = d.Err
		ev.outcome = scaling.OutcomeFailure
		ev.logger.Error("evaluation error", "error", d.Err)
		return
	case !d.IsResize():
		ev.outcome = scaling.OutcomeSkipped
		ev.logger.Debug("holding", "reason", d.Reason, "nodes", d.Current)
		return
	case o.dryRun:
		ev.outcome = scaling.OutcomeSkipped
		ev.dryRun = true
		ev.logger.Info("dry run, not resizing", "from", d.Current, "to", d.Target, "reason", d.Reason)
		return
	}

	ev.enter(StateApplying)
	if err := o.apply(ctx, ev.cfg.ID, d.Target); err != nil {
		ev.err = err
		ev.outcome = scaling.OutcomeFailure
		ev.logger.Error("resize failed", "from", d.Current, "to", d.Target, "error", err)
		return
	}
	ev.outcome = scaling.OutcomeSuccess
	ev.logger.Info("resized",
		"direction", d.Direction,
		"from", d.Current,
		"to", d.Target,
		"reason", d.Reason,
		"bound_violation", d.BoundViolation,
	)
}

// fetchSample returns the sample or the reason there is none. Errors are
// normalized to TransientFetchError or TimeoutError.
func (o *Orchestrator) fetchSample(ctx context.Context, clusterID string) (*scaling.LoadSample, error) {
	loadCtx, cancel := context.WithTimeout(ctx, o.timeouts.Load)
	defer cancel()

	sample, err := o.source.FetchSample(loadCtx, clusterID, o.sampleWindow)
	switch {
	case err == nil && sample == nil:
		return nil, errors.NewTransientFetchError("no sample returned", errors.ErrSampleUnavailable).
			WithClusterID(clusterID)
	case err == nil:
		return sample, nil
	case loadCtx.Err() == context.DeadlineExceeded:
		return nil, errors.NewTimeoutError("fetch sample for "+clusterID, o.timeouts.Load).WithCause(err)
	default:
		var scalerErr errors.ScalerError
		if errors.As(err, &scalerErr) {
			return nil, err
		}
		return nil, errors.NewTransientFetchError("fetch sample", err).WithClusterID(clusterID)
	}
}

// apply issues the resize under the admin timeout. Errors are normalized to
// AdminApplyError.
func (o *Orchestrator) apply(ctx context.Context, clusterID string, target int) error {
	adminCtx, cancel := context.WithTimeout(ctx, o.timeouts.Admin)
	defer cancel()

	err := o.admin.Resize(adminCtx, clusterID, target)
	if err == nil {
		return nil
	}
	var applyErr *errors.AdminApplyError
	if errors.As(err, &applyErr) {
		return err
	}
	if adminCtx.Err() == context.DeadlineExceeded {
		err = errors.NewTimeoutError("resize "+clusterID, o.timeouts.Admin).WithCause(err)
	}
	return errors.NewAdminApplyError("resize", err).
		WithClusterID(clusterID).
		WithTargetNodes(target)
}

// finish performs RECORDING and DONE. It runs from a deferred call and
// must not panic.
func (o *Orchestrator) finish(ctx context.Context, cycleID string, ev *evaluation) Result {
	ev.enter(StateRecording)
	if !ev.decided {
		ev.fail(fmt.Errorf("evaluation ended without a decision"))
	}

	record := o.buildEvent(ev)
	recordErr := o.record(ctx, record)
	if recordErr != nil {
		ev.logger.Error("history append failed", "event_id", record.ID, "error", recordErr)
		o.bus.Publish(event.NewHistoryWriteFailedEvent(record.ClusterID, record.ID, recordErr))
	}

	var failure error
	if ev.outcome == scaling.OutcomeFailure {
		failure = ev.err
	}
	o.tracker.Record(record, ev.decision.Action, failure)

	ev.enter(StateDone)
	elapsed := o.now().Sub(ev.started)
	evaluated := event.NewClusterEvaluatedEvent(cycleID, record, ev.decision.Action, failure, elapsed)
	if ev.decision.Target > 0 {
		evaluated.Target = ev.decision.Target
	}
	o.bus.Publish(evaluated)

	return Result{
		ClusterID: ev.cfg.ID,
		Decision:  ev.decision,
		Event:     record,
		Trail:     ev.trail,
		Err:       ev.err,
		RecordErr: recordErr,
		Duration:  elapsed,
	}
}

// buildEvent turns the evaluation into its audit record.
func (o *Orchestrator) buildEvent(ev *evaluation) scaling.ScalingEvent {
	d := ev.decision
	rec := scaling.NewEvent(ev.cfg.ID, o.now())
	rec.PreviousNodes = d.Current
	rec.NewNodes = d.Current
	rec.Outcome = ev.outcome
	rec.Reason = d.Reason
	rec.DryRun = ev.dryRun

	if d.IsResize() {
		rec.Direction = d.Direction
	}
	switch {
	case ev.outcome == scaling.OutcomeSuccess:
		rec.NewNodes = d.Target
	case ev.dryRun:
		rec.Reason = fmt.Sprintf("%s: %d -> %d: %s", scaling.ReasonDryRun, d.Current, d.Target, d.Reason)
	case ev.outcome == scaling.OutcomeFailure && ev.err != nil && d.IsResize():
		rec.Reason = ev.err.Error()
	}

	if ev.sample != nil && !math.IsNaN(ev.sample.Utilization) && !math.IsInf(ev.sample.Utilization, 0) {
		rec.Utilization = ev.sample.Utilization
	}
	return rec
}

func holdDecision(d scaling.Decision, reason string) scaling.Decision {
	return scaling.Decision{
		Action:    scaling.ActionHold,
		Current:   d.Current,
		Target:    d.Current,
		Direction: scaling.DirectionNone,
		Reason:    reason,
	}
}
