package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Iron-Ham/clusterscaler/internal/errors"
	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

// failureBackoff holds clusters that keep failing. After threshold
// consecutive failures the hold lasts base, doubling with each further
// failure up to max.
type failureBackoff struct {
	threshold int
	base      time.Duration
	max       time.Duration
}

// delay returns the hold after the given number of consecutive failures.
func (b failureBackoff) delay(failures int) time.Duration {
	if b.threshold <= 0 || failures < b.threshold || b.base <= 0 {
		return 0
	}
	d := b.base
	for i := b.threshold; i < failures; i++ {
		d *= 2
		if b.max > 0 && d >= b.max {
			return b.max
		}
	}
	if b.max > 0 && d > b.max {
		return b.max
	}
	return d
}

// backoffUntil reports whether clusterID is held at now, and until when.
func (o *Orchestrator) backoffUntil(clusterID string, now time.Time) (time.Time, bool) {
	failures, last := o.tracker.Failures(clusterID)
	d := o.backoff.delay(failures)
	if d == 0 {
		return time.Time{}, false
	}
	until := last.Add(d)
	return until, now.Before(until)
}

// record appends ev, retrying with exponential backoff until the history
// timeout elapses. It runs detached from ctx cancellation so that an
// evaluation interrupted by shutdown is still recorded.
func (o *Orchestrator) record(ctx context.Context, ev scaling.ScalingEvent) error {
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeouts.History)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = o.timeouts.History / 4
	policy.MaxElapsedTime = o.timeouts.History

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		return o.history.Append(recCtx, ev)
	}, backoff.WithContext(policy, recCtx))
	if err == nil {
		return nil
	}
	return errors.NewHistoryWriteError(fmt.Sprintf("append event after %d attempts", attempts), err).
		WithClusterID(ev.ClusterID).
		WithEventID(ev.ID)
}
