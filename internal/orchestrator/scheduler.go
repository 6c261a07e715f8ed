package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/clusterscaler/internal/errors"
	"github.com/Iron-Ham/clusterscaler/internal/event"
	"github.com/Iron-Ham/clusterscaler/internal/logging"
)

const (
	defaultInterval     = 5 * time.Second
	defaultDrainTimeout = 5 * time.Second
)

// Cycler runs one evaluation cycle.
type Cycler interface {
	RunCycle(ctx context.Context) (*CycleReport, error)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the time between cycle starts.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithDrainTimeout sets how long Run waits for an in-flight cycle after
// its context ends before canceling it.
func WithDrainTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.drainTimeout = d
		}
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l *logging.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l.WithComponent("scheduler") }
}

// WithSchedulerBus sets the bus skipped ticks are published on.
func WithSchedulerBus(b *event.Bus) SchedulerOption {
	return func(s *Scheduler) { s.bus = b }
}

// Scheduler runs cycles on a fixed interval with at most one cycle in
// flight. Ticks that fire while a cycle is running are skipped.
type Scheduler struct {
	cycler       Cycler
	interval     time.Duration
	drainTimeout time.Duration
	logger       *logging.Logger
	bus          *event.Bus

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler driving c.
func NewScheduler(c Cycler, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		cycler:       c,
		interval:     defaultInterval,
		drainTimeout: defaultDrainTimeout,
		logger:       logging.NopLogger(),
		bus:          event.NewBus(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Running reports whether a cycle is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Run starts a cycle immediately and then on every tick until ctx ends.
// It then waits up to the drain timeout for the in-flight cycle, cancels
// it if the deadline passes, and returns once it has finished. A drain
// that hit the deadline returns a TimeoutError.
func (s *Scheduler) Run(ctx context.Context) error {
	// Cycles outlive ctx so that shutdown can drain them.
	cycleCtx, cancelCycles := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelCycles()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.interval)
	s.trigger(cycleCtx)
	for {
		select {
		case <-ctx.Done():
			return s.drain(cancelCycles)
		case <-ticker.C:
			s.trigger(cycleCtx)
		}
	}
}

// RunOnce runs a single cycle synchronously. It returns ErrCycleInProgress
// when a cycle is already running.
func (s *Scheduler) RunOnce(ctx context.Context) (*CycleReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, errors.ErrCycleInProgress
	}
	defer s.running.Store(false)
	return s.cycler.RunCycle(ctx)
}

// trigger starts a cycle in the background unless one is running.
func (s *Scheduler) trigger(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous cycle still running, skipping tick")
		s.bus.Publish(event.NewCycleSkippedEvent(errors.ErrCycleInProgress.Error()))
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		if _, err := s.cycler.RunCycle(ctx); err != nil {
			s.logger.Warn("cycle failed", "error", err)
		}
	}()
	return true
}

func (s *Scheduler) drain(cancelCycles context.CancelFunc) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	s.logger.Info("draining in-flight cycle", "timeout", s.drainTimeout)
	timer := time.NewTimer(s.drainTimeout)
	defer timer.Stop()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-timer.C:
		s.logger.Warn("drain deadline passed, canceling in-flight evaluations")
		cancelCycles()
		<-done
		return errors.NewTimeoutError("drain in-flight cycle", s.drainTimeout).WithCause(errors.ErrCanceled)
	}
}
