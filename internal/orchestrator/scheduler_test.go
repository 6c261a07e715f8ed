package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/clusterscaler/internal/errors"
	"github.com/Iron-Ham/clusterscaler/internal/event"
)

// blockingCycler counts cycles and blocks each one until released or its
// context ends.
type blockingCycler struct {
	started  atomic.Int32
	finished atomic.Int32
	canceled atomic.Int32
	active   atomic.Int32
	overlap  atomic.Bool
	release  chan struct{}
}

func newBlockingCycler() *blockingCycler {
	return &blockingCycler{release: make(chan struct{})}
}

func (c *blockingCycler) RunCycle(ctx context.Context) (*CycleReport, error) {
	if c.active.Add(1) > 1 {
		c.overlap.Store(true)
	}
	defer c.active.Add(-1)
	c.started.Add(1)

	select {
	case <-c.release:
		c.finished.Add(1)
		return &CycleReport{}, nil
	case <-ctx.Done():
		c.canceled.Add(1)
		return nil, ctx.Err()
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestScheduler_SkipsOverlappingTicks(t *testing.T) {
	cycler := newBlockingCycler()
	bus := event.NewBus()
	var skipped atomic.Int32
	bus.Subscribe(event.TypeCycleSkipped, func(event.Event) { skipped.Add(1) })

	s := NewScheduler(cycler,
		WithInterval(5*time.Millisecond),
		WithDrainTimeout(time.Second),
		WithSchedulerBus(bus),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, func() bool { return skipped.Load() >= 3 })
	if got := cycler.started.Load(); got != 1 {
		t.Errorf("started %d cycles while the first was running, want 1", got)
	}

	close(cycler.release)
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() = %v, want nil after a clean drain", err)
	}
	if cycler.overlap.Load() {
		t.Error("cycles overlapped")
	}
}

func TestScheduler_RunsEveryInterval(t *testing.T) {
	cycler := newBlockingCycler()
	close(cycler.release)

	s := NewScheduler(cycler, WithInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, func() bool { return cycler.finished.Load() >= 3 })
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() = %v", err)
	}
	if s.Running() {
		t.Error("Running() = true after Run returned")
	}
}

func TestScheduler_DrainWaitsForInFlightCycle(t *testing.T) {
	cycler := newBlockingCycler()
	s := NewScheduler(cycler, WithInterval(time.Hour), WithDrainTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, func() bool { return cycler.started.Load() == 1 })
	cancel()

	select {
	case <-done:
		t.Fatal("Run returned before the in-flight cycle finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(cycler.release)
	if err := <-done; err != nil {
		t.Errorf("Run() = %v", err)
	}
	if cycler.finished.Load() != 1 || cycler.canceled.Load() != 0 {
		t.Errorf("finished=%d canceled=%d, want the cycle to complete", cycler.finished.Load(), cycler.canceled.Load())
	}
}

func TestScheduler_DrainDeadlineCancels(t *testing.T) {
	cycler := newBlockingCycler()
	s := NewScheduler(cycler, WithInterval(time.Hour), WithDrainTimeout(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, func() bool { return cycler.started.Load() == 1 })
	cancel()

	err := <-done
	if !errors.Is(err, errors.ErrTimeout) {
		t.Errorf("Run() = %v, want ErrTimeout", err)
	}
	if cycler.canceled.Load() != 1 {
		t.Error("in-flight cycle should be canceled after the drain deadline")
	}
}

func TestScheduler_RunOnce(t *testing.T) {
	cycler := newBlockingCycler()
	s := NewScheduler(cycler)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := s.RunOnce(context.Background()); err != nil {
			t.Errorf("first RunOnce failed: %v", err)
		}
	}()

	waitFor(t, func() bool { return cycler.started.Load() == 1 })
	if _, err := s.RunOnce(context.Background()); !errors.Is(err, errors.ErrCycleInProgress) {
		t.Errorf("concurrent RunOnce = %v, want ErrCycleInProgress", err)
	}

	close(cycler.release)
	wg.Wait()
}
