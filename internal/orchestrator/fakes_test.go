package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/clusterscaler/internal/history"
	"github.com/Iron-Ham/clusterscaler/internal/orchestrator/status"
	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeRegistry struct {
	clusters []scaling.ClusterConfig
	err      error
}

func (r *fakeRegistry) ListEnabledClusters(context.Context) ([]scaling.ClusterConfig, error) {
	return r.clusters, r.err
}

// fakeSource serves samples keyed by cluster ID. Samples are stamped with
// the clock's current time.
type fakeSource struct {
	mu      sync.Mutex
	clock   *fakeClock
	samples map[string]scaling.LoadSample
	errs    map[string]error
	panics  map[string]bool
	// hang holds FetchSample until its context ends; released records when.
	hang     map[string]bool
	released map[string]time.Time
}

func newFakeSource(clock *fakeClock) *fakeSource {
	return &fakeSource{
		clock:    clock,
		samples:  make(map[string]scaling.LoadSample),
		errs:     make(map[string]error),
		panics:   make(map[string]bool),
		hang:     make(map[string]bool),
		released: make(map[string]time.Time),
	}
}

func (s *fakeSource) set(id string, nodes int, util float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[id] = scaling.LoadSample{ClusterID: id, Nodes: nodes, Utilization: util}
}

func (s *fakeSource) FetchSample(ctx context.Context, id string, _ time.Duration) (*scaling.LoadSample, error) {
	s.mu.Lock()
	hang := s.hang[id]
	s.mu.Unlock()
	if hang {
		<-ctx.Done()
		s.mu.Lock()
		s.released[id] = time.Now()
		s.mu.Unlock()
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panics[id] {
		panic("load source exploded")
	}
	if err := s.errs[id]; err != nil {
		return nil, err
	}
	sample, ok := s.samples[id]
	if !ok {
		return nil, nil
	}
	sample.ObservedAt = s.clock.Now()
	return &sample, nil
}

type resizeCall struct {
	ClusterID string
	Target    int
}

type fakeAdmin struct {
	mu        sync.Mutex
	calls     []resizeCall
	resizedAt map[string]time.Time
	errs      map[string]error
	// block, when set, is waited on inside Resize.
	block chan struct{}

	active    atomic.Int32
	maxActive atomic.Int32
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{errs: make(map[string]error), resizedAt: make(map[string]time.Time)}
}

func (a *fakeAdmin) Resize(ctx context.Context, id string, target int) error {
	n := a.active.Add(1)
	defer a.active.Add(-1)
	for {
		m := a.maxActive.Load()
		if n <= m || a.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, resizeCall{ClusterID: id, Target: target})
	a.resizedAt[id] = time.Now()
	return a.errs[id]
}

func (a *fakeAdmin) Calls() []resizeCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]resizeCall, len(a.calls))
	copy(out, a.calls)
	return out
}

// flakyHistory wraps a MemoryStore with injectable failures.
type flakyHistory struct {
	*history.MemoryStore
	readErr      error
	appendErr    error
	appendCalls  atomic.Int32
	failAppendsN int32
}

func (h *flakyHistory) LastEvent(ctx context.Context, id string) (*scaling.ScalingEvent, error) {
	if h.readErr != nil {
		return nil, h.readErr
	}
	return h.MemoryStore.LastEvent(ctx, id)
}

func (h *flakyHistory) Append(ctx context.Context, ev scaling.ScalingEvent) error {
	n := h.appendCalls.Add(1)
	if h.appendErr != nil && (h.failAppendsN == 0 || n <= h.failAppendsN) {
		return h.appendErr
	}
	return h.MemoryStore.Append(ctx, ev)
}

func cluster(id string) scaling.ClusterConfig {
	return scaling.ClusterConfig{
		ID:                id,
		MinNodes:          3,
		MaxNodes:          30,
		TargetUtilization: 0.5,
		ScaleUpCooldown:   5 * time.Minute,
		ScaleDownCooldown: 10 * time.Minute,
		Enabled:           true,
	}
}

type harness struct {
	// lastTracker is the tracker of the most recently built orchestrator.
	lastTracker *status.Tracker

	clock   *fakeClock
	reg     *fakeRegistry
	source  *fakeSource
	history *flakyHistory
	admin   *fakeAdmin
}

func newHarness(clusters ...scaling.ClusterConfig) *harness {
	clock := newFakeClock()
	return &harness{
		clock:   clock,
		reg:     &fakeRegistry{clusters: clusters},
		source:  newFakeSource(clock),
		history: &flakyHistory{MemoryStore: history.NewMemoryStore(100)},
		admin:   newFakeAdmin(),
	}
}

func (h *harness) orchestrator(opts ...Option) *Orchestrator {
	opts = append([]Option{
		WithClock(h.clock.Now),
		WithTimeouts(Timeouts{History: 500 * time.Millisecond}),
	}, opts...)
	o := New(h.reg, h.source, h.history, h.admin, opts...)
	h.lastTracker = o.Tracker()
	return o
}
