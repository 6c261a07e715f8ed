package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Iron-Ham/clusterscaler/internal/errors"
	"github.com/Iron-Ham/clusterscaler/internal/event"
	"github.com/Iron-Ham/clusterscaler/internal/logging"
)

const defaultStopTimeout = 10 * time.Second

// Common errors returned by Manager operations.
var (
	// ErrInvalidTransition is returned when a transition is not allowed
	// from the current state.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

// State is the lifecycle state of the process.
type State int

const (
	// StateCreated indicates the manager has not started.
	StateCreated State = iota

	// StateRunning indicates the scheduler is running.
	StateRunning

	// StateDraining indicates shutdown has begun and in-flight work is
	// being drained.
	StateDraining

	// StateStopped indicates all resources have been released.
	StateStopped
)

// String returns a human-readable string for the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StopFunc releases one resource.
type StopFunc func(ctx context.Context) error

type resource struct {
	name string
	stop StopFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithBus sets the bus transitions are published on.
func WithBus(b *event.Bus) Option {
	return func(m *Manager) { m.bus = b }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l.WithComponent("lifecycle") }
}

// WithStopTimeout bounds the release of all registered resources.
func WithStopTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.stopTimeout = d
		}
	}
}

// Manager owns the process lifecycle. It is safe for concurrent use.
type Manager struct {
	mu          sync.Mutex
	state       State
	resources   []resource
	bus         *event.Bus
	logger      *logging.Logger
	stopTimeout time.Duration
}

// NewManager creates a manager in StateCreated.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		state:       StateCreated,
		bus:         event.NewBus(),
		logger:      logging.NopLogger(),
		stopTimeout: defaultStopTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ready reports whether the manager is Running.
func (m *Manager) Ready() bool {
	return m.State() == StateRunning
}

// OnStop registers a resource to release on shutdown. Resources are
// released in reverse registration order.
func (m *Manager) OnStop(name string, stop StopFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources = append(m.resources, resource{name: name, stop: stop})
}

// transition moves from one of the allowed states to next.
func (m *Manager) transition(next State, allowed ...State) error {
	m.mu.Lock()
	prev := m.state
	ok := false
	for _, s := range allowed {
		if prev == s {
			ok = true
			break
		}
	}
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, next)
	}
	m.state = next
	m.mu.Unlock()

	m.logger.Info("lifecycle transition", "from", prev.String(), "to", next.String())
	m.bus.Publish(event.NewLifecycleChangedEvent(prev.String(), next.String()))
	return nil
}

// Start moves Created -> Running.
func (m *Manager) Start() error {
	return m.transition(StateRunning, StateCreated)
}

// BeginDrain moves Running -> Draining.
func (m *Manager) BeginDrain() error {
	return m.transition(StateDraining, StateRunning)
}

// Stop releases all registered resources in reverse order and moves to
// Stopped. Release errors are joined; every resource is attempted.
func (m *Manager) Stop(ctx context.Context) error {
	if err := m.transition(StateStopped, StateCreated, StateRunning, StateDraining); err != nil {
		return err
	}

	m.mu.Lock()
	resources := m.resources
	m.resources = nil
	m.mu.Unlock()

	var errs []error
	for i := len(resources) - 1; i >= 0; i-- {
		r := resources[i]
		if err := r.stop(ctx); err != nil {
			m.logger.Warn("failed to release resource", "resource", r.name, "error", err)
			errs = append(errs, fmt.Errorf("stop %s: %w", r.name, err))
		}
	}
	return errors.Join(errs...)
}

// Run starts the manager, calls run and, once ctx ends, moves to Draining
// while run finishes. It then stops the manager and returns run's error
// joined with any release errors.
func (m *Manager) Run(ctx context.Context, run func(context.Context) error) error {
	if err := m.Start(); err != nil {
		return err
	}

	stopDrain := context.AfterFunc(ctx, func() { _ = m.BeginDrain() })
	runErr := run(ctx)
	stopDrain()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.stopTimeout)
	defer cancel()
	return errors.Join(runErr, m.Stop(stopCtx))
}
