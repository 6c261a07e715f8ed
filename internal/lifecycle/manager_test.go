package lifecycle

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Iron-Ham/clusterscaler/internal/errors"
	"github.com/Iron-Ham/clusterscaler/internal/event"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateCreated, "created"},
		{StateRunning, "running"},
		{StateDraining, "draining"},
		{StateStopped, "stopped"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestManager_Transitions(t *testing.T) {
	m := NewManager()
	if m.State() != StateCreated || m.Ready() {
		t.Fatalf("new manager state = %s", m.State())
	}

	if err := m.BeginDrain(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("BeginDrain() from created = %v, want ErrInvalidTransition", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if !m.Ready() {
		t.Error("Ready() = false while running")
	}
	if err := m.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Start() = %v, want ErrInvalidTransition", err)
	}
	if err := m.BeginDrain(); err != nil {
		t.Fatalf("BeginDrain() = %v", err)
	}
	if m.Ready() {
		t.Error("Ready() = true while draining")
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if err := m.Stop(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Stop() = %v, want ErrInvalidTransition", err)
	}
}

func TestManager_StopReleasesInReverseOrder(t *testing.T) {
	m := NewManager()
	var order []string
	for _, name := range []string{"logger", "mongo", "server"} {
		m.OnStop(name, func(context.Context) error {
			order = append(order, name)
			if name == "mongo" {
				return stderrors.New("disconnect failed")
			}
			return nil
		})
	}

	err := m.Stop(context.Background())
	if diff := cmp.Diff([]string{"server", "mongo", "logger"}, order); diff != "" {
		t.Errorf("release order mismatch (-want +got):\n%s", diff)
	}
	if err == nil {
		t.Error("Stop() should report the failed release")
	}
}

func TestManager_RunPublishesTransitions(t *testing.T) {
	bus := event.NewBus()
	var (
		mu          sync.Mutex
		transitions []string
	)
	bus.Subscribe(event.TypeLifecycleChanged, func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		c := e.(event.LifecycleChangedEvent)
		transitions = append(transitions, c.From+"->"+c.To)
	})

	m := NewManager(WithBus(bus), WithStopTimeout(time.Second))
	ctx, cancel := context.WithCancel(context.Background())

	var stateDuringDrain State
	err := m.Run(ctx, func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		// The drain transition runs asynchronously after cancel.
		deadline := time.Now().Add(time.Second)
		for m.State() != StateDraining && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		stateDuringDrain = m.State()
		return nil
	})
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if stateDuringDrain != StateDraining {
		t.Errorf("state while draining = %s", stateDuringDrain)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"created->running", "running->draining", "draining->stopped"}
	if diff := cmp.Diff(want, transitions); diff != "" {
		t.Errorf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_RunReturnsRunError(t *testing.T) {
	m := NewManager()
	boom := stderrors.New("boom")

	err := m.Run(context.Background(), func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("Run() = %v, want %v", err, boom)
	}
	if m.State() != StateStopped {
		t.Errorf("State() = %s, want stopped", m.State())
	}
}
