// Package event defines event types for decoupling the scheduler from the
// components that observe it: metrics, the status tracker, and alerting.
package event

import (
	"time"

	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

// Event type identifiers.
const (
	TypeClusterEvaluated    = "scaling.evaluated"
	TypeCycleCompleted      = "cycle.completed"
	TypeCycleSkipped        = "cycle.skipped"
	TypeRegistryUnavailable = "cycle.registry_unavailable"
	TypeHistoryWriteFailed  = "history.write_failed"
	TypeRegistryReloaded    = "registry.reloaded"
	TypeLifecycleChanged    = "lifecycle.changed"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "cycle.completed").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Evaluation Events
// -----------------------------------------------------------------------------

// ClusterEvaluatedEvent is emitted once per cluster evaluation, after the
// audit record has been written (or the write has given up).
type ClusterEvaluatedEvent struct {
	baseEvent
	CycleID  string
	Record   scaling.ScalingEvent // The audit record of the evaluation
	Action   scaling.Action       // What the engine decided
	Target   int                  // Node count the engine decided on
	Err      error                // Failure cause, nil unless Record.Outcome is FAILURE
	Duration time.Duration        // Wall time of the evaluation
}

// NewClusterEvaluatedEvent creates a ClusterEvaluatedEvent.
func NewClusterEvaluatedEvent(cycleID string, record scaling.ScalingEvent, action scaling.Action, err error, d time.Duration) ClusterEvaluatedEvent {
	return ClusterEvaluatedEvent{
		baseEvent: newBaseEvent(TypeClusterEvaluated),
		CycleID:   cycleID,
		Record:    record,
		Action:    action,
		Target:    record.NewNodes,
		Err:       err,
		Duration:  d,
	}
}

// HistoryWriteFailedEvent is emitted when an audit record could not be
// persisted after retries.
type HistoryWriteFailedEvent struct {
	baseEvent
	ClusterID string
	EventID   string
	Err       error
}

// NewHistoryWriteFailedEvent creates a HistoryWriteFailedEvent.
func NewHistoryWriteFailedEvent(clusterID, eventID string, err error) HistoryWriteFailedEvent {
	return HistoryWriteFailedEvent{
		baseEvent: newBaseEvent(TypeHistoryWriteFailed),
		ClusterID: clusterID,
		EventID:   eventID,
		Err:       err,
	}
}

// -----------------------------------------------------------------------------
// Cycle Events
// -----------------------------------------------------------------------------

// CycleCompletedEvent is emitted after every cycle that listed the registry.
type CycleCompletedEvent struct {
	baseEvent
	CycleID   string
	StartedAt time.Time
	Duration  time.Duration
	Clusters  int
	Succeeded int
	Failed    int
	Skipped   int
}

// NewCycleCompletedEvent creates a CycleCompletedEvent.
func NewCycleCompletedEvent(cycleID string, startedAt time.Time, d time.Duration, clusters, succeeded, failed, skipped int) CycleCompletedEvent {
	return CycleCompletedEvent{
		baseEvent: newBaseEvent(TypeCycleCompleted),
		CycleID:   cycleID,
		StartedAt: startedAt,
		Duration:  d,
		Clusters:  clusters,
		Succeeded: succeeded,
		Failed:    failed,
		Skipped:   skipped,
	}
}

// CycleSkippedEvent is emitted when a tick fires while a cycle is running.
type CycleSkippedEvent struct {
	baseEvent
	Reason string
}

// NewCycleSkippedEvent creates a CycleSkippedEvent.
func NewCycleSkippedEvent(reason string) CycleSkippedEvent {
	return CycleSkippedEvent{
		baseEvent: newBaseEvent(TypeCycleSkipped),
		Reason:    reason,
	}
}

// RegistryUnavailableEvent is emitted when a cycle is abandoned because
// the cluster registry could not be listed.
type RegistryUnavailableEvent struct {
	baseEvent
	CycleID string
	Err     error
}

// NewRegistryUnavailableEvent creates a RegistryUnavailableEvent.
func NewRegistryUnavailableEvent(cycleID string, err error) RegistryUnavailableEvent {
	return RegistryUnavailableEvent{
		baseEvent: newBaseEvent(TypeRegistryUnavailable),
		CycleID:   cycleID,
		Err:       err,
	}
}

// -----------------------------------------------------------------------------
// Infrastructure Events
// -----------------------------------------------------------------------------

// RegistryReloadedEvent is emitted when a file-backed registry re-reads its
// source. Err is set when the new contents were rejected and the previous
// set was kept.
type RegistryReloadedEvent struct {
	baseEvent
	Source string
	// Clusters is the number of enabled clusters now being served.
	Clusters int
	Err      error
}

// NewRegistryReloadedEvent creates a RegistryReloadedEvent.
func NewRegistryReloadedEvent(source string, clusters int, err error) RegistryReloadedEvent {
	return RegistryReloadedEvent{
		baseEvent: newBaseEvent(TypeRegistryReloaded),
		Source:    source,
		Clusters:  clusters,
		Err:       err,
	}
}

// LifecycleChangedEvent is emitted on every lifecycle state transition.
type LifecycleChangedEvent struct {
	baseEvent
	From string
	To   string
}

// NewLifecycleChangedEvent creates a LifecycleChangedEvent.
func NewLifecycleChangedEvent(from, to string) LifecycleChangedEvent {
	return LifecycleChangedEvent{
		baseEvent: newBaseEvent(TypeLifecycleChanged),
		From:      from,
		To:        to,
	}
}
