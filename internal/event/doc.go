// Package event provides a pub-sub event bus for decoupled inter-component
// communication in clusterscaler.
//
// The orchestrator publishes what happened; metrics, the cluster status
// tracker, and the alerter subscribe. None of the subscribers are known to
// the orchestrator, so any of them can be left out of a deployment.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Evaluation:
//   - [ClusterEvaluatedEvent]: one per cluster per cycle
//   - [HistoryWriteFailedEvent]: an audit record was lost
//
// Cycle:
//   - [CycleCompletedEvent]: a cycle finished, with outcome counts
//   - [CycleSkippedEvent]: a tick overlapped a running cycle
//   - [RegistryUnavailableEvent]: a cycle was abandoned
//
// Infrastructure:
//   - [RegistryReloadedEvent]: a file registry was re-read
//   - [LifecycleChangedEvent]: the daemon changed lifecycle state
package event
