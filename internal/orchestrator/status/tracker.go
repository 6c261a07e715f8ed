// Package status tracks the latest evaluation state of each cluster.
//
// The tracker records the last decision, last error and consecutive
// failure count per cluster, plus a summary of the most recent cycle. The
// orchestrator consults it for failure backoff and the HTTP surface serves
// it as JSON.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

// ClusterStatus is the tracked state of one cluster.
type ClusterStatus struct {
	ClusterID           string          `json:"cluster_id"`
	LastEvaluated       time.Time       `json:"last_evaluated"`
	LastAction          scaling.Action  `json:"last_action"`
	LastOutcome         scaling.Outcome `json:"last_outcome"`
	LastReason          string          `json:"last_reason,omitempty"`
	CurrentNodes        int             `json:"current_nodes"`
	TargetNodes         int             `json:"target_nodes"`
	LastError           string          `json:"last_error,omitempty"`
	LastErrorAt         time.Time       `json:"last_error_at,omitzero"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	LastFailure         time.Time       `json:"last_failure,omitzero"`
}

// CycleStatus summarizes the most recent completed cycle.
type CycleStatus struct {
	CycleID   string        `json:"cycle_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Clusters  int           `json:"clusters"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
}

// Snapshot is a point-in-time copy of all tracked state.
type Snapshot struct {
	LastCycle *CycleStatus    `json:"last_cycle,omitempty"`
	Clusters  []ClusterStatus `json:"clusters"`
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu        sync.RWMutex
	clusters  map[string]*ClusterStatus
	lastCycle *CycleStatus
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		clusters: make(map[string]*ClusterStatus),
	}
}

// Record folds one evaluation into the cluster's state. A FAILURE outcome
// increments the consecutive failure count, SUCCESS resets it and SKIPPED
// leaves it unchanged.
func (t *Tracker) Record(ev scaling.ScalingEvent, action scaling.Action, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.clusters[ev.ClusterID]
	if !ok {
		st = &ClusterStatus{ClusterID: ev.ClusterID}
		t.clusters[ev.ClusterID] = st
	}

	st.LastEvaluated = ev.Timestamp
	st.LastAction = action
	st.LastOutcome = ev.Outcome
	st.LastReason = ev.Reason
	st.CurrentNodes = ev.PreviousNodes
	st.TargetNodes = ev.NewNodes

	if err != nil {
		st.LastError = err.Error()
		st.LastErrorAt = ev.Timestamp
	}

	switch ev.Outcome {
	case scaling.OutcomeFailure:
		st.ConsecutiveFailures++
		st.LastFailure = ev.Timestamp
	case scaling.OutcomeSuccess:
		st.ConsecutiveFailures = 0
	}
}

// Failures returns the consecutive failure count and the time of the last
// failure for clusterID.
func (t *Tracker) Failures(clusterID string) (int, time.Time) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.clusters[clusterID]
	if !ok {
		return 0, time.Time{}
	}
	return st.ConsecutiveFailures, st.LastFailure
}

// Get returns a copy of the cluster's state.
func (t *Tracker) Get(clusterID string) (ClusterStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.clusters[clusterID]
	if !ok {
		return ClusterStatus{}, false
	}
	return *st, true
}

// RecordCycle stores the summary of a completed cycle.
func (t *Tracker) RecordCycle(c CycleStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastCycle = &c
}

// LastCycle returns the most recent cycle summary, if any.
func (t *Tracker) LastCycle() (CycleStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lastCycle == nil {
		return CycleStatus{}, false
	}
	return *t.lastCycle, true
}

// Reset forgets a cluster.
func (t *Tracker) Reset(clusterID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.clusters, clusterID)
}

// Snapshot returns a copy of all state, clusters ordered by ID.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := Snapshot{Clusters: make([]ClusterStatus, 0, len(t.clusters))}
	for _, st := range t.clusters {
		snap.Clusters = append(snap.Clusters, *st)
	}
	sort.Slice(snap.Clusters, func(i, j int) bool {
		return snap.Clusters[i].ClusterID < snap.Clusters[j].ClusterID
	})
	if t.lastCycle != nil {
		c := *t.lastCycle
		snap.LastCycle = &c
	}
	return snap
}
