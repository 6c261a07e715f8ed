package scaling

import (
	"time"

	"github.com/google/uuid"
)

// ScalingEvent is the immutable audit record of one evaluation.
type ScalingEvent struct {
	ID            string    `json:"id" bson:"_id"`
	ClusterID     string    `json:"cluster_id" bson:"cluster_id"`
	Timestamp     time.Time `json:"timestamp" bson:"timestamp"`
	PreviousNodes int       `json:"previous_nodes" bson:"previous_nodes"`
	NewNodes      int       `json:"new_nodes" bson:"new_nodes"`
	Direction     Direction `json:"direction" bson:"direction"`
	Outcome       Outcome   `json:"outcome" bson:"outcome"`
	Reason        string    `json:"reason,omitempty" bson:"reason,omitempty"`
	Utilization   float64   `json:"utilization" bson:"utilization"`
	DryRun        bool      `json:"dry_run,omitempty" bson:"dry_run,omitempty"`
}

// NewEvent creates an event with a fresh ID.
func NewEvent(clusterID string, ts time.Time) ScalingEvent {
	return ScalingEvent{
		ID:        uuid.NewString(),
		ClusterID: clusterID,
		Timestamp: ts,
		Direction: DirectionNone,
	}
}

// IsSuccessfulResize reports whether the event records an applied resize.
func (e ScalingEvent) IsSuccessfulResize() bool {
	return e.Outcome == OutcomeSuccess && e.Direction != DirectionNone
}

// History is the slice of a cluster's scaling history the engine needs.
// Any field may be nil.
type History struct {
	// Last is the most recent event of any outcome.
	Last *ScalingEvent
	// LastScaleUp is the most recent successful UP resize.
	LastScaleUp *ScalingEvent
	// LastScaleDown is the most recent successful DOWN resize.
	LastScaleDown *ScalingEvent
}

// LastSuccess returns the most recent successful resize in direction d.
func (h History) LastSuccess(d Direction) *ScalingEvent {
	switch d {
	case DirectionUp:
		return h.LastScaleUp
	case DirectionDown:
		return h.LastScaleDown
	default:
		return nil
	}
}
