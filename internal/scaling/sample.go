package scaling

import (
	"math"
	"time"

	"github.com/Iron-Ham/clusterscaler/internal/errors"
)

// LoadSample is one observation of a cluster's size and load. It is produced
// fresh each cycle and never persisted.
type LoadSample struct {
	ClusterID   string    `json:"cluster_id"`
	ObservedAt  time.Time `json:"observed_at"`
	Nodes       int       `json:"nodes"`
	Utilization float64   `json:"utilization"`
}

// Validate rejects samples the engine must not act on.
func (s LoadSample) Validate() error {
	if s.Nodes <= 0 {
		return errors.NewInvalidSampleError("node count must be positive").
			WithClusterID(s.ClusterID).
			WithSample(s.Nodes, s.Utilization)
	}
	if math.IsNaN(s.Utilization) || math.IsInf(s.Utilization, 0) || s.Utilization < 0 {
		return errors.NewInvalidSampleError("utilization must be a non-negative finite number").
			WithClusterID(s.ClusterID).
			WithSample(s.Nodes, s.Utilization)
	}
	return nil
}

// Age returns how old the sample is at now.
func (s LoadSample) Age(now time.Time) time.Duration {
	return now.Sub(s.ObservedAt)
}
