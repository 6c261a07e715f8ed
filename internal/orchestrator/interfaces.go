// Package orchestrator runs scaling evaluations across all managed clusters.
//
// An Orchestrator executes one cycle at a time: it lists the enabled
// clusters, evaluates each on a bounded worker pool and folds the results
// into a CycleReport. A Scheduler drives cycles on a fixed interval and
// never lets two cycles overlap.
//
// Collaborators are consumed only through the interfaces in this file, so
// any registry, load source, history store or admin client can be plugged
// in.
package orchestrator

import (
	"context"
	"time"

	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

// Registry lists the clusters under management.
type Registry interface {
	// ListEnabledClusters returns enabled clusters ordered by ID. A
	// transient outage returns a RegistryUnavailableError.
	ListEnabledClusters(ctx context.Context) ([]scaling.ClusterConfig, error)
}

// LoadSource supplies fresh load samples.
type LoadSource interface {
	// FetchSample returns the cluster's current load averaged over window.
	// An error wrapping ErrSampleUnavailable means there was no data.
	FetchSample(ctx context.Context, clusterID string, window time.Duration) (*scaling.LoadSample, error)
}

// HistoryStore persists the audit trail of scaling events.
type HistoryStore interface {
	// LastEvent returns the most recent event of any outcome, or nil.
	LastEvent(ctx context.Context, clusterID string) (*scaling.ScalingEvent, error)

	// LastSuccess returns the most recent successful resize in the given
	// direction, or nil.
	LastSuccess(ctx context.Context, clusterID string, dir scaling.Direction) (*scaling.ScalingEvent, error)

	// Append records an event. Appending the same event ID twice must not
	// create a second record.
	Append(ctx context.Context, ev scaling.ScalingEvent) error

	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, clusterID string, limit int) ([]scaling.ScalingEvent, error)
}

// AdminClient applies resizes.
type AdminClient interface {
	// Resize requests targetNodes for the cluster. On error the node count
	// is assumed unchanged.
	Resize(ctx context.Context, clusterID string, targetNodes int) error
}
