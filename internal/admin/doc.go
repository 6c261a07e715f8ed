// Package admin applies resize decisions to managed clusters.
//
// The EKS client maps a cluster ID of the form "<cluster>/<nodegroup>" onto
// an EKS managed node group and sets its desired size, widening the group's
// min/max when the target lies outside them. DryRun logs and records
// requests without touching any cluster. RateLimited wraps any Client with
// a shared token bucket so a cycle that resizes many clusters does not
// exceed the provider's API limits.
//
// All failures are returned as *errors.AdminApplyError; the orchestrator
// assumes the node count is unchanged when Resize fails.
package admin

import "context"

// Client resizes clusters.
type Client interface {
	Resize(ctx context.Context, clusterID string, targetNodes int) error
}
