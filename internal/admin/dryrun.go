package admin

import (
	"context"
	"sync"

	"github.com/Iron-Ham/clusterscaler/internal/logging"
)

// ResizeRequest is a resize DryRun received.
type ResizeRequest struct {
	ClusterID   string
	TargetNodes int
}

// DryRun logs resize requests instead of applying them.
type DryRun struct {
	logger *logging.Logger

	mu       sync.Mutex
	requests []ResizeRequest
}

// NewDryRun creates a dry-run client. A nil logger discards output.
func NewDryRun(logger *logging.Logger) *DryRun {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &DryRun{logger: logger}
}

// Resize records the request and returns nil.
func (d *DryRun) Resize(ctx context.Context, clusterID string, targetNodes int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	d.requests = append(d.requests, ResizeRequest{ClusterID: clusterID, TargetNodes: targetNodes})
	d.mu.Unlock()

	d.logger.WithCluster(clusterID).Info("dry run resize", "target_nodes", targetNodes)
	return nil
}

// Requests returns a copy of the recorded requests in arrival order.
func (d *DryRun) Requests() []ResizeRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ResizeRequest, len(d.requests))
	copy(out, d.requests)
	return out
}
