package admin

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/Iron-Ham/clusterscaler/internal/errors"
)

// RateLimited limits the rate of Resize calls to the wrapped client.
type RateLimited struct {
	next    Client
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a token bucket of rps and burst. A
// non-positive rps disables limiting.
func NewRateLimited(next Client, rps float64, burst int) *RateLimited {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// Resize waits for a token, then forwards the call. A context that ends
// while waiting yields a retryable AdminApplyError.
func (r *RateLimited) Resize(ctx context.Context, clusterID string, targetNodes int) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return errors.NewAdminApplyError("rate limit wait", err).
			WithClusterID(clusterID).
			WithTargetNodes(targetNodes)
	}
	return r.next.Resize(ctx, clusterID, targetNodes)
}
