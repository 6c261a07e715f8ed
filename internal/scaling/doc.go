// Package scaling holds the autoscaler's data model and its decision engine.
//
// The engine is target-utilization scaling with anti-thrashing guards: the
// desired node count is proportional to observed utilization over the
// configured target, rounded away from under-provisioning on the way up and
// away from over-provisioning on the way down, clamped to the cluster's
// bounds, and gated by independent UP and DOWN cooldowns.
//
// The core types are:
//
//   - [ClusterConfig]: operator-owned bounds, target, cooldowns
//   - [LoadSample]: a fresh observation of node count and utilization
//   - [ScalingEvent]: the immutable audit record of one evaluation
//   - [History]: the last event plus the last successful resize per direction
//   - [Policy]: evaluates the above into a [Decision]
//
// # Usage
//
//	policy := scaling.NewPolicy(scaling.WithMaxSampleAge(2 * time.Minute))
//	decision := policy.Evaluate(cfg, sample, history, time.Now())
//	if decision.IsResize() {
//	    err = admin.Resize(ctx, cfg.ID, decision.Target)
//	}
//
// # Thread Safety
//
// All types in this package are values or immutable after construction and
// safe for concurrent use.
package scaling
