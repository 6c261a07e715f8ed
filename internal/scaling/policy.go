package scaling

import (
	"fmt"
	"math"
	"time"
)

// Default policy values.
const (
	defaultMaxSampleAge = 5 * time.Minute
)

// roundingSlack absorbs floating point noise so that an exact ratio such as
// 10 * 0.8 / 0.5 is not pushed across an integer boundary.
const roundingSlack = 1e-9

// Option configures a Policy.
type Option func(*Policy)

// WithMaxSampleAge sets the age beyond which a sample is treated as
// unavailable. Zero disables the staleness check.
func WithMaxSampleAge(d time.Duration) Option {
	return func(p *Policy) { p.maxSampleAge = d }
}

// Policy evaluates target-utilization scaling decisions. A Policy is
// immutable after construction and safe for concurrent use.
type Policy struct {
	maxSampleAge time.Duration
}

// NewPolicy creates a Policy with the given options.
// Unset options use defaults.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		maxSampleAge: defaultMaxSampleAge,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxSampleAge returns the staleness window.
func (p *Policy) MaxSampleAge() time.Duration {
	return p.maxSampleAge
}

// Evaluate is shorthand for NewPolicy(opts...).Evaluate.
func Evaluate(cfg ClusterConfig, sample *LoadSample, history History, now time.Time, opts ...Option) Decision {
	return NewPolicy(opts...).Evaluate(cfg, sample, history, now)
}

// Evaluate turns a load sample and scaling history into a decision. It does
// no I/O and reads no clock; identical inputs yield identical decisions.
//
// A nil sample means the load source had nothing to offer.
func (p *Policy) Evaluate(cfg ClusterConfig, sample *LoadSample, history History, now time.Time) Decision {
	if err := cfg.Validate(); err != nil {
		return errorDecision(sample, err)
	}
	if !cfg.Enabled {
		return hold(sample, ReasonDisabled)
	}
	if sample == nil {
		return hold(nil, ReasonSampleUnavailable)
	}
	if p.maxSampleAge > 0 && sample.Age(now) > p.maxSampleAge {
		return hold(sample, ReasonSampleStale)
	}
	if err := sample.Validate(); err != nil {
		return errorDecision(sample, err)
	}

	current := sample.Nodes

	// Out-of-bounds clusters are corrected immediately, cooldown or not.
	if current < cfg.MinNodes {
		return Decision{
			Action:         ActionResize,
			Current:        current,
			Target:         cfg.MinNodes,
			Direction:      DirectionUp,
			Reason:         fmt.Sprintf("%s: %d < %d", ReasonBelowMinNodes, current, cfg.MinNodes),
			BoundViolation: true,
		}
	}
	if current > cfg.MaxNodes {
		return Decision{
			Action:         ActionResize,
			Current:        current,
			Target:         cfg.MaxNodes,
			Direction:      DirectionDown,
			Reason:         fmt.Sprintf("%s: %d > %d", ReasonAboveMaxNodes, current, cfg.MaxNodes),
			BoundViolation: true,
		}
	}

	target := desiredNodes(current, sample.Utilization, cfg)
	if target == current {
		return hold(sample, ReasonWithinTarget)
	}

	direction := DirectionDown
	if target > current {
		direction = DirectionUp
	}

	if last := history.LastSuccess(direction); last != nil {
		if now.Sub(last.Timestamp) < cfg.Cooldown(direction) {
			return hold(sample, ReasonCooldownActive)
		}
	}

	return Decision{
		Action:    ActionResize,
		Current:   current,
		Target:    target,
		Direction: direction,
		Reason: fmt.Sprintf("utilization %.3f vs target %.3f: %d -> %d",
			sample.Utilization, cfg.TargetUtilization, current, target),
	}
}

// desiredNodes computes the utilization-proportional node count, rounded
// up when growing and down when shrinking, clamped to the cluster bounds.
func desiredNodes(current int, utilization float64, cfg ClusterConfig) int {
	raw := float64(current) * utilization / cfg.TargetUtilization

	var rounded float64
	switch {
	case raw > float64(current):
		rounded = math.Ceil(raw - roundingSlack)
	case raw < float64(current):
		rounded = math.Floor(raw + roundingSlack)
	default:
		rounded = raw
	}

	// Clamp in float space so extreme utilizations cannot overflow int.
	if rounded < float64(cfg.MinNodes) {
		return cfg.MinNodes
	}
	if rounded > float64(cfg.MaxNodes) {
		return cfg.MaxNodes
	}
	return int(rounded)
}

func hold(sample *LoadSample, reason string) Decision {
	d := Decision{
		Action:    ActionHold,
		Direction: DirectionNone,
		Reason:    reason,
	}
	if sample != nil {
		d.Current = sample.Nodes
		d.Target = sample.Nodes
	}
	return d
}

func errorDecision(sample *LoadSample, err error) Decision {
	d := hold(sample, err.Error())
	d.Action = ActionError
	d.Err = err
	return d
}
