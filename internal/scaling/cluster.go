package scaling

import (
	"fmt"
	"math"
	"time"

	"github.com/Iron-Ham/clusterscaler/internal/errors"
)

// MaxNodesLimit is the largest node count a cluster may be configured for.
// Admin APIs take node counts as 32-bit integers.
const MaxNodesLimit = math.MaxInt32

// ClusterConfig is the operator-owned configuration of one managed cluster.
// The decision engine treats it as read-only.
type ClusterConfig struct {
	ID                string        `json:"id" yaml:"id"`
	MinNodes          int           `json:"min_nodes" yaml:"min_nodes"`
	MaxNodes          int           `json:"max_nodes" yaml:"max_nodes"`
	TargetUtilization float64       `json:"target_utilization" yaml:"target_utilization"`
	ScaleUpCooldown   time.Duration `json:"scale_up_cooldown" yaml:"scale_up_cooldown"`
	ScaleDownCooldown time.Duration `json:"scale_down_cooldown" yaml:"scale_down_cooldown"`
	Enabled           bool          `json:"enabled" yaml:"enabled"`
}

// Validate checks the configuration invariants. The returned error is a
// *errors.ValidationError wrapping errors.ErrInvalidConfig.
func (c ClusterConfig) Validate() error {
	invalid := func(field string, value any, msg string) error {
		return errors.NewValidationError(msg).
			WithField(field).
			WithValue(value).
			WithCause(errors.ErrInvalidConfig)
	}

	if c.ID == "" {
		return invalid("id", c.ID, "cluster id is required")
	}
	if c.MinNodes < 1 {
		return invalid("min_nodes", c.MinNodes, fmt.Sprintf("cluster %s: min_nodes must be at least 1", c.ID))
	}
	if c.MaxNodes < c.MinNodes {
		return invalid("max_nodes", c.MaxNodes, fmt.Sprintf("cluster %s: max_nodes must be >= min_nodes (%d)", c.ID, c.MinNodes))
	}
	if c.MaxNodes > MaxNodesLimit {
		return invalid("max_nodes", c.MaxNodes, fmt.Sprintf("cluster %s: max_nodes must be <= %d", c.ID, MaxNodesLimit))
	}
	if math.IsNaN(c.TargetUtilization) || c.TargetUtilization <= 0 || c.TargetUtilization >= 1 {
		return invalid("target_utilization", c.TargetUtilization, fmt.Sprintf("cluster %s: target_utilization must be in (0, 1)", c.ID))
	}
	if c.ScaleUpCooldown < 0 {
		return invalid("scale_up_cooldown", c.ScaleUpCooldown, fmt.Sprintf("cluster %s: scale_up_cooldown must be non-negative", c.ID))
	}
	if c.ScaleDownCooldown < 0 {
		return invalid("scale_down_cooldown", c.ScaleDownCooldown, fmt.Sprintf("cluster %s: scale_down_cooldown must be non-negative", c.ID))
	}
	return nil
}

// Cooldown returns the cooldown that gates resizes in direction d.
func (c ClusterConfig) Cooldown(d Direction) time.Duration {
	switch d {
	case DirectionUp:
		return c.ScaleUpCooldown
	case DirectionDown:
		return c.ScaleDownCooldown
	default:
		return 0
	}
}

// Defaults holds the values registry backends apply to cluster fields
// left unset by the operator.
type Defaults struct {
	MinNodes          int           `mapstructure:"min_nodes"`
	MaxNodes          int           `mapstructure:"max_nodes"`
	TargetUtilization float64       `mapstructure:"target_utilization"`
	ScaleUpCooldown   time.Duration `mapstructure:"scale_up_cooldown"`
	ScaleDownCooldown time.Duration `mapstructure:"scale_down_cooldown"`
}

// ApplyTo fills zero-valued fields of c. Cooldowns are only filled when
// unset is true for them, since zero is a legal cooldown.
func (d Defaults) ApplyTo(c ClusterConfig, upSet, downSet bool) ClusterConfig {
	if c.MinNodes == 0 {
		c.MinNodes = d.MinNodes
	}
	if c.MaxNodes == 0 {
		c.MaxNodes = d.MaxNodes
	}
	if c.TargetUtilization == 0 {
		c.TargetUtilization = d.TargetUtilization
	}
	if !upSet {
		c.ScaleUpCooldown = d.ScaleUpCooldown
	}
	if !downSet {
		c.ScaleDownCooldown = d.ScaleDownCooldown
	}
	return c
}
