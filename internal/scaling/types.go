package scaling

// Action represents the kind of decision the engine produced.
type Action string

const (
	// ActionHold indicates no change to the node count.
	ActionHold Action = "hold"

	// ActionResize indicates the cluster should be resized to Decision.Target.
	ActionResize Action = "resize"

	// ActionError indicates the inputs were malformed and nothing can be decided.
	ActionError Action = "error"
)

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}

// Direction is the direction of a resize.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
	DirectionNone Direction = "NONE"
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	return string(d)
}

// Outcome is the recorded result of one evaluation.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
	OutcomeSkipped Outcome = "SKIPPED"
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	return string(o)
}

// Hold and failure reasons recorded on decisions and events.
const (
	ReasonDisabled          = "cluster disabled"
	ReasonSampleUnavailable = "sample unavailable"
	ReasonSampleStale       = "sample stale"
	ReasonWithinTarget      = "within target"
	ReasonCooldownActive    = "cooldown active"
	ReasonBelowMinNodes     = "below min nodes"
	ReasonAboveMaxNodes     = "above max nodes"
	ReasonDryRun            = "dry run"
	ReasonFailureBackoff    = "failure backoff"
	ReasonInFlight          = "evaluation in flight"
)

// Decision is the result of evaluating one cluster's sample against its
// configuration and scaling history.
type Decision struct {
	// Action is the decided action.
	Action Action

	// Current is the observed node count, zero when no sample was available.
	Current int

	// Target is the node count to resize to. Equal to Current unless
	// Action is ActionResize.
	Target int

	// Direction is UP or DOWN for resizes and NONE otherwise.
	Direction Direction

	// Reason is a human-readable explanation of the decision.
	Reason string

	// BoundViolation is set when the resize corrects a node count outside
	// [MinNodes, MaxNodes]. Such resizes bypass cooldown and failure backoff.
	BoundViolation bool

	// Err is set when Action is ActionError.
	Err error
}

// IsResize reports whether the decision calls for a resize.
func (d Decision) IsResize() bool {
	return d.Action == ActionResize
}
