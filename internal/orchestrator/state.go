package orchestrator

// State is a step in the evaluation of one cluster.
type State int

const (
	StatePending State = iota
	StateFetchingLoad
	StateFetchingHistory
	StateDeciding
	StateApplying
	StateRecording
	StateDone
)

// String returns a human-readable string for the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateFetchingLoad:
		return "FETCHING_LOAD"
	case StateFetchingHistory:
		return "FETCHING_HISTORY"
	case StateDeciding:
		return "DECIDING"
	case StateApplying:
		return "APPLYING"
	case StateRecording:
		return "RECORDING"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}
