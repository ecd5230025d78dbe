package progress

// State is the lifecycle position of a Tracker.
type State int

// Supported tracker states.
const (
	StateNone State = iota
	StateInProgress
	StateCompleted
	StateCancelled
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Ended reports whether s is a terminal state of a run.
func (s State) Ended() bool {
	return s == StateCompleted || s == StateCancelled
}

// Kind identifies a lifecycle notification.
type Kind int

// Lifecycle notifications fired by a Tracker.
const (
	KindStarted Kind = iota
	KindEvaluated
	KindCompleted
	KindCancelled
	KindReset

	kindCount
)

// String returns the notification name.
func (k Kind) String() string {
	switch k {
	case KindStarted:
		return "started"
	case KindEvaluated:
		return "evaluated"
	case KindCompleted:
		return "completed"
	case KindCancelled:
		return "cancelled"
	case KindReset:
		return "reset"
	default:
		return "unknown"
	}
}

func (k Kind) valid() bool {
	return k >= KindStarted && k < kindCount
}
