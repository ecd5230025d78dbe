package progress

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition matches every InvalidTransitionError via errors.Is.
var ErrInvalidTransition = errors.New("invalid progress transition")

// InvalidTransitionError reports an operation attempted outside its legal
// source state.
type InvalidTransitionError struct {
	// Op is the attempted operation, e.g. "complete".
	Op string
	// Required describes the state(s) the operation needs.
	Required string
	// Actual is the state the tracker was in.
	Actual State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s progress: requires state %s, is %s", e.Op, e.Required, e.Actual)
}

// Is makes errors.Is(err, ErrInvalidTransition) succeed.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
