// Package system provides the clocks that stamp progress events and time
// worker jobs.
package system

import (
	"sync"
	"time"
)

// Clock reads the wall clock in UTC.
type Clock struct{}

// New returns the wall clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Stepper is a deterministic clock for replays and tests: every Now call
// returns the previous reading advanced by a fixed step.
type Stepper struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewStepper returns a Stepper whose first reading is start. A non-positive
// step freezes the clock at start.
func NewStepper(start time.Time, step time.Duration) *Stepper {
	if step < 0 {
		step = 0
	}
	return &Stepper{next: start.UTC(), step: step}
}

// Now returns the current reading and advances the clock.
func (s *Stepper) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.next
	s.next = s.next.Add(s.step)
	return t
}
