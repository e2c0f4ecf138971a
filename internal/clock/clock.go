package clock

import (
	"sync/atomic"
	"time"
)

// Clock allows injecting time into services.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem returns a clock backed by time.Now in UTC.
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

type fixedClock struct {
	now time.Time
}

// NewFixed returns a clock that always returns the same instant.
func NewFixed(t time.Time) Clock {
	return fixedClock{now: t.UTC()}
}

func (f fixedClock) Now() time.Time {
	return f.now
}

type steppingClock struct {
	start time.Time
	step  time.Duration
	calls atomic.Int64
}

// NewStepping returns a clock that advances by step on every call, starting at start.
// Safe for concurrent use.
func NewStepping(start time.Time, step time.Duration) Clock {
	return &steppingClock{start: start.UTC(), step: step}
}

func (s *steppingClock) Now() time.Time {
	n := s.calls.Add(1) - 1
	return s.start.Add(time.Duration(n) * s.step)
}
