package loom

import "time"

// Timeout is the direct-style future from spec.md §4.5: it computes its
// absolute monotonic deadline at construction time, not at first Await —
// "a future whose construction is decoupled from its first await still
// measures from construction." Awaiting it registers a timer descriptor for
// that deadline and yields once; whatever resume reason comes back, the
// wait is over, since a pure timeout has no alternate readiness to
// distinguish it from.
type Timeout struct {
	deadline time.Time
}

// NewTimeout constructs a Timeout that elapses duration d from now.
func NewTimeout(d time.Duration) *Timeout {
	return &Timeout{deadline: time.Now().Add(d)}
}

// NewTimeoutAt constructs a Timeout for an explicit absolute deadline.
func NewTimeoutAt(deadline time.Time) *Timeout {
	return &Timeout{deadline: deadline}
}

func (t *Timeout) Await(s *Scheduler) (Void, error) {
	if err := s.Reactor().RegisterTimeout(t.deadline); err != nil {
		return Void{}, err
	}
	s.Current().Yield()
	return Void{}, nil
}
