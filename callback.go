package loom

// Void is the unit-value return type for futures with no meaningful result
// (Timeout, DoAsyncVoid, CallbackVoidFuture, ConnectFuture).
type Void = struct{}

// CallbackFuture is the polling-style future parameterised by T, described
// in spec.md §4.6: cb returns (value, false) while not ready and
// (value, true) exactly once, at which point the value is latched so
// repeated polling (which can't happen here, since Await returns
// immediately on success, but matters if the same future is awaited more
// than once) keeps returning the same result.
type CallbackFuture[T any] struct {
	cb    func() (T, bool)
	done  bool
	value T
}

// NewCallbackFuture wraps cb in a Future.
func NewCallbackFuture[T any](cb func() (T, bool)) *CallbackFuture[T] {
	return &CallbackFuture[T]{cb: cb}
}

func (c *CallbackFuture[T]) Await(s *Scheduler) (T, error) {
	for {
		if c.done {
			return c.value, nil
		}
		if v, ok := c.cb(); ok {
			c.done, c.value = true, v
			return v, nil
		}
		s.YieldNow()
	}
}

// CallbackVoidFuture is CallbackFuture's void-returning sibling: cb reports
// readiness directly as a bool.
type CallbackVoidFuture struct {
	cb   func() bool
	done bool
}

// NewCallbackVoidFuture wraps cb in a Future[Void].
func NewCallbackVoidFuture(cb func() bool) *CallbackVoidFuture {
	return &CallbackVoidFuture{cb: cb}
}

func (c *CallbackVoidFuture) Await(s *Scheduler) (Void, error) {
	for {
		if c.done {
			return Void{}, nil
		}
		if c.cb() {
			c.done = true
			return Void{}, nil
		}
		s.YieldNow()
	}
}

// DoAsync wraps a plain function as a future whose first poll simply runs
// fn and completes with its result. Because fn runs inline on the fiber
// that awaits it — not at construction time, not on some other goroutine —
// the value this returns is deferral, not parallelism: fn executes exactly
// when the scheduler reaches this fiber, per spec.md §4.6.
//
// spec.md §9 flags a deferred-argument pitfall in the source's lazy-thunk
// equivalent: a captured expression evaluated at first-poll time can
// observe bindings that changed between construction and that poll. fn is
// an ordinary Go closure, so it is up to the caller to capture what it
// needs by value (copy into a local before calling DoAsync) if that
// matters — this doc comment is the documented choice spec.md's open
// question asks for.
func DoAsync[T any](fn func() T) Future[T] {
	return NewCallbackFuture(func() (T, bool) {
		return fn(), true
	})
}

// DoAsyncVoid is DoAsync for side-effecting functions with no return value.
func DoAsyncVoid(fn func()) Future[Void] {
	return NewCallbackVoidFuture(func() bool {
		fn()
		return true
	})
}
