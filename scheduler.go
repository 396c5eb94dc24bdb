package loom

import (
	"container/list"
	"sync/atomic"
)

// task pairs a fiber with the reason it is about to be resumed. Grounded on
// gaio's aiocb, which is likewise a small value carried through a
// container/list queue until the loop is ready to act on it.
type task struct {
	fiber  *Fiber
	reason ResumeReason
}

// readyQueue is the scheduler's FIFO of runnable tasks, backed by
// container/list exactly as gaio's fdDesc uses container/list for its
// reader/writer wait lists — reusing the same queue idiom instead of
// introducing a second one.
type readyQueue struct {
	l *list.List
}

func newReadyQueue() *readyQueue { return &readyQueue{l: list.New()} }

func (q *readyQueue) pushBack(t task)  { q.l.PushBack(t) }
func (q *readyQueue) empty() bool      { return q.l.Len() == 0 }
func (q *readyQueue) len() int         { return q.l.Len() }
func (q *readyQueue) popFront() (task, bool) {
	e := q.l.Front()
	if e == nil {
		return task{}, false
	}
	q.l.Remove(e)
	return e.Value.(task), true
}

// Stats is a point-in-time snapshot of scheduler load, exposed for
// diagnostics — the ambient observability counterpart to gaio's batched
// OpResult delivery, not a metrics/logging dependency.
type Stats struct {
	ReadyQueueDepth int
	WaiterCount     int
	RecycleDepth    int
}

// Scheduler owns the ready queue, the recycle list of terminated fibers,
// and the reactor used to poll for I/O readiness. It is strictly
// single-threaded: Run, Spawn, enqueue and every reactor operation must all
// be called from the loop's single thread of control (the "loop thread"):
// the goroutine running Run, or a fiber it has resumed and is blocked on.
type Scheduler struct {
	ready   *readyQueue
	recycle []*Fiber

	reactor *Reactor

	current *Fiber // the fiber presently resumed by the loop, or nil

	shutdown atomic.Bool
	closed   atomic.Bool

	defaultStackSize int
}

// Option configures a Scheduler at construction time, the same
// functional-options shape ygrebnov-workers' Option type uses, generalized
// from gaio's single-argument NewWatcherSize constructor.
type Option func(*Scheduler)

// WithStackSize overrides the nominal stack size recorded for fibers spawned
// via SpawnFunc (see fiber.go for why this is advisory rather than a real
// allocation).
func WithStackSize(n int) Option {
	return func(s *Scheduler) { s.defaultStackSize = n }
}

// NewScheduler creates a Scheduler with its own Reactor. The Reactor is
// started (its poller opened) immediately; it is torn down when Run returns.
func NewScheduler(opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		ready:            newReadyQueue(),
		defaultStackSize: DefaultStackSize64,
	}
	for _, opt := range opts {
		opt(s)
	}
	r, err := newReactor(s)
	if err != nil {
		return nil, err
	}
	s.reactor = r
	return s, nil
}

// Reactor returns the scheduler's I/O reactor, for code that needs to call
// RegisterIO/RegisterTimeout directly (the socket/file futures in this
// package do; most user code never touches the reactor itself).
func (s *Scheduler) Reactor() *Reactor { return s.reactor }

// acquireFiber pops a terminated fiber off the recycle list and rebinds it
// to entry, or allocates a fresh one if the recycle list is empty — gaio's
// aiocbPool.Get/Put discipline applied to whole fibers instead of aiocb
// structs.
func (s *Scheduler) acquireFiber(entry func()) *Fiber {
	if n := len(s.recycle); n > 0 {
		f := s.recycle[n-1]
		s.recycle = s.recycle[:n-1]
		_ = f.Reset(entry) // f is guaranteed terminated; Reset cannot fail
		return f
	}
	return NewFiber(entry, s.defaultStackSize)
}

// Spawn enqueues a ready-to-run fiber built from entry, with resume reason
// NORMAL. It may be called before Run, or from inside a running fiber (in
// which case the new fiber lands after every task already in the queue).
func (s *Scheduler) Spawn(entry func()) (*Fiber, error) {
	if s.closed.Load() {
		return nil, ErrSchedulerClosed
	}
	f := s.acquireFiber(entry)
	s.ready.pushBack(task{fiber: f, reason: ResumeNormal})
	return f, nil
}

// SpawnFunc is an alias for Spawn kept for readers coming from the
// gaio-style "just hand me a plain function" call sites (gaio's Read/Write
// likewise accept plain values rather than requiring callers to pre-build a
// request object).
func (s *Scheduler) SpawnFunc(entry func()) (*Fiber, error) { return s.Spawn(entry) }

// enqueue appends an already-constructed fiber/reason pair to the ready
// queue. It is how the reactor hands woken fibers back to the scheduler, and
// how yieldNow-style helpers re-enqueue the current fiber.
func (s *Scheduler) enqueue(f *Fiber, reason ResumeReason) {
	s.ready.pushBack(task{fiber: f, reason: reason})
}

// Current returns the fiber presently being resumed by the loop, or nil if
// called outside of a fiber's call graph (e.g. before Run starts, or from
// another goroutine entirely — which is itself a contract violation, since
// nothing here is thread-safe).
func (s *Scheduler) Current() *Fiber { return s.current }

// CurrentResumeReason returns the reason the currently running fiber was
// most recently resumed with.
func (s *Scheduler) CurrentResumeReason() ResumeReason {
	if s.current == nil {
		return ResumeNormal
	}
	return s.current.Reason()
}

// YieldNow re-enqueues the current fiber at the tail of the ready queue and
// suspends it. A fiber resumed this way is guaranteed to run again only
// after every fiber already queued, and after one round of reactor polling —
// the ordering guarantee every self-yielding fiber can rely on.
func (s *Scheduler) YieldNow() ResumeReason {
	cur := s.current
	s.enqueue(cur, ResumeNormal)
	return cur.Yield()
}

// RequestShutdown sets the shutdown flag. The loop exits after the fiber
// presently running (if any) next yields or terminates, without draining
// whatever remains in the ready queue. Safe to call from inside a fiber;
// the atomic store also makes it safe to call from a signal handler, per
// spec.md §5. A request made while Run is blocked in the reactor's poll
// takes effect only when that poll returns (some registered descriptor or
// timer fires); nothing wakes the poll early. No fiber is resumed after
// that point.
func (s *Scheduler) RequestShutdown() { s.shutdown.Store(true) }

// active implements the liveness predicate from spec.md's data model: the
// runtime is active iff the ready queue is non-empty or the waiter table is
// non-empty.
func (s *Scheduler) active() bool {
	return !s.ready.empty() || s.reactor.waiterCount() > 0
}

// Stats returns a snapshot of current scheduler load.
func (s *Scheduler) Stats() Stats {
	return Stats{
		ReadyQueueDepth: s.ready.len(),
		WaiterCount:     s.reactor.waiterCount(),
		RecycleDepth:    len(s.recycle),
	}
}

// Run drives the main loop until the runtime is no longer active or
// shutdown has been requested. It implements the algorithm from spec.md
// §4.3, plus a shutdown check at the top of each iteration so that a
// request made while the loop was polling stops it before another fiber
// resumes:
//
//	while active:
//	  if shutdown-requested: break
//	  if ready-queue nonempty: pop, resume, recycle if terminated
//	  if shutdown-requested: break
//	  poll_timeout := infinite if (ready empty && waiters>0) else 0
//	  reactor.poll(poll_timeout)
func (s *Scheduler) Run() error {
	defer func() {
		s.closed.Store(true)
		s.reactor.close()
	}()

	for s.active() {
		if s.shutdown.Load() {
			break
		}
		if t, ok := s.ready.popFront(); ok {
			if t.fiber.State() != FiberTerminated {
				s.current = t.fiber
				err := t.fiber.Resume(t.reason)
				s.current = nil
				if err != nil {
					return err
				}
			}
			if t.fiber.State() == FiberTerminated {
				s.recycle = append(s.recycle, t.fiber)
			}
		}

		if s.shutdown.Load() {
			break
		}

		timeoutMS := 0
		if s.ready.empty() && s.reactor.waiterCount() > 0 {
			timeoutMS = -1 // infinite
		}
		if err := s.reactor.poll(timeoutMS); err != nil {
			return err
		}
	}
	return nil
}
