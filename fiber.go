package loom

import "sync/atomic"

// FiberState is the lifecycle state of a Fiber: RUNNABLE, RUNNING,
// SUSPENDED, TERMINATED.
type FiberState int32

const (
	// FiberRunnable means the fiber has never been resumed.
	FiberRunnable FiberState = iota
	// FiberRunning means the fiber is the one currently executing.
	FiberRunning
	// FiberSuspended means the fiber yielded and is waiting to be resumed.
	FiberSuspended
	// FiberTerminated means the fiber's entry function has returned (or
	// panicked) and its underlying goroutine has exited.
	FiberTerminated
)

func (s FiberState) String() string {
	switch s {
	case FiberRunnable:
		return "runnable"
	case FiberRunning:
		return "running"
	case FiberSuspended:
		return "suspended"
	case FiberTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Default stack sizes, kept for API fidelity even though a Fiber here is
// backed by a goroutine rather than a raw OS stack — see DESIGN.md for why
// this deviation is unavoidable in idiomatic Go.
const (
	DefaultStackSize64 = 16 << 20 // 16 MiB
	DefaultStackSize32 = 512 << 10
)

// fiberSignal is what a fiber's goroutine sends back to whichever caller is
// blocked in resume(): either "I suspended" or "I terminated", optionally
// carrying a recovered panic value so it can be re-raised on the resumer's
// goroutine (a panic can't otherwise cross a goroutine boundary, so this is
// how an uncaught fiber panic surfaces at the caller of Scheduler.Run
// instead of crashing the whole process silently).
type fiberSignal struct {
	terminated bool
	panicVal   interface{}
}

// Fiber is a cooperatively scheduled unit of execution with private state,
// implemented as a goroutine paired with a pair of unbuffered handoff
// channels. This is the idiomatic Go rendering of a stackful coroutine: the
// fiber/coroutine contract is adapted to the host language's facilities as
// long as `await` stays callable at any nesting depth without special
// syntax, which holds here because yield is just a channel operation any
// function on the fiber's goroutine may call.
type Fiber struct {
	id        uint64
	stackSize int

	entry func()

	state   atomic.Int32
	started bool

	// resumeCh carries the resume reason from whoever calls resume() to the
	// blocked fiber goroutine's pending yield().
	resumeCh chan ResumeReason
	// yieldCh carries suspension/termination notifications the other way.
	yieldCh chan fiberSignal

	// reason is fiber-scoped: set immediately before the fiber goroutine is
	// unblocked, read only by code running on that goroutine.
	reason ResumeReason
}

var fiberIDSeq atomic.Uint64

// NewFiber allocates a fiber bound to entry, with the given nominal stack
// size (see DefaultStackSize64/32). The entry function does not begin
// running until the first call to Resume.
func NewFiber(entry func(), stackSize int) *Fiber {
	f := &Fiber{
		id:        fiberIDSeq.Add(1),
		stackSize: stackSize,
		entry:     entry,
		resumeCh:  make(chan ResumeReason),
		yieldCh:   make(chan fiberSignal),
	}
	f.state.Store(int32(FiberRunnable))
	return f
}

// ID returns a process-unique, monotonically increasing fiber identifier.
// Ambient diagnostic convenience, not part of the core awaitable contract.
func (f *Fiber) ID() uint64 { return f.id }

// State reports the fiber's current lifecycle state.
func (f *Fiber) State() FiberState { return FiberState(f.state.Load()) }

// Reason returns the resume reason the fiber was most recently woken with.
// Reading this after the fiber has yielded again is undefined: the resume
// reason is fiber-scoped, and callers are expected to read it exactly once
// per resumption, from inside the awaitable that's about to act on it.
func (f *Fiber) Reason() ResumeReason { return f.reason }

// Resume transfers control into the fiber, starting its entry function on
// first call and unblocking its pending yield() on every subsequent call.
// It returns once the fiber has yielded or terminated. reason is stashed on
// the fiber before it resumes and is what Reason() will report.
func (f *Fiber) Resume(reason ResumeReason) error {
	if f.State() == FiberTerminated {
		return ErrFiberTerminated
	}
	f.state.Store(int32(FiberRunning))

	if !f.started {
		f.started = true
		f.reason = reason
		go f.run()
	} else {
		f.resumeCh <- reason
	}

	sig := <-f.yieldCh
	if sig.terminated {
		f.state.Store(int32(FiberTerminated))
		if sig.panicVal != nil {
			panic(sig.panicVal)
		}
		return nil
	}
	f.state.Store(int32(FiberSuspended))
	return nil
}

// run is the body of the fiber's goroutine. It recovers a panic from entry
// so it can be relayed to, and re-raised on, whichever goroutine called
// Resume — an uncaught fiber panic propagates out of Run, it is never
// swallowed by the runtime.
func (f *Fiber) run() {
	defer func() {
		if r := recover(); r != nil {
			f.yieldCh <- fiberSignal{terminated: true, panicVal: r}
			return
		}
		f.yieldCh <- fiberSignal{terminated: true}
	}()
	f.entry()
}

// Yield suspends the fiber, returning control to whichever goroutine is
// blocked in Resume. It must be called from inside the fiber's own entry
// call graph. Every call to Yield must be immediately preceded by a
// registration (ready-queue enqueue or reactor registration) that
// guarantees this fiber will eventually be resumed again — Yield itself
// does not guarantee re-resumption.
func (f *Fiber) Yield() ResumeReason {
	f.yieldCh <- fiberSignal{}
	reason := <-f.resumeCh
	f.reason = reason
	return reason
}

// Reset rebinds a terminated fiber's stack (here: reinitializes its handoff
// channels and entry) to a fresh entry function, so the caller can recycle
// it instead of allocating a new Fiber. Mirrors gaio's aiocbPool.Get/Put
// reuse discipline, generalized from a struct pool to a fiber pool.
func (f *Fiber) Reset(entry func()) error {
	if f.State() != FiberTerminated {
		return ErrFiberNotTerminated
	}
	f.entry = entry
	f.started = false
	f.reason = ResumeNormal
	f.resumeCh = make(chan ResumeReason)
	f.yieldCh = make(chan fiberSignal)
	f.state.Store(int32(FiberRunnable))
	return nil
}
