package loom

import (
	"errors"
	"fmt"
)

// Standard errors returned by the scheduler and reactor.
//
// These mirror the sentinel style of gaio's watcher.go (ErrWatcherClosed,
// ErrDeadline, ErrEmptyBuffer, ...): plain package-level errors.New values,
// compared with errors.Is by callers.
var (
	// ErrSchedulerClosed is returned by Spawn/SpawnFunc once Run has
	// returned, whether it stopped on RequestShutdown or ran out of work.
	ErrSchedulerClosed = errors.New("loom: scheduler closed")

	// ErrFiberTerminated is returned by Resume on an already-terminated fiber.
	ErrFiberTerminated = errors.New("loom: fiber already terminated")

	// ErrFiberNotTerminated is returned by Reset on a fiber that hasn't run
	// its entry function to completion yet.
	ErrFiberNotTerminated = errors.New("loom: fiber not terminated")

	// ErrTimeout is raised by a strict-mode Recv/Send future whose
	// deadline elapses before the operation completes.
	ErrTimeout = errors.New("loom: i/o timeout")

	// ErrHangup is raised when a socket future resumes with ResumeIOHup.
	ErrHangup = errors.New("loom: connection hung up")

	// ErrEmptyBuffer mirrors gaio's guard against zero-length write buffers.
	ErrEmptyBuffer = errors.New("loom: empty buffer")

	// ErrAlreadyRegistered is the programmer-error assertion for registering
	// a descriptor that already has a waiter (spec.md invariant: single
	// waiter per descriptor).
	ErrAlreadyRegistered = errors.New("loom: descriptor already registered")

	// ErrDescriptorTagBit is returned when a descriptor's value collides
	// with the event payload's reserved tag bit.
	ErrDescriptorTagBit = errors.New("loom: descriptor exceeds tag-bit bound")

	// ErrUnsupportedPlatform is returned by NewScheduler on platforms without
	// an epoll/timerfd backend.
	ErrUnsupportedPlatform = errors.New("loom: platform has no reactor backend")

	// ErrReactorClosed names the closed-reactor condition. No operation in
	// this package returns it: once Run has returned, Spawn reports
	// ErrSchedulerClosed and reactor calls fail with the poller's own error.
	ErrReactorClosed = errors.New("loom: reactor closed")
)

// OpError is the typed failure surfaced by socket and file futures when an
// underlying syscall fails outside of the would-block/timeout/hangup paths.
// It carries the originating errno so callers can still errors.Is(err,
// syscall.ECONNRESET) and similar, the way gaio threads raw syscall errors
// through OpResult.Error.
type OpError struct {
	Op  string // "accept", "recv", "send", "connect", "shutdown", "wait", "open", "read", "write", "fionread", "setnonblock"
	Err error  // underlying syscall error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("loom: %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// unknownDescriptorError is the programmer-error panic raised when the
// reactor's dispatch loop decodes a payload naming a descriptor that isn't
// in the waiter table — spec.md §4.2: "abort with a message that includes
// the descriptor value."
type unknownDescriptorError struct{ fd int }

func (e unknownDescriptorError) Error() string {
	return fmt.Sprintf("loom: unknown descriptor %d at dispatch", e.fd)
}

func unknownDescriptorPanic(fd int) error { return unknownDescriptorError{fd} }
