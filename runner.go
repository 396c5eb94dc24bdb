package loom

import (
	"log"
	"os"
	"os/signal"
	"syscall"
)

// Main is the opt-in process-boundary helper spec.md §6 describes as "an
// external convenience, not part of the runtime contract": it builds a
// Scheduler, spawns entry as its first fiber, ignores SIGPIPE (the
// standard posture for any process that may write to a socket the peer has
// already closed), wires SIGINT/SIGTERM to RequestShutdown, drives the loop
// to completion, and returns entry's status code.
func Main(entry func(s *Scheduler) int, opts ...Option) int {
	signal.Ignore(syscall.SIGPIPE)

	s, err := NewScheduler(opts...)
	if err != nil {
		log.Printf("loom: failed to start scheduler: %v", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			s.RequestShutdown()
		}
	}()

	status := 0
	if _, err := s.Spawn(func() {
		status = entry(s)
	}); err != nil {
		log.Printf("loom: failed to spawn entry fiber: %v", err)
		return 1
	}

	if err := s.Run(); err != nil {
		log.Printf("loom: fatal error: %v", err)
		return 1
	}
	return status
}
