//go:build !linux

package loom

// newPollerBackend has no implementation outside Linux: spec.md §1 scopes
// the reactor "against a Linux-style readiness multiplexer; portability is
// a design-notes concern, not a contract."
func newPollerBackend() (poller, error) {
	return nil, ErrUnsupportedPlatform
}
