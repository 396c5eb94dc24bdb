package loom

import (
	"io"
	"time"

	"golang.org/x/sys/unix"
)

// Socket wraps a non-blocking file descriptor driven through the reactor.
// Unlike the teacher's watcher, which operates on net.Conn and dup(2)s a
// raw descriptor out of it for polling, loom's Reactor keys its waiter
// table on real descriptors directly (spec.md's data model has no concept
// of net.Conn at all), so the futures here take a Socket wrapping a fd
// from the start rather than unwrapping one from a higher-level type.
type Socket struct {
	fd int
}

// NewSocket wraps an already-open descriptor (from accept4, socket(2), or a
// test harness) and switches it to non-blocking mode, which every future in
// this file requires.
func NewSocket(fd int) (*Socket, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, &OpError{Op: "setnonblock", Err: err}
	}
	return &Socket{fd: fd}, nil
}

// FD returns the underlying descriptor, for callers that need to hand it to
// a raw syscall this package doesn't wrap.
func (c *Socket) FD() int { return c.fd }

// Close releases the descriptor. It does not unregister any outstanding
// reactor waiter — callers must not Close a socket with a future still
// awaiting it, mirroring the single-waiter-per-descriptor invariant.
func (c *Socket) Close() error { return unix.Close(c.fd) }

// Shutdown half-closes c per how (unix.SHUT_RD/SHUT_WR/SHUT_RDWR), useful
// for signalling EOF to a peer while a symmetric Recv is still draining the
// rest of the connection.
func Shutdown(c *Socket, how int) error {
	if err := unix.Shutdown(c.fd, how); err != nil {
		return &OpError{Op: "shutdown", Err: err}
	}
	return nil
}

// AcceptFuture is the accept exemplar from spec.md §4.8: attempt a
// non-blocking accept4, and on EAGAIN register read-interest on the
// listener and retry once the fiber resumes.
type AcceptFuture struct {
	listener *Socket
}

// Accept builds a future that yields the next connection off listener.
func Accept(listener *Socket) *AcceptFuture {
	return &AcceptFuture{listener: listener}
}

func (a *AcceptFuture) Await(s *Scheduler) (*Socket, error) {
	for {
		connFD, _, err := unix.Accept4(a.listener.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch err {
		case nil:
			return &Socket{fd: connFD}, nil
		case unix.EAGAIN:
			if regErr := s.Reactor().RegisterIO(a.listener.fd, InterestRead); regErr != nil {
				return nil, regErr
			}
			switch s.Current().Yield() {
			case ResumeIOError:
				return nil, &OpError{Op: "accept", Err: unix.ECONNABORTED}
			case ResumeIOHup:
				return nil, ErrHangup
			default:
				continue
			}
		default:
			return nil, &OpError{Op: "accept", Err: err}
		}
	}
}

// RecvFuture reads up to len(buf) bytes from sock, per spec.md §4.8.
//
// With strict=true, a timeout that elapses before any further progress
// aborts the read and returns ErrTimeout. With strict=false (lenient), the
// same timeout instead returns whatever was read so far — possibly zero
// bytes — with a nil error, treating the deadline purely as a bound on how
// long to wait rather than as a failure condition. This mirrors, one level
// differently, the teacher's ReadTimeout/ReadFull split (accept a partial
// read vs demand the whole buffer): here the axis is specifically whether
// an elapsed deadline counts as an error.
type RecvFuture struct {
	sock    *Socket
	buf     []byte
	timeout time.Duration
	strict  bool
	n       int
}

// NewRecv builds a Recv future with no timeout: it suspends until at least
// one byte arrives, an error occurs, or the peer hangs up.
func NewRecv(sock *Socket, buf []byte) *RecvFuture {
	return &RecvFuture{sock: sock, buf: buf}
}

// NewRecvTimeout builds a Recv future bounded by timeout. strict selects
// whether an elapsed deadline is reported as ErrTimeout (true) or as a
// successful, possibly-empty, read (false).
func NewRecvTimeout(sock *Socket, buf []byte, timeout time.Duration, strict bool) *RecvFuture {
	return &RecvFuture{sock: sock, buf: buf, timeout: timeout, strict: strict}
}

func (r *RecvFuture) register(s *Scheduler) error {
	if r.timeout > 0 {
		return s.Reactor().RegisterIOTimeout(r.sock.fd, InterestRead, r.timeout)
	}
	return s.Reactor().RegisterIO(r.sock.fd, InterestRead)
}

func (r *RecvFuture) Await(s *Scheduler) (int, error) {
	if len(r.buf) == 0 {
		return 0, ErrEmptyBuffer
	}
	for {
		n, err := unix.Read(r.sock.fd, r.buf[r.n:])
		switch {
		case err == nil && n > 0:
			r.n += n
			return r.n, nil
		case err == nil && n == 0:
			return r.n, io.EOF
		case err == unix.EAGAIN:
			if regErr := r.register(s); regErr != nil {
				return r.n, regErr
			}
			switch s.Current().Yield() {
			case ResumeIOTimeout:
				if r.strict {
					return r.n, ErrTimeout
				}
				return r.n, nil
			case ResumeIOHup:
				return r.n, ErrHangup
			case ResumeIOError:
				return r.n, &OpError{Op: "recv", Err: unix.ECONNRESET}
			default:
				continue
			}
		default:
			return r.n, &OpError{Op: "recv", Err: err}
		}
	}
}

// SendFuture writes all of buf to sock, retrying on EAGAIN the same way
// RecvFuture retries on read, per spec.md §4.8.
type SendFuture struct {
	sock    *Socket
	buf     []byte
	timeout time.Duration
	strict  bool
	n       int
}

// NewSend builds a Send future with no timeout.
func NewSend(sock *Socket, buf []byte) *SendFuture {
	return &SendFuture{sock: sock, buf: buf}
}

// NewSendTimeout builds a Send future bounded by timeout, with the same
// strict/lenient elapsed-deadline knob as NewRecvTimeout. spec.md §7 states
// the canonical exemplar ("send always raises timeout"), which is strict=true
// here; the lenient option is an added convenience for callers that want
// Send's retry-on-EAGAIN loop without making an elapsed deadline fatal,
// symmetric with Recv's own strict/lenient split.
func NewSendTimeout(sock *Socket, buf []byte, timeout time.Duration, strict bool) *SendFuture {
	return &SendFuture{sock: sock, buf: buf, timeout: timeout, strict: strict}
}

func (w *SendFuture) register(s *Scheduler) error {
	if w.timeout > 0 {
		return s.Reactor().RegisterIOTimeout(w.sock.fd, InterestWrite, w.timeout)
	}
	return s.Reactor().RegisterIO(w.sock.fd, InterestWrite)
}

func (w *SendFuture) Await(s *Scheduler) (int, error) {
	if len(w.buf) == 0 {
		return 0, ErrEmptyBuffer
	}
	for {
		n, err := unix.Write(w.sock.fd, w.buf[w.n:])
		switch {
		case err == nil:
			w.n += n
			if w.n == len(w.buf) {
				return w.n, nil
			}
		case err == unix.EAGAIN:
			if regErr := w.register(s); regErr != nil {
				return w.n, regErr
			}
			switch s.Current().Yield() {
			case ResumeIOTimeout:
				if w.strict {
					return w.n, ErrTimeout
				}
				return w.n, nil
			case ResumeIOHup:
				return w.n, ErrHangup
			case ResumeIOError:
				return w.n, &OpError{Op: "send", Err: unix.EPIPE}
			}
		default:
			return w.n, &OpError{Op: "send", Err: err}
		}
	}
}

// WaitForActivityFuture suspends until sock becomes ready per interest,
// without performing any read or write — the bare-readiness exemplar from
// spec.md §4.8, useful for multiplexing several descriptors from one fiber
// without committing to a specific operation on any of them.
//
// Per the Open Question spec.md §9 flags and leaves as a documented
// per-operation divergence: WaitForActivity treats a hangup as "no
// activity" (returns false, nil) rather than raising ErrHangup the way
// Recv/Send do. A caller polling liveness this way is expected to follow up
// with an actual Recv to learn why the peer went quiet.
type WaitForActivityFuture struct {
	sock     *Socket
	interest InterestMask
	timeout  time.Duration
}

// WaitForActivity builds a future with no timeout: it suspends until sock
// is ready or hangs up.
func WaitForActivity(sock *Socket, interest InterestMask) *WaitForActivityFuture {
	return &WaitForActivityFuture{sock: sock, interest: interest}
}

// WaitForActivityTimeout is WaitForActivity bounded by timeout; an elapsed
// deadline also reports as (false, nil), same as a hangup.
func WaitForActivityTimeout(sock *Socket, interest InterestMask, timeout time.Duration) *WaitForActivityFuture {
	return &WaitForActivityFuture{sock: sock, interest: interest, timeout: timeout}
}

func (w *WaitForActivityFuture) Await(s *Scheduler) (bool, error) {
	// spec.md §4.8: short-circuit using a peek of the receive-queue byte
	// count before ever registering with the reactor.
	if w.interest&InterestRead != 0 {
		if pending, err := unix.IoctlGetInt(w.sock.fd, unix.FIONREAD); err == nil && pending > 0 {
			return true, nil
		}
	}

	var err error
	if w.timeout > 0 {
		err = s.Reactor().RegisterIOTimeout(w.sock.fd, w.interest, w.timeout)
	} else {
		err = s.Reactor().RegisterIO(w.sock.fd, w.interest)
	}
	if err != nil {
		return false, err
	}
	switch s.Current().Yield() {
	case ResumeIOReady:
		return true, nil
	case ResumeIOError:
		return false, &OpError{Op: "wait", Err: unix.ECONNRESET}
	default:
		return false, nil
	}
}

// ConnectFuture performs a non-blocking connect. It is added beyond
// spec.md's listed exemplar set (Accept/Recv/Send/WaitForActivity): see
// SPEC_FULL.md's [Socket futures] section and DESIGN.md for why a reactor
// that can only accept, never originate, connections can't exercise half
// of its own test surface.
type ConnectFuture struct {
	sock *Socket
	addr unix.Sockaddr
}

// Connect builds a future that connects sock to addr.
func Connect(sock *Socket, addr unix.Sockaddr) *ConnectFuture {
	return &ConnectFuture{sock: sock, addr: addr}
}

func (c *ConnectFuture) Await(s *Scheduler) (Void, error) {
	err := unix.Connect(c.sock.fd, c.addr)
	if err == nil {
		return Void{}, nil
	}
	if err != unix.EINPROGRESS {
		return Void{}, &OpError{Op: "connect", Err: err}
	}
	if regErr := s.Reactor().RegisterIO(c.sock.fd, InterestWrite); regErr != nil {
		return Void{}, regErr
	}
	switch s.Current().Yield() {
	case ResumeIOReady:
		errno, gerr := unix.GetsockoptInt(c.sock.fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if gerr != nil {
			return Void{}, &OpError{Op: "connect", Err: gerr}
		}
		if errno != 0 {
			return Void{}, &OpError{Op: "connect", Err: unix.Errno(errno)}
		}
		return Void{}, nil
	case ResumeIOHup:
		return Void{}, ErrHangup
	default:
		return Void{}, &OpError{Op: "connect", Err: unix.ECONNREFUSED}
	}
}
