//go:build linux

package loom

import (
	"io"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// listenLoopback opens a non-blocking IPv4 TCP listener on an ephemeral
// port, mirroring the teacher's echoServer fixture but built from raw
// descriptors instead of net.Listen, since loom's Socket wraps an fd
// directly.
func listenLoopback(t testing.TB) (*Socket, *unix.SockaddrInet4) {
	t.Helper()
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	addr := &unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}
	if err := unix.Bind(fd, addr); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := unix.Listen(fd, 16); err != nil {
		t.Fatalf("listen: %v", err)
	}
	sa, err := unix.Getsockname(fd)
	if err != nil {
		t.Fatalf("getsockname: %v", err)
	}
	bound := sa.(*unix.SockaddrInet4)

	sock, err := NewSocket(fd)
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	return sock, bound
}

func dialLoopback(t testing.TB, addr *unix.SockaddrInet4) *Socket {
	t.Helper()
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	sock, err := NewSocket(fd)
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	return sock
}

// TestAcceptRecvSendEchoRoundTrip is S2: a listener accepts one connection,
// echoes what it reads, and the client observes the same bytes back.
func TestAcceptRecvSendEchoRoundTrip(t *testing.T) {
	s, err := NewScheduler()
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	listener, addr := listenLoopback(t)
	defer listener.Close()

	var serverErr, clientErr error
	var echoed []byte
	var serverConn *Socket

	serverDone := make(chan struct{})
	_, err = s.Spawn(func() {
		defer close(serverDone)
		conn, err := Accept(listener).Await(s)
		if err != nil {
			serverErr = err
			return
		}
		// conn is closed only after Run returns: closing it here would put
		// the FIN in the same readiness event as the echoed bytes, and the
		// client's Recv would resume with ResumeIOHup instead of reading.
		serverConn = conn
		buf := make([]byte, 64)
		n, err := NewRecv(conn, buf).Await(s)
		if err != nil {
			serverErr = err
			return
		}
		if _, err := NewSend(conn, buf[:n]).Await(s); err != nil {
			serverErr = err
		}
	})
	if err != nil {
		t.Fatalf("Spawn server: %v", err)
	}

	client := dialLoopback(t, addr)
	defer client.Close()
	_, err = s.Spawn(func() {
		if _, err := Connect(client, addr).Await(s); err != nil {
			clientErr = err
			return
		}
		payload := []byte("hello loom")
		if _, err := NewSend(client, payload).Await(s); err != nil {
			clientErr = err
			return
		}
		buf := make([]byte, 64)
		n, err := NewRecv(client, buf).Await(s)
		if err != nil {
			clientErr = err
			return
		}
		echoed = append([]byte(nil), buf[:n]...)
	})
	if err != nil {
		t.Fatalf("Spawn client: %v", err)
	}

	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if serverConn != nil {
		defer serverConn.Close()
	}
	if serverErr != nil {
		t.Fatalf("server: %v", serverErr)
	}
	if clientErr != nil {
		t.Fatalf("client: %v", clientErr)
	}
	if string(echoed) != "hello loom" {
		t.Fatalf("echoed = %q, want %q", echoed, "hello loom")
	}
}

// TestStrictRecvTimeoutReturnsErrTimeout is S3: a strict-mode Recv whose
// deadline elapses before the peer ever writes reports ErrTimeout.
func TestStrictRecvTimeoutReturnsErrTimeout(t *testing.T) {
	s, err := NewScheduler()
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	listener, addr := listenLoopback(t)
	defer listener.Close()
	client := dialLoopback(t, addr)
	defer client.Close()

	var gotErr error
	_, err = s.Spawn(func() {
		if _, err := Connect(client, addr).Await(s); err != nil {
			gotErr = err
			return
		}
		buf := make([]byte, 16)
		_, gotErr = NewRecvTimeout(client, buf, 20*time.Millisecond, true).Await(s)
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	_, err = s.Spawn(func() {
		_, _ = Accept(listener).Await(s) // accept and never write, letting the client time out
	})
	if err != nil {
		t.Fatalf("Spawn acceptor: %v", err)
	}

	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotErr != ErrTimeout {
		t.Fatalf("got err %v, want ErrTimeout", gotErr)
	}
}

// TestLenientRecvTimeoutReturnsNoError is the non-strict counterpart to S3:
// an elapsed deadline reports zero bytes with a nil error instead of
// ErrTimeout.
func TestLenientRecvTimeoutReturnsNoError(t *testing.T) {
	s, err := NewScheduler()
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	listener, addr := listenLoopback(t)
	defer listener.Close()
	client := dialLoopback(t, addr)
	defer client.Close()

	var n int
	var gotErr error
	_, err = s.Spawn(func() {
		if _, err := Connect(client, addr).Await(s); err != nil {
			gotErr = err
			return
		}
		buf := make([]byte, 16)
		n, gotErr = NewRecvTimeout(client, buf, 20*time.Millisecond, false).Await(s)
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	_, err = s.Spawn(func() {
		_, _ = Accept(listener).Await(s)
	})
	if err != nil {
		t.Fatalf("Spawn acceptor: %v", err)
	}

	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotErr != nil {
		t.Fatalf("got err %v, want nil", gotErr)
	}
	if n != 0 {
		t.Fatalf("got n = %d, want 0", n)
	}
}

// TestRecvObservesHangup is S4: once the peer closes, a pending Recv
// resumes with ResumeIOHup and reports ErrHangup.
func TestRecvObservesHangup(t *testing.T) {
	s, err := NewScheduler()
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	listener, addr := listenLoopback(t)
	defer listener.Close()
	client := dialLoopback(t, addr)
	defer client.Close()

	var gotErr error
	var gotEOF bool
	_, err = s.Spawn(func() {
		if _, err := Connect(client, addr).Await(s); err != nil {
			gotErr = err
			return
		}
		buf := make([]byte, 16)
		_, err := NewRecv(client, buf).Await(s)
		gotEOF = err == io.EOF || err == ErrHangup
		gotErr = err
	})
	if err != nil {
		t.Fatalf("Spawn client: %v", err)
	}
	_, err = s.Spawn(func() {
		conn, err := Accept(listener).Await(s)
		if err != nil {
			return
		}
		_ = conn.Close()
	})
	if err != nil {
		t.Fatalf("Spawn acceptor: %v", err)
	}

	if err := s.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !gotEOF {
		t.Fatalf("got err %v, want io.EOF or ErrHangup", gotErr)
	}
}
