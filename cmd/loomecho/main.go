// Command loomecho is a minimal TCP echo server, promoted from the
// teacher's own echoServer/TestEcho test fixture into a runnable example of
// Accept/Recv/Send end to end.
package main

import (
	"flag"
	"log"
	"net"

	"golang.org/x/sys/unix"

	"github.com/xtaci-contrib/loom"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:5300", "address to listen on")
	flag.Parse()

	tcpAddr, err := resolveTCP(*addr)
	if err != nil {
		log.Fatalf("loomecho: %v", err)
	}

	listenFD, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		log.Fatalf("loomecho: socket: %v", err)
	}
	if err := unix.SetsockoptInt(listenFD, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		log.Fatalf("loomecho: setsockopt: %v", err)
	}
	if err := unix.Bind(listenFD, tcpAddr); err != nil {
		log.Fatalf("loomecho: bind: %v", err)
	}
	if err := unix.Listen(listenFD, 128); err != nil {
		log.Fatalf("loomecho: listen: %v", err)
	}

	listener, err := loom.NewSocket(listenFD)
	if err != nil {
		log.Fatalf("loomecho: %v", err)
	}

	log.Printf("loomecho: listening on %s", *addr)

	status := loom.Main(func(s *loom.Scheduler) int {
		for {
			conn, err := loom.Await(s, loom.Accept(listener))
			if err != nil {
				log.Printf("loomecho: accept: %v", err)
				return 1
			}
			if _, err := s.Spawn(func() { serve(s, conn) }); err != nil {
				log.Printf("loomecho: spawn: %v", err)
				_ = conn.Close()
			}
		}
	})
	_ = listener.Close()
	log.Printf("loomecho: exiting with status %d", status)
}

// serve echoes every byte it reads back to the same connection until the
// peer closes or an error occurs, the same loop shape as the teacher's
// TestEcho fixture.
func serve(s *loom.Scheduler, conn *loom.Socket) {
	defer conn.Close()

	buf := make([]byte, 4096)
	for {
		n, err := loom.Await(s, loom.NewRecv(conn, buf))
		if err != nil {
			return
		}
		if _, err := loom.Await(s, loom.NewSend(conn, buf[:n])); err != nil {
			return
		}
	}
}

// resolveTCP resolves addr the way net.ResolveTCPAddr would (the teacher's
// own benchmark fixture uses the same call) and converts the result into
// the raw sockaddr x/sys/unix's Bind expects, since loom's sockets are
// built from raw descriptors rather than net.Conn.
func resolveTCP(addr string) (*unix.SockaddrInet4, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		return nil, err
	}
	sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
	ip := tcpAddr.IP.To4()
	if ip == nil {
		ip = net.IPv4zero.To4()
	}
	copy(sa.Addr[:], ip)
	return sa, nil
}
