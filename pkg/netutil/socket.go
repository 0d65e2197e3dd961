//go:build linux || darwin || freebsd || netbsd || openbsd

package netutil

import (
	"log"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// TuneSocket disables Nagle's algorithm on conn. Both the route-server and
// bulk-whois sessions are line-oriented request/response chatter where
// Nagle's coalescing only adds latency, never throughput; the teacher tree
// brings in golang.org/x/sys transitively for goleveldb's platform file
// locking, so this repurposes that same low-level-tuning idiom against the
// sockets this domain actually dials.
func TuneSocket(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		log.Printf("WARN: netutil: could not get raw conn for socket tuning: %v", err)
		return
	}
	ctrlErr := raw.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1); err != nil {
			log.Printf("WARN: netutil: TCP_NODELAY failed: %v", err)
		}
	})
	if ctrlErr != nil {
		log.Printf("WARN: netutil: socket control failed: %v", ctrlErr)
	}
}
