// Package udpconn tunes the kernel socket buffers on the resolver's single
// client-facing UDP listener. The teacher's multi-socket SO_REUSEPORT setup
// is down-scoped to the buffer-size tuning half of the same syscall family,
// since a single listener has no reuseport group to join.
package udpconn

import (
	"net"

	"golang.org/x/sys/unix"
)

// defaultBufferBytes is the size Tune applies when the caller passes 0 or
// less; it equals the common Linux default receive buffer size.
const defaultBufferBytes = 212992

// Tune sets the receive and send buffer sizes on conn's underlying file
// descriptor to bytes (or defaultBufferBytes), whether that is larger or
// smaller than the current size. Errors are non-fatal: a failure just means
// the OS default buffer size stays in effect.
func Tune(conn *net.UDPConn, bytes int) error {
	if bytes <= 0 {
		bytes = defaultBufferBytes
	}
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, bytes); e != nil {
			sockErr = e
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, bytes)
	})
	if err != nil {
		return err
	}
	return sockErr
}
