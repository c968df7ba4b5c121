//go:build linux

package channel

import (
	"net"

	"golang.org/x/sys/unix"
)

// applySocketOptions sets SO_REUSEADDR, SO_SNDBUF and SO_RCVBUF on the
// socket's raw file descriptor, following the same SyscallConn().Control
// idiom the pack's kernel-stats tooling uses to reach golang.org/x/sys/unix
// getsockopt/setsockopt calls.
func applySocketOptions(conn *net.UDPConn, opts Options) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var setErr error
	err = raw.Control(func(fd uintptr) {
		if opts.ReuseAddr {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
				setErr = e
				return
			}
		}
		if opts.SndBufBytes > 0 {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, opts.SndBufBytes); e != nil {
				setErr = e
				return
			}
		}
		if opts.RcvBufBytes > 0 {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, opts.RcvBufBytes); e != nil {
				setErr = e
				return
			}
		}
	})
	if err != nil {
		return err
	}
	return setErr
}
