//go:build !linux

package channel

import "net"

// applySocketOptions is a no-op outside Linux: SO_REUSEADDR/SNDBUF/RCVBUF
// tuning is best-effort and the standard library exposes no portable way
// to set them, so non-Linux builds rely on OS defaults.
func applySocketOptions(conn *net.UDPConn, opts Options) error {
	return nil
}
