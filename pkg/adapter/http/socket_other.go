//go:build !linux

package http

import "github.com/marmos91/tinyweb/internal/reactor"

func listenTCP(port int, linger bool) (int, int, error) {
	return -1, 0, reactor.ErrUnsupported
}

func acceptConn(lfd int) (int, string, error) {
	return -1, "", reactor.ErrUnsupported
}

func isTemporary(err error) bool { return false }

func sysWritev(fd int, iovs [][]byte) (int, error) { return 0, reactor.ErrUnsupported }
func sysWrite(fd int, p []byte) (int, error)       { return 0, reactor.ErrUnsupported }
func sysClose(fd int) error                         { return reactor.ErrUnsupported }
func sysShutdown(fd int) error                      { return reactor.ErrUnsupported }
