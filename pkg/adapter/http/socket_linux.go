//go:build linux

package http

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

const listenBacklog = unix.SOMAXCONN

// listenTCP opens a non-blocking IPv4 listening socket on every interface.
// Port 0 picks an ephemeral port; the bound port is returned.
func listenTCP(port int, linger bool) (fd int, bound int, err error) {
	fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, 0, fmt.Errorf("socket: %w", err)
	}
	defer func() {
		if err != nil {
			_ = unix.Close(fd)
		}
	}()

	if linger {
		// Closing waits up to one second for unsent data to reach the peer.
		if err = unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: 1}); err != nil {
			return -1, 0, fmt.Errorf("set SO_LINGER: %w", err)
		}
	}
	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return -1, 0, fmt.Errorf("set SO_REUSEADDR: %w", err)
	}
	if err = unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		return -1, 0, fmt.Errorf("bind port %d: %w", port, err)
	}
	if err = unix.Listen(fd, listenBacklog); err != nil {
		return -1, 0, fmt.Errorf("listen port %d: %w", port, err)
	}

	sa, err := unix.Getsockname(fd)
	if err != nil {
		return -1, 0, fmt.Errorf("getsockname: %w", err)
	}
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		bound = in4.Port
	}
	return fd, bound, nil
}

// acceptConn accepts one pending connection as a non-blocking descriptor.
func acceptConn(lfd int) (int, string, error) {
	fd, sa, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, "", err
	}
	return fd, sockaddrString(sa), nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	default:
		return "unknown"
	}
}

func isTemporary(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR
}

func sysWritev(fd int, iovs [][]byte) (int, error) {
	return unix.Writev(fd, iovs)
}

func sysWrite(fd int, p []byte) (int, error) {
	return unix.Write(fd, p)
}

func sysClose(fd int) error {
	return unix.Close(fd)
}

// sysShutdown ends both directions without releasing the descriptor.
func sysShutdown(fd int) error {
	return unix.Shutdown(fd, unix.SHUT_RDWR)
}
