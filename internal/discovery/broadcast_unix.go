//go:build unix

package discovery

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// newBroadcastSocket binds a UDP socket on port with SO_BROADCAST and
// SO_REUSEADDR set, letting a platform run multiple discovery attempts (or
// coexist with a server on the same host during development) without
// "address already in use" failures.
func newBroadcastSocket(port int) (*net.UDPConn, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_BROADCAST: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}

	sa := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}

	file := os.NewFile(uintptr(fd), "alvr-discovery")
	defer file.Close()
	conn, err := net.FileConn(file)
	if err != nil {
		return nil, fmt.Errorf("fileconn: %w", err)
	}
	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("unexpected conn type %T from discovery socket", conn)
	}
	return udpConn, nil
}
