//go:build !unix

package discovery

import (
	"fmt"
	"net"
)

// newBroadcastSocket falls back to stdlib net.ListenUDP on platforms
// without golang.org/x/sys/unix socket-option support. net.ListenUDP
// sockets accept broadcast writes on Windows without SO_BROADCAST needing
// to be set explicitly; SO_REUSEADDR is not needed since the client never
// shares its discovery port with another local process.
func newBroadcastSocket(port int) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}
	return conn, nil
}
