// Package discovery implements the broadcast handshake a headset uses to
// find a server on the local network before a control connection is
// negotiated. Grounded on the original client's announce_client_loop /
// receive_response_loop in connection.rs: bind a broadcast UDP socket,
// resend a handshake packet on an interval until a server response (or a
// rejection) arrives, and ignore the client's own broadcast echoing back.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/alvr-go/headset-client/internal/logging"
)

var log = logging.L("discovery")

// ClientHandshakePacket is broadcast on the discovery port until a server
// responds. Field names mirror the original's ClientHandshakePacket;
// reserved1/reserved2 exist only for future wire compatibility and are
// always empty.
type ClientHandshakePacket struct {
	AlvrName   string `json:"alvrName"`
	Version    string `json:"version"`
	DeviceName string `json:"deviceName"`
	Hostname   string `json:"hostname"`
	Reserved1  string `json:"reserved1"`
	Reserved2  string `json:"reserved2"`
}

// ServerResponseKind classifies what a responding server told us.
type ServerResponseKind int

const (
	// ServerFound means the server accepted the handshake and discovery
	// is complete; the caller should proceed to control-connect.
	ServerFound ServerResponseKind = iota
	ServerClientUntrusted
	ServerIncompatibleVersions
)

type serverHandshakePacket struct {
	Kind string `json:"kind"`
}

// ServerResponse is the outcome of one discovery attempt.
type ServerResponse struct {
	Kind     ServerResponseKind
	ServerIP net.IP
}

// MaxHandshakePacketSize bounds the UDP datagram read buffer.
const MaxHandshakePacketSize = 2048

// ResendInterval is how often the handshake packet is rebroadcast while
// no server has responded, matching the original's
// CLIENT_HANDSHAKE_RESEND_INTERVAL.
var ResendInterval = 1 * time.Second

// Discover broadcasts packet on port repeatedly until a server responds or
// ctx is canceled. It binds a broadcast-capable socket on port itself
// (see broadcast_unix.go / broadcast_other.go) and ignores any datagram
// matching its own most recently sent payload, since that is its own
// broadcast echoing back rather than a genuine reply.
func Discover(ctx context.Context, port int, packet ClientHandshakePacket) (ServerResponse, error) {
	payload, err := json.Marshal(struct {
		Type   string                `json:"type"`
		Client ClientHandshakePacket `json:"client"`
	}{Type: "client", Client: packet})
	if err != nil {
		return ServerResponse{}, fmt.Errorf("marshal handshake packet: %w", err)
	}

	conn, err := newBroadcastSocket(port)
	if err != nil {
		return ServerResponse{}, fmt.Errorf("bind discovery socket: %w", err)
	}
	defer conn.Close()

	broadcastAddr := &net.UDPAddr{IP: net.IPv4bcast, Port: port}

	for {
		if _, err := conn.WriteToUDP(payload, broadcastAddr); err != nil {
			return ServerResponse{}, fmt.Errorf("broadcast handshake packet: %w", err)
		}

		resp, err := waitForResponse(ctx, conn, payload, ResendInterval)
		if err == errResendTimeout {
			log.Warn("server not found, resending handshake packet")
			continue
		}
		if err != nil {
			return ServerResponse{}, err
		}
		return resp, nil
	}
}

var errResendTimeout = fmt.Errorf("discovery: resend interval elapsed with no response")

func waitForResponse(ctx context.Context, conn *net.UDPConn, ownPayload []byte, timeout time.Duration) (ServerResponse, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, MaxHandshakePacketSize)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ServerResponse{}, errResendTimeout
		}
		select {
		case <-ctx.Done():
			return ServerResponse{}, ctx.Err()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(remaining))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return ServerResponse{}, errResendTimeout
			}
			return ServerResponse{}, fmt.Errorf("read discovery response: %w", err)
		}

		if n == len(ownPayload) && string(buf[:n]) == string(ownPayload) {
			continue // our own broadcast looping back
		}

		var envelope struct {
			Type   string                `json:"type"`
			Server serverHandshakePacket `json:"server"`
		}
		if err := json.Unmarshal(buf[:n], &envelope); err != nil {
			log.Debug("ignoring unparseable discovery datagram", "error", err)
			continue
		}
		if envelope.Type != "server" {
			continue
		}

		switch envelope.Server.Kind {
		case "clientUntrusted":
			return ServerResponse{Kind: ServerClientUntrusted, ServerIP: addr.IP}, nil
		case "incompatibleVersions":
			return ServerResponse{Kind: ServerIncompatibleVersions, ServerIP: addr.IP}, nil
		default:
			return ServerResponse{Kind: ServerFound, ServerIP: addr.IP}, nil
		}
	}
}
