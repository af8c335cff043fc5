package wire

import (
	"encoding/json"
	"fmt"

	"github.com/alvr-go/headset-client/internal/coreapi"
	"github.com/alvr-go/headset-client/internal/device"
)

// Control-channel message type tags. These are the JSON-framed, low
// frequency counterpart to the binary packets in packets.go — handshake,
// stream setup, and mid-session control messages that don't need the
// bit-exact layout.
const (
	TypeHeadsetInfo    = "headset_info"
	TypeClientConfig   = "client_config"
	TypeStartStream    = "start_stream"
	TypeRestarting     = "restarting"
	TypeStreamReady    = "stream_ready"
	TypeIDRRequest     = "idr_request"
	TypePlayspaceSync  = "playspace_sync"
	TypeShutdown       = "shutdown"
	TypeKeepalive      = "keepalive"
)

// Envelope is the length-prefixed JSON wrapper for every control message.
// Unlike the pre-auth IPC protocol this is modeled on, there is no HMAC:
// the handshake's certificate exchange (see internal/identity) is the
// trust boundary for an already-accepted connection, and re-signing every
// control message on top of that buys nothing.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// HeadsetInfo is the client's opening handshake message.
type HeadsetInfo struct {
	Hostname        string        `json:"hostname"`
	Device          device.Device `json:"device"`
	ProtocolVersion uint32        `json:"protocolVersion"`
}

// ClientConfig is the server's reply to HeadsetInfo, carrying the session
// description the client should merge over its local defaults.
type ClientConfig struct {
	SessionDescriptionJSON json.RawMessage `json:"sessionDescription"`
}

// StartStream signals the client to open its media socket and begin the
// legacy stream pipeline (see internal/mediaplane).
type StartStream struct {
	Settings coreapi.ConnectionSettings `json:"settings"`
}

// Restarting tells the client the server is about to tear down and
// restart the session; the client should return to its Initial state
// without treating this as an error (see internal/orchestrator).
type Restarting struct {
	Reason string `json:"reason,omitempty"`
}

// StreamReady is sent by the client once its media socket is open and it
// is ready to receive video.
type StreamReady struct{}

// IDRRequest asks the server to send a fresh IDR frame, used after a
// decoder reset or unrecoverable FEC failure (see internal/fec).
type IDRRequest struct {
	Reason string `json:"reason,omitempty"`
}

// PlayspaceSync carries guardian/playspace boundary geometry, sent
// periodically by the client (see internal/controlplane).
type PlayspaceSync struct {
	Bounds []device.Vector3 `json:"bounds"`
}

// Shutdown is sent by either side to request a clean teardown of the
// connection.
type Shutdown struct{}

// Keepalive carries no data; its arrival alone resets the peer's
// idle-connection timer.
type Keepalive struct{}

// MarshalEnvelope wraps a typed control payload into an Envelope.
func MarshalEnvelope(msgType string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal control payload %s: %w", msgType, err)
	}
	return &Envelope{Type: msgType, Payload: raw}, nil
}
