// Package coreapi holds the small set of types shared between the
// orchestrator and whatever embeds it (a platform integration, a test
// harness): connection lifecycle events, structured errors, and the
// collaborator interfaces for audio and decoder-buffer plumbing.
package coreapi

import "net"

// Codec identifies the negotiated video codec.
type Codec int

const (
	CodecH264 Codec = iota
	CodecH265
)

func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecH265:
		return "h265"
	default:
		return "unknown"
	}
}

// ConnectionEventKind tags a ConnectionEvent's payload, mirroring the
// tagged-enum shape the rest of the wire protocol uses (see
// internal/wire's control packet envelope).
type ConnectionEventKind string

const (
	EventInitial       ConnectionEventKind = "initial"
	EventServerFound   ConnectionEventKind = "server_found"
	EventStreamStart   ConnectionEventKind = "stream_start"
	EventConnected     ConnectionEventKind = "connected"
	EventServerRestart ConnectionEventKind = "server_restart"
	EventError         ConnectionEventKind = "error"
)

// ConnectionEvent is published to observers registered on the orchestrator
// (see internal/orchestrator.Orchestrator.Subscribe). Only the fields
// relevant to Kind are populated; this mirrors the tagged-enum payload
// shape of the original ConnectionEvent (Initial | ServerFound{ipaddr} |
// Connected{settings} | StreamStart | ServerRestart | Error{kind}) with
// one flat struct instead of a sum type, since Go has no enum payloads.
type ConnectionEvent struct {
	Kind      ConnectionEventKind
	SessionID string              // stable per connection attempt, for correlating logs
	ServerIP  net.IP              // non-nil only for EventServerFound
	Settings  *ConnectionSettings // non-nil only for EventConnected
	Err       error               // non-nil only for EventError
}

// ConnectionSettings is the negotiated session configuration merged from
// the server's session-description JSON over the client's local defaults
// (see internal/handshake).
type ConnectionSettings struct {
	Codec             Codec
	FecPercentage     int
	EyeWidth          int32
	EyeHeight         int32
	RefreshRateHz     float32
	GameAudio         bool
	Microphone        bool
	RealtimeDecoder   bool
}

// ConnectionObserver receives lifecycle notifications from an
// Orchestrator. Implementations must return quickly: OnEvent is called
// from the orchestrator's own goroutine and a slow observer delays the
// next state transition.
type ConnectionObserver interface {
	OnEvent(ConnectionEvent)
}
