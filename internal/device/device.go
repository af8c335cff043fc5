// Package device describes the local headset hardware the orchestrator is
// streaming for: its render target geometry, its tracking sample shape,
// and the adapter interface a platform integration implements to supply
// both and to receive rendered-frame acknowledgements.
package device

import "time"

// Device is the static render-target and display description sent to the
// server during the handshake (see internal/handshake).
type Device struct {
	Name             string
	RefreshRatesHz   []float32
	RecommendedEyeWidth  int32
	RecommendedEyeHeight int32
	LeftEyeFov       EyeFov
	RightEyeFov      EyeFov
	IPD              float32
}

// HandFlags mirrors the wire bitmap of which hand-tracking fields a
// Controller sample actually populated (see internal/wire).
type HandFlags uint32

const (
	HandFlagHasInput   HandFlags = 1 << 0
	HandFlagHasPose    HandFlags = 1 << 1
	HandFlagHasFingers HandFlags = 1 << 2
)

// Controller is one hand's tracked pose plus whatever input state the
// platform integration exposes; fields left unpopulated by a DeviceAdapter
// default to their zero value and the corresponding flag bit in Flags is
// left unset.
type Controller struct {
	Enabled        bool
	Orientation    Quaternion
	Position       Vector3
	AngularVelocity Vector3
	LinearVelocity  Vector3
	TriggerValue   float32
	GripValue      float32
	ThumbstickX    float32
	ThumbstickY    float32
	Buttons        uint64
	Flags          HandFlags
}

// Tracking is one sampled instant of head and controller pose, produced by
// a DeviceAdapter at the control plane's tracking send rate (see
// internal/controlplane).
type Tracking struct {
	HeadOrientation Quaternion
	HeadPosition    Vector3
	LeftController  Controller
	RightController Controller
	TargetTimestamp time.Time
}

// DeviceAdapter is implemented by the platform integration layer (the code
// that actually talks to headset hardware or a simulator). The streaming
// core only depends on this interface, never on a concrete hardware API.
type DeviceAdapter interface {
	// GetDevice returns the static render-target description.
	GetDevice() Device
	// GetTracking samples the current head/controller pose for the given
	// predicted display timestamp.
	GetTracking(targetTimestamp time.Time) Tracking
	// OnRendered is called once a submitted frame has been presented, so
	// the adapter can feed frame-pacing telemetry back to the application
	// (see internal/latency's Rendered action).
	OnRendered(frameIndex uint64, renderedAt time.Time)
}

// PlayspaceProvider is an optional interface a DeviceAdapter may also
// implement to report guardian/playspace boundary geometry. Most adapters
// have no boundary to report, in which case the controlplane's playspace
// sync loop simply skips sending (see internal/controlplane).
type PlayspaceProvider interface {
	// Bounds returns the current playspace boundary polygon, or nil if
	// unchanged/unavailable since the last call.
	Bounds() []Vector3
}
