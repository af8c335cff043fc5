package device

// Vector3 is a right-handed 3D vector, in meters for positions and
// meters/second or meters/second^2 for velocity/acceleration samples.
type Vector3 struct {
	X, Y, Z float32
}

// Quaternion is a unit quaternion describing an orientation, XYZW order
// to match the wire layout consumed by internal/wire.
type Quaternion struct {
	X, Y, Z, W float32
}

// IdentityQuaternion is the "no rotation" orientation.
var IdentityQuaternion = Quaternion{X: 0, Y: 0, Z: 0, W: 1}

// Rect describes a rectangular viewport or render-target region.
type Rect struct {
	X, Y, Width, Height int32
}

// EyeFov is a single eye's field-of-view, in radians from the view axis.
type EyeFov struct {
	Left, Right, Top, Bottom float32
}

// DefaultEyeFov is used when a DeviceAdapter does not report a calibrated
// FOV; it is a generic symmetric 90-degree-ish FOV, not meant to look
// correct on real hardware.
var DefaultEyeFov = EyeFov{Left: 0.7853982, Right: 0.7853982, Top: 0.7853982, Bottom: 0.7853982}

// DefaultIPD is the fallback interpupillary distance in meters.
const DefaultIPD float32 = 0.063
