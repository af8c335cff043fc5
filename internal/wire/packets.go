// Package wire implements the bit-exact legacy media packet codec and the
// length-prefixed JSON control-channel framing used once a connection has
// passed the handshake (see internal/handshake). High-frequency packets
// (video, tracking, time-sync, haptics, error reports) are fixed-layout
// binary, matching the original client's `#[repr(C, packed)]` structs;
// low-frequency control messages are tagged JSON envelopes.
package wire

// PacketType identifies the legacy media-socket datagram kind. Values are
// carried over from the protocol's own numbering so a capture from either
// side can be cross-referenced by raw packet_type.
type PacketType uint32

const (
	PacketTypeTrackingInfo     PacketType = 6
	PacketTypeTimeSync         PacketType = 7
	PacketTypeVideoFrame       PacketType = 9
	PacketTypePacketErrorReport PacketType = 12
	PacketTypeHapticsFeedback  PacketType = 13
	PacketTypeAudioFrame       PacketType = 14
)

// AudioFrameHeader precedes one game-audio (downlink) or microphone
// (uplink) PCM payload on the media socket.
type AudioFrameHeader struct {
	PacketType     PacketType
	SequenceNumber uint64
}

// VideoFrameHeader precedes the (possibly FEC-shard-split) payload of one
// video frame packet.
type VideoFrameHeader struct {
	PacketType         PacketType
	PacketCounter      uint32
	TrackingFrameIndex uint64
	VideoFrameIndex    uint64
	SentTime           uint64 // server clock, nanoseconds
	FrameByteSize      uint32
	FecIndex           uint32
	FecPercentage      uint32
}

// TimeSyncMode mirrors the 4-step clock alignment handshake: the client
// sends Mode 0, the server answers Mode 1 (which the client times to
// derive RTT and clock offset and echoes back as Mode 2), and the server
// periodically sends Mode 3 telemetry pings the client acknowledges with
// its own Mode 3 in reply.
type TimeSyncMode uint32

const (
	TimeSyncModeClientRequest TimeSyncMode = 0
	TimeSyncModeServerReply   TimeSyncMode = 1
	TimeSyncModeClientEcho    TimeSyncMode = 2
	TimeSyncModeServerPing    TimeSyncMode = 3
)

// TimeSync carries clock-alignment and telemetry data in both directions.
type TimeSync struct {
	PacketType              PacketType
	Mode                     TimeSyncMode
	Sequence                 uint64
	ServerTime               uint64 // nanoseconds, server clock
	ClientTime               uint64 // nanoseconds, client clock
	TrackingRecvFrameIndex   uint64
	PacketsLostTotal         uint64
	PacketsLostInSecond      uint32
	FecFailureTotal          uint64
	FecFailureInSecond       uint32
	AverageTotalLatencyUs    uint32
	AverageTransportLatencyUs uint32
	AverageDecodeLatencyUs   uint32
	AverageSendLatencyUs     uint32
	Fps                      float32
}

// HapticsFeedback drives a controller's haptic motor. Hand is 0 for the
// left controller and nonzero for the right, matching the original
// protocol's packed layout.
type HapticsFeedback struct {
	PacketType PacketType
	StartTime  uint64 // nanoseconds from now, client clock
	Amplitude  float32
	Duration   float32
	Frequency  float32
	Hand       uint8
}

// LostFrameType identifies which logical stream a PacketErrorReport is
// requesting a resend for. Video is the only stream the legacy FEC path
// ever recovers from loss, but the field is carried as a full enum to
// match the original protocol's wire layout.
type LostFrameType uint32

const (
	LostFrameTypeVideo LostFrameType = 0
)

// PacketErrorReport asks the server to resend a contiguous run of video
// packets the FEC reassembler could not recover (see internal/fec).
type PacketErrorReport struct {
	PacketType        PacketType
	LostFrameType     LostFrameType
	FromPacketCounter uint32
	ToPacketCounter   uint32
}

// TrackingInfo is the per-sample head/controller pose pushed upstream at
// the control plane's tracking send rate (see internal/controlplane).
type TrackingInfo struct {
	PacketType           PacketType
	ClientTime           uint64
	FrameIndex           uint64
	PredictedDisplayTime float64
	HeadOrientation      [4]float32 // x, y, z, w
	HeadPosition         [3]float32
	LeftController       WireController
	RightController      WireController
}

// WireController is the fixed-layout hand record embedded in TrackingInfo.
type WireController struct {
	Enabled         uint8
	Pad             [3]uint8 // alignment filler, always zero
	Flags           uint32
	Orientation     [4]float32
	Position        [3]float32
	AngularVelocity [3]float32
	LinearVelocity  [3]float32
	TriggerValue    float32
	GripValue       float32
	ThumbstickX     float32
	ThumbstickY     float32
	Buttons         uint64
}
