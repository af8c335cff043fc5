// Package latency tracks per-frame pipeline timestamps and derives the
// round-trip latency breakdown reported back to the server, grounded on
// the original client's latency_controller.rs. The counters half of this
// package (packet loss, FEC failures, FPS) is shaped like the teacher's
// internal/remote/desktop stream_metrics.go: a mutex-guarded struct with
// Record* mutators and a Snapshot() for the telemetry-facing read side.
package latency

import (
	"sync"
	"time"

	"github.com/alvr-go/headset-client/internal/wire"
)

// MaxFrames is the ring buffer size for in-flight frame timestamps,
// indexed by frameIndex % MaxFrames. 1024 in-flight frames comfortably
// covers any realistic network RTT at typical VR frame rates.
const MaxFrames = 1024

// MaxActions bounds the pending-action channel; if production outruns
// Submit() drains, the oldest action is dropped rather than blocking the
// producer (a blocked tracking/render callback would itself add latency).
const MaxActions = 64

// ActionKind tags one timestamp update for a frame.
type ActionKind int

const (
	ActionTracking ActionKind = iota
	ActionEstimatedSent
	ActionReceivedFirst
	ActionReceivedLast
	ActionReceived
	ActionDecoderInput
	ActionDecoderOutput
	ActionRendered
)

// Action is one timestamp update, queued by whichever pipeline stage
// observed it (see internal/mediaplane, internal/decodercoord) and applied
// by the next Submit call.
type Action struct {
	FrameIndex uint64
	Kind       ActionKind
	Time       time.Time
}

// FrameTimestamp records every pipeline stage's observed time for one
// frame.
type FrameTimestamp struct {
	FrameIndex    uint64
	Tracking      time.Time
	EstimatedSent time.Time
	ReceivedFirst time.Time
	ReceivedLast  time.Time
	Received      time.Time
	DecoderInput  time.Time
	DecoderOutput time.Time
	Rendered      time.Time
	Submit        time.Time
}

// Breakdown is the derived latency figures reported upstream.
type Breakdown struct {
	TotalUs     int64
	TransportUs int64
	DecodeUs    int64
	SendUs      int64
}

// Snapshot is a point-in-time copy of the telemetry counters.
type Snapshot struct {
	AverageTotalLatencyUs     float64
	PacketsLostTotal          uint64
	PacketsLostInSecond       uint32
	FecFailureTotal           uint64
	FecFailureInSecond        uint32
	Fps                       float64
}

// Controller accumulates per-frame timestamps and derives latency and
// loss telemetry. One Controller is owned per connection.
type Controller struct {
	mu         sync.Mutex
	actions    chan Action
	ring       [MaxFrames]FrameTimestamp
	lastSubmit time.Time

	averageTotalLatencyUs float64
	packetsLostTotal      uint64
	packetsLostInSecond   uint32
	fecFailureTotal       uint64
	fecFailureInSecond    uint32
	framesInSecond        uint32
	fps                   float64
	secondStart           time.Time
	sequence              uint64
}

// NewTimeSync builds a client-originated TimeSync telemetry packet from
// the controller's current counters and a just-computed latency
// breakdown. Sent over the media socket (see internal/orchestrator's
// rendered-notification handling) whenever Submit succeeds, per spec
// §4.7's "fresh TimeSync ... emitted" behavior. Mode is ClientEcho since
// this telemetry packet, like the clock-alignment echo, is client-
// originated and carries no request/reply semantics of its own.
func (c *Controller) NewTimeSync(sequence uint64, breakdown Breakdown) wire.TimeSync {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wire.TimeSync{
		PacketType:                wire.PacketTypeTimeSync,
		Mode:                      wire.TimeSyncModeClientEcho,
		Sequence:                  sequence,
		ClientTime:                uint64(time.Now().UnixMicro()),
		PacketsLostTotal:          c.packetsLostTotal,
		PacketsLostInSecond:       c.packetsLostInSecond,
		FecFailureTotal:           c.fecFailureTotal,
		FecFailureInSecond:        c.fecFailureInSecond,
		AverageTotalLatencyUs:     uint32(c.averageTotalLatencyUs),
		AverageTransportLatencyUs: uint32(breakdown.TransportUs),
		AverageDecodeLatencyUs:    uint32(breakdown.DecodeUs),
		AverageSendLatencyUs:      uint32(breakdown.SendUs),
		Fps:                       float32(c.fps),
	}
}

// NewController returns a ready-to-use Controller.
func NewController() *Controller {
	return &Controller{
		actions:     make(chan Action, MaxActions),
		secondStart: time.Now(),
	}
}

// Record queues one timestamp action, dropping the oldest queued action
// if the channel is full.
func (c *Controller) Record(a Action) {
	select {
	case c.actions <- a:
		return
	default:
	}
	select {
	case <-c.actions:
	default:
	}
	select {
	case c.actions <- a:
	default:
	}
}

func (c *Controller) drain(requestFrameIndex uint64) {
	for {
		select {
		case a := <-c.actions:
			if a.FrameIndex < requestFrameIndex {
				continue // stale: its frame already submitted
			}
			c.apply(a)
		default:
			return
		}
	}
}

func (c *Controller) apply(a Action) {
	slot := &c.ring[a.FrameIndex%MaxFrames]
	if slot.FrameIndex != a.FrameIndex {
		*slot = FrameTimestamp{FrameIndex: a.FrameIndex}
	}
	switch a.Kind {
	case ActionTracking:
		slot.Tracking = a.Time
	case ActionEstimatedSent:
		slot.EstimatedSent = a.Time
	case ActionReceivedFirst:
		slot.ReceivedFirst = a.Time
	case ActionReceivedLast:
		slot.ReceivedLast = a.Time
	case ActionReceived:
		slot.Received = a.Time
	case ActionDecoderInput:
		slot.DecoderInput = a.Time
	case ActionDecoderOutput:
		slot.DecoderOutput = a.Time
	case ActionRendered:
		slot.Rendered = a.Time
	}
}

// valid checks the four monotonicity invariants a frame's timestamps must
// satisfy before its latency breakdown is trusted.
func valid(ts FrameTimestamp, now, lastSubmit time.Time) bool {
	if !ts.EstimatedSent.IsZero() && !ts.ReceivedLast.IsZero() && ts.EstimatedSent.After(ts.ReceivedLast) {
		return false
	}
	if !ts.DecoderInput.IsZero() && !ts.DecoderOutput.IsZero() && ts.DecoderInput.After(ts.DecoderOutput) {
		return false
	}
	if !ts.Tracking.IsZero() && !ts.Received.IsZero() && ts.Tracking.After(ts.Received) {
		return false
	}
	if !lastSubmit.IsZero() && !now.After(lastSubmit) {
		return false
	}
	return true
}

// Submit drains all pending actions, validates the requested frame's
// timestamps, and — if valid — returns its derived latency breakdown and
// records it into the rolling average. It returns ok=false if the frame
// was never recorded or its timestamps violate a monotonicity invariant,
// in which case the caller should not trust or report this frame's
// latency.
func (c *Controller) Submit(frameIndex uint64) (breakdown Breakdown, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.drain(frameIndex)

	slot := c.ring[frameIndex%MaxFrames]
	if slot.FrameIndex != frameIndex {
		return Breakdown{}, false
	}

	now := time.Now()
	if !valid(slot, now, c.lastSubmit) {
		return Breakdown{}, false
	}
	c.lastSubmit = now
	slot.Submit = now

	breakdown = Breakdown{
		TotalUs:     durationUs(slot.Tracking, slot.Submit),
		TransportUs: durationUs(slot.EstimatedSent, slot.ReceivedLast),
		DecodeUs:    durationUs(slot.DecoderInput, slot.DecoderOutput),
	}
	// send = received - tracking when this frame's time-sync ping reply
	// gave us a received timestamp; otherwise fall back to transport, per
	// the original latency_controller.rs's send-latency derivation.
	if !slot.Received.IsZero() {
		breakdown.SendUs = durationUs(slot.Tracking, slot.Received)
	} else {
		breakdown.SendUs = breakdown.TransportUs
	}

	c.setTotalLatency(breakdown.TotalUs)
	c.framesInSecond++
	return breakdown, true
}

func durationUs(from, to time.Time) int64 {
	if from.IsZero() || to.IsZero() {
		return 0
	}
	return to.Sub(from).Microseconds()
}

// setTotalLatency folds a new total-latency sample into an exponential
// moving average, discarding outliers above 200ms (almost certainly a
// stall, not representative steady-state latency).
func (c *Controller) setTotalLatency(totalUs int64) {
	if totalUs >= 200000 {
		return
	}
	if c.averageTotalLatencyUs == 0 {
		c.averageTotalLatencyUs = float64(totalUs)
		return
	}
	c.averageTotalLatencyUs = 0.05*float64(totalUs) + 0.95*c.averageTotalLatencyUs
}

// RecordPacketLoss increments the packet-loss counters.
func (c *Controller) RecordPacketLoss() {
	c.mu.Lock()
	c.packetsLostTotal++
	c.packetsLostInSecond++
	c.mu.Unlock()
}

// RecordFecFailure increments the FEC-failure counters.
func (c *Controller) RecordFecFailure() {
	c.mu.Lock()
	c.fecFailureTotal++
	c.fecFailureInSecond++
	c.mu.Unlock()
}

// CheckAndResetSecond rolls the per-second counters (packet loss, FEC
// failure, fps) into a Snapshot once a second has elapsed since the last
// rollover, and resets them. It returns ok=false (no snapshot) if less
// than a second has elapsed.
func (c *Controller) CheckAndResetSecond() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.secondStart)
	if elapsed < time.Second {
		return Snapshot{}, false
	}

	c.fps = float64(c.framesInSecond) / elapsed.Seconds()
	snap := Snapshot{
		AverageTotalLatencyUs: c.averageTotalLatencyUs,
		PacketsLostTotal:      c.packetsLostTotal,
		PacketsLostInSecond:   c.packetsLostInSecond,
		FecFailureTotal:       c.fecFailureTotal,
		FecFailureInSecond:    c.fecFailureInSecond,
		Fps:                   c.fps,
	}

	c.packetsLostInSecond = 0
	c.fecFailureInSecond = 0
	c.framesInSecond = 0
	c.secondStart = time.Now()
	return snap, true
}

// NextSequence returns the next outgoing time-sync sequence number.
func (c *Controller) NextSequence() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequence++
	return c.sequence
}
