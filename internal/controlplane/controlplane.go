// Package controlplane runs the low-frequency, always-on loops that keep a
// session alive once the handshake has completed: tracking submission,
// keepalives, playspace sync, and control-message receipt (including
// server-initiated restart/shutdown and IDR requests). Grounded on
// tracking_loop / keepalive_sender_loop / playspace_sync_loop / control_loop
// in the original client's connection.rs.
package controlplane

import (
	"context"
	"time"

	"github.com/alvr-go/headset-client/internal/device"
	"github.com/alvr-go/headset-client/internal/latency"
	"github.com/alvr-go/headset-client/internal/logging"
	"github.com/alvr-go/headset-client/internal/wire"
)

var log = logging.L("controlplane")

// KeepaliveInterval matches the original's NETWORK_KEEPALIVE_INTERVAL.
var KeepaliveInterval = 1 * time.Second

// PlayspaceSyncInterval matches the original's PLAYSPACE_SYNC_INTERVAL.
var PlayspaceSyncInterval = 500 * time.Millisecond

// TrackingSender is implemented by whatever owns the media-plane UDP
// socket; tracking samples are high-frequency binary packets, sent the
// same way video/haptics packets are (see internal/mediaplane), not over
// the JSON control channel.
type TrackingSender interface {
	SendTracking(wire.TrackingInfo) error
}

// ControlPlane owns the tracking/keepalive/playspace-sync/control-receive
// loops for one open session.
type ControlPlane struct {
	conn     *wire.ControlConn
	tracking TrackingSender
	adapter  device.DeviceAdapter
	lat      *latency.Controller

	trackingRateHz float32
	idrRequests    chan string
}

// New builds a ControlPlane bound to one session's control connection and
// tracking transport.
func New(conn *wire.ControlConn, tracking TrackingSender, adapter device.DeviceAdapter, lat *latency.Controller, trackingRateHz float32) *ControlPlane {
	if trackingRateHz <= 0 {
		trackingRateHz = 360
	}
	return &ControlPlane{
		conn:           conn,
		tracking:       tracking,
		adapter:        adapter,
		lat:            lat,
		trackingRateHz: trackingRateHz,
		idrRequests:    make(chan string, 4),
	}
}

// RequestIDR asks the control-receive loop to notify the server that a
// fresh IDR frame is needed (e.g. after unrecoverable FEC failure). Never
// blocks: if a request is already queued this one is dropped, since only
// one outstanding IDR request is meaningful at a time.
func (cp *ControlPlane) RequestIDR(reason string) {
	select {
	case cp.idrRequests <- reason:
	default:
	}
}

// TrackingLoop samples the device adapter and sends a TrackingInfo packet
// at trackingRateHz, using a drift-free accumulated deadline rather than a
// ticker so a slow iteration never compounds lag onto the next send.
func (cp *ControlPlane) TrackingLoop(ctx context.Context) error {
	interval := time.Duration(float64(time.Second) / float64(cp.trackingRateHz))
	deadline := time.Now()
	var frameIndex uint64

	for {
		frameIndex++
		target := deadline.Add(interval) // predicted display time for this sample
		sample := cp.adapter.GetTracking(target)

		if cp.lat != nil {
			cp.lat.Record(latency.Action{FrameIndex: frameIndex, Kind: latency.ActionTracking, Time: time.Now()})
		}

		pkt := trackingToWire(frameIndex, target, sample)
		if err := cp.tracking.SendTracking(pkt); err != nil {
			log.Warn("send tracking packet failed", "error", err)
		}

		var err error
		deadline, err = sleepUntil(ctx, deadline, interval)
		if err != nil {
			return err
		}
	}
}

// KeepaliveLoop sends a keepalive control message every KeepaliveInterval
// so the server's idle-connection timeout never fires during a healthy
// session.
func (cp *ControlPlane) KeepaliveLoop(ctx context.Context) error {
	ticker := time.NewTicker(KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := cp.conn.SendTyped(wire.TypeKeepalive, wire.Keepalive{}); err != nil {
				return err
			}
		}
	}
}

// PlayspaceSyncLoop periodically sends the adapter's guardian/playspace
// boundary geometry. A tick sends nothing when bounds is nil (the adapter
// has no playspace provider) or returns no points, and the server keeps
// its last known geometry.
func (cp *ControlPlane) PlayspaceSyncLoop(ctx context.Context, bounds func() []device.Vector3) error {
	ticker := time.NewTicker(PlayspaceSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if bounds == nil {
				continue
			}
			b := bounds()
			if len(b) == 0 {
				continue
			}
			if err := cp.conn.SendTyped(wire.TypePlayspaceSync, wire.PlayspaceSync{Bounds: b}); err != nil {
				return err
			}
		}
	}
}

// ErrServerRestarting is returned by ControlReceiveLoop when the server
// announces it is about to tear down and restart the session; the caller
// (internal/orchestrator) should treat this as a clean retry trigger, not
// a failure to report upstream.
var ErrServerRestarting = newSentinel("controlplane: server is restarting")

type sentinelError string

func newSentinel(s string) error { return sentinelError(s) }
func (e sentinelError) Error() string { return string(e) }

// ControlReceiveLoop reads control messages until the connection closes,
// the server requests shutdown or restart, or ctx is canceled. Queued IDR
// requests (see RequestIDR) are sent opportunistically between reads.
func (cp *ControlPlane) ControlReceiveLoop(ctx context.Context) error {
	envelopes := make(chan *wire.Envelope, 1)
	errs := make(chan error, 1)

	go func() {
		for {
			env, err := cp.conn.Recv()
			if err != nil {
				errs <- err
				return
			}
			envelopes <- env
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reason := <-cp.idrRequests:
			if err := cp.conn.SendTyped(wire.TypeIDRRequest, wire.IDRRequest{Reason: reason}); err != nil {
				return err
			}
		case err := <-errs:
			return err
		case env := <-envelopes:
			switch env.Type {
			case wire.TypeRestarting:
				return ErrServerRestarting
			case wire.TypeShutdown:
				return nil
			default:
				log.Debug("ignoring control message", "type", env.Type)
			}
		}
	}
}

func trackingToWire(frameIndex uint64, target time.Time, t device.Tracking) wire.TrackingInfo {
	return wire.TrackingInfo{
		PacketType:           wire.PacketTypeTrackingInfo,
		ClientTime:           uint64(time.Now().UnixNano()),
		FrameIndex:           frameIndex,
		PredictedDisplayTime: float64(target.UnixNano()) / 1e9,
		HeadOrientation:      quatToArray(t.HeadOrientation),
		HeadPosition:         vecToArray(t.HeadPosition),
		LeftController:       controllerToWire(t.LeftController),
		RightController:      controllerToWire(t.RightController),
	}
}

func controllerToWire(c device.Controller) wire.WireController {
	return wire.WireController{
		Enabled:         boolToUint8(c.Enabled),
		Flags:           uint32(c.Flags),
		Orientation:     quatToArray(c.Orientation),
		Position:        vecToArray(c.Position),
		AngularVelocity: vecToArray(c.AngularVelocity),
		LinearVelocity:  vecToArray(c.LinearVelocity),
		TriggerValue:    c.TriggerValue,
		GripValue:       c.GripValue,
		ThumbstickX:     c.ThumbstickX,
		ThumbstickY:     c.ThumbstickY,
		Buttons:         c.Buttons,
	}
}

func quatToArray(q device.Quaternion) [4]float32 {
	return [4]float32{q.X, q.Y, q.Z, q.W}
}

func vecToArray(v device.Vector3) [3]float32 {
	return [3]float32{v.X, v.Y, v.Z}
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
