// Package audio runs the game-audio playback and microphone capture loops
// that sit alongside the video/haptics pipeline. Grounded on the original
// client's audio.rs: when a direction is disabled in session settings, a
// no-op loop still owns the channel so the orchestrator's fan-out (see
// internal/orchestrator) has a uniform set of loops regardless of which
// audio features are negotiated.
package audio

import (
	"context"

	"github.com/alvr-go/headset-client/internal/coreapi"
	"github.com/alvr-go/headset-client/internal/logging"
)

var log = logging.L("audio")

// PlaybackLoop forwards decoded game-audio PCM packets to sink through a
// small jitter buffer: targetDepth is avgBufferingMs worth of packets at
// batchMs per packet, and while more than twice targetDepth packets are
// waiting (the one just received plus those still queued in packets) the
// oldest is dropped instead of written, so a sink that stalls briefly
// doesn't accumulate ever-growing latency.
func PlaybackLoop(ctx context.Context, sink coreapi.AudioSink, packets <-chan []byte, batchMs, avgBufferingMs int) error {
	targetDepth := targetDepthFor(batchMs, avgBufferingMs)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt, ok := <-packets:
			if !ok {
				return nil
			}
			backlog := len(packets) + 1
			if backlog > targetDepth*2 {
				log.Warn("game audio jitter buffer overrun, dropping packet", "backlog", backlog, "targetDepth", targetDepth)
				continue
			}
			if err := sink.Write(pkt); err != nil {
				return err
			}
		}
	}
}

func targetDepthFor(batchMs, avgBufferingMs int) int {
	if batchMs <= 0 {
		batchMs = 10
	}
	depth := avgBufferingMs / batchMs
	if depth < 1 {
		depth = 1
	}
	return depth
}

// PlaybackNopLoop drains the game-audio channel without ever writing to a
// sink, used when game audio is disabled in session settings. Ported from
// play_audio_loop_nop: the receiver must still be drained so the sender
// side (internal/orchestrator's media dispatch) never blocks on a full
// channel.
func PlaybackNopLoop(ctx context.Context, packets <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-packets:
			if !ok {
				return nil
			}
		}
	}
}

// CaptureLoop reads microphone PCM frames from source and hands each to
// send (the orchestrator's uplink transport), until ctx is canceled or
// either side errors.
func CaptureLoop(ctx context.Context, source coreapi.AudioSource, send func([]byte) error) error {
	done := ctx.Done()
	for {
		pcm, err := source.Read(done)
		if err != nil {
			return err
		}
		if err := send(pcm); err != nil {
			return err
		}
		select {
		case <-done:
			return ctx.Err()
		default:
		}
	}
}

// CaptureNopLoop blocks until ctx is canceled, used when the microphone is
// disabled. Ported from record_audio_loop_nop's future::pending().
func CaptureNopLoop(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
