// Package mediaplane demultiplexes the legacy media-socket datagram stream
// into video, time-sync, and haptics handling, reassembling video frames
// through internal/fec and splitting them into NAL units through
// internal/nal for internal/decodercoord. Grounded on the original
// client's legacy_stream.rs StreamHandler.
package mediaplane

import (
	"time"

	"github.com/alvr-go/headset-client/internal/coreapi"
	"github.com/alvr-go/headset-client/internal/decodercoord"
	"github.com/alvr-go/headset-client/internal/fec"
	"github.com/alvr-go/headset-client/internal/latency"
	"github.com/alvr-go/headset-client/internal/logging"
	"github.com/alvr-go/headset-client/internal/nal"
	"github.com/alvr-go/headset-client/internal/wire"
)

var log = logging.L("mediaplane")

// HapticsSink is implemented by whatever drives controller haptic motors.
type HapticsSink interface {
	OnHaptics(pkt wire.HapticsFeedback)
}

// Sender is implemented by whatever owns the outbound side of the media
// socket, used to answer time-sync echoes and packet-loss reports.
type Sender interface {
	SendTimeSync(wire.TimeSync) error
	SendPacketErrorReport(wire.PacketErrorReport) error
}

// Receiver demultiplexes legacy media-socket datagrams for one session.
// Not safe for concurrent use: a single goroutine should own the media
// socket's read loop and call HandlePacket for every datagram in order.
type Receiver struct {
	sender Sender
	lat    *latency.Controller
	coord  *decodercoord.Coordinator
	haptic HapticsSink

	reassembler *fec.Reassembler
	nalParser   *nal.Parser

	clockDiffUs        int64
	lastTrackingIndex  uint64
	prevVideoSequence  uint32
	fecFailureActive   bool

	onFecFailure func()
}

// OnFecFailure registers a callback invoked whenever FEC reconstruction
// fails (the IDR-request notifier source (c) in spec §4.7). Pass nil to
// clear it.
func (r *Receiver) OnFecFailure(fn func()) {
	r.onFecFailure = fn
}

// New builds a Receiver for one session. codec selects the NAL
// classification rules the video frames were encoded with.
func New(sender Sender, lat *latency.Controller, coord *decodercoord.Coordinator, haptic HapticsSink, codec coreapi.Codec) *Receiver {
	nalCodec := nal.CodecH264
	if codec == coreapi.CodecH265 {
		nalCodec = nal.CodecH265
	}

	r := &Receiver{
		sender:      sender,
		lat:         lat,
		coord:       coord,
		haptic:      haptic,
		reassembler: fec.NewReassembler(),
	}
	r.nalParser = nal.NewParser(nalCodec, r.onNAL)
	return r
}

func (r *Receiver) onNAL(frameIndex uint64, nalType nal.Type, data []byte) {
	if r.coord != nil {
		r.coord.Queue(frameIndex, nalType, data)
	}
}

// HandlePacket dispatches one legacy media-socket datagram by its leading
// packet type tag.
func (r *Receiver) HandlePacket(raw []byte) {
	pktType, err := wire.PeekPacketType(raw)
	if err != nil {
		log.Debug("dropping undersized media packet", "error", err)
		return
	}

	switch pktType {
	case wire.PacketTypeVideoFrame:
		r.handleVideoFrame(raw)
	case wire.PacketTypeTimeSync:
		r.handleTimeSync(raw)
	case wire.PacketTypeHapticsFeedback:
		r.handleHaptics(raw)
	default:
		log.Debug("ignoring unknown media packet type", "type", pktType)
	}
}

func (r *Receiver) handleVideoFrame(raw []byte) {
	var header wire.VideoFrameHeader
	payload, err := wire.Unmarshal(raw, &header)
	if err != nil {
		log.Warn("malformed video frame header", "error", err)
		return
	}

	if r.lastTrackingIndex != header.TrackingFrameIndex {
		r.recordEstimatedSent(header)
		r.lastTrackingIndex = header.TrackingFrameIndex
	}

	r.checkVideoSequence(header.PacketCounter)

	if err := r.reassembler.AddVideoPacket(header, payload); err != nil {
		log.Debug("dropping video shard", "error", err)
		return
	}
	if r.reassembler.TransitionFailure() {
		r.setFecFailure(true, header.PacketCounter)
	}

	if !r.reassembler.Complete() {
		if err := r.reassembler.Reconstruct(); err != nil {
			if err == fec.ErrNotEnoughParity {
				return // wait for more shards of this frame
			}
			if err != fec.ErrNoOp {
				log.Warn("fec reconstruct failed", "error", err)
				r.setFecFailure(true, header.PacketCounter)
				return
			}
		}
	}

	r.setFecFailure(false, header.PacketCounter)

	frame := r.reassembler.Frame()
	if r.lat != nil {
		r.lat.Record(latency.Action{FrameIndex: header.TrackingFrameIndex, Kind: latency.ActionReceivedLast, Time: time.Now()})
	}
	r.nalParser.Push(frame)
	r.nalParser.Flush(header.TrackingFrameIndex)
}

func (r *Receiver) recordEstimatedSent(header wire.VideoFrameHeader) {
	if r.lat == nil {
		return
	}
	r.lat.Record(latency.Action{FrameIndex: header.TrackingFrameIndex, Kind: latency.ActionReceivedFirst, Time: time.Now()})

	sentUs := int64(header.SentTime)/1000 - r.clockDiffUs
	nowUs := time.Now().UnixMicro()
	estimatedSentAt := time.Now()
	if sentUs < nowUs {
		estimatedSentAt = time.UnixMicro(sentUs)
	}
	r.lat.Record(latency.Action{FrameIndex: header.TrackingFrameIndex, Kind: latency.ActionEstimatedSent, Time: estimatedSentAt})
}

func (r *Receiver) checkVideoSequence(sequence uint32) {
	expected := r.prevVideoSequence + 1
	if r.prevVideoSequence != 0 && expected != sequence {
		lost := sequence - expected
		if sequence < expected {
			lost = expected - sequence
		}
		if r.lat != nil {
			for i := uint32(0); i < lost; i++ {
				r.lat.RecordPacketLoss()
			}
		}
		log.Warn("video packet loss detected", "lost", lost, "expected", expected, "got", sequence)
	}
	r.prevVideoSequence = sequence
}

func (r *Receiver) setFecFailure(active bool, packetCounter uint32) {
	if active == r.fecFailureActive {
		return
	}
	r.fecFailureActive = active
	if active {
		if r.lat != nil {
			r.lat.RecordFecFailure()
		}
		if r.sender != nil {
			r.sender.SendPacketErrorReport(wire.PacketErrorReport{
				PacketType:        wire.PacketTypePacketErrorReport,
				LostFrameType:     wire.LostFrameTypeVideo,
				FromPacketCounter: r.prevVideoSequence + 1,
				ToPacketCounter:   packetCounter,
			})
		}
		if r.onFecFailure != nil {
			r.onFecFailure()
		}
	}
}

func (r *Receiver) handleTimeSync(raw []byte) {
	var ts wire.TimeSync
	if _, err := wire.Unmarshal(raw, &ts); err != nil {
		log.Warn("malformed time sync packet", "error", err)
		return
	}

	nowUs := time.Now().UnixMicro()
	switch ts.Mode {
	case wire.TimeSyncModeServerReply:
		rtt := nowUs - int64(ts.ClientTime)
		r.clockDiffUs = int64(ts.ServerTime)/1000 + rtt/2 - nowUs
		ts.Mode = wire.TimeSyncModeClientEcho
		ts.ClientTime = uint64(nowUs)
		if r.sender != nil {
			r.sender.SendTimeSync(ts)
		}
	case wire.TimeSyncModeServerPing:
		if r.lat != nil {
			r.lat.Record(latency.Action{
				FrameIndex: ts.TrackingRecvFrameIndex,
				Kind:       latency.ActionReceived,
				Time:       time.UnixMicro(int64(ts.ServerTime) / 1000),
			})
		}
	}
}

func (r *Receiver) handleHaptics(raw []byte) {
	var h wire.HapticsFeedback
	if _, err := wire.Unmarshal(raw, &h); err != nil {
		log.Warn("malformed haptics packet", "error", err)
		return
	}
	if r.haptic != nil {
		r.haptic.OnHaptics(h)
	}
}
