// Package fec reassembles a video frame from its Reed-Solomon-coded UDP
// shards, grounded on the original client's fec.rs FecQueue.
package fec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/reedsolomon"

	"github.com/alvr-go/headset-client/internal/wire"
)

// MaxShards is the hard ceiling on data+parity shards per frame: Reed-
// Solomon over GF(2^8) cannot exceed 255 total shards, and the original
// protocol further bounds it to 20 to keep per-frame reconstruction cheap
// on mobile hardware.
const MaxShards = 20

var videoFrameHeaderSize = binary.Size(wire.VideoFrameHeader{})

// MaxVideoBufferSize is the largest single-shard payload that still fits
// in one legacy media packet alongside its header.
var MaxVideoBufferSize = wire.MaxLegacyPacketSize - videoFrameHeaderSize

var (
	// ErrNoOp is returned by Reconstruct when the frame is already
	// complete — the caller should just call Frame() instead.
	ErrNoOp = errors.New("fec: frame already complete, nothing to reconstruct")
	// ErrNotEnoughParity is returned when fewer shards have arrived than
	// the data-shard count for at least one packet column, so even
	// perfect parity cannot yet recover the frame; the caller should wait
	// for more packets or request an IDR (see internal/controlplane).
	ErrNotEnoughParity = errors.New("fec: not enough shards received to reconstruct")
	// ErrReconstructFailed wraps a Reed-Solomon library failure.
	ErrReconstructFailed = errors.New("fec: reed-solomon reconstruction failed")
)

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// calculateParityShards mirrors fec.rs's calculate_parity_shards: the
// parity count is the data shard count scaled by the requested
// redundancy percentage, rounded up.
func calculateParityShards(dataShards, fecPercentage int) int {
	return (dataShards*fecPercentage + 99) / 100
}

// calculateFECShardPackets mirrors fec.rs's calculate_fec_shard_packets:
// it derives how many wire packets must be concatenated to form one
// Reed-Solomon shard ("row") so that the total shard count (rows) stays
// within MaxShards, per spec §4.4.1's shard_packets formula.
func calculateFECShardPackets(length, fecPercentage int) int {
	maxDataShards := ((MaxShards-2)*100 + 99 + fecPercentage) / (100 + fecPercentage)
	if maxDataShards < 1 {
		maxDataShards = 1
	}
	minBlockSize := ceilDiv(length, maxDataShards)
	shardPackets := ceilDiv(minBlockSize, MaxVideoBufferSize)
	if shardPackets < 1 {
		shardPackets = 1
	}
	return shardPackets
}

// Reassembler accumulates shards for one video frame at a time and
// reconstructs the frame once enough shards (or enough parity to cover
// the missing ones) have arrived. It is not safe for concurrent use; one
// Reassembler is owned by a single mediaplane receive loop.
//
// The wire layout is two-dimensional (spec §3/§4.4.1): a frame's data is
// split into totalDataShards Reed-Solomon rows of blockSize bytes each,
// and every row is itself split into shardPackets wire packets of
// MaxVideoBufferSize bytes (its "columns"). Reed-Solomon reconstruction
// runs independently per column — for packet-column pi, the pi-th
// MaxVideoBufferSize chunk of every row (data and parity) forms one RS
// codeword — rather than once over the whole frame, so a loss pattern
// that clusters in a few columns can still be recovered if any other
// columns are already complete.
type Reassembler struct {
	active        bool
	frameIndex    uint64
	frameByteSize int
	fecPercentage int

	shardPackets      int // columns per row
	blockSize         int // shardPackets * MaxVideoBufferSize
	totalDataShards   int // data rows
	totalParityShards int // parity rows
	totalShards       int // totalDataShards + totalParityShards

	firstPacketOfNextFrame uint32

	marks                [][]bool // marks[packetIndex][shardIndex], true = missing
	frameBuffer          []byte   // totalShards*blockSize arena, row-major by shard
	receivedDataShards   []int    // per packetIndex (column)
	receivedParityShards []int    // per packetIndex (column)
	recoveredPacket      []bool   // per packetIndex (column): this column's RS codeword is settled
	rsShards             [][]byte // scratch for reedsolomon.Reconstruct, length totalShards
	enc                  reedsolomon.Encoder

	recovered  bool // every column settled; Frame() is valid
	usedParity bool // at least one column needed an actual RS reconstruct this frame

	// transitionFailure reflects the most recent AddVideoPacket call: true
	// if it started a new frame and found the previous one unrecovered, or
	// detected a whole-frame loss by comparing the predicted and actual
	// starting packet counter (spec §4.4's two non-fatal FEC-failure
	// triggers). The packet that triggered the transition is still
	// recorded normally — this is a side signal, not an abort.
	transitionFailure bool
}

// NewReassembler returns an empty Reassembler, ready for the first packet
// of any frame.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// AddVideoPacket feeds one received shard packet's payload. A packet for a
// new frame index resets all in-progress state for the previous
// (presumably abandoned) frame — the legacy protocol has no notion of
// reassembling two frames concurrently.
func (r *Reassembler) AddVideoPacket(header wire.VideoFrameHeader, payload []byte) error {
	r.transitionFailure = false

	if r.active && r.recovered && header.VideoFrameIndex == r.frameIndex {
		return nil // duplicate of an already-fully-recovered frame
	}

	fecIndex := int(header.FecIndex)

	if !r.active || header.VideoFrameIndex != r.frameIndex {
		if err := r.startNewFrame(header, fecIndex); err != nil {
			return err
		}
	}

	if r.shardPackets == 0 || fecIndex < 0 {
		return fmt.Errorf("fec: invalid fec index %d", fecIndex)
	}
	shardIndex := fecIndex / r.shardPackets
	packetIndex := fecIndex % r.shardPackets
	if shardIndex < 0 || shardIndex >= r.totalShards || packetIndex < 0 || packetIndex >= r.shardPackets {
		return fmt.Errorf("fec: shard index %d out of range [0,%d)x[0,%d)", fecIndex, r.shardPackets, r.totalShards)
	}

	if !r.marks[packetIndex][shardIndex] {
		return nil // duplicate packet, already have this shard
	}
	r.marks[packetIndex][shardIndex] = false
	if shardIndex < r.totalDataShards {
		r.receivedDataShards[packetIndex]++
	} else {
		r.receivedParityShards[packetIndex]++
	}

	start := fecIndex * MaxVideoBufferSize
	n := copy(r.frameBuffer[start:], payload)
	for i := start + n; i < start+MaxVideoBufferSize; i++ {
		r.frameBuffer[i] = 0
	}

	return nil
}

// startNewFrame resets all per-frame state for header's video_frame_index
// and derives this frame's shard geometry (spec §4.4.1), mirroring
// fec.rs's new-frame branch of add_video_packet field-for-field: shard
// geometry, the 2-D marks bitmap (pre-marking never-transmitted padding
// packets as received), and the whole-frame-loss check against the
// previous frame's predicted first_packet_of_next_frame.
func (r *Reassembler) startNewFrame(header wire.VideoFrameHeader, fecIndex int) error {
	prevUnrecovered := r.active && !r.recovered

	r.frameIndex = header.VideoFrameIndex
	r.frameByteSize = int(header.FrameByteSize)
	r.fecPercentage = int(header.FecPercentage)
	r.recovered = false
	r.usedParity = false
	r.active = true

	r.shardPackets = calculateFECShardPackets(r.frameByteSize, r.fecPercentage)
	r.blockSize = r.shardPackets * MaxVideoBufferSize
	r.totalDataShards = ceilDiv(r.frameByteSize, r.blockSize)
	if r.totalDataShards < 1 {
		r.totalDataShards = 1
	}
	r.totalParityShards = calculateParityShards(r.totalDataShards, r.fecPercentage)
	r.totalShards = r.totalDataShards + r.totalParityShards

	r.recoveredPacket = make([]bool, r.shardPackets)
	r.receivedDataShards = make([]int, r.shardPackets)
	r.receivedParityShards = make([]int, r.shardPackets)
	r.rsShards = make([][]byte, r.totalShards)

	r.marks = make([][]bool, r.shardPackets)
	for i := range r.marks {
		r.marks[i] = make([]bool, r.totalShards)
		for j := range r.marks[i] {
			r.marks[i][j] = true
		}
	}

	requiredBufSize := r.totalShards * r.blockSize
	if len(r.frameBuffer) < requiredBufSize {
		r.frameBuffer = make([]byte, requiredBufSize)
	}

	// Padding packets (rounding the frame up to a whole number of
	// shardPackets-sized rows) are never transmitted, so pre-mark them
	// received. They are the trailing columns of the last data row, so
	// they are marked in bitmap row totalDataShards-1 and counted against
	// receivedDataShards.
	fecDataPackets := ceilDiv(r.frameByteSize, MaxVideoBufferSize)
	padding := (r.shardPackets - fecDataPackets%r.shardPackets) % r.shardPackets
	for i := 0; i < padding; i++ {
		r.marks[r.shardPackets-i-1][r.totalDataShards-1] = false
		r.receivedDataShards[r.shardPackets-i-1]++
	}

	// Whole-frame-loss detection: compare this frame's actual starting
	// packet counter against what the previous frame's layout predicted.
	packetCounter := int(header.PacketCounter)
	var startPacket, nextStartPacket int
	if fecIndex/r.shardPackets < r.totalDataShards {
		startPacket = packetCounter - fecIndex
		nextStartPacket = startPacket + r.totalShards*r.shardPackets - padding
	} else {
		startPacket = packetCounter - (fecIndex - padding)
		startOfParityPacket := packetCounter - (fecIndex - r.totalDataShards*r.shardPackets)
		nextStartPacket = startOfParityPacket + r.totalParityShards*r.shardPackets
	}

	wholeFrameLoss := r.firstPacketOfNextFrame != 0 && r.firstPacketOfNextFrame != uint32(startPacket)
	r.firstPacketOfNextFrame = uint32(nextStartPacket)
	r.transitionFailure = prevUnrecovered || wholeFrameLoss

	enc, err := reedsolomon.New(r.totalDataShards, r.totalParityShards)
	if err != nil {
		return fmt.Errorf("fec: construct reed-solomon coder: %w", err)
	}
	r.enc = enc
	return nil
}

// TransitionFailure reports whether the most recent AddVideoPacket call
// started a new frame and found either the previous frame unrecovered or
// a whole-frame loss (spec §4.4's two non-fatal FEC-failure triggers).
// The triggering packet is still recorded; this is a side signal for the
// caller's fec_failure telemetry, not an error.
func (r *Reassembler) TransitionFailure() bool { return r.transitionFailure }

// FrameIndex returns the video frame index currently being assembled.
func (r *Reassembler) FrameIndex() uint64 { return r.frameIndex }

// Complete reports whether every data shard (every column, for every data
// row) has arrived directly, so Frame() can be called without first
// calling Reconstruct().
func (r *Reassembler) Complete() bool {
	if !r.active {
		return false
	}
	for _, n := range r.receivedDataShards {
		if n != r.totalDataShards {
			return false
		}
	}
	return true
}

// Reconstruct runs Reed-Solomon recovery independently over each packet
// column that isn't already fully received. It returns ErrNoOp if the
// frame was already complete, ErrNotEnoughParity if at least one column
// still has too few shards to recover even with full parity, or
// ErrReconstructFailed if the library itself rejects a column's shard set.
func (r *Reassembler) Reconstruct() error {
	if !r.active {
		return ErrNotEnoughParity
	}
	if r.recovered {
		return ErrNoOp
	}
	if r.Complete() {
		r.recovered = true
		return ErrNoOp
	}

	allColumnsReady := true
	for pi := 0; pi < r.shardPackets; pi++ {
		if r.recoveredPacket[pi] {
			continue
		}
		if r.receivedDataShards[pi] == r.totalDataShards {
			// This column's data arrived directly; no FEC needed.
			r.recoveredPacket[pi] = true
			continue
		}

		have := r.receivedDataShards[pi] + r.receivedParityShards[pi]
		if have < r.totalDataShards {
			allColumnsReady = false
			continue
		}

		for row := 0; row < r.totalShards; row++ {
			fecIndex := row*r.shardPackets + pi
			start := fecIndex * MaxVideoBufferSize
			if r.marks[pi][row] {
				r.rsShards[row] = nil
			} else {
				r.rsShards[row] = r.frameBuffer[start : start+MaxVideoBufferSize]
			}
		}

		if err := r.enc.Reconstruct(r.rsShards); err != nil {
			return fmt.Errorf("%w: %v", ErrReconstructFailed, err)
		}

		for row := 0; row < r.totalDataShards; row++ {
			if !r.marks[pi][row] {
				continue
			}
			fecIndex := row*r.shardPackets + pi
			start := fecIndex * MaxVideoBufferSize
			copy(r.frameBuffer[start:start+MaxVideoBufferSize], r.rsShards[row])
		}

		r.recoveredPacket[pi] = true
		r.usedParity = true
	}

	if !allColumnsReady {
		return ErrNotEnoughParity
	}
	r.recovered = true
	return nil
}

// Recovered reports whether reassembling the current frame actually
// needed Reed-Solomon parity for at least one packet column, as opposed
// to every column's data shards simply arriving intact.
func (r *Reassembler) Recovered() bool { return r.usedParity }

// Frame returns the reassembled frame bytes. Callers must ensure Complete
// returns true, or Reconstruct returned nil, before calling this. Frame
// data lives row-major by data shard (each blockSize bytes), so the first
// frameByteSize bytes of the arena are exactly the original payload plus
// any trailing zero padding truncated away.
func (r *Reassembler) Frame() []byte {
	out := make([]byte, r.frameByteSize)
	copy(out, r.frameBuffer[:r.frameByteSize])
	return out
}
