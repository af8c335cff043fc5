package fec

import (
	"bytes"
	"testing"

	"github.com/klauspost/reedsolomon"

	"github.com/alvr-go/headset-client/internal/wire"
)

// frameGeometry mirrors startNewFrame's derivation so tests can build
// fixtures without duplicating magic numbers.
type frameGeometry struct {
	shardPackets, blockSize, totalDataShards, totalParityShards, totalShards int
}

func geometryFor(frameByteSize, fecPercentage int) frameGeometry {
	shardPackets := calculateFECShardPackets(frameByteSize, fecPercentage)
	blockSize := shardPackets * MaxVideoBufferSize
	totalDataShards := ceilDiv(frameByteSize, blockSize)
	if totalDataShards < 1 {
		totalDataShards = 1
	}
	totalParityShards := calculateParityShards(totalDataShards, fecPercentage)
	return frameGeometry{
		shardPackets:      shardPackets,
		blockSize:         blockSize,
		totalDataShards:   totalDataShards,
		totalParityShards: totalParityShards,
		totalShards:       totalDataShards + totalParityShards,
	}
}

// encodeFrame splits frameData into the same two-dimensional shard/column
// layout a server would produce, RS-encoding every packet column
// independently, for use as test fixtures. The returned packets slice is
// indexed by fecIndex (row*shardPackets + column), matching the wire
// protocol's FecIndex field.
func encodeFrame(t *testing.T, frameData []byte, fecPercentage int) (wire.VideoFrameHeader, frameGeometry, [][]byte) {
	t.Helper()

	g := geometryFor(len(frameData), fecPercentage)
	arena := make([]byte, g.totalShards*g.blockSize)
	copy(arena, frameData)

	enc, err := reedsolomon.New(g.totalDataShards, g.totalParityShards)
	if err != nil {
		t.Fatalf("reedsolomon.New: %v", err)
	}

	rsShards := make([][]byte, g.totalShards)
	for pi := 0; pi < g.shardPackets; pi++ {
		for row := 0; row < g.totalShards; row++ {
			start := row*g.blockSize + pi*MaxVideoBufferSize
			rsShards[row] = arena[start : start+MaxVideoBufferSize]
		}
		if err := enc.Encode(rsShards); err != nil {
			t.Fatalf("encode column %d: %v", pi, err)
		}
	}

	packets := make([][]byte, g.totalShards*g.shardPackets)
	for row := 0; row < g.totalShards; row++ {
		for pi := 0; pi < g.shardPackets; pi++ {
			fecIndex := row*g.shardPackets + pi
			start := row*g.blockSize + pi*MaxVideoBufferSize
			packets[fecIndex] = arena[start : start+MaxVideoBufferSize]
		}
	}

	header := wire.VideoFrameHeader{
		PacketType:      wire.PacketTypeVideoFrame,
		VideoFrameIndex: 1,
		FrameByteSize:   uint32(len(frameData)),
		FecPercentage:   uint32(fecPercentage),
	}
	return header, g, packets
}

func addAll(t *testing.T, r *Reassembler, header wire.VideoFrameHeader, packets [][]byte, indices []int) {
	t.Helper()
	for _, i := range indices {
		h := header
		h.FecIndex = uint32(i)
		h.PacketCounter = uint32(i + 1)
		if err := r.AddVideoPacket(h, packets[i]); err != nil {
			t.Fatalf("AddVideoPacket(%d): %v", i, err)
		}
	}
}

func TestReassemblerCompleteWithAllDataShards(t *testing.T) {
	frameData := bytes.Repeat([]byte{0xAB}, 5000)
	header, g, packets := encodeFrame(t, frameData, 20)

	r := NewReassembler()
	indices := make([]int, 0, g.totalDataShards*g.shardPackets)
	for row := 0; row < g.totalDataShards; row++ {
		for pi := 0; pi < g.shardPackets; pi++ {
			indices = append(indices, row*g.shardPackets+pi)
		}
	}
	addAll(t, r, header, packets, indices)

	if !r.Complete() {
		t.Fatal("expected Complete() after all data shards received")
	}
	if got := r.Frame(); !bytes.Equal(got, frameData) {
		t.Fatalf("Frame() mismatch: got %d bytes, want %d bytes", len(got), len(frameData))
	}
	if r.Recovered() {
		t.Fatal("Recovered() should be false when no parity was needed")
	}
}

func TestReassemblerReconstructsFromParity(t *testing.T) {
	frameData := bytes.Repeat([]byte{0xCD}, 200000)
	header, g, packets := encodeFrame(t, frameData, 50)
	if g.totalParityShards < 1 {
		t.Fatalf("test fixture needs at least 1 parity shard, got %d", g.totalParityShards)
	}

	r := NewReassembler()
	// Drop the first data row entirely; deliver everything else, including
	// all parity rows, so every column can reconstruct its missing entry.
	indices := make([]int, 0, (g.totalShards-1)*g.shardPackets)
	for row := 1; row < g.totalShards; row++ {
		for pi := 0; pi < g.shardPackets; pi++ {
			indices = append(indices, row*g.shardPackets+pi)
		}
	}
	addAll(t, r, header, packets, indices)

	if r.Complete() {
		t.Fatal("expected incomplete frame before reconstruction")
	}
	if err := r.Reconstruct(); err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !r.Recovered() {
		t.Fatal("expected Recovered() to be true after parity-based reconstruction")
	}
	if got := r.Frame(); !bytes.Equal(got, frameData) {
		t.Fatal("reconstructed frame does not match original")
	}
}

func TestReassemblerNotEnoughParity(t *testing.T) {
	frameData := bytes.Repeat([]byte{0xEF}, 5000)
	header, _, packets := encodeFrame(t, frameData, 10)

	r := NewReassembler()
	h := header
	h.FecIndex = 0
	h.PacketCounter = 1
	if err := r.AddVideoPacket(h, packets[0]); err != nil {
		t.Fatalf("AddVideoPacket: %v", err)
	}

	if err := r.Reconstruct(); err != ErrNotEnoughParity {
		t.Fatalf("Reconstruct() error = %v, want ErrNotEnoughParity", err)
	}
}

func TestReassemblerTransitionFailureOnUnrecoveredFrame(t *testing.T) {
	frameData := bytes.Repeat([]byte{0x11}, 5000)
	header1, _, packets1 := encodeFrame(t, frameData, 20)

	r := NewReassembler()
	addAll(t, r, header1, packets1, []int{0})
	if r.TransitionFailure() {
		t.Fatal("first frame's first packet should not report a transition failure")
	}

	header2, _, packets2 := encodeFrame(t, frameData, 20)
	header2.VideoFrameIndex = 2
	h := header2
	h.FecIndex = 0
	h.PacketCounter = 1000
	// Frame 1 never reached Complete()/Reconstruct() before frame 2 starts,
	// so this transition must be flagged even though no packets were lost
	// in flight.
	if err := r.AddVideoPacket(h, packets2[0]); err != nil {
		t.Fatalf("AddVideoPacket: %v", err)
	}
	if !r.TransitionFailure() {
		t.Fatal("expected TransitionFailure() after an unrecovered frame transition")
	}
}

func TestCalculateParityShards(t *testing.T) {
	cases := []struct {
		dataShards, fecPercentage, want int
	}{
		{10, 0, 0},
		{10, 10, 1},
		{10, 100, 10},
	}
	for _, tc := range cases {
		if got := calculateParityShards(tc.dataShards, tc.fecPercentage); got != tc.want {
			t.Errorf("calculateParityShards(%d, %d) = %d, want %d", tc.dataShards, tc.fecPercentage, got, tc.want)
		}
	}
}

func TestCalculateFECShardPackets(t *testing.T) {
	if got := calculateFECShardPackets(5000, 20); got != 1 {
		t.Errorf("calculateFECShardPackets(5000, 20) = %d, want 1", got)
	}
	if got := calculateFECShardPackets(200000, 50); got <= 1 {
		t.Errorf("calculateFECShardPackets(200000, 50) = %d, want > 1", got)
	}
}
