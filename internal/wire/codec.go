package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// order is little-endian to match the original client's packed wire
// layout on its target (ARM/x86, both little-endian).
var order = binary.LittleEndian

// MaxLegacyPacketSize bounds a single UDP datagram on the legacy media
// socket; video frames larger than this are split across multiple
// FEC-coded shards by internal/fec.
const MaxLegacyPacketSize = 1400

// Marshal encodes one of the fixed-layout packet structs in this package
// into its bit-exact wire representation.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, order, v); err != nil {
		return nil, fmt.Errorf("wire: marshal %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes the fixed-layout header at the start of data into the
// packet struct pointed to by v (which must be a pointer to one of this
// package's packet types), and returns whatever bytes remain past the
// header — the video/audio frame payload that follows a fixed-size
// header on the legacy media socket (see internal/mediaplane).
func Unmarshal(data []byte, v any) ([]byte, error) {
	size := binary.Size(v)
	if err := binary.Read(bytes.NewReader(data), order, v); err != nil {
		return nil, fmt.Errorf("wire: unmarshal %T: %w", v, err)
	}
	if size < 0 || size > len(data) {
		return nil, nil
	}
	return data[size:], nil
}

// PeekPacketType reads just the leading packet_type field without
// decoding the rest of the packet, so a receiver can dispatch to the
// right struct before fully parsing (see internal/mediaplane).
func PeekPacketType(data []byte) (PacketType, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("wire: packet too short to contain a type (%d bytes)", len(data))
	}
	return PacketType(order.Uint32(data[:4])), nil
}
