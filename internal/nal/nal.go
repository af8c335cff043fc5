// Package nal extracts H.264/H.265 NAL units from a reassembled video
// frame buffer (see internal/fec) and classifies them so the decoder
// coordinator (internal/decodercoord) knows which ones are parameter sets
// versus picture data. Grounded on the original client's nal.rs.
package nal

import "bytes"

// Codec selects which NAL unit type numbering to apply.
type Codec int

const (
	CodecH264 Codec = iota
	CodecH265
)

// Type classifies one NAL unit for decoder-buffer coordination purposes.
type Type int

const (
	TypeP Type = iota
	TypeSPS
	TypeIDR
)

func (t Type) String() string {
	switch t {
	case TypeSPS:
		return "sps"
	case TypeIDR:
		return "idr"
	default:
		return "p"
	}
}

const (
	h264NalTypeSPS = 7
	h264NalTypeIDR = 5
	h265NalTypeVPS = 32
	h265NalTypeIDRWRADL = 19
)

var startCode = []byte{0x00, 0x00, 0x01}

// DetectType classifies the NAL unit beginning at buf (buf must start with
// the 3-byte Annex B start code followed by at least two bytes of NAL
// header).
func DetectType(codec Codec, buf []byte) Type {
	if len(buf) < 5 {
		return TypeP
	}
	switch codec {
	case CodecH264:
		switch buf[3] & 0x1F {
		case h264NalTypeSPS:
			return TypeSPS
		case h264NalTypeIDR:
			return TypeIDR
		default:
			return TypeP
		}
	case CodecH265:
		switch (buf[3] >> 1) & 0x3F {
		case h265NalTypeVPS:
			return TypeSPS
		case h265NalTypeIDRWRADL:
			return TypeIDR
		default:
			return TypeP
		}
	default:
		return TypeP
	}
}

// findStartCodes returns the byte offset of every Annex B start code
// (00 00 01) in buf.
func findStartCodes(buf []byte) []int {
	var offsets []int
	for i := 0; ; {
		idx := bytes.Index(buf[i:], startCode)
		if idx < 0 {
			return offsets
		}
		offsets = append(offsets, i+idx)
		i += idx + len(startCode)
	}
}

// Callback receives one classified NAL unit (with its leading start code)
// extracted from a frame.
type Callback func(frameIndex uint64, nalType Type, data []byte)

// Parser accumulates a frame's bytes across one or more Push calls, then
// splits it into NAL units on Flush. A parameter-set frame
// (SPS/VPS + PPS + IDR concatenated, as the legacy encoder emits for an
// IDR access unit) is split into its parameter-set prefix and its IDR
// slice so the decoder coordinator can route them independently.
type Parser struct {
	codec    Codec
	callback Callback
	buf      []byte
}

// NewParser creates a Parser for the given codec. callback is invoked once
// per Flush call (for a non-parameter-set frame) or twice (parameter set
// + IDR slice).
func NewParser(codec Codec, callback Callback) *Parser {
	return &Parser{codec: codec, callback: callback}
}

// Push appends one packet's bytes to the in-progress frame buffer.
func (p *Parser) Push(data []byte) {
	p.buf = append(p.buf, data...)
}

// Flush classifies and dispatches the accumulated buffer as one frame's
// worth of NAL units, then resets the buffer for the next frame.
func (p *Parser) Flush(frameIndex uint64) {
	defer func() { p.buf = p.buf[:0] }()

	starts := findStartCodes(p.buf)
	if len(starts) == 0 {
		return
	}

	nalType := DetectType(p.codec, p.buf[starts[0]:])
	if nalType != TypeSPS {
		p.callback(frameIndex, nalType, p.buf)
		return
	}

	// A parameter-set frame is VPS?+SPS+PPS+IDR concatenated: H.264 needs
	// 3 start codes before the IDR slice (SPS, PPS, IDR); H.265 needs 4
	// (VPS, SPS, PPS, IDR).
	splitIdx := 2
	if p.codec == CodecH265 {
		splitIdx = 3
	}

	if len(starts) > splitIdx {
		p.callback(frameIndex, TypeSPS, p.buf[:starts[splitIdx]])
		p.callback(frameIndex, TypeIDR, p.buf[starts[splitIdx]:])
		return
	}
	p.callback(frameIndex, TypeSPS, p.buf)
}
