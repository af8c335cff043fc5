package wire

import "testing"

func TestMarshalUnmarshalVideoFrameHeader(t *testing.T) {
	want := VideoFrameHeader{
		PacketType:         PacketTypeVideoFrame,
		PacketCounter:      42,
		TrackingFrameIndex: 1000,
		VideoFrameIndex:    999,
		SentTime:           123456789,
		FrameByteSize:      65536,
		FecIndex:           2,
		FecPercentage:      25,
	}

	data, err := Marshal(&want)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got VideoFrameHeader
	if _, err := Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != want {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestPeekPacketType(t *testing.T) {
	header := VideoFrameHeader{PacketType: PacketTypeVideoFrame}
	data, err := Marshal(&header)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := PeekPacketType(data)
	if err != nil {
		t.Fatalf("PeekPacketType: %v", err)
	}
	if got != PacketTypeVideoFrame {
		t.Fatalf("PeekPacketType() = %v, want %v", got, PacketTypeVideoFrame)
	}
}

func TestPeekPacketTypeTooShort(t *testing.T) {
	if _, err := PeekPacketType([]byte{1, 2}); err == nil {
		t.Fatal("expected error for short packet")
	}
}

func TestMarshalUnmarshalHapticsFeedback(t *testing.T) {
	want := HapticsFeedback{
		PacketType: PacketTypeHapticsFeedback,
		StartTime:  500,
		Amplitude:  0.75,
		Duration:   0.1,
		Frequency:  160,
		Hand:       1,
	}

	data, err := Marshal(&want)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got HapticsFeedback
	if _, err := Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != want {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestMarshalUnmarshalTimeSync(t *testing.T) {
	want := TimeSync{
		PacketType: PacketTypeTimeSync,
		Mode:       TimeSyncModeServerReply,
		Sequence:   7,
		ServerTime: 1111,
		ClientTime: 2222,
		Fps:        72.0,
	}

	data, err := Marshal(&want)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got TimeSync
	if _, err := Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != want {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, want)
	}
}
