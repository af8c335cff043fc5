package orchestrator

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/alvr-go/headset-client/internal/coreapi"
	"github.com/alvr-go/headset-client/internal/wire"
)

// StreamProtocol selects the transport the media socket dials, mirroring
// the `connection.stream_protocol` setting.
type StreamProtocol int

const (
	StreamProtocolUDP StreamProtocol = iota
	StreamProtocolTCP
)

func ParseStreamProtocol(s string) StreamProtocol {
	if s == "tcp" {
		return StreamProtocolTCP
	}
	return StreamProtocolUDP
}

// mediaReadBufferSize is sized comfortably above MaxLegacyPacketSize so a
// single ReadFromUDP never truncates a datagram.
const mediaReadBufferSize = 2048

// MediaSocket carries the four logical sub-streams (video, audio,
// haptics, input) plus the legacy time-sync repack bridge described in
// spec §4.3, multiplexed over one transport the way the original client's
// legacy stream did: every datagram is self-describing via its leading
// packet_type (see internal/wire), so one socket suffices instead of
// separate per-stream connections.
type MediaSocket struct {
	protocol StreamProtocol

	udpConn   *net.UDPConn
	udpRemote *net.UDPAddr

	tcpConn net.Conn
	tcpMu   sync.Mutex // serializes writes; TCP has no per-datagram framing of its own
}

// DialTimeout bounds how long Dial waits to establish the media socket,
// matching spec §4.1 step 5's 5-second accept_from_server race.
var DialTimeout = 5 * time.Second

// Dial opens the media socket to the server, racing against ctx's
// deadline (the caller is expected to have applied DialTimeout). For UDP
// this just creates a connected datagram socket — there is no handshake
// at this layer, the server starts accepting our packets as soon as
// StreamReady was sent over the control channel. For TCP this performs an
// actual connect, which IS the "accept_from_server" race: a server that
// never accepts leaves the dial blocked until ctx's deadline fires.
func Dial(ctx context.Context, serverIP net.IP, port int, protocol StreamProtocol) (*MediaSocket, error) {
	addr := net.JoinHostPort(serverIP.String(), fmt.Sprintf("%d", port))

	switch protocol {
	case StreamProtocolTCP:
		dialer := &net.Dialer{}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			if ctx.Err() != nil {
				return nil, coreapi.NewConnectionError(coreapi.ErrKindTimeout, err)
			}
			return nil, fmt.Errorf("orchestrator: dial tcp media socket: %w", err)
		}
		return &MediaSocket{protocol: protocol, tcpConn: conn}, nil
	default:
		remote, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: resolve udp media address: %w", err)
		}
		conn, err := net.DialUDP("udp", nil, remote)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: dial udp media socket: %w", err)
		}
		return &MediaSocket{protocol: protocol, udpConn: conn, udpRemote: remote}, nil
	}
}

func (s *MediaSocket) Close() error {
	if s.udpConn != nil {
		return s.udpConn.Close()
	}
	if s.tcpConn != nil {
		return s.tcpConn.Close()
	}
	return nil
}

// Send writes one legacy wire packet (already including its leading
// packet_type) to the media socket.
func (s *MediaSocket) Send(raw []byte) error {
	switch s.protocol {
	case StreamProtocolTCP:
		return s.sendTCP(raw)
	default:
		_, err := s.udpConn.Write(raw)
		return err
	}
}

func (s *MediaSocket) sendTCP(raw []byte) error {
	s.tcpMu.Lock()
	defer s.tcpMu.Unlock()

	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(raw)))
	if _, err := s.tcpConn.Write(header); err != nil {
		return err
	}
	_, err := s.tcpConn.Write(raw)
	return err
}

// SendTracking implements controlplane.TrackingSender.
func (s *MediaSocket) SendTracking(t wire.TrackingInfo) error {
	data, err := wire.Marshal(t)
	if err != nil {
		return fmt.Errorf("orchestrator: marshal tracking info: %w", err)
	}
	return s.Send(data)
}

// SendTimeSync implements mediaplane.Sender.
func (s *MediaSocket) SendTimeSync(ts wire.TimeSync) error {
	data, err := wire.Marshal(ts)
	if err != nil {
		return fmt.Errorf("orchestrator: marshal time sync: %w", err)
	}
	return s.Send(data)
}

// SendPacketErrorReport implements mediaplane.Sender.
func (s *MediaSocket) SendPacketErrorReport(per wire.PacketErrorReport) error {
	data, err := wire.Marshal(per)
	if err != nil {
		return fmt.Errorf("orchestrator: marshal packet error report: %w", err)
	}
	return s.Send(data)
}

// SendAudio prefixes pcm with an AudioFrameHeader and writes it upstream,
// used by the microphone capture loop (see internal/audio).
func (s *MediaSocket) SendAudio(sequence uint64, pcm []byte) error {
	header, err := wire.Marshal(wire.AudioFrameHeader{PacketType: wire.PacketTypeAudioFrame, SequenceNumber: sequence})
	if err != nil {
		return fmt.Errorf("orchestrator: marshal audio header: %w", err)
	}
	return s.Send(append(header, pcm...))
}

// ReceivePump reads datagrams/frames until ctx is canceled or the socket
// errors, routing each one by its leading packet_type: video, time-sync,
// haptics, and packet-error-report frames go to legacyOut (consumed by
// internal/mediaplane.Receiver.HandlePacket, per spec §4.3's "fan into one
// unbounded channel"); audio frames are stripped of their header and
// pushed to audioOut for internal/audio.PlaybackLoop.
func (s *MediaSocket) ReceivePump(ctx context.Context, legacyOut chan<- []byte, audioOut chan<- []byte) error {
	errs := make(chan error, 1)
	go func() {
		errs <- s.readLoop(legacyOut, audioOut)
	}()

	select {
	case <-ctx.Done():
		s.Close()
		<-errs
		return ctx.Err()
	case err := <-errs:
		return err
	}
}

func (s *MediaSocket) readLoop(legacyOut chan<- []byte, audioOut chan<- []byte) error {
	for {
		raw, err := s.readFrame()
		if err != nil {
			return err
		}
		if len(raw) < 4 {
			continue
		}
		pktType, err := wire.PeekPacketType(raw)
		if err != nil {
			continue
		}
		if pktType == wire.PacketTypeAudioFrame {
			headerSize := 12 // packet_type(4) + sequence(8)
			if len(raw) <= headerSize {
				continue
			}
			audioOut <- raw[headerSize:]
			continue
		}
		legacyOut <- raw
	}
}

func (s *MediaSocket) readFrame() ([]byte, error) {
	if s.protocol == StreamProtocolTCP {
		header := make([]byte, 4)
		if _, err := io.ReadFull(s.tcpConn, header); err != nil {
			return nil, err
		}
		length := binary.LittleEndian.Uint32(header)
		if length == 0 || length > mediaReadBufferSize {
			return nil, fmt.Errorf("orchestrator: invalid media frame length %d", length)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(s.tcpConn, data); err != nil {
			return nil, err
		}
		return data, nil
	}

	buf := make([]byte, mediaReadBufferSize)
	n, err := s.udpConn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
