// Package handshake drives a headset from "no known server" to an open,
// authenticated control connection with a negotiated session description.
// Grounded on the original client's top-level connect() function in
// connection.rs: locate the server by broadcast discovery (no direct
// control-connect retry loop runs alongside it), then exchange
// HeadsetInfo/ClientConfig and wait for the server to say StartStream.
package handshake

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/alvr-go/headset-client/internal/coreapi"
	"github.com/alvr-go/headset-client/internal/device"
	"github.com/alvr-go/headset-client/internal/discovery"
	"github.com/alvr-go/headset-client/internal/identity"
	"github.com/alvr-go/headset-client/internal/logging"
	"github.com/alvr-go/headset-client/internal/wire"
)

var log = logging.L("handshake")

// ProtocolVersion is bumped whenever the wire packet layouts in
// internal/wire change incompatibly.
const ProtocolVersion uint32 = 20

const (
	controlConnectRetryPause = 500 * time.Millisecond
	controlDialTimeout       = 5 * time.Second
	initialBackoff           = 1 * time.Second
	maxBackoff               = 30 * time.Second
	backoffFactor            = 2.0
	jitterFactor             = 0.3
)

// Config carries the handshake's externally configurable knobs.
type Config struct {
	Hostname      string
	DiscoveryPort int
	ControlPort   int
	TLSConfig     *tls.Config // nil if identity has no certificate configured
}

// Session is the result of a completed handshake: an open control
// connection and the session settings the server supplied.
type Session struct {
	Conn     *wire.ControlConn
	ServerIP net.IP
	Settings coreapi.ConnectionSettings
}

// ErrAlreadyConnected names the "session already open" condition. Connect
// keeps no session state and never returns it; overlapping sessions are
// rejected one layer up by orchestrator.Connect with ErrAlreadyRunning.
var ErrAlreadyConnected = fmt.Errorf("handshake: a session is already connected")

// Connect drives the full handshake sequence and blocks until either a
// Session is ready or ctx is canceled.
func Connect(ctx context.Context, cfg Config, dev device.Device, id *identity.Identity) (*Session, error) {
	serverIP, err := locateServer(ctx, cfg, dev, id)
	if err != nil {
		return nil, err
	}

	conn, err := dialControl(ctx, serverIP, cfg)
	if err != nil {
		return nil, err
	}

	return negotiate(ctx, conn, serverIP, cfg, dev, id)
}

// locateServer finds the server through UDP broadcast discovery and
// returns the address that answered. Discovery is the only path: no direct
// control-connect retry loop races it (controlConnectRetryPause is unused),
// so a server is found only once it replies to a broadcast.
func locateServer(ctx context.Context, cfg Config, dev device.Device, id *identity.Identity) (net.IP, error) {
	type result struct {
		ip  net.IP
		err error
	}
	results := make(chan result, 2)

	discoverCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		packet := discovery.ClientHandshakePacket{
			AlvrName:   "ALVR",
			Version:    fmt.Sprintf("%d", ProtocolVersion),
			DeviceName: dev.Name,
			Hostname:   cfg.Hostname,
		}
		resp, err := discovery.Discover(discoverCtx, cfg.DiscoveryPort, packet)
		if err != nil {
			results <- result{err: fmt.Errorf("discovery: %w", err)}
			return
		}
		switch resp.Kind {
		case discovery.ServerClientUntrusted:
			results <- result{err: coreapi.NewConnectionError(coreapi.ErrKindClientUntrusted, nil)}
		case discovery.ServerIncompatibleVersions:
			results <- result{err: coreapi.NewConnectionError(coreapi.ErrKindIncompatibleVersions, nil)}
		default:
			results <- result{ip: resp.ServerIP}
		}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		return res.ip, res.err
	}
}

// dialControl opens a TCP control connection to serverIP, retrying with
// jittered exponential backoff (the same shape the teacher's websocket
// client uses for its reconnect loop) until ctx is canceled.
func dialControl(ctx context.Context, serverIP net.IP, cfg Config) (net.Conn, error) {
	addr := net.JoinHostPort(serverIP.String(), fmt.Sprintf("%d", cfg.ControlPort))
	backoff := initialBackoff

	for {
		dialer := &net.Dialer{Timeout: controlDialTimeout}
		var conn net.Conn
		var err error
		if cfg.TLSConfig != nil {
			conn, err = tls.DialWithDialer(dialer, "tcp", addr, cfg.TLSConfig)
		} else {
			conn, err = dialer.DialContext(ctx, "tcp", addr)
		}
		if err == nil {
			return conn, nil
		}

		log.Warn("control connect failed, retrying", "server", addr, "error", err)

		jitter := time.Duration(float64(backoff) * jitterFactor * (rand.Float64()*2 - 1))
		sleep := backoff + jitter
		if sleep < 0 {
			sleep = backoff
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}

		backoff = time.Duration(float64(backoff) * backoffFactor)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// negotiate performs the HeadsetInfo/ClientConfig/StartStream exchange
// over an already-open control connection.
func negotiate(ctx context.Context, rawConn net.Conn, serverIP net.IP, cfg Config, dev device.Device, id *identity.Identity) (*Session, error) {
	conn := wire.NewControlConn(rawConn)

	info := wire.HeadsetInfo{
		Hostname:        cfg.Hostname,
		Device:          dev,
		ProtocolVersion: ProtocolVersion,
	}
	if err := conn.SendTyped(wire.TypeHeadsetInfo, info); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send headset info: %w", err)
	}

	for {
		env, err := recvWithDeadline(ctx, conn)
		if err != nil {
			conn.Close()
			return nil, err
		}

		switch env.Type {
		case wire.TypeClientConfig:
			// A ClientConfig merge is handled by internal/orchestrator once
			// the session is open; here we just acknowledge by waiting for
			// the following StartStream.
			continue
		case wire.TypeStartStream:
			var start wire.StartStream
			if err := json.Unmarshal(env.Payload, &start); err != nil {
				conn.Close()
				return nil, fmt.Errorf("decode start_stream: %w", err)
			}
			if err := conn.SendTyped(wire.TypeStreamReady, wire.StreamReady{}); err != nil {
				conn.Close()
				return nil, fmt.Errorf("send stream_ready: %w", err)
			}
			return &Session{Conn: conn, ServerIP: serverIP, Settings: start.Settings}, nil
		case wire.TypeRestarting:
			conn.Close()
			return nil, coreapi.NewConnectionError(coreapi.ErrKindSessionDesyncDisconnected, fmt.Errorf("server restarting during handshake"))
		case wire.TypeShutdown:
			conn.Close()
			return nil, coreapi.NewConnectionError(coreapi.ErrKindHandshakeRejected, fmt.Errorf("server requested shutdown during handshake"))
		default:
			log.Debug("ignoring unexpected message during handshake", "type", env.Type)
		}
	}
}

func recvWithDeadline(ctx context.Context, conn *wire.ControlConn) (*wire.Envelope, error) {
	type result struct {
		env *wire.Envelope
		err error
	}
	results := make(chan result, 1)
	go func() {
		env, err := conn.Recv()
		results <- result{env: env, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.err != nil {
			return nil, fmt.Errorf("recv control message: %w", res.err)
		}
		return res.env, nil
	}
}
