package handshake

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alvr-go/headset-client/internal/coreapi"
	"github.com/alvr-go/headset-client/internal/device"
	"github.com/alvr-go/headset-client/internal/wire"
)

func TestNegotiateCompletesOnStartStream(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	serverDone := make(chan error, 1)
	go func() {
		sc := wire.NewControlConn(serverConn)
		defer serverConn.Close()

		env, err := sc.Recv()
		if err != nil {
			serverDone <- err
			return
		}
		if env.Type != wire.TypeHeadsetInfo {
			serverDone <- errUnexpected(env.Type)
			return
		}

		if err := sc.SendTyped(wire.TypeStartStream, wire.StartStream{
			Settings: coreapi.ConnectionSettings{Codec: coreapi.CodecH264, FecPercentage: 10},
		}); err != nil {
			serverDone <- err
			return
		}

		env, err = sc.Recv()
		if err != nil {
			serverDone <- err
			return
		}
		if env.Type != wire.TypeStreamReady {
			serverDone <- errUnexpected(env.Type)
			return
		}
		serverDone <- nil
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sess, err := negotiate(ctx, clientConn, net.IPv4(127, 0, 0, 1), Config{Hostname: "test-headset"}, device.Device{Name: "test"}, nil)
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if sess.Settings.Codec != coreapi.CodecH264 {
		t.Fatalf("Codec = %v, want CodecH264", sess.Settings.Codec)
	}
	if sess.Settings.FecPercentage != 10 {
		t.Fatalf("FecPercentage = %d, want 10", sess.Settings.FecPercentage)
	}

	if err := <-serverDone; err != nil {
		t.Fatalf("server side: %v", err)
	}
}

func TestNegotiateFailsOnShutdown(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go func() {
		sc := wire.NewControlConn(serverConn)
		defer serverConn.Close()
		sc.Recv() // headset_info
		sc.SendTyped(wire.TypeShutdown, wire.Shutdown{})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := negotiate(ctx, clientConn, net.IPv4(127, 0, 0, 1), Config{Hostname: "test-headset"}, device.Device{Name: "test"}, nil)
	if err == nil {
		t.Fatal("expected negotiate to fail on server shutdown")
	}
}

type errUnexpected string

func (e errUnexpected) Error() string { return "unexpected message type: " + string(e) }
