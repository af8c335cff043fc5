package controlplane

import (
	"context"
	"testing"
	"time"

	"github.com/alvr-go/headset-client/internal/device"
	"github.com/alvr-go/headset-client/internal/wire"
)

func TestSleepUntilAdvancesDeadlineWithoutDrift(t *testing.T) {
	deadline := time.Now().Add(10 * time.Millisecond)
	next, err := sleepUntil(context.Background(), deadline, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("sleepUntil: %v", err)
	}
	want := deadline.Add(20 * time.Millisecond)
	if !next.Equal(want) {
		t.Fatalf("next deadline = %v, want %v", next, want)
	}
}

func TestSleepUntilRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sleepUntil(ctx, time.Now().Add(time.Hour), time.Second)
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

type fakeTrackingSender struct {
	packets []wire.TrackingInfo
}

func (f *fakeTrackingSender) SendTracking(pkt wire.TrackingInfo) error {
	f.packets = append(f.packets, pkt)
	return nil
}

type fakeAdapter struct{}

func (fakeAdapter) GetDevice() device.Device { return device.Device{} }
func (fakeAdapter) GetTracking(target time.Time) device.Tracking {
	return device.Tracking{HeadOrientation: device.IdentityQuaternion, TargetTimestamp: target}
}
func (fakeAdapter) OnRendered(frameIndex uint64, renderedAt time.Time) {}

func TestTrackingLoopSendsAtExpectedRate(t *testing.T) {
	sender := &fakeTrackingSender{}
	cp := New(nil, sender, fakeAdapter{}, nil, 1000) // 1ms interval

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()

	err := cp.TrackingLoop(ctx)
	if err != context.DeadlineExceeded {
		t.Fatalf("TrackingLoop err = %v, want DeadlineExceeded", err)
	}
	if len(sender.packets) < 5 {
		t.Fatalf("expected at least 5 tracking packets sent in 15ms at 1kHz, got %d", len(sender.packets))
	}
	for i, pkt := range sender.packets {
		if pkt.FrameIndex != uint64(i+1) {
			t.Fatalf("packet %d FrameIndex = %d, want %d", i, pkt.FrameIndex, i+1)
		}
	}
}

func TestRequestIDRDoesNotBlockWhenFull(t *testing.T) {
	cp := New(nil, nil, nil, nil, 360)
	for i := 0; i < 10; i++ {
		cp.RequestIDR("test")
	}
	// Should not deadlock or panic; channel has capacity 4 and drops excess.
}
