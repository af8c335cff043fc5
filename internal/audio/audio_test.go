package audio

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeSink struct {
	writes [][]byte
	err    error
}

func (f *fakeSink) Write(pcm []byte) error {
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, pcm)
	return nil
}

func TestPlaybackLoopForwardsPackets(t *testing.T) {
	sink := &fakeSink{}
	packets := make(chan []byte, 4)
	packets <- []byte{1, 2}
	packets <- []byte{3, 4}
	close(packets)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := PlaybackLoop(ctx, sink, packets, 10, 20); err != nil {
		t.Fatalf("PlaybackLoop returned %v", err)
	}
	if len(sink.writes) != 2 {
		t.Fatalf("expected 2 packets written, got %d", len(sink.writes))
	}
}

func TestPlaybackLoopPropagatesSinkError(t *testing.T) {
	wantErr := errors.New("device gone")
	sink := &fakeSink{err: wantErr}
	packets := make(chan []byte, 1)
	packets <- []byte{1}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := PlaybackLoop(ctx, sink, packets, 10, 20)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}

func TestPlaybackLoopDropsUnderSustainedOverrun(t *testing.T) {
	sink := &fakeSink{}
	packets := make(chan []byte, 32)
	for i := 0; i < 10; i++ {
		packets <- []byte{byte(i)}
	}
	close(packets)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := PlaybackLoop(ctx, sink, packets, 10, 10); err != nil {
		t.Fatalf("PlaybackLoop returned %v", err)
	}
	if len(sink.writes) == 0 {
		t.Fatal("expected at least some packets to be written")
	}
}

func TestPlaybackNopLoopDrainsWithoutBlocking(t *testing.T) {
	packets := make(chan []byte, 2)
	packets <- []byte{1}
	close(packets)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := PlaybackNopLoop(ctx, packets); err != nil {
		t.Fatalf("PlaybackNopLoop returned %v", err)
	}
}

func TestCaptureNopLoopBlocksUntilCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- CaptureNopLoop(ctx) }()

	select {
	case <-done:
		t.Fatal("CaptureNopLoop returned before cancellation")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("CaptureNopLoop did not return after cancellation")
	}
}

type fakeSource struct {
	frames [][]byte
	idx    int
}

func (f *fakeSource) Read(done <-chan struct{}) ([]byte, error) {
	if f.idx >= len(f.frames) {
		<-done
		return nil, context.Canceled
	}
	frame := f.frames[f.idx]
	f.idx++
	return frame, nil
}

func TestCaptureLoopSendsFrames(t *testing.T) {
	source := &fakeSource{frames: [][]byte{{1}, {2}}}
	var sent [][]byte

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := CaptureLoop(ctx, source, func(pcm []byte) error {
		sent = append(sent, pcm)
		if len(sent) == len(source.frames) {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(sent) != 2 {
		t.Fatalf("expected 2 frames sent, got %d", len(sent))
	}
}
