// Package decodercoord pairs platform-supplied decoder input buffers with
// parsed NAL units in strict FIFO order, so a platform video decoder never
// sees payloads out of sequence. Grounded on the original client's
// buffer_queue.rs; the dedicated single-worker pool that used to be a
// spawn_blocking task bridging a non-Send JNI handle into async code is
// realized here with internal/workerpool sized to exactly one worker,
// which gives the same "pairing always happens on one serialized
// goroutine" property without needing a separate mutex.
package decodercoord

import (
	"context"
	"log/slog"
	"time"

	"github.com/alvr-go/headset-client/internal/coreapi"
	"github.com/alvr-go/headset-client/internal/logging"
	"github.com/alvr-go/headset-client/internal/nal"
	"github.com/alvr-go/headset-client/internal/workerpool"
)

var log = logging.L("decodercoord")

type queuedNAL struct {
	frameIndex uint64
	data       []byte
	nalType    nal.Type
}

// Coordinator serializes decoder input buffer supply and parsed NAL
// arrival through a single worker goroutine, pairing them FIFO and
// invoking consumer.Fill for each pair.
type Coordinator struct {
	pool       *workerpool.Pool
	consumer   coreapi.Consumer
	queueLimit int

	// Only ever touched by the pool's single worker goroutine.
	waitingBuffers []coreapi.InputBuffer
	pendingNALs    []queuedNAL
	idrParsed      bool

	log *slog.Logger
}

// NewCoordinator creates a Coordinator. queueLimit bounds the pending-NAL
// backlog so a consumer that stops pulling buffers (e.g. a stalled
// platform decoder) cannot grow memory unbounded; the oldest unpaired NAL
// is dropped instead.
func NewCoordinator(consumer coreapi.Consumer, queueLimit int) *Coordinator {
	if queueLimit < 1 {
		queueLimit = 1
	}
	return &Coordinator{
		pool:       workerpool.New(1, queueLimit*4),
		consumer:   consumer,
		queueLimit: queueLimit,
		log:        log,
	}
}

// SubmitInputBuffer supplies one decoder input buffer the platform has
// made available. It is paired with the next pending NAL unit, or held
// until one arrives.
func (co *Coordinator) SubmitInputBuffer(buf coreapi.InputBuffer) bool {
	return co.pool.Submit(func() {
		co.waitingBuffers = append(co.waitingBuffers, buf)
		co.drain()
	})
}

// Queue enqueues one parsed NAL unit for pairing with the next available
// input buffer. A non-IDR, non-parameter-set unit arriving before the
// first IDR has been seen is dropped — a P-frame without a prior
// reference frame cannot be decoded.
func (co *Coordinator) Queue(frameIndex uint64, nalType nal.Type, data []byte) bool {
	return co.pool.Submit(func() {
		co.handleNAL(queuedNAL{frameIndex: frameIndex, nalType: nalType, data: data})
	})
}

func (co *Coordinator) handleNAL(n queuedNAL) {
	switch n.nalType {
	case nal.TypeIDR:
		co.idrParsed = true
	case nal.TypeP:
		if !co.idrParsed {
			co.log.Debug("dropping P frame queued before first IDR", "frameIndex", n.frameIndex)
			return
		}
	}

	if len(co.pendingNALs) >= co.queueLimit {
		co.log.Warn("decoder NAL queue limit reached, dropping oldest pending unit", "limit", co.queueLimit)
		co.pendingNALs = co.pendingNALs[1:]
	}
	co.pendingNALs = append(co.pendingNALs, n)
	co.drain()
}

func (co *Coordinator) drain() {
	for len(co.waitingBuffers) > 0 && len(co.pendingNALs) > 0 {
		buf := co.waitingBuffers[0]
		co.waitingBuffers = co.waitingBuffers[1:]
		n := co.pendingNALs[0]
		co.pendingNALs = co.pendingNALs[1:]

		isConfig := n.nalType == nal.TypeSPS
		if err := co.consumer.Fill(buf, n.frameIndex, n.data, isConfig); err != nil {
			co.log.Error("decoder input fill failed", "error", err, "frameIndex", n.frameIndex)
		}
	}
}

// IsIdrParsed reports whether an IDR has been queued since the last
// Reset, used by the orchestrator's IDR-request watchdog (spec §4.7's "2
// second deadline after stream start if no IDR parsed"). Since idrParsed
// is only ever touched on the pool's single worker goroutine, this reads
// it back through the same serialization point rather than an atomic, at
// the cost of a bounded wait if the worker is backed up.
func (co *Coordinator) IsIdrParsed() bool {
	result := make(chan bool, 1)
	if !co.pool.Submit(func() { result <- co.idrParsed }) {
		return false
	}
	select {
	case v := <-result:
		return v
	case <-time.After(time.Second):
		return false
	}
}

// Reset clears all queued state and the IDR-seen flag, for use after a
// stream restart (see internal/orchestrator).
func (co *Coordinator) Reset() bool {
	return co.pool.Submit(func() {
		co.waitingBuffers = nil
		co.pendingNALs = nil
		co.idrParsed = false
	})
}

// Close stops accepting new work and waits for the worker to finish
// whatever pairing is in flight, up to ctx's deadline.
func (co *Coordinator) Close(ctx context.Context) {
	co.pool.StopAccepting()
	co.pool.Drain(ctx)
}
