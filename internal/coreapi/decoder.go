package coreapi

// InputBuffer is an opaque handle to a platform-owned decoder input buffer
// (e.g. a MediaCodec input buffer index, or a pointer to a pinned host
// buffer). The streaming core never inspects it — it only pairs each one
// FIFO with the next parsed NAL unit and hands both back through Consumer.
type InputBuffer any

// Consumer is implemented by the platform's decoder-feeding code. Fill is
// invoked once decodercoord.Coordinator has paired an InputBuffer (supplied
// earlier via Coordinator.SubmitInputBuffer) with a parsed NAL unit.
type Consumer interface {
	Fill(buf InputBuffer, frameIndex uint64, nal []byte, isConfig bool) error
}
