package player

import (
	"sync"
	"time"
)

// streamBuffer sits between a packetStorage and the native player for a
// single stream, deciding when more data should be requested from the
// upstream DataProvider based on how much buffered duration remains
// against the configured target depth (spec.md §5's pre-buffer and
// target-buffer-depth knobs).
type streamBuffer struct {
	stream  StreamKind
	storage *packetStorage

	targetDepth time.Duration
	preBuffer   time.Duration
	maxBytes    int64
	bitrate     int64 // bytes/sec; 0 disables BytesNeeded estimation

	mu       sync.Mutex
	requests chan DataRequest
}

// newStreamBuffer returns a streamBuffer for stream backed by storage,
// targeting targetDepth of buffered duration and requiring preBuffer of
// data before playback is considered ready to start. maxBytes caps
// queued packet bytes regardless of buffered duration; zero disables
// the cap. bitrate, in bytes per second, is used to translate the
// duration shortfall into a DataRequest.BytesNeeded estimate; zero
// leaves BytesNeeded unset, since not every DataProvider can act on it.
func newStreamBuffer(stream StreamKind, storage *packetStorage, targetDepth, preBuffer time.Duration, maxBytes int64, bitrate int64) *streamBuffer {
	return &streamBuffer{
		stream:      stream,
		storage:     storage,
		targetDepth: targetDepth,
		preBuffer:   preBuffer,
		maxBytes:    maxBytes,
		bitrate:     bitrate,
		requests:    make(chan DataRequest, 1),
	}
}

// Requests returns the channel DataRequests are emitted on. Only the
// most recent pending request is retained; a fresh Evaluate overwrites
// an unconsumed one since only the latest fill target matters.
func (b *streamBuffer) Requests() <-chan DataRequest {
	return b.requests
}

// IsPreBuffered reports whether enough data has accumulated to satisfy
// the pre-buffer threshold and playback may begin.
func (b *streamBuffer) IsPreBuffered() bool {
	return b.storage.PendingDuration() >= b.preBuffer
}

// Evaluate inspects current buffer occupancy and, if below target depth,
// emits a DataRequest describing how much more is needed. No request is
// emitted once queued bytes reach maxBytes, even if buffered duration is
// still short of targetDepth.
func (b *streamBuffer) Evaluate() {
	if b.maxBytes > 0 && b.storage.Bytes() >= b.maxBytes {
		return
	}
	pending := b.storage.PendingDuration()
	if pending >= b.targetDepth {
		return
	}
	needed := b.targetDepth - pending
	req := DataRequest{
		Stream:         b.stream,
		DurationNeeded: needed,
		IsBufferEmpty:  b.storage.Len() == 0,
	}
	if b.bitrate > 0 {
		req.BytesNeeded = int64(needed) * b.bitrate / int64(time.Second)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case b.requests <- req:
	default:
		select {
		case <-b.requests:
		default:
		}
		select {
		case b.requests <- req:
		default:
		}
	}
}
