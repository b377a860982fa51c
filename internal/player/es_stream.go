package player

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// esStream owns the transfer task for a single elementary stream: it
// pulls packets from a DataProvider, queues them in a packetStorage, and
// feeds them to a NativePlayer once playback is active. Lifecycle is
// modeled on an atomic started/closed pair plus a cancellable context,
// the same shape the teacher's stream-processor base uses for its
// transfer goroutines.
type esStream struct {
	kind     StreamKind
	provider DataProvider
	native   NativePlayer
	storage  *packetStorage
	buffer   *streamBuffer

	started atomic.Bool
	closed  atomic.Bool

	mu         sync.Mutex
	cfg        StreamConfig
	generation SeekGeneration
	active     atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	wake chan struct{}

	// onReconfigure is invoked when the native player reports a stale
	// configuration for a fed packet (see feedAvailable). onEOS is
	// invoked once this stream's provider-side data is exhausted.
	// Both are assigned by StreamController.Prepare once the stream is
	// registered, so the controller learns about either signal instead
	// of it being silently dropped.
	onReconfigure func(kind StreamKind, err error)
	onEOS         func(kind StreamKind)
}

// newEsStream constructs an esStream. It does not start the transfer
// task; call Start for that.
func newEsStream(kind StreamKind, provider DataProvider, native NativePlayer, targetDepth, preBuffer time.Duration, maxBytes, bitrate int64) *esStream {
	storage := newPacketStorage()
	return &esStream{
		kind:     kind,
		provider: provider,
		native:   native,
		storage:  storage,
		buffer:   newStreamBuffer(kind, storage, targetDepth, preBuffer, maxBytes, bitrate),
		wake:     make(chan struct{}, 1),
	}
}

// Start launches the background transfer goroutine that keeps storage
// filled from the provider. Calling Start twice is a no-op.
func (s *esStream) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(2)
	go s.transferLoop()
	go s.feedLoop()
}

// SetActive enables or disables feeding queued packets to the native
// player. The controller sets this true once the native player signals
// per-stream readiness (Prepare's onReadyToStart, or Seek's
// onReadyToSeek) and false while Pause or a Seek/Reconfigure in-flight
// operation disables transfer, so the transfer task keeps filling
// storage in the background even while inactive, without the native
// player receiving any packets meanwhile.
func (s *esStream) SetActive(active bool) {
	s.active.Store(active)
}

// Active reports the current feed-enable state.
func (s *esStream) Active() bool {
	return s.active.Load()
}

// Wakeup nudges the transfer task to re-evaluate its buffer state
// immediately rather than waiting for the next poll tick, used by the
// controller's BufferStatusChanged(Underrun) native-event handler to
// react to backpressure without the usual 100ms polling latency.
func (s *esStream) Wakeup() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop halts the transfer task and waits for it to exit.
func (s *esStream) Stop() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *esStream) transferLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.buffer.Evaluate()
		case <-s.wake:
			s.buffer.Evaluate()
		case <-s.buffer.Requests():
			s.pullOne()
		}
	}
}

// pullOne reads a single packet from the provider and queues it. An EOS
// packet is pushed into storage like any other packet so it reaches the
// native player in correct order relative to the data preceding it,
// since the native player's own EOSEmitted event (not this local signal)
// is what the controller treats as authoritative end-of-stream.
func (s *esStream) pullOne() {
	pkt, err := s.provider.ReadPacket(s.ctx, s.kind)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		return
	}
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	if pkt.Generation == 0 {
		pkt.Generation = gen
	}
	s.storage.Push(pkt)
	if pkt.IsEOS && s.onEOS != nil {
		s.onEOS(s.kind)
	}
}

// SetConfig records the active StreamConfig for this stream and pushes a
// configuration packet so it flows through the same ordered queue as
// data packets, guaranteeing the native player sees config changes in
// the correct position relative to the data they apply to.
func (s *esStream) SetConfig(cfg StreamConfig) {
	s.mu.Lock()
	s.cfg = cfg
	gen := s.generation
	s.mu.Unlock()
	s.storage.Push(BufferConfigurationPacket(s.kind, cfg, gen))
}

// Config returns the last StreamConfig set via SetConfig or Seek.
func (s *esStream) Config() StreamConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Seek resets storage to accept only packets of the new generation,
// discarding anything queued from before the seek, and records
// newCfg as the stream's active configuration. It reports
// SeekRestartRequired when newCfg's codec or extradata differs from
// what was active before the seek, signaling that a destructive
// reconfiguration (full native player Stop/Configure/re-Prepare cycle)
// is needed rather than a plain resume.
func (s *esStream) Seek(generation SeekGeneration, newCfg StreamConfig) SeekOutcome {
	s.mu.Lock()
	prev := s.cfg
	s.generation = generation
	s.cfg = newCfg
	s.mu.Unlock()

	s.storage.Reset(generation)

	if prev.Codec != "" && !prev.Equal(newCfg) {
		return SeekRestartRequired
	}
	return SeekOk
}

// Reseek resets storage to accept only packets of the new generation
// without altering the active configuration, for callers that already
// know no reconfiguration is needed (e.g. tests exercising the storage
// generation boundary in isolation).
func (s *esStream) Reseek(generation SeekGeneration) {
	s.mu.Lock()
	s.generation = generation
	s.mu.Unlock()
	s.storage.Reset(generation)
}

// IsPreBuffered reports whether this stream has accumulated its
// configured pre-buffer duration.
func (s *esStream) IsPreBuffered() bool {
	return s.buffer.IsPreBuffered()
}

// BufferStats reports the stream's current queued-packet byte count and
// presentation-time span, for diagnostics and status reporting.
func (s *esStream) BufferStats() BufferStats {
	return BufferStats{
		Bytes:    s.storage.Bytes(),
		Duration: s.storage.PendingDuration(),
	}
}

// feedLoop continuously feeds queued packets to the native player
// whenever the stream is active, for the entire lifetime of the stream
// rather than stopping the first time storage runs dry, since new
// packets keep arriving from transferLoop for as long as playback
// continues.
func (s *esStream) feedLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if !s.active.Load() {
				continue
			}
			s.feedAvailable()
		}
	}
}

// feedAvailable feeds every packet currently queued, stopping early if
// the native player reports a stale configuration.
func (s *esStream) feedAvailable() {
	for {
		pkt, ok := s.storage.Peek()
		if !ok {
			return
		}
		if err := s.native.Feed(s.ctx, pkt); err != nil {
			if Is(err, KindStreamReconfigureRequired) && s.onReconfigure != nil {
				s.onReconfigure(s.kind, err)
			}
			return
		}
		s.storage.Pop()
		select {
		case <-s.ctx.Done():
			return
		default:
		}
	}
}
