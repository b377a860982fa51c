package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config holds the tunable knobs for a StreamController (spec.md §6).
type Config struct {
	// PreBufferDuration is how much data must be queued per stream
	// before Prepare completes and playback may start.
	PreBufferDuration time.Duration
	// TargetBufferDepth is the steady-state buffered duration each
	// stream's transfer task tries to maintain.
	TargetBufferDepth time.Duration
	// ClockPollInterval is how often the controller samples native
	// playback position while playing.
	ClockPollInterval time.Duration
	// BufferEventInterval is carried in the configuration but is not
	// consulted by the controller: buffer-status notifications reach the
	// PlayerClient as they arrive, without rate limiting.
	BufferEventInterval time.Duration
	// MaxVariantBytes caps per-stream queued packet bytes; once reached,
	// the stream's buffer stops requesting more data regardless of
	// buffered duration. Zero means no byte cap, relying on
	// TargetBufferDepth alone.
	MaxVariantBytes int64
	// TargetBitrate, in bytes per second, lets a stream's buffer
	// translate its duration shortfall into a DataRequest.BytesNeeded
	// estimate for providers that plan reads in bytes rather than
	// duration. Zero leaves BytesNeeded unset.
	TargetBitrate int64
	// Logger receives structured lifecycle logging. Defaults to
	// slog.Default() when nil.
	Logger *slog.Logger
}

// DefaultConfig returns the spec's documented default knob values.
func DefaultConfig() Config {
	return Config{
		PreBufferDuration:   DefaultPreBufferDuration,
		TargetBufferDepth:   DefaultTargetBufferDepth,
		ClockPollInterval:   DefaultClockPollInterval,
		BufferEventInterval: DefaultBufferEventInterval,
		MaxVariantBytes:     DefaultMaxVariantBytes,
	}
}

// StreamController orchestrates a single playback session: one
// NativePlayer, one DataProvider (through a dataProviderConnector), and
// one esStream per elementary stream it serves. It owns the internal
// state machine and serializes every suspending operation
// (Prepare/Seek/Reconfigure) through an operationSerializer so they
// never race against each other or against the controller's own event
// handling. Play/Pause/Stop are intentionally non-suspending: they act
// directly on the current state rather than waiting for an in-flight
// operation to finish, so a Stop can always make forward progress.
type StreamController struct {
	cfg    Config
	native NativePlayer
	conn   *dataProviderConnector
	logger *slog.Logger

	serializer *operationSerializer
	events     *eventScheduler
	clock      *clock

	mu         sync.Mutex
	state      controllerState
	streams    map[StreamKind]*esStream
	generation SeekGeneration

	activeCtx    context.Context
	activeCancel context.CancelFunc

	onStateChange   func(controllerState)
	onSeekStarted   func(time.Duration)
	onSeekCompleted func(time.Duration)
	onBufferStatus  func(StreamKind, BufferStatus)
	onError         func(error)
}

// NewStreamController constructs a StreamController bound to a native
// player and a data provider. It does not start any background work;
// call Prepare to begin.
func NewStreamController(cfg Config, native NativePlayer, provider DataProvider) *StreamController {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &StreamController{
		cfg:        cfg,
		native:     native,
		conn:       newDataProviderConnector(provider),
		logger:     logger,
		serializer: newOperationSerializer(),
		events:     newEventScheduler(32),
		streams:    make(map[StreamKind]*esStream),
		state:      controllerUninitialized,
	}
	c.activeCtx, c.activeCancel = context.WithCancel(context.Background())
	c.clock = newClock(cfg.ClockPollInterval, native.CurrentPosition)
	native.SetEventSink(c)
	return c
}

// State returns the controller's current internal state.
func (c *StreamController) State() controllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *StreamController) setState(s controllerState) {
	c.mu.Lock()
	c.state = s
	cb := c.onStateChange
	c.mu.Unlock()
	if cb != nil {
		c.events.Submit(func() { cb(s) })
	}
}

func (c *StreamController) transitionAllowed(op string, allowed ...controllerState) error {
	c.mu.Lock()
	cur := c.state
	c.mu.Unlock()
	for _, s := range allowed {
		if cur == s {
			return nil
		}
	}
	return InvalidState(op, fmt.Errorf("not permitted from state %s", cur))
}

// withActiveCancel derives a context from parent that is also cancelled
// the moment Stop cancels the controller's activeCtx, so a suspending
// operation blocked on native readiness or provider I/O unblocks
// quickly instead of holding the operation serializer's permit until
// parent itself expires.
func (c *StreamController) withActiveCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := make(chan struct{})
	go func() {
		select {
		case <-c.activeCtx.Done():
			cancel()
		case <-stop:
		}
	}()
	return ctx, func() {
		close(stop)
		cancel()
	}
}

// Prepare fetches stream configurations from the provider, configures the
// native player for each stream while starting that stream's transfer
// task, waits for every stream to reach its pre-buffer threshold, and
// begins native preparation. It blocks until every stream is reported
// ready via onReadyToStart or ctx is cancelled.
func (c *StreamController) Prepare(ctx context.Context) error {
	const op = "StreamController.Prepare"
	if err := c.transitionAllowed(op, controllerUninitialized); err != nil {
		return err
	}
	return c.serializer.run(ctx, func() error {
		opCtx, cancel := c.withActiveCancel(ctx)
		defer cancel()
		return c.prepareLocked(opCtx, op)
	})
}

func (c *StreamController) prepareLocked(ctx context.Context, op string) error {
	c.setState(controllerPreparing)
	c.logger.Debug("preparing")

	configs, err := c.conn.Provider().StreamConfigs(ctx)
	if err != nil {
		c.setState(controllerUninitialized)
		return NativePlayerFailure(op, err)
	}

	c.mu.Lock()
	for _, cfg := range configs {
		s := newEsStream(cfg.Kind, c.conn.Provider(), c.native, c.cfg.TargetBufferDepth, c.cfg.PreBufferDuration, c.cfg.MaxVariantBytes, c.cfg.TargetBitrate)
		s.onReconfigure = c.handleStreamReconfigure
		s.onEOS = c.handleStreamEOS
		s.SetConfig(cfg)
		c.streams[cfg.Kind] = s
	}
	streams := c.streamsLocked()
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range streams {
		s := s
		g.Go(func() error {
			if err := c.native.Configure(gctx, s.Config()); err != nil {
				return NativePlayerFailure(op, err)
			}
			s.Start(ctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.setState(controllerUninitialized)
		return err
	}

	if err := c.waitPreBuffered(ctx, streams); err != nil {
		c.setState(controllerUninitialized)
		return err
	}

	if err := c.awaitNativeReady(ctx, streams, func(onReady ReadyCallback) error {
		return c.native.PrepareAsync(ctx, onReady)
	}); err != nil {
		c.setState(controllerUninitialized)
		return err
	}

	c.logger.Debug("prepared", slog.Int("streams", len(streams)))
	c.setState(controllerReady)
	return nil
}

// streamsLocked returns a snapshot slice of the current stream set.
// Callers must already hold c.mu.
func (c *StreamController) streamsLocked() []*esStream {
	streams := make([]*esStream, 0, len(c.streams))
	for _, s := range c.streams {
		streams = append(streams, s)
	}
	return streams
}

func (c *StreamController) waitPreBuffered(ctx context.Context, streams []*esStream) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		allReady := true
		for _, s := range streams {
			if !s.IsPreBuffered() {
				allReady = false
				break
			}
		}
		if allReady {
			return nil
		}
		select {
		case <-ctx.Done():
			return Cancelled("StreamController", ctx.Err())
		case <-ticker.C:
		}
	}
}

// awaitNativeReady invokes start with a ReadyCallback that marshals
// each stream's readiness signal onto the event scheduler before
// activating that stream, since the native player may invoke the
// callback from a thread it does not expose to callers. It blocks until
// every stream in streams has signaled readiness or ctx is cancelled.
func (c *StreamController) awaitNativeReady(ctx context.Context, streams []*esStream, start func(ReadyCallback) error) error {
	ready := make(chan StreamKind, len(streams))
	onReady := func(kind StreamKind) {
		c.events.Submit(func() {
			c.mu.Lock()
			s, ok := c.streams[kind]
			c.mu.Unlock()
			if ok {
				s.SetActive(true)
			}
			select {
			case ready <- kind:
			default:
			}
		})
	}
	if err := start(onReady); err != nil {
		return NativePlayerFailure("StreamController", err)
	}
	seen := make(map[StreamKind]bool, len(streams))
	for len(seen) < len(streams) {
		select {
		case kind := <-ready:
			seen[kind] = true
		case <-ctx.Done():
			return Cancelled("StreamController", ctx.Err())
		}
	}
	return nil
}

// Play transitions to Playing, starts the clock, and activates every
// stream's feed loop so buffered packets flow to the native player.
// Play does not take the operation serializer: spec.md §5 requires it
// to be non-suspending so a caller is never blocked behind an in-flight
// Prepare/Seek/Reconfigure.
func (c *StreamController) Play(ctx context.Context) error {
	const op = "StreamController.Play"
	if err := c.transitionAllowed(op, controllerReady, controllerPaused); err != nil {
		return err
	}
	if err := c.native.Play(ctx); err != nil {
		return NativePlayerFailure(op, err)
	}
	c.setState(controllerPlaying)
	c.clock.Start(ctx)
	c.setStreamsActive(true)
	return nil
}

func (c *StreamController) setStreamsActive(active bool) {
	c.mu.Lock()
	streams := c.streamsLocked()
	c.mu.Unlock()
	for _, s := range streams {
		s.SetActive(active)
	}
}

// Pause transitions to Paused and stops the clock without discarding
// buffered data. Like Play, Pause is non-suspending.
func (c *StreamController) Pause(ctx context.Context) error {
	const op = "StreamController.Pause"
	if err := c.transitionAllowed(op, controllerPlaying); err != nil {
		return err
	}
	if err := c.native.Pause(ctx); err != nil {
		return NativePlayerFailure(op, err)
	}
	c.clock.Stop()
	c.setStreamsActive(false)
	c.setState(controllerPaused)
	return nil
}

// Seek requests a provider-side and native-side seek to position. It
// publishes SeekStarted before touching provider or native state, then
// resets every stream's storage to a fresh generation discarding
// anything queued from before the seek. If the provider's post-seek
// StreamConfigs reports a codec change for any stream, Seek performs
// the full destructive-reconfiguration sequence instead of a plain
// native seek. Seek is suspending: it holds the operation serializer for
// its duration.
func (c *StreamController) Seek(ctx context.Context, position time.Duration) error {
	const op = "StreamController.Seek"
	if err := c.transitionAllowed(op, controllerPlaying, controllerPaused, controllerReady); err != nil {
		return err
	}
	return c.serializer.run(ctx, func() error {
		opCtx, cancel := c.withActiveCancel(ctx)
		defer cancel()
		return c.seekLocked(opCtx, op, position)
	})
}

func (c *StreamController) seekLocked(ctx context.Context, op string, position time.Duration) error {
	prev := c.State()
	c.publishSeekStarted(position)
	c.logger.Debug("seek started", slog.Duration("position", position))

	c.setStreamsActive(false)
	c.clock.Stop()
	c.setState(controllerSeeking)

	gen, err := c.conn.Seek(ctx, position)
	if err != nil {
		c.setState(prev)
		return NativePlayerFailure(op, err)
	}

	configs, err := c.conn.Provider().StreamConfigs(ctx)
	if err != nil {
		c.setState(prev)
		return NativePlayerFailure(op, err)
	}
	cfgByKind := make(map[StreamKind]StreamConfig, len(configs))
	for _, cfg := range configs {
		cfgByKind[cfg.Kind] = cfg
	}

	c.mu.Lock()
	c.generation = gen
	streams := c.streamsLocked()
	restart := false
	for kind, s := range c.streams {
		newCfg, ok := cfgByKind[kind]
		if !ok {
			newCfg = s.Config()
		}
		if s.Seek(gen, newCfg) == SeekRestartRequired {
			restart = true
		}
	}
	c.mu.Unlock()

	if restart {
		c.logger.Info("seek crossed a codec change, reconfiguring")
		if err := c.reconfigureAllLocked(ctx, op, streams, prev); err != nil {
			c.setState(prev)
			return err
		}
		c.publishSeekCompleted(position)
		return nil
	}

	if err := c.waitPreBuffered(ctx, streams); err != nil {
		c.setState(prev)
		return err
	}

	if err := c.awaitNativeReady(ctx, streams, func(onReady ReadyCallback) error {
		return c.native.SeekAsync(ctx, position, onReady)
	}); err != nil {
		c.setState(prev)
		return err
	}

	if prev == controllerPlaying {
		c.clock.Start(ctx)
	}
	c.setState(prev)
	c.publishSeekCompleted(position)
	return nil
}

// Reconfigure updates a single stream's codec configuration mid-session,
// e.g. after a StreamReconfigureRequired error from a Feed call, and
// runs the stop-reconfigure-resume sequence for every stream since the
// native player's decode pipeline is reinitialized as a unit. The same
// NativePlayer is stopped and configured again; it is not disposed and
// no new NativePlayer is created. Reconfigure is suspending.
func (c *StreamController) Reconfigure(ctx context.Context, cfg StreamConfig) error {
	const op = "StreamController.Reconfigure"
	if err := c.transitionAllowed(op, controllerPlaying, controllerPaused, controllerReady); err != nil {
		return err
	}
	return c.serializer.run(ctx, func() error {
		opCtx, cancel := c.withActiveCancel(ctx)
		defer cancel()
		prev := c.State()

		c.mu.Lock()
		s, ok := c.streams[cfg.Kind]
		if ok {
			s.SetConfig(cfg)
		}
		streams := c.streamsLocked()
		c.mu.Unlock()
		if !ok {
			return InvalidArgument(op, fmt.Errorf("unknown stream kind %s", cfg.Kind))
		}

		if err := c.reconfigureAllLocked(opCtx, op, streams, prev); err != nil {
			c.setState(prev)
			return err
		}
		return nil
	})
}

// reconfigureAllLocked runs the destructive-reconfiguration sequence:
// disable transfer to the native player, stop sampling the clock, stop
// the native player, re-register the event sink, re-run Configure for
// every stream against its current StreamConfig, wait for every
// stream's pre-buffer threshold again, re-run PrepareAsync, and resume
// playback if it was active before. Callers must already hold the
// operation serializer permit.
func (c *StreamController) reconfigureAllLocked(ctx context.Context, op string, streams []*esStream, prev controllerState) error {
	c.setState(controllerReconfiguring)
	c.setStreamsActive(false)
	c.clock.Stop()

	if err := c.native.Stop(ctx); err != nil {
		return NativePlayerFailure(op, err)
	}
	c.native.SetEventSink(c)

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range streams {
		s := s
		g.Go(func() error {
			if err := c.native.Configure(gctx, s.Config()); err != nil {
				return NativePlayerFailure(op, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := c.waitPreBuffered(ctx, streams); err != nil {
		return err
	}

	if err := c.awaitNativeReady(ctx, streams, func(onReady ReadyCallback) error {
		return c.native.PrepareAsync(ctx, onReady)
	}); err != nil {
		return err
	}

	if prev == controllerPlaying {
		if err := c.native.Play(ctx); err != nil {
			return NativePlayerFailure(op, err)
		}
		c.clock.Start(ctx)
		c.setStreamsActive(true)
	}
	c.logger.Debug("reconfigured")
	c.setState(prev)
	return nil
}

func (c *StreamController) handleStreamEOS(kind StreamKind) {
	c.logger.Debug("stream reached provider eos", slog.String("stream", kind.String()))
}

// handleStreamReconfigure reacts to a stream's feed task reporting a
// stale native configuration by launching an asynchronous Reconfigure
// using that stream's current StreamConfig. It runs detached from the
// feed goroutine that detected the condition, since Reconfigure itself
// blocks on native readiness.
func (c *StreamController) handleStreamReconfigure(kind StreamKind, err error) {
	c.logger.Info("stream requested reconfigure", slog.String("stream", kind.String()), slog.Any("error", err))
	c.mu.Lock()
	s, ok := c.streams[kind]
	c.mu.Unlock()
	if !ok {
		return
	}
	cfg := s.Config()
	go func() {
		ctx, cancel := context.WithTimeout(c.activeCtx, 10*time.Second)
		defer cancel()
		if rerr := c.Reconfigure(ctx, cfg); rerr != nil && !IsCancelled(rerr) {
			c.logger.Error("automatic reconfigure failed", slog.String("stream", kind.String()), slog.Any("error", rerr))
		}
	}()
}

// EOSEmitted implements NativeEventSink. Per spec.md §9's open-question
// decision, end of stream is a native-player-global signal: a single
// stream reaching its own provider-side EOS (handleStreamEOS) does not
// by itself move the controller to Completed.
func (c *StreamController) EOSEmitted() {
	c.events.Submit(func() {
		c.logger.Info("native player reported end of stream")
		c.setStreamsActive(false)
		c.clock.Stop()
		c.setState(controllerCompleted)
	})
}

// ErrorOccurred implements NativeEventSink.
func (c *StreamController) ErrorOccurred(msg string) {
	c.events.Submit(func() {
		c.logger.Error("native player reported an error", slog.String("message", msg))
		c.setStreamsActive(false)
		c.clock.Stop()
		c.setState(controllerError)
		c.publishError(NativePlayerFailure("NativePlayer", errors.New(msg)))
	})
}

// BufferStatusChanged implements NativeEventSink. An underrun wakes the
// affected stream's transfer task so it re-evaluates its buffer state
// immediately instead of waiting for the next poll tick; both underrun
// and overrun are forwarded to the client unconditionally.
func (c *StreamController) BufferStatusChanged(stream StreamKind, status BufferStatus) {
	c.events.Submit(func() {
		if status == BufferUnderrun {
			c.mu.Lock()
			s, ok := c.streams[stream]
			c.mu.Unlock()
			if ok {
				s.Wakeup()
			}
		}
		c.publishBufferStatus(stream, status)
	})
}

func (c *StreamController) publishSeekStarted(position time.Duration) {
	c.mu.Lock()
	cb := c.onSeekStarted
	c.mu.Unlock()
	if cb != nil {
		c.events.Submit(func() { cb(position) })
	}
}

func (c *StreamController) publishSeekCompleted(position time.Duration) {
	c.mu.Lock()
	cb := c.onSeekCompleted
	c.mu.Unlock()
	if cb != nil {
		c.events.Submit(func() { cb(position) })
	}
}

func (c *StreamController) publishBufferStatus(stream StreamKind, status BufferStatus) {
	c.mu.Lock()
	cb := c.onBufferStatus
	c.mu.Unlock()
	if cb != nil {
		c.events.Submit(func() { cb(stream, status) })
	}
}

func (c *StreamController) publishError(err error) {
	c.mu.Lock()
	cb := c.onError
	c.mu.Unlock()
	if cb != nil {
		c.events.Submit(func() { cb(err) })
	}
}

// ingest pushes a producer-originated packet into the matching stream's
// storage, the entry point a push-style DataProvider would use instead
// of the pull-based ReadPacket path the bundled reference providers
// implement.
func (c *StreamController) ingest(pkt Packet) {
	c.mu.Lock()
	s, ok := c.streams[pkt.Stream]
	c.mu.Unlock()
	if !ok {
		return
	}
	s.storage.Push(pkt)
}

// applyStreamConfig pushes a fresh StreamConfig to the matching stream,
// the producer-driven counterpart to ingest.
func (c *StreamController) applyStreamConfig(cfg StreamConfig) {
	c.mu.Lock()
	s, ok := c.streams[cfg.Kind]
	c.mu.Unlock()
	if !ok {
		return
	}
	s.SetConfig(cfg)
}

// Stop halts playback, stops every stream's transfer task, and releases
// native resources. The controller is disposed and cannot be reused
// after Stop returns; construct a new StreamController instead. Stop
// does not take the operation serializer: it cancels activeCtx first so
// any Prepare/Seek/Reconfigure currently holding the permit unblocks
// quickly, then proceeds with teardown directly.
func (c *StreamController) Stop(ctx context.Context) error {
	const op = "StreamController.Stop"
	c.mu.Lock()
	if c.state == controllerDisposed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.activeCancel()
	c.setState(controllerStopping)
	c.clock.Stop()

	c.mu.Lock()
	streams := c.streamsLocked()
	c.mu.Unlock()
	var g errgroup.Group
	for _, s := range streams {
		s := s
		g.Go(func() error {
			s.Stop()
			return nil
		})
	}
	_ = g.Wait()

	err := c.native.Stop(ctx)
	closeErr := c.conn.Close()
	c.setState(controllerDisposed)
	c.logger.Debug("stopped")
	c.events.Close()
	if err != nil {
		return NativePlayerFailure(op, err)
	}
	if closeErr != nil {
		return NativePlayerFailure(op, closeErr)
	}
	return nil
}

// ClockTicks returns the channel of periodic position samples emitted
// while playing.
func (c *StreamController) ClockTicks() <-chan clockTick {
	return c.clock.Ticks()
}

// BufferStats returns each active stream's current buffer accounting.
func (c *StreamController) BufferStats() map[StreamKind]BufferStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := make(map[StreamKind]BufferStats, len(c.streams))
	for kind, s := range c.streams {
		stats[kind] = s.BufferStats()
	}
	return stats
}
