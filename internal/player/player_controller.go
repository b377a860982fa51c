package player

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// PlayerController is the package's public entry point. It wraps a
// StreamController with PlayerClient notification plumbing, translating
// the controller's internal state machine into the PlayerState values
// and callbacks an application actually observes, tracking current
// time/duration/seeking state the StreamController itself does not
// expose, and routing push-style producer events into the controller.
type PlayerController struct {
	controller *StreamController
	client     PlayerClient
	events     *eventScheduler

	stopOnce         sync.Once
	stopClockForward chan struct{}

	seeking     atomic.Bool
	buffering   atomic.Bool
	duration    atomic.Int64 // time.Duration
	currentTime atomic.Int64 // time.Duration
}

// NewPlayerController constructs a PlayerController. client may be nil if
// the caller only wants to drive playback via the returned value's
// methods without receiving notifications.
func NewPlayerController(cfg Config, native NativePlayer, provider DataProvider, client PlayerClient) *PlayerController {
	sc := NewStreamController(cfg, native, provider)
	pc := &PlayerController{
		controller:       sc,
		client:           client,
		events:           newEventScheduler(32),
		stopClockForward: make(chan struct{}),
	}
	sc.onStateChange = pc.handleStateChange
	sc.onSeekStarted = pc.handleSeekStarted
	sc.onSeekCompleted = pc.handleSeekCompleted
	sc.onBufferStatus = pc.handleBufferStatus
	sc.onError = pc.handleControllerError
	return pc
}

func (p *PlayerController) handleStateChange(s controllerState) {
	if p.client == nil {
		return
	}
	state, ok := externalState(s)
	if !ok {
		return
	}
	p.events.Submit(func() { p.client.OnStateChanged(state) })
}

// externalState maps the controller's internal state to the externally
// observable PlayerState. Transitional states (Preparing, Seeking,
// Reconfiguring, Stopping) report ok=false, so no notification is
// published and the client keeps the state it last observed (State()
// reports StateIdle for them). Disposed maps to Idle, since Completed is reserved for
// a genuine native-player EOS signal (see StreamController.EOSEmitted).
func externalState(s controllerState) (PlayerState, bool) {
	switch s {
	case controllerReady:
		return StatePrepared, true
	case controllerPlaying:
		return StatePlaying, true
	case controllerPaused:
		return StatePaused, true
	case controllerCompleted:
		return StateCompleted, true
	case controllerError:
		return StateError, true
	case controllerDisposed:
		return StateIdle, true
	default:
		return StateIdle, false
	}
}

func (p *PlayerController) handleSeekStarted(position time.Duration) {
	p.currentTime.Store(int64(position))
	if p.client == nil {
		return
	}
	p.events.Submit(func() { p.client.OnSeekStarted(position) })
}

func (p *PlayerController) handleSeekCompleted(position time.Duration) {
	p.currentTime.Store(int64(position))
	if p.client == nil {
		return
	}
	p.events.Submit(func() { p.client.OnSeekCompleted(position) })
}

func (p *PlayerController) handleBufferStatus(stream StreamKind, status BufferStatus) {
	if p.client == nil {
		return
	}
	p.events.Submit(func() { p.client.OnBufferStatus(stream, status) })
}

func (p *PlayerController) handleControllerError(err error) {
	p.notifyIfError(err)
}

// Prepare prepares the session for playback; see StreamController.Prepare.
func (p *PlayerController) Prepare(ctx context.Context) error {
	err := p.controller.Prepare(ctx)
	p.notifyIfError(err)
	return err
}

// Play starts or resumes playback and begins forwarding clock ticks into
// this controller's current-time tracking.
func (p *PlayerController) Play(ctx context.Context) error {
	err := p.controller.Play(ctx)
	p.notifyIfError(err)
	if err == nil {
		go p.forwardClock(ctx)
	}
	return err
}

func (p *PlayerController) forwardClock(ctx context.Context) {
	ticks := p.controller.ClockTicks()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopClockForward:
			return
		case tick := <-ticks:
			p.currentTime.Store(int64(tick.Position))
		}
	}
}

// Pause suspends playback; see StreamController.Pause.
func (p *PlayerController) Pause(ctx context.Context) error {
	err := p.controller.Pause(ctx)
	p.notifyIfError(err)
	return err
}

// Seek requests a seek to position, clamped to [0, Duration()] (to no
// upper bound while Duration() is 0) and
// rejected outright if another Seek is already in flight (spec.md §4.5:
// the controller does not queue a second seek behind the first). Actual
// SeekStarted/SeekCompleted notification is driven by the
// StreamController callbacks registered in NewPlayerController.
func (p *PlayerController) Seek(ctx context.Context, position time.Duration) error {
	if !p.seeking.CompareAndSwap(false, true) {
		err := InvalidState("PlayerController.Seek", fmt.Errorf("a seek is already in progress"))
		p.notifyIfError(err)
		return err
	}
	defer p.seeking.Store(false)

	if position < 0 {
		position = 0
	}
	if d := p.Duration(); d > 0 && position > d {
		position = d
	}

	err := p.controller.Seek(ctx, position)
	if err != nil {
		p.notifyIfError(err)
		return err
	}
	return nil
}

// Reconfigure updates a stream's codec configuration mid-session; see
// StreamController.Reconfigure.
func (p *PlayerController) Reconfigure(ctx context.Context, cfg StreamConfig) error {
	err := p.controller.Reconfigure(ctx, cfg)
	p.notifyIfError(err)
	return err
}

// Stop halts playback and disposes the session; see StreamController.Stop.
func (p *PlayerController) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stopClockForward) })
	err := p.controller.Stop(ctx)
	p.notifyIfError(err)
	p.events.Close()
	return err
}

// BufferStats returns each active stream's current buffer accounting.
func (p *PlayerController) BufferStats() map[StreamKind]BufferStats {
	return p.controller.BufferStats()
}

// State returns the current externally observable PlayerState.
func (p *PlayerController) State() PlayerState {
	s, ok := externalState(p.controller.State())
	if !ok {
		return StateIdle
	}
	return s
}

// CurrentTime returns the most recently observed playback position, from
// either a clock tick or a completed seek.
func (p *PlayerController) CurrentTime() time.Duration {
	return time.Duration(p.currentTime.Load())
}

// Duration returns the clip duration last reported via
// OnClipDurationChanged, or zero if none has been reported yet.
func (p *PlayerController) Duration() time.Duration {
	return time.Duration(p.duration.Load())
}

// OnClipDurationChanged records the provider-reported total clip
// duration, used to clamp subsequent Seek calls. It is the entry point a
// push-style DataProvider invokes via its ProviderEvent stream, or a
// caller that has obtained the duration some other way.
func (p *PlayerController) OnClipDurationChanged(d time.Duration) {
	p.duration.Store(int64(d))
}

// OnPacketReady routes a producer-originated packet into the matching
// stream's storage, the entry point a push-style DataProvider uses
// instead of the pull-based ReadPacket path the bundled reference
// providers implement.
func (p *PlayerController) OnPacketReady(pkt Packet) {
	p.controller.ingest(pkt)
}

// OnStreamConfigReady applies cfg to the matching stream, queuing a
// configuration packet in the same ordered pipeline data packets flow
// through.
func (p *PlayerController) OnStreamConfigReady(cfg StreamConfig) {
	p.controller.applyStreamConfig(cfg)
}

// OnDRMInitDataFound forwards DRM initialization data to the client for
// key-session setup; neither the controller nor this package inspects
// its contents.
func (p *PlayerController) OnDRMInitDataFound(stream StreamKind, initData []byte) {
	if p.client == nil {
		return
	}
	p.events.Submit(func() { p.client.OnDRMInitDataFound(stream, initData) })
}

// OnStreamError forwards a stream-scoped provider error to the client
// through the same path as a controller-level error.
func (p *PlayerController) OnStreamError(stream StreamKind, err error) {
	p.notifyIfError(fmt.Errorf("stream %s: %w", stream, err))
}

// OnBufferingStateChanged implements the data-provider-driven buffering
// scenario (spec.md §8 scenario 6): entering buffering pauses playback
// and reports 0% progress to the client; leaving it resumes playback and
// reports 100%. Redundant calls reporting the state already in effect
// are ignored.
func (p *PlayerController) OnBufferingStateChanged(buffering bool) {
	if !p.buffering.CompareAndSwap(!buffering, buffering) {
		return
	}
	ctx := context.Background()
	if buffering {
		if err := p.controller.Pause(ctx); err != nil && !IsInvalidState(err) {
			p.notifyIfError(err)
		}
		if p.client != nil {
			p.events.Submit(func() { p.client.OnBufferingProgress(0) })
		}
		return
	}
	if err := p.controller.Play(ctx); err != nil && !IsInvalidState(err) {
		p.notifyIfError(err)
	}
	if p.client != nil {
		p.events.Submit(func() { p.client.OnBufferingProgress(100) })
	}
}

func (p *PlayerController) notifyIfError(err error) {
	if err == nil || p.client == nil || IsCancelled(err) {
		return
	}
	p.events.Submit(func() { p.client.OnError(err) })
}
