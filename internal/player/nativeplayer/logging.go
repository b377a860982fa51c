// Package nativeplayer provides a reference NativePlayer implementation
// that logs every call instead of driving a real hardware decoder. It
// exists so the controller can be exercised end to end (CLI smoke-testing,
// integration tests) without a vendor SDK binding.
package nativeplayer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/esplayer/internal/player"
)

// LoggingPlayer implements player.NativePlayer by logging every call at
// debug level and advancing a synthetic position clock while playing. It
// never rejects a Feed call, so StreamReconfigureRequired is never
// produced by this implementation. PrepareAsync and SeekAsync complete
// synchronously and invoke their ReadyCallback inline for every stream
// Configure has been called with, since this reference player has no
// real asynchronous pipeline to wait on.
type LoggingPlayer struct {
	logger *slog.Logger

	position atomic.Int64 // time.Duration, nanoseconds
	playing  atomic.Bool

	mu      sync.Mutex
	sink    player.NativeEventSink
	streams []player.StreamKind

	cancel context.CancelFunc
}

// NewLoggingPlayer constructs a LoggingPlayer and starts its background
// position clock. Call Close to release it.
func NewLoggingPlayer(logger *slog.Logger) *LoggingPlayer {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &LoggingPlayer{logger: logger, cancel: cancel}
	go p.tick(ctx)
	return p
}

func (p *LoggingPlayer) tick(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.playing.Load() {
				p.position.Add(int64(100 * time.Millisecond))
			}
		}
	}
}

// SetEventSink implements player.NativePlayer.
func (p *LoggingPlayer) SetEventSink(sink player.NativeEventSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = sink
}

// Configure implements player.NativePlayer.
func (p *LoggingPlayer) Configure(_ context.Context, cfg player.StreamConfig) error {
	p.logger.Debug("native configure", slog.String("stream", cfg.Kind.String()), slog.String("codec", cfg.Codec))
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.streams {
		if s == cfg.Kind {
			return nil
		}
	}
	p.streams = append(p.streams, cfg.Kind)
	return nil
}

// Feed implements player.NativePlayer.
func (p *LoggingPlayer) Feed(_ context.Context, pkt player.Packet) error {
	p.logger.Debug("native feed",
		slog.String("stream", pkt.Stream.String()),
		slog.Duration("pts", pkt.PTS),
		slog.Bool("keyframe", pkt.Keyframe),
		slog.Bool("config", pkt.IsConfig),
		slog.Bool("eos", pkt.IsEOS),
	)
	if pkt.IsEOS {
		p.mu.Lock()
		sink := p.sink
		p.mu.Unlock()
		if sink != nil {
			sink.EOSEmitted()
		}
	}
	return nil
}

// PrepareAsync implements player.NativePlayer. The reference player
// completes preparation synchronously and reports every configured
// stream ready inline.
func (p *LoggingPlayer) PrepareAsync(_ context.Context, onReadyToStart player.ReadyCallback) error {
	p.logger.Debug("native prepare")
	p.mu.Lock()
	streams := append([]player.StreamKind(nil), p.streams...)
	p.mu.Unlock()
	for _, s := range streams {
		onReadyToStart(s)
	}
	return nil
}

// Play implements player.NativePlayer.
func (p *LoggingPlayer) Play(_ context.Context) error {
	p.logger.Debug("native play", slog.Duration("position", p.CurrentPosition()))
	p.playing.Store(true)
	return nil
}

// Pause implements player.NativePlayer.
func (p *LoggingPlayer) Pause(_ context.Context) error {
	p.logger.Debug("native pause", slog.Duration("position", p.CurrentPosition()))
	p.playing.Store(false)
	return nil
}

// SeekAsync implements player.NativePlayer. The reference player jumps to
// position immediately and reports every configured stream ready inline.
func (p *LoggingPlayer) SeekAsync(_ context.Context, position time.Duration, onReadyToSeek player.ReadyCallback) error {
	p.logger.Debug("native seek", slog.Duration("position", position))
	p.position.Store(int64(position))
	p.mu.Lock()
	streams := append([]player.StreamKind(nil), p.streams...)
	p.mu.Unlock()
	for _, s := range streams {
		onReadyToSeek(s)
	}
	return nil
}

// Stop implements player.NativePlayer. It only halts playback; the
// background position clock keeps running so the same instance can be
// reused across a Reconfigure's Stop/Configure/PrepareAsync cycle
// (spec.md §4.4). Use Close to release the clock goroutine once the
// player is genuinely done.
func (p *LoggingPlayer) Stop(_ context.Context) error {
	p.logger.Debug("native stop")
	p.playing.Store(false)
	return nil
}

// Close releases the background position-clock goroutine. Call it once
// the player is genuinely finished, after the final Stop.
func (p *LoggingPlayer) Close() {
	p.cancel()
}

// CurrentPosition implements player.NativePlayer.
func (p *LoggingPlayer) CurrentPosition() time.Duration {
	return time.Duration(p.position.Load())
}
