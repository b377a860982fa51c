package nativeplayer

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/esplayer/internal/player"
)

type recordingSink struct {
	mu      sync.Mutex
	eos     int
	errs    []string
	buffers []player.BufferStatus
}

func (s *recordingSink) EOSEmitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eos++
}

func (s *recordingSink) ErrorOccurred(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, msg)
}

func (s *recordingSink) BufferStatusChanged(_ player.StreamKind, status player.BufferStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers = append(s.buffers, status)
}

func TestLoggingPlayer_PlayAdvancesPosition(t *testing.T) {
	p := NewLoggingPlayer(slog.Default())
	defer p.Close()
	defer p.Stop(context.Background())

	require.NoError(t, p.Play(context.Background()))
	require.Eventually(t, func() bool {
		return p.CurrentPosition() > 0
	}, time.Second, 10*time.Millisecond)
}

func TestLoggingPlayer_PauseHaltsPosition(t *testing.T) {
	p := NewLoggingPlayer(slog.Default())
	defer p.Close()
	defer p.Stop(context.Background())

	require.NoError(t, p.Play(context.Background()))
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, p.Pause(context.Background()))
	pos := p.CurrentPosition()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, pos, p.CurrentPosition())
}

func TestLoggingPlayer_SeekAsyncSetsPositionAndReportsReady(t *testing.T) {
	p := NewLoggingPlayer(slog.Default())
	defer p.Close()
	defer p.Stop(context.Background())

	require.NoError(t, p.Configure(context.Background(), player.StreamConfig{Kind: player.StreamVideo, Codec: "h264"}))

	var ready []player.StreamKind
	err := p.SeekAsync(context.Background(), 5*time.Second, func(kind player.StreamKind) {
		ready = append(ready, kind)
	})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, p.CurrentPosition())
	assert.Equal(t, []player.StreamKind{player.StreamVideo}, ready)
}

func TestLoggingPlayer_FeedNeverRejects(t *testing.T) {
	p := NewLoggingPlayer(slog.Default())
	defer p.Close()
	defer p.Stop(context.Background())

	err := p.Feed(context.Background(), player.Packet{Stream: player.StreamVideo, PTS: time.Second})
	assert.NoError(t, err)
}

func TestLoggingPlayer_FeedEOSNotifiesSink(t *testing.T) {
	p := NewLoggingPlayer(slog.Default())
	defer p.Close()
	defer p.Stop(context.Background())

	sink := &recordingSink{}
	p.SetEventSink(sink)

	require.NoError(t, p.Feed(context.Background(), player.Packet{Stream: player.StreamVideo, IsEOS: true}))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, 1, sink.eos)
}

func TestLoggingPlayer_ConfigureAndPrepareReportsEveryStream(t *testing.T) {
	p := NewLoggingPlayer(slog.Default())
	defer p.Close()
	defer p.Stop(context.Background())

	require.NoError(t, p.Configure(context.Background(), player.StreamConfig{Kind: player.StreamAudio, Codec: "aac"}))
	require.NoError(t, p.Configure(context.Background(), player.StreamConfig{Kind: player.StreamVideo, Codec: "h264"}))

	var ready []player.StreamKind
	err := p.PrepareAsync(context.Background(), func(kind player.StreamKind) {
		ready = append(ready, kind)
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []player.StreamKind{player.StreamAudio, player.StreamVideo}, ready)
}

func TestLoggingPlayer_StopIsReusableAcrossReconfigure(t *testing.T) {
	p := NewLoggingPlayer(slog.Default())
	defer p.Close()

	require.NoError(t, p.Configure(context.Background(), player.StreamConfig{Kind: player.StreamVideo, Codec: "h264"}))
	require.NoError(t, p.Play(context.Background()))
	time.Sleep(120 * time.Millisecond)
	require.NoError(t, p.Stop(context.Background()))
	posAtStop := p.CurrentPosition()

	// The position clock must still be running after Stop so the same
	// instance can be driven through another Configure/PrepareAsync/Play
	// cycle, as StreamController.reconfigureAllLocked does.
	require.NoError(t, p.Play(context.Background()))
	require.Eventually(t, func() bool {
		return p.CurrentPosition() > posAtStop
	}, time.Second, 10*time.Millisecond)
}
