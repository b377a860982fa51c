package player

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDataProvider struct {
	mu      sync.Mutex
	emitted int
	seeks   int
	codec   string
}

func (p *testDataProvider) StreamConfigs(ctx context.Context) ([]StreamConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	codec := p.codec
	if codec == "" {
		codec = "h264"
	}
	return []StreamConfig{{Kind: StreamVideo, Codec: codec}}, nil
}

func (p *testDataProvider) ReadPacket(ctx context.Context, stream StreamKind) (Packet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.emitted >= 20 {
		return Packet{Stream: stream, IsEOS: true}, nil
	}
	p.emitted++
	return Packet{
		Stream:   stream,
		PTS:      time.Duration(p.emitted) * 10 * time.Millisecond,
		Data:     []byte{0xAA, 0xBB},
		Keyframe: p.emitted == 1,
	}, nil
}

func (p *testDataProvider) Seek(ctx context.Context, position time.Duration) (SeekGeneration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seeks++
	p.emitted = 0
	return SeekGeneration(p.seeks), nil
}

func (p *testDataProvider) Close() error { return nil }

type testNativePlayer struct {
	mu        sync.Mutex
	configs   []StreamConfig
	fed       []Packet
	prepared  bool
	playing   bool
	paused    bool
	stopped   bool
	seekCalls int
	position  atomic.Int64
	sink      NativeEventSink
}

func (n *testNativePlayer) SetEventSink(sink NativeEventSink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sink = sink
}

// Sink returns the most recently registered NativeEventSink, for tests
// that need to simulate a native-originated event.
func (n *testNativePlayer) Sink() NativeEventSink {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sink
}

func (n *testNativePlayer) Configure(ctx context.Context, cfg StreamConfig) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.configs = append(n.configs, cfg)
	return nil
}

func (n *testNativePlayer) Feed(ctx context.Context, pkt Packet) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fed = append(n.fed, pkt)
	return nil
}

func (n *testNativePlayer) PrepareAsync(ctx context.Context, onReadyToStart ReadyCallback) error {
	n.mu.Lock()
	n.prepared = true
	configs := append([]StreamConfig(nil), n.configs...)
	n.mu.Unlock()
	for _, cfg := range configs {
		onReadyToStart(cfg.Kind)
	}
	return nil
}

func (n *testNativePlayer) Play(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.playing = true
	n.paused = false
	return nil
}

func (n *testNativePlayer) Pause(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paused = true
	n.playing = false
	return nil
}

func (n *testNativePlayer) SeekAsync(ctx context.Context, position time.Duration, onReadyToSeek ReadyCallback) error {
	n.mu.Lock()
	n.seekCalls++
	n.position.Store(int64(position))
	configs := append([]StreamConfig(nil), n.configs...)
	n.mu.Unlock()
	for _, cfg := range configs {
		onReadyToSeek(cfg.Kind)
	}
	return nil
}

func (n *testNativePlayer) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped = true
	return nil
}

func (n *testNativePlayer) CurrentPosition() time.Duration {
	return time.Duration(n.position.Load())
}

func testConfig() Config {
	return Config{
		PreBufferDuration:   30 * time.Millisecond,
		TargetBufferDepth:   60 * time.Millisecond,
		ClockPollInterval:   10 * time.Millisecond,
		BufferEventInterval: 50 * time.Millisecond,
	}
}

func TestStreamControllerPrepareAndPlay(t *testing.T) {
	native := &testNativePlayer{}
	provider := &testDataProvider{}
	sc := NewStreamController(testConfig(), native, provider)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, sc.Prepare(ctx))
	assert.Equal(t, controllerReady, sc.State())

	native.mu.Lock()
	assert.True(t, native.prepared)
	assert.NotEmpty(t, native.configs)
	native.mu.Unlock()

	require.NoError(t, sc.Play(ctx))
	assert.Equal(t, controllerPlaying, sc.State())

	require.Eventually(t, func() bool {
		native.mu.Lock()
		defer native.mu.Unlock()
		return len(native.fed) > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, sc.Pause(ctx))
	assert.Equal(t, controllerPaused, sc.State())

	require.NoError(t, sc.Stop(ctx))
	assert.Equal(t, controllerDisposed, sc.State())
	native.mu.Lock()
	assert.True(t, native.stopped)
	native.mu.Unlock()
}

func TestStreamControllerBufferStats(t *testing.T) {
	native := &testNativePlayer{}
	provider := &testDataProvider{}
	sc := NewStreamController(testConfig(), native, provider)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, sc.Prepare(ctx))

	stats := sc.BufferStats()
	require.Contains(t, stats, StreamVideo)
	assert.GreaterOrEqual(t, stats[StreamVideo].Bytes, int64(0))

	require.NoError(t, sc.Stop(ctx))
}

func TestStreamControllerRejectsPlayBeforePrepare(t *testing.T) {
	sc := NewStreamController(testConfig(), &testNativePlayer{}, &testDataProvider{})
	err := sc.Play(context.Background())
	assert.True(t, IsInvalidState(err))
}

func TestStreamControllerSeek(t *testing.T) {
	native := &testNativePlayer{}
	provider := &testDataProvider{}
	sc := NewStreamController(testConfig(), native, provider)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, sc.Prepare(ctx))
	require.NoError(t, sc.Play(ctx))
	require.NoError(t, sc.Seek(ctx, 5*time.Second))

	native.mu.Lock()
	assert.Equal(t, 1, native.seekCalls)
	native.mu.Unlock()
	assert.Equal(t, controllerPlaying, sc.State())

	require.NoError(t, sc.Stop(ctx))
}

func TestStreamControllerSeekPublishesStartedBeforeCompleted(t *testing.T) {
	native := &testNativePlayer{}
	provider := &testDataProvider{}
	sc := NewStreamController(testConfig(), native, provider)

	var mu sync.Mutex
	var events []string
	sc.onSeekStarted = func(time.Duration) {
		mu.Lock()
		events = append(events, "started")
		mu.Unlock()
	}
	sc.onSeekCompleted = func(time.Duration) {
		mu.Lock()
		events = append(events, "completed")
		mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, sc.Prepare(ctx))
	require.NoError(t, sc.Play(ctx))
	require.NoError(t, sc.Seek(ctx, 2*time.Second))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"started", "completed"}, events)

	require.NoError(t, sc.Stop(ctx))
}

func TestStreamControllerSeekReconfiguresOnCodecChange(t *testing.T) {
	native := &testNativePlayer{}
	provider := &testDataProvider{codec: "h264"}
	sc := NewStreamController(testConfig(), native, provider)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, sc.Prepare(ctx))
	require.NoError(t, sc.Play(ctx))

	provider.mu.Lock()
	provider.codec = "hevc"
	provider.mu.Unlock()

	require.NoError(t, sc.Seek(ctx, time.Second))
	assert.Equal(t, controllerPlaying, sc.State())

	native.mu.Lock()
	assert.True(t, native.stopped, "a destructive reconfigure must stop the native player")
	native.mu.Unlock()

	require.NoError(t, sc.Stop(ctx))
}

func TestStreamControllerBufferUnderrunWakesStream(t *testing.T) {
	native := &testNativePlayer{}
	provider := &testDataProvider{}
	sc := NewStreamController(testConfig(), native, provider)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, sc.Prepare(ctx))

	assert.NotPanics(t, func() {
		sc.BufferStatusChanged(StreamVideo, BufferUnderrun)
	})

	require.NoError(t, sc.Stop(ctx))
}

func TestStreamControllerEOSEmittedCompletesController(t *testing.T) {
	native := &testNativePlayer{}
	provider := &testDataProvider{}
	sc := NewStreamController(testConfig(), native, provider)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, sc.Prepare(ctx))
	require.NoError(t, sc.Play(ctx))

	sc.EOSEmitted()

	require.Eventually(t, func() bool {
		return sc.State() == controllerCompleted
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, sc.Stop(ctx))
}

func TestPlayerControllerNotifiesStateChanges(t *testing.T) {
	native := &testNativePlayer{}
	provider := &testDataProvider{}

	var mu sync.Mutex
	var states []PlayerState
	client := &recordingClient{
		onState: func(s PlayerState) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	}

	pc := NewPlayerController(testConfig(), native, provider, client)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, pc.Prepare(ctx))
	require.NoError(t, pc.Play(ctx))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) >= 2
	}, time.Second, 5*time.Millisecond)

	native.Sink().EOSEmitted()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return containsState(states, StateCompleted)
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, pc.Stop(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, StatePrepared)
	assert.Contains(t, states, StatePlaying)
	assert.Contains(t, states, StateCompleted)
}

func TestPlayerControllerStopMapsToIdle(t *testing.T) {
	native := &testNativePlayer{}
	provider := &testDataProvider{}

	pc := NewPlayerController(testConfig(), native, provider, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, pc.Prepare(ctx))
	require.NoError(t, pc.Stop(ctx))
	assert.Equal(t, StateIdle, pc.State())
}

func TestPlayerControllerRejectsReentrantSeek(t *testing.T) {
	native := &testNativePlayer{}
	provider := &testDataProvider{}
	pc := NewPlayerController(testConfig(), native, provider, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, pc.Prepare(ctx))
	require.NoError(t, pc.Play(ctx))

	pc.seeking.Store(true)
	err := pc.Seek(ctx, time.Second)
	assert.True(t, IsInvalidState(err))
	pc.seeking.Store(false)

	require.NoError(t, pc.Stop(ctx))
}

func TestPlayerControllerClampsSeekToDuration(t *testing.T) {
	native := &testNativePlayer{}
	provider := &testDataProvider{}
	pc := NewPlayerController(testConfig(), native, provider, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pc.OnClipDurationChanged(5 * time.Second)

	require.NoError(t, pc.Prepare(ctx))
	require.NoError(t, pc.Play(ctx))
	require.NoError(t, pc.Seek(ctx, 30*time.Second))

	assert.Equal(t, 5*time.Second, pc.CurrentTime())

	require.NoError(t, pc.Stop(ctx))
}

func TestPlayerControllerBufferingStateChangedPausesAndResumes(t *testing.T) {
	native := &testNativePlayer{}
	provider := &testDataProvider{}

	var mu sync.Mutex
	var progress []int
	client := &recordingClient{
		onBufferingProgress: func(p int) {
			mu.Lock()
			progress = append(progress, p)
			mu.Unlock()
		},
	}
	pc := NewPlayerController(testConfig(), native, provider, client)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, pc.Prepare(ctx))
	require.NoError(t, pc.Play(ctx))

	pc.OnBufferingStateChanged(true)
	assert.Equal(t, StatePaused, pc.State())

	pc.OnBufferingStateChanged(false)
	assert.Equal(t, StatePlaying, pc.State())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(progress) >= 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []int{0, 100}, progress)
	mu.Unlock()

	require.NoError(t, pc.Stop(ctx))
}

func containsState(states []PlayerState, target PlayerState) bool {
	for _, s := range states {
		if s == target {
			return true
		}
	}
	return false
}

type recordingClient struct {
	onState             func(PlayerState)
	onBufferingProgress func(int)
}

func (c *recordingClient) OnStateChanged(state PlayerState) {
	if c.onState != nil {
		c.onState(state)
	}
}
func (c *recordingClient) OnBufferStatus(stream StreamKind, status BufferStatus) {}
func (c *recordingClient) OnError(err error)                                    {}
func (c *recordingClient) OnSeekStarted(position time.Duration)                 {}
func (c *recordingClient) OnSeekCompleted(position time.Duration)               {}
func (c *recordingClient) OnDRMInitDataFound(stream StreamKind, initData []byte) {}
func (c *recordingClient) OnBufferingProgress(percent int) {
	if c.onBufferingProgress != nil {
		c.onBufferingProgress(percent)
	}
}
