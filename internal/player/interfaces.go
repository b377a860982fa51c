package player

import (
	"context"
	"time"
)

// ReadyCallback is invoked by a NativePlayer, potentially from a thread
// the caller does not control, to report that a given stream is ready to
// start (or resume, after a seek) receiving fed packets. Implementations
// of NativePlayer must treat the controller as a black box from this
// callback: the controller marshals it onto its event scheduler before
// touching any internal state, so PrepareAsync/SeekAsync callers never
// need to synchronize around it themselves.
type ReadyCallback func(stream StreamKind)

// NativeEventSink receives asynchronous notifications a NativePlayer
// raises on its own, outside of any method call the controller made.
// Implementations of NativePlayer must route these through whatever sink
// was last registered via SetEventSink, and must assume the call may
// arrive from a different goroutine than the one that called
// SetEventSink.
type NativeEventSink interface {
	// EOSEmitted reports that every fed stream has been fully consumed
	// and the native player has nothing left to output.
	EOSEmitted()

	// ErrorOccurred reports an unrecoverable native-side failure.
	ErrorOccurred(msg string)

	// BufferStatusChanged reports a buffer-level event for a stream: an
	// underrun (native queue ran dry) or an overrun (native queue is
	// full and rejecting further Feed calls).
	BufferStatusChanged(stream StreamKind, status BufferStatus)
}

// NativePlayer is the platform-specific playback engine this controller
// drives. Implementations wrap a vendor SDK (e.g. a hardware decoder
// binding); this package never talks to such an SDK directly. All
// methods may be called from the controller's single operation-serializer
// goroutine and must not block indefinitely; long-running work should
// be done asynchronously and reported back through the ReadyCallback
// arguments or the registered NativeEventSink.
type NativePlayer interface {
	// SetEventSink registers the sink EOSEmitted/ErrorOccurred/
	// BufferStatusChanged are reported to. The controller calls this
	// once, before the first Configure, and again after any Reconfigure
	// that replaces the underlying decode pipeline.
	SetEventSink(sink NativeEventSink)

	// Configure supplies or updates the codec configuration for a
	// stream. Called once per stream before the first Feed, and again
	// whenever StreamReconfigureRequired is detected.
	Configure(ctx context.Context, cfg StreamConfig) error

	// Feed delivers one elementary-stream access unit to the native
	// player's input queue for the given stream. Returns
	// StreamReconfigureRequired if the native player rejects the
	// packet because its configuration is stale.
	Feed(ctx context.Context, pkt Packet) error

	// PrepareAsync begins native-side preparation (opening the decode
	// pipeline). PrepareAsync itself must return once the request has
	// been accepted, not once preparation finishes; actual per-stream
	// readiness is reported by invoking onReadyToStart, once for each
	// stream previously passed to Configure.
	PrepareAsync(ctx context.Context, onReadyToStart ReadyCallback) error

	// Play resumes or starts playback from the current position.
	Play(ctx context.Context) error

	// Pause suspends playback without discarding buffered data.
	Pause(ctx context.Context) error

	// SeekAsync requests a seek to position. SeekAsync itself must
	// return once the request has been accepted; per-stream readiness
	// to resume feeding is reported by invoking onReadyToSeek, once for
	// each active stream.
	SeekAsync(ctx context.Context, position time.Duration, onReadyToSeek ReadyCallback) error

	// Stop halts playback and releases native decode resources. The
	// native player must not invoke any further callbacks after Stop
	// returns.
	Stop(ctx context.Context) error

	// CurrentPosition returns the native player's current playback
	// position.
	CurrentPosition() time.Duration
}

// PlayerClient receives state and error notifications from the
// controller. Implementations are typically an application's UI layer or
// an integration test harness. All methods are invoked from the
// controller's event-scheduler goroutine (see spec.md §5) and must not
// call back into the Controller synchronously.
type PlayerClient interface {
	// OnStateChanged is called whenever the controller's externally
	// observable PlayerState transitions.
	OnStateChanged(state PlayerState)

	// OnSeekStarted is called the moment a Seek operation begins,
	// before any provider or native interaction, so a client can freeze
	// its own position display ahead of OnSeekCompleted.
	OnSeekStarted(position time.Duration)

	// OnSeekCompleted is called when a Seek operation finishes,
	// reporting the position actually reached.
	OnSeekCompleted(position time.Duration)

	// OnBufferStatus is called when the native player reports a buffer
	// underrun or overrun condition for a stream.
	OnBufferStatus(stream StreamKind, status BufferStatus)

	// OnBufferingProgress is called when the data provider's own
	// buffering state changes, independent of native buffer status: 0
	// when buffering begins, 100 when it ends and playback may resume.
	OnBufferingProgress(percent int)

	// OnDRMInitDataFound forwards DRM initialization data discovered by
	// the data provider; the controller never inspects its contents.
	OnDRMInitDataFound(stream StreamKind, initData []byte)

	// OnError is called when a controller operation fails or the native
	// player reports an error; cancellations are not reported. Only a
	// native-player error moves the controller to StateError before this
	// call; a failed operation is reported without that transition.
	OnError(err error)
}

// DataProvider is the upstream source of encoded packets and stream
// configuration, e.g. a network demuxer or a local file reader.
// Implementations must be safe for concurrent use by multiple streams'
// transfer tasks, but need not be reentrant for a single stream.
type DataProvider interface {
	// StreamConfigs returns the StreamConfig for every stream the
	// provider currently exposes. Called once during Prepare and again
	// after any client-initiated Seek, so a provider
	// that detects a codec change across a seek boundary can surface
	// it here.
	StreamConfigs(ctx context.Context) ([]StreamConfig, error)

	// ReadPacket blocks until a packet is available for the requested
	// stream, the context is cancelled, or the stream reaches end of
	// data (returning a Packet with IsEOS set and a nil error).
	ReadPacket(ctx context.Context, stream StreamKind) (Packet, error)

	// Seek repositions every stream to position and returns the seek
	// generation subsequent ReadPacket calls will tag their packets
	// with. Implementations must ensure no packet from before the seek
	// is returned with the new generation.
	Seek(ctx context.Context, position time.Duration) (SeekGeneration, error)

	// Close releases any resources held by the provider (network
	// connections, file handles). Subsequent calls to other methods
	// are undefined after Close.
	Close() error
}
