package player

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProviderEventKind classifies a ProviderEvent.
type ProviderEventKind int

// Provider event kinds.
const (
	EventClipDurationChanged ProviderEventKind = iota
	EventDRMInitDataFound
	EventStreamConfigReady
	EventPacketReady
	EventStreamError
	EventProviderBufferingStateChanged
)

// ProviderEvent is a notification flowing from a DataProvider toward the
// controller, outside of the normal pull-based ReadPacket path: a
// mid-stream configuration change, DRM key material, a clip-duration
// update, or a provider-detected buffering condition.
type ProviderEvent struct {
	Kind      ProviderEventKind
	Stream    StreamKind
	Config    StreamConfig
	Packet    Packet
	DRMInit   []byte
	Err       error
	Duration  time.Duration
	Buffering bool
}

// ControllerEventKind classifies a ControllerEvent.
type ControllerEventKind int

// Controller event kinds.
const (
	EventTimeUpdated ControllerEventKind = iota
	EventStateChanged
	EventDataStateChanged
	EventControllerBufferingStateChanged
)

// ControllerEvent is a notification flowing from the controller toward
// the DataProvider: a position update, a state change, or a buffering
// condition the provider may want to react to (e.g. throttling reads).
type ControllerEvent struct {
	Kind      ControllerEventKind
	Position  time.Duration
	State     PlayerState
	Request   DataRequest
	Buffering bool
}

// SubscriptionHandle identifies a registered subscriber so it can later
// unsubscribe. The zero value is never returned by a Subscribe method.
type SubscriptionHandle uuid.UUID

// dataProviderConnector is the bidirectional subscription bus sitting
// between a StreamController and a DataProvider (spec.md §4.6). It
// maintains two independent subscription sets: fromProvider carries
// provider-originated notifications (ClipDurationChanged,
// DRMInitDataFound, StreamConfigReady, PacketReady, StreamError,
// BufferingStateChanged) and toProvider carries controller-originated
// notifications (TimeUpdated, StateChanged, DataStateChanged,
// BufferingStateChanged) the other direction. A client-initiated Seek
// suspends delivery on both sets for the duration of the underlying
// provider repositioning call, via the seeking flag, so neither side
// observes a stray event describing the pre-seek position while the
// provider settles into its new one.
type dataProviderConnector struct {
	provider DataProvider

	mu           sync.RWMutex
	seeking      bool
	fromProvider map[uuid.UUID]chan ProviderEvent
	toProvider   map[uuid.UUID]chan ControllerEvent
}

// newDataProviderConnector wraps provider with a subscription bus.
func newDataProviderConnector(provider DataProvider) *dataProviderConnector {
	return &dataProviderConnector{
		provider:     provider,
		fromProvider: make(map[uuid.UUID]chan ProviderEvent),
		toProvider:   make(map[uuid.UUID]chan ControllerEvent),
	}
}

// SubscribeFromProvider registers for provider-to-controller
// notifications. The returned channel is closed on
// UnsubscribeFromProvider or Close.
func (c *dataProviderConnector) SubscribeFromProvider() (SubscriptionHandle, <-chan ProviderEvent) {
	id := uuid.New()
	ch := make(chan ProviderEvent, 8)
	c.mu.Lock()
	c.fromProvider[id] = ch
	c.mu.Unlock()
	return SubscriptionHandle(id), ch
}

// UnsubscribeFromProvider removes a subscriber registered via
// SubscribeFromProvider. It is safe to call more than once for the same
// handle.
func (c *dataProviderConnector) UnsubscribeFromProvider(handle SubscriptionHandle) {
	id := uuid.UUID(handle)
	c.mu.Lock()
	ch, ok := c.fromProvider[id]
	if ok {
		delete(c.fromProvider, id)
	}
	c.mu.Unlock()
	if ok {
		close(ch)
	}
}

// PublishFromProvider fans out evt to every subscriber registered via
// SubscribeFromProvider. It drops evt entirely while a Seek is
// suspending delivery, and for any individual subscriber whose channel
// is currently full.
func (c *dataProviderConnector) PublishFromProvider(evt ProviderEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.seeking {
		return
	}
	for _, ch := range c.fromProvider {
		select {
		case ch <- evt:
		default:
		}
	}
}

// SubscribeToProvider registers for controller-to-provider
// notifications.
func (c *dataProviderConnector) SubscribeToProvider() (SubscriptionHandle, <-chan ControllerEvent) {
	id := uuid.New()
	ch := make(chan ControllerEvent, 8)
	c.mu.Lock()
	c.toProvider[id] = ch
	c.mu.Unlock()
	return SubscriptionHandle(id), ch
}

// UnsubscribeToProvider removes a subscriber registered via
// SubscribeToProvider.
func (c *dataProviderConnector) UnsubscribeToProvider(handle SubscriptionHandle) {
	id := uuid.UUID(handle)
	c.mu.Lock()
	ch, ok := c.toProvider[id]
	if ok {
		delete(c.toProvider, id)
	}
	c.mu.Unlock()
	if ok {
		close(ch)
	}
}

// PublishToProvider fans out evt to every subscriber registered via
// SubscribeToProvider, subject to the same Seek-suspension rule as
// PublishFromProvider.
func (c *dataProviderConnector) PublishToProvider(evt ControllerEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.seeking {
		return
	}
	for _, ch := range c.toProvider {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Seek suspends delivery on both subscription sets, repositions the
// underlying provider, and resumes delivery before returning on every
// exit path, including a provider error.
func (c *dataProviderConnector) Seek(ctx context.Context, position time.Duration) (SeekGeneration, error) {
	c.mu.Lock()
	c.seeking = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.seeking = false
		c.mu.Unlock()
	}()
	return c.provider.Seek(ctx, position)
}

// Provider returns the wrapped DataProvider for direct use by the
// streams that own the actual transfer tasks.
func (c *dataProviderConnector) Provider() DataProvider {
	return c.provider
}

// Close unsubscribes every active subscriber on both sets and closes the
// underlying provider.
func (c *dataProviderConnector) Close() error {
	c.mu.Lock()
	from := c.fromProvider
	to := c.toProvider
	c.fromProvider = make(map[uuid.UUID]chan ProviderEvent)
	c.toProvider = make(map[uuid.UUID]chan ControllerEvent)
	c.mu.Unlock()
	for _, ch := range from {
		close(ch)
	}
	for _, ch := range to {
		close(ch)
	}
	return c.provider.Close()
}
