package player

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	closed bool
}

func (f *fakeProvider) StreamConfigs(ctx context.Context) ([]StreamConfig, error) {
	return []StreamConfig{{Kind: StreamVideo, Codec: "h264"}}, nil
}

func (f *fakeProvider) ReadPacket(ctx context.Context, stream StreamKind) (Packet, error) {
	return Packet{Stream: stream, IsEOS: true}, nil
}

func (f *fakeProvider) Seek(ctx context.Context, position time.Duration) (SeekGeneration, error) {
	return 1, nil
}

func (f *fakeProvider) Close() error {
	f.closed = true
	return nil
}

func TestDataProviderConnectorFromProviderFanOut(t *testing.T) {
	conn := newDataProviderConnector(&fakeProvider{})
	h1, ch1 := conn.SubscribeFromProvider()
	_, ch2 := conn.SubscribeFromProvider()

	conn.PublishFromProvider(ProviderEvent{Kind: EventStreamConfigReady, Stream: StreamVideo})

	evt1 := <-ch1
	evt2 := <-ch2
	assert.Equal(t, StreamVideo, evt1.Stream)
	assert.Equal(t, StreamVideo, evt2.Stream)

	conn.UnsubscribeFromProvider(h1)
	_, open := <-ch1
	assert.False(t, open)
}

func TestDataProviderConnectorToProviderFanOut(t *testing.T) {
	conn := newDataProviderConnector(&fakeProvider{})
	h1, ch1 := conn.SubscribeToProvider()

	conn.PublishToProvider(ControllerEvent{Kind: EventTimeUpdated, Position: 5 * time.Second})

	evt := <-ch1
	assert.Equal(t, 5*time.Second, evt.Position)

	conn.UnsubscribeToProvider(h1)
	_, open := <-ch1
	assert.False(t, open)
}

func TestDataProviderConnectorSeekSuspendsBothSets(t *testing.T) {
	conn := newDataProviderConnector(&fakeProvider{})
	_, fromCh := conn.SubscribeFromProvider()
	_, toCh := conn.SubscribeToProvider()

	conn.mu.Lock()
	conn.seeking = true
	conn.mu.Unlock()

	conn.PublishFromProvider(ProviderEvent{Stream: StreamVideo})
	conn.PublishToProvider(ControllerEvent{Position: time.Second})

	select {
	case <-fromCh:
		t.Fatal("expected no provider event delivered while seeking")
	default:
	}
	select {
	case <-toCh:
		t.Fatal("expected no controller event delivered while seeking")
	default:
	}

	conn.mu.Lock()
	conn.seeking = false
	conn.mu.Unlock()

	conn.PublishFromProvider(ProviderEvent{Stream: StreamVideo})
	evt := <-fromCh
	assert.Equal(t, StreamVideo, evt.Stream)
}

func TestDataProviderConnectorSeekReturnsGeneration(t *testing.T) {
	conn := newDataProviderConnector(&fakeProvider{})
	gen, err := conn.Seek(context.Background(), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, SeekGeneration(1), gen)

	conn.mu.RLock()
	seeking := conn.seeking
	conn.mu.RUnlock()
	assert.False(t, seeking, "Seek must clear the suspension flag before returning")
}

func TestDataProviderConnectorClose(t *testing.T) {
	fp := &fakeProvider{}
	conn := newDataProviderConnector(fp)
	_, fromCh := conn.SubscribeFromProvider()
	_, toCh := conn.SubscribeToProvider()

	require.NoError(t, conn.Close())
	assert.True(t, fp.closed)
	_, open := <-fromCh
	assert.False(t, open)
	_, open = <-toCh
	assert.False(t, open)
}
