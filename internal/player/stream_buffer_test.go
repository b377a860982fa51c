package player

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStreamBufferEvaluateEmitsRequestBelowTarget(t *testing.T) {
	storage := newPacketStorage()
	buf := newStreamBuffer(StreamVideo, storage, 10*time.Second, 2*time.Second, 0, 0)

	buf.Evaluate()

	select {
	case req := <-buf.Requests():
		assert.Equal(t, StreamVideo, req.Stream)
		assert.True(t, req.IsBufferEmpty)
		assert.Equal(t, 10*time.Second, req.DurationNeeded)
	default:
		t.Fatal("expected a DataRequest for an empty buffer")
	}
}

func TestStreamBufferEvaluateNoRequestAtTarget(t *testing.T) {
	storage := newPacketStorage()
	storage.Push(Packet{PTS: 0})
	storage.Push(Packet{PTS: 10 * time.Second})
	buf := newStreamBuffer(StreamAudio, storage, 10*time.Second, 2*time.Second, 0, 0)

	buf.Evaluate()

	select {
	case req := <-buf.Requests():
		t.Fatalf("expected no request, got %+v", req)
	default:
	}
}

func TestStreamBufferEvaluateNoRequestAtMaxBytes(t *testing.T) {
	storage := newPacketStorage()
	storage.Push(Packet{PTS: 0, Data: []byte{1, 2, 3, 4}})
	buf := newStreamBuffer(StreamVideo, storage, 10*time.Second, 2*time.Second, 4, 0)

	buf.Evaluate()

	select {
	case req := <-buf.Requests():
		t.Fatalf("expected no request once at max bytes, got %+v", req)
	default:
	}
}

func TestStreamBufferEvaluateComputesBytesNeededFromBitrate(t *testing.T) {
	storage := newPacketStorage()
	buf := newStreamBuffer(StreamVideo, storage, 10*time.Second, 2*time.Second, 0, 2000)

	buf.Evaluate()

	select {
	case req := <-buf.Requests():
		assert.Equal(t, int64(20000), req.BytesNeeded)
	default:
		t.Fatal("expected a DataRequest for an empty buffer")
	}
}

func TestStreamBufferIsPreBuffered(t *testing.T) {
	storage := newPacketStorage()
	buf := newStreamBuffer(StreamAudio, storage, 10*time.Second, 2*time.Second, 0, 0)
	assert.False(t, buf.IsPreBuffered())

	storage.Push(Packet{PTS: 0})
	storage.Push(Packet{PTS: 3 * time.Second})
	assert.True(t, buf.IsPreBuffered())
}
