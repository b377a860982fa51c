package player

import (
	"sync"
	"time"
)

// packetStorage is a per-stream FIFO of pending packets, tracking the
// cumulative byte size and presentation-time span of what it holds so a
// streamBuffer can decide when to request more data or throttle the
// transfer task. It is deliberately unbounded in packet count; callers
// enforce capacity via PendingDuration/Bytes against configured
// limits rather than a fixed slice size, since packet sizes vary wildly
// between streams.
type packetStorage struct {
	mu      sync.Mutex
	packets []Packet
	bytes   int64
	// generation is the seek generation this storage currently accepts;
	// packets tagged with an older generation are dropped on Push.
	generation SeekGeneration
}

// newPacketStorage returns an empty packetStorage.
func newPacketStorage() *packetStorage {
	return &packetStorage{}
}

// Push appends pkt unless it belongs to a generation older than the one
// this storage currently accepts (a straggler from before a Seek),
// returning whether it was accepted.
func (p *packetStorage) Push(pkt Packet) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pkt.Generation < p.generation {
		return false
	}
	p.packets = append(p.packets, pkt)
	p.bytes += int64(len(pkt.Data))
	return true
}

// Pop removes and returns the oldest packet, if any.
func (p *packetStorage) Pop() (Packet, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.packets) == 0 {
		return Packet{}, false
	}
	pkt := p.packets[0]
	p.packets = p.packets[1:]
	p.bytes -= int64(len(pkt.Data))
	return pkt, true
}

// Peek returns the oldest packet without removing it.
func (p *packetStorage) Peek() (Packet, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.packets) == 0 {
		return Packet{}, false
	}
	return p.packets[0], true
}

// Len returns the number of queued packets.
func (p *packetStorage) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.packets)
}

// Bytes returns the cumulative size of queued packet payloads.
func (p *packetStorage) Bytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bytes
}

// PendingDuration returns the PTS span from the oldest to the newest
// queued data packet. Config/EOS markers do not extend the span.
func (p *packetStorage) PendingDuration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first, last time.Duration
	found := false
	for _, pkt := range p.packets {
		if pkt.IsConfig || pkt.IsEOS {
			continue
		}
		if !found {
			first = pkt.PTS
			last = pkt.PTS
			found = true
			continue
		}
		if pkt.PTS < first {
			first = pkt.PTS
		}
		if pkt.PTS > last {
			last = pkt.PTS
		}
	}
	if !found {
		return 0
	}
	return last - first
}

// Reset discards all queued packets and bumps the accepted generation,
// causing any in-flight stragglers from the previous generation to be
// rejected by subsequent Push calls.
func (p *packetStorage) Reset(newGeneration SeekGeneration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.packets = nil
	p.bytes = 0
	p.generation = newGeneration
}
