// Package tsprovider is a reference player.DataProvider backed by an
// MPEG Transport Stream read from an io.ReadSeeker, for smoke-testing a
// player.StreamController without a real native player or network
// source. It demuxes PAT/PMT to discover stream configurations and PES
// packets to produce elementary-stream access units.
package tsprovider

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/asticode/go-astits"

	"github.com/jmylchreest/esplayer/internal/codec"
	"github.com/jmylchreest/esplayer/internal/player"
)

// Provider demuxes one MPEG-TS source into elementary-stream packets.
type Provider struct {
	src io.ReadSeeker

	mu      sync.Mutex
	demuxer *astits.Demuxer
	pids    map[uint16]player.StreamKind
	configs []player.StreamConfig

	generation player.SeekGeneration

	queues map[player.StreamKind]chan player.Packet
}

// New constructs a Provider over src. The stream is not demuxed until
// StreamConfigs is first called.
func New(src io.ReadSeeker) *Provider {
	return &Provider{
		src:    src,
		pids:   make(map[uint16]player.StreamKind),
		queues: map[player.StreamKind]chan player.Packet{
			player.StreamAudio: make(chan player.Packet, 64),
			player.StreamVideo: make(chan player.Packet, 64),
		},
	}
}

// StreamConfigs demuxes the PAT/PMT to discover the program's elementary
// streams, starting the background demux loop on first call. Elementary
// streams whose codec mediacommon cannot demux are skipped rather than
// surfaced as a StreamConfig the native player could never decode.
func (p *Provider) StreamConfigs(ctx context.Context) ([]player.StreamConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.demuxer == nil {
		if _, err := p.src.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("tsprovider: seek to start: %w", err)
		}
		p.demuxer = astits.NewDemuxer(ctx, p.src)
	}

	for len(p.configs) == 0 {
		data, err := p.demuxer.NextData()
		if err != nil {
			if err == astits.ErrNoMorePackets || err == io.EOF {
				return nil, fmt.Errorf("tsprovider: end of stream before PMT")
			}
			return nil, fmt.Errorf("tsprovider: demux: %w", err)
		}
		if data.PMT == nil {
			continue
		}
		for _, es := range data.PMT.ElementaryStreams {
			streamType := uint8(es.StreamType)
			if v, ok := codec.VideoFromMPEGTSStreamType(streamType); ok {
				if !codec.IsVideoDemuxable(string(v)) {
					continue
				}
				p.pids[es.ElementaryPID] = player.StreamVideo
				p.configs = append(p.configs, player.StreamConfig{Kind: player.StreamVideo, Codec: string(v)})
				continue
			}
			if a, ok := codec.AudioFromMPEGTSStreamType(streamType); ok {
				if !codec.IsAudioDemuxable(string(a)) {
					continue
				}
				p.pids[es.ElementaryPID] = player.StreamAudio
				p.configs = append(p.configs, player.StreamConfig{Kind: player.StreamAudio, Codec: string(a)})
			}
		}
	}

	go p.demuxLoop(ctx)
	return p.configs, nil
}

// demuxLoop drains PES packets from the demuxer and routes them to the
// per-stream queue by PID, until ctx is cancelled or the stream ends.
func (p *Provider) demuxLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, err := p.demuxer.NextData()
		if err != nil {
			if err == astits.ErrNoMorePackets || err == io.EOF {
				p.broadcastEOS()
				return
			}
			continue
		}
		if data.PES == nil {
			continue
		}

		p.mu.Lock()
		kind, ok := p.pids[data.PID]
		gen := p.generation
		p.mu.Unlock()
		if !ok {
			continue
		}

		pkt := player.Packet{
			Stream:     kind,
			Data:       data.PES.Data,
			Generation: gen,
		}
		if h := data.PES.Header; h != nil && h.OptionalHeader != nil {
			if h.OptionalHeader.PTS != nil {
				pkt.PTS = time.Duration(h.OptionalHeader.PTS.Base) * time.Second / 90000
			}
			if h.OptionalHeader.DTS != nil {
				pkt.DTS = time.Duration(h.OptionalHeader.DTS.Base) * time.Second / 90000
			}
		}

		select {
		case p.queues[kind] <- pkt:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Provider) broadcastEOS() {
	for kind, q := range p.queues {
		select {
		case q <- player.Packet{Stream: kind, IsEOS: true}:
		default:
		}
	}
}

// ReadPacket returns the next packet queued for stream, blocking until
// one is available or ctx is cancelled.
func (p *Provider) ReadPacket(ctx context.Context, stream player.StreamKind) (player.Packet, error) {
	p.mu.Lock()
	q, ok := p.queues[stream]
	p.mu.Unlock()
	if !ok {
		return player.Packet{}, fmt.Errorf("tsprovider: unknown stream %s", stream)
	}
	select {
	case pkt := <-q:
		return pkt, nil
	case <-ctx.Done():
		return player.Packet{}, ctx.Err()
	}
}

// Seek is unsupported: this reference provider only demonstrates
// forward playback of a transport stream. Callers needing seek should
// implement DataProvider against a seekable source format instead.
func (p *Provider) Seek(ctx context.Context, position time.Duration) (player.SeekGeneration, error) {
	return 0, fmt.Errorf("tsprovider: seek not supported")
}

// Close releases the underlying source if it implements io.Closer.
func (p *Provider) Close() error {
	if c, ok := p.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
