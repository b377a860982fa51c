// Package codec provides a unified codec registry for video and audio codecs.
// It identifies and normalizes codec names as they arrive from a data
// provider (MPEG-TS PMT entries, manifest codec strings, and similar), and
// tracks which codecs this module's MPEG-TS demuxing path can actually
// parse into elementary-stream access units.
package codec

import "strings"

// Video represents a video codec.
type Video string

// Video codec constants.
const (
	VideoH264 Video = "h264" // H.264/AVC
	VideoH265 Video = "h265" // H.265/HEVC
	VideoVP8  Video = "vp8"  // VP8
	VideoVP9  Video = "vp9"  // VP9
	VideoAV1  Video = "av1"  // AV1
	// Legacy/less common codecs (for detection only)
	VideoMPEG1 Video = "mpeg1"
	VideoMPEG2 Video = "mpeg2"
	VideoMPEG4 Video = "mpeg4"
	VideoVC1   Video = "vc1"
)

// Audio represents an audio codec.
type Audio string

// Audio codec constants.
const (
	AudioAAC    Audio = "aac"    // AAC
	AudioMP3    Audio = "mp3"    // MP3
	AudioAC3    Audio = "ac3"    // Dolby Digital (AC-3)
	AudioEAC3   Audio = "eac3"   // Dolby Digital Plus (E-AC-3)
	AudioOpus   Audio = "opus"   // Opus
	AudioVorbis Audio = "vorbis" // Vorbis
	AudioFLAC   Audio = "flac"   // FLAC
	AudioDTS    Audio = "dts"    // DTS
)

// Container represents a media container/transport format the data
// provider may deliver packets as.
type Container string

// Container format constants.
const (
	ContainerAuto   Container = "auto"   // unspecified, infer from stream
	ContainerMPEGTS Container = "mpegts" // MPEG Transport Stream
	ContainerFMP4   Container = "fmp4"   // Fragmented MP4 (CMAF)
)

// String returns the string representation of the video codec.
func (v Video) String() string {
	return string(v)
}

// String returns the string representation of the audio codec.
func (a Audio) String() string {
	return string(a)
}

// String returns the string representation of the container.
func (c Container) String() string {
	return string(c)
}

// videoInfo contains metadata about a video codec.
type videoInfo struct {
	Name Video
	// All known aliases seen in manifests/streams that map to this codec
	Aliases []string
	// Whether this module's MPEG-TS demuxer can parse this codec's packets
	Demuxable bool
	// MPEG-TS stream type identifier (0 if not applicable)
	MPEGTSStreamType uint8
}

// audioInfo contains metadata about an audio codec.
type audioInfo struct {
	Name             Audio
	Aliases          []string
	Demuxable        bool
	MPEGTSStreamType uint8
}

// MPEG-TS stream type constants.
const (
	StreamTypeH264 uint8 = 0x1B
	StreamTypeH265 uint8 = 0x24
	StreamTypeAAC  uint8 = 0x0F
	StreamTypeAC3  uint8 = 0x81
	StreamTypeEAC3 uint8 = 0x87
	StreamTypeMP3  uint8 = 0x03
)

// videoRegistry contains all video codec definitions.
var videoRegistry = map[Video]*videoInfo{
	VideoH264: {
		Name:             VideoH264,
		Aliases:          []string{"h264", "avc", "avc1", "h.264"},
		Demuxable:        true,
		MPEGTSStreamType: StreamTypeH264,
	},
	VideoH265: {
		Name:             VideoH265,
		Aliases:          []string{"h265", "hevc", "hev1", "hvc1", "h.265"},
		Demuxable:        true,
		MPEGTSStreamType: StreamTypeH265,
	},
	VideoVP8: {
		Name:      VideoVP8,
		Aliases:   []string{"vp8"},
		Demuxable: false,
	},
	VideoVP9: {
		Name:      VideoVP9,
		Aliases:   []string{"vp9", "vp09"},
		Demuxable: false,
	},
	VideoAV1: {
		Name:      VideoAV1,
		Aliases:   []string{"av1", "av01"},
		Demuxable: false,
	},
	VideoMPEG1: {
		Name:             VideoMPEG1,
		Aliases:          []string{"mpeg1", "mpeg1video"},
		Demuxable:        true,
		MPEGTSStreamType: 0x01,
	},
	VideoMPEG2: {
		Name:             VideoMPEG2,
		Aliases:          []string{"mpeg2", "mpeg2video"},
		Demuxable:        true,
		MPEGTSStreamType: 0x02,
	},
	VideoMPEG4: {
		Name:             VideoMPEG4,
		Aliases:          []string{"mpeg4"},
		Demuxable:        true,
		MPEGTSStreamType: 0x10,
	},
	VideoVC1: {
		Name:      VideoVC1,
		Aliases:   []string{"vc1", "wmv3"},
		Demuxable: false,
	},
}

// audioRegistry contains all audio codec definitions.
var audioRegistry = map[Audio]*audioInfo{
	AudioAAC: {
		Name:             AudioAAC,
		Aliases:          []string{"aac", "mp4a"},
		Demuxable:        true,
		MPEGTSStreamType: StreamTypeAAC,
	},
	AudioMP3: {
		Name:             AudioMP3,
		Aliases:          []string{"mp3", "mp3float"},
		Demuxable:        true,
		MPEGTSStreamType: StreamTypeMP3,
	},
	AudioAC3: {
		Name:             AudioAC3,
		Aliases:          []string{"ac3", "ac-3", "a52"},
		Demuxable:        true,
		MPEGTSStreamType: StreamTypeAC3,
	},
	AudioEAC3: {
		Name:             AudioEAC3,
		Aliases:          []string{"eac3", "ec-3"},
		Demuxable:        false,
		MPEGTSStreamType: StreamTypeEAC3,
	},
	AudioOpus: {
		Name:      AudioOpus,
		Aliases:   []string{"opus"},
		Demuxable: true,
	},
	AudioVorbis: {
		Name:      AudioVorbis,
		Aliases:   []string{"vorbis"},
		Demuxable: false,
	},
	AudioFLAC: {
		Name:      AudioFLAC,
		Aliases:   []string{"flac"},
		Demuxable: false,
	},
	AudioDTS: {
		Name:             AudioDTS,
		Aliases:          []string{"dts", "dca"},
		Demuxable:        false,
		MPEGTSStreamType: 0x82,
	},
}

// videoAliasIndex maps all aliases to their canonical codec.
var videoAliasIndex map[string]Video

// audioAliasIndex maps all aliases to their canonical codec.
var audioAliasIndex map[string]Audio

func init() {
	videoAliasIndex = make(map[string]Video)
	for codec, info := range videoRegistry {
		for _, alias := range info.Aliases {
			videoAliasIndex[strings.ToLower(alias)] = codec
		}
	}

	audioAliasIndex = make(map[string]Audio)
	for codec, info := range audioRegistry {
		for _, alias := range info.Aliases {
			audioAliasIndex[strings.ToLower(alias)] = codec
		}
	}
}

// ParseVideo parses a string (codec name or alias) to a Video codec.
// Returns the canonical codec and whether the parse was successful.
func ParseVideo(s string) (Video, bool) {
	if s == "" {
		return "", false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	codec, ok := videoAliasIndex[s]
	return codec, ok
}

// ParseAudio parses a string (codec name or alias) to an Audio codec.
// Returns the canonical codec and whether the parse was successful.
func ParseAudio(s string) (Audio, bool) {
	if s == "" {
		return "", false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	codec, ok := audioAliasIndex[s]
	return codec, ok
}

// Normalize converts any codec string (alias) to its canonical form.
// Returns the input unchanged if not recognized.
func Normalize(name string) string {
	if name == "" {
		return name
	}
	lower := strings.ToLower(name)

	if codec, ok := videoAliasIndex[lower]; ok {
		return string(codec)
	}
	if codec, ok := audioAliasIndex[lower]; ok {
		return string(codec)
	}

	return name
}

// NormalizeHLSCodec normalizes codec strings from HLS/DASH manifests to
// canonical form. HLS codec strings include version/profile info (e.g.,
// "avc1.64001f", "mp4a.40.2"). This extracts the base codec.
func NormalizeHLSCodec(name string) string {
	if name == "" {
		return name
	}

	lower := strings.ToLower(name)

	if codec, ok := videoAliasIndex[lower]; ok {
		return string(codec)
	}
	if codec, ok := audioAliasIndex[lower]; ok {
		return string(codec)
	}

	if len(lower) >= 4 {
		prefix := lower[:4]
		switch prefix {
		case "avc1", "avc3":
			return string(VideoH264)
		case "hev1", "hvc1":
			return string(VideoH265)
		case "mp4a":
			return string(AudioAAC)
		case "vp09":
			return string(VideoVP9)
		case "av01":
			return string(VideoAV1)
		case "ac-3":
			return string(AudioAC3)
		case "ec-3":
			return string(AudioEAC3)
		}
	}

	switch lower {
	case "hevc":
		return string(VideoH265)
	case "avc":
		return string(VideoH264)
	}

	return name
}

// IsDemuxable returns true if the video codec can be demuxed out of an
// MPEG-TS stream by this module.
func (v Video) IsDemuxable() bool {
	info, ok := videoRegistry[v]
	if !ok {
		return true // assume demuxable for unknown (most common codecs are)
	}
	return info.Demuxable
}

// IsDemuxable returns true if the audio codec can be demuxed out of an
// MPEG-TS stream by this module.
func (a Audio) IsDemuxable() bool {
	info, ok := audioRegistry[a]
	if !ok {
		return false // assume NOT demuxable for unknown (safer)
	}
	return info.Demuxable
}

// MPEGTSStreamType returns the MPEG-TS stream type for the video codec.
// Returns 0 if not supported in MPEG-TS.
func (v Video) MPEGTSStreamType() uint8 {
	info, ok := videoRegistry[v]
	if !ok {
		return 0
	}
	return info.MPEGTSStreamType
}

// MPEGTSStreamType returns the MPEG-TS stream type for the audio codec.
// Returns 0 if not supported in MPEG-TS.
func (a Audio) MPEGTSStreamType() uint8 {
	info, ok := audioRegistry[a]
	if !ok {
		return 0
	}
	return info.MPEGTSStreamType
}

// VideoFromMPEGTSStreamType looks up the video codec for a PMT
// elementary stream type byte, for use when parsing a live PAT/PMT.
func VideoFromMPEGTSStreamType(streamType uint8) (Video, bool) {
	for codec, info := range videoRegistry {
		if info.MPEGTSStreamType == streamType {
			return codec, true
		}
	}
	return "", false
}

// AudioFromMPEGTSStreamType looks up the audio codec for a PMT
// elementary stream type byte, for use when parsing a live PAT/PMT.
func AudioFromMPEGTSStreamType(streamType uint8) (Audio, bool) {
	for codec, info := range audioRegistry {
		if info.MPEGTSStreamType == streamType {
			return codec, true
		}
	}
	return "", false
}

// IsVideoDemuxable checks if a video codec string is demuxable.
func IsVideoDemuxable(codecName string) bool {
	codec, ok := ParseVideo(codecName)
	if !ok {
		return true
	}
	return codec.IsDemuxable()
}

// IsAudioDemuxable checks if an audio codec string is demuxable.
func IsAudioDemuxable(codecName string) bool {
	codec, ok := ParseAudio(codecName)
	if !ok {
		return false
	}
	return codec.IsDemuxable()
}

// Match returns true if two codec strings represent the same codec.
// Handles aliases and case differences.
func Match(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(Normalize(a), Normalize(b))
}

// VideoMatch returns true if two video codec strings represent the same codec.
func VideoMatch(a, b string) bool {
	codecA, okA := ParseVideo(a)
	codecB, okB := ParseVideo(b)
	if !okA || !okB {
		return false
	}
	return codecA == codecB
}

// AudioMatch returns true if two audio codec strings represent the same codec.
func AudioMatch(a, b string) bool {
	codecA, okA := ParseAudio(a)
	codecB, okB := ParseAudio(b)
	if !okA || !okB {
		return false
	}
	return codecA == codecB
}
