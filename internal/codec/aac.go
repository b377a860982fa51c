package codec

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
)

// ParseAACConfig decodes an AAC AudioSpecificConfig from initData,
// returning nil if it cannot be unmarshaled (e.g. the bytes are a raw
// ADTS frame rather than out-of-band config data). Callers that only
// have ADTS-framed payloads should not treat a nil return as an error;
// plenty of valid AAC elementary streams carry no separate config blob.
func ParseAACConfig(initData []byte) *mpeg4audio.AudioSpecificConfig {
	cfg := &mpeg4audio.AudioSpecificConfig{}
	if err := cfg.Unmarshal(initData); err != nil {
		return nil
	}
	return cfg
}
