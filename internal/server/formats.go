// ABOUTME: Server format offer and client format selection
// ABOUTME: Prefers PCM at the source layout, then any PCM, then any encodable format
package server

import (
	"github.com/Resonate-Protocol/rdpsnd-go/pkg/audio"
	"github.com/Resonate-Protocol/rdpsnd-go/pkg/dsp"
)

// DefaultFormats returns the formats offered for a source: the source
// layout itself followed by common PCM rates and stereo Opus
func DefaultFormats(source audio.Format) []audio.Format {
	candidates := []audio.Format{
		source,
		audio.NewPCM(48000, 2, 16),
		audio.NewPCM(44100, 2, 16),
		audio.NewPCM(22050, 2, 16),
		audio.NewPCM(11025, 1, 16),
		{Tag: audio.TagOpus, Channels: 2, SampleRate: 48000, BitsPerSample: 16},
	}

	formats := make([]audio.Format, 0, len(candidates))
	for _, f := range candidates {
		duplicate := false
		for _, have := range formats {
			if have.Matches(f) {
				duplicate = true
				break
			}
		}
		if !duplicate && dsp.Supports(f) {
			formats = append(formats, f)
		}
	}
	return formats
}

// NegotiateFormat picks the client format index to stream to
func NegotiateFormat(formats []audio.Format, source audio.Format) (uint16, bool) {
	// PCM at the source layout needs no conversion
	for i, f := range formats {
		if f.Tag == audio.TagPCM &&
			f.SampleRate == source.SampleRate &&
			f.Channels == source.Channels &&
			f.BitsPerSample == source.BitsPerSample {
			return uint16(i), true
		}
	}

	for i, f := range formats {
		if f.Tag == audio.TagPCM && dsp.Supports(f) {
			return uint16(i), true
		}
	}

	for i, f := range formats {
		if dsp.Supports(f) {
			return uint16(i), true
		}
	}

	return 0, false
}
