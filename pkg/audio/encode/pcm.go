// ABOUTME: PCM audio encoder
// ABOUTME: Encodes int32 samples to 8, 16 or 24-bit PCM bytes
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/rdpsnd-go/pkg/audio"
)

// PCMEncoder encodes PCM audio
type PCMEncoder struct {
	bitDepth int
}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.Format) (Encoder, error) {
	if format.Tag != audio.TagPCM {
		return nil, fmt.Errorf("invalid format for PCM encoder: %s", audio.TagName(format.Tag))
	}

	switch format.BitsPerSample {
	case 8, 16, 24:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 8, 16, 24)", format.BitsPerSample)
	}

	return &PCMEncoder{
		bitDepth: int(format.BitsPerSample),
	}, nil
}

// Encode appends samples as little-endian PCM bytes
func (e *PCMEncoder) Encode(dst []byte, samples []int32) ([]byte, error) {
	switch e.bitDepth {
	case 24:
		for _, sample := range samples {
			b := audio.SampleTo24Bit(sample)
			dst = append(dst, b[0], b[1], b[2])
		}
	case 8:
		for _, sample := range samples {
			dst = append(dst, audio.SampleToUint8(sample))
		}
	default:
		for _, sample := range samples {
			dst = binary.LittleEndian.AppendUint16(dst, uint16(audio.SampleToInt16(sample)))
		}
	}
	return dst, nil
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
