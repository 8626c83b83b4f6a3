// ABOUTME: PCM audio decoder
// ABOUTME: Decodes 8, 16 and 24-bit PCM audio to int32 samples
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/rdpsnd-go/pkg/audio"
)

// PCMDecoder decodes PCM audio
type PCMDecoder struct {
	bitDepth int
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (Decoder, error) {
	if format.Tag != audio.TagPCM {
		return nil, fmt.Errorf("invalid format for PCM decoder: %s", audio.TagName(format.Tag))
	}

	switch format.BitsPerSample {
	case 8, 16, 24:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 8, 16, 24)", format.BitsPerSample)
	}

	return &PCMDecoder{
		bitDepth: int(format.BitsPerSample),
	}, nil
}

// Decode appends little-endian PCM samples scaled to the 24-bit range
func (d *PCMDecoder) Decode(dst []int32, data []byte) ([]int32, error) {
	switch d.bitDepth {
	case 24:
		for ; len(data) >= 3; data = data[3:] {
			dst = append(dst, audio.SampleFrom24Bit([3]byte{data[0], data[1], data[2]}))
		}
	case 8:
		for _, b := range data {
			dst = append(dst, audio.SampleFromUint8(b))
		}
	default:
		for ; len(data) >= 2; data = data[2:] {
			dst = append(dst, audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(data))))
		}
	}
	return dst, nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
