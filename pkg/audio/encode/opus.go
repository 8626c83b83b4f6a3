// ABOUTME: Opus audio encoder
// ABOUTME: Encodes int32 samples to length-prefixed 20ms Opus packets
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/rdpsnd-go/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// maxOpusPacket is the largest packet libopus produces
const maxOpusPacket = 4000

// OpusEncoder encodes Opus audio. Input that does not fill a whole 20ms
// frame is carried over to the next call.
type OpusEncoder struct {
	encoder   *opus.Encoder
	channels  int
	frameSize int // samples per channel per frame
	pending   []int16
	packet    []byte
}

// NewOpus creates a new Opus encoder for the target format
func NewOpus(format audio.Format) (Encoder, error) {
	if format.Tag != audio.TagOpus {
		return nil, fmt.Errorf("invalid format for Opus encoder: %s", audio.TagName(format.Tag))
	}
	if format.Channels == 0 || format.Channels > 2 {
		return nil, fmt.Errorf("unsupported channel count for Opus: %d", format.Channels)
	}

	encoder, err := opus.NewEncoder(int(format.SampleRate), int(format.Channels), opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	// 64 kbps per channel, as for streaming clients
	if err := encoder.SetBitrate(64000 * int(format.Channels)); err != nil {
		return nil, fmt.Errorf("failed to set opus bitrate: %w", err)
	}

	return &OpusEncoder{
		encoder:   encoder,
		channels:  int(format.Channels),
		frameSize: int(format.SampleRate) / 50, // 20ms frame
		packet:    make([]byte, maxOpusPacket),
	}, nil
}

// Encode appends one uint16 length + packet pair per complete frame
func (e *OpusEncoder) Encode(dst []byte, samples []int32) ([]byte, error) {
	for _, sample := range samples {
		e.pending = append(e.pending, audio.SampleToInt16(sample))
	}

	frameSamples := e.frameSize * e.channels
	consumed := 0
	for len(e.pending)-consumed >= frameSamples {
		n, err := e.encoder.Encode(e.pending[consumed:consumed+frameSamples], e.packet)
		if err != nil {
			return dst, fmt.Errorf("opus encode error: %w", err)
		}
		dst = binary.LittleEndian.AppendUint16(dst, uint16(n))
		dst = append(dst, e.packet[:n]...)
		consumed += frameSamples
	}

	e.pending = append(e.pending[:0], e.pending[consumed:]...)
	return dst, nil
}

// Buffered returns the number of samples held back for the next frame
func (e *OpusEncoder) Buffered() int {
	return len(e.pending)
}

// Close releases resources
func (e *OpusEncoder) Close() error {
	e.pending = nil
	return nil
}
