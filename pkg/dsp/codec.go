// ABOUTME: Codec interface and default PCM/Opus implementation
// ABOUTME: Decodes, remaps channels, resamples and encodes audio batches
package dsp

import (
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/rdpsnd-go/pkg/audio"
	"github.com/Resonate-Protocol/rdpsnd-go/pkg/audio/decode"
	"github.com/Resonate-Protocol/rdpsnd-go/pkg/audio/encode"
	"github.com/Resonate-Protocol/rdpsnd-go/pkg/audio/resample"
)

// ErrUnsupportedFormat is returned when the codec cannot produce a format
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Codec converts source PCM into a target encoding. Implementations are
// not required to be safe for concurrent use.
type Codec interface {
	// Reset reconfigures the codec for a new target format
	Reset(target audio.Format) error

	// Encode appends the encoding of pcm (in the src format) to dst
	Encode(src audio.Format, pcm []byte, dst []byte) ([]byte, error)
}

// Supports reports whether the default codec can encode to f
func Supports(f audio.Format) bool {
	if f.Channels == 0 || f.Channels > 2 || f.SampleRate == 0 {
		return false
	}
	switch f.Tag {
	case audio.TagPCM:
		switch f.BitsPerSample {
		case 8, 16, 24:
			return true
		}
	case audio.TagOpus:
		switch f.SampleRate {
		case 8000, 12000, 16000, 24000, 48000:
			return true
		}
	}
	return false
}

// Converter is the default Codec
type Converter struct {
	target  audio.Format
	encoder encode.Encoder

	// source side, rebuilt when the source format changes
	src       audio.Format
	decoder   decode.Decoder
	resampler *resample.Resampler

	inBuf  []int32
	mixBuf []int32
	outBuf []int32
}

// New creates an unconfigured converter; Reset must be called before Encode
func New() *Converter {
	return &Converter{}
}

// Reset selects the target format and drops any carried state
func (c *Converter) Reset(target audio.Format) error {
	if !Supports(target) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, target)
	}

	var enc encode.Encoder
	var err error
	switch target.Tag {
	case audio.TagOpus:
		enc, err = encode.NewOpus(target)
	default:
		enc, err = encode.NewPCM(target)
	}
	if err != nil {
		return fmt.Errorf("failed to create encoder: %w", err)
	}

	if c.encoder != nil {
		c.encoder.Close()
	}
	c.target = target
	c.encoder = enc
	c.closeSource()
	return nil
}

// Target returns the configured target format
func (c *Converter) Target() audio.Format {
	return c.target
}

// Encode converts a batch of source PCM and appends the result to dst
func (c *Converter) Encode(src audio.Format, pcm []byte, dst []byte) ([]byte, error) {
	if c.encoder == nil {
		return dst, fmt.Errorf("codec not configured")
	}
	if err := c.prepareSource(src); err != nil {
		return dst, err
	}

	samples, err := c.decoder.Decode(c.inBuf[:0], pcm)
	if err != nil {
		return dst, fmt.Errorf("failed to decode source: %w", err)
	}
	c.inBuf = samples

	samples = c.remap(samples, int(src.Channels), int(c.target.Channels))

	if !c.resampler.Passthrough() {
		need := c.resampler.OutputSamplesNeeded(len(samples))
		if cap(c.outBuf) < need {
			c.outBuf = make([]int32, need)
		}
		n := c.resampler.Resample(samples, c.outBuf[:need])
		samples = c.outBuf[:n]
	}

	return c.encoder.Encode(dst, samples)
}

// Close releases encoder resources
func (c *Converter) Close() error {
	c.closeSource()
	if c.encoder == nil {
		return nil
	}
	err := c.encoder.Close()
	c.encoder = nil
	return err
}

func (c *Converter) prepareSource(src audio.Format) error {
	if c.decoder != nil && c.src.Matches(src) {
		return nil
	}
	if src.Channels == 0 || src.Channels > 2 {
		return fmt.Errorf("%w: source %s", ErrUnsupportedFormat, src)
	}

	dec, err := decode.NewPCM(src)
	if err != nil {
		return fmt.Errorf("%w: source %s", ErrUnsupportedFormat, src)
	}

	c.closeSource()
	c.src = src
	c.decoder = dec
	c.resampler = resample.New(int(src.SampleRate), int(c.target.SampleRate), int(c.target.Channels))
	return nil
}

func (c *Converter) closeSource() {
	if c.decoder != nil {
		c.decoder.Close()
	}
	c.decoder = nil
	c.resampler = nil
	c.src = audio.Format{}
}

// remap converts between mono and stereo interleaved samples
func (c *Converter) remap(samples []int32, from, to int) []int32 {
	if from == to {
		return samples
	}

	frames := len(samples) / from
	need := frames * to
	if cap(c.mixBuf) < need {
		c.mixBuf = make([]int32, need)
	}
	out := c.mixBuf[:need]

	if from == 1 {
		for i := 0; i < frames; i++ {
			out[i*2] = samples[i]
			out[i*2+1] = samples[i]
		}
		return out
	}

	for i := 0; i < frames; i++ {
		out[i] = int32((int64(samples[i*2]) + int64(samples[i*2+1])) / 2)
	}
	return out
}
