// ABOUTME: Audio format record and sample conversion helpers
// ABOUTME: Defines the wave format descriptor exchanged during negotiation
package audio

import "fmt"

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Wave format tags understood by the audio channel
const (
	TagUnknown    uint16 = 0x0000
	TagPCM        uint16 = 0x0001
	TagADPCM      uint16 = 0x0002 // Microsoft ADPCM
	TagALaw       uint16 = 0x0006
	TagMULaw      uint16 = 0x0007
	TagDVIADPCM   uint16 = 0x0011 // IMA/DVI ADPCM
	TagGSM610     uint16 = 0x0031
	TagMPEGLayer3 uint16 = 0x0055
	TagAACMS      uint16 = 0xA106
	TagOpus       uint16 = 0x704F
)

// Format describes one audio format record as carried on the wire.
// AvgBytesPerSec is informational only; the serializer recomputes it.
type Format struct {
	Tag            uint16
	Channels       uint16
	SampleRate     uint32
	AvgBytesPerSec uint32
	BlockAlign     uint16
	BitsPerSample  uint16
	Extra          []byte // codec specific trailer (cbSize bytes)
}

// NewPCM returns a linear PCM format with derived block alignment
func NewPCM(sampleRate uint32, channels, bitsPerSample uint16) Format {
	f := Format{
		Tag:           TagPCM,
		Channels:      channels,
		SampleRate:    sampleRate,
		BlockAlign:    channels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
	}
	f.AvgBytesPerSec = f.ComputedAvgBytesPerSec()
	return f
}

// BytesPerSample returns the size of a single channel sample
func (f Format) BytesPerSample() int {
	return int(f.BitsPerSample) / 8
}

// FrameSize returns the size of one frame (one sample per channel)
func (f Format) FrameSize() int {
	return f.BytesPerSample() * int(f.Channels)
}

// ComputedAvgBytesPerSec derives the byte rate from rate, channels and depth.
// Computed in 64 bits so large rates cannot wrap before the division.
func (f Format) ComputedAvgBytesPerSec() uint32 {
	return uint32(uint64(f.SampleRate) * uint64(f.Channels) * uint64(f.BitsPerSample) / 8)
}

// IsADPCM reports whether the tag is one of the block based ADPCM variants
func (f Format) IsADPCM() bool {
	return f.Tag == TagADPCM || f.Tag == TagDVIADPCM
}

// Matches reports whether two formats describe the same encoding.
// The byte rate and trailer are ignored.
func (f Format) Matches(o Format) bool {
	return f.Tag == o.Tag &&
		f.Channels == o.Channels &&
		f.SampleRate == o.SampleRate &&
		f.BlockAlign == o.BlockAlign &&
		f.BitsPerSample == o.BitsPerSample
}

func (f Format) String() string {
	return fmt.Sprintf("%s %dHz/%dbit/%dch", TagName(f.Tag), f.SampleRate, f.BitsPerSample, f.Channels)
}

// TagName returns a short human readable name for a format tag
func TagName(tag uint16) string {
	switch tag {
	case TagPCM:
		return "pcm"
	case TagADPCM:
		return "ms-adpcm"
	case TagALaw:
		return "alaw"
	case TagMULaw:
		return "mulaw"
	case TagDVIADPCM:
		return "ima-adpcm"
	case TagGSM610:
		return "gsm610"
	case TagMPEGLayer3:
		return "mp3"
	case TagAACMS:
		return "aac"
	case TagOpus:
		return "opus"
	default:
		return fmt.Sprintf("tag(0x%04x)", tag)
	}
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	// Left-shift to position 16-bit value in upper bits
	return int32(sample) << 8
}

// SampleToUint8 converts int32 sample to unsigned 8-bit PCM
func SampleToUint8(sample int32) uint8 {
	return uint8((sample >> 16) + 128)
}

// SampleFromUint8 converts unsigned 8-bit PCM to int32 in 24-bit range
func SampleFromUint8(sample uint8) int32 {
	return (int32(sample) - 128) << 16
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	// Take lower 24 bits, pack little-endian
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	// Reconstruct 24-bit value and sign-extend to 32-bit
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF // Set upper 8 bits to 1 for negative values
	}
	return val
}
