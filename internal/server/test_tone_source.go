// ABOUTME: Test tone generator for audio source
// ABOUTME: Generates a 440Hz sine wave at half scale
package server

import (
	"math"
	"sync"

	"github.com/Resonate-Protocol/rdpsnd-go/pkg/audio"
)

const (
	DefaultToneRate     = 44100
	DefaultToneChannels = 2
)

// TestToneSource generates a 440Hz test tone
type TestToneSource struct {
	mu          sync.Mutex
	sampleIndex uint64
	frequency   float64
	rate        int
	channels    int
}

// NewTestToneSource creates a new test tone generator
func NewTestToneSource(rate, channels int) *TestToneSource {
	return &TestToneSource{
		frequency: 440.0, // A4 note
		rate:      rate,
		channels:  channels,
	}
}

func (s *TestToneSource) Read(samples []int32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames := len(samples) / s.channels
	for i := 0; i < frames; i++ {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.rate)
		value := int32(math.Sin(2*math.Pi*s.frequency*t) * audio.Max24Bit * 0.5)
		for ch := 0; ch < s.channels; ch++ {
			samples[i*s.channels+ch] = value
		}
	}
	s.sampleIndex += uint64(frames)

	return frames * s.channels, nil
}

func (s *TestToneSource) SampleRate() int { return s.rate }
func (s *TestToneSource) Channels() int   { return s.channels }
func (s *TestToneSource) Metadata() (string, string, string) {
	return "Test Tone (440Hz)", "rdpsnd server", ""
}
func (s *TestToneSource) Close() error { return nil }
