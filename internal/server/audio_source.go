// ABOUTME: Audio sources feeding the streaming engine
// ABOUTME: Decodes MP3 and FLAC files or HTTP MP3 streams to int32 samples
package server

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Resonate-Protocol/rdpsnd-go/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
)

// AudioSource provides interleaved PCM samples in the 24-bit int32 range
type AudioSource interface {
	// Read fills samples and returns how many were written
	Read(samples []int32) (int, error)
	SampleRate() int
	Channels() int
	// Metadata returns title, artist, album
	Metadata() (title, artist, album string)
	Close() error
}

// NewAudioSource opens a file path or HTTP URL. An empty path yields the
// test tone.
func NewAudioSource(pathOrURL string) (AudioSource, error) {
	if pathOrURL == "" {
		return NewTestToneSource(DefaultToneRate, DefaultToneChannels), nil
	}

	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		return NewHTTPMP3Source(pathOrURL)
	}

	if _, err := os.Stat(pathOrURL); err != nil {
		return nil, fmt.Errorf("audio file not found: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(pathOrURL)); ext {
	case ".mp3":
		return NewMP3Source(pathOrURL)
	case ".flac":
		return NewFLACSource(pathOrURL)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac)", ext)
	}
}

func titleFromPath(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// int16ToSamples converts little-endian 16-bit PCM to the 24-bit range
func int16ToSamples(buf []byte, samples []int32) int {
	n := len(buf) / 2
	for i := 0; i < n; i++ {
		samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(buf[i*2:])))
	}
	return n
}

// MP3Source loops an MP3 file
type MP3Source struct {
	file    *os.File
	decoder *mp3.Decoder
	buf     []byte
	title   string
}

// NewMP3Source creates a new MP3 audio source
func NewMP3Source(filePath string) (*MP3Source, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	title := titleFromPath(filePath)
	logrus.WithFields(logrus.Fields{
		"title":       title,
		"sample_rate": decoder.SampleRate(),
	}).Info("Loaded MP3")

	return &MP3Source{file: f, decoder: decoder, title: title}, nil
}

func (s *MP3Source) Read(samples []int32) (int, error) {
	// go-mp3 always produces 16-bit stereo
	if cap(s.buf) < len(samples)*2 {
		s.buf = make([]byte, len(samples)*2)
	}
	buf := s.buf[:len(samples)*2]

	n, err := io.ReadFull(s.decoder, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, err
	}
	count := int16ToSamples(buf[:n], samples)

	if err != nil {
		if err := s.rewind(); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (s *MP3Source) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	decoder, err := mp3.NewDecoder(s.file)
	if err != nil {
		return fmt.Errorf("failed to restart MP3 decoder: %w", err)
	}
	s.decoder = decoder
	return nil
}

func (s *MP3Source) SampleRate() int { return s.decoder.SampleRate() }
func (s *MP3Source) Channels() int   { return 2 }
func (s *MP3Source) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *MP3Source) Close() error {
	return s.file.Close()
}

// FLACSource loops a FLAC file
type FLACSource struct {
	file     *os.File
	stream   *flac.Stream
	channels int
	bitDepth int
	rate     int
	title    string

	// decoded samples not yet returned
	carry []int32
}

// NewFLACSource creates a new FLAC audio source
func NewFLACSource(filePath string) (*FLACSource, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	title := titleFromPath(filePath)
	logrus.WithFields(logrus.Fields{
		"title":       title,
		"sample_rate": info.SampleRate,
		"channels":    info.NChannels,
		"bit_depth":   info.BitsPerSample,
	}).Info("Loaded FLAC")

	return &FLACSource{
		file:     f,
		stream:   stream,
		channels: int(info.NChannels),
		bitDepth: int(info.BitsPerSample),
		rate:     int(info.SampleRate),
		title:    title,
	}, nil
}

func (s *FLACSource) Read(samples []int32) (int, error) {
	n := copy(samples, s.carry)
	s.carry = s.carry[n:]

	for n < len(samples) {
		frame, err := s.stream.ParseNext()
		if errors.Is(err, io.EOF) {
			if err := s.rewind(); err != nil {
				return n, err
			}
			continue
		}
		if err != nil {
			return n, err
		}

		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < s.channels; ch++ {
				sample := s.scale(frame.Subframes[ch].Samples[i])
				if n < len(samples) {
					samples[n] = sample
					n++
				} else {
					s.carry = append(s.carry, sample)
				}
			}
		}
	}
	return n, nil
}

// scale moves a sample of the stream's bit depth into the 24-bit range
func (s *FLACSource) scale(sample int32) int32 {
	switch shift := s.bitDepth - 24; {
	case shift > 0:
		return sample >> shift
	case shift < 0:
		return sample << -shift
	default:
		return sample
	}
}

func (s *FLACSource) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	stream, err := flac.New(s.file)
	if err != nil {
		return fmt.Errorf("failed to restart FLAC stream: %w", err)
	}
	s.stream = stream
	return nil
}

func (s *FLACSource) SampleRate() int { return s.rate }
func (s *FLACSource) Channels() int   { return s.channels }
func (s *FLACSource) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *FLACSource) Close() error {
	return s.file.Close()
}

// HTTPMP3Source streams MP3 from an HTTP URL. It ends at EOF.
type HTTPMP3Source struct {
	url      string
	response *http.Response
	decoder  *mp3.Decoder
	buf      []byte
}

// NewHTTPMP3Source creates a new HTTP MP3 streaming source
func NewHTTPMP3Source(url string) (*HTTPMP3Source, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch HTTP stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	decoder, err := mp3.NewDecoder(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to decode MP3 stream: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"url":         url,
		"sample_rate": decoder.SampleRate(),
	}).Info("Streaming MP3 from HTTP")

	return &HTTPMP3Source{url: url, response: resp, decoder: decoder}, nil
}

func (s *HTTPMP3Source) Read(samples []int32) (int, error) {
	if cap(s.buf) < len(samples)*2 {
		s.buf = make([]byte, len(samples)*2)
	}
	n, err := s.decoder.Read(s.buf[:len(samples)*2])
	if n == 0 && err != nil {
		return 0, err
	}
	return int16ToSamples(s.buf[:n], samples), nil
}

func (s *HTTPMP3Source) SampleRate() int { return s.decoder.SampleRate() }
func (s *HTTPMP3Source) Channels() int   { return 2 }
func (s *HTTPMP3Source) Metadata() (string, string, string) {
	return "HTTP Stream", s.url, ""
}
func (s *HTTPMP3Source) Close() error {
	return s.response.Body.Close()
}
