// ABOUTME: Audio streaming engine for the server
// ABOUTME: Reads the shared source every 20ms and feeds PCM to activated sessions
package server

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/rdpsnd-go/pkg/audio"
	"github.com/Resonate-Protocol/rdpsnd-go/pkg/audio/encode"
	"github.com/Resonate-Protocol/rdpsnd-go/pkg/rdpsnd"
	"github.com/sirupsen/logrus"
)

const (
	// Source PCM handed to sessions is always 16-bit
	SourceBitDepth = 16

	// Chunk timing
	ChunkDurationMs = 20
)

// AudioEngine reads the audio source and distributes it to sessions
type AudioEngine struct {
	server  *Server
	source  AudioSource
	format  audio.Format
	encoder encode.Encoder

	// Streaming clients
	clients   map[string]*Client
	clientsMu sync.RWMutex

	chunkFrames int
	samples     []int32
	pcm         []byte

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewAudioEngine creates an engine streaming source as 16-bit PCM
func NewAudioEngine(server *Server, source AudioSource) (*AudioEngine, error) {
	if source.SampleRate() <= 0 || source.Channels() <= 0 || source.Channels() > 2 {
		return nil, fmt.Errorf("unsupported source layout: %d Hz, %d channels", source.SampleRate(), source.Channels())
	}

	format := audio.NewPCM(uint32(source.SampleRate()), uint16(source.Channels()), SourceBitDepth)
	encoder, err := encode.NewPCM(format)
	if err != nil {
		return nil, fmt.Errorf("failed to create PCM encoder: %w", err)
	}

	chunkFrames := source.SampleRate() * ChunkDurationMs / 1000
	return &AudioEngine{
		server:      server,
		source:      source,
		format:      format,
		encoder:     encoder,
		clients:     make(map[string]*Client),
		chunkFrames: chunkFrames,
		samples:     make([]int32, chunkFrames*source.Channels()),
		stopChan:    make(chan struct{}),
	}, nil
}

// Format returns the PCM layout handed to sessions
func (e *AudioEngine) Format() audio.Format {
	return e.format
}

// Start streams until Stop is called
func (e *AudioEngine) Start() {
	logrus.WithField("format", e.format.String()).Info("Audio engine starting")

	ticker := time.NewTicker(time.Duration(ChunkDurationMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.streamChunk()
		case <-e.stopChan:
			logrus.Info("Audio engine stopping")
			return
		}
	}
}

// Stop stops the audio engine
func (e *AudioEngine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopChan)
	})
}

// Close releases the source and encoder
func (e *AudioEngine) Close() error {
	e.encoder.Close()
	return e.source.Close()
}

// AddClient starts streaming to a client whose session has a format selected
func (e *AudioEngine) AddClient(client *Client) {
	e.clientsMu.Lock()
	e.clients[client.ID] = client
	e.clientsMu.Unlock()

	logrus.WithField("session", client.ID).Info("Audio engine: added client")
}

// RemoveClient stops streaming to a client
func (e *AudioEngine) RemoveClient(client *Client) {
	e.clientsMu.Lock()
	_, ok := e.clients[client.ID]
	delete(e.clients, client.ID)
	e.clientsMu.Unlock()

	if ok {
		logrus.WithField("session", client.ID).Info("Audio engine: removed client")
	}
}

// streamChunk reads one chunk from the source and sends it to every client
func (e *AudioEngine) streamChunk() {
	start := time.Now()
	n, err := e.source.Read(e.samples)
	if err != nil {
		logrus.WithError(err).Warn("Audio source read failed")
		return
	}

	channels := int(e.format.Channels)
	frames := n / channels
	if frames == 0 {
		return
	}

	e.pcm, err = e.encoder.Encode(e.pcm[:0], e.samples[:frames*channels])
	if err != nil {
		logrus.WithError(err).Error("Failed to encode source PCM")
		return
	}

	timestamp := uint16(e.server.clockMillis())

	failed := 0
	e.clientsMu.RLock()
	for _, client := range e.clients {
		err := client.session.SendSamples(e.pcm, frames, timestamp)
		switch {
		case err == nil:
		case errors.Is(err, rdpsnd.ErrNotReady):
			// renegotiating or closed; samples are dropped
		default:
			failed++
			logrus.WithError(err).WithField("session", client.ID).Warn("Failed to send audio")
		}
	}
	e.clientsMu.RUnlock()

	e.server.metrics.RecordChunk(time.Since(start).Seconds(), failed)
}
