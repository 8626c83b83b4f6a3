// ABOUTME: Audio output session lifecycle and control PDUs
// ABOUTME: Owns the channel, the negotiated state and the session lock
package rdpsnd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/rdpsnd-go/pkg/audio"
	"github.com/Resonate-Protocol/rdpsnd-go/pkg/dsp"
	"github.com/Resonate-Protocol/rdpsnd-go/pkg/protocol"
	"github.com/Resonate-Protocol/rdpsnd-go/pkg/transport"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Stats are cumulative session counters
type Stats struct {
	PDUsSent      uint64
	BytesSent     uint64
	WavesSent     uint64
	Confirmations uint64
	LastConfirmed uint8
	DroppedFrames uint64
}

// Session is one audio output channel to a client
type Session struct {
	id      string
	config  Config
	handler Handler
	codec   dsp.Codec
	log     *logrus.Entry

	// lifeMu serializes Start and Stop
	lifeMu  sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}

	// mu guards everything below; held for every transmit
	mu               sync.Mutex
	ch               transport.Channel
	clientFormats    []audio.Format
	clientVersion    uint16
	selected         uint16
	blockNo          uint8
	framesPerBatch   int
	pendingFrames    int
	srcBytesPerFrame int
	pending          pendingBuffer
	out              protocol.Writer
	stats            Stats

	// recvMu guards the inbound framing state
	recvMu  sync.Mutex
	framer  *protocol.Framer
	readBuf []byte
}

// NewSession validates config and applies defaults
func NewSession(config Config) (*Session, error) {
	if config.Opener == nil {
		return nil, fmt.Errorf("%w: no channel opener", ErrInvalidInput)
	}
	if len(config.ServerFormats) == 0 {
		return nil, fmt.Errorf("%w: no server formats", ErrInvalidInput)
	}
	if config.LatencyMs <= 0 {
		config.LatencyMs = DefaultLatencyMs
	}
	if config.MaxBufferBytes == 0 {
		config.MaxBufferBytes = DefaultMaxBufferBytes
	}
	if config.Handler == nil {
		config.Handler = HandlerFuncs{}
	}
	if config.Codec == nil {
		config.Codec = dsp.New()
	}
	if config.Logger == nil {
		config.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if config.SourceFormat != nil {
		src := *config.SourceFormat
		config.SourceFormat = &src
	}

	id := uuid.New().String()
	return &Session{
		id:       id,
		config:   config,
		handler:  config.Handler,
		codec:    config.Codec,
		log:      config.Logger.WithFields(logrus.Fields{"session": id, "channel": ChannelName}),
		selected: NoFormatSelected,
		framer:   protocol.NewFramer(),
		readBuf:  make([]byte, 4096),
	}, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Start opens the channel, sends the server formats and, unless
// Config.ExternalLoop is set, starts the receive loop
func (s *Session) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.started {
		return fmt.Errorf("%w: session already started", ErrInvalidInput)
	}

	ch, err := s.config.Opener.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w: open channel: %v", ErrTransport, err)
	}

	s.Reset()

	s.mu.Lock()
	s.ch = ch
	err = s.sendFormatsLocked()
	if err != nil {
		s.ch = nil
	}
	s.mu.Unlock()

	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to send server formats: %w", err)
	}

	if !s.config.ExternalLoop {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.receiveLoop(ch, s.stop, s.done)
	}

	s.started = true
	s.log.WithField("formats", len(s.config.ServerFormats)).Info("Audio channel started")
	return nil
}

// Stop ends the receive loop, waits for in-flight operations and closes
// the channel. It must not be called from a Handler callback other than
// ChannelError.
func (s *Session) Stop() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if !s.started {
		return nil
	}

	if s.stop != nil {
		close(s.stop)
		<-s.done
		s.stop, s.done = nil, nil
	}

	s.mu.Lock()
	ch := s.ch
	s.ch = nil
	s.mu.Unlock()

	s.started = false
	s.log.Info("Audio channel stopped")

	if ch == nil {
		return nil
	}
	return ch.Close()
}

// Reset drops any partially received PDU. Negotiated state is kept.
func (s *Session) Reset() {
	s.recvMu.Lock()
	s.framer.Reset()
	s.recvMu.Unlock()
}

// ReadyEvent fires when the channel has inbound data. Nil before Start.
func (s *Session) ReadyEvent() <-chan struct{} {
	ch := s.channel()
	if ch == nil {
		return nil
	}
	return ch.Ready()
}

// SetVolume sends a SETVOLUME PDU
func (s *Session) SetVolume(left, right uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pdu, err := protocol.BuildSetVolume(&s.out, left, right)
	if err != nil {
		return err
	}
	return s.writeLocked(pdu)
}

// Close flushes pending frames, forgets the selected format and sends a
// CLOSE PDU
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingFrames > 0 {
		if !s.formatSelectedLocked() {
			s.log.WithField("pending_frames", s.pendingFrames).Error("Pending audio frames while no format selected")
			return fmt.Errorf("%w: %d pending frames with no format selected", ErrInvalidInput, s.pendingFrames)
		}
		if err := s.flushLocked(0); err != nil {
			return err
		}
	}

	s.selected = NoFormatSelected

	pdu, err := protocol.BuildClose(&s.out)
	if err != nil {
		return err
	}
	return s.writeLocked(pdu)
}

// ClientFormats returns a copy of the formats the client offered
func (s *Session) ClientFormats() []audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.Format, len(s.clientFormats))
	copy(out, s.clientFormats)
	return out
}

// ClientVersion returns the channel version announced by the client
func (s *Session) ClientVersion() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientVersion
}

// SelectedFormat returns the selected client format index or NoFormatSelected
func (s *Session) SelectedFormat() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// BlockNo returns the block number the next audio PDU will carry
func (s *Session) BlockNo() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockNo
}

// FramesPerBatch returns the number of source frames sent per audio PDU
func (s *Session) FramesPerBatch() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framesPerBatch
}

// PendingFrames returns the number of source frames waiting for a flush
func (s *Session) PendingFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingFrames
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Session) channel() transport.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

func (s *Session) formatSelectedLocked() bool {
	return int(s.selected) < len(s.clientFormats)
}

func (s *Session) sendFormatsLocked() error {
	pdu, err := protocol.BuildServerFormats(&s.out, s.config.ServerFormats, s.blockNo)
	if err != nil {
		return err
	}
	return s.writeLocked(pdu)
}

// writeLocked sends one channel message; anything short of a full write
// is a transport failure
func (s *Session) writeLocked(p []byte) error {
	if s.ch == nil {
		return fmt.Errorf("%w: channel not open", ErrTransport)
	}

	n, err := s.ch.Write(p)
	if err != nil {
		if errors.Is(err, ErrTransport) {
			return err
		}
		return fmt.Errorf("%w: write: %v", ErrTransport, err)
	}
	if n != len(p) {
		return fmt.Errorf("%w: short write: %d of %d bytes", ErrTransport, n, len(p))
	}

	s.stats.PDUsSent++
	s.stats.BytesSent += uint64(n)
	return nil
}
