// ABOUTME: Session configuration and host callbacks
// ABOUTME: Zero values are replaced by defaults in NewSession
package rdpsnd

import (
	"github.com/Resonate-Protocol/rdpsnd-go/pkg/audio"
	"github.com/Resonate-Protocol/rdpsnd-go/pkg/dsp"
	"github.com/Resonate-Protocol/rdpsnd-go/pkg/transport"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultLatencyMs is used when Config.LatencyMs is not positive
	DefaultLatencyMs = 50

	// DefaultMaxBufferBytes caps the pending buffer when Config.MaxBufferBytes is 0
	DefaultMaxBufferBytes = 16 << 20

	// NoFormatSelected is the SelectedFormat value before selection and after Close
	NoFormatSelected uint16 = 0xFFFF

	// ChannelName is the static virtual channel carrying audio output
	ChannelName = "rdpsnd"
)

// Config holds session configuration
type Config struct {
	// ServerFormats are offered to the client when the session starts
	ServerFormats []audio.Format

	// SourceFormat is the PCM layout handed to SendSamples. Required
	// before SelectFormat.
	SourceFormat *audio.Format

	// LatencyMs sets the batch duration in milliseconds
	LatencyMs int

	// MaxBufferBytes caps the pending sample buffer (0 = DefaultMaxBufferBytes)
	MaxBufferBytes int

	Handler Handler
	Codec   dsp.Codec
	Opener  transport.Opener

	// ExternalLoop disables the session's own receive goroutine; the host
	// then waits on ReadyEvent and calls HandleMessages itself.
	ExternalLoop bool

	Logger *logrus.Entry
}

// Handler receives session events. Callbacks run on the goroutine that
// drives HandleMessages, outside the session lock, so they may call
// SelectFormat, SendSamples, SetVolume and Close. They must not call Stop
// or Reset, except that ChannelError may call Stop.
type Handler interface {
	// Activated fires once the client has negotiated its formats
	Activated(s *Session)

	// ConfirmBlock forwards a client WAVECONFIRM
	ConfirmBlock(s *Session, blockNo uint8, timestamp uint16)

	// ChannelError fires when the receive loop stops on a transport failure
	ChannelError(s *Session, err error)
}

// HandlerFuncs adapts optional functions to Handler
type HandlerFuncs struct {
	OnActivated    func(s *Session)
	OnConfirmBlock func(s *Session, blockNo uint8, timestamp uint16)
	OnChannelError func(s *Session, err error)
}

func (h HandlerFuncs) Activated(s *Session) {
	if h.OnActivated != nil {
		h.OnActivated(s)
	}
}

func (h HandlerFuncs) ConfirmBlock(s *Session, blockNo uint8, timestamp uint16) {
	if h.OnConfirmBlock != nil {
		h.OnConfirmBlock(s, blockNo, timestamp)
	}
}

func (h HandlerFuncs) ChannelError(s *Session, err error) {
	if h.OnChannelError != nil {
		h.OnChannelError(s, err)
	}
}
