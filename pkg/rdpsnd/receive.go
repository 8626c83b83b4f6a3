// ABOUTME: Inbound PDU handling and the session receive loop
// ABOUTME: Reassembles client PDUs and dispatches FORMATS, QUALITYMODE and WAVECONFIRM
package rdpsnd

import (
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/rdpsnd-go/pkg/protocol"
	"github.com/Resonate-Protocol/rdpsnd-go/pkg/transport"
	"github.com/sirupsen/logrus"
)

// HandleMessages reads what the channel has buffered and dispatches every
// PDU it completes. It returns transport.ErrWouldBlock when there was
// nothing to read, an error wrapping protocol.ErrMalformedInput when a PDU
// was rejected (the stream stays in sync), and an error wrapping
// ErrTransport when the channel failed.
func (s *Session) HandleMessages() error {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	ch := s.channel()
	if ch == nil {
		return fmt.Errorf("%w: channel not open", ErrTransport)
	}

	n, err := ch.Read(s.readBuf)
	if err != nil {
		if errors.Is(err, transport.ErrWouldBlock) {
			return err
		}
		return fmt.Errorf("%w: read: %v", ErrTransport, err)
	}
	if n == 0 {
		return transport.ErrWouldBlock
	}

	var firstErr error
	data := s.readBuf[:n]
	for len(data) > 0 {
		used, msg := s.framer.Feed(data)
		data = data[used:]
		if msg == nil {
			continue
		}
		if err := s.dispatch(msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Session) dispatch(msg *protocol.Message) error {
	switch msg.Type {
	case protocol.MsgWaveConfirm:
		return s.recvWaveConfirm(msg.Body)
	case protocol.MsgFormats:
		return s.recvFormats(msg.Body)
	case protocol.MsgQualityMode:
		return s.recvQualityMode(msg.Body)
	default:
		return fmt.Errorf("%w: unexpected message type %s", protocol.ErrMalformedInput, msg.Type)
	}
}

func (s *Session) recvWaveConfirm(body []byte) error {
	c, err := protocol.ParseWaveConfirm(body)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.stats.Confirmations++
	s.stats.LastConfirmed = c.BlockNo
	s.mu.Unlock()

	s.handler.ConfirmBlock(s, c.BlockNo, c.Timestamp)
	return nil
}

func (s *Session) recvFormats(body []byte) error {
	c, err := protocol.ParseClientFormats(body)
	if err != nil {
		return err
	}

	s.mu.Lock()
	previous := s.clientFormats
	s.clientFormats = c.Formats
	s.clientVersion = c.Version
	// a kept index must still name the format the batch was sized for
	if s.selected != NoFormatSelected &&
		(!s.formatSelectedLocked() || !c.Formats[s.selected].Matches(previous[s.selected])) {
		s.selected = NoFormatSelected
	}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"formats": len(c.Formats),
		"known":   c.KnownFormats(),
		"version": c.Version,
	}).Info("Client formats received")

	if c.Version < protocol.ChannelVersionWin7 {
		s.handler.Activated(s)
	}
	return nil
}

func (s *Session) recvQualityMode(body []byte) error {
	q, err := protocol.ParseQualityMode(body)
	if err != nil {
		return err
	}

	s.log.WithField("quality", protocol.QualityName(q.Quality)).Debug("Client quality mode")

	if s.ClientVersion() >= protocol.ChannelVersionWin7 {
		s.handler.Activated(s)
	}
	return nil
}

// receiveLoop drains the channel each time it signals readiness until
// stop closes or the channel fails
func (s *Session) receiveLoop(ch transport.Channel, stop <-chan struct{}, done chan<- struct{}) {
	var fatal error
	defer func() {
		close(done)
		if fatal != nil {
			s.handler.ChannelError(s, fatal)
		}
	}()

	ready := ch.Ready()
	for {
		select {
		case <-stop:
			return
		case <-ready:
		}

		if err := s.drain(stop); err != nil {
			s.log.WithError(err).Error("Audio channel receive failed")
			fatal = err
			return
		}
	}
}

func (s *Session) drain(stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		err := s.HandleMessages()
		switch {
		case err == nil:
		case errors.Is(err, transport.ErrWouldBlock):
			return nil
		case errors.Is(err, protocol.ErrMalformedInput):
			s.log.WithError(err).Warn("Rejected client PDU")
		default:
			return err
		}
	}
}
