// ABOUTME: Format selection, sample batching and audio PDU construction
// ABOUTME: Flushes one WAVE or WAVE2 PDU per full batch of source frames
package rdpsnd

import (
	"fmt"

	"github.com/Resonate-Protocol/rdpsnd-go/pkg/audio"
	"github.com/Resonate-Protocol/rdpsnd-go/pkg/protocol"
	"github.com/sirupsen/logrus"
)

// BatchFrames returns how many source frames make up one audio PDU for the
// given target, capped at the largest batch one PDU can carry. ADPCM targets
// are rounded down to whole codec blocks.
func BatchFrames(src, target audio.Format, latencyMs int) (int, error) {
	if latencyMs <= 0 {
		latencyMs = DefaultLatencyMs
	}

	frames := int(uint64(src.SampleRate) * uint64(latencyMs) / 1000)
	if frames < 1 {
		frames = 1
	}

	limit, err := maxBatchFrames(src, target)
	if err != nil {
		return 0, err
	}
	frames = min(frames, limit)

	var bs int
	switch target.Tag {
	case audio.TagDVIADPCM:
		bs = (int(target.BlockAlign) - 4*int(target.Channels)) * 4
	case audio.TagADPCM:
		if target.Channels == 0 {
			return 0, fmt.Errorf("%w: ADPCM format with no channels", ErrInvalidInput)
		}
		bs = (int(target.BlockAlign)-7*int(target.Channels))*2/int(target.Channels) + 2
	default:
		return frames, nil
	}

	if bs <= 0 {
		return 0, fmt.Errorf("%w: block align %d too small for %s", ErrInvalidInput, target.BlockAlign, target)
	}
	if bs > limit {
		return 0, fmt.Errorf("%w: %s block of %d frames does not fit one PDU", ErrInvalidInput, target, bs)
	}

	frames -= frames % bs
	if frames < bs {
		frames = bs
	}
	return frames, nil
}

// maxBatchFrames bounds a batch so its encoded payload, the WAVE2 header and
// block alignment padding fit a 16-bit PDU body. PCM targets are sized on the
// resampled output with two frames of slack; compressed targets never
// outgrow their source.
func maxBatchFrames(src, target audio.Format) (int, error) {
	budget := protocol.HeaderSize + protocol.MaxBodySize - protocol.Wave2HeaderSize - int(target.BlockAlign)

	var limit int
	switch {
	case target.Tag == audio.TagPCM && target.FrameSize() > 0 && target.SampleRate > 0:
		out := budget/target.FrameSize() - 2
		limit = int(int64(out) * int64(src.SampleRate) / int64(target.SampleRate))
	case src.FrameSize() > 0:
		limit = budget / src.FrameSize()
	default:
		return 0, fmt.Errorf("%w: source format %s has no frame size", ErrInvalidInput, src)
	}

	if limit < 1 {
		return 0, fmt.Errorf("%w: no batch of %s fits one PDU as %s", ErrInvalidInput, src, target)
	}
	return limit, nil
}

// SelectFormat chooses the client format audio is encoded to and sizes the
// batch for it
func (s *Session) SelectFormat(index uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(index) >= len(s.clientFormats) {
		return fmt.Errorf("%w: format index %d out of range (%d client formats)", ErrInvalidInput, index, len(s.clientFormats))
	}
	if s.config.SourceFormat == nil {
		return fmt.Errorf("%w: no source format configured", ErrInvalidInput)
	}

	src := *s.config.SourceFormat
	target := s.clientFormats[index]
	if target.SampleRate == 0 {
		return fmt.Errorf("%w: client format %d has a zero sample rate", ErrInvalidInput, index)
	}

	frameSize := src.FrameSize()
	if frameSize == 0 {
		return fmt.Errorf("%w: source format %s has no frame size", ErrInvalidInput, src)
	}

	frames, err := BatchFrames(src, target, s.config.LatencyMs)
	if err != nil {
		return err
	}

	if err := s.pending.ensure(frames*frameSize, s.config.MaxBufferBytes); err != nil {
		return err
	}

	if err := s.codec.Reset(target); err != nil {
		return fmt.Errorf("failed to configure codec for %s: %w", target, err)
	}

	s.selected = index
	s.framesPerBatch = frames
	s.pendingFrames = 0
	s.srcBytesPerFrame = frameSize

	s.log.WithFields(logrus.Fields{
		"index":  index,
		"format": target.String(),
		"frames": frames,
	}).Info("Selected client format")
	return nil
}

// SendSamples queues frames of source PCM, sending an audio PDU each time a
// batch fills. Samples sent before a format is selected are dropped.
func (s *Session) SendSamples(buf []byte, frames int, timestamp uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.formatSelectedLocked() {
		s.stats.DroppedFrames += uint64(max(frames, 0))
		s.log.Warn("Dropping samples, client format not negotiated")
		return ErrNotReady
	}

	if frames < 0 || frames > len(buf)/s.srcBytesPerFrame {
		return fmt.Errorf("%w: %d frames of %d bytes, buffer has %d", ErrInvalidInput, frames, s.srcBytesPerFrame, len(buf))
	}

	for frames > 0 {
		n := min(frames, s.framesPerBatch-s.pendingFrames)
		size := n * s.srcBytesPerFrame
		off := s.pendingFrames * s.srcBytesPerFrame
		copy(s.pending.buf[off:off+size], buf[:size])
		buf = buf[size:]
		frames -= n
		s.pendingFrames += n

		if s.pendingFrames >= s.framesPerBatch {
			if err := s.flushLocked(timestamp); err != nil {
				s.log.WithError(err).Error("Failed to send audio PDU")
				return err
			}
		}
	}
	return nil
}

// flushLocked encodes the pending frames and sends them. Pending frames are
// discarded whether or not the send succeeds.
func (s *Session) flushLocked(timestamp uint16) error {
	defer func() { s.pendingFrames = 0 }()

	if !s.formatSelectedLocked() {
		return fmt.Errorf("%w: no format selected", ErrInvalidInput)
	}
	target := s.clientFormats[s.selected]

	hdr := protocol.WaveHeader{
		Timestamp: timestamp,
		FormatNo:  s.selected,
		BlockNo:   s.blockNo,
	}
	wave2 := s.clientVersion >= protocol.ChannelVersionWin8
	if wave2 {
		protocol.BeginWave2(&s.out, hdr)
	} else {
		protocol.BeginWave(&s.out, hdr)
	}

	pcm := s.pending.buf[:s.pendingFrames*s.srcBytesPerFrame]
	encoded, err := s.codec.Encode(*s.config.SourceFormat, pcm, s.out.Bytes())
	if err != nil {
		return fmt.Errorf("failed to encode audio: %w", err)
	}
	s.out.SetBytes(encoded)

	if !wave2 {
		// the legacy split needs a payload of at least WaveSplitSize bytes
		if short := protocol.WaveInfoSize + protocol.WaveSplitSize - s.out.Len(); short > 0 {
			s.out.Zero(short)
		}
	}
	protocol.Align(&s.out, target.BlockAlign)

	pdu, err := s.out.Finish()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	s.blockNo++
	s.stats.WavesSent++

	if wave2 {
		return s.writeLocked(pdu)
	}

	// WaveInfo carries the header and the first payload bytes; the Wave PDU
	// repeats the rest with those bytes replaced by padding
	head := protocol.WaveInfoSize + protocol.WaveSplitSize
	if err := s.writeLocked(pdu[:head]); err != nil {
		return err
	}
	clear(pdu[protocol.WaveInfoSize:head])
	return s.writeLocked(pdu[protocol.WaveInfoSize:])
}
