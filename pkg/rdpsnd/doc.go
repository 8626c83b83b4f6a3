// ABOUTME: Server side audio output virtual channel engine
// ABOUTME: Negotiates formats, batches producer PCM and emits WAVE PDUs
// Package rdpsnd implements the server end of the audio output virtual
// channel.
//
// A Session opens the channel, offers the server formats and waits for the
// client's format list. Once the host selects one of the client formats,
// PCM handed to SendSamples is batched to the configured latency, encoded
// by the Codec and sent as WAVE (legacy clients) or WAVE2 PDUs.
//
// Example:
//
//	src := audio.NewPCM(44100, 2, 16)
//	s, err := rdpsnd.NewSession(rdpsnd.Config{
//		ServerFormats: []audio.Format{src},
//		SourceFormat:  &src,
//		Opener:        transport.Static(ch),
//		Handler: rdpsnd.HandlerFuncs{
//			OnActivated: func(s *rdpsnd.Session) { s.SelectFormat(0) },
//		},
//	})
//	if err != nil {
//		return err
//	}
//	if err := s.Start(ctx); err != nil {
//		return err
//	}
//	defer s.Stop()
//	s.SendSamples(pcm, frames, timestamp)
package rdpsnd
