// ABOUTME: Default codec collaborator for the audio session
// ABOUTME: Converts raw source PCM into the negotiated target format
// Package dsp converts producer PCM into the encoding the client selected.
//
// A Codec is reconfigured once per format selection and then asked to
// encode batches of source PCM. The default implementation decodes the
// source bytes, remaps channels, resamples to the target rate and encodes
// to PCM or Opus.
//
// Example:
//
//	c := dsp.New()
//	if err := c.Reset(audio.NewPCM(22050, 2, 16)); err != nil {
//		return err
//	}
//	out, err := c.Encode(src, pcm, nil)
package dsp
